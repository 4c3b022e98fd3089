package jsegment

// Size bounds from spec.md's configuration table.
const (
	MinSegmentSize     = 16 * 1024 * 1024        // 16 MiB
	DefaultSegmentSize = 1024 * 1024 * 1024      // 1 GiB
	MaxSegmentSize     = 64 * 1024 * 1024 * 1024 // 64 GiB

	DefaultWriteBufferSize = 4 * 1024 * 1024 // 4 MiB
)

// Config parameterizes segment naming and size limits.
type Config struct {
	Dir             string // directory holding segment files
	Base            string // filename prefix, e.g. "journal"
	MaxFileSize     int64  // size at which a segment rolls over
	WriteBufferSize int64  // mapped write window size; must divide MaxFileSize's addressing evenly in practice
}

// Validate enforces spec.md's documented bounds.
func (c Config) Validate() error {
	if c.Dir == "" {
		return ErrInvalidConfig
	}
	if c.Base == "" {
		return ErrInvalidConfig
	}
	if c.MaxFileSize < MinSegmentSize || c.MaxFileSize > MaxSegmentSize {
		return ErrInvalidConfig
	}
	if c.WriteBufferSize <= 0 || c.WriteBufferSize > c.MaxFileSize {
		return ErrInvalidConfig
	}
	return nil
}
