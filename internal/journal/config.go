package journal

import (
	"fmt"
	"math"
	"time"

	"journalcore/internal/jsegment"
)

// Config enumerates every configuration option spec.md's external
// interfaces section names, plus the small amount of wiring glue
// (SegmentBase, RolloverThreshold, UrgencySizeBase) the distillation left
// implicit.
type Config struct {
	// JournalPath is the directory holding segment files.
	JournalPath string
	// SegmentBase is the filename prefix segment files share:
	// "<SegmentBase>.<16-digit-generation>".
	SegmentBase string

	// MaximumFileSize is the size at which a segment rolls over.
	MaximumFileSize int64
	// WriteBufferSize is the mapped write window size.
	WriteBufferSize int64
	// ReadBufferSize is checked by Validate only; copy-back and the page-read
	// path read each record at its declared length and do not consult it.
	ReadBufferSize int64

	// FlushInterval is the period between Flush Worker force() calls.
	FlushInterval time.Duration
	// CopierInterval is the period between Copy-Back Worker cycles.
	CopierInterval time.Duration
	// MinimumUrgency is the copy-back urgency threshold.
	MinimumUrgency int
	// UrgencySizeBase divides the Page Index size in the urgency formula.
	UrgencySizeBase int
	// IORateMin/IORateMax clamp the per-page copy-back pacing sleep.
	IORateMin int
	IORateMax int
	// IORateSleepMultiplier scales the clamped I/O rate into milliseconds.
	IORateSleepMultiplier float64
	// CopierTimestampLimit upper-bounds copy-back candidate timestamps.
	CopierTimestampLimit int64
	// RolloverThreshold is the active-segment tail size above which an
	// emptied journal triggers a proactive rollover during copy-back.
	RolloverThreshold int64
	// SuspendCopying hard-pauses the copy-back worker.
	SuspendCopying bool

	// HandleCapacity bounds the handle registry before it force-clears.
	HandleCapacity int
	// ReadCacheCapacity bounds the number of segment file descriptors the
	// read-path keeps open concurrently.
	ReadCacheCapacity int
}

// DefaultConfig returns spec.md's enumerated defaults, rooted at journalPath.
func DefaultConfig(journalPath string) Config {
	return Config{
		JournalPath:           journalPath,
		SegmentBase:           "journal",
		MaximumFileSize:       jsegment.DefaultSegmentSize,
		WriteBufferSize:       jsegment.DefaultWriteBufferSize,
		ReadBufferSize:        64 * 1024,
		FlushInterval:         100 * time.Millisecond,
		CopierInterval:        1000 * time.Millisecond,
		MinimumUrgency:        2,
		UrgencySizeBase:       100,
		IORateMin:             2,
		IORateMax:             100,
		IORateSleepMultiplier: 0.5,
		CopierTimestampLimit:  math.MaxInt64,
		RolloverThreshold:     jsegment.DefaultWriteBufferSize / 2,
		SuspendCopying:        false,
		HandleCapacity:        4096,
		ReadCacheCapacity:     64,
	}
}

// Validate checks the configuration against spec.md's bounds.
func (c Config) Validate() error {
	if c.JournalPath == "" {
		return fmt.Errorf("journal: JournalPath must not be empty")
	}
	if c.SegmentBase == "" {
		return fmt.Errorf("journal: SegmentBase must not be empty")
	}
	segCfg := jsegment.Config{
		Dir:             c.JournalPath,
		Base:            c.SegmentBase,
		MaxFileSize:     c.MaximumFileSize,
		WriteBufferSize: c.WriteBufferSize,
	}
	if err := segCfg.Validate(); err != nil {
		return err
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("journal: ReadBufferSize must be positive")
	}
	if c.FlushInterval <= 0 || c.CopierInterval <= 0 {
		return fmt.Errorf("journal: FlushInterval and CopierInterval must be positive")
	}
	if c.IORateMin < 0 || c.IORateMax < c.IORateMin {
		return fmt.Errorf("journal: IORateMin/IORateMax out of order")
	}
	if c.UrgencySizeBase <= 0 {
		return fmt.Errorf("journal: UrgencySizeBase must be positive")
	}
	if c.HandleCapacity <= 0 {
		return fmt.Errorf("journal: HandleCapacity must be positive")
	}
	if c.ReadCacheCapacity <= 0 {
		return fmt.Errorf("journal: ReadCacheCapacity must be positive")
	}
	return nil
}
