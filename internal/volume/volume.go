// Package volume defines the narrow interface the journal core consumes
// from its home volumes. The B-Tree, buffer pool, transaction manager, and
// on-disk volume file layout are all out of scope for journalcore (see
// spec.md §1); this is the entire surface the Copy-Back Worker and the
// page-read path need from a live volume.
package volume

// Volume is a live, open home volume that copy-back writes pages into.
type Volume interface {
	// Path is the volume's identifying path, as recorded in IV records.
	Path() string
	// ID is the volume's identifying id, as recorded in IV records.
	ID() uint64
	// BufferSize is the page size this volume stores, in bytes.
	BufferSize() int
	// Closed reports whether the volume has been closed and should no
	// longer be written to.
	Closed() bool
	// WritePage writes buf (exactly BufferSize bytes) to page.
	WritePage(page int64, buf []byte) error
	// Sync forces any buffered writes to stable storage.
	Sync() error
}

// Resolver looks up a live Volume by the path recorded in a journal IV
// record. Copy-back treats a missing or closed volume as "skip this page
// for now" rather than an error.
type Resolver interface {
	VolumeByPath(path string) (Volume, bool)
}
