// Package pageindex implements the journal's Page Index: the in-memory
// mapping from (volume, page) to the latest journal location holding that
// page's image.
//
// Index is not internally synchronized. Spec.md's concurrency model puts
// the Page Index under the Journal Manager's single monitor for mutation,
// with readers observing consistent snapshots taken under that same
// monitor — so the lock belongs to the caller (internal/journal.Manager),
// not to this type.
package pageindex

import (
	"sort"

	"journalcore/internal/handle"
)

// Key is the Page Index's key: a volume and a page number within it.
type Key struct {
	Volume handle.VolumeDescriptor
	Page   int64
}

// FileAddress is the Page Index's value: the segment, byte offset, and
// journal timestamp of the most recent PA record for a key.
type FileAddress struct {
	Segment   string
	Offset    int64
	Timestamp int64
}

// Entry pairs a Key with its FileAddress, returned by Snapshot.
type Entry struct {
	Key   Key
	Value FileAddress
}

// Index is the in-memory map described above.
type Index struct {
	entries map[Key]FileAddress
}

// New creates an empty Page Index.
func New() *Index {
	return &Index{entries: make(map[Key]FileAddress)}
}

// Put installs (or replaces) the location for key. Callers are responsible
// for only calling Put with a newer FileAddress than any existing entry —
// under the Journal Manager's monitor, PA appends are serialized so the
// last Put always is the latest.
func (x *Index) Put(key Key, addr FileAddress) {
	x.entries[key] = addr
}

// Get returns the current location for key, if any.
func (x *Index) Get(key Key) (FileAddress, bool) {
	addr, ok := x.entries[key]
	return addr, ok
}

// Delete removes key unconditionally.
func (x *Index) Delete(key Key) {
	delete(x.entries, key)
}

// DeleteIfEqual removes key only if its current value still equals expect,
// returning whether the delete happened. This is the copy-back worker's
// reconciliation hook: a newer PA appended during a copy-back pass must
// supersede the evicted candidate rather than being clobbered by it.
func (x *Index) DeleteIfEqual(key Key, expect FileAddress) bool {
	cur, ok := x.entries[key]
	if !ok || cur != expect {
		return false
	}
	delete(x.entries, key)
	return true
}

// Len reports the number of entries currently indexed.
func (x *Index) Len() int {
	return len(x.entries)
}

// Clear empties the index, e.g. on journal close.
func (x *Index) Clear() {
	x.entries = make(map[Key]FileAddress)
}

// Snapshot returns a copy of every entry, ordered by (Volume.Path, Page) —
// the order copy-back iterates in for deterministic, sequential I/O on home
// volumes, and the order the CLI diagnostic entry point dumps the index in.
func (x *Index) Snapshot() []Entry {
	out := make([]Entry, 0, len(x.entries))
	for k, v := range x.entries {
		out = append(out, Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Volume.Path != out[j].Key.Volume.Path {
			return out[i].Key.Volume.Path < out[j].Key.Volume.Path
		}
		return out[i].Key.Page < out[j].Key.Page
	})
	return out
}
