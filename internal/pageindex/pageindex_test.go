package pageindex

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"journalcore/internal/handle"
)

func TestSnapshot_OrderedByPathThenPage(t *testing.T) {
	idx := New()
	volA := handle.VolumeDescriptor{Path: "/vol/a", ID: 1}
	volB := handle.VolumeDescriptor{Path: "/vol/b", ID: 2}

	idx.Put(Key{Volume: volB, Page: 1}, FileAddress{Segment: "s0", Offset: 0, Timestamp: 1})
	idx.Put(Key{Volume: volA, Page: 5}, FileAddress{Segment: "s0", Offset: 10, Timestamp: 2})
	idx.Put(Key{Volume: volA, Page: 1}, FileAddress{Segment: "s0", Offset: 20, Timestamp: 3})

	got := idx.Snapshot()
	want := []Entry{
		{Key: Key{Volume: volA, Page: 1}, Value: FileAddress{Segment: "s0", Offset: 20, Timestamp: 3}},
		{Key: Key{Volume: volA, Page: 5}, Value: FileAddress{Segment: "s0", Offset: 10, Timestamp: 2}},
		{Key: Key{Volume: volB, Page: 1}, Value: FileAddress{Segment: "s0", Offset: 0, Timestamp: 1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
}

func TestPut_ReplacesExisting(t *testing.T) {
	idx := New()
	vol := handle.VolumeDescriptor{Path: "/vol/a", ID: 1}
	key := Key{Volume: vol, Page: 7}

	idx.Put(key, FileAddress{Segment: "s0", Offset: 0, Timestamp: 1})
	idx.Put(key, FileAddress{Segment: "s0", Offset: 100, Timestamp: 2})

	got, ok := idx.Get(key)
	if !ok {
		t.Fatalf("expected key present")
	}
	if got.Timestamp != 2 {
		t.Fatalf("expected latest write to win, got timestamp %d", got.Timestamp)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected duplicate appends to collapse to one entry, got %d", idx.Len())
	}
}

func TestDeleteIfEqual(t *testing.T) {
	idx := New()
	vol := handle.VolumeDescriptor{Path: "/vol/a", ID: 1}
	key := Key{Volume: vol, Page: 1}
	addr := FileAddress{Segment: "s0", Offset: 0, Timestamp: 1}
	idx.Put(key, addr)

	if idx.DeleteIfEqual(key, FileAddress{Segment: "s0", Offset: 999, Timestamp: 1}) {
		t.Fatalf("expected stale expectation to be rejected")
	}
	if _, ok := idx.Get(key); !ok {
		t.Fatalf("expected entry to survive a rejected delete")
	}

	if !idx.DeleteIfEqual(key, addr) {
		t.Fatalf("expected matching expectation to delete")
	}
	if _, ok := idx.Get(key); ok {
		t.Fatalf("expected entry gone after successful delete")
	}
}
