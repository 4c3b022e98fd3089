package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"journalcore/internal/handle"
	"journalcore/internal/jrecord"
	"journalcore/internal/jsegment"
	"journalcore/internal/pageindex"
)

const testWindow = 4096

func newTestWriter(t *testing.T) (*jsegment.Writer, *handle.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := handle.New(handle.DefaultCapacity)
	cfg := jsegment.Config{
		Dir:             dir,
		Base:            "journal",
		MaxFileSize:     jsegment.MinSegmentSize,
		WriteBufferSize: testWindow,
	}
	w, err := jsegment.Open(cfg, reg, 0, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return w, reg, dir
}

func appendRecord(t *testing.T, w *jsegment.Writer, b []byte) {
	t.Helper()
	if _, err := w.Reserve(int64(len(b))); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := w.Append(b); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func encodeIV(t *testing.T, ts int64, v jrecord.IV) []byte {
	t.Helper()
	buf := make([]byte, jrecord.MaxLength(jrecord.KindIV, len(v.Path)))
	n, err := jrecord.EncodeIV(buf, ts, v)
	if err != nil {
		t.Fatalf("EncodeIV: %v", err)
	}
	return buf[:n]
}

func encodePA(t *testing.T, ts int64, p jrecord.PA) []byte {
	t.Helper()
	buf := make([]byte, jrecord.MaxLength(jrecord.KindPA, len(p.Payload)))
	n, err := jrecord.EncodePA(buf, ts, p)
	if err != nil {
		t.Fatalf("EncodePA: %v", err)
	}
	return buf[:n]
}

func encodeCP(t *testing.T, ts int64, c jrecord.CP) []byte {
	t.Helper()
	buf := make([]byte, jrecord.Overhead(jrecord.KindCP))
	n, err := jrecord.EncodeCP(buf, ts, c)
	if err != nil {
		t.Fatalf("EncodeCP: %v", err)
	}
	return buf[:n]
}

func writeS1(t *testing.T, w *jsegment.Writer) {
	t.Helper()
	appendRecord(t, w, encodeIV(t, 0, jrecord.IV{Handle: 1, VolumeID: 42, Path: "/vol/a"}))
	for page := int64(1); page <= 3; page++ {
		appendRecord(t, w, encodePA(t, page, jrecord.PA{
			VolumeHandle: 1,
			BufferSize:   8,
			LeftSize:     8,
			PageAddress:  uint64(page),
			Payload:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
		}))
	}
	appendRecord(t, w, encodeCP(t, 10, jrecord.CP{WallClockMillis: 100}))
}

func TestRecovery_S1_CleanCycle(t *testing.T) {
	w, reg, dir := newTestWriter(t)
	writeS1(t, w)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx := pageindex.New()
	e, err := Run(dir, "journal", testWindow, reg, idx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if idx.Len() != 3 {
		t.Fatalf("expected 3 page index entries, got %d", idx.Len())
	}
	cp, ok := e.LastValidCheckpoint()
	if !ok || cp.Timestamp != 10 {
		t.Fatalf("expected last checkpoint timestamp 10, got %+v ok=%v", cp, ok)
	}
	if e.FirstGeneration() != 0 || e.CurrentGeneration() != 0 {
		t.Fatalf("expected generation 0,0, got %d,%d", e.FirstGeneration(), e.CurrentGeneration())
	}
	if _, dirty := e.DirtyRecoveryFileAddress(); dirty {
		t.Fatalf("expected no dirty file address after a clean close")
	}
}

func TestRecovery_S2_TornTail(t *testing.T) {
	w, reg, dir := newTestWriter(t)
	writeS1(t, w)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, jsegment.FileName("journal", 0))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for sabotage: %v", err)
	}
	partial := encodePA(t, 99, jrecord.PA{
		VolumeHandle: 1,
		BufferSize:   8,
		LeftSize:     8,
		PageAddress:  99,
		Payload:      []byte{9, 9, 9, 9, 9, 9, 9, 9},
	})
	if _, err := f.Write(partial[:jrecord.HeaderSize+2]); err != nil {
		t.Fatalf("write partial record: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close sabotaged file: %v", err)
	}

	idx := pageindex.New()
	e, err := Run(dir, "journal", testWindow, reg, idx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if idx.Len() != 3 {
		t.Fatalf("expected identical 3 page index entries as S1, got %d", idx.Len())
	}
	cp, ok := e.LastValidCheckpoint()
	if !ok || cp.Timestamp != 10 {
		t.Fatalf("expected last checkpoint timestamp 10, got %+v ok=%v", cp, ok)
	}
	addr, dirty := e.DirtyRecoveryFileAddress()
	if !dirty {
		t.Fatalf("expected a dirty file address pointing at the torn record")
	}
	if addr.Timestamp != 99 {
		t.Fatalf("expected dirty record timestamp 99, got %d", addr.Timestamp)
	}
}

func TestRecovery_S3_Supersede(t *testing.T) {
	w, reg, dir := newTestWriter(t)
	appendRecord(t, w, encodeIV(t, 0, jrecord.IV{Handle: 1, VolumeID: 1, Path: "/vol/a"}))
	appendRecord(t, w, encodePA(t, 1, jrecord.PA{VolumeHandle: 1, BufferSize: 4, LeftSize: 4, PageAddress: 7, Payload: []byte{1, 1, 1, 1}}))
	appendRecord(t, w, encodePA(t, 2, jrecord.PA{VolumeHandle: 1, BufferSize: 4, LeftSize: 4, PageAddress: 7, Payload: []byte{2, 2, 2, 2}}))
	appendRecord(t, w, encodeCP(t, 3, jrecord.CP{WallClockMillis: 0}))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx := pageindex.New()
	if _, err := Run(dir, "journal", testWindow, reg, idx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	key := pageindex.Key{Volume: handle.VolumeDescriptor{Path: "/vol/a", ID: 1}, Page: 7}
	addr, ok := idx.Get(key)
	if !ok {
		t.Fatalf("expected page 7 present in index")
	}
	if addr.Timestamp != 2 {
		t.Fatalf("expected superseding write (t=2) to win, got timestamp %d", addr.Timestamp)
	}
}

func TestRecovery_S5_TransientPageDiscarded(t *testing.T) {
	w, reg, dir := newTestWriter(t)
	appendRecord(t, w, encodeIV(t, 0, jrecord.IV{Handle: 1, VolumeID: 1, Path: "/vol/a"}))
	appendRecord(t, w, encodePA(t, jrecord.TransientTimestamp, jrecord.PA{VolumeHandle: 1, BufferSize: 4, LeftSize: 4, PageAddress: 5, Payload: []byte{1, 2, 3, 4}}))
	appendRecord(t, w, encodeCP(t, 50, jrecord.CP{WallClockMillis: 0}))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx := pageindex.New()
	if _, err := Run(dir, "journal", testWindow, reg, idx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if idx.Len() != 0 {
		t.Fatalf("expected transient page image to be discarded, index has %d entries", idx.Len())
	}
}

func TestRecovery_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	reg := handle.New(handle.DefaultCapacity)
	idx := pageindex.New()

	e, err := Run(dir, "journal", testWindow, reg, idx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !e.Recovered() {
		t.Fatalf("expected recovered flag set for an empty directory")
	}
	if e.FirstGeneration() != 0 || e.CurrentGeneration() != 0 {
		t.Fatalf("expected generations 0,0 for an empty directory")
	}
}
