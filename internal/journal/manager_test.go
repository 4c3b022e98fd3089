package journal

import (
	"os"
	"testing"
	"time"

	"journalcore/internal/handle"
	"journalcore/internal/volume"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.WriteBufferSize = 4096
	cfg.MaximumFileSize = 16 * 1024 * 1024
	cfg.FlushInterval = 5 * time.Millisecond
	cfg.CopierInterval = 5 * time.Millisecond
	return cfg
}

func TestManager_RecoverTwiceIsIllegalState(t *testing.T) {
	m, err := Open(testConfig(t), volume.NewMemResolver())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer m.Close()

	if err := m.Recover(); err != ErrAlreadyRecovered {
		t.Fatalf("expected ErrAlreadyRecovered, got %v", err)
	}
}

func TestManager_OperationBeforeRecoverIsIllegalState(t *testing.T) {
	m, err := Open(testConfig(t), volume.NewMemResolver())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	desc := handle.VolumeDescriptor{Path: "/vol/a", ID: 1}
	if _, err := m.HandleForVolume(desc); err != ErrNotRecovered {
		t.Fatalf("expected ErrNotRecovered, got %v", err)
	}
}

func TestManager_WriteReadRoundTrip(t *testing.T) {
	memVol := volume.NewMemVolume("/vol/a", 1, 4)
	cfg := testConfig(t)
	// Keep the copy-back worker from draining the checkpointed page before
	// it is read back.
	cfg.SuspendCopying = true
	m, err := Open(cfg, volume.NewMemResolver(memVol))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer m.Close()

	desc := handle.VolumeDescriptor{Path: "/vol/a", ID: 1}
	page := int64(5)
	payload := []byte{9, 8, 7, 6}

	if err := m.WritePageToJournal(desc, page, payload); err != nil {
		t.Fatalf("WritePageToJournal: %v", err)
	}
	if _, err := m.WriteCheckpointToJournal(0); err != nil {
		t.Fatalf("WriteCheckpointToJournal: %v", err)
	}

	buf := make([]byte, 4)
	ok, err := m.ReadPageFromJournal(desc, page, buf)
	if err != nil {
		t.Fatalf("ReadPageFromJournal: %v", err)
	}
	if !ok {
		t.Fatalf("expected page present in journal")
	}
	if string(buf) != string(payload) {
		t.Fatalf("read payload mismatch: got %v want %v", buf, payload)
	}

	missing := handle.VolumeDescriptor{Path: "/vol/b", ID: 2}
	ok, err = m.ReadPageFromJournal(missing, page, buf)
	if err != nil {
		t.Fatalf("ReadPageFromJournal(missing): %v", err)
	}
	if ok {
		t.Fatalf("expected false for an unindexed page")
	}
}

func TestManager_CloseDeletesSegmentsWhenIndexEmpty(t *testing.T) {
	cfg := testConfig(t)
	m, err := Open(cfg, volume.NewMemResolver())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(cfg.JournalPath)
	if err != nil {
		t.Fatalf("reading journal dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no segment files left after closing an empty journal, got %v", entries)
	}
}

func TestManager_OperationAfterCloseIsIllegalState(t *testing.T) {
	m, err := Open(testConfig(t), volume.NewMemResolver())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	desc := handle.VolumeDescriptor{Path: "/vol/a", ID: 1}
	if _, err := m.HandleForVolume(desc); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
