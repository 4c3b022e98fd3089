// Package journal orchestrates the journal's components into the external
// operations mutators call: handleForVolume, handleForTree,
// writePageToJournal, writeCheckpointToJournal, readPageFromJournal,
// recover, copyBack, and close. Grounded on broker.Broker's quit-channel
// lifecycle and partition.Partition's component composition shape, with a
// single monitor (mu) replacing partition's per-field locking to match
// spec.md's concurrency model.
package journal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"journalcore/internal/copyback"
	"journalcore/internal/flush"
	"journalcore/internal/handle"
	"journalcore/internal/jlog"
	"journalcore/internal/jrecord"
	"journalcore/internal/jsegment"
	"journalcore/internal/pageindex"
	"journalcore/internal/recovery"
	"journalcore/internal/volume"
)

const maxRolloverRetries = 4

// Manager is the journal's single entry point: it owns the Segment Writer,
// the Handle Registry, the Page Index, and the Flush and Copy-Back workers,
// serializing every mutation behind one monitor.
type Manager struct {
	cfg      Config
	resolver volume.Resolver

	sessionID uuid.UUID
	log       *slog.Logger

	mu       sync.Mutex
	registry *handle.Registry
	pageIdx  *pageindex.Index
	writer   *jsegment.Writer
	readCache *jsegment.ReadCache

	nextTimestamp int64

	firstGeneration   int64
	currentGeneration int64

	recovered bool
	closed    bool

	haveCheckpoint bool
	lastCheckpoint recovery.Checkpoint

	haveDirty bool
	dirty     pageindex.FileAddress

	flushWorker    *flush.Worker
	copyBackWorker *copyback.Worker
}

// Open validates cfg and prepares a Manager. It does not scan the journal
// directory or start any worker; call Recover for that.
func Open(cfg Config, resolver volume.Resolver) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.JournalPath, 0o755); err != nil {
		return nil, ioErr(err)
	}

	id := uuid.New()
	m := &Manager{
		cfg:       cfg,
		resolver:  resolver,
		sessionID: id,
		log:       jlog.ForSession(id),
		registry:  handle.New(cfg.HandleCapacity),
		pageIdx:   pageindex.New(),
	}
	return m, nil
}

// SessionID identifies this Manager instance in logs.
func (m *Manager) SessionID() uuid.UUID { return m.sessionID }

// Recover scans the journal directory, rebuilds the Handle Registry and
// Page Index, opens the Segment Writer at the recovered tail, and starts
// the Flush and Copy-Back workers. It may be called exactly once.
func (m *Manager) Recover() error {
	m.mu.Lock()
	if m.recovered {
		m.mu.Unlock()
		return ErrAlreadyRecovered
	}

	eng, err := recovery.Run(m.cfg.JournalPath, m.cfg.SegmentBase, m.cfg.WriteBufferSize, m.registry, m.pageIdx)
	if err != nil {
		m.mu.Unlock()
		return ioErr(err)
	}

	m.firstGeneration = eng.FirstGeneration()
	m.currentGeneration = eng.CurrentGeneration()
	if cp, ok := eng.LastValidCheckpoint(); ok {
		m.lastCheckpoint = cp
		m.haveCheckpoint = true
	}
	if addr, ok := eng.DirtyRecoveryFileAddress(); ok {
		m.dirty = addr
		m.haveDirty = true
	}
	m.nextTimestamp = eng.MaxTimestamp()

	tailLen, err := m.tailLengthFor(m.currentGeneration)
	if err != nil {
		m.mu.Unlock()
		return ioErr(err)
	}

	segCfg := jsegment.Config{
		Dir:             m.cfg.JournalPath,
		Base:            m.cfg.SegmentBase,
		MaxFileSize:     m.cfg.MaximumFileSize,
		WriteBufferSize: m.cfg.WriteBufferSize,
	}
	w, err := jsegment.Open(segCfg, m.registry, m.currentGeneration, tailLen)
	if err != nil {
		m.mu.Unlock()
		return ioErr(err)
	}
	m.writer = w
	m.readCache = jsegment.NewReadCache(m.cfg.ReadCacheCapacity)
	m.recovered = true

	dirty := m.haveDirty
	firstGen, curGen, pageIdxLen := m.firstGeneration, m.currentGeneration, m.pageIdx.Len()
	m.mu.Unlock()

	jlog.Recovered(m.log, firstGen, curGen, pageIdxLen, dirty)

	m.flushWorker = flush.New(m.cfg.FlushInterval, m.writer, func(err error) {
		jlog.WorkerError(m.log, "flush", err)
	})
	m.copyBackWorker = copyback.New(&m.mu, m.pageIdx, m.resolver, m.readCache, m.writer, m, m.cfg.JournalPath, m.cfg.SegmentBase, m.firstGeneration, copyback.Config{
		Interval:              m.cfg.CopierInterval,
		MinimumUrgency:        m.cfg.MinimumUrgency,
		SizeBase:              m.cfg.UrgencySizeBase,
		IORateMin:             m.cfg.IORateMin,
		IORateMax:             m.cfg.IORateMax,
		IORateSleepMultiplier: m.cfg.IORateSleepMultiplier,
		CopierTimestampLimit:  m.cfg.CopierTimestampLimit,
		RolloverThreshold:     m.cfg.RolloverThreshold,
		SuspendCopying:        m.cfg.SuspendCopying,
	})

	m.flushWorker.Start()
	m.copyBackWorker.Start(func(err error) {
		jlog.WorkerError(m.log, "copy-back", err)
	})

	return nil
}

// LastCheckpointTimestamp implements copyback.Checkpoints.
func (m *Manager) LastCheckpointTimestamp() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheckpoint.Timestamp, m.haveCheckpoint
}

// LastValidCheckpoint returns the most recently durable checkpoint.
func (m *Manager) LastValidCheckpoint() (recovery.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheckpoint, m.haveCheckpoint
}

// DirtyRecoveryFileAddress reports the location recovery could not parse
// cleanly, if the journal was not cleanly closed.
func (m *Manager) DirtyRecoveryFileAddress() (pageindex.FileAddress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty, m.haveDirty
}

func (m *Manager) tailLengthFor(generation int64) (int64, error) {
	path := filepath.Join(m.cfg.JournalPath, jsegment.FileName(m.cfg.SegmentBase, generation))
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	size := fi.Size()
	if m.haveDirty && m.dirty.Segment == path && m.dirty.Offset < size {
		return m.dirty.Offset, nil
	}
	return size, nil
}

func (m *Manager) checkOperableLocked() error {
	if m.closed {
		return ErrClosed
	}
	if !m.recovered {
		return ErrNotRecovered
	}
	return nil
}

func (m *Manager) tickLocked() int64 {
	m.nextTimestamp++
	return m.nextTimestamp
}

func (m *Manager) writeRecordLocked(body []byte) (offset int64, rolled bool, err error) {
	rolled, err = m.writer.Reserve(int64(len(body)))
	if err != nil {
		return 0, false, ioErr(err)
	}
	if rolled {
		// The new segment must re-announce handles before body is written.
		return 0, true, nil
	}
	off, err := m.writer.Append(body)
	if err != nil {
		return 0, false, ioErr(err)
	}
	return off, rolled, nil
}

// HandleForVolume resolves or mints a handle for desc, emitting an IV
// record the first time desc is seen in the active segment.
func (m *Manager) HandleForVolume(desc handle.VolumeDescriptor) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOperableLocked(); err != nil {
		return 0, err
	}
	return m.ensureVolumeHandleLocked(desc)
}

func (m *Manager) ensureVolumeHandleLocked(desc handle.VolumeDescriptor) (uint32, error) {
	for attempt := 0; attempt < maxRolloverRetries; attempt++ {
		vh, isNew := m.registry.HandleForVolume(desc)
		if !isNew {
			return vh, nil
		}
		ts := m.tickLocked()
		buf := make([]byte, jrecord.MaxLength(jrecord.KindIV, len(desc.Path)))
		n, err := jrecord.EncodeIV(buf, ts, jrecord.IV{Handle: vh, VolumeID: desc.ID, Path: desc.Path})
		if err != nil {
			return 0, corrupt(err.Error())
		}
		_, rolled, err := m.writeRecordLocked(buf[:n])
		if err != nil {
			return 0, err
		}
		if rolled {
			continue
		}
		return vh, nil
	}
	return 0, ErrTooManyRollovers
}

// HandleForTree resolves or mints a handle for desc, emitting an IT record
// the first time desc is seen in the active segment. desc.VolumeHandle must
// already be valid (obtained from HandleForVolume).
func (m *Manager) HandleForTree(desc handle.TreeDescriptor) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOperableLocked(); err != nil {
		return 0, err
	}
	for attempt := 0; attempt < maxRolloverRetries; attempt++ {
		th, isNew := m.registry.HandleForTree(desc)
		if !isNew {
			return th, nil
		}
		ts := m.tickLocked()
		buf := make([]byte, jrecord.MaxLength(jrecord.KindIT, len(desc.TreeName)))
		n, err := jrecord.EncodeIT(buf, ts, jrecord.IT{Handle: th, VolumeHandle: desc.VolumeHandle, TreeName: desc.TreeName})
		if err != nil {
			return 0, corrupt(err.Error())
		}
		_, rolled, err := m.writeRecordLocked(buf[:n])
		if err != nil {
			return 0, err
		}
		if rolled {
			continue
		}
		return th, nil
	}
	return 0, ErrTooManyRollovers
}

// WritePageToJournal appends a page image for (desc, page) and installs its
// location in the Page Index.
func (m *Manager) WritePageToJournal(desc handle.VolumeDescriptor, page int64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOperableLocked(); err != nil {
		return err
	}

	for attempt := 0; attempt < maxRolloverRetries; attempt++ {
		vh, err := m.ensureVolumeHandleLocked(desc)
		if err != nil {
			return err
		}
		ts := m.tickLocked()
		body := make([]byte, jrecord.MaxLength(jrecord.KindPA, len(buf)))
		n, err := jrecord.EncodePA(body, ts, jrecord.PA{
			VolumeHandle: vh,
			BufferSize:   uint32(len(buf)),
			LeftSize:     int32(len(buf)),
			PageAddress:  uint64(page),
			Payload:      buf,
		})
		if err != nil {
			return corrupt(err.Error())
		}
		off, rolled, err := m.writeRecordLocked(body[:n])
		if err != nil {
			return err
		}
		if rolled {
			continue
		}
		m.pageIdx.Put(pageindex.Key{Volume: desc, Page: page}, pageindex.FileAddress{
			Segment:   m.writer.Path(),
			Offset:    off,
			Timestamp: ts,
		})
		return nil
	}
	return ErrTooManyRollovers
}

// WriteCheckpointToJournal forces the active window (so every PA written
// before it is durable) then appends a CP record. It is a silent no-op
// before Recover has completed.
func (m *Manager) WriteCheckpointToJournal(wallClockMillis int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if !m.recovered {
		return 0, nil
	}
	if err := m.writer.Force(); err != nil {
		return 0, ioErr(err)
	}

	for attempt := 0; attempt < maxRolloverRetries; attempt++ {
		ts := m.tickLocked()
		body := make([]byte, jrecord.Overhead(jrecord.KindCP))
		n, err := jrecord.EncodeCP(body, ts, jrecord.CP{WallClockMillis: wallClockMillis})
		if err != nil {
			return 0, corrupt(err.Error())
		}
		_, rolled, err := m.writeRecordLocked(body[:n])
		if err != nil {
			return 0, err
		}
		if rolled {
			if err := m.writer.Force(); err != nil {
				return 0, ioErr(err)
			}
			continue
		}
		m.lastCheckpoint = recovery.Checkpoint{Timestamp: ts, WallClockMillis: wallClockMillis}
		m.haveCheckpoint = true
		return ts, nil
	}
	return 0, ErrTooManyRollovers
}

// ReadPageFromJournal reconstructs the page image for (desc, page) into buf
// if the Page Index has one, returning false otherwise.
func (m *Manager) ReadPageFromJournal(desc handle.VolumeDescriptor, page int64, buf []byte) (bool, error) {
	m.mu.Lock()
	if err := m.checkOperableLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	addr, ok := m.pageIdx.Get(pageindex.Key{Volume: desc, Page: page})
	cache := m.readCache
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	hdrBytes, err := cache.ReadAt(addr.Segment, addr.Offset, jrecord.HeaderSize)
	if err != nil {
		return false, ioErr(err)
	}
	hdr, err := jrecord.DecodeHeader(hdrBytes)
	if err != nil {
		return false, corrupt(err.Error())
	}
	full, err := cache.ReadAt(addr.Segment, addr.Offset, int(hdr.Length))
	if err != nil {
		return false, ioErr(err)
	}
	_, pa, err := jrecord.DecodePA(full)
	if err != nil {
		return false, corrupt(err.Error())
	}
	if int64(pa.PageAddress) != page {
		return false, corrupt(fmt.Sprintf("page address mismatch: want %d got %d", page, pa.PageAddress))
	}
	if err := jrecord.ReconstructInto(buf, pa); err != nil {
		return false, corrupt(err.Error())
	}
	return true, nil
}

// CopyBack forces an urgent copy-back pass. toTimestamp is accepted for
// parity with the original journal manager's entry point but does not
// loosen the checkpoint-derived candidate bound; see copyback.Worker.CopyBack.
func (m *Manager) CopyBack(toTimestamp int64) error {
	m.mu.Lock()
	err := m.checkOperableLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.copyBackWorker.CopyBack(toTimestamp)
}

// Close stops both background workers, drains the write window, and
// deletes every segment file if the Page Index ended up empty.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.recovered {
		m.closed = true
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	flushWorker, copyBackWorker := m.flushWorker, m.copyBackWorker
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		flushWorker.Stop()
	}()
	go func() {
		defer wg.Done()
		copyBackWorker.Stop()
	}()
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writer.Close(); err != nil {
		return ioErr(err)
	}
	if err := m.readCache.Close(); err != nil {
		return ioErr(err)
	}
	m.registry.Clear()

	empty := m.pageIdx.Len() == 0
	m.pageIdx.Clear()

	if empty {
		files, err := jsegment.List(m.cfg.JournalPath, m.cfg.SegmentBase)
		if err != nil {
			return ioErr(err)
		}
		for _, f := range files {
			if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
				return ioErr(err)
			}
		}
	}
	return nil
}
