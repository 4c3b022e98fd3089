// Package copyback implements the Copy-Back Worker: periodically drains
// page images from the Page Index back to their home volumes and reclaims
// the segment files that no longer hold any live data. Grounded on
// retention.RetentionCleaner's ticker/stop-channel loop shape, extended
// with the two-phase snapshot-under-lock/act-without-lock/reconcile-under-
// lock pattern spec.md's concurrency model requires.
package copyback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"journalcore/internal/iorate"
	"journalcore/internal/jrecord"
	"journalcore/internal/jsegment"
	"journalcore/internal/pageindex"
	"journalcore/internal/volume"
)

// ErrCorrupt marks a page image that failed verification against its
// expected volume identity, buffer size, or page address.
var ErrCorrupt = errors.New("copyback: page image failed verification")

// SegmentController is the slice of the Segment Writer copy-back needs to
// observe the active segment and trigger a rollover of an emptied journal.
type SegmentController interface {
	Generation() int64
	Tail() int64
	Rollover() (int64, error)
}

// Checkpoints reports the most recently durable checkpoint timestamp.
type Checkpoints interface {
	LastCheckpointTimestamp() (int64, bool)
}

// Config configures pacing and eligibility thresholds.
type Config struct {
	Interval              time.Duration
	MinimumUrgency        int
	SizeBase              int
	IORateMin             int
	IORateMax             int
	IORateSleepMultiplier float64
	CopierTimestampLimit  int64
	RolloverThreshold     int64
	SuspendCopying        bool
}

// Worker runs copy-back cycles against a shared Page Index under a
// caller-owned monitor.
type Worker struct {
	mu  *sync.Mutex
	idx *pageindex.Index

	resolver volume.Resolver
	cache    *jsegment.ReadCache
	segCtl   SegmentController
	cps      Checkpoints
	ioMeter  *iorate.Meter

	segDir, segBase string
	cfg             Config

	firstGeneration int64

	suspended atomic.Bool
	closed    atomic.Bool
	onError   func(error)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Worker. firstGeneration should be seeded from the Recovery
// Engine's result at journal startup.
func New(mu *sync.Mutex, idx *pageindex.Index, resolver volume.Resolver, cache *jsegment.ReadCache, segCtl SegmentController, cps Checkpoints, segDir, segBase string, firstGeneration int64, cfg Config) *Worker {
	w := &Worker{
		mu:              mu,
		idx:             idx,
		resolver:        resolver,
		cache:           cache,
		segCtl:          segCtl,
		cps:             cps,
		ioMeter:         iorate.New(),
		segDir:          segDir,
		segBase:         segBase,
		firstGeneration: firstGeneration,
		cfg:             cfg,
		stopCh:          make(chan struct{}),
	}
	w.suspended.Store(cfg.SuspendCopying)
	return w
}

// Start begins the ticker loop in its own goroutine. onError, if non-nil,
// receives every error a scheduled cycle returns; CopyBack's errors are
// returned directly to its caller instead.
func (w *Worker) Start(onError func(error)) {
	w.onError = onError
	w.wg.Add(1)
	go w.run()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Cycle(); err != nil && w.onError != nil {
				w.onError(err)
			}
		case <-w.stopCh:
			return
		}
	}
}

// Stop sets the closed flag, signals the loop to exit and waits for it to
// return. A scheduled cycle already running stops copying at the next page
// once the flag is set; an urgent CopyBack pass ignores the flag and runs
// to completion. Stop does not wait for a CopyBack call.
func (w *Worker) Stop() {
	w.closed.Store(true)
	close(w.stopCh)
	w.wg.Wait()
}

// Suspend hard-pauses scheduled cycles (suspendCopying). CopyBack still runs.
func (w *Worker) Suspend(suspend bool) {
	w.suspended.Store(suspend)
}

// Cycle runs one scheduled, non-urgent copy-back pass, gated by urgency and
// by the last durable checkpoint.
func (w *Worker) Cycle() error {
	if w.suspended.Load() {
		return nil
	}
	bound, ok := w.checkpointBound()
	if !ok {
		return nil
	}
	return w.run_(false, bound)
}

// CopyBack forces an urgent pass, bypassing the urgency threshold and the
// oldest-segment restriction. toTimestamp is accepted for interface
// symmetry with the original journal manager's copyBack(toTimestamp) entry
// point but does not relax the candidate bound: an entry's timestamp must
// still be below min(lastValidCheckpoint.timestamp, copierTimestampLimit),
// exactly as for a scheduled Cycle, since only checkpointed writes are
// crash-consistent. The original's copyBack(toTimestamp) never uses its
// parameter for the same reason.
func (w *Worker) CopyBack(toTimestamp int64) error {
	bound, ok := w.checkpointBound()
	if !ok {
		return nil
	}
	return w.run_(true, bound)
}

// checkpointBound computes min(lastValidCheckpoint.timestamp,
// copierTimestampLimit), the candidate-eligibility bound every cycle uses
// regardless of urgency.
func (w *Worker) checkpointBound() (int64, bool) {
	cpTS, ok := w.cps.LastCheckpointTimestamp()
	if !ok {
		return 0, false
	}
	bound := cpTS
	if w.cfg.CopierTimestampLimit < bound {
		bound = w.cfg.CopierTimestampLimit
	}
	return bound, true
}

func (w *Worker) run_(urgent bool, bound int64) error {
	w.mu.Lock()

	urgency := 10
	if !urgent {
		urgency = w.computeUrgencyLocked()
		if urgency < w.cfg.MinimumUrgency {
			w.mu.Unlock()
			return nil
		}
	}
	_ = urgency

	currentGeneration := w.segCtl.Generation()

	entries := w.idx.Snapshot()
	var candidates []pageindex.Entry
	var firstMissed *pageindex.FileAddress
	consider := func(addr pageindex.FileAddress) {
		if firstMissed == nil || w.less(addr, *firstMissed) {
			a := addr
			firstMissed = &a
		}
	}
	for _, e := range entries {
		gen, known := w.generationOf(e.Value.Segment)
		inOldest := known && gen < w.firstGeneration+1
		if e.Value.Timestamp < bound && (inOldest || urgent) {
			candidates = append(candidates, e)
		} else {
			consider(e.Value)
		}
	}
	w.mu.Unlock()

	touched := map[string]volume.Volume{}
	written := make([]pageindex.Entry, 0, len(candidates))

	for _, c := range candidates {
		if !urgent && w.closed.Load() {
			break
		}

		vol, ok := w.resolver.VolumeByPath(c.Key.Volume.Path)
		if !ok || vol.Closed() {
			consider(c.Value)
			continue
		}
		if vol.ID() != c.Key.Volume.ID {
			return fmt.Errorf("%w: volume id mismatch for %s", ErrCorrupt, c.Key.Volume.Path)
		}

		_, pa, err := w.readPA(c.Value)
		if err != nil {
			return fmt.Errorf("copyback: reading page image: %w", err)
		}
		if uint32(vol.BufferSize()) != pa.BufferSize || int64(pa.PageAddress) != c.Key.Page {
			return fmt.Errorf("%w: page/size mismatch for %s page %d", ErrCorrupt, c.Key.Volume.Path, c.Key.Page)
		}

		buf, err := jrecord.Reconstruct(pa)
		if err != nil {
			return fmt.Errorf("copyback: reconstructing page image: %w", err)
		}
		if err := vol.WritePage(c.Key.Page, buf); err != nil {
			return fmt.Errorf("copyback: writing page back: %w", err)
		}

		touched[vol.Path()] = vol
		written = append(written, c)

		rate := w.ioMeter.Update(1)
		sleepMs := w.cfg.IORateSleepMultiplier * float64(iorate.Clamp(rate, w.cfg.IORateMin, w.cfg.IORateMax))
		if sleepMs > 0 {
			time.Sleep(time.Duration(sleepMs) * time.Millisecond)
		}
	}

	for _, vol := range touched {
		if err := vol.Sync(); err != nil {
			return fmt.Errorf("copyback: syncing volume %s: %w", vol.Path(), err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, c := range written {
		if !w.idx.DeleteIfEqual(c.Key, c.Value) {
			consider(c.Value)
		}
	}

	if firstMissed == nil {
		if w.idx.Len() == 0 && w.segCtl.Tail() > w.cfg.RolloverThreshold {
			if newGen, err := w.segCtl.Rollover(); err == nil {
				currentGeneration = newGen
			}
		}
		if err := w.deleteSegmentsBefore(currentGeneration); err != nil {
			return err
		}
		w.firstGeneration = currentGeneration
	} else {
		missedGen, _ := w.generationOf(firstMissed.Segment)
		if err := w.deleteSegmentsBefore(missedGen); err != nil {
			return err
		}
		w.firstGeneration = missedGen
	}

	return nil
}

func (w *Worker) computeUrgencyLocked() int {
	files, _ := jsegment.List(w.segDir, w.segBase)
	segmentCount := len(files)
	extra := segmentCount - 1
	if extra < 0 {
		extra = 0
	}
	u := w.idx.Len()/w.cfg.SizeBase + extra
	if u < 10 {
		u = 10
	}
	return u
}

func (w *Worker) readPA(addr pageindex.FileAddress) (jrecord.Header, jrecord.PA, error) {
	hdrBytes, err := w.cache.ReadAt(addr.Segment, addr.Offset, jrecord.HeaderSize)
	if err != nil {
		return jrecord.Header{}, jrecord.PA{}, err
	}
	hdr, err := jrecord.DecodeHeader(hdrBytes)
	if err != nil {
		return jrecord.Header{}, jrecord.PA{}, err
	}
	full, err := w.cache.ReadAt(addr.Segment, addr.Offset, int(hdr.Length))
	if err != nil {
		return jrecord.Header{}, jrecord.PA{}, err
	}
	_, pa, err := jrecord.DecodePA(full)
	return hdr, pa, err
}

func (w *Worker) generationOf(path string) (int64, bool) {
	return jsegment.ParseGeneration(filepath.Base(path), w.segBase)
}

func (w *Worker) less(a, b pageindex.FileAddress) bool {
	ga, _ := w.generationOf(a.Segment)
	gb, _ := w.generationOf(b.Segment)
	if ga != gb {
		return ga < gb
	}
	return a.Offset < b.Offset
}

func (w *Worker) deleteSegmentsBefore(limit int64) error {
	files, err := jsegment.List(w.segDir, w.segBase)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.Generation >= limit {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		w.cache.Forget(f.Path)
	}
	return nil
}
