package jsegment

import (
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"journalcore/internal/handle"
)

// Writer is the append-only Segment Writer: a single mapped write window
// backed by the active segment file, plus rollover to a fresh generation
// when the active segment cannot fit another window.
//
// The window always covers exactly WriteBufferSize bytes of the segment
// file, at a file offset that is a multiple of WriteBufferSize — this
// keeps every mmap call page-aligned without the writer needing to reason
// about the OS page size directly.
type Writer struct {
	mu sync.Mutex

	cfg      Config
	registry *handle.Registry

	file             *os.File
	generation       int64
	bufferBaseOffset int64 // file offset where the current window starts
	window           []byte
	windowPos        int64 // bytes used within the current window
}

// Open opens (creating if necessary) the segment file at generation,
// truncates it to tailLength (discarding anything recovery deemed
// invalid beyond that point), and maps the window that contains the tail.
func Open(cfg Config, registry *handle.Registry, generation int64, tailLength int64) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.Dir, FileName(cfg.Base, generation))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(tailLength); err != nil {
		f.Close()
		return nil, err
	}

	w := &Writer{cfg: cfg, registry: registry, file: f, generation: generation}
	windowIndex := tailLength / cfg.WriteBufferSize
	base := windowIndex * cfg.WriteBufferSize
	if err := w.mapWindowLocked(base); err != nil {
		f.Close()
		return nil, err
	}
	w.windowPos = tailLength - base
	return w, nil
}

// mapWindowLocked (re)maps the window at file offset base, growing the
// underlying file if needed. Caller must hold mu.
func (w *Writer) mapWindowLocked(base int64) error {
	required := base + w.cfg.WriteBufferSize
	fi, err := w.file.Stat()
	if err != nil {
		return err
	}
	if fi.Size() < required {
		if err := w.file.Truncate(required); err != nil {
			return err
		}
	}
	data, err := unix.Mmap(int(w.file.Fd()), base, int(w.cfg.WriteBufferSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	w.window = data
	w.bufferBaseOffset = base
	w.windowPos = 0
	return nil
}

// Generation reports the active segment's generation number.
func (w *Writer) Generation() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Tail reports the logical end of the active segment's written data.
func (w *Writer) Tail() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bufferBaseOffset + w.windowPos
}

// Path reports the active segment's file path.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Name()
}

// Registry returns the handle registry governing the active segment.
func (w *Writer) Registry() *handle.Registry { return w.registry }

// Reserve guarantees the next size bytes can be written contiguously by
// forcing and remapping the write window (and, if the segment itself has
// no room left, rolling over to a new generation). rolled reports whether
// a new segment was created, in which case the caller must re-emit every
// IV/IT record before writing further PA/IT records.
func (w *Writer) Reserve(size int64) (rolled bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if size > w.cfg.WriteBufferSize {
		return false, ErrRecordTooLarge
	}
	if w.windowPos+size <= w.cfg.WriteBufferSize {
		return false, nil
	}

	if err := w.forceLocked(); err != nil {
		return false, err
	}
	if err := unix.Munmap(w.window); err != nil {
		return false, err
	}
	w.window = nil

	nextBase := w.bufferBaseOffset + w.cfg.WriteBufferSize
	if nextBase+w.cfg.WriteBufferSize > w.cfg.MaxFileSize {
		if err := w.rolloverLocked(); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := w.mapWindowLocked(nextBase); err != nil {
		return false, err
	}
	return false, nil
}

// Append writes b into the current window. Callers must have already
// reserved enough room with Reserve. Returns the absolute file offset at
// which b was written.
func (w *Writer) Append(b []byte) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.windowPos+int64(len(b)) > w.cfg.WriteBufferSize {
		return 0, ErrRecordTooLarge
	}
	off := w.bufferBaseOffset + w.windowPos
	copy(w.window[w.windowPos:], b)
	w.windowPos += int64(len(b))
	return off, nil
}

// Force flushes the current mapped window to stable storage.
func (w *Writer) Force() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.forceLocked()
}

func (w *Writer) forceLocked() error {
	if w.window == nil {
		return nil
	}
	return unix.Msync(w.window, unix.MS_SYNC)
}

// Rollover truncates the active segment to its logical length, forces and
// closes it (deleting it first if it turned out to be empty), then creates
// generation+1 and maps a fresh window at offset 0. The handle registry is
// cleared so the next append re-emits every handle it uses.
func (w *Writer) Rollover() (newGeneration int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rolloverLocked(); err != nil {
		return 0, err
	}
	return w.generation, nil
}

func (w *Writer) rolloverLocked() error {
	if err := w.forceLocked(); err != nil {
		return err
	}
	tail := w.bufferBaseOffset + w.windowPos
	if w.window != nil {
		if err := unix.Munmap(w.window); err != nil {
			return err
		}
		w.window = nil
	}
	if err := w.file.Truncate(tail); err != nil {
		return err
	}
	path := w.file.Name()
	if err := w.file.Close(); err != nil {
		return err
	}
	if tail == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	w.registry.Clear()
	w.generation++

	newPath := filepath.Join(w.cfg.Dir, FileName(w.cfg.Base, w.generation))
	f, err := os.OpenFile(newPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	return w.mapWindowLocked(0)
}

// Close forces, truncates to the logical tail, and closes the active
// segment file without deleting it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.forceLocked(); err != nil {
		return err
	}
	tail := w.bufferBaseOffset + w.windowPos
	if w.window != nil {
		if err := unix.Munmap(w.window); err != nil {
			return err
		}
		w.window = nil
	}
	if err := w.file.Truncate(tail); err != nil {
		return err
	}
	return w.file.Close()
}
