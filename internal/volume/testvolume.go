package volume

import "sync"

// MemVolume is an in-memory Volume used by other packages' tests to
// exercise copy-back and page-read verification without a real B-Tree
// volume file. Grounded on the small in-memory fixtures the teacher corpus
// uses for sabotage/recovery tests.
type MemVolume struct {
	mu         sync.Mutex
	path       string
	id         uint64
	bufferSize int
	pages      map[int64][]byte
	closed     bool
	syncCount  int
}

// NewMemVolume creates a MemVolume with the given identity and page size.
func NewMemVolume(path string, id uint64, bufferSize int) *MemVolume {
	return &MemVolume{path: path, id: id, bufferSize: bufferSize, pages: make(map[int64][]byte)}
}

func (v *MemVolume) Path() string { return v.path }
func (v *MemVolume) ID() uint64   { return v.id }
func (v *MemVolume) BufferSize() int {
	return v.bufferSize
}

func (v *MemVolume) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *MemVolume) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

func (v *MemVolume) WritePage(page int64, buf []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	v.pages[page] = cp
	return nil
}

func (v *MemVolume) Sync() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.syncCount++
	return nil
}

// SyncCount reports how many times Sync has been called, for assertions.
func (v *MemVolume) SyncCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.syncCount
}

// Page returns the last page written at page, for assertions.
func (v *MemVolume) Page(page int64) ([]byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.pages[page]
	return b, ok
}

// MemResolver is a Resolver backed by a fixed set of MemVolumes.
type MemResolver struct {
	mu      sync.Mutex
	volumes map[string]Volume
}

// NewMemResolver creates a Resolver over the given volumes, keyed by path.
func NewMemResolver(volumes ...*MemVolume) *MemResolver {
	r := &MemResolver{volumes: make(map[string]Volume)}
	for _, v := range volumes {
		r.volumes[v.Path()] = v
	}
	return r
}

func (r *MemResolver) VolumeByPath(path string) (Volume, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.volumes[path]
	return v, ok
}

// Add registers an additional volume.
func (r *MemResolver) Add(v *MemVolume) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumes[v.Path()] = v
}
