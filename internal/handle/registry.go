// Package handle implements the journal's Handle Registry: the bidirectional
// mapping between small process-local integer handles and the volume/tree
// identities referenced by journal records. Handles are process-local and
// segment-scoped — every segment is self-describing, so recovery never needs
// to carry handle state across segment boundaries.
package handle

import "sync"

// VolumeDescriptor identifies a volume. Equality requires both Path and ID
// to match; Path alone gives a deterministic ordering for copy-back.
type VolumeDescriptor struct {
	Path string
	ID   uint64
}

// TreeDescriptor identifies a tree within a volume.
type TreeDescriptor struct {
	VolumeHandle uint32
	TreeName     string
}

// DefaultCapacity is the number of distinct handles (volume or tree) a
// Registry holds before both directional maps are cleared, forcing the
// next writer to re-emit IV/IT records.
const DefaultCapacity = 4096

// Registry is the Handle Registry described by the journal's data model: two
// maps in lockstep (descriptor -> handle, handle -> descriptor) plus a
// monotonic counter that issues new handles.
type Registry struct {
	mu       sync.Mutex
	capacity int
	next     uint32

	volToHandle map[VolumeDescriptor]uint32
	handleToVol map[uint32]VolumeDescriptor

	treeToHandle map[TreeDescriptor]uint32
	handleToTree map[uint32]TreeDescriptor
}

// New creates a Registry that clears itself once it holds capacity distinct
// handles (volume and tree handles share one counter and one capacity limit,
// matching the journal's single monotonic handle counter).
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Registry{capacity: capacity}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.volToHandle = make(map[VolumeDescriptor]uint32)
	r.handleToVol = make(map[uint32]VolumeDescriptor)
	r.treeToHandle = make(map[TreeDescriptor]uint32)
	r.handleToTree = make(map[uint32]TreeDescriptor)
}

// Clear empties both directional maps without resetting the handle counter.
// Called on segment rollover so the new segment re-emits every handle it
// uses, even ones the prior segment already emitted.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

// HandleForVolume returns the handle for desc, allocating and installing a
// new one if desc has not yet been seen. isNew is true when the caller must
// emit an IV record before referencing the handle.
func (r *Registry) HandleForVolume(desc VolumeDescriptor) (h uint32, isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.volToHandle[desc]; ok {
		return h, false
	}
	r.maybeClearLocked()
	h = r.next
	r.next++
	r.volToHandle[desc] = h
	r.handleToVol[h] = desc
	return h, true
}

// HandleForTree is HandleForVolume's counterpart for trees.
func (r *Registry) HandleForTree(desc TreeDescriptor) (h uint32, isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.treeToHandle[desc]; ok {
		return h, false
	}
	r.maybeClearLocked()
	h = r.next
	r.next++
	r.treeToHandle[desc] = h
	r.handleToTree[h] = desc
	return h, true
}

// maybeClearLocked enforces the capacity invariant: once the registry holds
// capacity handles (volume and tree handles counted together), every map is
// cleared before the next handle is issued. Called with mu held.
func (r *Registry) maybeClearLocked() {
	if len(r.handleToVol)+len(r.handleToTree) >= r.capacity {
		r.reset()
	}
}

// InstallVolume installs a known (handle, desc) pair without allocating a
// new handle. Used by recovery, which reads handles off disk rather than
// minting them.
func (r *Registry) InstallVolume(h uint32, desc VolumeDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volToHandle[desc] = h
	r.handleToVol[h] = desc
	if h >= r.next {
		r.next = h + 1
	}
}

// InstallTree is InstallVolume's counterpart for trees.
func (r *Registry) InstallTree(h uint32, desc TreeDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.treeToHandle[desc] = h
	r.handleToTree[h] = desc
	if h >= r.next {
		r.next = h + 1
	}
}

// VolumeForHandle resolves a handle installed by IV or HandleForVolume.
func (r *Registry) VolumeForHandle(h uint32) (VolumeDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.handleToVol[h]
	return d, ok
}

// TreeForHandle resolves a handle installed by IT or HandleForTree.
func (r *Registry) TreeForHandle(h uint32) (TreeDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.handleToTree[h]
	return d, ok
}
