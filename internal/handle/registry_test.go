package handle

import "testing"

func TestHandleForVolume_NewThenCached(t *testing.T) {
	r := New(DefaultCapacity)
	desc := VolumeDescriptor{Path: "/vol/a", ID: 1}

	h1, isNew1 := r.HandleForVolume(desc)
	if !isNew1 {
		t.Fatalf("expected first lookup to be new")
	}
	h2, isNew2 := r.HandleForVolume(desc)
	if isNew2 {
		t.Fatalf("expected second lookup to be cached")
	}
	if h1 != h2 {
		t.Fatalf("handle changed across lookups: %d vs %d", h1, h2)
	}

	got, ok := r.VolumeForHandle(h1)
	if !ok || got != desc {
		t.Fatalf("VolumeForHandle(%d) = %+v, %v", h1, got, ok)
	}
}

func TestHandleForVolume_DistinctDescriptorsGetDistinctHandles(t *testing.T) {
	r := New(DefaultCapacity)
	a := VolumeDescriptor{Path: "/vol/a", ID: 1}
	b := VolumeDescriptor{Path: "/vol/a", ID: 2} // same path, different id

	ha, _ := r.HandleForVolume(a)
	hb, _ := r.HandleForVolume(b)
	if ha == hb {
		t.Fatalf("expected distinct handles for distinct (path,id) pairs")
	}
}

func TestClear_ForcesReEmit(t *testing.T) {
	r := New(DefaultCapacity)
	desc := VolumeDescriptor{Path: "/vol/a", ID: 1}
	h1, _ := r.HandleForVolume(desc)

	r.Clear()

	if _, ok := r.VolumeForHandle(h1); ok {
		t.Fatalf("expected handle to be forgotten after Clear")
	}
	_, isNew := r.HandleForVolume(desc)
	if !isNew {
		t.Fatalf("expected re-lookup after Clear to require a new IV record")
	}
}

func TestCapacityLimit_ClearsBothMaps(t *testing.T) {
	r := New(2)
	d1 := VolumeDescriptor{Path: "/vol/1", ID: 1}
	d2 := VolumeDescriptor{Path: "/vol/2", ID: 2}
	d3 := VolumeDescriptor{Path: "/vol/3", ID: 3}

	h1, _ := r.HandleForVolume(d1)
	_, _ = r.HandleForVolume(d2)
	// Registry is now at capacity; the next new descriptor must trigger a clear.
	_, isNew3 := r.HandleForVolume(d3)
	if !isNew3 {
		t.Fatalf("expected d3 to be newly issued")
	}
	if _, ok := r.VolumeForHandle(h1); ok {
		t.Fatalf("expected capacity clear to have forgotten earlier handles")
	}
}

func TestInstallVolume_AdvancesCounter(t *testing.T) {
	r := New(DefaultCapacity)
	r.InstallVolume(10, VolumeDescriptor{Path: "/vol/a", ID: 1})

	h, isNew := r.HandleForVolume(VolumeDescriptor{Path: "/vol/b", ID: 2})
	if !isNew {
		t.Fatalf("expected new handle")
	}
	if h <= 10 {
		t.Fatalf("expected next handle to be allocated above installed handle 10, got %d", h)
	}
}

func TestHandleForTree(t *testing.T) {
	r := New(DefaultCapacity)
	desc := TreeDescriptor{VolumeHandle: 1, TreeName: "idx"}

	h1, isNew1 := r.HandleForTree(desc)
	if !isNew1 {
		t.Fatalf("expected first lookup to be new")
	}
	got, ok := r.TreeForHandle(h1)
	if !ok || got != desc {
		t.Fatalf("TreeForHandle(%d) = %+v, %v", h1, got, ok)
	}
}
