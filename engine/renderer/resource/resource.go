package resource

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/descriptor"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// Object is anything backed by a tracked GPU resource.
type Object interface {
	Base() *Resource
	Destroy()
}

// Resource pairs a native allocation with the state the GPU last saw it in
// and the descriptors created for it.
type Resource struct {
	id        core.Identifier
	name      string
	native    metadata.NativeResource
	device    metadata.NativeDevice
	allocator *descriptor.Allocator

	currentState metadata.ResourceState
	views        map[metadata.DescriptorKind][]metadata.Descriptor
	destroyed    bool
}

func newResource(name string, native metadata.NativeResource, device metadata.NativeDevice, allocator *descriptor.Allocator, initialState metadata.ResourceState) Resource {
	native.SetDebugName(name)
	return Resource{
		id:           core.NewIdentifier(),
		name:         name,
		native:       native,
		device:       device,
		allocator:    allocator,
		currentState: initialState,
		views:        make(map[metadata.DescriptorKind][]metadata.Descriptor),
	}
}

func (r *Resource) Base() *Resource {
	return r
}

func (r *Resource) ID() core.Identifier {
	return r.id
}

func (r *Resource) Name() string {
	return r.name
}

func (r *Resource) SetDebugName(name string) {
	r.name = name
	r.native.SetDebugName(name)
}

func (r *Resource) Native() metadata.NativeResource {
	return r.native
}

func (r *Resource) Destroyed() bool {
	return r.destroyed
}

func (r *Resource) CurrentState() metadata.ResourceState {
	return r.currentState
}

// ApplyTransition records after as the current state and returns the state
// the resource was in. It is the only way the tracked state changes, and
// callers must emit the matching native barrier.
func (r *Resource) ApplyTransition(after metadata.ResourceState) metadata.ResourceState {
	before := r.currentState
	r.currentState = after
	return before
}

// PushView appends d to the views of kind and returns its position.
func (r *Resource) PushView(kind metadata.DescriptorKind, d metadata.Descriptor) int {
	r.views[kind] = append(r.views[kind], d)
	return len(r.views[kind]) - 1
}

func (r *Resource) HasView(kind metadata.DescriptorKind, index int) bool {
	views, ok := r.views[kind]
	return ok && index >= 0 && index < len(views)
}

func (r *Resource) GetView(kind metadata.DescriptorKind, index int) metadata.Descriptor {
	core.Assert(r.HasView(kind, index), "HasView(kind, index)", core.ErrInvalidView,
		"resource %q has no %s view at %d (%d present)", r.name, kind, index, len(r.views[kind]))
	return r.views[kind][index]
}

// ViewCount returns how many views of kind were pushed.
func (r *Resource) ViewCount(kind metadata.DescriptorKind) int {
	return len(r.views[kind])
}

// ReleaseViews returns every descriptor to the allocator.
func (r *Resource) ReleaseViews() {
	for kind, views := range r.views {
		for _, d := range views {
			r.allocator.Deallocate(d)
		}
		delete(r.views, kind)
	}
}

// Destroy releases the views and the native allocation. The caller must
// make sure no queued GPU work still references the resource.
func (r *Resource) Destroy() {
	core.Assert(!r.destroyed, "!destroyed", nil, "resource %q destroyed twice", r.name)
	r.ReleaseViews()
	r.device.DestroyResource(r.native)
	r.destroyed = true
}

// createView allocates a descriptor, writes the view into it and records it.
func (r *Resource) createView(kind metadata.DescriptorKind, view metadata.ViewDesc) int {
	d := r.allocator.Allocate(kind.HeapKind())
	if err := r.device.CreateView(kind, r.native, view, d); err != nil {
		core.Fatal(err, "failed to create %s view of %q", kind, r.name)
	}
	return r.PushView(kind, d)
}
