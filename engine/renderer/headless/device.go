// Package headless implements a native device that never touches a GPU.
// Every command is recorded, copies are replayed against host memory and
// fences complete as soon as they are signaled.
package headless

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/math"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

const (
	addressBase      = 0x1_0000_0000
	addressAlignment = 256
	descriptorStride = 32
)

type Option func(*Device)

// WithRowPitchAlignment overrides the 256 byte row pitch of texture copies.
func WithRowPitchAlignment(alignment uint32) Option {
	return func(d *Device) {
		d.features.TextureRowPitchAlignment = alignment
	}
}

func WithRaytracing(enabled bool) Option {
	return func(d *Device) {
		d.features.Raytracing = enabled
	}
}

// WithPrebuildInfo replaces the deterministic prebuild size model.
func WithPrebuildInfo(fn func(metadata.AccelerationStructureInputs) metadata.PrebuildInfo) Option {
	return func(d *Device) {
		d.prebuild = fn
	}
}

// WithDeferredSignals keeps signaled fence values pending until a Wait
// reaches them, so callers can observe work in flight.
func WithDeferredSignals() Option {
	return func(d *Device) {
		d.deferredSignals = true
	}
}

// ViewRecord is a view written into a descriptor slot.
type ViewRecord struct {
	Kind     metadata.DescriptorKind
	Resource metadata.NativeResource
	Desc     metadata.ViewDesc
}

type Device struct {
	name            string
	features        metadata.DeviceFeatures
	prebuild        func(metadata.AccelerationStructureInputs) metadata.PrebuildInfo
	deferredSignals bool

	nextID      uint64
	nextAddress uint64
	heaps       [metadata.HeapKindCount]*DescriptorHeap
	queues      [3]*Queue
	history     []Command
	removed     bool
	closed      bool
	live        map[uint64]metadata.NativeResource
}

func NewDevice(opts ...Option) *Device {
	d := &Device{
		name: "headless",
		features: metadata.DeviceFeatures{
			Raytracing:                true,
			TextureRowPitchAlignment:  metadata.DefaultTextureRowPitchAlignment,
			TexturePlacementAlignment: metadata.DefaultTexturePlacementAlignment,
			ConstantBufferAlignment:   metadata.DefaultConstantBufferAlignment,
		},
		nextAddress: addressBase,
		live:        make(map[uint64]metadata.NativeResource),
	}
	d.prebuild = d.defaultPrebuildInfo
	for _, opt := range opts {
		opt(d)
	}
	for _, kind := range []metadata.QueueKind{metadata.QueueKindGraphics, metadata.QueueKindCompute, metadata.QueueKindCopy} {
		d.queues[kind] = &Queue{device: d, kind: kind}
	}
	return d
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Features() metadata.DeviceFeatures {
	return d.features
}

// RemoveDevice makes every later submission, signal and wait fail with
// core.ErrDeviceRemoved.
func (d *Device) RemoveDevice() {
	d.removed = true
}

// History returns every command submitted so far, in submission order.
func (d *Device) History() []Command {
	return d.history
}

// LiveResources is the number of resources created and not yet destroyed.
func (d *Device) LiveResources() int {
	return len(d.live)
}

func (d *Device) DescriptorHeap(kind metadata.HeapKind) *DescriptorHeap {
	return d.heaps[kind]
}

func (d *Device) CreateDescriptorHeap(kind metadata.HeapKind, capacity uint32) (metadata.DescriptorHeap, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("%w: zero capacity %s heap", core.ErrInvalidConfig, kind)
	}
	h := &DescriptorHeap{
		kind:     kind,
		capacity: capacity,
		cpuBase:  uint64(kind+1) << 32,
		views:    make(map[uint32]ViewRecord),
	}
	if kind.ShaderVisible() {
		h.gpuBase = uint64(kind+1) << 40
	}
	d.heaps[kind] = h
	return h, nil
}

func (d *Device) allocateAddress(size uint64) uint64 {
	address := d.nextAddress
	d.nextAddress = math.AlignUp(d.nextAddress+size, addressAlignment)
	return address
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.NativeResource, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size", desc.Name)
	}
	if desc.Heap == metadata.MemoryHeapUpload && desc.InitialState != metadata.ResourceStateGenericRead {
		return nil, fmt.Errorf("upload buffer %q must start in %s, got %s", desc.Name, metadata.ResourceStateGenericRead, desc.InitialState)
	}
	d.nextID++
	b := &Buffer{
		id:      d.nextID,
		name:    desc.Name,
		desc:    desc,
		address: d.allocateAddress(desc.Size),
		data:    make([]byte, desc.Size),
	}
	d.live[b.id] = b
	return b, nil
}

func (d *Device) CreateTexture(desc metadata.TextureDesc) (metadata.NativeResource, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.ArraySize == 0 || desc.MipLevels == 0 {
		return nil, fmt.Errorf("texture %q has a zero extent", desc.Name)
	}
	if desc.Format.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("texture %q has unsupported format %s", desc.Name, desc.Format)
	}
	d.nextID++
	t := &Texture{
		id:           d.nextID,
		name:         desc.Name,
		desc:         desc,
		subresources: make([][]byte, desc.SubresourceCount()),
	}
	for i := range t.subresources {
		mip := uint32(i) % desc.MipLevels
		w, h := metadata.MipExtent(desc.Width, mip), metadata.MipExtent(desc.Height, mip)
		t.subresources[i] = make([]byte, w*h*desc.Format.BytesPerPixel())
	}
	d.live[t.id] = t
	return t, nil
}

func (d *Device) DestroyResource(res metadata.NativeResource) {
	switch r := res.(type) {
	case *Buffer:
		r.destroyed = true
		delete(d.live, r.id)
	case *Texture:
		r.destroyed = true
		delete(d.live, r.id)
	}
}

func (d *Device) CreateView(kind metadata.DescriptorKind, res metadata.NativeResource, view metadata.ViewDesc, dst metadata.Descriptor) error {
	h := d.heaps[dst.Heap]
	if h == nil {
		return fmt.Errorf("no %s heap", dst.Heap)
	}
	if kind.HeapKind() != dst.Heap {
		return fmt.Errorf("%s view cannot live in a %s heap", kind, dst.Heap)
	}
	if dst.Index >= h.capacity {
		return fmt.Errorf("descriptor %d out of range of %s heap", dst.Index, dst.Heap)
	}
	h.views[dst.Index] = ViewRecord{Kind: kind, Resource: res, Desc: view}
	return nil
}

func (d *Device) CopyableFootprints(desc metadata.TextureDesc, first, count uint32, baseOffset uint64) ([]metadata.SubresourceFootprint, uint64) {
	return metadata.LinearFootprints(desc, first, count, baseOffset,
		d.features.TextureRowPitchAlignment, d.features.TexturePlacementAlignment)
}

func (d *Device) AccelerationStructurePrebuildInfo(inputs metadata.AccelerationStructureInputs) metadata.PrebuildInfo {
	return d.prebuild(inputs)
}

// defaultPrebuildInfo sizes bottom levels by primitive count and top levels
// by instance count. A bottom level without primitives has zero size.
func (d *Device) defaultPrebuildInfo(inputs metadata.AccelerationStructureInputs) metadata.PrebuildInfo {
	var result uint64
	switch inputs.Type {
	case metadata.AccelerationStructureTypeBottomLevel:
		var primitives uint64
		for _, g := range inputs.Geometries {
			switch g.Type {
			case metadata.GeometryTypeTriangles:
				if g.Triangles.IndexCount > 0 {
					primitives += uint64(g.Triangles.IndexCount / 3)
				} else {
					primitives += uint64(g.Triangles.VertexCount / 3)
				}
			case metadata.GeometryTypeProceduralAABBs:
				primitives += g.AABBs.Count
			}
		}
		result = math.AlignUp(primitives*64, uint64(addressAlignment))
	case metadata.AccelerationStructureTypeTopLevel:
		result = math.AlignUp(1024+uint64(inputs.InstanceCount)*128, uint64(addressAlignment))
	}
	return metadata.PrebuildInfo{
		ResultDataMaxSize:     result,
		ScratchDataSize:       math.AlignUp(result/2, uint64(addressAlignment)),
		UpdateScratchDataSize: math.AlignUp(result/4, uint64(addressAlignment)),
	}
}

func (d *Device) Queue(kind metadata.QueueKind) metadata.NativeQueue {
	return d.queues[kind]
}

func (d *Device) CreateCommandList(kind metadata.QueueKind) (metadata.NativeCommandList, error) {
	if d.closed {
		return nil, fmt.Errorf("device closed")
	}
	return &CommandList{kind: kind}, nil
}

func (d *Device) Close() error {
	d.closed = true
	return nil
}

// execute replays the copies of a submitted list against host memory.
func (d *Device) execute(cl *CommandList) {
	for _, c := range cl.commands {
		d.history = append(d.history, c)
		switch c.Op {
		case OpCopyBufferRegion:
			dst, src := c.Dst.(*Buffer), c.Src.(*Buffer)
			copy(dst.data[c.DstOffset:c.DstOffset+c.Size], src.data[c.SrcOffset:c.SrcOffset+c.Size])
		case OpCopyTextureRegion:
			dst, src := c.Dst.(*Texture), c.Src.(*Buffer)
			fp := c.Footprint
			out := dst.subresources[c.Subresource]
			for row := uint32(0); row < fp.NumRows; row++ {
				from := fp.Offset + uint64(row)*uint64(fp.RowPitch)
				to := uint64(row) * fp.RowSizeInBytes
				copy(out[to:to+fp.RowSizeInBytes], src.data[from:from+fp.RowSizeInBytes])
			}
		}
	}
}

// DescriptorHeap hands out synthetic handles and remembers every view.
type DescriptorHeap struct {
	kind     metadata.HeapKind
	capacity uint32
	cpuBase  uint64
	gpuBase  uint64
	views    map[uint32]ViewRecord
}

func (h *DescriptorHeap) Kind() metadata.HeapKind { return h.kind }
func (h *DescriptorHeap) Capacity() uint32 { return h.capacity }
func (h *DescriptorHeap) ShaderVisible() bool { return h.kind.ShaderVisible() }

func (h *DescriptorHeap) CPUHandle(index uint32) uint64 {
	return h.cpuBase + uint64(index)*descriptorStride
}

func (h *DescriptorHeap) GPUHandle(index uint32) uint64 {
	if h.gpuBase == 0 {
		return 0
	}
	return h.gpuBase + uint64(index)*descriptorStride
}

// View returns the view last written into slot index.
func (h *DescriptorHeap) View(index uint32) (ViewRecord, bool) {
	v, ok := h.views[index]
	return v, ok
}
