package descriptor

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// Capacities holds the fixed size of every descriptor table.
type Capacities [metadata.HeapKindCount]uint32

// CapacitiesFromConfig maps the [descriptors] section onto table sizes.
func CapacitiesFromConfig(cfg core.DescriptorConfig) Capacities {
	var c Capacities
	c[metadata.HeapKindRTV] = cfg.RenderTarget
	c[metadata.HeapKindDSV] = cfg.DepthStencil
	c[metadata.HeapKindCBVSRVUAV] = cfg.CBVSRVUAV
	c[metadata.HeapKindSampler] = cfg.Sampler
	return c
}

type table struct {
	heap          metadata.DescriptorHeap
	highWaterMark uint32
	freeStack     []uint32
	// only populated with validation on
	live []bool
}

// Allocator hands out bindless descriptor slots. There is one table per
// heap kind, sized once at creation. Released slots are reused last in
// first out before the high water mark grows.
type Allocator struct {
	logger     *core.Logger
	validation bool
	tables     [metadata.HeapKindCount]table
}

func NewAllocator(device metadata.NativeDevice, capacities Capacities, validation bool, logger *core.Logger) (*Allocator, error) {
	a := &Allocator{
		logger:     logger.Named("descriptor"),
		validation: validation,
	}
	for kind := metadata.HeapKind(0); kind < metadata.HeapKindCount; kind++ {
		capacity := capacities[kind]
		if capacity == 0 {
			return nil, fmt.Errorf("%w: %s table has zero capacity", core.ErrInvalidConfig, kind)
		}
		heap, err := device.CreateDescriptorHeap(kind, capacity)
		if err != nil {
			a.logger.Error("failed to create descriptor heap", "kind", kind, "err", err)
			return nil, fmt.Errorf("failed to create %s descriptor heap: %w", kind, err)
		}
		a.tables[kind] = table{
			heap:      heap,
			freeStack: make([]uint32, 0, capacity),
		}
		if validation {
			a.tables[kind].live = make([]bool, capacity)
		}
		a.logger.Debug("descriptor heap created", "kind", kind, "capacity", capacity, "shaderVisible", heap.ShaderVisible())
	}
	return a, nil
}

// Allocate returns a free slot of the given table. Running out of slots is
// fatal.
func (a *Allocator) Allocate(kind metadata.HeapKind) metadata.Descriptor {
	t := &a.tables[kind]

	var index uint32
	if n := len(t.freeStack); n > 0 {
		index = t.freeStack[n-1]
		t.freeStack = t.freeStack[:n-1]
	} else {
		core.Assert(t.highWaterMark < t.heap.Capacity(), "highWaterMark < capacity", core.ErrDescriptorTableFull,
			"%s descriptor table is full (capacity %d)", kind, t.heap.Capacity())
		index = t.highWaterMark
		t.highWaterMark++
	}
	if t.live != nil {
		t.live[index] = true
	}

	d := metadata.Descriptor{
		Heap:      kind,
		Index:     index,
		CPUHandle: t.heap.CPUHandle(index),
	}
	if t.heap.ShaderVisible() {
		d.GPUHandle = t.heap.GPUHandle(index)
	}
	return d
}

// Deallocate returns d to its table. With validation enabled, releasing a
// slot twice or one that was never handed out is fatal.
func (a *Allocator) Deallocate(d metadata.Descriptor) {
	t := &a.tables[d.Heap]
	if t.live != nil {
		core.Assert(d.Index < t.highWaterMark, "index < highWaterMark", nil,
			"%s descriptor %d was never allocated", d.Heap, d.Index)
		core.Assert(t.live[d.Index], "live[index]", nil,
			"%s descriptor %d released twice", d.Heap, d.Index)
		t.live[d.Index] = false
	}
	t.freeStack = append(t.freeStack, d.Index)
}

func (a *Allocator) Heap(kind metadata.HeapKind) metadata.DescriptorHeap {
	return a.tables[kind].heap
}

func (a *Allocator) HighWaterMark(kind metadata.HeapKind) uint32 {
	return a.tables[kind].highWaterMark
}

func (a *Allocator) FreeCount(kind metadata.HeapKind) uint32 {
	return uint32(len(a.tables[kind].freeStack))
}

// LiveCount is the number of slots currently handed out.
func (a *Allocator) LiveCount(kind metadata.HeapKind) uint32 {
	t := &a.tables[kind]
	return t.highWaterMark - uint32(len(t.freeStack))
}

func (a *Allocator) Capacity(kind metadata.HeapKind) uint32 {
	return a.tables[kind].heap.Capacity()
}
