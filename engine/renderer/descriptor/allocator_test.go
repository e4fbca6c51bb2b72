package descriptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/headless"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

func newTestAllocator(t *testing.T, capacity uint32) *Allocator {
	t.Helper()
	caps := Capacities{capacity, capacity, capacity, capacity}
	a, err := NewAllocator(headless.NewDevice(), caps, true, core.NewNopLogger())
	require.NoError(t, err)
	return a
}

func fatalError(t *testing.T, fn func()) (fe *core.FatalError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fatal error")
		var ok bool
		fe, ok = r.(*core.FatalError)
		require.True(t, ok, "panic value %T is not *core.FatalError", r)
	}()
	fn()
	return nil
}

func TestAllocatorConservation(t *testing.T) {
	a := newTestAllocator(t, 16)
	kind := metadata.HeapKindCBVSRVUAV

	var live []metadata.Descriptor
	for i := 0; i < 10; i++ {
		live = append(live, a.Allocate(kind))
	}
	for _, d := range live[:4] {
		a.Deallocate(d)
	}
	live = live[4:]
	for i := 0; i < 3; i++ {
		live = append(live, a.Allocate(kind))
	}

	assert.Equal(t, uint32(len(live)), a.LiveCount(kind))
	assert.Equal(t, a.HighWaterMark(kind), a.LiveCount(kind)+a.FreeCount(kind))

	seen := make(map[uint32]bool)
	for _, d := range live {
		assert.False(t, seen[d.Index], "index %d handed out twice", d.Index)
		seen[d.Index] = true
	}
}

func TestAllocatorReusesLastFreed(t *testing.T) {
	a := newTestAllocator(t, 8)
	kind := metadata.HeapKindSampler

	d0 := a.Allocate(kind)
	d1 := a.Allocate(kind)
	d2 := a.Allocate(kind)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{d0.Index, d1.Index, d2.Index})

	a.Deallocate(d0)
	a.Deallocate(d2)

	assert.Equal(t, uint32(2), a.Allocate(kind).Index)
	assert.Equal(t, uint32(0), a.Allocate(kind).Index)
	assert.Equal(t, uint32(3), a.Allocate(kind).Index)
	assert.Equal(t, uint32(4), a.HighWaterMark(kind))
}

func TestAllocateThenDeallocateKeepsCounts(t *testing.T) {
	a := newTestAllocator(t, 8)
	kind := metadata.HeapKindCBVSRVUAV

	a.Allocate(kind)
	a.Deallocate(a.Allocate(kind))
	free, mark := a.FreeCount(kind), a.HighWaterMark(kind)
	require.Equal(t, uint32(1), free)

	for i := 0; i < 5; i++ {
		a.Deallocate(a.Allocate(kind))
		assert.Equal(t, free, a.FreeCount(kind), "round %d", i)
		assert.Equal(t, mark, a.HighWaterMark(kind), "round %d", i)
	}
}

func TestReallocationIsLastFreedFirst(t *testing.T) {
	a := newTestAllocator(t, 8)
	kind := metadata.HeapKindRTV
	const k = 5

	var first []uint32
	for i := 0; i < k; i++ {
		first = append(first, a.Allocate(kind).Index)
	}
	freed := []uint32{first[3], first[0], first[4], first[1], first[2]}
	for _, index := range freed {
		a.Deallocate(metadata.Descriptor{Heap: kind, Index: index})
	}

	var again []uint32
	for i := 0; i < k; i++ {
		again = append(again, a.Allocate(kind).Index)
	}
	assert.Equal(t, []uint32{freed[4], freed[3], freed[2], freed[1], freed[0]}, again)
	assert.ElementsMatch(t, first, again)
	assert.Equal(t, uint32(k), a.HighWaterMark(kind))
}

func TestAllocatorExhaustion(t *testing.T) {
	const capacity = 4
	a := newTestAllocator(t, capacity)
	kind := metadata.HeapKindRTV

	for i := 0; i < capacity; i++ {
		a.Allocate(kind)
	}
	fe := fatalError(t, func() { a.Allocate(kind) })
	assert.True(t, errors.Is(fe, core.ErrDescriptorTableFull))
	assert.Equal(t, "allocator.go", fe.File)
}

func TestAllocatorExhaustionCountsLiveDescriptors(t *testing.T) {
	a := newTestAllocator(t, 2)
	kind := metadata.HeapKindDSV

	d := a.Allocate(kind)
	a.Allocate(kind)
	a.Deallocate(d)
	assert.NotPanics(t, func() { a.Allocate(kind) })
	assert.Panics(t, func() { a.Allocate(kind) })
}

func TestAllocatorHandles(t *testing.T) {
	a := newTestAllocator(t, 4)

	srv := a.Allocate(metadata.HeapKindCBVSRVUAV)
	rtv := a.Allocate(metadata.HeapKindRTV)

	assert.NotZero(t, srv.CPUHandle)
	assert.NotZero(t, srv.GPUHandle)
	assert.NotZero(t, rtv.CPUHandle)
	assert.Zero(t, rtv.GPUHandle)

	heap := a.Heap(metadata.HeapKindCBVSRVUAV)
	assert.Equal(t, heap.CPUHandle(srv.Index), srv.CPUHandle)
	assert.Equal(t, heap.GPUHandle(srv.Index), srv.GPUHandle)
}

func TestAllocatorValidation(t *testing.T) {
	a := newTestAllocator(t, 4)
	kind := metadata.HeapKindCBVSRVUAV

	d := a.Allocate(kind)
	a.Deallocate(d)
	assert.Panics(t, func() { a.Deallocate(d) }, "double release")
	assert.Panics(t, func() {
		a.Deallocate(metadata.Descriptor{Heap: kind, Index: 3})
	}, "never allocated")
}

func TestAllocatorRejectsZeroCapacity(t *testing.T) {
	_, err := NewAllocator(headless.NewDevice(), Capacities{1, 1, 0, 1}, false, core.NewNopLogger())
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestCapacitiesFromConfig(t *testing.T) {
	caps := CapacitiesFromConfig(core.DefaultConfig().Descriptors)
	assert.Equal(t, uint32(256), caps[metadata.HeapKindRTV])
	assert.Equal(t, uint32(64), caps[metadata.HeapKindDSV])
	assert.Equal(t, uint32(65536), caps[metadata.HeapKindCBVSRVUAV])
	assert.Equal(t, uint32(128), caps[metadata.HeapKindSampler])
}
