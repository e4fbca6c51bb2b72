package raytracing

import (
	"encoding/binary"
	"errors"
	gomath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/command"
	"github.com/navkagleb/benzin-sub001/engine/renderer/descriptor"
	"github.com/navkagleb/benzin-sub001/engine/renderer/headless"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

type fixture struct {
	device  *headless.Device
	factory *resource.Factory
	builder *Builder
	queue   *command.ComputeQueue
}

func newFixture(t *testing.T, opts ...headless.Option) *fixture {
	t.Helper()
	logger := core.NewNopLogger()
	device := headless.NewDevice(opts...)
	allocator, err := descriptor.NewAllocator(device, descriptor.Capacities{4, 4, 64, 4}, true, logger)
	require.NoError(t, err)
	factory := resource.NewFactory(device, allocator, logger)
	queue, err := command.NewComputeQueue(device, logger)
	require.NoError(t, err)
	return &fixture{
		device:  device,
		factory: factory,
		builder: NewBuilder(device, factory, logger),
		queue:   queue,
	}
}

func (f *fixture) triangle(t *testing.T, name string) TriangledGeometry {
	t.Helper()
	vertices, err := f.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    name + "_Vertices",
		ElementSize:  32,
		ElementCount: 3,
		Flags:        resource.BufferFlagStructuredBuffer,
	})
	require.NoError(t, err)
	indices, err := f.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    name + "_Indices",
		ElementSize:  4,
		ElementCount: 3,
	})
	require.NoError(t, err)
	return TriangledGeometry{
		VertexBuffer: vertices,
		IndexBuffer:  indices,
		VertexCount:  3,
		IndexCount:   3,
	}
}

type event struct {
	op      headless.Op
	address uint64
}

// buildsAndSyncs flattens the recorded commands into builds and unordered
// access syncs, the only commands that order acceleration structure work.
func buildsAndSyncs(cmds []headless.Command) []event {
	var events []event
	for _, c := range cmds {
		switch c.Op {
		case headless.OpBuildAccelerationStructure:
			events = append(events, event{c.Op, c.Build.DestAddress})
		case headless.OpResourceBarriers:
			for _, b := range c.Barriers {
				if b.Type == metadata.BarrierTypeUnorderedAccess {
					events = append(events, event{"UAV", b.Resource.GPUVirtualAddress()})
				}
			}
		}
	}
	return events
}

func TestBuildOrder(t *testing.T) {
	f := newFixture(t)
	cl := f.queue.CommandList()

	blas1, err := f.builder.NewBottomLevel("BLAS1", f.triangle(t, "a"))
	require.NoError(t, err)
	blas2, err := f.builder.NewBottomLevel("BLAS2", f.triangle(t, "b"))
	require.NoError(t, err)
	assert.Equal(t, BuildStateUnbuilt, blas1.State())

	f.builder.BuildBottomLevels(cl, blas1, blas2)
	assert.Equal(t, BuildStateBuilt, blas1.State())
	assert.Equal(t, BuildStateBuilt, blas2.State())

	tlas, err := f.builder.NewTopLevel("TLAS", []TopLevelInstance{
		{BottomLevel: blas1, Transform: mgl32.Ident4()},
		{BottomLevel: blas2, HitGroupIndex: 1, Transform: mgl32.Translate3D(1, 2, 3)},
	})
	require.NoError(t, err)
	f.builder.BuildTopLevel(cl, tlas)
	assert.Equal(t, BuildStateBuilt, tlas.State())

	cmds := cl.Native().(*headless.CommandList).Commands()
	assert.Equal(t, []event{
		{headless.OpBuildAccelerationStructure, blas1.GPUVirtualAddress()},
		{headless.OpBuildAccelerationStructure, blas2.GPUVirtualAddress()},
		{"UAV", blas1.GPUVirtualAddress()},
		{"UAV", blas2.GPUVirtualAddress()},
		{headless.OpBuildAccelerationStructure, tlas.GPUVirtualAddress()},
	}, buildsAndSyncs(cmds))

	assert.Equal(t, metadata.ResourceStateUnorderedAccess, blas1.ScratchBuffer().CurrentState())
	assert.Equal(t, metadata.ResourceStateUnorderedAccess, tlas.ScratchBuffer().CurrentState())
	assert.Equal(t, metadata.ResourceStateRaytracingAccelerationStructure, tlas.Buffer().CurrentState())

	require.NoError(t, f.queue.Flush())
}

func TestBottomLevelInputs(t *testing.T) {
	f := newFixture(t)
	g := f.triangle(t, "mesh")
	bounds, err := f.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    "bounds",
		ElementSize:  24,
		ElementCount: 2,
	})
	require.NoError(t, err)

	blas, err := f.builder.NewBottomLevel("mixed", g, ProceduralGeometry{BoundsBuffer: bounds, BoundsIndex: 1})
	require.NoError(t, err)

	inputs := blas.BuildInputs()
	require.Len(t, inputs.Geometries, 2)
	tri := inputs.Geometries[0].Triangles
	assert.Equal(t, g.VertexBuffer.GPUVirtualAddress(0), tri.VertexBuffer)
	assert.Equal(t, uint64(32), tri.VertexStride)
	assert.Equal(t, metadata.FormatRGB32Float, tri.VertexFormat)
	assert.Equal(t, metadata.FormatR32Uint, tri.IndexFormat)
	aabb := inputs.Geometries[1].AABBs
	assert.Equal(t, bounds.GPUVirtualAddress(1), aabb.AABBs)
	assert.Equal(t, uint64(24), aabb.Stride)

	assert.Equal(t, metadata.ResourceStateRaytracingAccelerationStructure, blas.Buffer().CurrentState())
	assert.Equal(t, metadata.ResourceStateCommon, blas.ScratchBuffer().CurrentState())
	assert.Equal(t, blas.PrebuildInfo().ResultDataMaxSize, blas.Buffer().Size())
}

func TestZeroPrebuildSizeIsFatal(t *testing.T) {
	f := newFixture(t)

	defer func() {
		fe, ok := recover().(*core.FatalError)
		require.True(t, ok)
		assert.True(t, errors.Is(fe, core.ErrZeroPrebuildSize))
	}()
	_, _ = f.builder.NewBottomLevel("empty")
}

func TestTopLevelRequiresBuiltBottomLevels(t *testing.T) {
	f := newFixture(t)
	cl := f.queue.CommandList()

	blas, err := f.builder.NewBottomLevel("pending", f.triangle(t, "p"))
	require.NoError(t, err)
	tlas, err := f.builder.NewTopLevel("early", []TopLevelInstance{{BottomLevel: blas, Transform: mgl32.Ident4()}})
	require.NoError(t, err)

	assert.Panics(t, func() { f.builder.BuildTopLevel(cl, tlas) })
	assert.Empty(t, buildsAndSyncs(cl.Native().(*headless.CommandList).Commands()))
}

func TestTopLevelOnAnotherQueueWaitsForBottomLevels(t *testing.T) {
	f := newFixture(t, headless.WithDeferredSignals())
	graphics, err := command.NewGraphicsQueue(f.device, core.NewNopLogger())
	require.NoError(t, err)

	blas, err := f.builder.NewBottomLevel("compute_built", f.triangle(t, "c"))
	require.NoError(t, err)
	tlas, err := f.builder.NewTopLevel("graphics_built", []TopLevelInstance{{BottomLevel: blas, Transform: mgl32.Ident4()}})
	require.NoError(t, err)

	f.builder.BuildBottomLevels(f.queue.CommandList(), blas)
	assert.Panics(t, func() { f.builder.BuildTopLevel(graphics.CommandList(), tlas) }, "bottom level still recording")

	fence, err := f.queue.ExecuteCommandList()
	require.NoError(t, err)
	assert.Panics(t, func() { f.builder.BuildTopLevel(graphics.CommandList(), tlas) }, "bottom level submitted, not retired")

	require.NoError(t, f.queue.WaitForFence(fence))
	f.builder.BuildTopLevel(graphics.CommandList(), tlas)
	assert.Equal(t, BuildStateBuilt, tlas.State())
}

func TestTopLevelOnSameQueueFollowsBottomLevels(t *testing.T) {
	f := newFixture(t, headless.WithDeferredSignals())
	blas, err := f.builder.NewBottomLevel("earlier", f.triangle(t, "e"))
	require.NoError(t, err)
	tlas, err := f.builder.NewTopLevel("later", []TopLevelInstance{{BottomLevel: blas, Transform: mgl32.Ident4()}})
	require.NoError(t, err)

	f.builder.BuildBottomLevels(f.queue.CommandList(), blas)
	_, err = f.queue.ExecuteCommandList()
	require.NoError(t, err)

	f.builder.BuildTopLevel(f.queue.CommandList(), tlas)
	assert.Equal(t, BuildStateBuilt, tlas.State())
}

func TestPackInstanceDesc(t *testing.T) {
	f := newFixture(t)
	blas, err := f.builder.NewBottomLevel("packed", f.triangle(t, "x"))
	require.NoError(t, err)

	dst := make([]byte, metadata.InstanceDescSize)
	PackInstanceDesc(dst, TopLevelInstance{
		BottomLevel:   blas,
		InstanceID:    5,
		HitGroupIndex: 2,
		Flags:         InstanceFlagForceOpaque,
		Transform:     mgl32.Translate3D(1, 2, 3),
	})

	float := func(i int) float32 { return gomath.Float32frombits(binary.LittleEndian.Uint32(dst[i*4:])) }
	// Row major 3x4: translation sits in the last column.
	assert.Equal(t, []float32{1, 0, 0, 1}, []float32{float(0), float(1), float(2), float(3)})
	assert.Equal(t, []float32{0, 1, 0, 2}, []float32{float(4), float(5), float(6), float(7)})
	assert.Equal(t, []float32{0, 0, 1, 3}, []float32{float(8), float(9), float(10), float(11)})

	assert.Equal(t, uint32(5|1<<24), binary.LittleEndian.Uint32(dst[48:]))
	assert.Equal(t, uint32(2|uint32(InstanceFlagForceOpaque)<<24), binary.LittleEndian.Uint32(dst[52:]))
	assert.Equal(t, blas.GPUVirtualAddress(), binary.LittleEndian.Uint64(dst[56:]))
}

func TestTopLevelInstanceBuffer(t *testing.T) {
	f := newFixture(t)
	blas, err := f.builder.NewBottomLevel("shared", f.triangle(t, "s"))
	require.NoError(t, err)

	tlas, err := f.builder.NewTopLevel("scene", []TopLevelInstance{
		{BottomLevel: blas, InstanceID: 0, Transform: mgl32.Ident4()},
		{BottomLevel: blas, InstanceID: 1, Transform: mgl32.Ident4()},
		{BottomLevel: blas, InstanceID: 2, Transform: mgl32.Ident4()},
	})
	require.NoError(t, err)

	inputs := tlas.BuildInputs()
	assert.Equal(t, uint32(3), inputs.InstanceCount)
	assert.Equal(t, tlas.InstanceBuffer().GPUVirtualAddress(0), inputs.InstanceDescs)
	mapped := tlas.InstanceBuffer().MappedData()
	require.Len(t, mapped, 3*metadata.InstanceDescSize)
	assert.Equal(t, uint32(2|1<<24), binary.LittleEndian.Uint32(mapped[2*metadata.InstanceDescSize+48:]))
}

type recordingReleaser struct {
	released []resource.Object
}

func (r *recordingReleaser) DeferRelease(obj resource.Object) {
	r.released = append(r.released, obj)
}

func TestFrameTopLevels(t *testing.T) {
	f := newFixture(t)
	cl := f.queue.CommandList()
	releaser := &recordingReleaser{}

	blas, err := f.builder.NewBottomLevel("frame", f.triangle(t, "f"))
	require.NoError(t, err)
	f.builder.BuildBottomLevels(cl, blas)

	frames := NewFrameTopLevels(f.builder, releaser, "SceneTLAS", 2)
	instances := []TopLevelInstance{{BottomLevel: blas, Transform: mgl32.Ident4()}}

	first, err := frames.Rebuild(0, instances, cl)
	require.NoError(t, err)
	_, err = frames.Rebuild(1, instances, cl)
	require.NoError(t, err)
	assert.Empty(t, releaser.released)
	assert.Same(t, first, frames.Current(0))

	third, err := frames.Rebuild(2, instances, cl)
	require.NoError(t, err)
	assert.Same(t, third, frames.Current(0))
	require.Len(t, releaser.released, 3)
	assert.Same(t, first.Buffer(), releaser.released[0])
	assert.Equal(t, "SceneTLAS[0]", third.Name())

	frames.Destroy()
	assert.Len(t, releaser.released, 9)
	assert.Nil(t, frames.Current(1))
}
