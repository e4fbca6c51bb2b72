package command

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/descriptor"
	"github.com/navkagleb/benzin-sub001/engine/renderer/headless"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

type fixture struct {
	device   *headless.Device
	factory  *resource.Factory
	copy     *CopyQueue
	compute  *ComputeQueue
	graphics *GraphicsQueue
}

func newFixture(t *testing.T, opts ...headless.Option) *fixture {
	t.Helper()
	logger := core.NewNopLogger()
	device := headless.NewDevice(opts...)
	allocator, err := descriptor.NewAllocator(device, descriptor.Capacities{8, 8, 64, 8}, true, logger)
	require.NoError(t, err)
	factory := resource.NewFactory(device, allocator, logger)

	f := &fixture{device: device, factory: factory}
	f.copy, err = NewCopyQueue(device, factory, 64*1024, logger)
	require.NoError(t, err)
	f.compute, err = NewComputeQueue(device, logger)
	require.NoError(t, err)
	f.graphics, err = NewGraphicsQueue(device, logger)
	require.NoError(t, err)
	return f
}

func recorded(cl *CommandList) []headless.Command {
	return cl.Native().(*headless.CommandList).Commands()
}

func (f *fixture) buffer(t *testing.T, name string, size uint32, flags resource.BufferFlag, state metadata.ResourceState) *resource.Buffer {
	t.Helper()
	b, err := f.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    name,
		ElementSize:  1,
		ElementCount: size,
		Flags:        flags,
		InitialState: state,
	})
	require.NoError(t, err)
	return b
}

func TestDispatchGroupRounding(t *testing.T) {
	f := newFixture(t)
	cl := f.compute.CommandList()

	cl.Dispatch([3]uint32{65, 1, 1}, [3]uint32{8, 1, 1})
	cl.Dispatch([3]uint32{64, 64, 1}, [3]uint32{8, 8, 1})

	cmds := recorded(&cl.CommandList)
	require.Len(t, cmds, 2)
	assert.Equal(t, headless.OpDispatch, cmds[0].Op)
	// Every axis gets one extra group, exact divisions included.
	assert.Equal(t, [4]uint32{9, 2, 2, 0}, cmds[0].Args)
	assert.Equal(t, [4]uint32{9, 9, 2, 0}, cmds[1].Args)
}

func TestDispatchZeroThreadsIsFatal(t *testing.T) {
	assert.Panics(t, func() { DispatchGroupCount([3]uint32{1, 1, 1}, [3]uint32{0, 1, 1}) })
}

func TestBarrierSequenceTracksState(t *testing.T) {
	f := newFixture(t)
	cl := f.graphics.CommandList()
	b := f.buffer(t, "tracked", 64, resource.BufferFlagAllowUnorderedAccess, metadata.ResourceStateCommon)

	states := []metadata.ResourceState{
		metadata.ResourceStateCopyDestination,
		metadata.ResourceStateUnorderedAccess,
		metadata.ResourceStateNonPixelShaderResource,
		metadata.ResourceStateNonPixelShaderResource,
		metadata.ResourceStateCommon,
	}
	for _, s := range states {
		cl.SetResourceBarrier(resource.Transition(b, s))
	}

	cmds := recorded(&cl.CommandList)
	require.Len(t, cmds, len(states))
	previous := metadata.ResourceStateCommon
	for i, c := range cmds {
		require.Len(t, c.Barriers, 1)
		assert.Equal(t, previous, c.Barriers[0].StateBefore, "barrier %d", i)
		assert.Equal(t, states[i], c.Barriers[0].StateAfter, "barrier %d", i)
		previous = states[i]
	}
	assert.Equal(t, states[len(states)-1], b.CurrentState())
}

func TestBarriersAreBatched(t *testing.T) {
	f := newFixture(t)
	cl := f.compute.CommandList()
	a := f.buffer(t, "a", 16, resource.BufferFlagAllowUnorderedAccess, metadata.ResourceStateCommon)
	b := f.buffer(t, "b", 16, resource.BufferFlagAllowUnorderedAccess, metadata.ResourceStateCopySource)

	cl.SetResourceBarriers(
		resource.Transition(a, metadata.ResourceStateUnorderedAccess),
		resource.Transition(b, metadata.ResourceStateUnorderedAccess),
		resource.UnorderedAccessSync(a),
		resource.Transition(a, metadata.ResourceStateCopySource),
	)

	cmds := recorded(&cl.CommandList)
	require.Len(t, cmds, 1)
	barriers := cmds[0].Barriers
	require.Len(t, barriers, 4)
	assert.Equal(t, metadata.ResourceStateCommon, barriers[0].StateBefore)
	assert.Equal(t, metadata.ResourceStateCopySource, barriers[1].StateBefore)
	assert.Equal(t, metadata.BarrierTypeUnorderedAccess, barriers[2].Type)
	assert.Equal(t, metadata.ResourceStateUnorderedAccess, barriers[3].StateBefore)
	assert.Equal(t, metadata.ResourceStateCopySource, a.CurrentState())
}

func TestUpdateBufferStagesAndCopies(t *testing.T) {
	f := newFixture(t)
	cl := f.copy.CommandList()
	dst := f.buffer(t, "dst", 32, 0, metadata.ResourceStateCopyDestination)

	cl.UpdateBuffer(dst, []byte{1, 2, 3, 4, 5}, 8)
	cl.UpdateBuffer(dst, []byte{6, 7}, 0)

	cmds := recorded(&cl.CommandList)
	require.Len(t, cmds, 2)
	assert.Equal(t, headless.OpCopyBufferRegion, cmds[0].Op)
	assert.Equal(t, uint64(0), cmds[0].SrcOffset)
	assert.Equal(t, uint64(8), cmds[0].DstOffset)
	assert.Equal(t, uint64(5), cmds[0].Size)
	assert.Equal(t, uint64(bufferUploadAlignment), cmds[1].SrcOffset)

	require.NoError(t, f.copy.Flush())
	native := dst.Native().(*headless.Buffer)
	assert.Equal(t, []byte{6, 7, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5}, native.Bytes()[:13])
	assert.Zero(t, cl.UploadRing().Used(), "ring is reset once the copy fence retires")
}

func TestUpdateUploadBufferWritesMapping(t *testing.T) {
	f := newFixture(t)
	cl := f.copy.CommandList()
	dst := f.buffer(t, "upload", 8, resource.BufferFlagUpload, metadata.ResourceStateGenericRead)

	cl.UpdateBuffer(dst, []byte{1, 2}, 4)
	assert.Empty(t, recorded(&cl.CommandList))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 0, 0}, dst.MappedData())
}

func TestUpdateTextureRepacksRows(t *testing.T) {
	f := newFixture(t)
	cl := f.copy.CommandList()
	tex, err := f.factory.CreateTexture(resource.TextureConfig{
		DebugName:    "checker",
		Format:       metadata.FormatRGBA8Unorm,
		Width:        4,
		Height:       4,
		InitialState: metadata.ResourceStateCopyDestination,
	})
	require.NoError(t, err)

	src := make([]byte, 4*16)
	for i := range src {
		src[i] = byte(i + 1)
	}
	// Leave a used prefix so the texture lands at a placement aligned offset.
	cl.UploadRing().Allocate(3, 1)
	cl.UpdateTexture(tex, []metadata.SubresourceData{{Data: src}})

	cmds := recorded(&cl.CommandList)
	require.Len(t, cmds, 1)
	fp := cmds[0].Footprint
	assert.Equal(t, headless.OpCopyTextureRegion, cmds[0].Op)
	assert.Equal(t, uint64(512), fp.Offset)
	assert.Equal(t, uint32(256), fp.RowPitch)
	assert.Equal(t, uint32(4), fp.NumRows)
	assert.Equal(t, uint64(16), fp.RowSizeInBytes)

	staged := cl.UploadRing().Bytes(fp.Offset, 4*256)
	for row := 0; row < 4; row++ {
		line := staged[row*256 : (row+1)*256]
		assert.Equal(t, src[row*16:(row+1)*16], line[:16], "row %d data", row)
		assert.Equal(t, make([]byte, 240), line[16:], "row %d padding", row)
	}

	require.NoError(t, f.copy.Flush())
	assert.Equal(t, src, tex.Native().(*headless.Texture).Subresource(0))
}

func TestUpdateTextureHonorsSourcePitch(t *testing.T) {
	f := newFixture(t, headless.WithRowPitchAlignment(64))
	cl := f.copy.CommandList()
	tex, err := f.factory.CreateTexture(resource.TextureConfig{
		DebugName: "pitched",
		Format:    metadata.FormatR8Unorm,
		Width:     2,
		Height:    2,
	})
	require.NoError(t, err)

	cl.UpdateTexture(tex, []metadata.SubresourceData{{Data: []byte{1, 2, 0xff, 0xff, 3, 4}, RowPitch: 4}})
	fp := recorded(&cl.CommandList)[0].Footprint
	assert.Equal(t, uint32(64), fp.RowPitch)

	staged := cl.UploadRing().Bytes(fp.Offset, 66)
	assert.Equal(t, []byte{1, 2}, staged[0:2])
	assert.Equal(t, []byte{3, 4}, staged[64:66])
}

func TestMipChainFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(10, 10, 18, 14))
	for y := 10; y < 14; y++ {
		for x := 10; x < 18; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	level0 := SubresourceFromImage(img)
	assert.Len(t, level0.Data, 8*4*4)
	assert.Equal(t, uint64(32), level0.RowPitch)
	assert.Equal(t, []byte{200, 100, 50, 255}, level0.Data[:4])

	chain := MipChainFromImage(img, 4)
	require.Len(t, chain, 4)
	assert.Len(t, chain[1].Data, 4*2*4)
	assert.Len(t, chain[2].Data, 2*1*4)
	assert.Len(t, chain[3].Data, 1*1*4)
	assert.Equal(t, []byte{200, 100, 50, 255}, chain[3].Data)
}

func TestUploadRingExhaustionIsFatal(t *testing.T) {
	f := newFixture(t)
	ring := f.copy.CommandList().UploadRing()

	defer func() {
		fe, ok := recover().(*core.FatalError)
		require.True(t, ok)
		assert.True(t, errors.Is(fe, core.ErrUploadBufferFull))
	}()
	ring.Allocate(64*1024+1, 1)
}

func filled(size int, value byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = value
	}
	return data
}

func TestWaitKeepsUnsubmittedStaging(t *testing.T) {
	f := newFixture(t)
	cl := f.copy.CommandList()
	a := f.buffer(t, "a", 64, 0, metadata.ResourceStateCopyDestination)
	b := f.buffer(t, "b", 64, 0, metadata.ResourceStateCopyDestination)
	c := f.buffer(t, "c", 64, 0, metadata.ResourceStateCopyDestination)
	d := f.buffer(t, "d", 64, 0, metadata.ResourceStateCopyDestination)

	cl.UpdateBuffer(a, filled(64, 0xaa), 0)
	v, err := f.copy.ExecuteCommandList()
	require.NoError(t, err)

	cl.UpdateBuffer(b, filled(64, 0xbb), 0)
	require.NoError(t, f.copy.WaitForFence(v))
	assert.Equal(t, uint64(64), cl.UploadRing().Used(), "staging of the open list survives the wait")

	cl.UpdateBuffer(c, filled(64, 0xcc), 0)
	cl.UpdateBuffer(d, filled(64, 0xdd), 0)
	require.NoError(t, f.copy.Flush())

	for buffer, value := range map[*resource.Buffer]byte{a: 0xaa, b: 0xbb, c: 0xcc, d: 0xdd} {
		assert.Equal(t, filled(64, value), buffer.Native().(*headless.Buffer).Bytes()[:64], buffer.Name())
	}
	assert.Zero(t, cl.UploadRing().Used())
}

func TestUploadRingReclaimsRetiredSubmissions(t *testing.T) {
	f := newFixture(t, headless.WithDeferredSignals())
	cl := f.copy.CommandList()
	ring := cl.UploadRing()
	dst := f.buffer(t, "dst", 32*1024, 0, metadata.ResourceStateCopyDestination)

	cl.UpdateBuffer(dst, filled(24*1024, 1), 0)
	first, err := f.copy.ExecuteCommandList()
	require.NoError(t, err)
	cl.UpdateBuffer(dst, filled(24*1024, 2), 0)
	_, err = f.copy.ExecuteCommandList()
	require.NoError(t, err)
	assert.Equal(t, uint64(48*1024), ring.Used(), "nothing retired while signals are pending")

	// The third upload needs the space of the first submission.
	require.Panics(t, func() { ring.Allocate(24*1024, 1) })

	require.NoError(t, f.copy.WaitForFence(first))
	assert.Equal(t, uint64(24*1024), ring.Used())
	assert.Zero(t, ring.Allocate(24*1024, 1), "allocation wraps to the start of the buffer")
}

func TestRootArgumentsUseBindPoint(t *testing.T) {
	f := newFixture(t)
	gfx := f.graphics.CommandList()
	b := f.buffer(t, "srv", 16, 0, metadata.ResourceStateNonPixelShaderResource)
	b.PushShaderResourceView()
	b.PushShaderResourceView()

	gfx.SetRootResource(1, b.ShaderResourceView(1))
	gfx.SetComputeRootConstant(0, 7)
	f.compute.CommandList().SetRootResource(2, b.ShaderResourceView(0))

	cmds := recorded(&gfx.CommandList)
	require.Len(t, cmds, 2)
	assert.Equal(t, metadata.PipelineBindPointGraphics, cmds[0].BindPoint)
	assert.Equal(t, uint32(1), cmds[0].Index)
	assert.Equal(t, b.ShaderResourceView(1).Index, cmds[0].Value)
	assert.Equal(t, metadata.PipelineBindPointCompute, cmds[1].BindPoint)

	compute := recorded(&f.compute.CommandList().CommandList)
	require.Len(t, compute, 1)
	assert.Equal(t, metadata.PipelineBindPointCompute, compute[0].BindPoint)
	assert.Equal(t, b.ShaderResourceView(0).Index, compute[0].Value)
}

func TestGraphicsRecording(t *testing.T) {
	f := newFixture(t)
	cl := f.graphics.CommandList()
	target, err := f.factory.CreateTexture(resource.TextureConfig{
		DebugName:    "target",
		Format:       metadata.FormatRGBA8Unorm,
		Width:        4,
		Height:       4,
		Flags:        metadata.TextureFlagAllowRenderTarget,
		InitialState: metadata.ResourceStateRenderTarget,
	})
	require.NoError(t, err)
	target.PushRenderTargetView(0, 0)
	indices, err := f.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    "indices",
		ElementSize:  2,
		ElementCount: 6,
		InitialState: metadata.ResourceStateIndexBuffer,
	})
	require.NoError(t, err)

	cl.SetPipelineState(headless.NewPipeline("forward", metadata.PipelineBindPointGraphics))
	cl.SetViewport(metadata.Viewport{Width: 4, Height: 4, MaxDepth: 1})
	cl.SetScissor(metadata.Rect{Right: 4, Bottom: 4})
	cl.SetRenderTargets([]metadata.Descriptor{target.RenderTargetView(0)}, nil)
	cl.ClearRenderTarget(target.RenderTargetView(0), [4]float32{0, 0, 0, 1})
	cl.SetPrimitiveTopology(metadata.PrimitiveTopologyTriangleList)
	cl.SetIndexBuffer(indices)
	cl.DrawIndexed(6, 1, 0, 0, 0)
	cl.Draw(3, 1, 0, 0)

	ops := []headless.Op{}
	for _, c := range recorded(&cl.CommandList) {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []headless.Op{
		headless.OpSetPipelineState,
		headless.OpSetViewport,
		headless.OpSetScissor,
		headless.OpSetRenderTargets,
		headless.OpClearRenderTarget,
		headless.OpSetPrimitiveTopology,
		headless.OpSetIndexBuffer,
		headless.OpDrawIndexedInstanced,
		headless.OpDrawInstanced,
	}, ops)
	assert.Equal(t, metadata.FormatR16Uint, recorded(&cl.CommandList)[6].IndexBuffer.Format)
	assert.Panics(t, func() { cl.SetRenderTargets([]metadata.Descriptor{{Heap: metadata.HeapKindDSV}}, nil) })
}

type fakeStructure struct {
	result  *resource.Buffer
	scratch *resource.Buffer
}

func (s *fakeStructure) Name() string { return "fake" }
func (s *fakeStructure) Buffer() *resource.Buffer { return s.result }
func (s *fakeStructure) ScratchBuffer() *resource.Buffer { return s.scratch }
func (s *fakeStructure) BuildInputs() metadata.AccelerationStructureInputs {
	return metadata.AccelerationStructureInputs{Type: metadata.AccelerationStructureTypeTopLevel}
}

func TestBuildRequiresUnorderedAccessScratch(t *testing.T) {
	f := newFixture(t)
	cl := f.compute.CommandList()
	as := &fakeStructure{
		result:  f.buffer(t, "result", 256, resource.BufferFlagAllowUnorderedAccess, metadata.ResourceStateRaytracingAccelerationStructure),
		scratch: f.buffer(t, "scratch", 256, resource.BufferFlagAllowUnorderedAccess, metadata.ResourceStateCommon),
	}

	func() {
		defer func() {
			fe, ok := recover().(*core.FatalError)
			require.True(t, ok)
			assert.True(t, errors.Is(fe, core.ErrScratchNotUnorderedAccess))
		}()
		cl.BuildAccelerationStructure(as)
	}()

	cl.SetResourceBarrier(resource.Transition(as.scratch, metadata.ResourceStateUnorderedAccess))
	cl.BuildAccelerationStructure(as)

	cmds := recorded(&cl.CommandList)
	require.Len(t, cmds, 2)
	assert.Equal(t, headless.OpBuildAccelerationStructure, cmds[1].Op)
	assert.Equal(t, as.result.GPUVirtualAddress(0), cmds[1].Build.DestAddress)
	assert.Equal(t, as.scratch.GPUVirtualAddress(0), cmds[1].Build.ScratchAddress)
}

func TestQueueFenceValues(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, uint64(1), f.graphics.NextFenceValue())
	v, err := f.graphics.ExecuteCommandList()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	require.NoError(t, f.graphics.Flush())
	assert.Equal(t, uint64(2), f.graphics.CompletedFenceValue())
	assert.Equal(t, uint64(3), f.graphics.NextFenceValue())
	assert.Equal(t, uint64(1_000_000_000), f.graphics.TimestampFrequency())
	assert.Empty(t, recorded(&f.graphics.CommandList().CommandList), "list is reset after execution")
}

func TestQueueDeviceRemoved(t *testing.T) {
	f := newFixture(t)
	f.device.RemoveDevice()

	err := f.compute.Flush()
	assert.ErrorIs(t, err, core.ErrDeviceRemoved)
}

func TestSubmissionOrdering(t *testing.T) {
	f := newFixture(t, headless.WithDeferredSignals())

	compute := f.compute.CommandList().Submission()
	assert.Equal(t, uint64(1), compute.FenceValue())
	assert.True(t, compute.OrderedBefore(f.compute.CommandList().Submission()), "same list, same stream")
	assert.False(t, compute.OrderedBefore(f.graphics.CommandList().Submission()))

	v, err := f.compute.ExecuteCommandList()
	require.NoError(t, err)
	later := f.compute.CommandList().Submission()
	assert.Equal(t, uint64(2), later.FenceValue())
	assert.True(t, compute.OrderedBefore(later))
	assert.False(t, later.OrderedBefore(compute))
	assert.False(t, compute.Retired())

	require.NoError(t, f.compute.WaitForFence(v))
	assert.True(t, compute.Retired())
	assert.True(t, compute.OrderedBefore(f.graphics.CommandList().Submission()))
}
