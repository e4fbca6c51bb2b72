package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/descriptor"
	"github.com/navkagleb/benzin-sub001/engine/renderer/headless"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

func newTestFactory(t *testing.T) (*Factory, *headless.Device) {
	t.Helper()
	device := headless.NewDevice()
	allocator, err := descriptor.NewAllocator(device, descriptor.Capacities{8, 8, 64, 8}, true, core.NewNopLogger())
	require.NoError(t, err)
	return NewFactory(device, allocator, core.NewNopLogger()), device
}

func newStructuredBuffer(t *testing.T, f *Factory, name string) *Buffer {
	t.Helper()
	b, err := f.CreateBuffer(BufferConfig{
		DebugName:    name,
		ElementSize:  16,
		ElementCount: 4,
		Flags:        BufferFlagStructuredBuffer | BufferFlagAllowUnorderedAccess,
		InitialState: metadata.ResourceStateCommon,
	})
	require.NoError(t, err)
	return b
}

func TestApplyTransitionRoundTrip(t *testing.T) {
	f, _ := newTestFactory(t)
	b := newStructuredBuffer(t, f, "roundtrip")

	s0 := b.CurrentState()
	before := b.ApplyTransition(metadata.ResourceStateCopyDestination)
	assert.Equal(t, s0, before)
	assert.Equal(t, metadata.ResourceStateCopyDestination, b.CurrentState())

	before = b.ApplyTransition(s0)
	assert.Equal(t, metadata.ResourceStateCopyDestination, before)
	assert.Equal(t, s0, b.CurrentState())
}

func TestSameStateTransitionIsKept(t *testing.T) {
	f, _ := newTestFactory(t)
	b := newStructuredBuffer(t, f, "same")

	desc := Transition(b, metadata.ResourceStateCommon).Apply()
	assert.Equal(t, metadata.BarrierTypeTransition, desc.Type)
	assert.Equal(t, metadata.ResourceStateCommon, desc.StateBefore)
	assert.Equal(t, metadata.ResourceStateCommon, desc.StateAfter)
}

func TestBarrierApply(t *testing.T) {
	f, _ := newTestFactory(t)
	b := newStructuredBuffer(t, f, "barrier")

	desc := Transition(b, metadata.ResourceStateUnorderedAccess).Apply()
	assert.Equal(t, metadata.ResourceStateCommon, desc.StateBefore)
	assert.Equal(t, metadata.ResourceStateUnorderedAccess, desc.StateAfter)
	assert.Same(t, b.Native(), desc.Resource)
	assert.Equal(t, metadata.ResourceStateUnorderedAccess, b.CurrentState())

	uav := UnorderedAccessSync(b).Apply()
	assert.Equal(t, metadata.BarrierTypeUnorderedAccess, uav.Type)
	assert.Equal(t, metadata.ResourceStateUnorderedAccess, b.CurrentState())
}

func TestViewIndexing(t *testing.T) {
	f, _ := newTestFactory(t)
	b := newStructuredBuffer(t, f, "views")

	d0 := f.Allocator().Allocate(metadata.HeapKindCBVSRVUAV)
	d1 := f.Allocator().Allocate(metadata.HeapKindCBVSRVUAV)
	d2 := f.Allocator().Allocate(metadata.HeapKindCBVSRVUAV)

	assert.Equal(t, 0, b.PushView(metadata.DescriptorKindShaderResourceView, d0))
	assert.Equal(t, 1, b.PushView(metadata.DescriptorKindShaderResourceView, d1))
	assert.Equal(t, 2, b.PushView(metadata.DescriptorKindShaderResourceView, d2))

	assert.Equal(t, d1, b.GetView(metadata.DescriptorKindShaderResourceView, 1))
	assert.True(t, b.HasView(metadata.DescriptorKindShaderResourceView, 2))
	assert.False(t, b.HasView(metadata.DescriptorKindShaderResourceView, 3))
	assert.False(t, b.HasView(metadata.DescriptorKindUnorderedAccessView, 0))
}

func TestGetViewMissingIsFatal(t *testing.T) {
	f, _ := newTestFactory(t)
	b := newStructuredBuffer(t, f, "missing")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		fe, ok := r.(*core.FatalError)
		require.True(t, ok)
		assert.True(t, errors.Is(fe, core.ErrInvalidView))
	}()
	b.GetView(metadata.DescriptorKindUnorderedAccessView, 0)
}

func TestDestroyReleasesViews(t *testing.T) {
	f, device := newTestFactory(t)
	a := f.Allocator()
	b := newStructuredBuffer(t, f, "destroy")

	b.PushShaderResourceView()
	b.PushUnorderedAccessView()
	assert.Equal(t, uint32(2), a.LiveCount(metadata.HeapKindCBVSRVUAV))

	srv := b.ShaderResourceView(0)
	view, ok := device.DescriptorHeap(metadata.HeapKindCBVSRVUAV).View(srv.Index)
	require.True(t, ok)
	assert.Equal(t, metadata.DescriptorKindShaderResourceView, view.Kind)
	assert.Equal(t, uint32(16), view.Desc.ElementSize)

	b.Destroy()
	assert.True(t, b.Destroyed())
	assert.Equal(t, uint32(0), a.LiveCount(metadata.HeapKindCBVSRVUAV))
	assert.Equal(t, 0, b.ViewCount(metadata.DescriptorKindShaderResourceView))
	assert.Equal(t, 0, device.LiveResources())
	assert.Panics(t, b.Destroy)
}

func TestConstantBufferAlignment(t *testing.T) {
	f, _ := newTestFactory(t)
	b, err := f.CreateBuffer(BufferConfig{
		DebugName:    "constants",
		ElementSize:  72,
		ElementCount: 3,
		Flags:        BufferFlagConstantBuffer | BufferFlagUpload,
	})
	require.NoError(t, err)

	assert.Equal(t, uint32(256), b.ElementSize())
	assert.Equal(t, uint64(768), b.Size())
	assert.Equal(t, metadata.ResourceStateGenericRead, b.CurrentState())
	assert.Equal(t, b.GPUVirtualAddress(0)+512, b.GPUVirtualAddress(2))

	b.PushConstantBufferView(2)
	cbv := b.ConstantBufferView(0)
	assert.Equal(t, metadata.HeapKindCBVSRVUAV, cbv.Heap)
}

func TestUploadBufferWrite(t *testing.T) {
	f, _ := newTestFactory(t)
	b, err := f.CreateBuffer(BufferConfig{
		DebugName:    "upload",
		ElementSize:  4,
		ElementCount: 4,
		Flags:        BufferFlagUpload,
		InitialData:  []byte{1, 2, 3, 4},
	})
	require.NoError(t, err)

	b.Write([]byte{9, 9, 9, 9}, 2)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0, 9, 9, 9, 9, 0, 0, 0, 0}, b.MappedData())
	assert.Panics(t, func() { b.Write(make([]byte, 8), 3) })
}

func TestWriteToDefaultHeapIsFatal(t *testing.T) {
	f, _ := newTestFactory(t)
	b := newStructuredBuffer(t, f, "default")
	assert.Nil(t, b.MappedData())
	assert.Panics(t, func() { b.Write([]byte{1}, 0) })
}

func TestTextureSubresources(t *testing.T) {
	f, _ := newTestFactory(t)
	tex, err := f.CreateTexture(TextureConfig{
		DebugName: "cube",
		Type:      metadata.TextureTypeCube,
		Format:    metadata.FormatRGBA8Unorm,
		Width:     8,
		Height:    8,
		MipCount:  3,
		Flags:     metadata.TextureFlagAllowUnorderedAccess,
	})
	require.NoError(t, err)

	assert.Equal(t, uint32(6), tex.ArraySize())
	assert.Equal(t, uint32(18), tex.SubresourceCount())
	assert.Equal(t, uint32(0), tex.SubresourceIndex(0, 0))
	assert.Equal(t, uint32(2), tex.SubresourceIndex(2, 0))
	assert.Equal(t, uint32(7), tex.SubresourceIndex(1, 2))
	assert.Panics(t, func() { tex.SubresourceIndex(3, 0) })

	assert.Equal(t, 0, tex.PushShaderResourceView())
	assert.Equal(t, 0, tex.PushUnorderedAccessView(0))
	assert.Equal(t, 1, tex.PushUnorderedAccessView(1))
	assert.Panics(t, func() { tex.PushRenderTargetView(0, 0) })
}

func TestTextureRenderTargetAndDepthViews(t *testing.T) {
	f, _ := newTestFactory(t)
	color, err := f.CreateTexture(TextureConfig{
		DebugName:    "color",
		Format:       metadata.FormatRGBA8Unorm,
		Width:        4,
		Height:       4,
		Flags:        metadata.TextureFlagAllowRenderTarget,
		InitialState: metadata.ResourceStateRenderTarget,
	})
	require.NoError(t, err)
	depth, err := f.CreateTexture(TextureConfig{
		DebugName:    "depth",
		Format:       metadata.FormatD32Float,
		Width:        4,
		Height:       4,
		Flags:        metadata.TextureFlagAllowDepthStencil,
		InitialState: metadata.ResourceStateDepthWrite,
	})
	require.NoError(t, err)

	color.PushRenderTargetView(0, 0)
	depth.PushDepthStencilView()
	assert.Equal(t, metadata.HeapKindRTV, color.RenderTargetView(0).Heap)
	assert.Equal(t, metadata.HeapKindDSV, depth.DepthStencilView(0).Heap)
	assert.Zero(t, color.RenderTargetView(0).GPUHandle)
}

func TestRawBufferViewsAgree(t *testing.T) {
	f, device := newTestFactory(t)
	b, err := f.CreateBuffer(BufferConfig{
		DebugName:    "raw",
		ElementSize:  12,
		ElementCount: 4,
		Flags:        BufferFlagAllowUnorderedAccess,
	})
	require.NoError(t, err)

	b.PushShaderResourceView()
	b.PushUnorderedAccessView()
	heap := device.DescriptorHeap(metadata.HeapKindCBVSRVUAV)
	srv, ok := heap.View(b.ShaderResourceView(0).Index)
	require.True(t, ok)
	uav, ok := heap.View(b.UnorderedAccessView(0).Index)
	require.True(t, ok)

	want := metadata.ViewDesc{ElementCount: 12, ElementSize: 4, Raw: true}
	assert.Equal(t, want, srv.Desc)
	assert.Equal(t, want, uav.Desc)
}
