package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

const descriptorStride = 32

var shaderStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit) |
	vk.ShaderStageFlags(vk.ShaderStageFragmentBit) |
	vk.ShaderStageFlags(vk.ShaderStageComputeBit)

// slot is what a descriptor index holds besides the descriptor set entry:
// the objects created for the view and, for attachments, what render
// passes need to know about it.
type slot struct {
	view    vk.ImageView
	sampler vk.Sampler
	owner   *Texture
	format  vk.Format
	extent  vk.Extent2D
}

// DescriptorHeap is a bindless descriptor set for shader visible kinds and
// a plain array of image views for render target and depth stencil kinds.
type DescriptorHeap struct {
	kind     metadata.HeapKind
	capacity uint32
	cpuBase  uint64
	gpuBase  uint64

	layout vk.DescriptorSetLayout
	pool   vk.DescriptorPool
	set    vk.DescriptorSet
	slots  []slot
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

func heapBindings(kind metadata.HeapKind, capacity uint32) []vk.DescriptorSetLayoutBinding {
	binding := func(index uint32, t vk.DescriptorType) vk.DescriptorSetLayoutBinding {
		return vk.DescriptorSetLayoutBinding{
			Binding:         index,
			DescriptorType:  t,
			DescriptorCount: capacity,
			StageFlags:      shaderStages,
		}
	}
	if kind == metadata.HeapKindSampler {
		return []vk.DescriptorSetLayoutBinding{binding(bindingSampler, vk.DescriptorTypeSampler)}
	}
	return []vk.DescriptorSetLayoutBinding{
		binding(bindingUniformBuffer, vk.DescriptorTypeUniformBuffer),
		binding(bindingStorageBuffer, vk.DescriptorTypeStorageBuffer),
		binding(bindingSampledImage, vk.DescriptorTypeSampledImage),
		binding(bindingStorageImage, vk.DescriptorTypeStorageImage),
	}
}

func (d *Device) CreateDescriptorHeap(kind metadata.HeapKind, capacity uint32) (metadata.DescriptorHeap, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("%w: zero capacity %s heap", core.ErrInvalidConfig, kind)
	}
	if kind >= metadata.HeapKindCount {
		return nil, fmt.Errorf("%w: heap kind %d", core.ErrInvalidConfig, kind)
	}
	if d.heaps[kind] != nil {
		return nil, fmt.Errorf("%s heap already exists", kind)
	}

	h := &DescriptorHeap{
		kind:     kind,
		capacity: capacity,
		cpuBase:  uint64(kind+1) << 32,
		slots:    make([]slot, capacity),
	}
	if kind.ShaderVisible() {
		h.gpuBase = uint64(kind+1) << 40
		if err := d.createDescriptorSet(h); err != nil {
			return nil, fmt.Errorf("%s heap: %w", kind, err)
		}
	}
	d.heaps[kind] = h
	d.logger.Debug("descriptor heap created", "kind", kind, "capacity", capacity)
	return h, nil
}

func (d *Device) createDescriptorSet(h *DescriptorHeap) error {
	bindings := heapBindings(h.kind, h.capacity)

	// Slots are written as they are allocated, so every binding is sparse.
	flags := make([]vk.DescriptorBindingFlags, len(bindings))
	for i := range flags {
		flags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
	}
	flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  uint32(len(flags)),
		PBindingFlags: flags,
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafe.Pointer(&flagsInfo),
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.handle, &layoutInfo, nil, &h.layout)); err != nil {
		return err
	}

	sizes := make([]vk.DescriptorPoolSize, len(bindings))
	for i, b := range bindings {
		sizes[i] = vk.DescriptorPoolSize{Type: b.DescriptorType, DescriptorCount: b.DescriptorCount}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.handle, &poolInfo, nil, &h.pool)); err != nil {
		return err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     h.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{h.layout},
	}
	return check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.handle, &allocInfo, &h.set))
}

// replace installs s at index and destroys what the previous view created.
func (d *Device) replace(h *DescriptorHeap, index uint32, s slot) {
	old := h.slots[index]
	if old.view != nil {
		d.framebuffers.evictView(d.handle, old.view)
		vk.DestroyImageView(d.handle, old.view, nil)
	}
	if old.sampler != nil {
		vk.DestroySampler(d.handle, old.sampler, nil)
	}
	h.slots[index] = s
}

func (d *Device) destroyHeap(h *DescriptorHeap) {
	for i := range h.slots {
		d.replace(h, uint32(i), slot{})
	}
	if h.pool != nil {
		vk.DestroyDescriptorPool(d.handle, h.pool, nil)
		h.pool = nil
	}
	if h.layout != nil {
		vk.DestroyDescriptorSetLayout(d.handle, h.layout, nil)
		h.layout = nil
	}
}

func (h *DescriptorHeap) write(dev vk.Device, binding, index uint32, t vk.DescriptorType, buffer *vk.DescriptorBufferInfo, image *vk.DescriptorImageInfo) {
	w := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.set,
		DstBinding:      binding,
		DstArrayElement: index,
		DescriptorCount: 1,
		DescriptorType:  t,
	}
	if buffer != nil {
		w.PBufferInfo = []vk.DescriptorBufferInfo{*buffer}
	}
	if image != nil {
		w.PImageInfo = []vk.DescriptorImageInfo{*image}
	}
	vk.UpdateDescriptorSets(dev, 1, []vk.WriteDescriptorSet{w}, 0, nil)
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

	switch kind {
	case metadata.DescriptorKindRenderTargetView, metadata.DescriptorKindDepthStencilView:
		return d.createAttachmentView(h, dst.Index, res, view)
	case metadata.DescriptorKindConstantBufferView:
		return d.createConstantBufferView(h, dst.Index, res, view)
	case metadata.DescriptorKindShaderResourceView, metadata.DescriptorKindUnorderedAccessView:
		return d.createShaderView(kind, h, dst.Index, res, view)
	case metadata.DescriptorKindSampler:
		return d.createSampler(h, dst.Index)
	}
	return fmt.Errorf("unknown descriptor kind %s", kind)
}

func (d *Device) createAttachmentView(h *DescriptorHeap, index uint32, res metadata.NativeResource, view metadata.ViewDesc) error {
	if res == nil {
		d.replace(h, index, slot{})
		return nil
	}
	t, ok := res.(*Texture)
	if !ok {
		return fmt.Errorf("%s view of %T", h.kind, res)
	}
	v, err := d.createImageView(t, imageViewDesc{
		firstMip:   view.MipSlice,
		mipCount:   1,
		firstLayer: view.FirstArraySlice,
		layerCount: max(view.ArraySize, 1),
	})
	if err != nil {
		return err
	}
	d.replace(h, index, slot{
		view:   v,
		owner:  t,
		format: t.format,
		extent: vk.Extent2D{
			Width:  metadata.MipExtent(t.desc.Width, view.MipSlice),
			Height: metadata.MipExtent(t.desc.Height, view.MipSlice),
		},
	})
	return nil
}

func (d *Device) createConstantBufferView(h *DescriptorHeap, index uint32, res metadata.NativeResource, view metadata.ViewDesc) error {
	address := view.BufferLocation
	if address == 0 {
		if res == nil {
			d.replace(h, index, slot{})
			return nil
		}
		address = res.GPUVirtualAddress()
	}
	buffer, offset, ok := d.bufferAt(address)
	if !ok {
		return fmt.Errorf("%w: constant buffer address %#x is not inside a live buffer", core.ErrInvalidView, address)
	}
	size := uint64(view.SizeInBytes)
	if size == 0 {
		size = buffer.Size() - offset
	}
	d.replace(h, index, slot{})
	h.write(d.handle, bindingUniformBuffer, index, vk.DescriptorTypeUniformBuffer,
		&vk.DescriptorBufferInfo{Buffer: buffer.handle, Offset: vk.DeviceSize(offset), Range: vk.DeviceSize(size)}, nil)
	return nil
}

func (d *Device) createShaderView(kind metadata.DescriptorKind, h *DescriptorHeap, index uint32, res metadata.NativeResource, view metadata.ViewDesc) error {
	if view.AccelerationStructure {
		return fmt.Errorf("%s view of an acceleration structure: %w", kind, core.ErrRaytracingUnsupported)
	}
	unordered := kind == metadata.DescriptorKindUnorderedAccessView

	switch r := res.(type) {
	case nil:
		d.replace(h, index, slot{})
		return nil
	case *Buffer:
		stride := uint64(view.ElementSize)
		if view.Raw || stride == 0 {
			stride = 4
		}
		offset := view.FirstElement * stride
		size := uint64(view.ElementCount) * stride
		if offset >= r.Size() {
			return fmt.Errorf("%w: %s view starts at %d past the end of buffer %q", core.ErrInvalidView, kind, offset, r.name)
		}
		if size == 0 || offset+size > r.Size() {
			size = r.Size() - offset
		}
		d.replace(h, index, slot{})
		h.write(d.handle, bindingStorageBuffer, index, vk.DescriptorTypeStorageBuffer,
			&vk.DescriptorBufferInfo{Buffer: r.handle, Offset: vk.DeviceSize(offset), Range: vk.DeviceSize(size)}, nil)
		return nil
	case *Texture:
		desc := imageViewDesc{
			firstMip:   view.MostDetailedMip,
			mipCount:   view.MipLevels,
			firstLayer: view.FirstArraySlice,
			layerCount: view.ArraySize,
			cube:       view.Cube,
			sampled:    true,
		}
		binding, descriptorType, layout := uint32(bindingSampledImage), vk.DescriptorTypeSampledImage, vk.ImageLayoutShaderReadOnlyOptimal
		if r.desc.Format.IsDepth() {
			layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		if unordered {
			desc = imageViewDesc{firstMip: view.MipSlice, mipCount: 1, firstLayer: view.FirstArraySlice, layerCount: view.ArraySize}
			binding, descriptorType, layout = bindingStorageImage, vk.DescriptorTypeStorageImage, vk.ImageLayoutGeneral
		}
		v, err := d.createImageView(r, desc)
		if err != nil {
			return err
		}
		d.replace(h, index, slot{view: v, owner: r, format: r.format})
		h.write(d.handle, binding, index, descriptorType, nil,
			&vk.DescriptorImageInfo{ImageView: v, ImageLayout: layout})
		return nil
	}
	return fmt.Errorf("%s view of %T", kind, res)
}

func (d *Device) createSampler(h *DescriptorHeap, index uint32) error {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		MinLod:                  0,
		MaxLod:                  1000,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	var sampler vk.Sampler
	if err := check("vkCreateSampler", vk.CreateSampler(d.handle, &samplerInfo, nil, &sampler)); err != nil {
		return err
	}
	d.replace(h, index, slot{sampler: sampler})
	h.write(d.handle, bindingSampler, index, vk.DescriptorTypeSampler, nil,
		&vk.DescriptorImageInfo{Sampler: sampler})
	return nil
}

// attachment looks up the view a render target or depth stencil
// descriptor was written with.
func (d *Device) attachment(desc metadata.Descriptor) (slot, error) {
	h := d.heaps[desc.Heap]
	if h == nil || desc.Heap.ShaderVisible() {
		return slot{}, fmt.Errorf("%w: %s descriptor is not an attachment", core.ErrInvalidView, desc.Heap)
	}
	if desc.Index >= h.capacity || h.slots[desc.Index].view == nil {
		return slot{}, fmt.Errorf("%w: %s descriptor %d has no view", core.ErrInvalidView, desc.Heap, desc.Index)
	}
	return h.slots[desc.Index], nil
}

var errBindlessIncomplete = errors.New("pipelines need the CBV_SRV_UAV and Sampler heaps")

// bindless returns the pipeline layout every pipeline shares, creating it
// on first use, and the descriptor sets bound with it.
func (d *Device) bindless() (vk.PipelineLayout, []vk.DescriptorSet, error) {
	resources, samplers := d.heaps[metadata.HeapKindCBVSRVUAV], d.heaps[metadata.HeapKindSampler]
	if resources == nil || samplers == nil {
		return nil, nil, errBindlessIncomplete
	}
	sets := []vk.DescriptorSet{resources.set, samplers.set}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.layout != nil {
		return d.layout, sets, nil
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         2,
		PSetLayouts:            []vk.DescriptorSetLayout{resources.layout, samplers.layout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: shaderStages,
			Offset:     0,
			Size:       pushConstantSize,
		}},
	}
	if err := check("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.handle, &layoutInfo, nil, &d.layout)); err != nil {
		return nil, nil, err
	}
	return d.layout, sets, nil
}
