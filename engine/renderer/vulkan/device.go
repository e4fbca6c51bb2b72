package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

var errDeviceClosed = errors.New("device closed")

// Device is a logical Vulkan device with one queue per engine queue kind.
type Device struct {
	ctx      *Context
	handle   vk.Device
	logger   *core.Logger
	features metadata.DeviceFeatures
	locks    *queueLocks
	queues   [3]*Queue

	renderPasses *renderPassCache
	framebuffers *framebufferCache

	mu          sync.Mutex
	nextAddress uint64
	buffers     map[*Buffer]struct{}
	textures    map[*Texture]struct{}
	pipelines   map[*Pipeline]struct{}
	lists       map[*CommandList]struct{}
	heaps       [metadata.HeapKindCount]*DescriptorHeap
	layout      vk.PipelineLayout
	closed      bool
}

func NewDevice(opts Options, logger *core.Logger) (*Device, error) {
	logger = logger.Named("vulkan")
	ctx, err := newContext(opts, logger)
	if err != nil {
		return nil, err
	}

	d := &Device{
		ctx:          ctx,
		logger:       logger,
		locks:        newQueueLocks(),
		renderPasses: newRenderPassCache(),
		framebuffers: newFramebufferCache(),
		nextAddress:  addressBase,
		buffers:      make(map[*Buffer]struct{}),
		textures:     make(map[*Texture]struct{}),
		pipelines:    make(map[*Pipeline]struct{}),
		lists:        make(map[*CommandList]struct{}),
	}
	if err := d.createLogicalDevice(); err != nil {
		ctx.destroy()
		return nil, err
	}

	families := [...]uint32{
		metadata.QueueKindGraphics: ctx.families.graphics,
		metadata.QueueKindCompute:  ctx.families.compute,
		metadata.QueueKindCopy:     ctx.families.transfer,
	}
	for kind, family := range families {
		q := &Queue{device: d, kind: metadata.QueueKind(kind), family: family}
		vk.GetDeviceQueue(d.handle, family, 0, &q.handle)
		d.queues[kind] = q
	}

	limits := ctx.Limits
	d.features = metadata.DeviceFeatures{
		Raytracing:                false,
		TextureRowPitchAlignment:  max(metadata.DefaultTextureRowPitchAlignment, uint32(limits.OptimalBufferCopyRowPitchAlignment)),
		TexturePlacementAlignment: max(metadata.DefaultTexturePlacementAlignment, uint32(limits.OptimalBufferCopyOffsetAlignment)),
		ConstantBufferAlignment:   max(metadata.DefaultConstantBufferAlignment, uint32(limits.MinUniformBufferOffsetAlignment)),
	}

	logger.Info("logical device created",
		"name", ctx.Name,
		"row_pitch_alignment", d.features.TextureRowPitchAlignment,
		"placement_alignment", d.features.TexturePlacementAlignment)
	return d, nil
}

// createLogicalDevice creates one queue per distinct family and enables the
// descriptor indexing features bindless heaps rely on.
func (d *Device) createLogicalDevice() error {
	f := d.ctx.families
	var queueInfos []vk.DeviceQueueCreateInfo
	seen := make(map[uint32]bool, 3)
	for _, family := range []uint32{f.graphics, f.compute, f.transfer} {
		if seen[family] {
			continue
		}
		seen[family] = true
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	indexing := vk.PhysicalDeviceVulkan12Features{
		SType:                                      vk.StructureTypePhysicalDeviceVulkan12Features,
		DescriptorIndexing:                         vk.True,
		RuntimeDescriptorArray:                     vk.True,
		DescriptorBindingPartiallyBound:            vk.True,
		ShaderSampledImageArrayNonUniformIndexing:  vk.True,
		ShaderStorageBufferArrayNonUniformIndexing: vk.True,
		ShaderStorageImageArrayNonUniformIndexing:  vk.True,
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queueInfos)),
		PQueueCreateInfos:    queueInfos,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			ShaderSampledImageArrayDynamicIndexing:  vk.True,
			ShaderStorageBufferArrayDynamicIndexing: vk.True,
			ShaderStorageImageArrayDynamicIndexing:  vk.True,
		}},
		PNext: unsafe.Pointer(&indexing),
	}
	return check("vkCreateDevice", vk.CreateDevice(d.ctx.PhysicalDevice, &createInfo, nil, &d.handle))
}

func (d *Device) Name() string {
	return d.ctx.Name
}

func (d *Device) Features() metadata.DeviceFeatures {
	return d.features
}

func (d *Device) DestroyResource(res metadata.NativeResource) {
	switch r := res.(type) {
	case *Buffer:
		d.mu.Lock()
		delete(d.buffers, r)
		d.mu.Unlock()
		d.destroyBuffer(r)
	case *Texture:
		d.mu.Lock()
		delete(d.textures, r)
		d.mu.Unlock()
		d.destroyTexture(r)
	}
}

func (d *Device) CopyableFootprints(desc metadata.TextureDesc, first, count uint32, baseOffset uint64) ([]metadata.SubresourceFootprint, uint64) {
	return metadata.LinearFootprints(desc, first, count, baseOffset,
		d.features.TextureRowPitchAlignment, d.features.TexturePlacementAlignment)
}

// AccelerationStructurePrebuildInfo reports zero sizes; raytracing is not
// exposed by this device.
func (d *Device) AccelerationStructurePrebuildInfo(metadata.AccelerationStructureInputs) metadata.PrebuildInfo {
	return metadata.PrebuildInfo{}
}

func (d *Device) Queue(kind metadata.QueueKind) metadata.NativeQueue {
	return d.queues[kind]
}

func (d *Device) CreateCommandList(kind metadata.QueueKind) (metadata.NativeCommandList, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errDeviceClosed
	}
	if int(kind) >= len(d.queues) {
		return nil, fmt.Errorf("%w: queue kind %d", core.ErrInvalidConfig, kind)
	}

	cl, err := newCommandList(d, kind)
	if err != nil {
		return nil, fmt.Errorf("%s command list: %w", kind, err)
	}
	d.mu.Lock()
	d.lists[cl] = struct{}{}
	d.mu.Unlock()
	return cl, nil
}

// Close waits for the device to go idle and releases everything it still
// owns, including resources the caller never destroyed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.handle))

	for cl := range d.lists {
		cl.destroy()
	}
	for _, q := range d.queues {
		q.destroy()
	}
	for p := range d.pipelines {
		vk.DestroyPipeline(d.handle, p.handle, nil)
	}
	if d.layout != nil {
		vk.DestroyPipelineLayout(d.handle, d.layout, nil)
	}
	for _, h := range d.heaps {
		if h != nil {
			d.destroyHeap(h)
		}
	}
	d.framebuffers.destroy(d.handle)
	d.renderPasses.destroy(d.handle)

	if leaked := len(d.buffers) + len(d.textures); leaked > 0 {
		d.logger.Warn("resources alive at device close", "count", leaked)
	}
	for b := range d.buffers {
		d.destroyBuffer(b)
	}
	for t := range d.textures {
		d.destroyTexture(t)
	}

	vk.DestroyDevice(d.handle, nil)
	d.ctx.destroy()
	d.logger.Info("device closed")
	return err
}
