package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// Texture is an optimally tiled vk.Image bound to its own allocation.
type Texture struct {
	name   string
	desc   metadata.TextureDesc
	handle vk.Image
	memory vk.DeviceMemory
	format vk.Format
	size   uint64

	// The first barrier discards the contents instead of naming the old layout.
	layoutInitialized bool
}

func (t *Texture) Handle() vk.Image { return t.handle }
func (t *Texture) GPUVirtualAddress() uint64 { return 0 }
func (t *Texture) Size() uint64 { return t.size }
func (t *Texture) SetDebugName(name string) { t.name = name }

func (t *Texture) Map() ([]byte, error) {
	return nil, fmt.Errorf("%w: texture %q", core.ErrNotHostVisible, t.name)
}

func (t *Texture) Unmap() {}

func (t *Texture) fullRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     aspectMask(t.desc.Format),
		BaseMipLevel:   0,
		LevelCount:     t.desc.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     t.desc.ArraySize,
	}
}

// subresource splits a D3D style subresource index into mip and array slice.
func (t *Texture) subresource(index uint32) (mip, layer uint32) {
	return index % t.desc.MipLevels, index / t.desc.MipLevels
}

func (d *Device) CreateTexture(desc metadata.TextureDesc) (metadata.NativeResource, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.ArraySize == 0 || desc.MipLevels == 0 {
		return nil, fmt.Errorf("texture %q has a zero extent", desc.Name)
	}
	format := toVkFormat(desc.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("texture %q has unsupported format %s", desc.Name, desc.Format)
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) |
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) |
		vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	if desc.Flags&metadata.TextureFlagAllowRenderTarget != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if desc.Flags&metadata.TextureFlagAllowDepthStencil != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if desc.Flags&metadata.TextureFlagAllowUnorderedAccess != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArraySize,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.Type == metadata.TextureTypeCube {
		createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	t := &Texture{name: desc.Name, desc: desc, format: format}
	if err := check("vkCreateImage", vk.CreateImage(d.handle, &createInfo, nil, &t.handle)); err != nil {
		return nil, fmt.Errorf("texture %q: %w", desc.Name, err)
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, t.handle, &req)
	req.Deref()
	t.size = uint64(req.Size)

	memory, err := d.allocate(req, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.handle, t.handle, nil)
		return nil, fmt.Errorf("texture %q: %w", desc.Name, err)
	}
	t.memory = memory
	if err := check("vkBindImageMemory", vk.BindImageMemory(d.handle, t.handle, t.memory, 0)); err != nil {
		d.destroyTexture(t)
		return nil, fmt.Errorf("texture %q: %w", desc.Name, err)
	}

	d.mu.Lock()
	d.textures[t] = struct{}{}
	d.mu.Unlock()
	return t, nil
}

func (d *Device) destroyTexture(t *Texture) {
	d.framebuffers.evictImage(d.handle, t)
	if t.handle != nil {
		vk.DestroyImage(d.handle, t.handle, nil)
		t.handle = nil
	}
	if t.memory != nil {
		vk.FreeMemory(d.handle, t.memory, nil)
		t.memory = nil
	}
}

type imageViewDesc struct {
	firstMip   uint32
	mipCount   uint32
	firstLayer uint32
	layerCount uint32
	cube       bool
	// Shader views of depth stencil images see the depth aspect only.
	sampled bool
}

// createImageView makes a view in the format of the image. Zero counts
// extend to the last mip or slice.
func (d *Device) createImageView(t *Texture, v imageViewDesc) (vk.ImageView, error) {
	if v.mipCount == 0 || v.firstMip+v.mipCount > t.desc.MipLevels {
		v.mipCount = t.desc.MipLevels - v.firstMip
	}
	if v.layerCount == 0 || v.firstLayer+v.layerCount > t.desc.ArraySize {
		v.layerCount = t.desc.ArraySize - v.firstLayer
	}

	viewType := vk.ImageViewType2d
	switch {
	case v.cube:
		viewType = vk.ImageViewTypeCube
	case v.layerCount > 1:
		viewType = vk.ImageViewType2dArray
	}

	aspect := aspectMask(t.desc.Format)
	if v.sampled && t.desc.Format.IsDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.handle,
		ViewType: viewType,
		Format:   t.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   v.firstMip,
			LevelCount:     v.mipCount,
			BaseArrayLayer: v.firstLayer,
			LayerCount:     v.layerCount,
		},
	}

	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(d.handle, &viewInfo, nil, &view)); err != nil {
		return nil, fmt.Errorf("texture %q view: %w", t.name, err)
	}
	return view, nil
}
