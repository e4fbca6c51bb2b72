package resource

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

type TextureConfig struct {
	DebugName string
	Type      metadata.TextureType
	Format    metadata.Format
	Width     uint32
	Height    uint32
	// Six for cube textures whatever is set here.
	ArraySize    uint32
	MipCount     uint32
	Flags        metadata.TextureFlag
	InitialState metadata.ResourceState
}

type Texture struct {
	Resource

	desc metadata.TextureDesc
}

func (t *Texture) Desc() metadata.TextureDesc { return t.desc }
func (t *Texture) Type() metadata.TextureType { return t.desc.Type }
func (t *Texture) Format() metadata.Format { return t.desc.Format }
func (t *Texture) Width() uint32 { return t.desc.Width }
func (t *Texture) Height() uint32 { return t.desc.Height }
func (t *Texture) ArraySize() uint32 { return t.desc.ArraySize }
func (t *Texture) MipCount() uint32 { return t.desc.MipLevels }

func (t *Texture) SubresourceCount() uint32 {
	return t.desc.SubresourceCount()
}

// SubresourceIndex follows the D3D12 ordering: mips of slice 0 first.
func (t *Texture) SubresourceIndex(mip, slice uint32) uint32 {
	core.Assert(mip < t.desc.MipLevels && slice < t.desc.ArraySize, "mip < MipLevels && slice < ArraySize", nil,
		"subresource (mip %d, slice %d) out of range for %q", mip, slice, t.name)
	return mip + slice*t.desc.MipLevels
}

func (t *Texture) PushShaderResourceView() int {
	return t.createView(metadata.DescriptorKindShaderResourceView, metadata.ViewDesc{
		Format:    t.desc.Format,
		MipLevels: t.desc.MipLevels,
		ArraySize: t.desc.ArraySize,
		Cube:      t.desc.Type == metadata.TextureTypeCube,
	})
}

func (t *Texture) PushUnorderedAccessView(mip uint32) int {
	core.Assert(t.desc.Flags&metadata.TextureFlagAllowUnorderedAccess != 0, "Flags&AllowUnorderedAccess != 0", nil,
		"texture %q does not allow unordered access", t.name)
	return t.createView(metadata.DescriptorKindUnorderedAccessView, metadata.ViewDesc{
		Format:    t.desc.Format,
		MipSlice:  mip,
		ArraySize: t.desc.ArraySize,
	})
}

func (t *Texture) PushRenderTargetView(mip, slice uint32) int {
	core.Assert(t.desc.Flags&metadata.TextureFlagAllowRenderTarget != 0, "Flags&AllowRenderTarget != 0", nil,
		"texture %q does not allow render target", t.name)
	return t.createView(metadata.DescriptorKindRenderTargetView, metadata.ViewDesc{
		Format:          t.desc.Format,
		MipSlice:        mip,
		FirstArraySlice: slice,
		ArraySize:       1,
	})
}

func (t *Texture) PushDepthStencilView() int {
	core.Assert(t.desc.Flags&metadata.TextureFlagAllowDepthStencil != 0, "Flags&AllowDepthStencil != 0", nil,
		"texture %q does not allow depth stencil", t.name)
	return t.createView(metadata.DescriptorKindDepthStencilView, metadata.ViewDesc{
		Format:    t.desc.Format,
		ArraySize: t.desc.ArraySize,
	})
}

func (t *Texture) ShaderResourceView(index int) metadata.Descriptor {
	return t.GetView(metadata.DescriptorKindShaderResourceView, index)
}

func (t *Texture) UnorderedAccessView(index int) metadata.Descriptor {
	return t.GetView(metadata.DescriptorKindUnorderedAccessView, index)
}

func (t *Texture) RenderTargetView(index int) metadata.Descriptor {
	return t.GetView(metadata.DescriptorKindRenderTargetView, index)
}

func (t *Texture) DepthStencilView(index int) metadata.Descriptor {
	return t.GetView(metadata.DescriptorKindDepthStencilView, index)
}
