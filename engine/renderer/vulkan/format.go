package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

var formats = map[metadata.Format]vk.Format{
	metadata.FormatR8Unorm:        vk.FormatR8Unorm,
	metadata.FormatR16Uint:        vk.FormatR16Uint,
	metadata.FormatR16Float:       vk.FormatR16Sfloat,
	metadata.FormatR32Uint:        vk.FormatR32Uint,
	metadata.FormatR32Float:       vk.FormatR32Sfloat,
	metadata.FormatRG32Float:      vk.FormatR32g32Sfloat,
	metadata.FormatRGB32Float:     vk.FormatR32g32b32Sfloat,
	metadata.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.FormatRGBA8UnormSRGB: vk.FormatR8g8b8a8Srgb,
	metadata.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	metadata.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	metadata.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	metadata.FormatD32Float:       vk.FormatD32Sfloat,
}

func toVkFormat(f metadata.Format) vk.Format {
	if vf, ok := formats[f]; ok {
		return vf
	}
	return vk.FormatUndefined
}

func aspectMask(f metadata.Format) vk.ImageAspectFlags {
	switch f {
	case metadata.FormatD24UnormS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit) | vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	case metadata.FormatD32Float:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// depthAspect is the aspect of a depth attachment in its vk.Format.
func depthAspect(f vk.Format) vk.ImageAspectFlags {
	if f == vk.FormatD24UnormS8Uint {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit) | vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
}

func toVkIndexType(f metadata.Format) (vk.IndexType, bool) {
	switch f {
	case metadata.FormatR16Uint:
		return vk.IndexTypeUint16, true
	case metadata.FormatR32Uint:
		return vk.IndexTypeUint32, true
	}
	return 0, false
}

func toVkTopology(t metadata.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case metadata.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case metadata.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}
