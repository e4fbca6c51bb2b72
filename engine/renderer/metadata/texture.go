package metadata

import "github.com/navkagleb/benzin-sub001/engine/math"

/** @brief Texel and vertex element formats understood by the backends. */
type Format uint32

const (
	FormatUnknown Format = iota
	FormatR8Unorm
	FormatR16Uint
	FormatR16Float
	FormatR32Uint
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA8Unorm
	FormatRGBA8UnormSRGB
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatD24UnormS8Uint
	FormatD32Float
)

/** @brief Size in bytes of one texel (or one element for vertex and index formats). */
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatR16Uint, FormatR16Float:
		return 2
	case FormatR32Uint, FormatR32Float, FormatRGBA8Unorm, FormatRGBA8UnormSRGB,
		FormatBGRA8Unorm, FormatD24UnormS8Uint, FormatD32Float:
		return 4
	case FormatRG32Float, FormatRGBA16Float:
		return 8
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

/** @brief Depth formats need a depth stencil view instead of a render target view. */
func (f Format) IsDepth() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32Float
}

func (f Format) String() string {
	switch f {
	case FormatR8Unorm:
		return "R8_UNORM"
	case FormatR16Uint:
		return "R16_UINT"
	case FormatR16Float:
		return "R16_FLOAT"
	case FormatR32Uint:
		return "R32_UINT"
	case FormatR32Float:
		return "R32_FLOAT"
	case FormatRG32Float:
		return "R32G32_FLOAT"
	case FormatRGB32Float:
		return "R32G32B32_FLOAT"
	case FormatRGBA8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatRGBA8UnormSRGB:
		return "R8G8B8A8_UNORM_SRGB"
	case FormatBGRA8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatRGBA16Float:
		return "R16G16B16A16_FLOAT"
	case FormatRGBA32Float:
		return "R32G32B32A32_FLOAT"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32Float:
		return "D32_FLOAT"
	}
	return "UNKNOWN"
}

/**
 * @brief Represents various types of textures.
 */
type TextureType int

const (
	/** @brief A standard two-dimensional texture. */
	TextureType2d TextureType = iota
	/** @brief A cube texture, used for cubemaps. Always has six array slices. */
	TextureTypeCube
)

type TextureFlag uint8

const (
	TextureFlagAllowRenderTarget TextureFlag = 1 << iota
	TextureFlagAllowDepthStencil
	TextureFlagAllowUnorderedAccess
)

/** @brief Describes a native texture allocation. */
type TextureDesc struct {
	Name         string
	Type         TextureType
	Format       Format
	Width        uint32
	Height       uint32
	ArraySize    uint32
	MipLevels    uint32
	Flags        TextureFlag
	InitialState ResourceState
}

/** @brief Number of subresources: one per mip of each array slice. */
func (d TextureDesc) SubresourceCount() uint32 {
	return d.MipLevels * d.ArraySize
}

/**
 * @brief The layout of one subresource inside a linear copy buffer, as the
 * device wants it: Offset is placement aligned, RowPitch is row pitch aligned.
 */
type SubresourceFootprint struct {
	Offset         uint64
	Format         Format
	Width          uint32
	Height         uint32
	Depth          uint32
	RowPitch       uint32
	NumRows        uint32
	RowSizeInBytes uint64
}

/** @brief The extent of a mip level, never smaller than one texel. */
func MipExtent(extent, mip uint32) uint32 {
	if e := extent >> mip; e > 0 {
		return e
	}
	return 1
}

/**
 * @brief Lays out count subresources of desc starting at first in a linear
 * buffer from baseOffset. Rows are padded to rowAlignment and every
 * subresource starts placementAlignment aligned. Also returns the number of
 * bytes from baseOffset to the end of the last row.
 */
func LinearFootprints(desc TextureDesc, first, count uint32, baseOffset uint64, rowAlignment, placementAlignment uint32) ([]SubresourceFootprint, uint64) {
	bpp := desc.Format.BytesPerPixel()
	footprints := make([]SubresourceFootprint, 0, count)
	offset := baseOffset
	end := baseOffset
	for i := first; i < first+count; i++ {
		mip := i % desc.MipLevels
		width, height := MipExtent(desc.Width, mip), MipExtent(desc.Height, mip)
		rowSize := uint64(width * bpp)
		rowPitch := math.AlignUp(uint32(rowSize), rowAlignment)

		offset = math.AlignUp(offset, uint64(placementAlignment))
		footprints = append(footprints, SubresourceFootprint{
			Offset:         offset,
			Format:         desc.Format,
			Width:          width,
			Height:         height,
			Depth:          1,
			RowPitch:       rowPitch,
			NumRows:        height,
			RowSizeInBytes: rowSize,
		})
		end = offset + uint64(rowPitch)*uint64(height-1) + rowSize
		offset += uint64(rowPitch) * uint64(height)
	}
	return footprints, end - baseOffset
}
