package command

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// SubresourceFromImage converts img to tightly packed RGBA8 texels.
func SubresourceFromImage(img image.Image) metadata.SubresourceData {
	rgba := toRGBA(img)
	return metadata.SubresourceData{
		Data:       rgba.Pix,
		RowPitch:   uint64(rgba.Stride),
		SlicePitch: uint64(rgba.Stride * rgba.Rect.Dy()),
	}
}

// MipChainFromImage returns mipCount RGBA8 subresources, each level half
// the size of the previous one, filtered with a bilinear kernel.
func MipChainFromImage(img image.Image, mipCount uint32) []metadata.SubresourceData {
	level := toRGBA(img)
	chain := make([]metadata.SubresourceData, 0, mipCount)
	for mip := uint32(0); mip < mipCount; mip++ {
		if mip > 0 {
			w, h := max(level.Rect.Dx()/2, 1), max(level.Rect.Dy()/2, 1)
			next := image.NewRGBA(image.Rect(0, 0, w, h))
			draw.BiLinear.Scale(next, next.Rect, level, level.Rect, draw.Src, nil)
			level = next
		}
		chain = append(chain, metadata.SubresourceData{
			Data:       level.Pix,
			RowPitch:   uint64(level.Stride),
			SlicePitch: uint64(level.Stride * level.Rect.Dy()),
		})
	}
	return chain
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	return rgba
}
