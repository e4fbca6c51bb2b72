package command

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// Staging offsets of buffer copies.
const bufferUploadAlignment = 16

type CopyCommandList struct {
	CommandList

	device metadata.NativeDevice
	upload *UploadRing
}

func (cl *CopyCommandList) UploadRing() *UploadRing {
	return cl.upload
}

// UpdateBuffer stages data and copies it into buffer at destOffset. Upload
// buffers are written through their mapping instead.
func (cl *CopyCommandList) UpdateBuffer(buffer *resource.Buffer, data []byte, destOffset uint64) {
	if len(data) == 0 {
		return
	}
	core.Assert(destOffset+uint64(len(data)) <= buffer.Size(), "destOffset+len(data) <= size", nil,
		"update of %d bytes at %d overflows buffer %q", len(data), destOffset, buffer.Name())

	if buffer.Flags().Has(resource.BufferFlagUpload) {
		buffer.WriteAt(data, destOffset)
		return
	}

	size := uint64(len(data))
	offset := cl.upload.Allocate(size, bufferUploadAlignment)
	copy(cl.upload.Bytes(offset, size), data)
	cl.native.CopyBufferRegion(buffer.Native(), destOffset, cl.upload.Buffer().Native(), offset, size)
}

// UpdateTexture uploads subresources starting at subresource 0. Each one is
// repacked row by row at the row pitch the device requires.
func (cl *CopyCommandList) UpdateTexture(texture *resource.Texture, subresources []metadata.SubresourceData) {
	cl.UpdateTextureRegion(texture, 0, subresources)
}

func (cl *CopyCommandList) UpdateTextureRegion(texture *resource.Texture, first uint32, subresources []metadata.SubresourceData) {
	if len(subresources) == 0 {
		return
	}
	count := uint32(len(subresources))
	core.Assert(first+count <= texture.SubresourceCount(), "first+count <= SubresourceCount", nil,
		"texture %q has %d subresources, got %d starting at %d", texture.Name(), texture.SubresourceCount(), count, first)

	footprints, total := cl.device.CopyableFootprints(texture.Desc(), first, count, 0)
	placement := uint64(cl.device.Features().TexturePlacementAlignment)
	base := cl.upload.Allocate(total, placement)
	staging := cl.upload.Bytes(base, total)

	for i, fp := range footprints {
		src := subresources[i]
		rowPitch := src.RowPitch
		if rowPitch == 0 {
			rowPitch = fp.RowSizeInBytes
		}
		slicePitch := src.SlicePitch
		if slicePitch == 0 {
			slicePitch = rowPitch * uint64(fp.NumRows)
		}
		core.Assert(uint64(len(src.Data)) >= slicePitch*uint64(fp.Depth-1)+rowPitch*uint64(fp.NumRows-1)+fp.RowSizeInBytes,
			"len(Data) covers footprint", nil, "subresource %d of %q is too small", first+uint32(i), texture.Name())

		dstSlicePitch := uint64(fp.RowPitch) * uint64(fp.NumRows)
		for z := uint64(0); z < uint64(fp.Depth); z++ {
			for row := uint64(0); row < uint64(fp.NumRows); row++ {
				dst := fp.Offset + z*dstSlicePitch + row*uint64(fp.RowPitch)
				from := z*slicePitch + row*rowPitch
				copy(staging[dst:dst+fp.RowSizeInBytes], src.Data[from:from+fp.RowSizeInBytes])
			}
		}

		placed := fp
		placed.Offset = base + fp.Offset
		cl.native.CopyTextureRegion(texture.Native(), first+uint32(i), cl.upload.Buffer().Native(), placed)
	}
}

// CopyBuffer copies the whole of src into dst.
func (cl *CopyCommandList) CopyBuffer(dst, src *resource.Buffer) {
	core.Assert(dst.Size() >= src.Size(), "dst.Size() >= src.Size()", nil,
		"cannot copy %q (%d bytes) into %q (%d bytes)", src.Name(), src.Size(), dst.Name(), dst.Size())
	cl.native.CopyBufferRegion(dst.Native(), 0, src.Native(), 0, src.Size())
}
