package resource

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/math"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

type BufferFlag uint8

const (
	// BufferFlagConstantBuffer aligns every element to the constant buffer
	// alignment so each one can be bound on its own.
	BufferFlagConstantBuffer BufferFlag = 1 << iota
	BufferFlagStructuredBuffer
	// BufferFlagUpload places the buffer in CPU writable memory and keeps it
	// mapped for its whole lifetime.
	BufferFlagUpload
	BufferFlagAllowUnorderedAccess
)

func (f BufferFlag) Has(flag BufferFlag) bool {
	return f&flag != 0
}

type BufferConfig struct {
	DebugName    string
	ElementSize  uint32
	ElementCount uint32
	Flags        BufferFlag
	// Ignored for upload buffers, which always live in GenericRead.
	InitialState metadata.ResourceState
	// Written through the mapping for upload buffers, otherwise copied by
	// the copy queue after creation.
	InitialData []byte
}

type Buffer struct {
	Resource

	flags        BufferFlag
	elementSize  uint32
	elementCount uint32
	mapped       []byte
}

func (b *Buffer) Flags() BufferFlag {
	return b.flags
}

// ElementSize is the stride of one element, after constant buffer alignment.
func (b *Buffer) ElementSize() uint32 {
	return b.elementSize
}

func (b *Buffer) ElementCount() uint32 {
	return b.elementCount
}

func (b *Buffer) Size() uint64 {
	return uint64(b.elementSize) * uint64(b.elementCount)
}

// GPUVirtualAddress returns the address of element elementIndex.
func (b *Buffer) GPUVirtualAddress(elementIndex uint32) uint64 {
	return b.native.GPUVirtualAddress() + uint64(elementIndex)*uint64(b.elementSize)
}

// MappedData is the persistent CPU view of an upload buffer.
func (b *Buffer) MappedData() []byte {
	return b.mapped
}

// Write copies data into the mapped memory starting at element elementOffset.
func (b *Buffer) Write(data []byte, elementOffset uint32) {
	core.Assert(b.mapped != nil, "mapped != nil", core.ErrNotHostVisible, "buffer %q is not mapped", b.name)
	offset := uint64(elementOffset) * uint64(b.elementSize)
	core.Assert(offset+uint64(len(data)) <= uint64(len(b.mapped)), "offset+len(data) <= size", nil,
		"write of %d bytes at %d overflows buffer %q of %d bytes", len(data), offset, b.name, len(b.mapped))
	copy(b.mapped[offset:], data)
}

// WriteAt copies data into the mapped memory at a byte offset.
func (b *Buffer) WriteAt(data []byte, byteOffset uint64) {
	core.Assert(b.mapped != nil, "mapped != nil", core.ErrNotHostVisible, "buffer %q is not mapped", b.name)
	core.Assert(byteOffset+uint64(len(data)) <= uint64(len(b.mapped)), "offset+len(data) <= size", nil,
		"write of %d bytes at %d overflows buffer %q of %d bytes", len(data), byteOffset, b.name, len(b.mapped))
	copy(b.mapped[byteOffset:], data)
}

func (b *Buffer) Destroy() {
	if b.mapped != nil {
		b.native.Unmap()
		b.mapped = nil
	}
	b.Resource.Destroy()
}

// PushConstantBufferView creates a view of one element and returns its position.
func (b *Buffer) PushConstantBufferView(elementIndex uint32) int {
	core.Assert(b.flags.Has(BufferFlagConstantBuffer), "flags.Has(ConstantBuffer)", nil,
		"buffer %q is not a constant buffer", b.name)
	return b.createView(metadata.DescriptorKindConstantBufferView, metadata.ViewDesc{
		BufferLocation: b.GPUVirtualAddress(elementIndex),
		SizeInBytes:    b.elementSize,
	})
}

// PushShaderResourceView creates a view of the whole buffer, structured when
// the buffer is structured and raw otherwise.
func (b *Buffer) PushShaderResourceView() int {
	return b.createView(metadata.DescriptorKindShaderResourceView, b.wholeBufferView())
}

// wholeBufferView covers every element of a structured buffer, or every
// four-byte word of a raw one.
func (b *Buffer) wholeBufferView() metadata.ViewDesc {
	if !b.flags.Has(BufferFlagStructuredBuffer) {
		return metadata.ViewDesc{ElementCount: uint32(b.Size() / 4), ElementSize: 4, Raw: true}
	}
	return metadata.ViewDesc{ElementCount: b.elementCount, ElementSize: b.elementSize}
}

// PushAccelerationStructureView creates the view a raytracing shader binds a
// top level acceleration structure through.
func (b *Buffer) PushAccelerationStructureView() int {
	return b.createView(metadata.DescriptorKindShaderResourceView, metadata.ViewDesc{
		BufferLocation:        b.GPUVirtualAddress(0),
		AccelerationStructure: true,
	})
}

func (b *Buffer) PushUnorderedAccessView() int {
	core.Assert(b.flags.Has(BufferFlagAllowUnorderedAccess), "flags.Has(AllowUnorderedAccess)", nil,
		"buffer %q does not allow unordered access", b.name)
	return b.createView(metadata.DescriptorKindUnorderedAccessView, b.wholeBufferView())
}

func (b *Buffer) ConstantBufferView(index int) metadata.Descriptor {
	return b.GetView(metadata.DescriptorKindConstantBufferView, index)
}

func (b *Buffer) ShaderResourceView(index int) metadata.Descriptor {
	return b.GetView(metadata.DescriptorKindShaderResourceView, index)
}

func (b *Buffer) UnorderedAccessView(index int) metadata.Descriptor {
	return b.GetView(metadata.DescriptorKindUnorderedAccessView, index)
}

func alignedElementSize(cfg BufferConfig, features metadata.DeviceFeatures) uint32 {
	if cfg.Flags.Has(BufferFlagConstantBuffer) {
		return math.AlignUp(cfg.ElementSize, features.ConstantBufferAlignment)
	}
	return cfg.ElementSize
}
