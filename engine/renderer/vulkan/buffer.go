package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/math"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

const bufferUsage = vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit |
	vk.BufferUsageUniformBufferBit | vk.BufferUsageStorageBufferBit |
	vk.BufferUsageIndexBufferBit | vk.BufferUsageVertexBufferBit

// Buffer is a vk.Buffer bound to its own allocation. Upload heap buffers
// stay mapped until destroyed.
type Buffer struct {
	name    string
	desc    metadata.BufferDesc
	handle  vk.Buffer
	memory  vk.DeviceMemory
	address uint64
	mapped  []byte
}

func (b *Buffer) Handle() vk.Buffer { return b.handle }
func (b *Buffer) GPUVirtualAddress() uint64 { return b.address }
func (b *Buffer) Size() uint64 { return b.desc.Size }
func (b *Buffer) SetDebugName(name string) { b.name = name }

func (b *Buffer) Map() ([]byte, error) {
	if b.mapped == nil {
		return nil, fmt.Errorf("%w: buffer %q", core.ErrNotHostVisible, b.name)
	}
	return b.mapped, nil
}

// Unmap keeps the persistent mapping; it is released with the buffer.
func (b *Buffer) Unmap() {}

func (b *Buffer) contains(address uint64) bool {
	return address >= b.address && address < b.address+b.desc.Size
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.NativeResource, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size", desc.Name)
	}
	if desc.Heap == metadata.MemoryHeapUpload && desc.InitialState != metadata.ResourceStateGenericRead {
		return nil, fmt.Errorf("upload buffer %q must start in %s, got %s", desc.Name, metadata.ResourceStateGenericRead, desc.InitialState)
	}

	b := &Buffer{name: desc.Name, desc: desc}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(bufferUsage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.handle, &createInfo, nil, &b.handle)); err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Name, err)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, b.handle, &req)
	req.Deref()

	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if desc.Heap == metadata.MemoryHeapUpload {
		flags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	memory, err := d.allocate(req, flags)
	if err != nil {
		vk.DestroyBuffer(d.handle, b.handle, nil)
		return nil, fmt.Errorf("buffer %q: %w", desc.Name, err)
	}
	b.memory = memory
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(d.handle, b.handle, b.memory, 0)); err != nil {
		d.destroyBuffer(b)
		return nil, fmt.Errorf("buffer %q: %w", desc.Name, err)
	}

	if desc.Heap == metadata.MemoryHeapUpload {
		var ptr unsafe.Pointer
		if err := check("vkMapMemory", vk.MapMemory(d.handle, b.memory, 0, vk.DeviceSize(desc.Size), 0, &ptr)); err != nil {
			d.destroyBuffer(b)
			return nil, fmt.Errorf("buffer %q: %w", desc.Name, err)
		}
		b.mapped = unsafe.Slice((*byte)(ptr), desc.Size)
	}

	d.mu.Lock()
	b.address = d.nextAddress
	d.nextAddress = math.AlignUp(d.nextAddress+desc.Size, uint64(addressAlignment))
	d.buffers[b] = struct{}{}
	d.mu.Unlock()
	return b, nil
}

func (d *Device) destroyBuffer(b *Buffer) {
	if b.mapped != nil {
		vk.UnmapMemory(d.handle, b.memory)
		b.mapped = nil
	}
	if b.handle != nil {
		vk.DestroyBuffer(d.handle, b.handle, nil)
		b.handle = nil
	}
	if b.memory != nil {
		vk.FreeMemory(d.handle, b.memory, nil)
		b.memory = nil
	}
}

// bufferAt resolves a GPU virtual address to the buffer holding it and the
// offset inside that buffer.
func (d *Device) bufferAt(address uint64) (*Buffer, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for b := range d.buffers {
		if b.contains(address) {
			return b, address - b.address, true
		}
	}
	return nil, 0, false
}

func (d *Device) allocate(req vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	index, err := d.ctx.findMemoryIndex(req.MemoryTypeBits, flags)
	if err != nil {
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(d.handle, &allocInfo, nil, &memory)); err != nil {
		return nil, err
	}
	return memory, nil
}
