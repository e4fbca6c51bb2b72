package headless

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// Buffer is a buffer kept in host memory.
type Buffer struct {
	id        uint64
	name      string
	desc      metadata.BufferDesc
	address   uint64
	data      []byte
	mapped    bool
	destroyed bool
}

func (b *Buffer) ID() uint64 { return b.id }
func (b *Buffer) Name() string { return b.name }
func (b *Buffer) Desc() metadata.BufferDesc { return b.desc }
func (b *Buffer) GPUVirtualAddress() uint64 { return b.address }
func (b *Buffer) Size() uint64 { return b.desc.Size }
func (b *Buffer) SetDebugName(name string) { b.name = name }
func (b *Buffer) Destroyed() bool { return b.destroyed }
func (b *Buffer) Mapped() bool { return b.mapped }

// Bytes exposes the memory of the buffer regardless of its heap.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Map() ([]byte, error) {
	if b.desc.Heap != metadata.MemoryHeapUpload {
		return nil, fmt.Errorf("%w: buffer %q", core.ErrNotHostVisible, b.name)
	}
	b.mapped = true
	return b.data, nil
}

func (b *Buffer) Unmap() {
	b.mapped = false
}

// Texture keeps every subresource tightly packed.
type Texture struct {
	id           uint64
	name         string
	desc         metadata.TextureDesc
	subresources [][]byte
	destroyed    bool
}

func (t *Texture) ID() uint64 { return t.id }
func (t *Texture) Name() string { return t.name }
func (t *Texture) Desc() metadata.TextureDesc { return t.desc }
func (t *Texture) GPUVirtualAddress() uint64 { return 0 }
func (t *Texture) SetDebugName(name string) { t.name = name }
func (t *Texture) Destroyed() bool { return t.destroyed }

func (t *Texture) Size() uint64 {
	var size uint64
	for _, s := range t.subresources {
		size += uint64(len(s))
	}
	return size
}

// Subresource returns the tightly packed texels of subresource i.
func (t *Texture) Subresource(i uint32) []byte {
	return t.subresources[i]
}

func (t *Texture) Map() ([]byte, error) {
	return nil, fmt.Errorf("%w: texture %q", core.ErrNotHostVisible, t.name)
}

func (t *Texture) Unmap() {}

// Pipeline is a named pipeline state object without any shader behind it.
type Pipeline struct {
	name      string
	bindPoint metadata.PipelineBindPoint
}

func NewPipeline(name string, bindPoint metadata.PipelineBindPoint) *Pipeline {
	return &Pipeline{name: name, bindPoint: bindPoint}
}

func (p *Pipeline) Name() string { return p.name }
func (p *Pipeline) BindPoint() metadata.PipelineBindPoint { return p.bindPoint }
