package resource

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/descriptor"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// Factory creates tracked resources on a native device.
type Factory struct {
	device    metadata.NativeDevice
	allocator *descriptor.Allocator
	logger    *core.Logger
}

func NewFactory(device metadata.NativeDevice, allocator *descriptor.Allocator, logger *core.Logger) *Factory {
	return &Factory{
		device:    device,
		allocator: allocator,
		logger:    logger.Named("resource"),
	}
}

func (f *Factory) Allocator() *descriptor.Allocator {
	return f.allocator
}

// CreateBuffer allocates a buffer. Initial data of an upload buffer is
// written immediately; for other heaps it is left to the caller.
func (f *Factory) CreateBuffer(cfg BufferConfig) (*Buffer, error) {
	if cfg.ElementSize == 0 || cfg.ElementCount == 0 {
		return nil, fmt.Errorf("buffer %q: element size and count must be non zero", cfg.DebugName)
	}

	elementSize := alignedElementSize(cfg, f.device.Features())
	desc := metadata.BufferDesc{
		Name:                 cfg.DebugName,
		Size:                 uint64(elementSize) * uint64(cfg.ElementCount),
		Heap:                 metadata.MemoryHeapDefault,
		AllowUnorderedAccess: cfg.Flags.Has(BufferFlagAllowUnorderedAccess),
		InitialState:         cfg.InitialState,
	}
	if cfg.Flags.Has(BufferFlagUpload) {
		desc.Heap = metadata.MemoryHeapUpload
		desc.InitialState = metadata.ResourceStateGenericRead
	}

	native, err := f.device.CreateBuffer(desc)
	if err != nil {
		f.logger.Error("failed to create buffer", "name", cfg.DebugName, "size", desc.Size, "err", err)
		return nil, fmt.Errorf("failed to create buffer %q: %w", cfg.DebugName, err)
	}

	b := &Buffer{
		Resource:     newResource(cfg.DebugName, native, f.device, f.allocator, desc.InitialState),
		flags:        cfg.Flags,
		elementSize:  elementSize,
		elementCount: cfg.ElementCount,
	}
	if desc.Heap == metadata.MemoryHeapUpload {
		mapped, err := native.Map()
		if err != nil {
			f.device.DestroyResource(native)
			f.logger.Error("failed to map upload buffer", "name", cfg.DebugName, "err", err)
			return nil, fmt.Errorf("failed to map buffer %q: %w", cfg.DebugName, err)
		}
		b.mapped = mapped
		if len(cfg.InitialData) > 0 {
			b.Write(cfg.InitialData, 0)
		}
	}

	f.logger.Debug("buffer created", "name", cfg.DebugName, "id", b.id.Short(), "size", desc.Size, "state", desc.InitialState)
	return b, nil
}

func (f *Factory) CreateTexture(cfg TextureConfig) (*Texture, error) {
	desc := metadata.TextureDesc{
		Name:         cfg.DebugName,
		Type:         cfg.Type,
		Format:       cfg.Format,
		Width:        cfg.Width,
		Height:       cfg.Height,
		ArraySize:    max(cfg.ArraySize, 1),
		MipLevels:    max(cfg.MipCount, 1),
		Flags:        cfg.Flags,
		InitialState: cfg.InitialState,
	}
	if cfg.Type == metadata.TextureTypeCube {
		desc.ArraySize = 6
	}

	native, err := f.device.CreateTexture(desc)
	if err != nil {
		f.logger.Error("failed to create texture", "name", cfg.DebugName, "err", err)
		return nil, fmt.Errorf("failed to create texture %q: %w", cfg.DebugName, err)
	}

	t := &Texture{
		Resource: newResource(cfg.DebugName, native, f.device, f.allocator, desc.InitialState),
		desc:     desc,
	}
	f.logger.Debug("texture created", "name", cfg.DebugName, "id", t.id.Short(),
		"format", desc.Format, "width", desc.Width, "height", desc.Height, "state", desc.InitialState)
	return t, nil
}
