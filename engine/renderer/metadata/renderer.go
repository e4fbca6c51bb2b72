package metadata

/** @brief The hardware queue a command list is recorded for. */
type QueueKind uint8

const (
	QueueKindGraphics QueueKind = iota
	QueueKindCompute
	QueueKindCopy
)

func (k QueueKind) String() string {
	switch k {
	case QueueKindGraphics:
		return "graphics"
	case QueueKindCompute:
		return "compute"
	case QueueKindCopy:
		return "copy"
	}
	return "unknown"
}

/** @brief The root signature a root argument is bound to. */
type PipelineBindPoint uint8

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointCompute
)

type PrimitiveTopology uint8

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
	PrimitiveTopologyPointList
)

type Viewport struct {
	X        float32
	Y        float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

type IndexBufferView struct {
	Resource NativeResource
	Offset   uint64
	Size     uint32
	Format   Format
}

/** @brief Capabilities and alignment rules of a native device. */
type DeviceFeatures struct {
	Raytracing bool
	/** @brief Row pitch alignment of texture copies through a buffer. */
	TextureRowPitchAlignment uint32
	/** @brief Offset alignment of a subresource inside a copy buffer. */
	TexturePlacementAlignment uint32
	ConstantBufferAlignment   uint32
}

/** @brief The D3D12 values of the alignment rules, also used by the headless device. */
const (
	DefaultTextureRowPitchAlignment  = 256
	DefaultTexturePlacementAlignment = 512
	DefaultConstantBufferAlignment   = 256
)
