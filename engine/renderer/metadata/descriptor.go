package metadata

/**
 * @brief The kind of a descriptor table. Each kind owns exactly one table of
 * fixed capacity for the lifetime of the device.
 */
type HeapKind uint8

const (
	HeapKindRTV HeapKind = iota
	HeapKindDSV
	HeapKindCBVSRVUAV
	HeapKindSampler

	/** @brief Number of heap kinds, not a valid kind. */
	HeapKindCount
)

var heapKindNames = [...]string{
	HeapKindRTV:       "RTV",
	HeapKindDSV:       "DSV",
	HeapKindCBVSRVUAV: "CBV_SRV_UAV",
	HeapKindSampler:   "Sampler",
}

func (k HeapKind) String() string {
	if k < HeapKindCount {
		return heapKindNames[k]
	}
	return "Unknown"
}

/** @brief Shader visible tables expose a GPU handle for every slot. */
func (k HeapKind) ShaderVisible() bool {
	return k == HeapKindCBVSRVUAV || k == HeapKindSampler
}

/** @brief The kind of view a descriptor describes. */
type DescriptorKind uint8

const (
	DescriptorKindRenderTargetView DescriptorKind = iota
	DescriptorKindDepthStencilView
	DescriptorKindConstantBufferView
	DescriptorKindShaderResourceView
	DescriptorKindUnorderedAccessView
	DescriptorKindSampler
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorKindRenderTargetView:
		return "RTV"
	case DescriptorKindDepthStencilView:
		return "DSV"
	case DescriptorKindConstantBufferView:
		return "CBV"
	case DescriptorKindShaderResourceView:
		return "SRV"
	case DescriptorKindUnorderedAccessView:
		return "UAV"
	case DescriptorKindSampler:
		return "Sampler"
	}
	return "Unknown"
}

/** @brief The descriptor table a view of this kind is allocated from. */
func (k DescriptorKind) HeapKind() HeapKind {
	switch k {
	case DescriptorKindRenderTargetView:
		return HeapKindRTV
	case DescriptorKindDepthStencilView:
		return HeapKindDSV
	case DescriptorKindSampler:
		return HeapKindSampler
	default:
		return HeapKindCBVSRVUAV
	}
}

/**
 * @brief A slot in a descriptor table. Index is the bindless index shaders
 * use to reach the view. GPUHandle is zero for tables that are not shader visible.
 */
type Descriptor struct {
	Heap      HeapKind
	Index     uint32
	CPUHandle uint64
	GPUHandle uint64
}

/** @brief Describes how a view interprets the resource it is created for. */
type ViewDesc struct {
	/** @brief Element format. Unknown for structured and raw buffer views. */
	Format Format

	/** @brief Buffer views. */
	FirstElement uint64
	ElementCount uint32
	ElementSize  uint32
	Raw          bool

	/** @brief Constant buffer views. */
	BufferLocation uint64
	SizeInBytes    uint32

	/** @brief Texture views. */
	MostDetailedMip uint32
	MipLevels       uint32
	MipSlice        uint32
	FirstArraySlice uint32
	ArraySize       uint32
	Cube            bool

	/** @brief Shader resource view over a raytracing acceleration structure. */
	AccelerationStructure bool
}
