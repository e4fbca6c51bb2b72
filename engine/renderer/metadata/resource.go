package metadata

/**
 * @brief The usage state a GPU resource is in. Every barrier moves a
 * resource from one state to another; the state a native command list is
 * told about must always match the tracked one.
 */
type ResourceState uint32

const (
	/** @brief Initial state of most resources and the state a back buffer is presented in. */
	ResourceStatePresent ResourceState = iota
	ResourceStateVertexBuffer
	ResourceStateIndexBuffer
	ResourceStateRenderTarget
	ResourceStateUnorderedAccess
	ResourceStateDepthWrite
	ResourceStateDepthRead
	ResourceStatePixelShaderResource
	ResourceStateNonPixelShaderResource
	ResourceStateCopySource
	ResourceStateCopyDestination
	ResourceStateRaytracingAccelerationStructure
	/** @brief The only state an upload heap resource may be in. */
	ResourceStateGenericRead
)

/** @brief Alias of Present, used for resources that are never presented. */
const ResourceStateCommon = ResourceStatePresent

var resourceStateNames = [...]string{
	ResourceStatePresent:                         "Present",
	ResourceStateVertexBuffer:                    "VertexBuffer",
	ResourceStateIndexBuffer:                     "IndexBuffer",
	ResourceStateRenderTarget:                    "RenderTarget",
	ResourceStateUnorderedAccess:                 "UnorderedAccess",
	ResourceStateDepthWrite:                      "DepthWrite",
	ResourceStateDepthRead:                       "DepthRead",
	ResourceStatePixelShaderResource:             "PixelShaderResource",
	ResourceStateNonPixelShaderResource:          "NonPixelShaderResource",
	ResourceStateCopySource:                      "CopySource",
	ResourceStateCopyDestination:                 "CopyDestination",
	ResourceStateRaytracingAccelerationStructure: "RaytracingAccelerationStructure",
	ResourceStateGenericRead:                     "GenericRead",
}

func (s ResourceState) String() string {
	if int(s) < len(resourceStateNames) {
		return resourceStateNames[s]
	}
	return "Unknown"
}

/** @brief The kind of a resource barrier. */
type BarrierType uint8

const (
	/** @brief Moves a resource from StateBefore to StateAfter. */
	BarrierTypeTransition BarrierType = iota
	/** @brief Orders unordered access writes against later reads and writes of the same resource. */
	BarrierTypeUnorderedAccess
)

func (t BarrierType) String() string {
	switch t {
	case BarrierTypeTransition:
		return "Transition"
	case BarrierTypeUnorderedAccess:
		return "UnorderedAccess"
	}
	return "Unknown"
}

/**
 * @brief The native form of a resource barrier. StateBefore is always filled
 * from the tracked state of the resource, never by the caller.
 */
type BarrierDesc struct {
	Type        BarrierType
	Resource    NativeResource
	StateBefore ResourceState
	StateAfter  ResourceState
}

/** @brief The memory a buffer lives in. */
type MemoryHeap uint8

const (
	/** @brief Device local memory, not CPU accessible. */
	MemoryHeapDefault MemoryHeap = iota
	/** @brief CPU writable memory, persistently mapped. */
	MemoryHeapUpload
)

/** @brief Describes a native buffer allocation. */
type BufferDesc struct {
	Name                 string
	Size                 uint64
	Heap                 MemoryHeap
	AllowUnorderedAccess bool
	InitialState         ResourceState
}

/** @brief Describes the contents of one subresource handed to a copy. */
type SubresourceData struct {
	Data       []byte
	RowPitch   uint64
	SlicePitch uint64
}
