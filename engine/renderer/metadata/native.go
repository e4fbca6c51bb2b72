package metadata

/**
 * @brief The native device a backend exposes. Everything above this layer is
 * written against these interfaces and never sees a native API type.
 */
type NativeDevice interface {
	Name() string
	Features() DeviceFeatures

	CreateDescriptorHeap(kind HeapKind, capacity uint32) (DescriptorHeap, error)
	CreateBuffer(desc BufferDesc) (NativeResource, error)
	CreateTexture(desc TextureDesc) (NativeResource, error)
	DestroyResource(res NativeResource)
	/** @brief Writes a view of res into the slot dst. A nil res creates a null view. */
	CreateView(kind DescriptorKind, res NativeResource, view ViewDesc, dst Descriptor) error

	/**
	 * @brief Returns the footprints of count subresources starting at first,
	 * laid out from baseOffset, and the total number of bytes they need.
	 */
	CopyableFootprints(desc TextureDesc, first, count uint32, baseOffset uint64) ([]SubresourceFootprint, uint64)
	AccelerationStructurePrebuildInfo(inputs AccelerationStructureInputs) PrebuildInfo

	Queue(kind QueueKind) NativeQueue
	CreateCommandList(kind QueueKind) (NativeCommandList, error)

	Close() error
}

/** @brief A hardware queue with a monotonically increasing fence. */
type NativeQueue interface {
	Kind() QueueKind
	Submit(lists ...NativeCommandList) error
	/** @brief Signals the queue fence with value once prior submissions finish. */
	Signal(value uint64) error
	CompletedValue() uint64
	/** @brief Blocks until the fence reaches value. */
	Wait(value uint64) error
	TimestampFrequency() (uint64, error)
}

/** @brief A native command list. Recording methods do not fail; errors surface on Close. */
type NativeCommandList interface {
	Kind() QueueKind
	Reset() error
	Close() error

	ResourceBarriers(barriers []BarrierDesc)

	CopyBufferRegion(dst NativeResource, dstOffset uint64, src NativeResource, srcOffset, size uint64)
	CopyTextureRegion(dst NativeResource, dstSubresource uint32, src NativeResource, footprint SubresourceFootprint)

	SetPipelineState(pipeline PipelineState)
	SetRootConstant(bindPoint PipelineBindPoint, index, value uint32)
	Dispatch(x, y, z uint32)

	SetViewport(viewport Viewport)
	SetScissor(rect Rect)
	SetRenderTargets(renderTargets []Descriptor, depthStencil *Descriptor)
	ClearRenderTarget(renderTarget Descriptor, color [4]float32)
	ClearDepthStencil(depthStencil Descriptor, depth float32, stencil uint8)
	SetPrimitiveTopology(topology PrimitiveTopology)
	SetIndexBuffer(view IndexBufferView)
	DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)

	BuildAccelerationStructure(desc AccelerationStructureBuildDesc)
}

/** @brief A native buffer or texture allocation. */
type NativeResource interface {
	GPUVirtualAddress() uint64
	Size() uint64
	/** @brief Returns the CPU view of an upload heap buffer. */
	Map() ([]byte, error)
	Unmap()
	SetDebugName(name string)
}

/** @brief A native descriptor table of fixed capacity. */
type DescriptorHeap interface {
	Kind() HeapKind
	Capacity() uint32
	ShaderVisible() bool
	CPUHandle(index uint32) uint64
	GPUHandle(index uint32) uint64
}

type PipelineState interface {
	Name() string
	BindPoint() PipelineBindPoint
}
