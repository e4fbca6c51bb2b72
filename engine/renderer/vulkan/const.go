package vulkan

const (
	// Synthetic GPU virtual addresses handed to buffers. Vulkan 1.0 has no
	// buffer device address, so constant buffer views resolve them back.
	addressBase      = 0x1_0000_0000
	addressAlignment = 256

	// Root constants are pushed as one range of 32-bit values.
	maxRootConstants = 32
	pushConstantSize = maxRootConstants * 4

	// Bindings of the CBV_SRV_UAV descriptor set. Every binding is an array
	// of the heap's capacity so one bindless index addresses all of them.
	bindingUniformBuffer = 0
	bindingStorageBuffer = 1
	bindingSampledImage  = 2
	bindingStorageImage  = 3

	bindingSampler = 0

	fenceTimeout = ^uint64(0)
)
