package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// stateInfo is what a resource state means to a pipeline barrier.
type stateInfo struct {
	access vk.AccessFlags
	stage  vk.PipelineStageFlags
	layout vk.ImageLayout
}

func access(bits ...vk.AccessFlagBits) vk.AccessFlags {
	var f vk.AccessFlags
	for _, b := range bits {
		f |= vk.AccessFlags(b)
	}
	return f
}

func stages(bits ...vk.PipelineStageFlagBits) vk.PipelineStageFlags {
	var f vk.PipelineStageFlags
	for _, b := range bits {
		f |= vk.PipelineStageFlags(b)
	}
	return f
}

var stateInfos = [...]stateInfo{
	metadata.ResourceStatePresent: {
		stage:  stages(vk.PipelineStageAllCommandsBit),
		layout: vk.ImageLayoutGeneral,
	},
	metadata.ResourceStateVertexBuffer: {
		access: access(vk.AccessVertexAttributeReadBit, vk.AccessShaderReadBit),
		stage:  stages(vk.PipelineStageVertexInputBit, vk.PipelineStageVertexShaderBit),
		layout: vk.ImageLayoutGeneral,
	},
	metadata.ResourceStateIndexBuffer: {
		access: access(vk.AccessIndexReadBit),
		stage:  stages(vk.PipelineStageVertexInputBit),
		layout: vk.ImageLayoutGeneral,
	},
	metadata.ResourceStateRenderTarget: {
		access: access(vk.AccessColorAttachmentReadBit, vk.AccessColorAttachmentWriteBit),
		stage:  stages(vk.PipelineStageColorAttachmentOutputBit),
		layout: vk.ImageLayoutColorAttachmentOptimal,
	},
	metadata.ResourceStateUnorderedAccess: {
		access: access(vk.AccessShaderReadBit, vk.AccessShaderWriteBit),
		stage:  stages(vk.PipelineStageComputeShaderBit, vk.PipelineStageFragmentShaderBit),
		layout: vk.ImageLayoutGeneral,
	},
	metadata.ResourceStateDepthWrite: {
		access: access(vk.AccessDepthStencilAttachmentReadBit, vk.AccessDepthStencilAttachmentWriteBit),
		stage:  stages(vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit),
		layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
	},
	metadata.ResourceStateDepthRead: {
		access: access(vk.AccessDepthStencilAttachmentReadBit, vk.AccessShaderReadBit),
		stage:  stages(vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageFragmentShaderBit),
		layout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
	},
	metadata.ResourceStatePixelShaderResource: {
		access: access(vk.AccessShaderReadBit),
		stage:  stages(vk.PipelineStageFragmentShaderBit),
		layout: vk.ImageLayoutShaderReadOnlyOptimal,
	},
	metadata.ResourceStateNonPixelShaderResource: {
		access: access(vk.AccessShaderReadBit, vk.AccessUniformReadBit),
		stage:  stages(vk.PipelineStageVertexShaderBit, vk.PipelineStageComputeShaderBit),
		layout: vk.ImageLayoutShaderReadOnlyOptimal,
	},
	metadata.ResourceStateCopySource: {
		access: access(vk.AccessTransferReadBit),
		stage:  stages(vk.PipelineStageTransferBit),
		layout: vk.ImageLayoutTransferSrcOptimal,
	},
	metadata.ResourceStateCopyDestination: {
		access: access(vk.AccessTransferWriteBit),
		stage:  stages(vk.PipelineStageTransferBit),
		layout: vk.ImageLayoutTransferDstOptimal,
	},
	metadata.ResourceStateRaytracingAccelerationStructure: {
		access: access(vk.AccessShaderReadBit),
		stage:  stages(vk.PipelineStageComputeShaderBit),
		layout: vk.ImageLayoutGeneral,
	},
	metadata.ResourceStateGenericRead: {
		access: access(vk.AccessShaderReadBit, vk.AccessUniformReadBit, vk.AccessTransferReadBit,
			vk.AccessVertexAttributeReadBit, vk.AccessIndexReadBit),
		stage:  stages(vk.PipelineStageAllCommandsBit),
		layout: vk.ImageLayoutGeneral,
	},
}

func stateInfoOf(s metadata.ResourceState) stateInfo {
	if int(s) < len(stateInfos) {
		return stateInfos[s]
	}
	return stateInfos[metadata.ResourceStateCommon]
}

// queueMasks are the stages and accesses a queue family may name in a
// barrier. Anything else is dropped before recording.
type queueMasks struct {
	stage  vk.PipelineStageFlags
	access vk.AccessFlags
}

var transferMasks = queueMasks{
	stage: stages(vk.PipelineStageTopOfPipeBit, vk.PipelineStageBottomOfPipeBit,
		vk.PipelineStageTransferBit, vk.PipelineStageAllCommandsBit),
	access: access(vk.AccessTransferReadBit, vk.AccessTransferWriteBit,
		vk.AccessMemoryReadBit, vk.AccessMemoryWriteBit),
}

var computeMasks = queueMasks{
	stage: transferMasks.stage | stages(vk.PipelineStageComputeShaderBit, vk.PipelineStageDrawIndirectBit),
	access: transferMasks.access | access(vk.AccessShaderReadBit, vk.AccessShaderWriteBit,
		vk.AccessUniformReadBit, vk.AccessIndirectCommandReadBit),
}

func masksFor(kind metadata.QueueKind) (queueMasks, bool) {
	switch kind {
	case metadata.QueueKindCopy:
		return transferMasks, true
	case metadata.QueueKindCompute:
		return computeMasks, true
	}
	return queueMasks{}, false
}

// barrierBatch collects the barriers of one ResourceBarriers call so they
// are recorded with a single vkCmdPipelineBarrier.
type barrierBatch struct {
	srcStage vk.PipelineStageFlags
	dstStage vk.PipelineStageFlags
	memory   []vk.MemoryBarrier
	buffers  []vk.BufferMemoryBarrier
	images   []vk.ImageMemoryBarrier
}

func (b *barrierBatch) add(desc metadata.BarrierDesc) {
	if desc.Type == metadata.BarrierTypeUnorderedAccess {
		uav := stateInfoOf(metadata.ResourceStateUnorderedAccess)
		b.srcStage |= uav.stage
		b.dstStage |= uav.stage
		b.memory = append(b.memory, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: access(vk.AccessShaderWriteBit),
			DstAccessMask: uav.access,
		})
		return
	}

	before, after := stateInfoOf(desc.StateBefore), stateInfoOf(desc.StateAfter)
	b.srcStage |= before.stage
	b.dstStage |= after.stage

	switch res := desc.Resource.(type) {
	case *Buffer:
		b.buffers = append(b.buffers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       before.access,
			DstAccessMask:       after.access,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              res.handle,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	case *Texture:
		oldLayout := before.layout
		if !res.layoutInitialized {
			oldLayout = vk.ImageLayoutUndefined
			res.layoutInitialized = true
		}
		b.images = append(b.images, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       before.access,
			DstAccessMask:       after.access,
			OldLayout:           oldLayout,
			NewLayout:           after.layout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               res.handle,
			SubresourceRange:    res.fullRange(),
		})
	}
}

func (b *barrierBatch) restrict(kind metadata.QueueKind) {
	masks, ok := masksFor(kind)
	if !ok {
		return
	}
	b.srcStage &= masks.stage
	b.dstStage &= masks.stage
	for i := range b.memory {
		b.memory[i].SrcAccessMask &= masks.access
		b.memory[i].DstAccessMask &= masks.access
	}
	for i := range b.buffers {
		b.buffers[i].SrcAccessMask &= masks.access
		b.buffers[i].DstAccessMask &= masks.access
	}
	for i := range b.images {
		b.images[i].SrcAccessMask &= masks.access
		b.images[i].DstAccessMask &= masks.access
	}
}

func (b *barrierBatch) empty() bool {
	return len(b.memory) == 0 && len(b.buffers) == 0 && len(b.images) == 0
}

func (b *barrierBatch) record(cb vk.CommandBuffer, kind metadata.QueueKind) {
	b.restrict(kind)
	src, dst := b.srcStage, b.dstStage
	if src == 0 {
		src = stages(vk.PipelineStageTopOfPipeBit)
	}
	if dst == 0 {
		dst = stages(vk.PipelineStageBottomOfPipeBit)
	}
	vk.CmdPipelineBarrier(cb, src, dst, vk.DependencyFlags(0),
		uint32(len(b.memory)), b.memory,
		uint32(len(b.buffers)), b.buffers,
		uint32(len(b.images)), b.images)
}
