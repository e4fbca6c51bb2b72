package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

func TestStateInfoCoversEveryState(t *testing.T) {
	for s := metadata.ResourceStatePresent; s <= metadata.ResourceStateGenericRead; s++ {
		info := stateInfoOf(s)
		assert.NotZero(t, info.stage, "state %s has no stage", s)
	}
	assert.Equal(t, stateInfos[metadata.ResourceStateCommon], stateInfoOf(metadata.ResourceState(200)))
}

func TestStateInfoLayouts(t *testing.T) {
	tests := map[metadata.ResourceState]vk.ImageLayout{
		metadata.ResourceStateRenderTarget:        vk.ImageLayoutColorAttachmentOptimal,
		metadata.ResourceStateDepthWrite:          vk.ImageLayoutDepthStencilAttachmentOptimal,
		metadata.ResourceStatePixelShaderResource: vk.ImageLayoutShaderReadOnlyOptimal,
		metadata.ResourceStateUnorderedAccess:     vk.ImageLayoutGeneral,
		metadata.ResourceStateCopySource:          vk.ImageLayoutTransferSrcOptimal,
		metadata.ResourceStateCopyDestination:     vk.ImageLayoutTransferDstOptimal,
	}
	for state, layout := range tests {
		assert.Equal(t, layout, stateInfoOf(state).layout, state.String())
	}
}

func TestBarrierBatchFirstTextureTransitionDiscards(t *testing.T) {
	tex := &Texture{desc: metadata.TextureDesc{Format: metadata.FormatRGBA8Unorm, MipLevels: 3, ArraySize: 2}}

	var batch barrierBatch
	batch.add(metadata.BarrierDesc{
		Type:        metadata.BarrierTypeTransition,
		Resource:    tex,
		StateBefore: metadata.ResourceStateCommon,
		StateAfter:  metadata.ResourceStateCopyDestination,
	})
	require.Len(t, batch.images, 1)
	assert.Equal(t, vk.ImageLayoutUndefined, batch.images[0].OldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, batch.images[0].NewLayout)
	assert.Equal(t, uint32(3), batch.images[0].SubresourceRange.LevelCount)
	assert.Equal(t, uint32(2), batch.images[0].SubresourceRange.LayerCount)
	assert.True(t, tex.layoutInitialized)

	batch.add(metadata.BarrierDesc{
		Type:        metadata.BarrierTypeTransition,
		Resource:    tex,
		StateBefore: metadata.ResourceStateCopyDestination,
		StateAfter:  metadata.ResourceStatePixelShaderResource,
	})
	require.Len(t, batch.images, 2)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, batch.images[1].OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, batch.images[1].NewLayout)
}

func TestBarrierBatchUnorderedAccessIsMemoryBarrier(t *testing.T) {
	var batch barrierBatch
	batch.add(metadata.BarrierDesc{Type: metadata.BarrierTypeUnorderedAccess, Resource: &Buffer{}})

	assert.Len(t, batch.memory, 1)
	assert.Empty(t, batch.buffers)
	assert.Empty(t, batch.images)
	assert.False(t, batch.empty())
	assert.NotZero(t, batch.memory[0].SrcAccessMask&access(vk.AccessShaderWriteBit))
}

func TestBarrierBatchRestrictsCopyQueue(t *testing.T) {
	var batch barrierBatch
	batch.add(metadata.BarrierDesc{
		Type:        metadata.BarrierTypeTransition,
		Resource:    &Buffer{},
		StateBefore: metadata.ResourceStatePixelShaderResource,
		StateAfter:  metadata.ResourceStateCopySource,
	})
	require.Len(t, batch.buffers, 1)
	assert.NotZero(t, batch.srcStage&stages(vk.PipelineStageFragmentShaderBit))

	batch.restrict(metadata.QueueKindCopy)
	assert.Zero(t, batch.srcStage&stages(vk.PipelineStageFragmentShaderBit))
	assert.Zero(t, batch.buffers[0].SrcAccessMask&access(vk.AccessShaderReadBit))
	assert.Equal(t, access(vk.AccessTransferReadBit), batch.buffers[0].DstAccessMask)
}

func TestBarrierBatchGraphicsKeepsEverything(t *testing.T) {
	var batch barrierBatch
	batch.add(metadata.BarrierDesc{
		Type:        metadata.BarrierTypeTransition,
		Resource:    &Buffer{},
		StateBefore: metadata.ResourceStateVertexBuffer,
		StateAfter:  metadata.ResourceStateCopyDestination,
	})
	before := batch.srcStage
	batch.restrict(metadata.QueueKindGraphics)
	assert.Equal(t, before, batch.srcStage)
}
