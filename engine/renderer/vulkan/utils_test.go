package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

func TestCheck(t *testing.T) {
	assert.NoError(t, check("vkCreateBuffer", vk.Success))

	err := check("vkCreateBuffer", vk.ErrorOutOfDeviceMemory)
	assert.EqualError(t, err, "vkCreateBuffer: VK_ERROR_OUT_OF_DEVICE_MEMORY A device memory allocation has failed.")
	assert.False(t, errors.Is(err, core.ErrDeviceRemoved))
}

func TestDeviceLostIsDeviceRemoved(t *testing.T) {
	err := check("vkQueueSubmit", vk.ErrorDeviceLost)
	assert.ErrorIs(t, err, core.ErrDeviceRemoved)

	var resultErr *ResultError
	assert.ErrorAs(t, err, &resultErr)
	assert.Equal(t, vk.ErrorDeviceLost, resultErr.Result)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "VK_TIMEOUT", ResultString(vk.Timeout, false))
	assert.Equal(t, "VkResult(-999)", ResultString(vk.Result(-999), true))
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}

func TestFormats(t *testing.T) {
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, toVkFormat(metadata.FormatRGBA8Unorm))
	assert.Equal(t, vk.FormatUndefined, toVkFormat(metadata.FormatUnknown))

	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspectMask(metadata.FormatRGBA16Float))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit)|vk.ImageAspectFlags(vk.ImageAspectStencilBit),
		aspectMask(metadata.FormatD24UnormS8Uint))
	assert.Equal(t, depthAspect(vk.FormatD32Sfloat), aspectMask(metadata.FormatD32Float))

	indexType, ok := toVkIndexType(metadata.FormatR16Uint)
	assert.True(t, ok)
	assert.Equal(t, vk.IndexTypeUint16, indexType)
	_, ok = toVkIndexType(metadata.FormatR32Float)
	assert.False(t, ok)

	assert.Equal(t, vk.PrimitiveTopologyLineList, toVkTopology(metadata.PrimitiveTopologyLineList))
}

func TestTextureSubresource(t *testing.T) {
	tex := &Texture{desc: metadata.TextureDesc{MipLevels: 4, ArraySize: 6}}
	mip, layer := tex.subresource(9)
	assert.Equal(t, uint32(1), mip)
	assert.Equal(t, uint32(2), layer)
}

func TestQueueLocksShareFamily(t *testing.T) {
	locks := newQueueLocks()
	assert.Same(t, locks.get(0), locks.get(0))
	assert.NotSame(t, locks.get(0), locks.get(1))

	want := errors.New("boom")
	assert.Equal(t, want, locks.call(2, func() error { return want }))
}
