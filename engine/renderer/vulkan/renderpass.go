package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
)

const maxRenderTargets = 8

type renderPassKey struct {
	colors [maxRenderTargets]vk.Format
	count  int
	depth  vk.Format
}

// renderPassCache holds one render pass per attachment format set. Every
// pass loads and stores its attachments: layouts are owned by barriers, so
// attachments enter and leave in the attachment optimal layouts.
type renderPassCache struct {
	mu     sync.Mutex
	passes map[renderPassKey]vk.RenderPass
}

func newRenderPassCache() *renderPassCache {
	return &renderPassCache{passes: make(map[renderPassKey]vk.RenderPass)}
}

func (c *renderPassCache) get(dev vk.Device, key renderPassKey) (vk.RenderPass, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pass, ok := c.passes[key]; ok {
		return pass, nil
	}

	attachments := make([]vk.AttachmentDescription, 0, key.count+1)
	colorRefs := make([]vk.AttachmentReference, 0, key.count)
	for i := 0; i < key.count; i++ {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.colors[i],
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if key.depth != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpLoad,
			StencilStoreOp: vk.AttachmentStoreOpStore,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(key.count),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var pass vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(dev, &createInfo, nil, &pass)); err != nil {
		return nil, fmt.Errorf("render pass with %d targets: %w", key.count, err)
	}
	c.passes[key] = pass
	return pass, nil
}

func (c *renderPassCache) destroy(dev vk.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, pass := range c.passes {
		vk.DestroyRenderPass(dev, pass, nil)
		delete(c.passes, key)
	}
}
