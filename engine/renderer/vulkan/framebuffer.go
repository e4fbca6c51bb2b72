package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
)

type framebufferKey struct {
	pass   vk.RenderPass
	views  [maxRenderTargets + 1]vk.ImageView
	count  int
	width  uint32
	height uint32
}

type framebuffer struct {
	handle vk.Framebuffer
	owners []*Texture
}

// framebufferCache keeps a framebuffer per render pass and attachment set.
// Entries go away with the views and images they reference.
type framebufferCache struct {
	mu      sync.Mutex
	entries map[framebufferKey]framebuffer
}

func newFramebufferCache() *framebufferCache {
	return &framebufferCache{entries: make(map[framebufferKey]framebuffer)}
}

func (c *framebufferCache) get(dev vk.Device, pass vk.RenderPass, attachments []slot, extent vk.Extent2D) (vk.Framebuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := framebufferKey{pass: pass, count: len(attachments), width: extent.Width, height: extent.Height}
	for i, a := range attachments {
		key.views[i] = a.view
	}
	if fb, ok := c.entries[key]; ok {
		return fb.handle, nil
	}

	fb := framebuffer{owners: make([]*Texture, len(attachments))}
	for i, a := range attachments {
		fb.owners[i] = a.owner
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    key.views[:len(attachments)],
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(dev, &createInfo, nil, &fb.handle)); err != nil {
		return nil, fmt.Errorf("framebuffer %dx%d: %w", extent.Width, extent.Height, err)
	}
	c.entries[key] = fb
	return fb.handle, nil
}

func (c *framebufferCache) evictView(dev vk.Device, view vk.ImageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.entries {
		for _, v := range key.views[:key.count] {
			if v == view {
				vk.DestroyFramebuffer(dev, fb.handle, nil)
				delete(c.entries, key)
				break
			}
		}
	}
}

func (c *framebufferCache) evictImage(dev vk.Device, t *Texture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.entries {
		for _, owner := range fb.owners {
			if owner == t {
				vk.DestroyFramebuffer(dev, fb.handle, nil)
				delete(c.entries, key)
				break
			}
		}
	}
}

func (c *framebufferCache) destroy(dev vk.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.entries {
		vk.DestroyFramebuffer(dev, fb.handle, nil)
		delete(c.entries, key)
	}
}
