package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

var (
	ErrCommandListClosed = errors.New("command list is closed")
	errNoRenderTargets   = errors.New("draw or clear without render targets")
	errNoPipeline        = errors.New("no pipeline bound")
)

// frame is one command buffer of a list. A list may be reset while the GPU
// still executes its previous recording, so it cycles through frames and
// reuses one only after its fence fired.
type frame struct {
	cb        vk.CommandBuffer
	fence     vk.Fence
	submitted bool
}

// CommandList records into a vk.CommandBuffer from a pool owned by the list.
// Recording errors are kept and returned by Close.
type CommandList struct {
	device *Device
	kind   metadata.QueueKind
	family uint32
	pool   vk.CommandPool
	frames []*frame

	current   *frame
	recording bool
	err       error

	pipeline *Pipeline
	topology metadata.PrimitiveTopology
	targets  []slot
	depth    *slot
	pass     vk.RenderPass
	area     vk.Extent2D
}

func newCommandList(d *Device, kind metadata.QueueKind) (*CommandList, error) {
	c := &CommandList{device: d, kind: kind, family: d.queues[kind].family}
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: c.family,
	}
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(d.handle, &poolInfo, nil, &c.pool)); err != nil {
		return nil, err
	}
	if err := c.Reset(); err != nil {
		c.destroy()
		return nil, err
	}
	return c, nil
}

func (c *CommandList) Kind() metadata.QueueKind { return c.kind }

// Reset starts a new recording in a frame the GPU is done with.
func (c *CommandList) Reset() error {
	f, err := c.acquire()
	if err != nil {
		return fmt.Errorf("%s command list reset: %w", c.kind, err)
	}
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(f.cb, 0)); err != nil {
		return fmt.Errorf("%s command list reset: %w", c.kind, err)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(f.cb, &beginInfo)); err != nil {
		return fmt.Errorf("%s command list reset: %w", c.kind, err)
	}

	c.current = f
	c.recording = true
	c.err = nil
	c.pipeline = nil
	c.topology = metadata.PrimitiveTopologyTriangleList
	c.targets = c.targets[:0]
	c.depth = nil
	c.pass = nil
	return nil
}

func (c *CommandList) acquire() (*frame, error) {
	dev := c.device.handle
	for _, f := range c.frames {
		if !f.submitted {
			return f, nil
		}
		done, err := fenceSignaled(dev, f.fence)
		if err != nil {
			return nil, err
		}
		if done {
			if err := resetFence(dev, f.fence); err != nil {
				return nil, err
			}
			f.submitted = false
			return f, nil
		}
	}

	f := &frame{}
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(dev, &allocInfo, cbs)); err != nil {
		return nil, err
	}
	f.cb = cbs[0]
	fence, err := newFence(dev)
	if err != nil {
		vk.FreeCommandBuffers(dev, c.pool, 1, cbs)
		return nil, err
	}
	f.fence = fence
	c.frames = append(c.frames, f)
	return f, nil
}

func (c *CommandList) Close() error {
	if !c.recording {
		return ErrCommandListClosed
	}
	c.endPass()
	c.recording = false
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(c.current.cb)); err != nil && c.err == nil {
		c.err = err
	}
	if c.err != nil {
		return fmt.Errorf("%s command list: %w", c.kind, c.err)
	}
	return nil
}

func (c *CommandList) destroy() {
	dev := c.device.handle
	for _, f := range c.frames {
		vk.DestroyFence(dev, f.fence, nil)
	}
	c.frames = nil
	if c.pool != nil {
		vk.DestroyCommandPool(dev, c.pool, nil)
		c.pool = nil
	}
}

func (c *CommandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// active reports whether commands can be recorded, noting an error if not.
func (c *CommandList) active(op string) bool {
	if !c.recording {
		c.fail(fmt.Errorf("%s: %w", op, ErrCommandListClosed))
		return false
	}
	return true
}

func (c *CommandList) cb() vk.CommandBuffer {
	return c.current.cb
}

func (c *CommandList) ResourceBarriers(barriers []metadata.BarrierDesc) {
	if !c.active("ResourceBarriers") || len(barriers) == 0 {
		return
	}
	c.endPass()
	var batch barrierBatch
	for _, b := range barriers {
		batch.add(b)
	}
	if !batch.empty() {
		batch.record(c.cb(), c.kind)
	}
}

func (c *CommandList) CopyBufferRegion(dst metadata.NativeResource, dstOffset uint64, src metadata.NativeResource, srcOffset, size uint64) {
	if !c.active("CopyBufferRegion") {
		return
	}
	dstBuf, ok1 := dst.(*Buffer)
	srcBuf, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		c.fail(fmt.Errorf("CopyBufferRegion between %T and %T", src, dst))
		return
	}
	c.endPass()
	vk.CmdCopyBuffer(c.cb(), srcBuf.handle, dstBuf.handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

// CopyTextureRegion copies one subresource from a linear footprint. The
// destination must be in the CopyDestination state.
func (c *CommandList) CopyTextureRegion(dst metadata.NativeResource, dstSubresource uint32, src metadata.NativeResource, footprint metadata.SubresourceFootprint) {
	if !c.active("CopyTextureRegion") {
		return
	}
	tex, ok1 := dst.(*Texture)
	buf, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		c.fail(fmt.Errorf("CopyTextureRegion from %T to %T", src, dst))
		return
	}
	bpp := footprint.Format.BytesPerPixel()
	if bpp == 0 {
		c.fail(fmt.Errorf("CopyTextureRegion: unsupported format %s", footprint.Format))
		return
	}
	c.endPass()

	mip, layer := tex.subresource(dstSubresource)
	aspect := aspectMask(tex.desc.Format)
	if tex.desc.Format.IsDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	region := vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(footprint.Offset),
		BufferRowLength:   footprint.RowPitch / bpp,
		BufferImageHeight: footprint.NumRows,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       mip,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{
			Width:  footprint.Width,
			Height: footprint.Height,
			Depth:  max(footprint.Depth, 1),
		},
	}
	vk.CmdCopyBufferToImage(c.cb(), buf.handle, tex.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// SetPipelineState binds the pipeline together with the bindless descriptor
// sets, so shaders index heaps directly.
func (c *CommandList) SetPipelineState(pipeline metadata.PipelineState) {
	if !c.active("SetPipelineState") {
		return
	}
	p, ok := pipeline.(*Pipeline)
	if !ok {
		c.fail(fmt.Errorf("SetPipelineState: foreign pipeline %T", pipeline))
		return
	}
	if c.kind == metadata.QueueKindCopy {
		c.fail(fmt.Errorf("SetPipelineState %q on a copy list", p.name))
		return
	}
	layout, sets, err := c.device.bindless()
	if err != nil {
		c.fail(fmt.Errorf("SetPipelineState %q: %w", p.name, err))
		return
	}
	if p.bindPoint == metadata.PipelineBindPointCompute {
		c.endPass()
	}
	vk.CmdBindPipeline(c.cb(), p.vkBindPoint(), p.handle)
	vk.CmdBindDescriptorSets(c.cb(), p.vkBindPoint(), layout, 0, uint32(len(sets)), sets, 0, nil)
	c.pipeline = p
}

// SetRootConstant writes one 32-bit push constant. Push constants are
// shared by both bind points.
func (c *CommandList) SetRootConstant(bindPoint metadata.PipelineBindPoint, index, value uint32) {
	if !c.active("SetRootConstant") {
		return
	}
	if index >= maxRootConstants {
		c.fail(fmt.Errorf("root constant %d out of range, %d available", index, maxRootConstants))
		return
	}
	layout, _, err := c.device.bindless()
	if err != nil {
		c.fail(fmt.Errorf("SetRootConstant: %w", err))
		return
	}
	vk.CmdPushConstants(c.cb(), layout, shaderStages, index*4, 4, unsafe.Pointer(&value))
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	if !c.active("Dispatch") {
		return
	}
	if c.pipeline == nil || c.pipeline.bindPoint != metadata.PipelineBindPointCompute {
		c.fail(fmt.Errorf("Dispatch: %w", errNoPipeline))
		return
	}
	c.endPass()
	vk.CmdDispatch(c.cb(), x, y, z)
}

func (c *CommandList) SetViewport(viewport metadata.Viewport) {
	if !c.active("SetViewport") {
		return
	}
	vk.CmdSetViewport(c.cb(), 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (c *CommandList) SetScissor(rect metadata.Rect) {
	if !c.active("SetScissor") {
		return
	}
	vk.CmdSetScissor(c.cb(), 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: rect.Left, Y: rect.Top},
		Extent: vk.Extent2D{
			Width:  uint32(max(rect.Right-rect.Left, 0)),
			Height: uint32(max(rect.Bottom-rect.Top, 0)),
		},
	}})
}

// SetRenderTargets only remembers the attachments; the render pass begins
// with the first draw or clear.
func (c *CommandList) SetRenderTargets(renderTargets []metadata.Descriptor, depthStencil *metadata.Descriptor) {
	if !c.active("SetRenderTargets") {
		return
	}
	if len(renderTargets) > maxRenderTargets {
		c.fail(fmt.Errorf("SetRenderTargets: %d targets, at most %d are supported", len(renderTargets), maxRenderTargets))
		return
	}
	c.endPass()
	c.targets = c.targets[:0]
	c.depth = nil
	for _, rt := range renderTargets {
		s, err := c.device.attachment(rt)
		if err != nil {
			c.fail(fmt.Errorf("SetRenderTargets: %w", err))
			return
		}
		c.targets = append(c.targets, s)
	}
	if depthStencil != nil {
		s, err := c.device.attachment(*depthStencil)
		if err != nil {
			c.fail(fmt.Errorf("SetRenderTargets: %w", err))
			return
		}
		c.depth = &s
	}
}

func (c *CommandList) beginPass(colors []slot, depth *slot) error {
	key := renderPassKey{count: len(colors)}
	attachments := make([]slot, 0, len(colors)+1)
	for i, s := range colors {
		key.colors[i] = s.format
		attachments = append(attachments, s)
	}
	if depth != nil {
		key.depth = depth.format
		attachments = append(attachments, *depth)
	}
	if len(attachments) == 0 {
		return errNoRenderTargets
	}

	extent := attachments[0].extent
	for _, a := range attachments[1:] {
		extent.Width = min(extent.Width, a.extent.Width)
		extent.Height = min(extent.Height, a.extent.Height)
	}

	d := c.device
	pass, err := d.renderPasses.get(d.handle, key)
	if err != nil {
		return err
	}
	fb, err := d.framebuffers.get(d.handle, pass, attachments, extent)
	if err != nil {
		return err
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea:  vk.Rect2D{Extent: extent},
	}
	vk.CmdBeginRenderPass(c.cb(), &beginInfo, vk.SubpassContentsInline)
	c.pass = pass
	c.area = extent
	return nil
}

// ensurePass begins the render pass of the bound targets if none is open.
func (c *CommandList) ensurePass() bool {
	if c.pass != nil {
		return true
	}
	if err := c.beginPass(c.targets, c.depth); err != nil {
		c.fail(err)
		return false
	}
	return true
}

func (c *CommandList) endPass() {
	if c.pass == nil {
		return
	}
	vk.CmdEndRenderPass(c.cb())
	c.pass = nil
}

func (c *CommandList) clearAttachment(attachment vk.ClearAttachment) {
	vk.CmdClearAttachments(c.cb(), 1, []vk.ClearAttachment{attachment}, 1, []vk.ClearRect{{
		Rect:           vk.Rect2D{Extent: c.area},
		BaseArrayLayer: 0,
		LayerCount:     1,
	}})
}

// ClearRenderTarget clears inside the open pass when the target is bound,
// otherwise in a pass of its own.
func (c *CommandList) ClearRenderTarget(renderTarget metadata.Descriptor, color [4]float32) {
	if !c.active("ClearRenderTarget") {
		return
	}
	s, err := c.device.attachment(renderTarget)
	if err != nil {
		c.fail(fmt.Errorf("ClearRenderTarget: %w", err))
		return
	}
	attachment := vk.ClearAttachment{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ClearValue: vk.NewClearValue(color[:]),
	}
	for i, t := range c.targets {
		if t.view == s.view {
			if !c.ensurePass() {
				return
			}
			attachment.ColorAttachment = uint32(i)
			c.clearAttachment(attachment)
			return
		}
	}

	c.endPass()
	if err := c.beginPass([]slot{s}, nil); err != nil {
		c.fail(fmt.Errorf("ClearRenderTarget: %w", err))
		return
	}
	c.clearAttachment(attachment)
	c.endPass()
}

func (c *CommandList) ClearDepthStencil(depthStencil metadata.Descriptor, depth float32, stencil uint8) {
	if !c.active("ClearDepthStencil") {
		return
	}
	s, err := c.device.attachment(depthStencil)
	if err != nil {
		c.fail(fmt.Errorf("ClearDepthStencil: %w", err))
		return
	}
	attachment := vk.ClearAttachment{
		AspectMask: depthAspect(s.format),
		ClearValue: vk.NewClearDepthStencil(depth, uint32(stencil)),
	}
	if c.depth != nil && c.depth.view == s.view {
		if c.ensurePass() {
			c.clearAttachment(attachment)
		}
		return
	}

	c.endPass()
	if err := c.beginPass(nil, &s); err != nil {
		c.fail(fmt.Errorf("ClearDepthStencil: %w", err))
		return
	}
	c.clearAttachment(attachment)
	c.endPass()
}

func (c *CommandList) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	if !c.active("SetPrimitiveTopology") {
		return
	}
	c.topology = topology
}

func (c *CommandList) SetIndexBuffer(view metadata.IndexBufferView) {
	if !c.active("SetIndexBuffer") {
		return
	}
	buf, ok := view.Resource.(*Buffer)
	if !ok {
		c.fail(fmt.Errorf("SetIndexBuffer: %T is not a buffer", view.Resource))
		return
	}
	indexType, ok := toVkIndexType(view.Format)
	if !ok {
		c.fail(fmt.Errorf("SetIndexBuffer: %s is not an index format", view.Format))
		return
	}
	vk.CmdBindIndexBuffer(c.cb(), buf.handle, vk.DeviceSize(view.Offset), indexType)
}

// drawable checks the draw state and opens the render pass.
func (c *CommandList) drawable(op string) bool {
	if !c.active(op) {
		return false
	}
	if c.pipeline == nil || c.pipeline.bindPoint != metadata.PipelineBindPointGraphics {
		c.fail(fmt.Errorf("%s: %w", op, errNoPipeline))
		return false
	}
	if c.topology != c.pipeline.topology {
		c.fail(fmt.Errorf("%s: topology %d does not match pipeline %q", op, c.topology, c.pipeline.name))
		return false
	}
	return c.ensurePass()
}

func (c *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	if !c.drawable("DrawInstanced") {
		return
	}
	vk.CmdDraw(c.cb(), vertexCount, instanceCount, startVertex, startInstance)
}

func (c *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !c.drawable("DrawIndexedInstanced") {
		return
	}
	vk.CmdDrawIndexed(c.cb(), indexCount, instanceCount, startIndex, baseVertex, startInstance)
}

// BuildAccelerationStructure is not available on this device; the list
// fails on Close.
func (c *CommandList) BuildAccelerationStructure(desc metadata.AccelerationStructureBuildDesc) {
	if !c.active("BuildAccelerationStructure") {
		return
	}
	c.fail(fmt.Errorf("%s build: %w", desc.Inputs.Type, core.ErrRaytracingUnsupported))
}
