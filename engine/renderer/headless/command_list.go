package headless

import (
	"errors"

	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// Op names a recorded native command.
type Op string

const (
	OpResourceBarriers           Op = "ResourceBarriers"
	OpCopyBufferRegion           Op = "CopyBufferRegion"
	OpCopyTextureRegion          Op = "CopyTextureRegion"
	OpSetPipelineState           Op = "SetPipelineState"
	OpSetRootConstant            Op = "SetRootConstant"
	OpDispatch                   Op = "Dispatch"
	OpSetViewport                Op = "SetViewport"
	OpSetScissor                 Op = "SetScissor"
	OpSetRenderTargets           Op = "SetRenderTargets"
	OpClearRenderTarget          Op = "ClearRenderTarget"
	OpClearDepthStencil          Op = "ClearDepthStencil"
	OpSetPrimitiveTopology       Op = "SetPrimitiveTopology"
	OpSetIndexBuffer             Op = "SetIndexBuffer"
	OpDrawInstanced              Op = "DrawInstanced"
	OpDrawIndexedInstanced       Op = "DrawIndexedInstanced"
	OpBuildAccelerationStructure Op = "BuildAccelerationStructure"
)

// Command is one recorded native command. Only the fields relevant to Op
// are set.
type Command struct {
	Op    Op
	Queue metadata.QueueKind

	Barriers []metadata.BarrierDesc

	Dst         metadata.NativeResource
	Src         metadata.NativeResource
	DstOffset   uint64
	SrcOffset   uint64
	Size        uint64
	Subresource uint32
	Footprint   metadata.SubresourceFootprint

	Pipeline  metadata.PipelineState
	BindPoint metadata.PipelineBindPoint
	Index     uint32
	Value     uint32

	// Dispatch group counts, or vertex/instance/start arguments of a draw.
	Args       [4]uint32
	BaseVertex int32

	Viewport      metadata.Viewport
	Scissor       metadata.Rect
	RenderTargets []metadata.Descriptor
	DepthStencil  *metadata.Descriptor
	ClearColor    [4]float32
	ClearDepth    float32
	ClearStencil  uint8
	Topology      metadata.PrimitiveTopology
	IndexBuffer   metadata.IndexBufferView

	Build metadata.AccelerationStructureBuildDesc
}

var ErrCommandListClosed = errors.New("command list is closed")

// CommandList records commands in memory. Submitting it to a queue of the
// same device replays copies against host memory.
type CommandList struct {
	kind     metadata.QueueKind
	commands []Command
	closed   bool
}

func (cl *CommandList) Kind() metadata.QueueKind { return cl.kind }

// Commands returns what has been recorded since the last Reset.
func (cl *CommandList) Commands() []Command {
	return cl.commands
}

func (cl *CommandList) Closed() bool {
	return cl.closed
}

func (cl *CommandList) Reset() error {
	cl.commands = nil
	cl.closed = false
	return nil
}

func (cl *CommandList) Close() error {
	if cl.closed {
		return ErrCommandListClosed
	}
	cl.closed = true
	return nil
}

func (cl *CommandList) record(c Command) {
	c.Queue = cl.kind
	cl.commands = append(cl.commands, c)
}

func (cl *CommandList) ResourceBarriers(barriers []metadata.BarrierDesc) {
	cl.record(Command{Op: OpResourceBarriers, Barriers: append([]metadata.BarrierDesc(nil), barriers...)})
}

func (cl *CommandList) CopyBufferRegion(dst metadata.NativeResource, dstOffset uint64, src metadata.NativeResource, srcOffset, size uint64) {
	cl.record(Command{Op: OpCopyBufferRegion, Dst: dst, DstOffset: dstOffset, Src: src, SrcOffset: srcOffset, Size: size})
}

func (cl *CommandList) CopyTextureRegion(dst metadata.NativeResource, dstSubresource uint32, src metadata.NativeResource, footprint metadata.SubresourceFootprint) {
	cl.record(Command{Op: OpCopyTextureRegion, Dst: dst, Subresource: dstSubresource, Src: src, Footprint: footprint})
}

func (cl *CommandList) SetPipelineState(pipeline metadata.PipelineState) {
	cl.record(Command{Op: OpSetPipelineState, Pipeline: pipeline, BindPoint: pipeline.BindPoint()})
}

func (cl *CommandList) SetRootConstant(bindPoint metadata.PipelineBindPoint, index, value uint32) {
	cl.record(Command{Op: OpSetRootConstant, BindPoint: bindPoint, Index: index, Value: value})
}

func (cl *CommandList) Dispatch(x, y, z uint32) {
	cl.record(Command{Op: OpDispatch, Args: [4]uint32{x, y, z}})
}

func (cl *CommandList) SetViewport(viewport metadata.Viewport) {
	cl.record(Command{Op: OpSetViewport, Viewport: viewport})
}

func (cl *CommandList) SetScissor(rect metadata.Rect) {
	cl.record(Command{Op: OpSetScissor, Scissor: rect})
}

func (cl *CommandList) SetRenderTargets(renderTargets []metadata.Descriptor, depthStencil *metadata.Descriptor) {
	c := Command{Op: OpSetRenderTargets, RenderTargets: append([]metadata.Descriptor(nil), renderTargets...)}
	if depthStencil != nil {
		dsv := *depthStencil
		c.DepthStencil = &dsv
	}
	cl.record(c)
}

func (cl *CommandList) ClearRenderTarget(renderTarget metadata.Descriptor, color [4]float32) {
	cl.record(Command{Op: OpClearRenderTarget, RenderTargets: []metadata.Descriptor{renderTarget}, ClearColor: color})
}

func (cl *CommandList) ClearDepthStencil(depthStencil metadata.Descriptor, depth float32, stencil uint8) {
	cl.record(Command{Op: OpClearDepthStencil, DepthStencil: &depthStencil, ClearDepth: depth, ClearStencil: stencil})
}

func (cl *CommandList) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	cl.record(Command{Op: OpSetPrimitiveTopology, Topology: topology})
}

func (cl *CommandList) SetIndexBuffer(view metadata.IndexBufferView) {
	cl.record(Command{Op: OpSetIndexBuffer, IndexBuffer: view})
}

func (cl *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	cl.record(Command{Op: OpDrawInstanced, Args: [4]uint32{vertexCount, instanceCount, startVertex, startInstance}})
}

func (cl *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	cl.record(Command{
		Op:         OpDrawIndexedInstanced,
		Args:       [4]uint32{indexCount, instanceCount, startIndex, startInstance},
		BaseVertex: baseVertex,
	})
}

func (cl *CommandList) BuildAccelerationStructure(desc metadata.AccelerationStructureBuildDesc) {
	cl.record(Command{Op: OpBuildAccelerationStructure, Build: desc})
}
