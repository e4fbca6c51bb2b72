package command

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// GraphicsCommandList records everything a compute list does plus
// rasterization. Root arguments go to the graphics root signature.
type GraphicsCommandList struct {
	ComputeCommandList
}

func (cl *GraphicsCommandList) SetRootConstant(index, value uint32) {
	cl.native.SetRootConstant(metadata.PipelineBindPointGraphics, index, value)
}

func (cl *GraphicsCommandList) SetRootResource(index uint32, d metadata.Descriptor) {
	cl.SetRootConstant(index, d.Index)
}

// SetComputeRootConstant reaches the compute root signature from a graphics list.
func (cl *GraphicsCommandList) SetComputeRootConstant(index, value uint32) {
	cl.ComputeCommandList.SetRootConstant(index, value)
}

func (cl *GraphicsCommandList) SetViewport(viewport metadata.Viewport) {
	cl.native.SetViewport(viewport)
}

func (cl *GraphicsCommandList) SetScissor(rect metadata.Rect) {
	cl.native.SetScissor(rect)
}

// SetRenderTargets binds the render target views and an optional depth
// stencil view.
func (cl *GraphicsCommandList) SetRenderTargets(renderTargets []metadata.Descriptor, depthStencil *metadata.Descriptor) {
	for _, rtv := range renderTargets {
		core.Assert(rtv.Heap == metadata.HeapKindRTV, "rtv.Heap == RTV", nil, "descriptor %d is a %s", rtv.Index, rtv.Heap)
	}
	if depthStencil != nil {
		core.Assert(depthStencil.Heap == metadata.HeapKindDSV, "dsv.Heap == DSV", nil,
			"descriptor %d is a %s", depthStencil.Index, depthStencil.Heap)
	}
	cl.native.SetRenderTargets(renderTargets, depthStencil)
}

func (cl *GraphicsCommandList) ClearRenderTarget(renderTarget metadata.Descriptor, color [4]float32) {
	cl.native.ClearRenderTarget(renderTarget, color)
}

func (cl *GraphicsCommandList) ClearDepthStencil(depthStencil metadata.Descriptor, depth float32, stencil uint8) {
	cl.native.ClearDepthStencil(depthStencil, depth, stencil)
}

func (cl *GraphicsCommandList) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	cl.native.SetPrimitiveTopology(topology)
}

// SetIndexBuffer binds the whole of buffer. Its element size selects 16 or
// 32 bit indices.
func (cl *GraphicsCommandList) SetIndexBuffer(buffer *resource.Buffer) {
	format := metadata.FormatR32Uint
	if buffer.ElementSize() == 2 {
		format = metadata.FormatR16Uint
	}
	cl.native.SetIndexBuffer(metadata.IndexBufferView{
		Resource: buffer.Native(),
		Size:     uint32(buffer.Size()),
		Format:   format,
	})
}

func (cl *GraphicsCommandList) Draw(vertexCount, instanceCount, startVertex, startInstance uint32) {
	cl.native.DrawInstanced(vertexCount, instanceCount, startVertex, startInstance)
}

func (cl *GraphicsCommandList) DrawIndexed(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	cl.native.DrawIndexedInstanced(indexCount, instanceCount, startIndex, baseVertex, startInstance)
}
