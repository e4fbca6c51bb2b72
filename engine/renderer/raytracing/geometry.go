package raytracing

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// Geometry is one input of a bottom level build: either TriangledGeometry
// or ProceduralGeometry.
type Geometry interface {
	geometryDesc() metadata.GeometryDesc
}

// TriangledGeometry is an indexed range of a mesh's vertex and index
// buffers. Offsets and counts are in elements.
type TriangledGeometry struct {
	VertexBuffer *resource.Buffer
	IndexBuffer  *resource.Buffer
	VertexOffset uint32
	IndexOffset  uint32
	VertexCount  uint32
	IndexCount   uint32
	// Format of the position attribute, the first member of a vertex.
	// Defaults to three floats.
	VertexFormat metadata.Format
}

func (g TriangledGeometry) geometryDesc() metadata.GeometryDesc {
	core.Assert(g.VertexBuffer != nil, "VertexBuffer != nil", nil, "triangled geometry without a vertex buffer")

	format := g.VertexFormat
	if format == metadata.FormatUnknown {
		format = metadata.FormatRGB32Float
	}
	desc := metadata.GeometryDesc{
		Type:  metadata.GeometryTypeTriangles,
		Flags: metadata.GeometryFlagOpaque,
		Triangles: metadata.TrianglesDesc{
			VertexBuffer: g.VertexBuffer.GPUVirtualAddress(g.VertexOffset),
			VertexStride: uint64(g.VertexBuffer.ElementSize()),
			VertexCount:  g.VertexCount,
			VertexFormat: format,
		},
	}
	if g.IndexBuffer != nil {
		desc.Triangles.IndexBuffer = g.IndexBuffer.GPUVirtualAddress(g.IndexOffset)
		desc.Triangles.IndexCount = g.IndexCount
		desc.Triangles.IndexFormat = metadata.FormatR32Uint
		if g.IndexBuffer.ElementSize() == 2 {
			desc.Triangles.IndexFormat = metadata.FormatR16Uint
		}
	}
	return desc
}

// ProceduralGeometry is one axis aligned box of a bounds buffer whose
// elements are six floats (min xyz, max xyz).
type ProceduralGeometry struct {
	BoundsBuffer *resource.Buffer
	BoundsIndex  uint32
}

func (g ProceduralGeometry) geometryDesc() metadata.GeometryDesc {
	core.Assert(g.BoundsBuffer != nil, "BoundsBuffer != nil", nil, "procedural geometry without a bounds buffer")
	return metadata.GeometryDesc{
		Type:  metadata.GeometryTypeProceduralAABBs,
		Flags: metadata.GeometryFlagOpaque,
		AABBs: metadata.AABBsDesc{
			AABBs:  g.BoundsBuffer.GPUVirtualAddress(g.BoundsIndex),
			Stride: uint64(g.BoundsBuffer.ElementSize()),
			Count:  1,
		},
	}
}
