package scene

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/raytracing"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

/** @brief A range of a mesh union's vertex and index buffers. */
type MeshInfo struct {
	Name string
	/** @brief First vertex of the mesh, in elements. */
	BaseVertex  uint32
	VertexCount uint32
	/** @brief First index of the mesh, in elements. */
	StartIndex uint32
	IndexCount uint32
}

/**
 * @brief Several meshes sharing one vertex and one index buffer. Once
 * built, BottomLevels holds one bottom level structure per mesh.
 */
type MeshUnion struct {
	Name         string
	VertexBuffer *resource.Buffer
	IndexBuffer  *resource.Buffer
	Meshes       []MeshInfo
	BottomLevels []*raytracing.BottomLevel
}

func (u *MeshUnion) geometry(mesh int) raytracing.TriangledGeometry {
	info := u.Meshes[mesh]
	return raytracing.TriangledGeometry{
		VertexBuffer: u.VertexBuffer,
		IndexBuffer:  u.IndexBuffer,
		VertexOffset: info.BaseVertex,
		IndexOffset:  info.StartIndex,
		VertexCount:  info.VertexCount,
		IndexCount:   info.IndexCount,
	}
}

type MeshUnionIndex int

// MeshCollection owns mesh unions. Instances refer to them by index so
// nothing points back into the collection.
type MeshCollection struct {
	unions []*MeshUnion
}

func NewMeshCollection() *MeshCollection {
	return &MeshCollection{}
}

func (c *MeshCollection) Add(union *MeshUnion) MeshUnionIndex {
	core.Assert(union.VertexBuffer != nil, "VertexBuffer != nil", nil, "mesh union %q has no vertex buffer", union.Name)
	c.unions = append(c.unions, union)
	return MeshUnionIndex(len(c.unions) - 1)
}

func (c *MeshCollection) Get(index MeshUnionIndex) *MeshUnion {
	core.Assert(index >= 0 && int(index) < len(c.unions), "0 <= index < len(unions)", nil,
		"mesh union index %d out of %d", index, len(c.unions))
	return c.unions[index]
}

func (c *MeshCollection) Len() int {
	return len(c.unions)
}

// Destroy destroys every union's buffers and bottom levels.
func (c *MeshCollection) Destroy() {
	for _, u := range c.unions {
		for _, blas := range u.BottomLevels {
			blas.Destroy()
		}
		u.BottomLevels = nil
		u.VertexBuffer.Destroy()
		if u.IndexBuffer != nil {
			u.IndexBuffer.Destroy()
		}
	}
	c.unions = nil
}
