package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/navkagleb/benzin-sub001/engine/core"
)

/** @brief Descriptor index meaning "no texture bound". */
const NoTexture int32 = -1

/** @brief Surface parameters read by shaders through bindless indices. */
type Material struct {
	Name        string
	AlbedoColor mgl32.Vec4
	/** @brief Descriptor index of the albedo texture, or NoTexture. */
	AlbedoTexture int32
	/** @brief Descriptor index of the normal map, or NoTexture. */
	NormalTexture int32
	Roughness     float32
	Metalness     float32
	Emissive      mgl32.Vec3
}

func DefaultMaterial() Material {
	return Material{
		Name:          "default",
		AlbedoColor:   mgl32.Vec4{1, 1, 1, 1},
		AlbedoTexture: NoTexture,
		NormalTexture: NoTexture,
		Roughness:     1,
	}
}

type MaterialIndex int

type Materials struct {
	items []Material
}

func (m *Materials) Add(material Material) MaterialIndex {
	m.items = append(m.items, material)
	return MaterialIndex(len(m.items) - 1)
}

func (m *Materials) Get(index MaterialIndex) *Material {
	core.Assert(index >= 0 && int(index) < len(m.items), "0 <= index < len(materials)", nil,
		"material index %d out of %d", index, len(m.items))
	return &m.items[index]
}

func (m *Materials) Len() int {
	return len(m.items)
}
