package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/raytracing"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

/** @brief One placement of a mesh of a mesh union. */
type MeshInstance struct {
	MeshUnion     MeshUnionIndex
	Mesh          int
	Material      MaterialIndex
	HitGroupIndex uint32
	Transform     mgl32.Mat4
	Visible       bool
}

type Scene struct {
	ID        core.Identifier
	Meshes    *MeshCollection
	Materials *Materials
	Instances []MeshInstance
	Lights    []Light

	logger *core.Logger
}

func New(logger *core.Logger) *Scene {
	return &Scene{
		ID:        core.NewIdentifier(),
		Meshes:    NewMeshCollection(),
		Materials: &Materials{},
		logger:    logger.Named("scene"),
	}
}

// AddInstance places a mesh of a union and returns the instance index,
// which is also the instance id shaders see.
func (s *Scene) AddInstance(inst MeshInstance) int {
	union := s.Meshes.Get(inst.MeshUnion)
	core.Assert(inst.Mesh >= 0 && inst.Mesh < len(union.Meshes), "0 <= Mesh < len(Meshes)", nil,
		"mesh %d out of %d in union %q", inst.Mesh, len(union.Meshes), union.Name)
	s.Materials.Get(inst.Material)

	s.Instances = append(s.Instances, inst)
	return len(s.Instances) - 1
}

func (s *Scene) AddLight(l Light) {
	s.Lights = append(s.Lights, l)
}

// BuildBottomLevels creates one bottom level structure per mesh of every
// union that has none yet and records all their builds in one batch.
func (s *Scene) BuildBottomLevels(builder *raytracing.Builder, rec raytracing.Recorder) error {
	var pending []*raytracing.BottomLevel
	for i := 0; i < s.Meshes.Len(); i++ {
		union := s.Meshes.Get(MeshUnionIndex(i))
		if len(union.BottomLevels) != 0 {
			continue
		}
		for m, info := range union.Meshes {
			blas, err := builder.NewBottomLevel(fmt.Sprintf("%s_%s", union.Name, info.Name), union.geometry(m))
			if err != nil {
				return fmt.Errorf("failed to create bottom level for %s mesh %d: %w", union.Name, m, err)
			}
			union.BottomLevels = append(union.BottomLevels, blas)
			pending = append(pending, blas)
		}
	}

	builder.BuildBottomLevels(rec, pending...)
	s.logger.Debug("bottom levels built", "count", len(pending))
	return nil
}

// TopLevelInstances resolves the bottom level of every visible instance.
// Instance ids are indices into Instances.
func (s *Scene) TopLevelInstances() []raytracing.TopLevelInstance {
	instances := make([]raytracing.TopLevelInstance, 0, len(s.Instances))
	for i, inst := range s.Instances {
		if !inst.Visible {
			continue
		}
		union := s.Meshes.Get(inst.MeshUnion)
		core.Assert(inst.Mesh < len(union.BottomLevels), "Mesh < len(BottomLevels)", nil,
			"instance %d: union %q has no bottom level for mesh %d", i, union.Name, inst.Mesh)

		instances = append(instances, raytracing.TopLevelInstance{
			BottomLevel:   union.BottomLevels[inst.Mesh],
			InstanceID:    uint32(i),
			HitGroupIndex: inst.HitGroupIndex,
			Transform:     inst.Transform,
		})
	}
	return instances
}

// WriteLights packs the lights into a mapped buffer of LightRecordSize
// elements and returns how many were written. Lights past the buffer's
// capacity are dropped.
func (s *Scene) WriteLights(buffer *resource.Buffer) int {
	core.Assert(buffer.ElementSize() >= LightRecordSize, "ElementSize() >= LightRecordSize", nil,
		"light buffer %q has %d byte elements", buffer.Name(), buffer.ElementSize())

	count := min(len(s.Lights), int(buffer.ElementCount()))
	if count < len(s.Lights) {
		s.logger.Warn("light buffer too small", "buffer", buffer.Name(), "lights", len(s.Lights), "capacity", count)
	}

	record := make([]byte, LightRecordSize)
	for i := 0; i < count; i++ {
		PackLight(record, s.Lights[i])
		buffer.Write(record, uint32(i))
	}
	return count
}

func (s *Scene) Destroy() {
	s.Meshes.Destroy()
	s.Instances = nil
}
