package raytracing

import (
	"encoding/binary"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/navkagleb/benzin-sub001/engine/renderer/command"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

type BuildState uint8

const (
	BuildStateUnbuilt BuildState = iota
	BuildStateBuilding
	BuildStateBuilt
)

func (s BuildState) String() string {
	switch s {
	case BuildStateUnbuilt:
		return "Unbuilt"
	case BuildStateBuilding:
		return "Building"
	case BuildStateBuilt:
		return "Built"
	}
	return "Unknown"
}

type accelerationStructure struct {
	name     string
	state    BuildState
	inputs   metadata.AccelerationStructureInputs
	prebuild metadata.PrebuildInfo
	buffer   *resource.Buffer
	scratch  *resource.Buffer
}

func (as *accelerationStructure) Name() string { return as.name }
func (as *accelerationStructure) State() BuildState { return as.state }
func (as *accelerationStructure) PrebuildInfo() metadata.PrebuildInfo { return as.prebuild }

func (as *accelerationStructure) BuildInputs() metadata.AccelerationStructureInputs {
	return as.inputs
}

// Buffer holds the built structure. Its address is what instances and
// shaders reference.
func (as *accelerationStructure) Buffer() *resource.Buffer {
	return as.buffer
}

func (as *accelerationStructure) ScratchBuffer() *resource.Buffer {
	return as.scratch
}

func (as *accelerationStructure) GPUVirtualAddress() uint64 {
	return as.buffer.GPUVirtualAddress(0)
}

// BottomLevel holds geometry. It is built once and referenced by any
// number of top level instances.
type BottomLevel struct {
	accelerationStructure
	geometries []Geometry
	submission command.Submission
}

func (blas *BottomLevel) Geometries() []Geometry {
	return blas.geometries
}

func (blas *BottomLevel) Destroy() {
	blas.buffer.Destroy()
	blas.scratch.Destroy()
	blas.state = BuildStateUnbuilt
}

// TopLevelInstance places a bottom level structure in the scene.
type TopLevelInstance struct {
	BottomLevel   *BottomLevel
	InstanceID    uint32
	HitGroupIndex uint32
	Flags         InstanceFlag
	Transform     mgl32.Mat4
}

type InstanceFlag uint8

const (
	InstanceFlagTriangleCullDisable InstanceFlag = 1 << iota
	InstanceFlagTriangleFrontCounterClockwise
	InstanceFlagForceOpaque
	InstanceFlagForceNonOpaque
)

// TopLevel references bottom level structures through an upload buffer of
// instance descriptions.
type TopLevel struct {
	accelerationStructure
	instances      []TopLevelInstance
	instanceBuffer *resource.Buffer
}

func (tlas *TopLevel) Instances() []TopLevelInstance {
	return tlas.instances
}

func (tlas *TopLevel) InstanceBuffer() *resource.Buffer {
	return tlas.instanceBuffer
}

func (tlas *TopLevel) Destroy() {
	tlas.buffer.Destroy()
	tlas.scratch.Destroy()
	tlas.instanceBuffer.Destroy()
	tlas.state = BuildStateUnbuilt
}

// Releaser destroys resources once the GPU is done with them.
type Releaser interface {
	DeferRelease(obj resource.Object)
}

// Release hands every buffer of the structure to r.
func (tlas *TopLevel) Release(r Releaser) {
	r.DeferRelease(tlas.buffer)
	r.DeferRelease(tlas.scratch)
	r.DeferRelease(tlas.instanceBuffer)
	tlas.state = BuildStateUnbuilt
}

const (
	instanceMask   = 1
	instanceIDMask = 1<<24 - 1
)

// PackInstanceDesc writes the 64 byte instance description of inst:
// a row major 3x4 transform, 24 bit id with an 8 bit mask, 24 bit hit
// group index with 8 bit flags and the bottom level address.
func PackInstanceDesc(dst []byte, inst TopLevelInstance) {
	_ = dst[metadata.InstanceDescSize-1]

	offset := 0
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			binary.LittleEndian.PutUint32(dst[offset:], gomath.Float32bits(inst.Transform.At(row, col)))
			offset += 4
		}
	}
	binary.LittleEndian.PutUint32(dst[48:], inst.InstanceID&instanceIDMask|instanceMask<<24)
	binary.LittleEndian.PutUint32(dst[52:], inst.HitGroupIndex&instanceIDMask|uint32(inst.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], inst.BottomLevel.GPUVirtualAddress())
}
