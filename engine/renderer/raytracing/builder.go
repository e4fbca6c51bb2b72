package raytracing

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/command"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// Recorder is the part of a compute or graphics command list the builder drives.
type Recorder interface {
	SetResourceBarriers(barriers ...resource.Barrier)
	BuildAccelerationStructure(as command.AccelerationStructure)
	Submission() command.Submission
}

const minScratchSize = 256

// Builder creates acceleration structures and records their builds in
// dependency order.
type Builder struct {
	device  metadata.NativeDevice
	factory *resource.Factory
	logger  *core.Logger
}

func NewBuilder(device metadata.NativeDevice, factory *resource.Factory, logger *core.Logger) *Builder {
	return &Builder{
		device:  device,
		factory: factory,
		logger:  logger.Named("raytracing"),
	}
}

// NewBottomLevel sizes and allocates a bottom level structure over geometries.
func (b *Builder) NewBottomLevel(name string, geometries ...Geometry) (*BottomLevel, error) {
	inputs := metadata.AccelerationStructureInputs{
		Type:       metadata.AccelerationStructureTypeBottomLevel,
		Flags:      metadata.AccelerationStructureBuildFlagPreferFastTrace,
		Geometries: make([]metadata.GeometryDesc, 0, len(geometries)),
	}
	for _, g := range geometries {
		inputs.Geometries = append(inputs.Geometries, g.geometryDesc())
	}

	as, err := b.allocate(name, inputs)
	if err != nil {
		return nil, err
	}
	return &BottomLevel{accelerationStructure: as, geometries: geometries}, nil
}

// NewTopLevel writes the instance descriptions and allocates a top level
// structure over them. Bottom levels only need to be built by the time
// BuildTopLevel is recorded.
func (b *Builder) NewTopLevel(name string, instances []TopLevelInstance) (*TopLevel, error) {
	instanceBuffer, err := b.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    name + "_InstanceBuffer",
		ElementSize:  metadata.InstanceDescSize,
		ElementCount: uint32(max(len(instances), 1)),
		Flags:        resource.BufferFlagUpload,
	})
	if err != nil {
		return nil, err
	}

	desc := make([]byte, metadata.InstanceDescSize)
	for i, inst := range instances {
		core.Assert(inst.BottomLevel != nil, "BottomLevel != nil", nil, "%s: instance %d has no bottom level", name, i)
		PackInstanceDesc(desc, inst)
		instanceBuffer.Write(desc, uint32(i))
	}

	inputs := metadata.AccelerationStructureInputs{
		Type:          metadata.AccelerationStructureTypeTopLevel,
		Flags:         metadata.AccelerationStructureBuildFlagPreferFastTrace,
		InstanceDescs: instanceBuffer.GPUVirtualAddress(0),
		InstanceCount: uint32(len(instances)),
	}
	as, err := b.allocate(name, inputs)
	if err != nil {
		instanceBuffer.Destroy()
		return nil, err
	}
	return &TopLevel{
		accelerationStructure: as,
		instances:             append([]TopLevelInstance(nil), instances...),
		instanceBuffer:        instanceBuffer,
	}, nil
}

func (b *Builder) allocate(name string, inputs metadata.AccelerationStructureInputs) (accelerationStructure, error) {
	info := b.device.AccelerationStructurePrebuildInfo(inputs)
	core.Assert(info.ResultDataMaxSize > 0, "ResultDataMaxSize > 0", core.ErrZeroPrebuildSize,
		"%s %q: %d geometries, %d instances", inputs.Type, name, len(inputs.Geometries), inputs.InstanceCount)

	result, err := b.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    name,
		ElementSize:  1,
		ElementCount: uint32(info.ResultDataMaxSize),
		Flags:        resource.BufferFlagAllowUnorderedAccess,
		InitialState: metadata.ResourceStateRaytracingAccelerationStructure,
	})
	if err != nil {
		return accelerationStructure{}, fmt.Errorf("failed to allocate %s: %w", inputs.Type, err)
	}
	scratch, err := b.factory.CreateBuffer(resource.BufferConfig{
		DebugName:    name + "_Scratch",
		ElementSize:  1,
		ElementCount: uint32(max(info.ScratchDataSize, minScratchSize)),
		Flags:        resource.BufferFlagAllowUnorderedAccess,
		InitialState: metadata.ResourceStateCommon,
	})
	if err != nil {
		result.Destroy()
		return accelerationStructure{}, fmt.Errorf("failed to allocate %s scratch: %w", inputs.Type, err)
	}

	b.logger.Debug("acceleration structure allocated", "type", inputs.Type, "name", name,
		"result", info.ResultDataMaxSize, "scratch", info.ScratchDataSize)
	return accelerationStructure{
		name:     name,
		inputs:   inputs,
		prebuild: info,
		buffer:   result,
		scratch:  scratch,
	}, nil
}

// BuildBottomLevels records the builds of blases followed by one unordered
// access sync per result, so later top level builds read finished data.
func (b *Builder) BuildBottomLevels(rec Recorder, blases ...*BottomLevel) {
	if len(blases) == 0 {
		return
	}

	barriers := make([]resource.Barrier, 0, len(blases))
	for _, blas := range blases {
		core.Assert(blas.state != BuildStateBuilding, "state != Building", nil, "%q is already being built", blas.name)
		blas.state = BuildStateBuilding
		barriers = append(barriers, resource.Transition(blas.scratch, metadata.ResourceStateUnorderedAccess))
	}
	rec.SetResourceBarriers(barriers...)

	for _, blas := range blases {
		rec.BuildAccelerationStructure(blas)
	}

	barriers = barriers[:0]
	for _, blas := range blases {
		barriers = append(barriers, resource.UnorderedAccessSync(blas.buffer))
	}
	rec.SetResourceBarriers(barriers...)

	submission := rec.Submission()
	for _, blas := range blases {
		blas.state = BuildStateBuilt
		blas.submission = submission
	}
	b.logger.Debug("bottom levels recorded", "count", len(blases))
}

// BuildTopLevel records the build of tlas. Every bottom level it references
// must already be recorded earlier on the same queue, or be retired.
func (b *Builder) BuildTopLevel(rec Recorder, tlas *TopLevel) {
	submission := rec.Submission()
	for i, inst := range tlas.instances {
		blas := inst.BottomLevel
		core.Assert(blas.state == BuildStateBuilt, "BottomLevel.State() == Built", nil,
			"%q instance %d references %q which is %s", tlas.name, i, blas.name, blas.state)
		core.Assert(blas.submission.OrderedBefore(submission), "BottomLevel build ordered before top level", nil,
			"%q instance %d references %q, built on another queue at fence %d that has not retired",
			tlas.name, i, blas.name, blas.submission.FenceValue())
	}

	tlas.state = BuildStateBuilding
	rec.SetResourceBarriers(resource.Transition(tlas.scratch, metadata.ResourceStateUnorderedAccess))
	rec.BuildAccelerationStructure(tlas)
	tlas.state = BuildStateBuilt
	b.logger.Debug("top level recorded", "name", tlas.name, "instances", len(tlas.instances))
}
