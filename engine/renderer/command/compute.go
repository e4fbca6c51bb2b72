package command

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// AccelerationStructure is what BuildAccelerationStructure needs to know
// about a bottom or top level structure.
type AccelerationStructure interface {
	Name() string
	BuildInputs() metadata.AccelerationStructureInputs
	Buffer() *resource.Buffer
	ScratchBuffer() *resource.Buffer
}

type ComputeCommandList struct {
	CommandList
}

func (cl *ComputeCommandList) SetPipelineState(pipeline metadata.PipelineState) {
	cl.native.SetPipelineState(pipeline)
}

// SetRootConstant writes a 32 bit value at a root slot of the compute root
// signature.
func (cl *ComputeCommandList) SetRootConstant(index, value uint32) {
	cl.native.SetRootConstant(metadata.PipelineBindPointCompute, index, value)
}

// SetRootResource binds a view by writing its bindless index into a root slot.
func (cl *ComputeCommandList) SetRootResource(index uint32, d metadata.Descriptor) {
	cl.SetRootConstant(index, d.Index)
}

// Dispatch launches enough groups of threadsPerGroup threads to cover
// dimensions. Every axis gets dimensions/threadsPerGroup + 1 groups, one
// more than needed when the division is exact; shaders bounds check their
// thread ids.
func (cl *ComputeCommandList) Dispatch(dimensions, threadsPerGroup [3]uint32) {
	groups := DispatchGroupCount(dimensions, threadsPerGroup)
	cl.native.Dispatch(groups[0], groups[1], groups[2])
}

func DispatchGroupCount(dimensions, threadsPerGroup [3]uint32) [3]uint32 {
	var groups [3]uint32
	for axis := range groups {
		core.Assert(threadsPerGroup[axis] != 0, "threadsPerGroup != 0", nil, "axis %d has zero threads per group", axis)
		groups[axis] = dimensions[axis]/threadsPerGroup[axis] + 1
	}
	return groups
}

// BuildAccelerationStructure records the build of as. Its scratch buffer must
// already be in the UnorderedAccess state.
func (cl *ComputeCommandList) BuildAccelerationStructure(as AccelerationStructure) {
	scratch := as.ScratchBuffer()
	core.Assert(scratch.CurrentState() == metadata.ResourceStateUnorderedAccess,
		"scratch.CurrentState() == UnorderedAccess", core.ErrScratchNotUnorderedAccess,
		"%q scratch buffer is in %s", as.Name(), scratch.CurrentState())

	cl.native.BuildAccelerationStructure(metadata.AccelerationStructureBuildDesc{
		Inputs:         as.BuildInputs(),
		DestAddress:    as.Buffer().GPUVirtualAddress(0),
		ScratchAddress: scratch.GPUVirtualAddress(0),
	})
}
