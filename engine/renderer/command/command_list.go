package command

import (
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// CommandList wraps a native command list and keeps the tracked state of
// every resource it transitions in step with what it records.
type CommandList struct {
	kind   metadata.QueueKind
	native metadata.NativeCommandList
	logger *core.Logger
	queue  *queue

	barriers []metadata.BarrierDesc
}

func newCommandList(device metadata.NativeDevice, kind metadata.QueueKind, logger *core.Logger) (CommandList, error) {
	native, err := device.CreateCommandList(kind)
	if err != nil {
		return CommandList{}, err
	}
	return CommandList{kind: kind, native: native, logger: logger}, nil
}

func (cl *CommandList) Kind() metadata.QueueKind {
	return cl.kind
}

func (cl *CommandList) Native() metadata.NativeCommandList {
	return cl.native
}

// Submission is the point of the queue's stream at which the commands
// recorded now will execute.
func (cl *CommandList) Submission() Submission {
	return Submission{queue: cl.queue, fence: cl.queue.NextFenceValue()}
}

// Submission identifies one execution of a queue's command list by the
// fence value signalled after it.
type Submission struct {
	queue *queue
	fence uint64
}

func (s Submission) FenceValue() uint64 {
	return s.fence
}

// Retired reports whether the GPU has finished the submission.
func (s Submission) Retired() bool {
	return s.queue != nil && s.queue.CompletedFenceValue() >= s.fence
}

// OrderedBefore reports whether the commands of s finish before the
// commands of next start: both run on one queue in that order, or s has
// already retired.
func (s Submission) OrderedBefore(next Submission) bool {
	return (s.queue == next.queue && s.fence <= next.fence) || s.Retired()
}

func (cl *CommandList) SetResourceBarrier(barrier resource.Barrier) {
	cl.SetResourceBarriers(barrier)
}

// SetResourceBarriers applies the barriers in order, so a resource listed
// twice sees the state left by its previous entry, and records them with a
// single native call.
func (cl *CommandList) SetResourceBarriers(barriers ...resource.Barrier) {
	if len(barriers) == 0 {
		return
	}
	cl.barriers = cl.barriers[:0]
	for _, b := range barriers {
		desc := b.Apply()
		cl.barriers = append(cl.barriers, desc)
		cl.logger.Debug("barrier", "type", desc.Type, "resource", b.Object.Base().Name(),
			"before", desc.StateBefore, "after", desc.StateAfter)
	}
	cl.native.ResourceBarriers(cl.barriers)
}
