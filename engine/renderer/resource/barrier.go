package resource

import "github.com/navkagleb/benzin-sub001/engine/renderer/metadata"

// Barrier is either a state transition or an unordered access sync on a
// tracked resource. The before state of a transition is never supplied by
// the caller; it is read from the resource when the barrier is applied.
type Barrier struct {
	Type       metadata.BarrierType
	Object     Object
	StateAfter metadata.ResourceState
}

func Transition(obj Object, stateAfter metadata.ResourceState) Barrier {
	return Barrier{
		Type:       metadata.BarrierTypeTransition,
		Object:     obj,
		StateAfter: stateAfter,
	}
}

func UnorderedAccessSync(obj Object) Barrier {
	return Barrier{
		Type:   metadata.BarrierTypeUnorderedAccess,
		Object: obj,
	}
}

// Apply updates the tracked state and returns the native barrier to emit.
func (b Barrier) Apply() metadata.BarrierDesc {
	res := b.Object.Base()
	switch b.Type {
	case metadata.BarrierTypeTransition:
		before := res.ApplyTransition(b.StateAfter)
		return metadata.BarrierDesc{
			Type:        metadata.BarrierTypeTransition,
			Resource:    res.Native(),
			StateBefore: before,
			StateAfter:  b.StateAfter,
		}
	default:
		state := res.CurrentState()
		return metadata.BarrierDesc{
			Type:        metadata.BarrierTypeUnorderedAccess,
			Resource:    res.Native(),
			StateBefore: state,
			StateAfter:  state,
		}
	}
}
