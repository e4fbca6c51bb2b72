package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

type signal struct {
	value uint64
	fence vk.Fence
}

// Queue emulates a monotonically increasing fence: every Signal submits an
// empty batch with a fresh vk.Fence, and the completed value is the largest
// signal whose fence has fired.
type Queue struct {
	device *Device
	kind   metadata.QueueKind
	family uint32
	handle vk.Queue

	mu        sync.Mutex
	completed uint64
	pending   []signal
	free      []vk.Fence
}

func (q *Queue) Kind() metadata.QueueKind { return q.kind }

func (q *Queue) Submit(lists ...metadata.NativeCommandList) error {
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("%s queue: foreign command list %T", q.kind, l)
		}
		if cl.recording {
			return fmt.Errorf("%s queue: command list submitted while recording", q.kind)
		}
		if cl.kind != q.kind {
			return fmt.Errorf("%s command list submitted to %s queue", cl.kind, q.kind)
		}

		f := cl.current
		submitInfo := []vk.SubmitInfo{{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    []vk.CommandBuffer{f.cb},
		}}
		err := q.device.locks.call(q.family, func() error {
			return check("vkQueueSubmit", vk.QueueSubmit(q.handle, 1, submitInfo, f.fence))
		})
		if err != nil {
			return fmt.Errorf("%s queue submit: %w", q.kind, err)
		}
		f.submitted = true
	}
	return nil
}

func (q *Queue) Signal(value uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var fence vk.Fence
	if n := len(q.free); n > 0 {
		fence, q.free = q.free[n-1], q.free[:n-1]
	} else {
		var err error
		if fence, err = newFence(q.device.handle); err != nil {
			return fmt.Errorf("%s queue signal: %w", q.kind, err)
		}
	}

	err := q.device.locks.call(q.family, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(q.handle, 0, nil, fence))
	})
	if err != nil {
		q.free = append(q.free, fence)
		return fmt.Errorf("%s queue signal: %w", q.kind, err)
	}
	q.pending = append(q.pending, signal{value: value, fence: fence})
	return nil
}

func (q *Queue) CompletedValue() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.retire(); err != nil {
		q.device.logger.Error("fence poll failed", "queue", q.kind, "err", err)
	}
	return q.completed
}

// retire moves signals whose fences fired into the completed value and
// recycles their fences. Signals retire in submission order.
func (q *Queue) retire() error {
	for len(q.pending) > 0 {
		s := q.pending[0]
		done, err := fenceSignaled(q.device.handle, s.fence)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		if err := resetFence(q.device.handle, s.fence); err != nil {
			return err
		}
		q.completed = max(q.completed, s.value)
		q.free = append(q.free, s.fence)
		q.pending = q.pending[1:]
	}
	return nil
}

func (q *Queue) Wait(value uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.completed >= value {
		return nil
	}
	i := 0
	for i < len(q.pending) && q.pending[i].value < value {
		i++
	}
	if i == len(q.pending) {
		return fmt.Errorf("%s queue: wait for %d which is never signaled (completed %d)", q.kind, value, q.completed)
	}
	if err := waitFence(q.device.handle, q.pending[i].fence); err != nil {
		return fmt.Errorf("%s queue wait: %w", q.kind, err)
	}
	if err := q.retire(); err != nil {
		return fmt.Errorf("%s queue wait: %w", q.kind, err)
	}
	return nil
}

func (q *Queue) TimestampFrequency() (uint64, error) {
	period := q.device.ctx.Limits.TimestampPeriod
	if period <= 0 {
		return 0, fmt.Errorf("%s queue has no timestamp support", q.kind)
	}
	return uint64(1e9 / float64(period)), nil
}

func (q *Queue) destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, s := range q.pending {
		vk.DestroyFence(q.device.handle, s.fence, nil)
	}
	for _, f := range q.free {
		vk.DestroyFence(q.device.handle, f, nil)
	}
	q.pending, q.free = nil, nil
}
