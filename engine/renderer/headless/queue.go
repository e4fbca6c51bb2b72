package headless

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

const timestampFrequency = 1_000_000_000

// Queue executes submissions immediately. Its fence completes on Signal,
// or on the first Wait reaching it when the device defers signals.
type Queue struct {
	device    *Device
	kind      metadata.QueueKind
	completed uint64
	pending   []uint64
	submits   int
}

func (q *Queue) Kind() metadata.QueueKind { return q.kind }

// Submissions counts the command lists submitted to the queue.
func (q *Queue) Submissions() int { return q.submits }

func (q *Queue) Submit(lists ...metadata.NativeCommandList) error {
	if q.device.removed {
		return fmt.Errorf("%s queue submit: %w", q.kind, core.ErrDeviceRemoved)
	}
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("%s queue: foreign command list %T", q.kind, l)
		}
		if !cl.closed {
			return fmt.Errorf("%s queue: command list submitted while recording", q.kind)
		}
		if cl.kind != q.kind {
			return fmt.Errorf("%s command list submitted to %s queue", cl.kind, q.kind)
		}
		q.device.execute(cl)
		q.submits++
	}
	return nil
}

func (q *Queue) Signal(value uint64) error {
	if q.device.removed {
		return fmt.Errorf("%s queue signal: %w", q.kind, core.ErrDeviceRemoved)
	}
	if q.device.deferredSignals {
		q.pending = append(q.pending, value)
		return nil
	}
	q.completed = max(q.completed, value)
	return nil
}

func (q *Queue) CompletedValue() uint64 {
	return q.completed
}

func (q *Queue) Wait(value uint64) error {
	if q.device.removed {
		return fmt.Errorf("%s queue wait: %w", q.kind, core.ErrDeviceRemoved)
	}
	for len(q.pending) > 0 && q.completed < value {
		q.completed = max(q.completed, q.pending[0])
		q.pending = q.pending[1:]
	}
	if q.completed < value {
		return fmt.Errorf("%s queue: wait for %d which is never signaled (completed %d)", q.kind, value, q.completed)
	}
	return nil
}

// Retire completes every pending signal, as if the GPU caught up.
func (q *Queue) Retire() {
	for _, v := range q.pending {
		q.completed = max(q.completed, v)
	}
	q.pending = nil
}

func (q *Queue) TimestampFrequency() (uint64, error) {
	return timestampFrequency, nil
}
