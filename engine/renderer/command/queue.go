package command

import (
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// queue owns one native queue, its fence counter and the single command
// list recorded for it.
type queue struct {
	kind      metadata.QueueKind
	native    metadata.NativeQueue
	list      *CommandList
	fence     uint64
	logger    *core.Logger
	clock     *core.Clock

	// Called with the signalled value after every submission and with the
	// completed value whenever the queue observes progress.
	onSubmit func(fence uint64)
	onRetire func(completed uint64)
}

func newQueue(device metadata.NativeDevice, kind metadata.QueueKind, list *CommandList, logger *core.Logger) queue {
	return queue{
		kind:   kind,
		native: device.Queue(kind),
		list:   list,
		logger: logger,
		clock:  core.NewClock(),
	}
}

func (q *queue) Kind() metadata.QueueKind {
	return q.kind
}

// ExecuteCommandList closes and submits the command list, signals the next
// fence value and reopens the list for recording. It returns that value.
func (q *queue) ExecuteCommandList() (uint64, error) {
	native := q.list.native
	if err := native.Close(); err != nil {
		q.logger.Error("failed to close command list", "queue", q.kind, "err", err)
		return 0, fmt.Errorf("failed to close %s command list: %w", q.kind, err)
	}
	if err := q.native.Submit(native); err != nil {
		q.logger.Error("failed to submit command list", "queue", q.kind, "err", err)
		return 0, fmt.Errorf("failed to submit %s command list: %w", q.kind, err)
	}
	q.fence++
	if err := q.native.Signal(q.fence); err != nil {
		q.logger.Error("failed to signal fence", "queue", q.kind, "value", q.fence, "err", err)
		return 0, fmt.Errorf("failed to signal %s fence: %w", q.kind, err)
	}
	if q.onSubmit != nil {
		q.onSubmit(q.fence)
	}
	q.retired()
	if err := native.Reset(); err != nil {
		q.logger.Error("failed to reset command list", "queue", q.kind, "err", err)
		return 0, fmt.Errorf("failed to reset %s command list: %w", q.kind, err)
	}
	return q.fence, nil
}

// Flush executes the command list and blocks until the GPU has finished it.
func (q *queue) Flush() error {
	value, err := q.ExecuteCommandList()
	if err != nil {
		return err
	}
	return q.WaitForFence(value)
}

func (q *queue) WaitForFence(value uint64) error {
	if q.native.CompletedValue() >= value {
		q.retired()
		return nil
	}
	q.clock.Start()
	err := q.native.Wait(value)
	q.clock.Stop()
	if err != nil {
		q.logger.Error("fence wait failed", "queue", q.kind, "value", value, "err", err)
		return fmt.Errorf("failed to wait for %s fence %d: %w", q.kind, value, err)
	}
	q.logger.Debug("fence reached", "queue", q.kind, "value", value, "waited", q.clock.Elapsed())
	q.retired()
	return nil
}

func (q *queue) retired() {
	if q.onRetire != nil {
		q.onRetire(q.native.CompletedValue())
	}
}

func (q *queue) CompletedFenceValue() uint64 {
	return q.native.CompletedValue()
}

// NextFenceValue is the value the next ExecuteCommandList will signal.
func (q *queue) NextFenceValue() uint64 {
	return q.fence + 1
}

func (q *queue) TimestampFrequency() uint64 {
	frequency, err := q.native.TimestampFrequency()
	if err != nil {
		core.Fatal(err, "failed to query %s timestamp frequency", q.kind)
	}
	return frequency
}

type CopyQueue struct {
	queue
	commandList *CopyCommandList
}

// NewCopyQueue creates the copy queue and its upload ring of uploadSize bytes.
func NewCopyQueue(device metadata.NativeDevice, factory *resource.Factory, uploadSize uint64, logger *core.Logger) (*CopyQueue, error) {
	logger = logger.Named("copy")
	base, err := newCommandList(device, metadata.QueueKindCopy, logger)
	if err != nil {
		logger.Error("failed to create command list", "err", err)
		return nil, fmt.Errorf("failed to create copy command list: %w", err)
	}
	upload, err := NewUploadRing(factory, uploadSize)
	if err != nil {
		return nil, err
	}
	cl := &CopyCommandList{CommandList: base, device: device, upload: upload}
	q := &CopyQueue{commandList: cl}
	q.queue = newQueue(device, metadata.QueueKindCopy, &cl.CommandList, logger)
	cl.queue = &q.queue
	q.onSubmit = upload.Submitted
	q.onRetire = upload.Retire
	return q, nil
}

func (q *CopyQueue) CommandList() *CopyCommandList {
	return q.commandList
}

func (q *CopyQueue) Destroy() {
	q.commandList.upload.Destroy()
}

type ComputeQueue struct {
	queue
	commandList *ComputeCommandList
}

func NewComputeQueue(device metadata.NativeDevice, logger *core.Logger) (*ComputeQueue, error) {
	logger = logger.Named("compute")
	base, err := newCommandList(device, metadata.QueueKindCompute, logger)
	if err != nil {
		logger.Error("failed to create command list", "err", err)
		return nil, fmt.Errorf("failed to create compute command list: %w", err)
	}
	cl := &ComputeCommandList{CommandList: base}
	q := &ComputeQueue{commandList: cl}
	q.queue = newQueue(device, metadata.QueueKindCompute, &cl.CommandList, logger)
	cl.queue = &q.queue
	return q, nil
}

func (q *ComputeQueue) CommandList() *ComputeCommandList {
	return q.commandList
}

type GraphicsQueue struct {
	queue
	commandList *GraphicsCommandList
}

func NewGraphicsQueue(device metadata.NativeDevice, logger *core.Logger) (*GraphicsQueue, error) {
	logger = logger.Named("graphics")
	base, err := newCommandList(device, metadata.QueueKindGraphics, logger)
	if err != nil {
		logger.Error("failed to create command list", "err", err)
		return nil, fmt.Errorf("failed to create graphics command list: %w", err)
	}
	cl := &GraphicsCommandList{ComputeCommandList: ComputeCommandList{CommandList: base}}
	q := &GraphicsQueue{commandList: cl}
	q.queue = newQueue(device, metadata.QueueKindGraphics, &cl.CommandList, logger)
	cl.queue = &q.queue
	return q, nil
}

func (q *GraphicsQueue) CommandList() *GraphicsCommandList {
	return q.commandList
}
