package renderer

import (
	"errors"
	"fmt"

	"github.com/navkagleb/benzin-sub001/engine/containers"
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/command"
	"github.com/navkagleb/benzin-sub001/engine/renderer/descriptor"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/raytracing"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

// DeviceRemovedHandler is called when the native device reports it was
// removed. Returning nil means the failure was handled and the operation
// reports the error to its caller instead of stopping the process.
type DeviceRemovedHandler func(err error) error

type Option func(*Device)

func WithDeviceRemovedHandler(handler DeviceRemovedHandler) Option {
	return func(d *Device) {
		d.onDeviceRemoved = handler
	}
}

type deferredRelease struct {
	object resource.Object
	fence  uint64
}

// Device is the renderer context. It owns the native device, the
// descriptor tables, the queues and the frames in flight, and is handed to
// whatever needs them instead of living in a global.
type Device struct {
	config *core.Config
	logger *core.Logger

	native        metadata.NativeDevice
	allocator     *descriptor.Allocator
	factory       *resource.Factory
	copyQueue     *command.CopyQueue
	computeQueue  *command.ComputeQueue
	graphicsQueue *command.GraphicsQueue

	frameIndex  uint64
	frameFences []uint64
	releases    *containers.RingQueue[deferredRelease]

	onDeviceRemoved DeviceRemovedHandler
	watcher         *core.ConfigWatcher
}

func NewDevice(native metadata.NativeDevice, cfg *core.Config, logger *core.Logger, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid renderer configuration", "err", err)
		return nil, err
	}

	d := &Device{
		config:      cfg,
		logger:      logger.Named("renderer"),
		native:      native,
		frameFences: make([]uint64, cfg.Frames.InFlight),
		releases:    containers.NewRingQueue[deferredRelease](int(cfg.Frames.MaxDeferredReleases)),
	}
	for _, opt := range opts {
		opt(d)
	}

	var err error
	d.allocator, err = descriptor.NewAllocator(native, descriptor.CapacitiesFromConfig(cfg.Descriptors), cfg.Debug.Validation, logger)
	if err != nil {
		return nil, err
	}
	d.factory = resource.NewFactory(native, d.allocator, logger)

	if d.copyQueue, err = command.NewCopyQueue(native, d.factory, cfg.Upload.BufferSize, logger); err != nil {
		return nil, err
	}
	if d.computeQueue, err = command.NewComputeQueue(native, logger); err != nil {
		return nil, err
	}
	if d.graphicsQueue, err = command.NewGraphicsQueue(native, logger); err != nil {
		return nil, err
	}

	d.logger.Info("device created", "native", native.Name(), "framesInFlight", cfg.Frames.InFlight,
		"raytracing", native.Features().Raytracing)
	return d, nil
}

func (d *Device) Config() *core.Config { return d.config }
func (d *Device) Logger() *core.Logger { return d.logger }
func (d *Device) Native() metadata.NativeDevice { return d.native }
func (d *Device) Allocator() *descriptor.Allocator { return d.allocator }
func (d *Device) Factory() *resource.Factory { return d.factory }
func (d *Device) CopyQueue() *command.CopyQueue { return d.copyQueue }
func (d *Device) ComputeQueue() *command.ComputeQueue { return d.computeQueue }
func (d *Device) GraphicsQueue() *command.GraphicsQueue { return d.graphicsQueue }

func (d *Device) FramesInFlight() uint32 {
	return uint32(len(d.frameFences))
}

// FrameIndex is the frame in flight slot currently being recorded.
func (d *Device) FrameIndex() uint32 {
	return uint32(d.frameIndex % uint64(len(d.frameFences)))
}

// FrameCount is the number of frames ended so far.
func (d *Device) FrameCount() uint64 {
	return d.frameIndex
}

// CreateBuffer creates a buffer and, for device local buffers with initial
// data, uploads it through the copy queue before returning.
func (d *Device) CreateBuffer(cfg resource.BufferConfig) (*resource.Buffer, error) {
	buffer, err := d.factory.CreateBuffer(cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.InitialData) == 0 || cfg.Flags.Has(resource.BufferFlagUpload) {
		return buffer, nil
	}

	cl := d.copyQueue.CommandList()
	cl.SetResourceBarrier(resource.Transition(buffer, metadata.ResourceStateCopyDestination))
	cl.UpdateBuffer(buffer, cfg.InitialData, 0)
	cl.SetResourceBarrier(resource.Transition(buffer, cfg.InitialState))
	if err := d.Flush(metadata.QueueKindCopy); err != nil {
		return nil, err
	}
	return buffer, nil
}

// CreateTexture creates a texture and uploads subresources, if any,
// through the copy queue.
func (d *Device) CreateTexture(cfg resource.TextureConfig, subresources ...metadata.SubresourceData) (*resource.Texture, error) {
	texture, err := d.factory.CreateTexture(cfg)
	if err != nil {
		return nil, err
	}
	if len(subresources) == 0 {
		return texture, nil
	}

	cl := d.copyQueue.CommandList()
	cl.SetResourceBarrier(resource.Transition(texture, metadata.ResourceStateCopyDestination))
	cl.UpdateTexture(texture, subresources)
	cl.SetResourceBarrier(resource.Transition(texture, cfg.InitialState))
	if err := d.Flush(metadata.QueueKindCopy); err != nil {
		return nil, err
	}
	return texture, nil
}

// NewAccelerationStructureBuilder fails on devices without raytracing.
func (d *Device) NewAccelerationStructureBuilder() (*raytracing.Builder, error) {
	if !d.native.Features().Raytracing {
		return nil, fmt.Errorf("%s: %w", d.native.Name(), core.ErrRaytracingUnsupported)
	}
	return raytracing.NewBuilder(d.native, d.factory, d.logger), nil
}

// NewFrameTopLevels creates one top level structure slot per frame in
// flight, releasing replaced structures through the device.
func (d *Device) NewFrameTopLevels(builder *raytracing.Builder, name string) *raytracing.FrameTopLevels {
	return raytracing.NewFrameTopLevels(builder, d, name, d.FramesInFlight())
}

// BeginFrame waits until the GPU is done with the frame that last used the
// current slot and destroys whatever was released before it.
func (d *Device) BeginFrame() error {
	if err := d.graphicsQueue.WaitForFence(d.frameFences[d.FrameIndex()]); err != nil {
		return d.handleError(err)
	}
	d.releaseRetired()
	return nil
}

// EndFrame submits the graphics command list and remembers the fence the
// slot has to wait for next time.
func (d *Device) EndFrame() error {
	value, err := d.graphicsQueue.ExecuteCommandList()
	if err != nil {
		return d.handleError(err)
	}
	d.frameFences[d.FrameIndex()] = value
	d.frameIndex++
	return nil
}

// DeferRelease destroys obj once the graphics work recorded so far has
// completed.
func (d *Device) DeferRelease(obj resource.Object) {
	entry := deferredRelease{object: obj, fence: d.graphicsQueue.NextFenceValue()}
	if err := d.releases.Enqueue(entry); err == nil {
		return
	}

	d.logger.Warn("deferred release queue full, waiting for the GPU", "capacity", d.releases.Cap())
	d.releaseRetired()
	if d.releases.IsFull() {
		if err := d.Flush(metadata.QueueKindGraphics); err != nil {
			core.Fatal(err, "cannot release %q", obj.Base().Name())
		}
		d.releaseRetired()
	}
	if err := d.releases.Enqueue(entry); err != nil {
		core.Fatal(err, "cannot release %q", obj.Base().Name())
	}
}

// PendingReleases is the number of objects waiting for their fence.
func (d *Device) PendingReleases() int {
	return d.releases.Len()
}

func (d *Device) releaseRetired() {
	completed := d.graphicsQueue.CompletedFenceValue()
	for !d.releases.IsEmpty() {
		next, _ := d.releases.Peek()
		if next.fence > completed {
			return
		}
		entry, _ := d.releases.Dequeue()
		d.logger.Debug("releasing", "name", entry.object.Base().Name(), "id", entry.object.Base().ID().Short(), "fence", entry.fence)
		entry.object.Destroy()
	}
}

// Flush executes the command list of a queue and waits for it.
func (d *Device) Flush(kind metadata.QueueKind) error {
	var err error
	switch kind {
	case metadata.QueueKindCopy:
		err = d.copyQueue.Flush()
	case metadata.QueueKindCompute:
		err = d.computeQueue.Flush()
	case metadata.QueueKindGraphics:
		err = d.graphicsQueue.Flush()
	default:
		err = fmt.Errorf("unknown queue kind %d", kind)
	}
	if err != nil {
		return d.handleError(err)
	}
	return nil
}

// WaitIdle flushes every queue.
func (d *Device) WaitIdle() error {
	for _, kind := range []metadata.QueueKind{metadata.QueueKindCopy, metadata.QueueKindCompute, metadata.QueueKindGraphics} {
		if err := d.Flush(kind); err != nil {
			return err
		}
	}
	return nil
}

// handleError applies the device failure policy: a removed device goes to
// the handler, everything else stops the process.
func (d *Device) handleError(err error) error {
	if errors.Is(err, core.ErrDeviceRemoved) && d.onDeviceRemoved != nil {
		d.logger.Error("device removed", "err", err)
		herr := d.onDeviceRemoved(err)
		if herr == nil {
			return err
		}
		err = errors.Join(err, herr)
	}
	core.Fatal(err, "device failure on %s", d.native.Name())
	return err
}

// WatchConfig reloads the configuration file at path when it changes and
// applies the parts that may change at runtime. Descriptor capacities and
// frame counts are fixed for the lifetime of the device.
func (d *Device) WatchConfig(path string) error {
	if d.watcher != nil {
		return errors.New("config already watched")
	}
	watcher, err := core.NewConfigWatcher(path, d.logger, d.applyConfig)
	if err != nil {
		d.logger.Error("failed to watch config", "path", path, "err", err)
		return err
	}
	d.watcher = watcher
	return nil
}

func (d *Device) applyConfig(cfg *core.Config) {
	if err := d.logger.SetLevelString(cfg.Log.Level); err != nil {
		d.logger.Warn("ignoring log level", "level", cfg.Log.Level, "err", err)
	}
	if cfg.Descriptors != d.config.Descriptors || cfg.Frames != d.config.Frames || cfg.Upload != d.config.Upload {
		d.logger.Warn("descriptor, frame and upload settings only apply on restart")
	}
}

// Close waits for the GPU, destroys every pending release and the device.
func (d *Device) Close() error {
	var errs []error
	if d.watcher != nil {
		errs = append(errs, d.watcher.Close())
		d.watcher = nil
	}
	if err := d.WaitIdle(); err != nil {
		errs = append(errs, err)
	}
	for !d.releases.IsEmpty() {
		entry, _ := d.releases.Dequeue()
		entry.object.Destroy()
	}
	d.copyQueue.Destroy()
	errs = append(errs, d.native.Close())
	d.logger.Info("device closed")
	return errors.Join(errs...)
}
