package renderer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer/headless"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/raytracing"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
)

func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.Descriptors = core.DescriptorConfig{RenderTarget: 4, DepthStencil: 4, CBVSRVUAV: 32, Sampler: 4}
	cfg.Frames.InFlight = 2
	cfg.Frames.MaxDeferredReleases = 4
	cfg.Upload.BufferSize = core.MinUploadSize
	return cfg
}

func newTestDevice(t *testing.T, native *headless.Device, opts ...Option) *Device {
	t.Helper()
	d, err := NewDevice(native, testConfig(), core.NewNopLogger(), opts...)
	require.NoError(t, err)
	return d
}

func TestNewDeviceRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Frames.InFlight = 0
	_, err := NewDevice(headless.NewDevice(), cfg, core.NewNopLogger())
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestCreateBufferUploadsInitialData(t *testing.T) {
	native := headless.NewDevice()
	d := newTestDevice(t, native)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	b, err := d.CreateBuffer(resource.BufferConfig{
		DebugName:    "vertices",
		ElementSize:  4,
		ElementCount: 2,
		InitialState: metadata.ResourceStateVertexBuffer,
		InitialData:  data,
	})
	require.NoError(t, err)

	assert.Equal(t, data, b.Native().(*headless.Buffer).Bytes())
	assert.Equal(t, metadata.ResourceStateVertexBuffer, b.CurrentState())

	var barriers []metadata.BarrierDesc
	for _, c := range native.History() {
		if c.Op == headless.OpResourceBarriers {
			barriers = append(barriers, c.Barriers...)
		}
	}
	require.Len(t, barriers, 2)
	assert.Equal(t, metadata.ResourceStateVertexBuffer, barriers[0].StateBefore)
	assert.Equal(t, metadata.ResourceStateCopyDestination, barriers[0].StateAfter)
	assert.Equal(t, metadata.ResourceStateCopyDestination, barriers[1].StateBefore)
	assert.Equal(t, metadata.ResourceStateVertexBuffer, barriers[1].StateAfter)
}

func TestCreateTextureUploadsSubresources(t *testing.T) {
	native := headless.NewDevice()
	d := newTestDevice(t, native)

	texels := make([]byte, 2*2*4)
	for i := range texels {
		texels[i] = byte(i)
	}
	tex, err := d.CreateTexture(resource.TextureConfig{
		DebugName:    "albedo",
		Format:       metadata.FormatRGBA8Unorm,
		Width:        2,
		Height:       2,
		InitialState: metadata.ResourceStatePixelShaderResource,
	}, metadata.SubresourceData{Data: texels})
	require.NoError(t, err)

	assert.Equal(t, texels, tex.Native().(*headless.Texture).Subresource(0))
	assert.Equal(t, metadata.ResourceStatePixelShaderResource, tex.CurrentState())
}

func TestDeferredReleaseWaitsForFrameFence(t *testing.T) {
	native := headless.NewDevice(headless.WithDeferredSignals())
	d := newTestDevice(t, native)
	graphics := native.Queue(metadata.QueueKindGraphics).(*headless.Queue)

	b, err := d.CreateBuffer(resource.BufferConfig{DebugName: "transient", ElementSize: 16, ElementCount: 1})
	require.NoError(t, err)
	b.PushShaderResourceView()

	require.NoError(t, d.BeginFrame())
	d.DeferRelease(b)
	require.NoError(t, d.EndFrame())
	assert.Equal(t, uint32(1), d.FrameIndex())

	require.NoError(t, d.BeginFrame())
	assert.False(t, b.Destroyed(), "frame 0 is still in flight")
	assert.Equal(t, 1, d.PendingReleases())
	require.NoError(t, d.EndFrame())

	require.NoError(t, d.BeginFrame())
	assert.True(t, b.Destroyed())
	assert.Zero(t, d.PendingReleases())
	assert.Zero(t, d.Allocator().LiveCount(metadata.HeapKindCBVSRVUAV))
	assert.Equal(t, uint64(1), graphics.CompletedValue())
}

func TestDeferredReleaseQueueOverflowFlushes(t *testing.T) {
	native := headless.NewDevice(headless.WithDeferredSignals())
	d := newTestDevice(t, native)

	var buffers []*resource.Buffer
	for i := 0; i < 5; i++ {
		b, err := d.CreateBuffer(resource.BufferConfig{DebugName: "garbage", ElementSize: 4, ElementCount: 1})
		require.NoError(t, err)
		buffers = append(buffers, b)
		d.DeferRelease(b)
	}

	for _, b := range buffers[:4] {
		assert.True(t, b.Destroyed())
	}
	assert.False(t, buffers[4].Destroyed())
	assert.Equal(t, 1, d.PendingReleases())
}

func TestDeviceRemovedWithoutHandlerIsFatal(t *testing.T) {
	native := headless.NewDevice()
	d := newTestDevice(t, native)
	native.RemoveDevice()

	defer func() {
		fe, ok := recover().(*core.FatalError)
		require.True(t, ok)
		assert.True(t, errors.Is(fe, core.ErrDeviceRemoved))
	}()
	_ = d.EndFrame()
}

func TestDeviceRemovedHandler(t *testing.T) {
	native := headless.NewDevice()
	var seen error
	d := newTestDevice(t, native, WithDeviceRemovedHandler(func(err error) error {
		seen = err
		return nil
	}))
	native.RemoveDevice()

	err := d.Flush(metadata.QueueKindCompute)
	assert.ErrorIs(t, err, core.ErrDeviceRemoved)
	assert.ErrorIs(t, seen, core.ErrDeviceRemoved)
}

func TestDeviceRemovedHandlerFailureIsFatal(t *testing.T) {
	native := headless.NewDevice()
	d := newTestDevice(t, native, WithDeviceRemovedHandler(func(err error) error {
		return errors.New("no adapter")
	}))
	native.RemoveDevice()

	assert.Panics(t, func() { _ = d.Flush(metadata.QueueKindGraphics) })
}

func TestAccelerationStructureBuilderRequiresRaytracing(t *testing.T) {
	d := newTestDevice(t, headless.NewDevice(headless.WithRaytracing(false)))
	_, err := d.NewAccelerationStructureBuilder()
	assert.ErrorIs(t, err, core.ErrRaytracingUnsupported)
}

func TestFrameTopLevelsReleaseThroughDevice(t *testing.T) {
	native := headless.NewDevice()
	d := newTestDevice(t, native)
	builder, err := d.NewAccelerationStructureBuilder()
	require.NoError(t, err)

	vertices, err := d.CreateBuffer(resource.BufferConfig{
		DebugName:    "vertices",
		ElementSize:  12,
		ElementCount: 3,
		InitialState: metadata.ResourceStateNonPixelShaderResource,
		InitialData:  make([]byte, 36),
	})
	require.NoError(t, err)

	cl := d.GraphicsQueue().CommandList()
	blas, err := builder.NewBottomLevel("triangle", raytracing.TriangledGeometry{VertexBuffer: vertices, VertexCount: 3})
	require.NoError(t, err)
	builder.BuildBottomLevels(cl, blas)

	frames := d.NewFrameTopLevels(builder, "scene")
	instances := []raytracing.TopLevelInstance{{BottomLevel: blas, Transform: mgl32.Ident4()}}
	for frame := 0; frame < 3; frame++ {
		require.NoError(t, d.BeginFrame())
		_, err := frames.Rebuild(d.FrameIndex(), instances, cl)
		require.NoError(t, err)
		require.NoError(t, d.EndFrame())
	}
	require.NoError(t, d.BeginFrame())
	assert.Zero(t, d.PendingReleases(), "the replaced slot retired with its frame")

	frames.Destroy()
	blas.Destroy()
	require.NoError(t, d.Close())
	assert.Equal(t, 1, native.LiveResources(), "only the vertex buffer is left")
}

func TestWatchConfigAppliesLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renderer.toml")
	cfg := testConfig()
	data, err := cfg.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	d := newTestDevice(t, headless.NewDevice())
	require.NoError(t, d.WatchConfig(path))
	assert.Error(t, d.WatchConfig(path))

	cfg.Log.Level = "debug"
	data, err = cfg.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	assert.Eventually(t, func() bool {
		return d.Logger().GetLevel().String() == "debug"
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, d.Close())
}

type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.String()
}

func TestWatchConfigLogLevelReachesSubsystems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renderer.toml")
	cfg := testConfig()
	data, err := cfg.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var out syncBuffer
	d, err := NewDevice(headless.NewDevice(), cfg, core.NewLogger(&out, cfg.Log))
	require.NoError(t, err)
	require.NoError(t, d.WatchConfig(path))

	_, err = d.CreateBuffer(resource.BufferConfig{DebugName: "quiet", ElementSize: 4, ElementCount: 4})
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "buffer created")

	cfg.Log.Level = "debug"
	data, err = cfg.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	assert.Eventually(t, func() bool {
		return d.Logger().GetLevel().String() == "debug"
	}, 2*time.Second, 10*time.Millisecond)

	b, err := d.CreateBuffer(resource.BufferConfig{DebugName: "loud", ElementSize: 4, ElementCount: 4})
	require.NoError(t, err)
	d.GraphicsQueue().CommandList().SetResourceBarrier(resource.Transition(b, metadata.ResourceStateCopySource))

	logged := out.String()
	assert.Contains(t, logged, "benzin/resource")
	assert.Contains(t, logged, "buffer created")
	assert.Contains(t, logged, "benzin/graphics")
	assert.Contains(t, logged, "barrier")
	require.NoError(t, d.Close())
}
