package testbed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer"
	"github.com/navkagleb/benzin-sub001/engine/renderer/command"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/raytracing"
	"github.com/navkagleb/benzin-sub001/engine/renderer/resource"
	"github.com/navkagleb/benzin-sub001/engine/scene"
)

const (
	maxLights        = 16
	albedoSize       = 64
	albedoMips       = 4
	threadsPerGroupX = 8
	threadsPerGroupY = 8
)

// Pipelines are optional. Without a graphics pipeline frames only clear,
// without a compute pipeline the light pass is skipped.
type Pipelines struct {
	Graphics metadata.PipelineState
	Compute  metadata.PipelineState
}

type Config struct {
	Width     uint32
	Height    uint32
	Pipelines Pipelines
	// Albedo replaces the generated checker texture when set.
	Albedo image.Image
}

// TestGame drives the renderer through a small scene: a triangle mesh
// union, a textured material, a few lights and, when the device supports
// it, per frame top level acceleration structures.
type TestGame struct {
	device *renderer.Device
	logger *core.Logger
	config Config

	scene    *scene.Scene
	instance int

	albedo     *resource.Texture
	albedoView int
	target     *resource.Texture
	targetView int
	depth      *resource.Texture
	depthView  int
	lights     *resource.Buffer
	lightsView int
	lightCount int

	builder   *raytracing.Builder
	topLevels *raytracing.FrameTopLevels

	clock *core.Clock
}

func NewTestGame(device *renderer.Device, config Config) *TestGame {
	return &TestGame{
		device: device,
		logger: device.Logger().Named("testbed"),
		config: config,
		clock:  core.NewClock(),
	}
}

// Initialize uploads the scene and builds its bottom level structures.
func (g *TestGame) Initialize() error {
	g.logger.Info("initializing testbed", "width", g.config.Width, "height", g.config.Height)
	g.scene = scene.New(g.logger)

	if err := g.createMeshes(); err != nil {
		return err
	}
	if err := g.createTextures(); err != nil {
		return err
	}
	if err := g.createLights(); err != nil {
		return err
	}

	builder, err := g.device.NewAccelerationStructureBuilder()
	switch {
	case errors.Is(err, core.ErrRaytracingUnsupported):
		g.logger.Warn("skipping acceleration structures", "err", err)
		return nil
	case err != nil:
		return err
	}
	g.builder = builder

	cl := g.device.ComputeQueue().CommandList()
	if err := g.scene.BuildBottomLevels(builder, cl); err != nil {
		return err
	}
	if err := g.device.Flush(metadata.QueueKindCompute); err != nil {
		return err
	}
	g.topLevels = g.device.NewFrameTopLevels(builder, "testbed")
	return nil
}

func (g *TestGame) createMeshes() error {
	positions := []mgl32.Vec3{{0, 0.5, 0}, {0.5, -0.5, 0}, {-0.5, -0.5, 0}}
	vertices, err := g.device.CreateBuffer(resource.BufferConfig{
		DebugName:    "triangle_Vertices",
		ElementSize:  12,
		ElementCount: uint32(len(positions)),
		Flags:        resource.BufferFlagStructuredBuffer,
		InitialState: metadata.ResourceStateNonPixelShaderResource,
		InitialData:  packPositions(positions),
	})
	if err != nil {
		return err
	}

	indices := []uint32{0, 1, 2}
	indexData := make([]byte, 4*len(indices))
	for i, index := range indices {
		binary.LittleEndian.PutUint32(indexData[4*i:], index)
	}
	indexBuffer, err := g.device.CreateBuffer(resource.BufferConfig{
		DebugName:    "triangle_Indices",
		ElementSize:  4,
		ElementCount: uint32(len(indices)),
		InitialState: metadata.ResourceStateIndexBuffer,
		InitialData:  indexData,
	})
	if err != nil {
		vertices.Destroy()
		return err
	}

	union := g.scene.Meshes.Add(&scene.MeshUnion{
		Name:         "triangle",
		VertexBuffer: vertices,
		IndexBuffer:  indexBuffer,
		Meshes: []scene.MeshInfo{
			{Name: "main", VertexCount: uint32(len(positions)), IndexCount: uint32(len(indices))},
		},
	})
	material := g.scene.Materials.Add(scene.DefaultMaterial())
	g.instance = g.scene.AddInstance(scene.MeshInstance{
		MeshUnion: union,
		Material:  material,
		Transform: mgl32.Ident4(),
		Visible:   true,
	})
	return nil
}

func (g *TestGame) createTextures() error {
	albedo := g.config.Albedo
	if albedo == nil {
		albedo = checker(albedoSize, 8)
	}
	bounds := albedo.Bounds()
	mips := min(albedoMips, mipCount(uint32(bounds.Dx()), uint32(bounds.Dy())))

	var err error
	g.albedo, err = g.device.CreateTexture(resource.TextureConfig{
		DebugName:    "testbed_Albedo",
		Format:       metadata.FormatRGBA8Unorm,
		Width:        uint32(bounds.Dx()),
		Height:       uint32(bounds.Dy()),
		MipCount:     mips,
		InitialState: metadata.ResourceStatePixelShaderResource,
	}, command.MipChainFromImage(albedo, mips)...)
	if err != nil {
		return err
	}
	g.albedoView = g.albedo.PushShaderResourceView()

	g.target, err = g.device.CreateTexture(resource.TextureConfig{
		DebugName:    "testbed_Color",
		Format:       metadata.FormatRGBA8Unorm,
		Width:        g.config.Width,
		Height:       g.config.Height,
		Flags:        metadata.TextureFlagAllowRenderTarget,
		InitialState: metadata.ResourceStatePixelShaderResource,
	})
	if err != nil {
		return err
	}
	g.targetView = g.target.PushRenderTargetView(0, 0)

	g.depth, err = g.device.CreateTexture(resource.TextureConfig{
		DebugName:    "testbed_Depth",
		Format:       metadata.FormatD32Float,
		Width:        g.config.Width,
		Height:       g.config.Height,
		Flags:        metadata.TextureFlagAllowDepthStencil,
		InitialState: metadata.ResourceStateDepthWrite,
	})
	if err != nil {
		return err
	}
	g.depthView = g.depth.PushDepthStencilView()
	return nil
}

func (g *TestGame) createLights() error {
	g.scene.AddLight(scene.DirectionalLight{
		Direction: mgl32.Vec3{-0.3, -1, -0.2}.Normalize(),
		Color:     mgl32.Vec3{1, 0.95, 0.9},
		Intensity: 3,
	})
	g.scene.AddLight(scene.PointLight{
		Position:  mgl32.Vec3{0, 1, -1},
		Color:     mgl32.Vec3{0.2, 0.4, 1},
		Intensity: 10,
		Range:     5,
	})

	var err error
	g.lights, err = g.device.CreateBuffer(resource.BufferConfig{
		DebugName:    "testbed_Lights",
		ElementSize:  scene.LightRecordSize,
		ElementCount: maxLights,
		Flags:        resource.BufferFlagUpload | resource.BufferFlagStructuredBuffer,
	})
	if err != nil {
		return err
	}
	g.lightCount = g.scene.WriteLights(g.lights)
	g.lightsView = g.lights.PushShaderResourceView()
	return nil
}

// Update spins the triangle around the vertical axis.
func (g *TestGame) Update(frame uint64) {
	angle := mgl32.DegToRad(float32(frame%360) * 2)
	g.scene.Instances[g.instance].Transform = mgl32.HomogRotate3DY(angle)
}

// Render records one frame on the graphics queue and, with a compute
// pipeline, the light pass on the compute queue.
func (g *TestGame) Render() error {
	if err := g.device.BeginFrame(); err != nil {
		return err
	}
	frameIndex := g.device.FrameIndex()

	if g.config.Pipelines.Compute != nil {
		cl := g.device.ComputeQueue().CommandList()
		cl.SetPipelineState(g.config.Pipelines.Compute)
		cl.SetRootResource(0, g.lights.ShaderResourceView(g.lightsView))
		cl.SetRootConstant(1, uint32(g.lightCount))
		cl.Dispatch([3]uint32{g.config.Width, g.config.Height, 1}, [3]uint32{threadsPerGroupX, threadsPerGroupY, 1})
		if err := g.device.Flush(metadata.QueueKindCompute); err != nil {
			return err
		}
	}

	cl := g.device.GraphicsQueue().CommandList()
	if g.topLevels != nil {
		if _, err := g.topLevels.Rebuild(frameIndex, g.scene.TopLevelInstances(), cl); err != nil {
			return fmt.Errorf("failed to rebuild top level for frame %d: %w", frameIndex, err)
		}
	}

	rtv := g.target.RenderTargetView(g.targetView)
	dsv := g.depth.DepthStencilView(g.depthView)
	cl.SetResourceBarrier(resource.Transition(g.target, metadata.ResourceStateRenderTarget))
	cl.SetRenderTargets([]metadata.Descriptor{rtv}, &dsv)
	cl.SetViewport(metadata.Viewport{Width: float32(g.config.Width), Height: float32(g.config.Height), MaxDepth: 1})
	cl.SetScissor(metadata.Rect{Right: int32(g.config.Width), Bottom: int32(g.config.Height)})
	cl.ClearRenderTarget(rtv, clearColor(g.device.FrameCount()))
	cl.ClearDepthStencil(dsv, 1, 0)

	if g.config.Pipelines.Graphics != nil {
		union := g.scene.Meshes.Get(0)
		cl.SetPipelineState(g.config.Pipelines.Graphics)
		cl.SetPrimitiveTopology(metadata.PrimitiveTopologyTriangleList)
		cl.SetIndexBuffer(union.IndexBuffer)
		cl.SetRootResource(0, g.albedo.ShaderResourceView(g.albedoView))
		cl.SetRootResource(1, g.lights.ShaderResourceView(g.lightsView))
		cl.DrawIndexed(union.Meshes[0].IndexCount, 1, 0, 0, 0)
	}

	cl.SetResourceBarrier(resource.Transition(g.target, metadata.ResourceStatePixelShaderResource))
	return g.device.EndFrame()
}

// Run updates and renders frames until ctx is done or, when frames is
// positive, that many frames have been rendered.
func (g *TestGame) Run(ctx context.Context, frames int) error {
	g.clock.Start()
	defer g.clock.Stop()

	for frame := 0; frames <= 0 || frame < frames; frame++ {
		select {
		case <-ctx.Done():
			g.logger.Info("testbed interrupted", "frames", frame)
			return nil
		default:
		}

		g.Update(g.device.FrameCount())
		if err := g.Render(); err != nil {
			return err
		}
	}

	g.clock.Update()
	g.logger.Info("testbed finished", "frames", g.device.FrameCount(), "elapsed", g.clock.Elapsed())
	return nil
}

// Shutdown waits for the GPU and destroys everything Initialize created.
func (g *TestGame) Shutdown() error {
	if g.topLevels != nil {
		g.topLevels.Destroy()
		g.topLevels = nil
	}
	if err := g.device.WaitIdle(); err != nil {
		return err
	}
	for _, t := range []*resource.Texture{g.albedo, g.target, g.depth} {
		if t != nil {
			t.Destroy()
		}
	}
	if g.lights != nil {
		g.lights.Destroy()
	}
	if g.scene != nil {
		g.scene.Destroy()
	}
	g.logger.Debug("testbed shut down")
	return nil
}

func packPositions(positions []mgl32.Vec3) []byte {
	data := make([]byte, 0, 12*len(positions))
	for _, p := range positions {
		for _, c := range p {
			data = binary.LittleEndian.AppendUint32(data, gomath.Float32bits(c))
		}
	}
	return data
}

func checker(size, cell int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 220, G: 220, B: 220, A: 255}
	dark := color.RGBA{R: 40, G: 40, B: 40, A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	return img
}

// mipCount is the length of the full mip chain of a width by height texture.
func mipCount(width, height uint32) uint32 {
	count := uint32(1)
	for size := max(width, height); size > 1; size /= 2 {
		count++
	}
	return count
}

func clearColor(frame uint64) [4]float32 {
	t := float32(frame%120) / 120
	return [4]float32{0.1, 0.1 + 0.2*t, 0.2, 1}
}
