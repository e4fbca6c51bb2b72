/*
Renders the testbed scene for a number of frames on either the headless
device or the first Vulkan device, then shuts everything down.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/navkagleb/benzin-sub001/engine/assets"
	"github.com/navkagleb/benzin-sub001/engine/core"
	"github.com/navkagleb/benzin-sub001/engine/renderer"
	"github.com/navkagleb/benzin-sub001/engine/renderer/headless"
	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
	"github.com/navkagleb/benzin-sub001/engine/renderer/vulkan"
	"github.com/navkagleb/benzin-sub001/testbed"
)

func main() {
	configPath := flag.String("config", "", "path of a TOML renderer configuration")
	backend := flag.String("backend", "headless", "native device: headless or vulkan")
	frames := flag.Int("frames", 60, "frames to render, zero renders until interrupted")
	width := flag.Uint("width", 1280, "render target width")
	height := flag.Uint("height", 720, "render target height")
	validation := flag.Bool("validation", false, "enable the Vulkan validation layer")
	watch := flag.Bool("watch", false, "reload the configuration file when it changes")
	assetsDir := flag.String("assets", "", "directory holding the SPIR-V shaders of the Vulkan backend")
	flag.Parse()

	opts := options{
		configPath: *configPath,
		backend:    *backend,
		assetsDir:  *assetsDir,
		frames:     *frames,
		width:      uint32(*width),
		height:     uint32(*height),
		validation: *validation,
		watch:      *watch,
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	backend    string
	assetsDir  string
	frames     int
	width      uint32
	height     uint32
	validation bool
	watch      bool
}

func run(opts options) error {
	cfg := core.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = core.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	logger := core.NewLogger(os.Stderr, cfg.Log)

	var am *assets.AssetManager
	if opts.assetsDir != "" {
		var err error
		if am, err = assets.NewAssetManager(opts.assetsDir, logger); err != nil {
			return err
		}
		defer am.Close()
	}

	var (
		native    metadata.NativeDevice
		pipelines testbed.Pipelines
	)
	switch opts.backend {
	case "headless":
		native = headless.NewDevice()
		pipelines = testbed.Pipelines{
			Graphics: headless.NewPipeline("triangle", metadata.PipelineBindPointGraphics),
			Compute:  headless.NewPipeline("lights", metadata.PipelineBindPointCompute),
		}
	case "vulkan":
		device, err := vulkan.NewDevice(vulkan.Options{
			ApplicationName: "benzin-testbed",
			Validation:      opts.validation || cfg.Debug.Validation,
			PhysicalDevice:  -1,
		}, logger)
		if err != nil {
			return err
		}
		native = device
		if am != nil {
			if pipelines, err = vulkanPipelines(device, am); err != nil {
				_ = device.Close()
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", core.ErrInvalidConfig, opts.backend)
	}

	device, err := renderer.NewDevice(native, cfg, logger)
	if err != nil {
		_ = native.Close()
		return err
	}
	if opts.watch && opts.configPath != "" {
		if err := device.WatchConfig(opts.configPath); err != nil {
			logger.Warn("config changes will not be applied", "err", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	game := testbed.NewTestGame(device, testbed.Config{Width: opts.width, Height: opts.height, Pipelines: pipelines})
	if err := game.Initialize(); err != nil {
		_ = device.Close()
		return err
	}
	runErr := game.Run(ctx, opts.frames)
	if err := game.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	if err := device.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// vulkanPipelines builds the testbed pipelines from the shaders/ directory.
// A missing stage leaves its pipeline out.
func vulkanPipelines(device *vulkan.Device, am *assets.AssetManager) (testbed.Pipelines, error) {
	var pipelines testbed.Pipelines
	if am.Has("shaders/triangle.vert.spv") && am.Has("shaders/triangle.frag.spv") {
		vertex, err := am.Shader("shaders/triangle.vert.spv")
		if err != nil {
			return pipelines, err
		}
		pixel, err := am.Shader("shaders/triangle.frag.spv")
		if err != nil {
			return pipelines, err
		}
		graphics, err := device.CreateGraphicsPipeline(vulkan.GraphicsPipelineConfig{
			Name:                "triangle",
			VertexShader:        vertex,
			PixelShader:         pixel,
			RenderTargetFormats: []metadata.Format{metadata.FormatRGBA8Unorm},
			DepthStencilFormat:  metadata.FormatD32Float,
			Topology:            metadata.PrimitiveTopologyTriangleList,
			CullMode:            metadata.FaceCullModeNone,
			DepthTest:           true,
			DepthWrite:          true,
		})
		if err != nil {
			return pipelines, err
		}
		pipelines.Graphics = graphics
	}
	if am.Has("shaders/lights.comp.spv") {
		code, err := am.Shader("shaders/lights.comp.spv")
		if err != nil {
			return pipelines, err
		}
		compute, err := device.CreateComputePipeline("lights", code)
		if err != nil {
			return pipelines, err
		}
		pipelines.Compute = compute
	}
	return pipelines, nil
}
