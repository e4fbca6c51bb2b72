package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/navkagleb/benzin-sub001/engine/renderer/metadata"
)

// Pipeline is a compute or graphics pipeline created against the shared
// bindless layout.
type Pipeline struct {
	name      string
	bindPoint metadata.PipelineBindPoint
	handle    vk.Pipeline
	topology  metadata.PrimitiveTopology
}

func (p *Pipeline) Name() string { return p.name }
func (p *Pipeline) BindPoint() metadata.PipelineBindPoint { return p.bindPoint }
func (p *Pipeline) Handle() vk.Pipeline { return p.handle }

func (p *Pipeline) vkBindPoint() vk.PipelineBindPoint {
	if p.bindPoint == metadata.PipelineBindPointCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

// CreateComputePipeline builds a pipeline from a SPIR-V compute shader with
// a "main" entry point.
func (d *Device) CreateComputePipeline(name string, spirv []byte) (*Pipeline, error) {
	layout, _, err := d.bindless()
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", name, err)
	}
	module, err := d.createShaderModule(spirv)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", name, err)
	}
	defer vk.DestroyShaderModule(d.handle, module, nil)

	createInfo := []vk.ComputePipelineCreateInfo{{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              shaderStage(vk.ShaderStageComputeBit, module),
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateComputePipelines", vk.CreateComputePipelines(d.handle, vk.NullPipelineCache, 1, createInfo, nil, pipelines)); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", name, err)
	}

	p := &Pipeline{name: name, bindPoint: metadata.PipelineBindPointCompute, handle: pipelines[0]}
	d.track(p)
	return p, nil
}

// GraphicsPipelineConfig describes a graphics pipeline. Vertices are pulled
// from bindless buffers, so there is no vertex input state.
type GraphicsPipelineConfig struct {
	Name         string
	VertexShader []byte
	PixelShader  []byte

	RenderTargetFormats []metadata.Format
	// DepthStencilFormat is FormatUnknown when the pipeline has no depth target.
	DepthStencilFormat metadata.Format

	Topology   metadata.PrimitiveTopology
	CullMode   metadata.FaceCullMode
	Wireframe  bool
	DepthTest  bool
	DepthWrite bool
	// Blend enables alpha blending on every render target.
	Blend bool
}

func (d *Device) CreateGraphicsPipeline(config GraphicsPipelineConfig) (*Pipeline, error) {
	if len(config.RenderTargetFormats) > maxRenderTargets {
		return nil, fmt.Errorf("pipeline %q has %d render targets, at most %d are supported", config.Name, len(config.RenderTargetFormats), maxRenderTargets)
	}
	layout, _, err := d.bindless()
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", config.Name, err)
	}

	key := renderPassKey{count: len(config.RenderTargetFormats)}
	for i, f := range config.RenderTargetFormats {
		key.colors[i] = toVkFormat(f)
	}
	if config.DepthStencilFormat != metadata.FormatUnknown {
		key.depth = toVkFormat(config.DepthStencilFormat)
	}
	renderPass, err := d.renderPasses.get(d.handle, key)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", config.Name, err)
	}

	vertex, err := d.createShaderModule(config.VertexShader)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q vertex shader: %w", config.Name, err)
	}
	defer vk.DestroyShaderModule(d.handle, vertex, nil)
	stages := []vk.PipelineShaderStageCreateInfo{shaderStage(vk.ShaderStageVertexBit, vertex)}
	if len(config.PixelShader) > 0 {
		pixel, err := d.createShaderModule(config.PixelShader)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q pixel shader: %w", config.Name, err)
		}
		defer vk.DestroyShaderModule(d.handle, pixel, nil)
		stages = append(stages, shaderStage(vk.ShaderStageFragmentBit, pixel))
	}

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
	}
	if config.Wireframe {
		rasterizer.PolygonMode = vk.PolygonModeLine
	}
	switch config.CullMode {
	case metadata.FaceCullModeNone:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullModeFrontAndBack:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeFrontAndBack)
	default:
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if config.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(config.RenderTargetFormats))
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.False,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
			DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}
		if config.Blend {
			blendAttachments[i].BlendEnable = vk.True
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toVkTopology(config.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	createInfo := []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(d.handle, vk.NullPipelineCache, 1, createInfo, nil, pipelines)); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", config.Name, err)
	}

	p := &Pipeline{
		name:      config.Name,
		bindPoint: metadata.PipelineBindPointGraphics,
		handle:    pipelines[0],
		topology:  config.Topology,
	}
	d.track(p)
	d.logger.Debug("graphics pipeline created", "name", config.Name, "targets", len(config.RenderTargetFormats))
	return p, nil
}

func (d *Device) DestroyPipeline(p *Pipeline) {
	d.mu.Lock()
	delete(d.pipelines, p)
	d.mu.Unlock()
	if p.handle != nil {
		vk.DestroyPipeline(d.handle, p.handle, nil)
		p.handle = nil
	}
}

func (d *Device) track(p *Pipeline) {
	d.mu.Lock()
	d.pipelines[p] = struct{}{}
	d.mu.Unlock()
}
