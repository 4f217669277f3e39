package vulkan

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

// CreatePipeline compiles the SPIR-V stages into a graphics pipeline with
// dynamic viewport and scissor. The shader modules only live for the call.
func (d *Device) CreatePipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	rp, ok := d.renderPasses.get(desc.RenderPass)
	if !ok {
		return 0, fmt.Errorf("pipeline for unknown render pass %d", desc.RenderPass)
	}
	setLayout, ok := d.layouts.get(desc.Layout)
	if !ok {
		return 0, fmt.Errorf("pipeline with unknown layout %d", desc.Layout)
	}
	cfg := desc.Config

	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(desc.Stages))
	modules := make([]vk.ShaderModule, 0, len(desc.Stages))
	defer func() {
		for _, m := range modules {
			vk.DestroyShaderModule(d.device, m, nil)
		}
	}()
	for _, s := range desc.Stages {
		words := codeWords(s.Code)
		if len(words) == 0 {
			return 0, fmt.Errorf("%s stage of pipeline %q has no SPIR-V code", s.Stage, cfg.Name)
		}
		var module vk.ShaderModule
		res := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint(len(words) * 4),
			PCode:    words,
		}, nil, &module)
		if err := d.check("vkCreateShaderModule", res); err != nil {
			return 0, err
		}
		modules = append(modules, module)
		entry := s.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  shaderStage(s.Stage),
			Module: module,
			PName:  safeString(entry),
		})
	}

	// Viewport and scissor are dynamic; the counts still have to be given.
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
		CullMode:                cullMode(cfg.CullMode),
		FrontFace:               frontFace(cfg.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: sampleCount(cfg.SampleCount),
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if cfg.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if cfg.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blend := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	if cfg.BlendEnable {
		blend.BlendEnable = vk.True
	}
	blends := make([]vk.PipelineColorBlendAttachmentState, rp.colors)
	for i := range blends {
		blends[i] = blend
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
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
	if layout := cfg.VertexInput; layout.Stride > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, len(layout.Attributes))
		for i, a := range layout.Attributes {
			attributes[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   vertexFormat(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    layout.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInput.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               topology(cfg.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	out := &pipeline{}
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
			SType:          vk.StructureTypePipelineLayoutCreateInfo,
			SetLayoutCount: 1,
			PSetLayouts:    []vk.DescriptorSetLayout{setLayout},
		}, nil, &out.layout)
		return d.check("vkCreatePipelineLayout", res)
	}); err != nil {
		core.LogError(err.Error())
		return 0, err
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              out.layout,
		RenderPass:          rp.handle,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreateGraphicsPipelines(d.device, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{createInfo}, nil, pipelines)
		return d.check("vkCreateGraphicsPipelines", res)
	}); err != nil {
		vk.DestroyPipelineLayout(d.device, out.layout, nil)
		core.LogError(err.Error())
		return 0, err
	}
	out.handle = pipelines[0]

	core.LogDebug("Graphics pipeline %q created.", cfg.Name)
	return d.pipelines.add(out), nil
}

func (d *Device) DestroyPipeline(h driver.Pipeline) {
	p, ok := d.pipelines.remove(h)
	if !ok {
		return
	}
	d.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(d.device, p.handle, nil)
		vk.DestroyPipelineLayout(d.device, p.layout, nil)
		return nil
	})
}

func (d *Device) CmdBindPipeline(ch driver.CommandBuffer, ph driver.Pipeline) {
	cb, ok := d.cmdbufs.get(ch)
	if !ok {
		return
	}
	if p, ok := d.pipelines.get(ph); ok {
		vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, p.handle)
	}
}

func (d *Device) CmdBindDescriptorSet(ch driver.CommandBuffer, ph driver.Pipeline, sh driver.DescriptorSet) {
	cb, ok := d.cmdbufs.get(ch)
	if !ok {
		return
	}
	p, ok := d.pipelines.get(ph)
	if !ok {
		return
	}
	s, ok := d.sets.get(sh)
	if !ok {
		return
	}
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, p.layout,
		0, 1, []vk.DescriptorSet{s.handle}, 0, nil)
}
