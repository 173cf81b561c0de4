package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// pipelineConfig is the fixed-function state that differs between passes.
type pipelineConfig struct {
	bindings      []vk.DescriptorSetLayoutBinding
	pushConstants []vk.PushConstantRange
	vertexInput   bool
	colorBlend    []vk.PipelineColorBlendAttachmentState
	depthTest     bool
	depthBias     bool
	cullMode      vk.CullModeFlagBits
}

var colorWriteAll = vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)

func layoutBinding(binding uint32, kind gpu.DescriptorKind, stages vk.ShaderStageFlagBits) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  toVkDescriptorType(kind),
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(stages),
	}
}

func configFor(kind gpu.PassKind) (pipelineConfig, error) {
	switch kind {
	case gpu.PassGBuffer:
		opaque := vk.PipelineColorBlendAttachmentState{
			BlendEnable:    vk.False,
			ColorWriteMask: colorWriteAll,
		}
		return pipelineConfig{
			bindings: []vk.DescriptorSetLayoutBinding{
				layoutBinding(0, gpu.DescriptorUniformBuffer, vk.ShaderStageVertexBit),
				layoutBinding(1, gpu.DescriptorCombinedImageSampler, vk.ShaderStageFragmentBit),
			},
			vertexInput: true,
			colorBlend:  []vk.PipelineColorBlendAttachmentState{opaque, opaque, opaque},
			depthTest:   true,
			cullMode:    vk.CullModeBackBit,
		}, nil
	case gpu.PassLighting:
		// Each light adds its contribution on top of the previous ones.
		additive := vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorOne,
			DstColorBlendFactor: vk.BlendFactorOne,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask:      colorWriteAll,
		}
		return pipelineConfig{
			bindings: []vk.DescriptorSetLayoutBinding{
				layoutBinding(0, gpu.DescriptorUniformBuffer, vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
				layoutBinding(1, gpu.DescriptorCombinedImageSampler, vk.ShaderStageFragmentBit),
				layoutBinding(2, gpu.DescriptorCombinedImageSampler, vk.ShaderStageFragmentBit),
				layoutBinding(3, gpu.DescriptorCombinedImageSampler, vk.ShaderStageFragmentBit),
				layoutBinding(4, gpu.DescriptorCombinedImageSampler, vk.ShaderStageFragmentBit),
			},
			colorBlend: []vk.PipelineColorBlendAttachmentState{additive},
			cullMode:   vk.CullModeNone,
		}, nil
	case gpu.PassShadow:
		return pipelineConfig{
			bindings: []vk.DescriptorSetLayoutBinding{
				layoutBinding(0, gpu.DescriptorUniformBuffer, vk.ShaderStageVertexBit),
			},
			pushConstants: []vk.PushConstantRange{{
				StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
				Offset:     0,
				Size:       shadowPushConstantSize,
			}},
			vertexInput: true,
			depthTest:   true,
			depthBias:   true,
			cullMode:    vk.CullModeBackBit,
		}, nil
	}
	return pipelineConfig{}, fmt.Errorf("no pipeline for pass kind %d", kind)
}

// CreatePipeline builds the descriptor set layout, the pipeline layout and
// the graphics pipeline of one pass. Viewport and scissor are dynamic.
func (b *Backend) CreatePipeline(kind gpu.PassKind, pass gpu.RenderPass) (gpu.PipelineSet, error) {
	rp, ok := b.renderPasses.get(pass)
	if !ok {
		return gpu.PipelineSet{}, fmt.Errorf("creating %s pipeline for unknown render pass %d", kind, pass)
	}
	config, err := configFor(kind)
	if err != nil {
		return gpu.PipelineSet{}, err
	}
	dev := b.device.LogicalDevice

	setLayoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(config.bindings)),
		PBindings:    config.bindings,
	}
	var setLayout vk.DescriptorSetLayout
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(dev, &setLayoutInfo, nil, &setLayout)); err != nil {
		return gpu.PipelineSet{}, fmt.Errorf("%s set layout: %w", kind, err)
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
		PushConstantRangeCount: uint32(len(config.pushConstants)),
		PPushConstantRanges:    config.pushConstants,
	}
	var layout vk.PipelineLayout
	if err := b.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreatePipelineLayout", vk.CreatePipelineLayout(dev, &pipelineLayoutInfo, nil, &layout))
	}); err != nil {
		vk.DestroyDescriptorSetLayout(dev, setLayout, nil)
		return gpu.PipelineSet{}, fmt.Errorf("%s pipeline layout: %w", kind, err)
	}

	stages, err := b.loadShaderStages(kind)
	if err != nil {
		vk.DestroyPipelineLayout(dev, layout, nil)
		vk.DestroyDescriptorSetLayout(dev, setLayout, nil)
		return gpu.PipelineSet{}, err
	}
	defer b.destroyShaderStages(stages)

	pipeline, err := b.createGraphicsPipeline(config, stages, layout, rp)
	if err != nil {
		vk.DestroyPipelineLayout(dev, layout, nil)
		vk.DestroyDescriptorSetLayout(dev, setLayout, nil)
		return gpu.PipelineSet{}, fmt.Errorf("%s pipeline: %w", kind, err)
	}

	core.LogDebug("%s pipeline created", kind)
	return gpu.PipelineSet{
		Pipeline:  b.pipelines.add(pipeline),
		Layout:    b.layouts.add(layout),
		SetLayout: b.setLayouts.add(setLayout),
	}, nil
}

func (b *Backend) createGraphicsPipeline(config pipelineConfig, stages []shaderStage, layout vk.PipelineLayout, rp vk.RenderPass) (vk.Pipeline, error) {
	stageInfos := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		stageInfos[i] = s.info
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if config.vertexInput {
		bindings, attributes := vertexInput()
		vertexInputInfo.VertexBindingDescriptionCount = uint32(len(bindings))
		vertexInputInfo.PVertexBindingDescriptions = bindings
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Counts only; the values are set per frame.
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
		CullMode:                vk.CullModeFlags(config.cullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if config.depthBias {
		rasterizer.DepthBiasEnable = vk.True
		rasterizer.DepthBiasConstantFactor = shadowDepthBiasConstant
		rasterizer.DepthBiasSlopeFactor = shadowDepthBiasSlope
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if config.depthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
		depthStencil.DepthBoundsTestEnable = vk.False
	}

	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(config.colorBlend)),
		PAttachments:    config.colorBlend,
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

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stageInfos)),
		PStages:             stageInfos,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          rp,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := b.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(b.device.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines))
	})
	if err != nil {
		return vk.NullPipeline, err
	}
	return pipelines[0], nil
}

func (b *Backend) DestroyPipeline(set gpu.PipelineSet) {
	dev := b.device.LogicalDevice
	if p, ok := b.pipelines.remove(set.Pipeline); ok {
		vk.DestroyPipeline(dev, p, nil)
	}
	if l, ok := b.layouts.remove(set.Layout); ok {
		vk.DestroyPipelineLayout(dev, l, nil)
	}
	if l, ok := b.setLayouts.remove(set.SetLayout); ok {
		vk.DestroyDescriptorSetLayout(dev, l, nil)
	}
}
