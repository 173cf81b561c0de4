package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// G-buffer colour targets in attachment order: albedo, normal, position.
var gbufferColorFormats = []vk.Format{
	vk.FormatR8g8b8a8Unorm,
	vk.FormatR16g16b16a16Sfloat,
	vk.FormatR16g16b16a16Sfloat,
}

// CreateRenderPass builds the single-subpass render pass of one pass kind.
// The G-buffer and shadow passes leave their attachments ready to sample;
// the lighting pass leaves the swapchain image ready to present.
func (b *Backend) CreateRenderPass(kind gpu.PassKind, colorFormat, depthFormat gpu.Format) (gpu.RenderPass, error) {
	var createInfo vk.RenderPassCreateInfo
	switch kind {
	case gpu.PassGBuffer:
		createInfo = gbufferRenderPass(toVkFormat(depthFormat))
	case gpu.PassLighting:
		createInfo = lightingRenderPass(toVkFormat(colorFormat))
	case gpu.PassShadow:
		createInfo = shadowRenderPass(toVkFormat(depthFormat))
	default:
		return 0, fmt.Errorf("creating render pass: unknown pass kind %d", kind)
	}

	var pass vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(b.device.LogicalDevice, &createInfo, nil, &pass)); err != nil {
		return 0, fmt.Errorf("%s render pass: %w", kind, err)
	}
	core.LogDebug("%s render pass created", kind)
	return b.renderPasses.add(pass), nil
}

func (b *Backend) DestroyRenderPass(h gpu.RenderPass) {
	if pass, ok := b.renderPasses.remove(h); ok {
		vk.DestroyRenderPass(b.device.LogicalDevice, pass, nil)
	}
}

func colorAttachment(format vk.Format, final vk.ImageLayout) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    final,
	}
}

func depthAttachment(format vk.Format, store vk.AttachmentStoreOp, final vk.ImageLayout) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        store,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    final,
	}
}

// sampledDependencies makes the pass wait for earlier fragment reads of its
// attachments and makes its writes visible to later fragment shaders.
func sampledDependencies(stage vk.PipelineStageFlagBits, access vk.AccessFlagBits) []vk.SubpassDependency {
	return []vk.SubpassDependency{
		{
			SrcSubpass:      vk.SubpassExternal,
			DstSubpass:      0,
			SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			DstStageMask:    vk.PipelineStageFlags(stage),
			SrcAccessMask:   vk.AccessFlags(vk.AccessShaderReadBit),
			DstAccessMask:   vk.AccessFlags(access),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
		{
			SrcSubpass:      0,
			DstSubpass:      vk.SubpassExternal,
			SrcStageMask:    vk.PipelineStageFlags(stage),
			DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			SrcAccessMask:   vk.AccessFlags(access),
			DstAccessMask:   vk.AccessFlags(vk.AccessShaderReadBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
	}
}

func gbufferRenderPass(depthFormat vk.Format) vk.RenderPassCreateInfo {
	attachments := make([]vk.AttachmentDescription, 0, len(gbufferColorFormats)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(gbufferColorFormats))
	for i, f := range gbufferColorFormats {
		attachments = append(attachments, colorAttachment(f, vk.ImageLayoutShaderReadOnlyOptimal))
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	attachments = append(attachments, depthAttachment(depthFormat, vk.AttachmentStoreOpDontCare, vk.ImageLayoutDepthStencilAttachmentOptimal))
	depthRef := vk.AttachmentReference{
		Attachment: uint32(len(gbufferColorFormats)),
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: &depthRef,
	}
	dependencies := sampledDependencies(vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentWriteBit)

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

func lightingRenderPass(colorFormat vk.Format) vk.RenderPassCreateInfo {
	attachments := []vk.AttachmentDescription{
		colorAttachment(colorFormat, vk.ImageLayoutPresentSrc),
	}
	colorRefs := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorRefs,
	}
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

func shadowRenderPass(depthFormat vk.Format) vk.RenderPassCreateInfo {
	attachments := []vk.AttachmentDescription{
		depthAttachment(depthFormat, vk.AttachmentStoreOpStore, vk.ImageLayoutDepthStencilReadOnlyOptimal),
	}
	depthRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    0,
		PDepthStencilAttachment: &depthRef,
	}
	dependencies := sampledDependencies(vk.PipelineStageEarlyFragmentTestsBit|vk.PipelineStageLateFragmentTestsBit, vk.AccessDepthStencilAttachmentWriteBit)

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}
