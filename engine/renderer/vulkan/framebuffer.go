package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

func (b *Backend) CreateFramebuffer(pass gpu.RenderPass, attachments []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	rp, ok := b.renderPasses.get(pass)
	if !ok {
		return 0, fmt.Errorf("creating framebuffer for unknown render pass %d", pass)
	}
	views := make([]vk.ImageView, len(attachments))
	for i, h := range attachments {
		v, ok := b.views.get(h)
		if !ok {
			return 0, fmt.Errorf("creating framebuffer with unknown view %d", h)
		}
		views[i] = v.handle
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	var fb vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(b.device.LogicalDevice, &framebufferCreateInfo, nil, &fb)); err != nil {
		return 0, err
	}
	return b.framebuffers.add(fb), nil
}

func (b *Backend) DestroyFramebuffer(h gpu.Framebuffer) {
	if fb, ok := b.framebuffers.remove(h); ok {
		vk.DestroyFramebuffer(b.device.LogicalDevice, fb, nil)
	}
}
