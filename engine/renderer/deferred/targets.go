package deferred

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/swapchain"
)

type Device interface {
	gpu.ResourceAllocator
	gpu.DescriptorAllocator
	gpu.CommandDevice
}

// G-buffer attachments, in framebuffer order before depth.
const (
	AttachmentAlbedo = iota
	AttachmentNormal
	AttachmentPosition
	attachmentCount
)

var attachmentFormats = [attachmentCount]gpu.Format{
	AttachmentAlbedo:   gpu.FormatR8G8B8A8Unorm,
	AttachmentNormal:   gpu.FormatR16G16B16A16Sfloat,
	AttachmentPosition: gpu.FormatR16G16B16A16Sfloat,
}

// Targets holds the G-buffer at swapchain extent and one lighting
// framebuffer per swapchain image.
type Targets struct {
	device  Device
	sampler gpu.Owned[gpu.Sampler]

	images    [attachmentCount]gpu.Owned[gpu.Image]
	views     [attachmentCount]gpu.Owned[gpu.ImageView]
	depth     gpu.Owned[gpu.Image]
	depthView gpu.Owned[gpu.ImageView]
	gbuffer   gpu.Owned[gpu.Framebuffer]
	lighting  []gpu.Owned[gpu.Framebuffer]
	extent    gpu.Extent2D
}

func NewTargets(device Device) (*Targets, error) {
	sampler, err := device.CreateSampler()
	if err != nil {
		return nil, fmt.Errorf("creating g-buffer sampler: %w", err)
	}
	return &Targets{device: device, sampler: gpu.Own(sampler, device.DestroySampler)}, nil
}

func (t *Targets) Reset(target swapchain.Target, pipes gpu.PassSource) error {
	t.Release()
	t.extent = target.Extent

	views := make([]gpu.ImageView, 0, attachmentCount+1)
	for i, format := range attachmentFormats {
		img, err := t.device.CreateImage(gpu.ImageInfo{
			Extent: target.Extent,
			Format: format,
			Usage:  gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled,
		})
		if err != nil {
			t.Release()
			return fmt.Errorf("creating g-buffer attachment %d: %w", i, err)
		}
		t.images[i] = gpu.Own(img, t.device.DestroyImage)
		view, err := t.device.CreateImageView(img, format, gpu.AspectColor)
		if err != nil {
			t.Release()
			return fmt.Errorf("creating g-buffer view %d: %w", i, err)
		}
		t.views[i] = gpu.Own(view, t.device.DestroyImageView)
		views = append(views, view)
	}

	depth, err := t.device.CreateImage(gpu.ImageInfo{
		Extent: target.Extent,
		Format: target.DepthFormat,
		Usage:  gpu.ImageUsageDepthAttachment,
	})
	if err != nil {
		t.Release()
		return fmt.Errorf("creating g-buffer depth: %w", err)
	}
	t.depth = gpu.Own(depth, t.device.DestroyImage)
	depthView, err := t.device.CreateImageView(depth, target.DepthFormat, gpu.AspectDepth)
	if err != nil {
		t.Release()
		return fmt.Errorf("creating g-buffer depth view: %w", err)
	}
	t.depthView = gpu.Own(depthView, t.device.DestroyImageView)
	views = append(views, depthView)

	fb, err := t.device.CreateFramebuffer(pipes.RenderPass(gpu.PassGBuffer), views, target.Extent)
	if err != nil {
		t.Release()
		return fmt.Errorf("creating g-buffer framebuffer: %w", err)
	}
	t.gbuffer = gpu.Own(fb, t.device.DestroyFramebuffer)

	t.lighting = make([]gpu.Owned[gpu.Framebuffer], len(target.Views))
	for i, view := range target.Views {
		fb, err := t.device.CreateFramebuffer(pipes.RenderPass(gpu.PassLighting), []gpu.ImageView{view}, target.Extent)
		if err != nil {
			t.Release()
			return fmt.Errorf("creating lighting framebuffer %d: %w", i, err)
		}
		t.lighting[i] = gpu.Own(fb, t.device.DestroyFramebuffer)
	}
	return nil
}

func (t *Targets) Extent() gpu.Extent2D {
	return t.extent
}

func (t *Targets) GBuffer() gpu.Framebuffer {
	return t.gbuffer.Get()
}

func (t *Targets) Lighting(image uint32) gpu.Framebuffer {
	return t.lighting[image].Get()
}

// Attachment returns the sampled view of a G-buffer attachment.
func (t *Targets) Attachment(i int) gpu.ImageView {
	return t.views[i].Get()
}

func (t *Targets) Sampler() gpu.Sampler {
	return t.sampler.Get()
}

// Release destroys framebuffers before the attachments they reference.
func (t *Targets) Release() {
	for i := len(t.lighting) - 1; i >= 0; i-- {
		t.lighting[i].Destroy()
	}
	t.lighting = nil
	t.gbuffer.Destroy()
	t.depthView.Destroy()
	t.depth.Destroy()
	for i := attachmentCount - 1; i >= 0; i-- {
		t.views[i].Destroy()
		t.images[i].Destroy()
	}
	t.extent = gpu.Extent2D{}
}

func (t *Targets) Destroy() {
	t.Release()
	t.sampler.Destroy()
}
