package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	format vk.Format
	// Swapchain images are not owned and never destroyed here.
	owned bool
}

func (img *image) destroy(dev vk.Device) {
	if !img.owned {
		return
	}
	vk.DestroyImage(dev, img.handle, nil)
	vk.FreeMemory(dev, img.memory, nil)
	img.handle = nil
	img.memory = nil
}

type imageView struct {
	handle vk.ImageView
	depth  bool
}

// layout is the layout the view is sampled in after its render pass.
func (v *imageView) layout() vk.ImageLayout {
	if v.depth {
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

func (b *Backend) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	format := toVkFormat(info.Format)
	if format == vk.FormatUndefined {
		return 0, fmt.Errorf("creating image: unsupported format %d", info.Format)
	}
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         toVkImageUsage(info.Usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	dev := b.device.LogicalDevice
	var handle vk.Image
	if err := check("vkCreateImage", vk.CreateImage(dev, &imageCreateInfo, nil, &handle)); err != nil {
		return 0, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, handle, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := b.device.allocate(memoryRequirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(dev, handle, nil)
		return 0, fmt.Errorf("allocating image memory: %w", err)
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(dev, handle, memory, 0)); err != nil {
		vk.DestroyImage(dev, handle, nil)
		vk.FreeMemory(dev, memory, nil)
		return 0, err
	}

	return b.images.add(&image{handle: handle, memory: memory, format: format, owned: true}), nil
}

func (b *Backend) DestroyImage(h gpu.Image) {
	if img, ok := b.images.remove(h); ok {
		img.destroy(b.device.LogicalDevice)
	}
}

func (b *Backend) CreateImageView(h gpu.Image, format gpu.Format, aspect gpu.Aspect) (gpu.ImageView, error) {
	img, ok := b.images.get(h)
	if !ok {
		return 0, fmt.Errorf("creating view of unknown image %d", h)
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: vk.ImageViewType2d,
		Format:   toVkFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     toVkAspect(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(b.device.LogicalDevice, &viewCreateInfo, nil, &view)); err != nil {
		return 0, err
	}
	return b.views.add(&imageView{handle: view, depth: aspect == gpu.AspectDepth}), nil
}

func (b *Backend) DestroyImageView(h gpu.ImageView) {
	if view, ok := b.views.remove(h); ok {
		vk.DestroyImageView(b.device.LogicalDevice, view.handle, nil)
	}
}

// CreateSampler returns a linear, clamp-to-edge sampler. Anisotropy is used
// when the device offers it.
func (b *Backend) CreateSampler() (gpu.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if b.device.Features.SamplerAnisotropy == vk.True {
		b.device.Properties.Limits.Deref()
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = b.device.Properties.Limits.MaxSamplerAnisotropy
	}

	var sampler vk.Sampler
	if err := check("vkCreateSampler", vk.CreateSampler(b.device.LogicalDevice, &samplerInfo, nil, &sampler)); err != nil {
		return 0, err
	}
	return b.samplers.add(sampler), nil
}

func (b *Backend) DestroySampler(h gpu.Sampler) {
	if sampler, ok := b.samplers.remove(h); ok {
		vk.DestroySampler(b.device.LogicalDevice, sampler, nil)
	}
}

// UploadImage fills a sampled image with RGBA8 pixels and leaves it in
// shader-read-only layout.
func (b *Backend) UploadImage(dst gpu.Image, extent gpu.Extent2D, data []byte) error {
	img, ok := b.images.get(dst)
	if !ok {
		return fmt.Errorf("uploading to unknown image %d", dst)
	}

	staging, err := b.newBuffer(uint64(len(data)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostVisibleMemory)
	if err != nil {
		return fmt.Errorf("creating staging buffer: %w", err)
	}
	defer staging.destroy(b.device.LogicalDevice)
	if err := staging.write(b.device.LogicalDevice, 0, data); err != nil {
		return err
	}

	return b.singleUse(func(cb vk.CommandBuffer) {
		transitionImageLayout(cb, img.handle, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
		region := vk.BufferImageCopy{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{
				Width:  extent.Width,
				Height: extent.Height,
				Depth:  1,
			},
		}
		vk.CmdCopyBufferToImage(cb, staging.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
		transitionImageLayout(cb, img.handle, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	})
}

// transitionImageLayout records a barrier for the two colour image
// transitions an upload needs.
func transitionImageLayout(cb vk.CommandBuffer, img vk.Image, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	if from == vk.ImageLayoutUndefined {
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	} else {
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}

	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
