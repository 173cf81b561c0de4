package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

type swapchain struct {
	handle vk.Swapchain
	images []gpu.Image
}

func (b *Backend) SurfaceCapabilities(surface gpu.Surface) (gpu.SurfaceCapabilities, error) {
	vs, ok := b.surfaces.get(surface)
	if !ok {
		return gpu.SurfaceCapabilities{}, fmt.Errorf("unknown surface %d", surface)
	}
	support, err := DeviceQuerySwapchainSupport(b.device.PhysicalDevice, vs)
	if err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	caps := support.Capabilities

	// A current extent of 0xFFFFFFFF leaves the size to the swapchain, so
	// the window framebuffer decides.
	extent := gpu.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	if extent.Width == math.MaxUint32 {
		w, h := b.options.Window.GetFramebufferSize()
		extent = gpu.Extent2D{
			Width:  clamp(uint32(max(w, 0)), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clamp(uint32(max(h, 0)), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
		if w <= 0 || h <= 0 {
			extent = gpu.Extent2D{}
		}
	}

	format, err := chooseSurfaceFormat(support.Formats)
	if err != nil {
		return gpu.SurfaceCapabilities{}, err
	}

	return gpu.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: extent,
		SurfaceFormat: fromVkFormat(format.Format),
		DepthFormat:   fromVkFormat(b.device.DepthFormat),
	}, nil
}

// chooseSurfaceFormat prefers B8G8R8A8_UNORM in sRGB non-linear space and
// otherwise takes the first format the renderer knows.
func chooseSurfaceFormat(available []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	for _, f := range available {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	for _, f := range available {
		if fromVkFormat(f.Format) != gpu.FormatUndefined {
			return f, nil
		}
	}
	return vk.SurfaceFormat{}, fmt.Errorf("surface offers no supported format")
}

func (b *Backend) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, []gpu.Image, error) {
	vs, ok := b.surfaces.get(info.Surface)
	if !ok {
		return 0, nil, fmt.Errorf("unknown surface %d", info.Surface)
	}
	support, err := DeviceQuerySwapchainSupport(b.device.PhysicalDevice, vs)
	if err != nil {
		return 0, nil, err
	}
	caps := support.Capabilities

	colorSpace := vk.ColorSpaceSrgbNonlinear
	for _, f := range support.Formats {
		if f.Format == toVkFormat(info.Format) {
			colorSpace = f.ColorSpace
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	extent := vk.Extent2D{
		Width:  clamp(info.Extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(info.Extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}

	var old vk.Swapchain
	if info.Old != gpu.NullSwapchain {
		if sc, ok := b.swapchains.get(info.Old); ok {
			old = sc.handle
		}
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vs,
		MinImageCount:    info.ImageCount,
		ImageFormat:      toVkFormat(info.Format),
		ImageColorSpace:  colorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	if b.device.GraphicsQueueIndex != b.device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(b.device.GraphicsQueueIndex),
			uint32(b.device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if err := check("vkCreateSwapchain", vk.CreateSwapchain(b.device.LogicalDevice, &swapchainCreateInfo, nil, &handle)); err != nil {
		return 0, nil, err
	}

	var imageCount uint32
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(b.device.LogicalDevice, handle, &imageCount, nil)); err != nil {
		vk.DestroySwapchain(b.device.LogicalDevice, handle, nil)
		return 0, nil, err
	}
	vkImages := make([]vk.Image, imageCount)
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(b.device.LogicalDevice, handle, &imageCount, vkImages)); err != nil {
		vk.DestroySwapchain(b.device.LogicalDevice, handle, nil)
		return 0, nil, err
	}

	// Presentable images belong to the swapchain and are released with it.
	sc := &swapchain{handle: handle, images: make([]gpu.Image, imageCount)}
	for i, img := range vkImages {
		sc.images[i] = b.images.add(&image{handle: img, format: toVkFormat(info.Format)})
	}

	core.LogInfo("Swapchain created: %d images at %dx%d", imageCount, extent.Width, extent.Height)
	return b.swapchains.add(sc), append([]gpu.Image(nil), sc.images...), nil
}

func (b *Backend) DestroySwapchain(h gpu.Swapchain) {
	sc, ok := b.swapchains.remove(h)
	if !ok {
		return
	}
	for _, img := range sc.images {
		b.images.remove(img)
	}
	vk.DestroySwapchain(b.device.LogicalDevice, sc.handle, nil)
}

func (b *Backend) AcquireNextImage(h gpu.Swapchain, timeout time.Duration, signal gpu.Semaphore) (uint32, gpu.Status, error) {
	sc, ok := b.swapchains.get(h)
	if !ok {
		return 0, gpu.StatusOK, fmt.Errorf("acquiring from unknown swapchain %d", h)
	}
	sem, ok := b.semaphores.get(signal)
	if !ok {
		return 0, gpu.StatusOK, fmt.Errorf("acquiring with unknown semaphore %d", signal)
	}

	var index uint32
	result := vk.AcquireNextImage(b.device.LogicalDevice, sc.handle, uint64(timeout.Nanoseconds()), sem, vk.NullFence, &index)
	status, err := presentStatus("vkAcquireNextImage", result)
	return index, status, err
}

func (b *Backend) Present(h gpu.Swapchain, index uint32, wait gpu.Semaphore) (gpu.Status, error) {
	sc, ok := b.swapchains.get(h)
	if !ok {
		return gpu.StatusOK, fmt.Errorf("presenting to unknown swapchain %d", h)
	}
	sem, ok := b.semaphores.get(wait)
	if !ok {
		return gpu.StatusOK, fmt.Errorf("presenting with unknown semaphore %d", wait)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{index},
	}

	var result vk.Result
	_ = b.locks.SafeCall(QueueManagement, func() error {
		result = vk.QueuePresent(b.device.PresentQueue, &presentInfo)
		return nil
	})
	return presentStatus("vkQueuePresent", result)
}
