package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

func (b *Backend) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(b.device.LogicalDevice, &fenceCreateInfo, nil, &fence)); err != nil {
		return 0, err
	}
	return b.fences.add(fence), nil
}

func (b *Backend) DestroyFence(f gpu.Fence) {
	if fence, ok := b.fences.remove(f); ok {
		vk.DestroyFence(b.device.LogicalDevice, fence, nil)
	}
}

func (b *Backend) WaitForFence(f gpu.Fence, timeout time.Duration) error {
	fence, ok := b.fences.get(f)
	if !ok {
		return fmt.Errorf("waiting for unknown fence %d", f)
	}
	result := vk.WaitForFences(b.device.LogicalDevice, 1, []vk.Fence{fence}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out after %s", timeout)
	}
	return check("vkWaitForFences", result)
}

func (b *Backend) ResetFence(f gpu.Fence) error {
	fence, ok := b.fences.get(f)
	if !ok {
		return fmt.Errorf("resetting unknown fence %d", f)
	}
	return check("vkResetFences", vk.ResetFences(b.device.LogicalDevice, 1, []vk.Fence{fence}))
}

func (b *Backend) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(b.device.LogicalDevice, &semaphoreCreateInfo, nil, &sem)); err != nil {
		return 0, err
	}
	return b.semaphores.add(sem), nil
}

func (b *Backend) DestroySemaphore(s gpu.Semaphore) {
	if sem, ok := b.semaphores.remove(s); ok {
		vk.DestroySemaphore(b.device.LogicalDevice, sem, nil)
	}
}

func (b *Backend) WaitIdle() error {
	return b.locks.SafeCall(QueueManagement, func() error {
		return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(b.device.LogicalDevice))
	})
}

// Submit queues the command buffers on the graphics queue. Every wait
// semaphore blocks at colour attachment output.
func (b *Backend) Submit(info gpu.SubmitInfo) error {
	waits, err := b.semaphoreList(info.WaitSemaphores)
	if err != nil {
		return err
	}
	signals, err := b.semaphoreList(info.SignalSemaphores)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(waits))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}

	cbs := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, h := range info.CommandBuffers {
		cb, ok := b.commands.get(h)
		if !ok {
			return fmt.Errorf("submitting unknown command buffer %d", h)
		}
		cbs[i] = cb
	}

	fence := vk.NullFence
	if info.Fence != gpu.NullFence {
		f, ok := b.fences.get(info.Fence)
		if !ok {
			return fmt.Errorf("submitting with unknown fence %d", info.Fence)
		}
		fence = f
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	return b.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(b.device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
}

func (b *Backend) semaphoreList(handles []gpu.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, 0, len(handles))
	for _, h := range handles {
		s, ok := b.semaphores.get(h)
		if !ok {
			return nil, fmt.Errorf("unknown semaphore %d", h)
		}
		out = append(out, s)
	}
	return out, nil
}
