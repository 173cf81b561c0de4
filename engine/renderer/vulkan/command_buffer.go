package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

func (b *Backend) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	if count == 0 {
		return nil, nil
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.device.GraphicsCommandPool,
		CommandBufferCount: uint32(count),
		Level:              vk.CommandBufferLevelPrimary,
	}

	cbs := make([]vk.CommandBuffer, count)
	if err := b.locks.SafeCall(CommandPoolManagement, func() error {
		return check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(b.device.LogicalDevice, &allocateInfo, cbs))
	}); err != nil {
		return nil, err
	}

	out := make([]gpu.CommandBuffer, count)
	for i, cb := range cbs {
		out[i] = b.commands.add(cb)
	}
	return out, nil
}

func (b *Backend) FreeCommandBuffers(handles []gpu.CommandBuffer) {
	cbs := make([]vk.CommandBuffer, 0, len(handles))
	for _, h := range handles {
		if cb, ok := b.commands.remove(h); ok {
			cbs = append(cbs, cb)
		}
	}
	if len(cbs) == 0 {
		return
	}
	_ = b.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(b.device.LogicalDevice, b.device.GraphicsCommandPool, uint32(len(cbs)), cbs)
		return nil
	})
}

func (b *Backend) Record(h gpu.CommandBuffer, fn func(gpu.Commands) error) error {
	cb, ok := b.commands.get(h)
	if !ok {
		return fmt.Errorf("recording unknown command buffer %d", h)
	}
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(cb, 0)); err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb, &beginInfo)); err != nil {
		return err
	}

	rec := &recorder{backend: b, cb: cb}
	if err := fn(rec); err != nil {
		vk.EndCommandBuffer(cb)
		return err
	}
	if rec.err != nil {
		vk.EndCommandBuffer(cb)
		return rec.err
	}
	return check("vkEndCommandBuffer", vk.EndCommandBuffer(cb))
}

// singleUse records fn into a throwaway command buffer, submits it and
// waits for the graphics queue to go idle.
func (b *Backend) singleUse(fn func(vk.CommandBuffer)) error {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.device.GraphicsCommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if err := b.locks.SafeCall(CommandPoolManagement, func() error {
		return check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(b.device.LogicalDevice, &allocateInfo, cbs))
	}); err != nil {
		return err
	}
	defer func() {
		_ = b.locks.SafeCall(CommandPoolManagement, func() error {
			vk.FreeCommandBuffers(b.device.LogicalDevice, b.device.GraphicsCommandPool, 1, cbs)
			return nil
		})
	}()

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cbs[0], &beginInfo)); err != nil {
		return err
	}
	fn(cbs[0])
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(cbs[0])); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cbs,
	}
	return b.locks.SafeCall(QueueManagement, func() error {
		if err := check("vkQueueSubmit", vk.QueueSubmit(b.device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
			return err
		}
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(b.device.GraphicsQueue))
	})
}

// recorder translates gpu.Commands calls into vkCmd* calls. The first
// unknown handle is kept and reported when recording ends.
type recorder struct {
	backend *Backend
	cb      vk.CommandBuffer
	err     error
}

func (r *recorder) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *recorder) BeginRenderPass(pass gpu.RenderPass, fb gpu.Framebuffer, extent gpu.Extent2D, clears []gpu.ClearValue) {
	rp, ok := r.backend.renderPasses.get(pass)
	if !ok {
		r.fail("beginning unknown render pass %d", pass)
		return
	}
	framebuffer, ok := r.backend.framebuffers.get(fb)
	if !ok {
		r.fail("beginning render pass with unknown framebuffer %d", fb)
		return
	}

	clearValues := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		if c.IsDepth {
			clearValues[i] = vk.NewClearDepthStencil(c.Depth, c.Stencil)
		} else {
			clearValues[i] = vk.NewClearValue(c.Color[:])
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(r.cb, &beginInfo, vk.SubpassContentsInline)
}

func (r *recorder) EndRenderPass() {
	vk.CmdEndRenderPass(r.cb)
}

func (r *recorder) SetViewport(extent gpu.Extent2D) {
	viewport := []vk.Viewport{{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1.0,
	}}
	vk.CmdSetViewport(r.cb, 0, 1, viewport)

	scissor := []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}}
	vk.CmdSetScissor(r.cb, 0, 1, scissor)
}

func (r *recorder) BindPipeline(p gpu.Pipeline) {
	pipeline, ok := r.backend.pipelines.get(p)
	if !ok {
		r.fail("binding unknown pipeline %d", p)
		return
	}
	vk.CmdBindPipeline(r.cb, vk.PipelineBindPointGraphics, pipeline)
}

func (r *recorder) BindDescriptorSet(layout gpu.PipelineLayout, index uint32, set gpu.DescriptorSet) {
	l, ok := r.backend.layouts.get(layout)
	if !ok {
		r.fail("binding with unknown pipeline layout %d", layout)
		return
	}
	ds, ok := r.backend.sets.get(set)
	if !ok {
		r.fail("binding unknown descriptor set %d", set)
		return
	}
	vk.CmdBindDescriptorSets(r.cb, vk.PipelineBindPointGraphics, l, index, 1, []vk.DescriptorSet{ds.handle}, 0, nil)
}

func (r *recorder) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, values []float32) {
	l, ok := r.backend.layouts.get(layout)
	if !ok {
		r.fail("pushing constants with unknown pipeline layout %d", layout)
		return
	}
	if len(values) == 0 {
		return
	}
	vk.CmdPushConstants(r.cb, l, toVkShaderStages(stages), offset, uint32(len(values)*4), unsafe.Pointer(&values[0]))
}

func (r *recorder) BindVertexBuffer(b gpu.Buffer) {
	buf, ok := r.backend.buffers.get(b)
	if !ok {
		r.fail("binding unknown vertex buffer %d", b)
		return
	}
	vk.CmdBindVertexBuffers(r.cb, 0, 1, []vk.Buffer{buf.handle}, []vk.DeviceSize{0})
}

func (r *recorder) BindIndexBuffer(b gpu.Buffer) {
	buf, ok := r.backend.buffers.get(b)
	if !ok {
		r.fail("binding unknown index buffer %d", b)
		return
	}
	vk.CmdBindIndexBuffer(r.cb, buf.handle, 0, vk.IndexTypeUint32)
}

func (r *recorder) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(r.cb, vertexCount, instanceCount, 0, 0)
}

func (r *recorder) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(r.cb, indexCount, instanceCount, 0, 0, 0)
}
