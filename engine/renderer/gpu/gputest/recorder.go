package gputest

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// recorder renders every command as a line of text so streams can be
// compared between recordings.
type recorder struct {
	dev  *Device
	cmds []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.cmds = append(r.cmds, fmt.Sprintf(format, args...))
}

func (r *recorder) BeginRenderPass(pass gpu.RenderPass, fb gpu.Framebuffer, extent gpu.Extent2D, clears []gpu.ClearValue) {
	r.dev.mu.Lock()
	r.dev.use("RenderPass", uint64(pass))
	r.dev.use("Framebuffer", uint64(fb))
	r.dev.mu.Unlock()
	r.add("BeginRenderPass pass=%d fb=%d %dx%d clears=%d", pass, fb, extent.Width, extent.Height, len(clears))
}

func (r *recorder) EndRenderPass() {
	r.add("EndRenderPass")
}

func (r *recorder) SetViewport(extent gpu.Extent2D) {
	r.add("SetViewport %dx%d", extent.Width, extent.Height)
}

func (r *recorder) BindPipeline(p gpu.Pipeline) {
	r.add("BindPipeline %d", p)
}

func (r *recorder) BindDescriptorSet(layout gpu.PipelineLayout, index uint32, set gpu.DescriptorSet) {
	r.dev.mu.Lock()
	if _, ok := r.dev.setPool[set]; !ok {
		r.dev.violate("bind of stale descriptor set %d", set)
	}
	r.dev.mu.Unlock()
	r.add("BindDescriptorSet layout=%d index=%d set=%d", layout, index, set)
}

func (r *recorder) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, values []float32) {
	r.add("PushConstants layout=%d stages=%d offset=%d %v", layout, stages, offset, values)
}

func (r *recorder) BindVertexBuffer(b gpu.Buffer) {
	r.add("BindVertexBuffer %d", b)
}

func (r *recorder) BindIndexBuffer(b gpu.Buffer) {
	r.add("BindIndexBuffer %d", b)
}

func (r *recorder) Draw(vertexCount, instanceCount uint32) {
	r.add("Draw %d %d", vertexCount, instanceCount)
}

func (r *recorder) DrawIndexed(indexCount, instanceCount uint32) {
	r.add("DrawIndexed %d %d", indexCount, instanceCount)
}
