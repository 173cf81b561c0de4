package deferred

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/renderer/descriptors"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// Commands holds the main pass command buffer of every swapchain image: the
// G-buffer pass followed by one additive full-screen lighting draw per
// light.
type Commands struct {
	device  gpu.CommandDevice
	buffers []gpu.CommandBuffer
}

func NewCommands(device gpu.CommandDevice) *Commands {
	return &Commands{device: device}
}

func (c *Commands) Reset(imageCount uint32, s *scene.Scene, pipes gpu.PassSource, targets *Targets, bindings *Bindings) error {
	c.Release()
	buffers, err := c.device.AllocateCommandBuffers(int(imageCount))
	if err != nil {
		return fmt.Errorf("allocating main command buffers: %w", err)
	}
	c.buffers = buffers
	for image := range c.buffers {
		if err := c.record(uint32(image), s, pipes, targets, bindings); err != nil {
			c.Release()
			return fmt.Errorf("recording main pass of image %d: %w", image, err)
		}
	}
	return nil
}

func (c *Commands) record(image uint32, s *scene.Scene, pipes gpu.PassSource, targets *Targets, bindings *Bindings) error {
	extent := targets.Extent()
	gbuffer := pipes.Pipeline(gpu.PassGBuffer)
	lighting := pipes.Pipeline(gpu.PassLighting)
	return c.device.Record(c.buffers[image], func(cmd gpu.Commands) error {
		cmd.BeginRenderPass(pipes.RenderPass(gpu.PassGBuffer), targets.GBuffer(), extent, []gpu.ClearValue{
			gpu.ClearColor(0, 0, 0, 0),
			gpu.ClearColor(0, 0, 0, 0),
			gpu.ClearColor(0, 0, 0, 0),
			gpu.ClearDepth(1, 0),
		})
		cmd.SetViewport(extent)
		cmd.BindPipeline(gbuffer.Pipeline)
		for m, model := range s.Models {
			sets := bindings.Main(m)
			for u, unit := range model.Units {
				cmd.BindVertexBuffer(unit.Mesh.Vertices)
				cmd.BindIndexBuffer(unit.Mesh.Indices)
				for i := range model.Instances {
					set, err := sets.At(descriptors.MainIndex{
						Instance: descriptors.InstanceAxis(i),
						Unit:     descriptors.UnitAxis(u),
						Image:    descriptors.ImageAxis(image),
					})
					if err != nil {
						return err
					}
					cmd.BindDescriptorSet(gbuffer.Layout, 0, set)
					cmd.DrawIndexed(unit.Mesh.IndexCount, 1)
				}
			}
		}
		cmd.EndRenderPass()

		cmd.BeginRenderPass(pipes.RenderPass(gpu.PassLighting), targets.Lighting(image), extent, []gpu.ClearValue{
			gpu.ClearColor(0.02, 0.02, 0.03, 1),
		})
		cmd.SetViewport(extent)
		cmd.BindPipeline(lighting.Pipeline)
		for l := range s.Lights {
			set, err := bindings.Lighting().At(descriptors.LightingIndex{
				Light: descriptors.LightAxis(l),
				Image: descriptors.ImageAxis(image),
			})
			if err != nil {
				return err
			}
			cmd.BindDescriptorSet(lighting.Layout, 0, set)
			cmd.Draw(3, 1)
		}
		cmd.EndRenderPass()
		return nil
	})
}

func (c *Commands) Command(image uint32) gpu.CommandBuffer {
	return c.buffers[image]
}

func (c *Commands) Len() int {
	return len(c.buffers)
}

func (c *Commands) Release() {
	if len(c.buffers) > 0 {
		c.device.FreeCommandBuffers(c.buffers)
		c.buffers = nil
	}
}
