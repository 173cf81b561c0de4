package shadow

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// LightUniform is the std140 block shared by the shadow and lighting
// shaders.
type LightUniform struct {
	ViewProj mgl32.Mat4
	// xyz direction, w unused.
	Direction mgl32.Vec4
	// rgb colour premultiplied by intensity.
	Color mgl32.Vec4
	// x depth bias, y shadow map size.
	Params mgl32.Vec4
}

const LightUniformSize = uint64(unsafe.Sizeof(LightUniform{}))

const depthBias = 0.005

type Device interface {
	gpu.ResourceAllocator
	gpu.CommandDevice
	gpu.DescriptorAllocator
}

// Pass is the shadow map of one light: a depth attachment and its
// framebuffer, one command buffer and one light uniform buffer per swapchain
// image.
type Pass struct {
	device Device
	size   uint32

	depth       gpu.Owned[gpu.Image]
	view        gpu.Owned[gpu.ImageView]
	framebuffer gpu.Owned[gpu.Framebuffer]
	uniforms    []gpu.Owned[gpu.Buffer]
	commands    []gpu.CommandBuffer
}

func newPass(device Device, renderPass gpu.RenderPass, size uint32, depthFormat gpu.Format, imageCount uint32) (*Pass, error) {
	p := &Pass{device: device, size: size}
	extent := gpu.Extent2D{Width: size, Height: size}

	img, err := device.CreateImage(gpu.ImageInfo{
		Extent: extent,
		Format: depthFormat,
		Usage:  gpu.ImageUsageDepthAttachment | gpu.ImageUsageSampled,
	})
	if err != nil {
		return nil, fmt.Errorf("creating shadow depth image: %w", err)
	}
	p.depth = gpu.Own(img, device.DestroyImage)

	view, err := device.CreateImageView(img, depthFormat, gpu.AspectDepth)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("creating shadow depth view: %w", err)
	}
	p.view = gpu.Own(view, device.DestroyImageView)

	fb, err := device.CreateFramebuffer(renderPass, []gpu.ImageView{view}, extent)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("creating shadow framebuffer: %w", err)
	}
	p.framebuffer = gpu.Own(fb, device.DestroyFramebuffer)

	p.uniforms = make([]gpu.Owned[gpu.Buffer], imageCount)
	for i := range p.uniforms {
		buf, err := device.CreateBuffer(LightUniformSize, gpu.BufferUsageUniform, true)
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("creating light uniform buffer %d: %w", i, err)
		}
		p.uniforms[i] = gpu.Own(buf, device.DestroyBuffer)
	}

	p.commands, err = device.AllocateCommandBuffers(int(imageCount))
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("allocating shadow command buffers: %w", err)
	}
	return p, nil
}

func (p *Pass) ShadowMap() gpu.ImageView {
	return p.view.Get()
}

func (p *Pass) Uniform(image uint32) gpu.Buffer {
	return p.uniforms[image].Get()
}

func (p *Pass) Command(image uint32) gpu.CommandBuffer {
	return p.commands[image]
}

// record writes the depth-only draw of every (unit, instance) pair of the
// scene into the command buffer of one swapchain image. Models, units and
// instances are visited in scene order so that recordings are reproducible.
func (p *Pass) record(image uint32, light int, lightViewProj mgl32.Mat4, s *scene.Scene, renderPass gpu.RenderPass, pipe gpu.PipelineSet, sets setLookup) error {
	extent := gpu.Extent2D{Width: p.size, Height: p.size}
	return p.device.Record(p.commands[image], func(cmd gpu.Commands) error {
		cmd.BeginRenderPass(renderPass, p.framebuffer.Get(), extent, []gpu.ClearValue{gpu.ClearDepth(1, 0)})
		cmd.SetViewport(extent)
		cmd.BindPipeline(pipe.Pipeline)
		for m, model := range s.Models {
			for u, unit := range model.Units {
				set, err := sets(light, m, u, image)
				if err != nil {
					return err
				}
				cmd.BindDescriptorSet(pipe.Layout, 0, set)
				cmd.BindVertexBuffer(unit.Mesh.Vertices)
				cmd.BindIndexBuffer(unit.Mesh.Indices)
				for _, inst := range model.Instances {
					mvp := lightViewProj.Mul4(inst.Model())
					cmd.PushConstants(pipe.Layout, gpu.ShaderStageVertex, 0, mvp[:])
					cmd.DrawIndexed(unit.Mesh.IndexCount, 1)
				}
			}
		}
		cmd.EndRenderPass()
		return nil
	})
}

func (p *Pass) writeUniform(image uint32, l scene.Light) error {
	c := l.Color.Mul(l.Intensity)
	u := []LightUniform{{
		ViewProj:  l.ViewProj(),
		Direction: l.Direction.Normalize().Vec4(0),
		Color:     c.Vec4(1),
		Params:    mgl32.Vec4{depthBias, float32(p.size), 0, 0},
	}}
	return p.device.WriteBuffer(p.uniforms[image].Get(), 0, gpu.Bytes(u))
}

// Destroy frees the command buffers first, then the framebuffer and its
// attachment, then the uniform buffers.
func (p *Pass) Destroy() {
	p.freeCommands()
	p.framebuffer.Destroy()
	p.view.Destroy()
	p.depth.Destroy()
	for i := range p.uniforms {
		p.uniforms[i].Destroy()
	}
	p.uniforms = nil
}

func (p *Pass) freeCommands() {
	if len(p.commands) > 0 {
		p.device.FreeCommandBuffers(p.commands)
		p.commands = nil
	}
}
