package shadow

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/descriptors"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

type Settings struct {
	MapSize     uint32
	DepthFormat gpu.Format
	Budget      gpu.DescriptorBudget
}

type setLookup func(light, model, unit int, image uint32) (gpu.DescriptorSet, error)

// Orchestrator owns one Pass per light and the light × model × unit × image
// tensor of shadow descriptor sets. Reset rebuilds all of it; nothing is
// patched in place.
type Orchestrator struct {
	device   Device
	settings Settings
	pipes    gpu.PassSource

	sampler gpu.Owned[gpu.Sampler]
	sets    *descriptors.Manager[descriptors.ShadowIndex]
	passes  []*Pass

	imageCount uint32
}

func NewOrchestrator(device Device, settings Settings, pipes gpu.PassSource) (*Orchestrator, error) {
	sets, err := descriptors.NewManager[descriptors.ShadowIndex]("shadow", device, settings.Budget)
	if err != nil {
		return nil, err
	}
	sampler, err := device.CreateSampler()
	if err != nil {
		sets.Destroy()
		return nil, fmt.Errorf("creating shadow map sampler: %w", err)
	}
	return &Orchestrator{
		device:   device,
		settings: settings,
		pipes:    pipes,
		sampler:  gpu.Own(sampler, device.DestroySampler),
		sets:     sets,
	}, nil
}

// Reset sizes the passes to the scene's lights, rebuilds the shadow
// descriptor tensor for imageCount swapchain images and re-records every
// command buffer.
func (o *Orchestrator) Reset(imageCount uint32, s *scene.Scene) error {
	o.Release()

	renderPass := o.pipes.RenderPass(gpu.PassShadow)
	pipe := o.pipes.Pipeline(gpu.PassShadow)
	for l := range s.Lights {
		p, err := newPass(o.device, renderPass, o.settings.MapSize, o.settings.DepthFormat, imageCount)
		if err != nil {
			o.Release()
			return fmt.Errorf("shadow pass for light %d: %w", l, err)
		}
		o.passes = append(o.passes, p)
	}
	o.imageCount = imageCount

	top := s.Topology()
	shape := descriptors.ShadowIndex{
		Light: descriptors.LightAxis(top.Lights),
		Model: descriptors.ModelAxis(top.Models()),
		Unit:  descriptors.UnitAxis(top.MaxUnits()),
		Image: descriptors.ImageAxis(imageCount),
	}
	err := o.sets.Reset(pipe.SetLayout, shape, func(idx descriptors.ShadowIndex) ([]gpu.DescriptorWrite, error) {
		buf := o.passes[idx.Light].Uniform(uint32(idx.Image))
		return []gpu.DescriptorWrite{gpu.UniformWrite(0, buf, LightUniformSize)}, nil
	})
	if err != nil {
		o.Release()
		return err
	}

	if err := o.Record(s); err != nil {
		o.Release()
		return err
	}
	core.LogDebug("shadow passes rebuilt: %d lights, %d descriptor sets", len(o.passes), o.sets.Len())
	return nil
}

// Record re-records the command buffers of every light for every image.
func (o *Orchestrator) Record(s *scene.Scene) error {
	if len(s.Lights) != len(o.passes) {
		return fmt.Errorf("%w: scene has %d lights, %d shadow passes", core.ErrIndexOutOfRange, len(s.Lights), len(o.passes))
	}
	renderPass := o.pipes.RenderPass(gpu.PassShadow)
	pipe := o.pipes.Pipeline(gpu.PassShadow)
	for l, p := range o.passes {
		lvp := s.Lights[l].ViewProj()
		for image := uint32(0); image < o.imageCount; image++ {
			if err := p.record(image, l, lvp, s, renderPass, pipe, o.lookup); err != nil {
				return fmt.Errorf("recording shadow pass of light %d image %d: %w", l, image, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) lookup(light, model, unit int, image uint32) (gpu.DescriptorSet, error) {
	return o.sets.At(descriptors.ShadowIndex{
		Light: descriptors.LightAxis(light),
		Model: descriptors.ModelAxis(model),
		Unit:  descriptors.UnitAxis(unit),
		Image: descriptors.ImageAxis(image),
	})
}

// UpdateUniforms writes every light's matrices for one swapchain image.
func (o *Orchestrator) UpdateUniforms(image uint32, lights []scene.Light) error {
	for l, p := range o.passes {
		if err := p.writeUniform(image, lights[l]); err != nil {
			return fmt.Errorf("writing light uniform %d image %d: %w", l, image, err)
		}
	}
	return nil
}

// Commands returns the shadow command buffers for one swapchain image in
// light order.
func (o *Orchestrator) Commands(image uint32) []gpu.CommandBuffer {
	out := make([]gpu.CommandBuffer, len(o.passes))
	for l, p := range o.passes {
		out[l] = p.Command(image)
	}
	return out
}

func (o *Orchestrator) Passes() []*Pass {
	return o.passes
}

func (o *Orchestrator) Sampler() gpu.Sampler {
	return o.sampler.Get()
}

func (o *Orchestrator) Sets() *descriptors.Manager[descriptors.ShadowIndex] {
	return o.sets
}

// FreeCommands frees the command buffers of every pass. Record must not be
// called again before the next Reset.
func (o *Orchestrator) FreeCommands() {
	for _, p := range o.passes {
		p.freeCommands()
	}
}

// Release frees the command buffers, returns the descriptor sets to the pool
// and then destroys the passes' framebuffers and attachments. The pool and
// the sampler survive until Destroy.
func (o *Orchestrator) Release() {
	o.FreeCommands()
	if err := o.sets.Release(); err != nil {
		core.LogError("releasing shadow descriptor sets: %s", err)
	}
	for i := len(o.passes) - 1; i >= 0; i-- {
		o.passes[i].Destroy()
	}
	o.passes = nil
	o.imageCount = 0
}

func (o *Orchestrator) Destroy() {
	for i := len(o.passes) - 1; i >= 0; i-- {
		o.passes[i].Destroy()
	}
	o.passes = nil
	o.sets.Destroy()
	o.sampler.Destroy()
}
