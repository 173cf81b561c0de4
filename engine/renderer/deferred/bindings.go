package deferred

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/descriptors"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/shadow"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// Bindings owns the descriptor tensors of the main pass: one instance ×
// unit × image tensor per model for the G-buffer pass, and one light ×
// image tensor for the lighting pass.
type Bindings struct {
	device gpu.DescriptorAllocator
	budget gpu.DescriptorBudget

	main     []*descriptors.Manager[descriptors.MainIndex]
	lighting *descriptors.Manager[descriptors.LightingIndex]
}

func NewBindings(device gpu.DescriptorAllocator, budget gpu.DescriptorBudget) (*Bindings, error) {
	lighting, err := descriptors.NewManager[descriptors.LightingIndex]("lighting", device, budget)
	if err != nil {
		return nil, err
	}
	return &Bindings{device: device, budget: budget, lighting: lighting}, nil
}

// Sources are the resources the descriptor sets point at.
type Sources struct {
	Passes   gpu.PassSource
	Uniforms *Uniforms
	Targets  *Targets
	Shadows  *shadow.Orchestrator
}

func (b *Bindings) Reset(imageCount uint32, s *scene.Scene, src Sources) error {
	if err := b.fit(len(s.Models)); err != nil {
		return err
	}

	layout := src.Passes.Pipeline(gpu.PassGBuffer).SetLayout
	for m, model := range s.Models {
		shape := descriptors.MainIndex{
			Instance: descriptors.InstanceAxis(len(model.Instances)),
			Unit:     descriptors.UnitAxis(len(model.Units)),
			Image:    descriptors.ImageAxis(imageCount),
		}
		err := b.main[m].Reset(layout, shape, func(idx descriptors.MainIndex) ([]gpu.DescriptorWrite, error) {
			buf, err := src.Uniforms.Buffer(m, int(idx.Instance), uint32(idx.Image))
			if err != nil {
				return nil, err
			}
			albedo := model.Units[idx.Unit].Albedo
			return []gpu.DescriptorWrite{
				gpu.UniformWrite(0, buf, InstanceUniformSize),
				gpu.SamplerWrite(1, albedo.View, albedo.Sampler),
			}, nil
		})
		if err != nil {
			return fmt.Errorf("model %s: %w", model.Name, err)
		}
	}

	passes := src.Shadows.Passes()
	shape := descriptors.LightingIndex{
		Light: descriptors.LightAxis(len(s.Lights)),
		Image: descriptors.ImageAxis(imageCount),
	}
	err := b.lighting.Reset(src.Passes.Pipeline(gpu.PassLighting).SetLayout, shape, func(idx descriptors.LightingIndex) ([]gpu.DescriptorWrite, error) {
		if int(idx.Light) >= len(passes) {
			return nil, fmt.Errorf("%w: light %d has no shadow pass", core.ErrIndexOutOfRange, idx.Light)
		}
		p := passes[idx.Light]
		gs := src.Targets.Sampler()
		return []gpu.DescriptorWrite{
			gpu.UniformWrite(0, p.Uniform(uint32(idx.Image)), shadow.LightUniformSize),
			gpu.SamplerWrite(1, src.Targets.Attachment(AttachmentAlbedo), gs),
			gpu.SamplerWrite(2, src.Targets.Attachment(AttachmentNormal), gs),
			gpu.SamplerWrite(3, src.Targets.Attachment(AttachmentPosition), gs),
			gpu.SamplerWrite(4, p.ShadowMap(), src.Shadows.Sampler()),
		}, nil
	})
	if err != nil {
		return err
	}
	core.LogDebug("main descriptors reset for %d models, lighting tensor %d sets", len(b.main), b.lighting.Len())
	return nil
}

// fit grows or shrinks the per-model managers to n.
func (b *Bindings) fit(n int) error {
	for len(b.main) > n {
		last := len(b.main) - 1
		b.main[last].Destroy()
		b.main = b.main[:last]
	}
	for len(b.main) < n {
		m, err := descriptors.NewManager[descriptors.MainIndex](fmt.Sprintf("main[%d]", len(b.main)), b.device, b.budget)
		if err != nil {
			return err
		}
		b.main = append(b.main, m)
	}
	return nil
}

func (b *Bindings) Main(model int) *descriptors.Manager[descriptors.MainIndex] {
	return b.main[model]
}

func (b *Bindings) Lighting() *descriptors.Manager[descriptors.LightingIndex] {
	return b.lighting
}

// Release returns every set to its pool.
func (b *Bindings) Release() {
	for _, m := range b.main {
		if err := m.Release(); err != nil {
			core.LogError("releasing main descriptor sets: %s", err)
		}
	}
	if err := b.lighting.Release(); err != nil {
		core.LogError("releasing lighting descriptor sets: %s", err)
	}
}

func (b *Bindings) Destroy() {
	for i := len(b.main) - 1; i >= 0; i-- {
		b.main[i].Destroy()
	}
	b.main = nil
	b.lighting.Destroy()
}
