package renderer

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

var passKinds = []gpu.PassKind{gpu.PassGBuffer, gpu.PassLighting, gpu.PassShadow}

// Pipelines holds the render passes and pipelines built by the pipeline
// collaborator and serves them to every pass as a gpu.PassSource.
type Pipelines struct {
	factory   gpu.PipelineFactory
	passes    map[gpu.PassKind]gpu.Owned[gpu.RenderPass]
	pipelines map[gpu.PassKind]gpu.PipelineSet
}

func NewPipelines(factory gpu.PipelineFactory) *Pipelines {
	return &Pipelines{
		factory:   factory,
		passes:    make(map[gpu.PassKind]gpu.Owned[gpu.RenderPass]),
		pipelines: make(map[gpu.PassKind]gpu.PipelineSet),
	}
}

// ResetRenderPasses builds one render pass per kind. The lighting pass
// writes the swapchain format; the G-buffer and shadow passes use the depth
// format.
func (p *Pipelines) ResetRenderPasses(color, depth gpu.Format) error {
	p.DestroyRenderPasses()
	for _, kind := range passKinds {
		rp, err := p.factory.CreateRenderPass(kind, color, depth)
		if err != nil {
			p.DestroyRenderPasses()
			return fmt.Errorf("creating %s render pass: %w", kind, err)
		}
		p.passes[kind] = gpu.Own(rp, p.factory.DestroyRenderPass)
	}
	return nil
}

func (p *Pipelines) DestroyRenderPasses() {
	for i := len(passKinds) - 1; i >= 0; i-- {
		if rp, ok := p.passes[passKinds[i]]; ok {
			rp.Destroy()
			delete(p.passes, passKinds[i])
		}
	}
}

func (p *Pipelines) ResetPipelines() error {
	p.DestroyPipelines()
	for _, kind := range passKinds {
		set, err := p.factory.CreatePipeline(kind, p.RenderPass(kind))
		if err != nil {
			p.DestroyPipelines()
			return fmt.Errorf("creating %s pipeline: %w", kind, err)
		}
		p.pipelines[kind] = set
	}
	return nil
}

func (p *Pipelines) DestroyPipelines() {
	for i := len(passKinds) - 1; i >= 0; i-- {
		if set, ok := p.pipelines[passKinds[i]]; ok {
			p.factory.DestroyPipeline(set)
			delete(p.pipelines, passKinds[i])
		}
	}
}

func (p *Pipelines) RenderPass(kind gpu.PassKind) gpu.RenderPass {
	rp := p.passes[kind]
	return rp.Get()
}

func (p *Pipelines) Pipeline(kind gpu.PassKind) gpu.PipelineSet {
	return p.pipelines[kind]
}
