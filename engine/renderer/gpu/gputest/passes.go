package gputest

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// Passes creates one render pass and pipeline per pass kind on a test
// device and serves them as a gpu.PassSource.
type Passes struct {
	passes    map[gpu.PassKind]gpu.RenderPass
	pipelines map[gpu.PassKind]gpu.PipelineSet
}

func NewPasses(d *Device) *Passes {
	p := &Passes{
		passes:    make(map[gpu.PassKind]gpu.RenderPass),
		pipelines: make(map[gpu.PassKind]gpu.PipelineSet),
	}
	for _, kind := range []gpu.PassKind{gpu.PassGBuffer, gpu.PassLighting, gpu.PassShadow} {
		rp, err := d.CreateRenderPass(kind, d.Caps.SurfaceFormat, d.Caps.DepthFormat)
		if err != nil {
			panic(fmt.Sprintf("gputest: %s render pass: %v", kind, err))
		}
		ps, err := d.CreatePipeline(kind, rp)
		if err != nil {
			panic(fmt.Sprintf("gputest: %s pipeline: %v", kind, err))
		}
		p.passes[kind] = rp
		p.pipelines[kind] = ps
	}
	return p
}

func (p *Passes) RenderPass(kind gpu.PassKind) gpu.RenderPass {
	return p.passes[kind]
}

func (p *Passes) Pipeline(kind gpu.PassKind) gpu.PipelineSet {
	return p.pipelines[kind]
}
