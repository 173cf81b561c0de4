package gpu

// DescriptorBudget caps a descriptor pool. It is configured once and never
// grown.
type DescriptorBudget struct {
	MaxSets               uint32 `toml:"max_sets"`
	UniformBuffers        uint32 `toml:"uniform_buffers"`
	CombinedImageSamplers uint32 `toml:"combined_image_samplers"`
}

// Of returns the budget for a single descriptor kind.
func (b DescriptorBudget) Of(kind DescriptorKind) uint32 {
	switch kind {
	case DescriptorUniformBuffer:
		return b.UniformBuffers
	case DescriptorCombinedImageSampler:
		return b.CombinedImageSamplers
	}
	return 0
}

// DescriptorWrite points one binding of a set at a buffer range or at a
// sampled image.
type DescriptorWrite struct {
	Binding uint32
	Kind    DescriptorKind
	Buffer  Buffer
	Offset  uint64
	Range   uint64
	View    ImageView
	Sampler Sampler
}

func UniformWrite(binding uint32, buf Buffer, size uint64) DescriptorWrite {
	return DescriptorWrite{Binding: binding, Kind: DescriptorUniformBuffer, Buffer: buf, Range: size}
}

func SamplerWrite(binding uint32, view ImageView, sampler Sampler) DescriptorWrite {
	return DescriptorWrite{Binding: binding, Kind: DescriptorCombinedImageSampler, View: view, Sampler: sampler}
}
