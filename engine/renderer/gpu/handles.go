package gpu

// Opaque device object handles. Zero is the null handle for every type; the
// backend owns the mapping from these values to its native objects.
type (
	Surface             uint64
	Swapchain           uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	Framebuffer         uint64
	RenderPass          uint64
	Pipeline            uint64
	PipelineLayout      uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	CommandBuffer       uint64
	Buffer              uint64
	Fence               uint64
	Semaphore           uint64
)

const (
	NullFence     Fence     = 0
	NullSemaphore Semaphore = 0
	NullSwapchain Swapchain = 0
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8SRGB
	FormatR8G8B8A8Unorm
	FormatR16G16B16A16Sfloat
	FormatD32Sfloat
	FormatD32SfloatS8Uint
	FormatD24UnormS8Uint
)

func (f Format) IsDepth() bool {
	switch f {
	case FormatD32Sfloat, FormatD32SfloatS8Uint, FormatD24UnormS8Uint:
		return true
	}
	return false
}

type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthAttachment
	ImageUsageSampled
	ImageUsageTransferDst
)

type Aspect uint32

const (
	AspectColor Aspect = iota
	AspectDepth
)

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
)

type DescriptorKind uint32

const (
	DescriptorUniformBuffer DescriptorKind = iota
	DescriptorCombinedImageSampler
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorUniformBuffer:
		return "uniform buffer"
	case DescriptorCombinedImageSampler:
		return "combined image sampler"
	}
	return "unknown"
}

// PassKind names the render passes (and their pipelines) the frame core uses.
type PassKind uint32

const (
	PassGBuffer PassKind = iota
	PassLighting
	PassShadow
)

func (k PassKind) String() string {
	switch k {
	case PassGBuffer:
		return "gbuffer"
	case PassLighting:
		return "lighting"
	case PassShadow:
		return "shadow"
	}
	return "unknown"
}
