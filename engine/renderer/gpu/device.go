package gpu

import "time"

type Syncer interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFence blocks until f is signaled. ErrTimeout after timeout.
	WaitForFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	// WaitIdle blocks until the device has no outstanding work.
	WaitIdle() error
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
	Fence            Fence
}

type Submitter interface {
	// Submit queues work on the graphics queue. Fence is signaled when it
	// completes.
	Submit(info SubmitInfo) error
}

type Presenter interface {
	AcquireNextImage(sc Swapchain, timeout time.Duration, signal Semaphore) (uint32, Status, error)
	Present(sc Swapchain, image uint32, wait Semaphore) (Status, error)
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// Zero means no upper bound.
	MaxImageCount uint32
	CurrentExtent Extent2D
	SurfaceFormat Format
	DepthFormat   Format
}

type SwapchainInfo struct {
	Surface    Surface
	ImageCount uint32
	Extent     Extent2D
	Format     Format
	Old        Swapchain
}

type SwapchainDevice interface {
	SurfaceCapabilities(surface Surface) (SurfaceCapabilities, error)
	// CreateSwapchain returns the swapchain and its presentable images. The
	// image count may differ from the one requested.
	CreateSwapchain(info SwapchainInfo) (Swapchain, []Image, error)
	DestroySwapchain(sc Swapchain)
}

type ImageInfo struct {
	Extent Extent2D
	Format Format
	Usage  ImageUsage
}

type ResourceAllocator interface {
	// CreateImage creates an image with dedicated device-local memory.
	CreateImage(info ImageInfo) (Image, error)
	DestroyImage(img Image)
	CreateImageView(img Image, format Format, aspect Aspect) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler() (Sampler, error)
	DestroySampler(s Sampler)
	CreateFramebuffer(pass RenderPass, attachments []ImageView, extent Extent2D) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
	CreateBuffer(size uint64, usage BufferUsage, hostVisible bool) (Buffer, error)
	DestroyBuffer(b Buffer)
	// WriteBuffer copies data into a host-visible buffer.
	WriteBuffer(b Buffer, offset uint64, data []byte) error
}

// Uploader copies data into device-local resources through a staging buffer
// and a one-off command buffer. Every call waits for the queue to go idle.
type Uploader interface {
	UploadBuffer(dst Buffer, data []byte) error
	UploadImage(dst Image, extent Extent2D, data []byte) error
}

type DescriptorAllocator interface {
	CreateDescriptorPool(budget DescriptorBudget) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	// ResetDescriptorPool returns every set allocated from pool.
	ResetDescriptorPool(pool DescriptorPool) error
	// AllocateDescriptorSet fails with ErrOutOfPoolMemory when the pool is
	// exhausted.
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite) error
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
	IsDepth bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepth(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, IsDepth: true}
}

// Commands is the recording surface of a command buffer between Begin and
// End.
type Commands interface {
	BeginRenderPass(pass RenderPass, fb Framebuffer, extent Extent2D, clears []ClearValue)
	EndRenderPass()
	SetViewport(extent Extent2D)
	BindPipeline(p Pipeline)
	BindDescriptorSet(layout PipelineLayout, index uint32, set DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, values []float32)
	BindVertexBuffer(b Buffer)
	BindIndexBuffer(b Buffer)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
}

type CommandDevice interface {
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	FreeCommandBuffers(cbs []CommandBuffer)
	// Record resets cb, begins it, hands the recorder to fn and ends it.
	Record(cb CommandBuffer, fn func(Commands) error) error
}

// PipelineSet is everything a pass needs to bind and draw.
type PipelineSet struct {
	Pipeline  Pipeline
	Layout    PipelineLayout
	SetLayout DescriptorSetLayout
}

type PipelineFactory interface {
	CreateRenderPass(kind PassKind, colorFormat, depthFormat Format) (RenderPass, error)
	DestroyRenderPass(pass RenderPass)
	CreatePipeline(kind PassKind, pass RenderPass) (PipelineSet, error)
	DestroyPipeline(set PipelineSet)
}

type Device interface {
	Syncer
	Submitter
	Presenter
	SwapchainDevice
	ResourceAllocator
	Uploader
	DescriptorAllocator
	CommandDevice
	PipelineFactory
}
