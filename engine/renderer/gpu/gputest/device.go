// Package gputest provides an in-memory gpu.Device for renderer tests. It
// hands out unique handles, tracks fence state and descriptor generations,
// replays scripted acquire/present statuses and records every call.
package gputest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// Op is one entry of the device call log.
type Op struct {
	Name   string
	Handle uint64
}

func (o Op) String() string {
	return fmt.Sprintf("%s(%d)", o.Name, o.Handle)
}

type fenceState int

const (
	fenceSignaled fenceState = iota
	fenceReset
	fencePending
)

type fence struct {
	state fenceState
	done  chan struct{}
}

type pool struct {
	budget gpu.DescriptorBudget
	sets   []gpu.DescriptorSet
}

type swapchain struct {
	images []gpu.Image
	next   uint32
}

// Device implements gpu.Device. The zero value is not usable, call New.
type Device struct {
	mu sync.Mutex

	next uint64
	live map[uint64]string
	log  []Op

	// Caps is returned from SurfaceCapabilities.
	Caps gpu.SurfaceCapabilities
	// AutoComplete signals a submission's fence immediately. When false the
	// test drives completion with Complete.
	AutoComplete bool
	// AcquireScript and PresentScript are consumed one status per call;
	// StatusOK once exhausted.
	AcquireScript []gpu.Status
	PresentScript []gpu.Status
	// PoolLimit makes AllocateDescriptorSet fail with ErrOutOfPoolMemory
	// once a pool holds that many sets. Zero means no limit beyond the
	// pool's own budget.
	PoolLimit int

	fences     map[gpu.Fence]*fence
	inflight   []gpu.Fence
	submits    []gpu.SubmitInfo
	pools      map[gpu.DescriptorPool]*pool
	setPool    map[gpu.DescriptorSet]gpu.DescriptorPool
	setWrites  map[gpu.DescriptorSet][]gpu.DescriptorWrite
	swapchains map[gpu.Swapchain]*swapchain
	streams    map[gpu.CommandBuffer][]string
	violations []string
}

var _ gpu.Device = (*Device)(nil)

func New() *Device {
	return &Device{
		live:         make(map[uint64]string),
		AutoComplete: true,
		Caps: gpu.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 3,
			CurrentExtent: gpu.Extent2D{Width: 800, Height: 600},
			SurfaceFormat: gpu.FormatB8G8R8A8Unorm,
			DepthFormat:   gpu.FormatD32Sfloat,
		},
		fences:     make(map[gpu.Fence]*fence),
		pools:      make(map[gpu.DescriptorPool]*pool),
		setPool:    make(map[gpu.DescriptorSet]gpu.DescriptorPool),
		setWrites:  make(map[gpu.DescriptorSet][]gpu.DescriptorWrite),
		swapchains: make(map[gpu.Swapchain]*swapchain),
		streams:    make(map[gpu.CommandBuffer][]string),
	}
}

func (d *Device) create(kind string) uint64 {
	d.next++
	d.live[d.next] = kind
	d.log = append(d.log, Op{Name: "Create" + kind, Handle: d.next})
	return d.next
}

func (d *Device) destroy(kind string, h uint64) {
	d.log = append(d.log, Op{Name: "Destroy" + kind, Handle: h})
	if h == 0 {
		return
	}
	if got, ok := d.live[h]; !ok || got != kind {
		d.violate("destroy of dead %s %d", kind, h)
		return
	}
	delete(d.live, h)
}

func (d *Device) use(kind string, h uint64) {
	if got, ok := d.live[h]; !ok || got != kind {
		d.violate("use of dead %s %d", kind, h)
	}
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// Log returns a copy of every call recorded so far.
func (d *Device) Log() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.log))
	copy(out, d.log)
	return out
}

// ClearLog forgets the recorded calls.
func (d *Device) ClearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

// Names returns the op names of the log, optionally only those starting
// with one of the prefixes.
func (d *Device) Names(prefixes ...string) []string {
	var out []string
	for _, op := range d.Log() {
		if len(prefixes) == 0 {
			out = append(out, op.Name)
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(op.Name, p) {
				out = append(out, op.Name)
				break
			}
		}
	}
	return out
}

// Violations lists misuse detected so far: double destroys, use of
// destroyed objects and stale descriptor sets.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Live counts objects of the kind that are still alive, or every object when
// kind is empty.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.live {
		if kind == "" || k == kind {
			n++
		}
	}
	return n
}

func (d *Device) IsLive(h uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[h]
	return ok
}

// Submits returns every submission in order.
func (d *Device) Submits() []gpu.SubmitInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.SubmitInfo(nil), d.submits...)
}

// Stream returns the commands recorded into cb by its last Record.
func (d *Device) Stream(cb gpu.CommandBuffer) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.streams[cb]...)
}

// DescriptorWrites returns the bindings last written to set.
func (d *Device) DescriptorWrites(set gpu.DescriptorSet) []gpu.DescriptorWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.DescriptorWrite(nil), d.setWrites[set]...)
}

// SetIsLive reports whether set is still backed by its pool, that is no
// reset or destroy of the pool happened since it was allocated.
func (d *Device) SetIsLive(set gpu.DescriptorSet) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.setPool[set]
	return ok
}

// Sync

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := gpu.Fence(d.create("Fence"))
	st := &fence{state: fenceReset, done: make(chan struct{})}
	if signaled {
		st.state = fenceSignaled
		close(st.done)
	}
	d.fences[f] = st
	return f, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.fences[f]; ok && st.state == fencePending {
		d.violate("destroy of pending fence %d", f)
	}
	delete(d.fences, f)
	d.destroy("Fence", uint64(f))
}

// FenceSignaled reports the current state of f.
func (d *Device) FenceSignaled(f gpu.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.fences[f]
	return ok && st.state == fenceSignaled
}

func (d *Device) WaitForFence(f gpu.Fence, timeout time.Duration) error {
	d.mu.Lock()
	st, ok := d.fences[f]
	d.log = append(d.log, Op{Name: "WaitForFence", Handle: uint64(f)})
	if !ok {
		d.violate("wait on dead fence %d", f)
		d.mu.Unlock()
		return fmt.Errorf("wait on dead fence %d", f)
	}
	if st.state == fenceReset {
		d.violate("wait on reset fence %d that was never submitted", f)
	}
	done := st.done
	d.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return gpu.ErrTimeout
	}
}

func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "ResetFence", Handle: uint64(f)})
	st, ok := d.fences[f]
	if !ok {
		d.violate("reset of dead fence %d", f)
		return fmt.Errorf("reset of dead fence %d", f)
	}
	if st.state == fencePending {
		d.violate("reset of pending fence %d", f)
	}
	st.state = fenceReset
	st.done = make(chan struct{})
	return nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Semaphore(d.create("Semaphore")), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Semaphore", uint64(s))
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	d.log = append(d.log, Op{Name: "WaitIdle"})
	d.mu.Unlock()
	d.CompleteAll()
	return nil
}

func (d *Device) signal(f gpu.Fence) {
	if st, ok := d.fences[f]; ok && st.state != fenceSignaled {
		st.state = fenceSignaled
		close(st.done)
	}
}

// Complete signals the fence of the oldest outstanding submission and
// reports whether there was one.
func (d *Device) Complete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.inflight) == 0 {
		return false
	}
	f := d.inflight[0]
	d.inflight = d.inflight[1:]
	d.signal(f)
	return true
}

func (d *Device) CompleteAll() {
	for d.Complete() {
	}
}

// Pending counts submissions whose fence has not been signaled.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "Submit", Handle: uint64(info.Fence)})
	for _, cb := range info.CommandBuffers {
		d.use("CommandBuffer", uint64(cb))
	}
	d.submits = append(d.submits, info)
	if info.Fence == gpu.NullFence {
		return nil
	}
	st, ok := d.fences[info.Fence]
	if !ok {
		d.violate("submit with dead fence %d", info.Fence)
		return fmt.Errorf("submit with dead fence %d", info.Fence)
	}
	if st.state != fenceReset {
		d.violate("submit with unreset fence %d", info.Fence)
	}
	st.state = fencePending
	if d.AutoComplete {
		d.signal(info.Fence)
		return nil
	}
	d.inflight = append(d.inflight, info.Fence)
	return nil
}

// Presentation

func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout time.Duration, signal gpu.Semaphore) (uint32, gpu.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "AcquireNextImage", Handle: uint64(sc)})
	d.use("Swapchain", uint64(sc))
	status := gpu.StatusOK
	if len(d.AcquireScript) > 0 {
		status = d.AcquireScript[0]
		d.AcquireScript = d.AcquireScript[1:]
	}
	if status.NeedsRecreate() {
		return 0, status, nil
	}
	s := d.swapchains[sc]
	if s == nil || len(s.images) == 0 {
		return 0, gpu.StatusOK, fmt.Errorf("acquire on swapchain %d without images", sc)
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return idx, status, nil
}

func (d *Device) Present(sc gpu.Swapchain, image uint32, wait gpu.Semaphore) (gpu.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "Present", Handle: uint64(sc)})
	d.use("Swapchain", uint64(sc))
	status := gpu.StatusOK
	if len(d.PresentScript) > 0 {
		status = d.PresentScript[0]
		d.PresentScript = d.PresentScript[1:]
	}
	return status, nil
}

func (d *Device) SurfaceCapabilities(surface gpu.Surface) (gpu.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Caps, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, []gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := gpu.Swapchain(d.create("Swapchain"))
	images := make([]gpu.Image, info.ImageCount)
	for i := range images {
		// Presentable images belong to the swapchain and are never destroyed
		// on their own.
		d.next++
		images[i] = gpu.Image(d.next)
	}
	d.swapchains[sc] = &swapchain{images: images}
	return sc, images, nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.swapchains, sc)
	d.destroy("Swapchain", uint64(sc))
}

// Resources

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.Empty() {
		return 0, fmt.Errorf("image with empty extent %v", info.Extent)
	}
	return gpu.Image(d.create("Image")), nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Image", uint64(img))
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format, aspect gpu.Aspect) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.ImageView(d.create("ImageView")), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("ImageView", uint64(view))
}

func (d *Device) CreateSampler() (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Sampler(d.create("Sampler")), nil
}

func (d *Device) DestroySampler(s gpu.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Sampler", uint64(s))
}

func (d *Device) CreateFramebuffer(pass gpu.RenderPass, attachments []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.use("RenderPass", uint64(pass))
	for _, a := range attachments {
		d.use("ImageView", uint64(a))
	}
	return gpu.Framebuffer(d.create("Framebuffer")), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Framebuffer", uint64(fb))
}

func (d *Device) CreateBuffer(size uint64, usage gpu.BufferUsage, hostVisible bool) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if size == 0 {
		return 0, fmt.Errorf("buffer of size 0")
	}
	return gpu.Buffer(d.create("Buffer")), nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Buffer", uint64(b))
}

func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "WriteBuffer", Handle: uint64(b)})
	d.use("Buffer", uint64(b))
	return nil
}

func (d *Device) UploadBuffer(dst gpu.Buffer, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "UploadBuffer", Handle: uint64(dst)})
	d.use("Buffer", uint64(dst))
	return nil
}

func (d *Device) UploadImage(dst gpu.Image, extent gpu.Extent2D, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "UploadImage", Handle: uint64(dst)})
	d.use("Image", uint64(dst))
	return nil
}

// Descriptors

func (d *Device) CreateDescriptorPool(budget gpu.DescriptorBudget) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := gpu.DescriptorPool(d.create("DescriptorPool"))
	d.pools[p] = &pool{budget: budget}
	return p, nil
}

func (d *Device) releaseSets(p *pool) {
	for _, s := range p.sets {
		delete(d.setPool, s)
		delete(d.setWrites, s)
	}
	p.sets = nil
}

func (d *Device) DestroyDescriptorPool(p gpu.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.pools[p]; ok {
		d.releaseSets(st)
		delete(d.pools, p)
	}
	d.destroy("DescriptorPool", uint64(p))
}

func (d *Device) ResetDescriptorPool(p gpu.DescriptorPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Op{Name: "ResetDescriptorPool", Handle: uint64(p)})
	st, ok := d.pools[p]
	if !ok {
		d.violate("reset of dead descriptor pool %d", p)
		return fmt.Errorf("reset of dead descriptor pool %d", p)
	}
	d.releaseSets(st)
	return nil
}

func (d *Device) AllocateDescriptorSet(p gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.pools[p]
	if !ok {
		d.violate("allocate from dead descriptor pool %d", p)
		return 0, fmt.Errorf("allocate from dead descriptor pool %d", p)
	}
	d.use("DescriptorSetLayout", uint64(layout))
	if uint32(len(st.sets)) >= st.budget.MaxSets || (d.PoolLimit > 0 && len(st.sets) >= d.PoolLimit) {
		return 0, gpu.ErrOutOfPoolMemory
	}
	// Sets are owned by the pool, so they are not tracked as live objects.
	d.next++
	s := gpu.DescriptorSet(d.next)
	st.sets = append(st.sets, s)
	d.setPool[s] = p
	d.log = append(d.log, Op{Name: "AllocateDescriptorSet", Handle: uint64(s)})
	return s, nil
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.setPool[set]; !ok {
		d.violate("update of stale descriptor set %d", set)
		return fmt.Errorf("update of stale descriptor set %d", set)
	}
	d.setWrites[set] = append([]gpu.DescriptorWrite(nil), writes...)
	return nil
}

// Commands

func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]gpu.CommandBuffer, count)
	for i := range out {
		out[i] = gpu.CommandBuffer(d.create("CommandBuffer"))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(cbs []gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cb := range cbs {
		delete(d.streams, cb)
		d.destroy("CommandBuffer", uint64(cb))
	}
}

func (d *Device) Record(cb gpu.CommandBuffer, fn func(gpu.Commands) error) error {
	d.mu.Lock()
	d.use("CommandBuffer", uint64(cb))
	d.log = append(d.log, Op{Name: "Record", Handle: uint64(cb)})
	d.mu.Unlock()

	rec := &recorder{dev: d}
	if err := fn(rec); err != nil {
		return err
	}
	d.mu.Lock()
	d.streams[cb] = rec.cmds
	d.mu.Unlock()
	return nil
}

// Pipelines

func (d *Device) CreateRenderPass(kind gpu.PassKind, colorFormat, depthFormat gpu.Format) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.RenderPass(d.create("RenderPass")), nil
}

func (d *Device) DestroyRenderPass(pass gpu.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("RenderPass", uint64(pass))
}

func (d *Device) CreatePipeline(kind gpu.PassKind, pass gpu.RenderPass) (gpu.PipelineSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.use("RenderPass", uint64(pass))
	return gpu.PipelineSet{
		SetLayout: gpu.DescriptorSetLayout(d.create("DescriptorSetLayout")),
		Layout:    gpu.PipelineLayout(d.create("PipelineLayout")),
		Pipeline:  gpu.Pipeline(d.create("Pipeline")),
	}, nil
}

func (d *Device) DestroyPipeline(set gpu.PipelineSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Pipeline", uint64(set.Pipeline))
	d.destroy("PipelineLayout", uint64(set.Layout))
	d.destroy("DescriptorSetLayout", uint64(set.SetLayout))
}
