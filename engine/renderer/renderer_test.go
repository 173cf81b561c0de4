package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/penumbra/engine/renderer/swapchain"
	"github.com/spaghettifunk/penumbra/engine/scene"
	"github.com/spaghettifunk/penumbra/engine/scene/scenetest"
)

type window struct {
	surface gpu.Surface
	w, h    uint32
}

func (w *window) Surface() gpu.Surface {
	return w.surface
}

func (w *window) RecreateSurface() (gpu.Surface, error) {
	w.surface++
	return w.surface, nil
}

func (w *window) FramebufferSize() (uint32, uint32) {
	return w.w, w.h
}

func setup(t *testing.T) (*gputest.Device, *window, *Renderer, *scene.Scene) {
	t.Helper()
	dev := gputest.New()
	win := &window{surface: 1, w: 800, h: 600}
	s, err := scenetest.New(dev, scenetest.Shape{Units: []int{1}, Instances: []int{2}, Lights: 1})
	if err != nil {
		t.Fatalf("scenetest.New: %v", err)
	}
	r, err := New(dev, win, core.DefaultConfig().Renderer, s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return dev, win, r, s
}

func drawFrames(t *testing.T, r *Renderer, s *scene.Scene, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := r.DrawFrame(s); err != nil {
			t.Fatalf("DrawFrame %d: %v", i, err)
		}
	}
}

func TestStartShapesEveryTensor(t *testing.T) {
	dev, _, r, _ := setup(t)
	if got := r.Coordinator().ImageCount(); got != 3 {
		t.Fatalf("image count = %d, want 3", got)
	}
	if got := r.Frames().FramesInFlight(); got != 2 {
		t.Fatalf("frames in flight = %d, want 2", got)
	}
	if got := r.Bindings().Main(0).Len(); got != 6 {
		t.Fatalf("main descriptor sets = %d, want 2 instances x 1 unit x 3 images", got)
	}
	if got := r.Shadows().Sets().Len(); got != 3 {
		t.Fatalf("shadow descriptor sets = %d, want 3", got)
	}
	if got := r.Bindings().Lighting().Len(); got != 3 {
		t.Fatalf("lighting descriptor sets = %d, want 3", got)
	}
	if got := r.Commands().Len(); got != 3 {
		t.Fatalf("main command buffers = %d, want 3", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestDrawFrameSubmitsShadowsBeforeMain(t *testing.T) {
	dev, _, r, s := setup(t)
	drawFrames(t, r, s, 4)

	submits := dev.Submits()
	if len(submits) != 4 {
		t.Fatalf("submits = %d, want 4", len(submits))
	}
	for i, sub := range submits {
		image := uint32(i % 3)
		want := append(r.Shadows().Commands(image), r.Commands().Command(image))
		if len(sub.CommandBuffers) != len(want) {
			t.Fatalf("submit %d carries %d command buffers, want %d", i, len(sub.CommandBuffers), len(want))
		}
		for j := range want {
			if sub.CommandBuffers[j] != want[j] {
				t.Fatalf("submit %d = %v, want %v", i, sub.CommandBuffers, want)
			}
		}
		if sub.Fence != r.Frames().Fence(uint32(i%2)) {
			t.Fatalf("submit %d fence = %d, want slot %d's", i, sub.Fence, i%2)
		}
	}
	if got := r.FrameNumber(); got != 4 {
		t.Fatalf("frame number = %d, want 4", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestTopologyChangeRebuildsTensors(t *testing.T) {
	dev, _, r, s := setup(t)
	drawFrames(t, r, s, 2)
	gen := r.Bindings().Main(0).Generation()

	if !s.AddInstance(0, mgl32.Vec3{2, 0, 0}) {
		t.Fatal("AddInstance refused model 0")
	}
	drawFrames(t, r, s, 1)
	if got := r.Bindings().Main(0).Len(); got != 9 {
		t.Fatalf("main descriptor sets = %d, want 3 instances x 1 unit x 3 images", got)
	}
	if got := r.Coordinator().ImageCount(); got != 3 {
		t.Fatalf("topology change touched the swapchain: %d images", got)
	}
	if r.Bindings().Main(0).Generation() == gen {
		t.Fatal("main descriptor sets were not reallocated")
	}

	s.AddLight(scene.NewLight(mgl32.Vec3{1, -1, 0}, mgl32.Vec3{1, 1, 1}, 1))
	drawFrames(t, r, s, 1)
	if got := r.Shadows().Sets().Len(); got != 6 {
		t.Fatalf("shadow descriptor sets = %d, want 2 lights x 3 images", got)
	}
	if got := len(r.Shadows().Commands(0)); got != 2 {
		t.Fatalf("shadow command buffers per image = %d, want 2", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestOutOfDateRecoversOnNextFrame(t *testing.T) {
	dev, _, r, s := setup(t)
	drawFrames(t, r, s, 2)
	before := len(dev.Submits())

	dev.AcquireScript = []gpu.Status{gpu.StatusOutOfDate}
	dev.Caps.MinImageCount = 3
	dev.Caps.MaxImageCount = 0
	drawFrames(t, r, s, 1)
	if got := len(dev.Submits()); got != before {
		t.Fatalf("out-of-date frame submitted work")
	}

	drawFrames(t, r, s, 1)
	if got := r.Coordinator().ImageCount(); got != 4 {
		t.Fatalf("image count = %d, want 4", got)
	}
	if got := r.Frames().ImageCount(); got != 4 {
		t.Fatalf("synchronizer image count = %d, want 4", got)
	}
	if got := r.Bindings().Main(0).Len(); got != 8 {
		t.Fatalf("main descriptor sets = %d, want 2 x 1 x 4", got)
	}
	if got := r.Shadows().Sets().Len(); got != 4 {
		t.Fatalf("shadow descriptor sets = %d, want 4", got)
	}
	for i := uint32(0); i < r.Frames().FramesInFlight(); i++ {
		if !dev.FenceSignaled(r.Frames().Fence(i)) {
			t.Fatalf("fence %d left unsignaled after recovery", i)
		}
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestFormatChangeTearsDownInDependencyOrder(t *testing.T) {
	dev, _, r, s := setup(t)
	drawFrames(t, r, s, 2)
	dev.ClearLog()

	dev.Caps.SurfaceFormat = gpu.FormatB8G8R8A8SRGB
	dev.AcquireScript = []gpu.Status{gpu.StatusOutOfDate}
	drawFrames(t, r, s, 2)

	names := dev.Names("DestroyCommandBuffer", "ResetDescriptorPool", "DestroyFramebuffer", "DestroyRenderPass", "DestroyPipeline", "CreateRenderPass")
	rank := map[string]int{
		"DestroyCommandBuffer":  0,
		"ResetDescriptorPool":   1,
		"DestroyFramebuffer":    2,
		"DestroyRenderPass":     3,
		"DestroyPipeline":       4,
		"DestroyPipelineLayout": 4,
	}
	last := 0
	seen := map[string]bool{}
	for _, n := range names {
		if n == "CreateRenderPass" {
			break
		}
		seen[n] = true
		if rank[n] < last {
			t.Fatalf("%s after a later teardown step: %v", n, names)
		}
		last = rank[n]
	}
	for _, n := range []string{"DestroyCommandBuffer", "ResetDescriptorPool", "DestroyFramebuffer", "DestroyRenderPass", "DestroyPipeline"} {
		if !seen[n] {
			t.Fatalf("teardown %v is missing %s", names, n)
		}
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestSuboptimalPresentSchedulesRecreation(t *testing.T) {
	dev, _, r, s := setup(t)
	dev.PresentScript = []gpu.Status{gpu.StatusSuboptimal}
	drawFrames(t, r, s, 1)
	if r.Coordinator().State() != swapchain.StateOutOfDate {
		t.Fatalf("state after suboptimal present = %s, want out of date", r.Coordinator().State())
	}
	drawFrames(t, r, s, 1)
	if got := len(dev.Submits()); got != 2 {
		t.Fatalf("submits = %d, want 2", got)
	}
}

func TestMinimizedWindowSkipsFrames(t *testing.T) {
	dev, win, r, s := setup(t)
	dev.AcquireScript = []gpu.Status{gpu.StatusOutOfDate}
	drawFrames(t, r, s, 1)

	win.w, win.h = 0, 0
	drawFrames(t, r, s, 3)
	if got := len(dev.Submits()); got != 0 {
		t.Fatalf("minimized window submitted %d frames", got)
	}

	win.w, win.h = 800, 600
	drawFrames(t, r, s, 1)
	if got := len(dev.Submits()); got != 1 {
		t.Fatalf("submits after restore = %d, want 1", got)
	}
}

func TestShutdownReleasesRendererObjects(t *testing.T) {
	dev, _, r, s := setup(t)
	drawFrames(t, r, s, 3)
	r.Shutdown()

	for _, kind := range []string{"Fence", "Semaphore", "Swapchain", "Framebuffer", "DescriptorPool", "CommandBuffer", "RenderPass", "Pipeline", "PipelineLayout"} {
		if n := dev.Live(kind); n != 0 {
			t.Errorf("%d %s objects alive after Shutdown", n, kind)
		}
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}
