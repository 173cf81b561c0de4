package swapchain

import (
	"errors"
	"slices"
	"testing"

	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu/gputest"
)

type testWindow struct {
	surface   gpu.Surface
	w, h      uint32
	recreated int
}

func (w *testWindow) Surface() gpu.Surface {
	return w.surface
}

func (w *testWindow) RecreateSurface() (gpu.Surface, error) {
	w.recreated++
	w.surface++
	return w.surface, nil
}

func (w *testWindow) FramebufferSize() (uint32, uint32) {
	return w.w, w.h
}

// testStage owns one buffer while built so that its destroy shows up in the
// device log.
type testStage struct {
	name   string
	dev    *gputest.Device
	on     func(Change) bool
	buf    gpu.Buffer
	owners map[uint64]string
	last   Target
	resets int
}

func (s *testStage) Name() string {
	return s.name
}

func (s *testStage) Invalidated(c Change) bool {
	return s.on(c)
}

func (s *testStage) Destroy() {
	if s.buf != 0 {
		s.dev.DestroyBuffer(s.buf)
		s.buf = 0
	}
}

func (s *testStage) Reset(t Target) error {
	buf, err := s.dev.CreateBuffer(16, gpu.BufferUsageUniform, true)
	if err != nil {
		return err
	}
	s.buf = buf
	s.owners[uint64(buf)] = s.name
	s.last = t
	s.resets++
	return nil
}

type fixture struct {
	dev    *gputest.Device
	window *testWindow
	coord  *Coordinator
	stages map[string]*testStage
	owners map[uint64]string
}

func onFormat(c Change) bool    { return c.Format }
func onSwapchain(c Change) bool { return c.Swapchain || c.Extent || c.Format }
func onTopology(c Change) bool  { return c.Topology }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dev:    gputest.New(),
		window: &testWindow{surface: 1, w: 800, h: 600},
		stages: map[string]*testStage{},
		owners: map[uint64]string{},
	}
	coord, err := NewCoordinator(f.dev, f.window)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	f.coord = coord
	for _, st := range []struct {
		name string
		on   func(Change) bool
	}{
		{"renderpasses", onFormat},
		{"pipelines", onFormat},
		{"framebuffers", onSwapchain},
		{"descriptors", onTopology},
		{"commands", onTopology},
	} {
		s := &testStage{name: st.name, dev: f.dev, on: st.on, owners: f.owners}
		f.stages[st.name] = s
		coord.Register(s)
	}
	if err := coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.dev.ClearLog()
	return f
}

// trace maps the device log to stage names and swapchain operations.
func (f *fixture) trace() []string {
	var out []string
	for _, op := range f.dev.Log() {
		switch op.Name {
		case "DestroyBuffer":
			out = append(out, "destroy "+f.owners[op.Handle])
		case "CreateBuffer":
			out = append(out, "reset "+f.owners[op.Handle])
		case "WaitIdle", "DestroyImageView", "DestroySwapchain", "CreateSwapchain", "CreateImageView":
			out = append(out, op.Name)
		}
	}
	return out
}

func TestRecoverDestroysInReverseAndRebuildsForward(t *testing.T) {
	f := newFixture(t)
	f.coord.Invalidate(gpu.StatusOutOfDate)
	if f.coord.State() != StateOutOfDate {
		t.Fatalf("state = %s, want out of date", f.coord.State())
	}
	ok, err := f.coord.Recover()
	if err != nil || !ok {
		t.Fatalf("Recover = %v, %v", ok, err)
	}
	want := []string{
		"WaitIdle",
		"destroy commands", "destroy descriptors", "destroy framebuffers",
		"DestroyImageView", "DestroyImageView", "DestroyImageView",
		"DestroySwapchain",
		"CreateSwapchain",
		"CreateImageView", "CreateImageView", "CreateImageView",
		"reset framebuffers", "reset descriptors", "reset commands",
	}
	if got := f.trace(); !slices.Equal(got, want) {
		t.Fatalf("recovery trace\n got %v\nwant %v", got, want)
	}
	if f.coord.State() != StateValid {
		t.Fatalf("state = %s after recovery", f.coord.State())
	}
	if v := f.dev.Violations(); len(v) != 0 {
		t.Fatalf("device violations: %v", v)
	}
}

func TestRecoverRebuildsRenderPassesOnFormatChange(t *testing.T) {
	f := newFixture(t)
	f.dev.Caps.SurfaceFormat = gpu.FormatB8G8R8A8SRGB
	f.coord.Invalidate(gpu.StatusOutOfDate)
	if _, err := f.coord.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	trace := f.trace()
	if trace[1] != "destroy commands" || trace[5] != "destroy renderpasses" {
		t.Fatalf("trace %v does not tear down every stage in reverse", trace)
	}
	if f.stages["renderpasses"].resets != 2 || f.stages["renderpasses"].last.Format != gpu.FormatB8G8R8A8SRGB {
		t.Fatalf("render passes rebuilt %d times for format %d", f.stages["renderpasses"].resets, f.stages["renderpasses"].last.Format)
	}
}

func TestImageCountRequest(t *testing.T) {
	tests := []struct {
		min, max, want uint32
	}{
		{2, 3, 3},
		{2, 8, 3},
		{3, 3, 3},
		{3, 0, 4},
	}
	for _, tt := range tests {
		f := newFixture(t)
		f.dev.Caps.MinImageCount = tt.min
		f.dev.Caps.MaxImageCount = tt.max
		f.coord.Resize(1024, 768)
		if _, err := f.coord.Recover(); err != nil {
			t.Fatalf("Recover: %v", err)
		}
		if got := f.coord.ImageCount(); got != tt.want {
			t.Errorf("min=%d max=%d: image count %d, want %d", tt.min, tt.max, got, tt.want)
		}
		if got := f.stages["commands"].last.ImageCount(); got != tt.want {
			t.Errorf("min=%d max=%d: dependents saw %d images, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestZeroAreaSuspendsRecreation(t *testing.T) {
	f := newFixture(t)
	f.window.w, f.window.h = 0, 0
	f.coord.Resize(0, 0)
	for i := 0; i < 3; i++ {
		ok, err := f.coord.Recover()
		if err != nil || ok {
			t.Fatalf("Recover while minimized = %v, %v", ok, err)
		}
	}
	if got := f.trace(); len(got) != 0 {
		t.Fatalf("minimized recovery touched the device: %v", got)
	}
	if f.coord.State() != StateOutOfDate {
		t.Fatalf("state = %s, want out of date", f.coord.State())
	}

	f.window.w, f.window.h = 640, 480
	f.dev.Caps.CurrentExtent = gpu.Extent2D{Width: 640, Height: 480}
	f.coord.Resize(640, 480)
	ok, err := f.coord.Recover()
	if err != nil || !ok {
		t.Fatalf("Recover after restore = %v, %v", ok, err)
	}
	if f.coord.Extent() != (gpu.Extent2D{Width: 640, Height: 480}) {
		t.Fatalf("extent = %v", f.coord.Extent())
	}
}

func TestTopologyRebuildKeepsSwapchain(t *testing.T) {
	f := newFixture(t)
	sc := f.coord.Swapchain()
	if err := f.coord.Rebuild(Change{Topology: true}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	want := []string{"WaitIdle", "destroy commands", "destroy descriptors", "reset descriptors", "reset commands"}
	if got := f.trace(); !slices.Equal(got, want) {
		t.Fatalf("rebuild trace %v, want %v", got, want)
	}
	if f.coord.Swapchain() != sc {
		t.Fatal("topology rebuild re-created the swapchain")
	}
}

func TestTopologyChangeWhileOutOfDateIsDeferred(t *testing.T) {
	f := newFixture(t)
	f.coord.Invalidate(gpu.StatusOutOfDate)
	if err := f.coord.Rebuild(Change{Topology: true}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got := f.trace(); len(got) != 0 {
		t.Fatalf("rebuild while out of date ran immediately: %v", got)
	}
	if _, err := f.coord.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !f.stages["descriptors"].last.Change.Topology {
		t.Fatal("deferred topology change was lost")
	}
}

func TestSurfaceLostRecreatesSurfaceFirst(t *testing.T) {
	f := newFixture(t)
	f.coord.Invalidate(gpu.StatusSurfaceLost)
	if _, err := f.coord.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if f.window.recreated != 1 {
		t.Fatalf("surface recreated %d times", f.window.recreated)
	}
	trace := f.trace()
	destroyed := slices.Index(trace, "DestroySwapchain")
	created := slices.Index(trace, "CreateSwapchain")
	if destroyed < 0 || created < destroyed {
		t.Fatalf("trace %v", trace)
	}
	if f.stages["renderpasses"].resets != 2 {
		t.Fatal("render passes not rebuilt for the new surface")
	}
}

func TestDestroyIsFinal(t *testing.T) {
	f := newFixture(t)
	f.coord.Destroy()
	f.coord.Destroy()
	if n := f.dev.Live("Buffer") + f.dev.Live("Swapchain") + f.dev.Live("ImageView"); n != 0 {
		t.Fatalf("%d objects alive after Destroy", n)
	}
	if _, err := f.coord.Recover(); err != ErrDestroyed {
		t.Fatalf("Recover after Destroy error = %v", err)
	}
	if v := f.dev.Violations(); len(v) != 0 {
		t.Fatalf("device violations: %v", v)
	}
}

func TestStatusError(t *testing.T) {
	if err := StatusError(gpu.StatusOK); err != nil {
		t.Fatalf("StatusError(ok) = %v", err)
	}
	for _, s := range []gpu.Status{gpu.StatusSuboptimal, gpu.StatusOutOfDate, gpu.StatusSurfaceLost} {
		if err := StatusError(s); !errors.Is(err, core.ErrTransientSurface) {
			t.Errorf("StatusError(%s) = %v, want ErrTransientSurface", s, err)
		}
	}
}
