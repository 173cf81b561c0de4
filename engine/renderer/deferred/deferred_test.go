package deferred

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/spaghettifunk/penumbra/engine/containers"
	"github.com/spaghettifunk/penumbra/engine/renderer/descriptors"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/penumbra/engine/renderer/shadow"
	"github.com/spaghettifunk/penumbra/engine/renderer/swapchain"
	"github.com/spaghettifunk/penumbra/engine/scene"
	"github.com/spaghettifunk/penumbra/engine/scene/scenetest"
)

var budget = gpu.DescriptorBudget{MaxSets: 64, UniformBuffers: 64, CombinedImageSamplers: 256}

type fixture struct {
	dev      *gputest.Device
	passes   *gputest.Passes
	scene    *scene.Scene
	target   swapchain.Target
	targets  *Targets
	uniforms *Uniforms
	shadows  *shadow.Orchestrator
	bindings *Bindings
	commands *Commands
}

func newTarget(t *testing.T, dev *gputest.Device, images int) swapchain.Target {
	t.Helper()
	target := swapchain.Target{
		Format:      gpu.FormatB8G8R8A8Unorm,
		DepthFormat: gpu.FormatD32Sfloat,
		Extent:      gpu.Extent2D{Width: 640, Height: 480},
		Change:      swapchain.Everything,
	}
	for i := 0; i < images; i++ {
		img, err := dev.CreateImage(gpu.ImageInfo{Extent: target.Extent, Format: target.Format, Usage: gpu.ImageUsageColorAttachment})
		if err != nil {
			t.Fatal(err)
		}
		view, err := dev.CreateImageView(img, target.Format, gpu.AspectColor)
		if err != nil {
			t.Fatal(err)
		}
		target.Images = append(target.Images, img)
		target.Views = append(target.Views, view)
	}
	return target
}

// setup builds every main pass stage in coordinator order for a scene of
// two models (1 unit x 2 instances, 2 units x 1 instance) and two lights.
func setup(t *testing.T) *fixture {
	t.Helper()
	dev := gputest.New()
	s, err := scenetest.New(dev, scenetest.Shape{Units: []int{1, 2}, Instances: []int{2, 1}, Lights: 2})
	if err != nil {
		t.Fatalf("scenetest.New: %v", err)
	}
	f := &fixture{dev: dev, passes: gputest.NewPasses(dev), scene: s, target: newTarget(t, dev, 3)}
	if f.targets, err = NewTargets(dev); err != nil {
		t.Fatalf("NewTargets: %v", err)
	}
	f.uniforms = NewUniforms(dev)
	if f.shadows, err = shadow.NewOrchestrator(dev, shadow.Settings{MapSize: 256, DepthFormat: gpu.FormatD32Sfloat, Budget: budget}, f.passes); err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if f.bindings, err = NewBindings(dev, budget); err != nil {
		t.Fatalf("NewBindings: %v", err)
	}
	f.commands = NewCommands(dev)

	n := f.target.ImageCount()
	if err := f.targets.Reset(f.target, f.passes); err != nil {
		t.Fatalf("Targets.Reset: %v", err)
	}
	if err := f.uniforms.Reset(n, s); err != nil {
		t.Fatalf("Uniforms.Reset: %v", err)
	}
	if err := f.shadows.Reset(n, s); err != nil {
		t.Fatalf("Orchestrator.Reset: %v", err)
	}
	if err := f.bindings.Reset(n, s, Sources{Passes: f.passes, Uniforms: f.uniforms, Targets: f.targets, Shadows: f.shadows}); err != nil {
		t.Fatalf("Bindings.Reset: %v", err)
	}
	if err := f.commands.Reset(n, s, f.passes, f.targets, f.bindings); err != nil {
		t.Fatalf("Commands.Reset: %v", err)
	}
	return f
}

func TestTargetsFramebufferPerImage(t *testing.T) {
	f := setup(t)
	if f.targets.Extent() != f.target.Extent {
		t.Fatalf("extent = %v, want %v", f.targets.Extent(), f.target.Extent)
	}
	seen := map[gpu.Framebuffer]bool{f.targets.GBuffer(): true}
	for i := uint32(0); i < f.target.ImageCount(); i++ {
		fb := f.targets.Lighting(i)
		if fb == 0 || seen[fb] {
			t.Fatalf("lighting framebuffer %d = %d, want a distinct handle", i, fb)
		}
		seen[fb] = true
	}

	f.dev.ClearLog()
	f.targets.Release()
	names := f.dev.Names("Destroy")
	lastFramebuffer := slices.Index(names, "DestroyImageView") - 1
	if lastFramebuffer < 0 || names[lastFramebuffer] != "DestroyFramebuffer" {
		t.Fatalf("release order = %v, want framebuffers before views", names)
	}
	if got := len(slices.DeleteFunc(names, func(n string) bool { return n != "DestroyFramebuffer" })); got != 4 {
		t.Fatalf("destroyed %d framebuffers, want g-buffer + 3 lighting", got)
	}
}

func TestUniformsPerInstanceAndImage(t *testing.T) {
	f := setup(t)
	seen := map[gpu.Buffer]bool{}
	for m, model := range f.scene.Models {
		for i := range model.Instances {
			for image := uint32(0); image < 3; image++ {
				buf, err := f.uniforms.Buffer(m, i, image)
				if err != nil {
					t.Fatalf("Buffer(%d, %d, %d): %v", m, i, image, err)
				}
				if seen[buf] {
					t.Fatalf("buffer %d shared between instances or images", buf)
				}
				seen[buf] = true
			}
		}
	}
	if len(seen) != 9 {
		t.Fatalf("uniform buffers = %d, want (2+1) instances x 3 images", len(seen))
	}
	if _, err := f.uniforms.Buffer(2, 0, 0); !errors.Is(err, containers.ErrIndexOutOfRange) {
		t.Fatalf("Buffer(model 2) = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := f.uniforms.Buffer(0, 2, 0); !errors.Is(err, containers.ErrIndexOutOfRange) {
		t.Fatalf("Buffer(instance 2) = %v, want ErrIndexOutOfRange", err)
	}

	f.dev.ClearLog()
	if err := f.uniforms.Update(1, f.scene, 4.0/3.0); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := len(f.dev.Names("WriteBuffer")); got != 3 {
		t.Fatalf("Update wrote %d buffers, want one per instance", got)
	}
}

func TestMainSetsBindInstanceUniformAndAlbedo(t *testing.T) {
	f := setup(t)
	main := f.bindings.Main(1)
	want := descriptors.MainIndex{Instance: 1, Unit: 2, Image: 3}
	if main.Shape() != want {
		t.Fatalf("model 1 shape = %s, want %s", main.Shape(), want)
	}
	idx := descriptors.MainIndex{Instance: 0, Unit: 1, Image: 2}
	set, err := main.At(idx)
	if err != nil {
		t.Fatalf("At(%s): %v", idx, err)
	}
	writes := f.dev.DescriptorWrites(set)
	if len(writes) != 2 {
		t.Fatalf("writes = %v, want uniform + albedo", writes)
	}
	buf, _ := f.uniforms.Buffer(1, 0, 2)
	if writes[0].Kind != gpu.DescriptorUniformBuffer || writes[0].Buffer != buf || writes[0].Range != InstanceUniformSize {
		t.Fatalf("binding 0 = %+v, want instance uniform %d", writes[0], buf)
	}
	albedo := f.scene.Models[1].Units[1].Albedo
	if writes[1].View != albedo.View || writes[1].Sampler != albedo.Sampler {
		t.Fatalf("binding 1 = %+v, want albedo of unit 1", writes[1])
	}
}

func TestLightingSetsBindGBufferAndShadowMap(t *testing.T) {
	f := setup(t)
	if got := f.bindings.Lighting().Len(); got != 6 {
		t.Fatalf("lighting sets = %d, want 2 lights x 3 images", got)
	}
	set, err := f.bindings.Lighting().At(descriptors.LightingIndex{Light: 1, Image: 0})
	if err != nil {
		t.Fatal(err)
	}
	writes := f.dev.DescriptorWrites(set)
	if len(writes) != 5 {
		t.Fatalf("writes = %v, want 5 bindings", writes)
	}
	pass := f.shadows.Passes()[1]
	if writes[0].Buffer != pass.Uniform(0) {
		t.Fatalf("binding 0 = %+v, want light 1 uniform", writes[0])
	}
	for b, attachment := range []int{AttachmentAlbedo, AttachmentNormal, AttachmentPosition} {
		if writes[b+1].View != f.targets.Attachment(attachment) {
			t.Fatalf("binding %d = %+v, want g-buffer attachment %d", b+1, writes[b+1], attachment)
		}
	}
	if writes[4].View != pass.ShadowMap() || writes[4].Sampler != f.shadows.Sampler() {
		t.Fatalf("binding 4 = %+v, want light 1 shadow map", writes[4])
	}
}

func TestCommandsDrawEveryInstanceAndLight(t *testing.T) {
	f := setup(t)
	if f.commands.Len() != 3 {
		t.Fatalf("command buffers = %d, want 3", f.commands.Len())
	}
	stream := f.dev.Stream(f.commands.Command(2))
	count := func(prefix string) int {
		n := 0
		for _, c := range stream {
			if strings.HasPrefix(c, prefix) {
				n++
			}
		}
		return n
	}
	// model 0: 1 unit x 2 instances, model 1: 2 units x 1 instance
	if got := count("DrawIndexed 36 1"); got != 4 {
		t.Fatalf("indexed draws = %d, want 4\n%s", got, strings.Join(stream, "\n"))
	}
	if got := count("Draw 3 1"); got != 2 {
		t.Fatalf("lighting draws = %d, want one per light", got)
	}
	if got := count("BeginRenderPass"); got != 2 {
		t.Fatalf("render passes = %d, want g-buffer + lighting", got)
	}
	if !strings.HasSuffix(stream[0], "clears=4") {
		t.Fatalf("g-buffer pass = %q, want 4 clear values", stream[0])
	}
	if v := f.dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestTopologyResetInvalidatesOldSets(t *testing.T) {
	f := setup(t)
	old, _ := f.bindings.Main(0).At(descriptors.MainIndex{})

	f.scene.Models = f.scene.Models[:1]
	f.scene.AddInstance(0, [3]float32{2, 0, 0})
	f.commands.Release()
	f.bindings.Release()
	if err := f.uniforms.Reset(3, f.scene); err != nil {
		t.Fatal(err)
	}
	if err := f.bindings.Reset(3, f.scene, Sources{Passes: f.passes, Uniforms: f.uniforms, Targets: f.targets, Shadows: f.shadows}); err != nil {
		t.Fatalf("Bindings.Reset: %v", err)
	}
	if f.dev.SetIsLive(old) {
		t.Fatal("set from before the reset is still live")
	}
	if got := f.bindings.Main(0).Len(); got != 9 {
		t.Fatalf("model 0 sets = %d, want 3 instances x 1 unit x 3 images", got)
	}
	if err := f.commands.Reset(3, f.scene, f.passes, f.targets, f.bindings); err != nil {
		t.Fatalf("Commands.Reset: %v", err)
	}
	if v := f.dev.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}
