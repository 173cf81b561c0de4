package shadow

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/spaghettifunk/penumbra/engine/renderer/descriptors"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/penumbra/engine/scene"
	"github.com/spaghettifunk/penumbra/engine/scene/scenetest"
)

var settings = Settings{
	MapSize:     512,
	DepthFormat: gpu.FormatD32Sfloat,
	Budget:      gpu.DescriptorBudget{MaxSets: 128, UniformBuffers: 128, CombinedImageSamplers: 128},
}

func setup(t *testing.T, shape scenetest.Shape) (*gputest.Device, *Orchestrator, *scene.Scene) {
	t.Helper()
	dev := gputest.New()
	s, err := scenetest.New(dev, shape)
	if err != nil {
		t.Fatalf("scenetest.New: %v", err)
	}
	o, err := NewOrchestrator(dev, settings, gputest.NewPasses(dev))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return dev, o, s
}

func filter(stream []string, prefixes ...string) []string {
	var out []string
	for _, c := range stream {
		for _, p := range prefixes {
			if strings.HasPrefix(c, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func TestResetShapesTensorAndPasses(t *testing.T) {
	dev, o, s := setup(t, scenetest.Shape{Units: []int{1}, Instances: []int{2}, Lights: 1})
	if err := o.Reset(3, s); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := o.Sets().Len(); got != 3 {
		t.Fatalf("shadow tensor size = %d, want 1x1x1x3 = 3", got)
	}
	want := descriptors.ShadowIndex{Light: 1, Model: 1, Unit: 1, Image: 3}
	if o.Sets().Shape() != want {
		t.Fatalf("shadow shape = %s, want %s", o.Sets().Shape(), want)
	}
	if len(o.Passes()) != 1 {
		t.Fatalf("%d passes, want 1", len(o.Passes()))
	}
	for image := uint32(0); image < 3; image++ {
		cbs := o.Commands(image)
		if len(cbs) != 1 {
			t.Fatalf("image %d: %d shadow command buffers", image, len(cbs))
		}
		stream := dev.Stream(cbs[0])
		if n := len(filter(stream, "DrawIndexed")); n != 2 {
			t.Fatalf("image %d: %d draws, want one per instance", image, n)
		}
		set, _ := o.Sets().At(descriptors.ShadowIndex{Image: descriptors.ImageAxis(image)})
		if binds := filter(stream, "BindDescriptorSet"); len(binds) != 1 || !strings.HasSuffix(binds[0], fmt.Sprintf("set=%d", set)) {
			t.Fatalf("image %d binds %v, want set %d", image, binds, set)
		}
		writes := dev.DescriptorWrites(set)
		if len(writes) != 1 || writes[0].Buffer != o.Passes()[0].Uniform(image) {
			t.Fatalf("image %d set writes %v, want the light uniform of that image", image, writes)
		}
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("device violations: %v", v)
	}
}

func TestPushConstantIsLightTimesModel(t *testing.T) {
	dev, o, s := setup(t, scenetest.Shape{Units: []int{1}, Instances: []int{2}, Lights: 1})
	if err := o.Reset(1, s); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	lvp := s.Lights[0].ViewProj()
	pushes := filter(dev.Stream(o.Commands(0)[0]), "PushConstants")
	for i, inst := range s.Models[0].Instances {
		mvp := lvp.Mul4(inst.Model())
		want := fmt.Sprintf("%v", mvp[:])
		if !strings.HasSuffix(pushes[i], want) {
			t.Fatalf("push %d = %s, want %s", i, pushes[i], want)
		}
	}
}

func TestRecordingVisitsModelsUnitsInstances(t *testing.T) {
	dev, o, s := setup(t, scenetest.Shape{Units: []int{2, 1}, Instances: []int{1, 3}, Lights: 2})
	if err := o.Reset(2, s); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	// Units are padded to the largest model.
	if got := o.Sets().Len(); got != 2*2*2*2 {
		t.Fatalf("shadow tensor size = %d, want 16", got)
	}

	var want []string
	for _, m := range s.Models {
		for _, u := range m.Units {
			want = append(want, fmt.Sprintf("BindVertexBuffer %d", u.Mesh.Vertices))
			for range m.Instances {
				want = append(want, "DrawIndexed 36 1")
			}
		}
	}
	for _, cb := range o.Commands(1) {
		got := filter(dev.Stream(cb), "BindVertexBuffer", "DrawIndexed")
		if !slices.Equal(got, want) {
			t.Fatalf("visit order %v, want %v", got, want)
		}
	}
}

func TestRecordIsReproducible(t *testing.T) {
	dev, o, s := setup(t, scenetest.Shape{Units: []int{2, 1}, Instances: []int{2, 2}, Lights: 2})
	if err := o.Reset(3, s); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	before := map[gpu.CommandBuffer][]string{}
	for image := uint32(0); image < 3; image++ {
		for _, cb := range o.Commands(image) {
			before[cb] = dev.Stream(cb)
		}
	}
	if err := o.Record(s); err != nil {
		t.Fatalf("Record: %v", err)
	}
	for cb, stream := range before {
		if !slices.Equal(stream, dev.Stream(cb)) {
			t.Fatalf("command buffer %d recorded differently the second time", cb)
		}
	}
}

func TestPassDestroyOrder(t *testing.T) {
	dev, o, s := setup(t, scenetest.Shape{Units: []int{1}, Instances: []int{1}, Lights: 1})
	if err := o.Reset(2, s); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	dev.ClearLog()
	o.Release()

	names := dev.Names("Destroy", "ResetDescriptorPool")
	want := []string{
		"DestroyCommandBuffer", "DestroyCommandBuffer",
		"ResetDescriptorPool",
		"DestroyFramebuffer", "DestroyImageView", "DestroyImage",
		"DestroyBuffer", "DestroyBuffer",
	}
	if !slices.Equal(names, want) {
		t.Fatalf("release order %v, want %v", names, want)
	}

	o.Destroy()
	o.Destroy()
	if v := dev.Violations(); len(v) != 0 {
		t.Fatalf("device violations: %v", v)
	}
	if dev.Live("Sampler") != 1 || dev.Live("DescriptorPool") != 0 {
		t.Fatalf("after Destroy: %d samplers (the scene's texture only), %d pools", dev.Live("Sampler"), dev.Live("DescriptorPool"))
	}
}

func TestResetWithoutLights(t *testing.T) {
	_, o, s := setup(t, scenetest.Shape{Units: []int{1}, Instances: []int{1}})
	if err := o.Reset(3, s); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if o.Sets().Len() != 0 || len(o.Commands(0)) != 0 {
		t.Fatalf("no lights but %d sets and %d command buffers", o.Sets().Len(), len(o.Commands(0)))
	}
}
