// Package scenetest builds scenes of a given shape on top of a test device.
package scenetest

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// Resolver creates one buffer pair per mesh and one image, view and sampler
// per texture.
type Resolver struct {
	Device gpu.ResourceAllocator
}

func (r Resolver) Mesh(kind string, size mgl32.Vec3) (scene.Mesh, error) {
	v, err := r.Device.CreateBuffer(64, gpu.BufferUsageVertex, false)
	if err != nil {
		return scene.Mesh{}, err
	}
	i, err := r.Device.CreateBuffer(64, gpu.BufferUsageIndex, false)
	if err != nil {
		return scene.Mesh{}, err
	}
	return scene.Mesh{Vertices: v, Indices: i, IndexCount: 36}, nil
}

func (r Resolver) Texture(color [4]float32) (scene.Texture, error) {
	img, err := r.Device.CreateImage(gpu.ImageInfo{Extent: gpu.Extent2D{Width: 1, Height: 1}, Format: gpu.FormatR8G8B8A8Unorm, Usage: gpu.ImageUsageSampled})
	if err != nil {
		return scene.Texture{}, err
	}
	view, err := r.Device.CreateImageView(img, gpu.FormatR8G8B8A8Unorm, gpu.AspectColor)
	if err != nil {
		return scene.Texture{}, err
	}
	sampler, err := r.Device.CreateSampler()
	if err != nil {
		return scene.Texture{}, err
	}
	return scene.Texture{View: view, Sampler: sampler}, nil
}

// Shape lists, per model, how many units and instances it has.
type Shape struct {
	Units     []int
	Instances []int
	Lights    int
}

// New builds a scene with the given shape. Instances are spread along X so
// that every model matrix is distinct.
func New(dev gpu.ResourceAllocator, shape Shape) (*scene.Scene, error) {
	var desc scene.Description
	desc.Camera = scene.CameraDescription{Position: [3]float32{0, 4, 10}}
	for m := range shape.Units {
		md := scene.ModelDescription{Name: fmt.Sprintf("model-%d", m)}
		for u := 0; u < shape.Units[m]; u++ {
			md.Units = append(md.Units, scene.UnitDescription{Name: fmt.Sprintf("unit-%d", u), Mesh: "cube"})
		}
		for i := 0; i < shape.Instances[m]; i++ {
			md.Instances = append(md.Instances, scene.InstanceDescription{Position: [3]float32{float32(i) * 2, 0, float32(m) * 2}})
		}
		desc.Models = append(desc.Models, md)
	}
	for l := 0; l < shape.Lights; l++ {
		desc.Lights = append(desc.Lights, scene.LightDescription{Direction: [3]float32{float32(l), -1, 0}, Intensity: 1})
	}
	return scene.Build(desc, Resolver{Device: dev})
}
