package deferred

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/containers"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// InstanceUniform is the std140 block read by the G-buffer vertex shader.
type InstanceUniform struct {
	Model    mgl32.Mat4
	ViewProj mgl32.Mat4
}

const InstanceUniformSize = uint64(unsafe.Sizeof(InstanceUniform{}))

// Uniforms keeps one host-visible instance uniform buffer per (instance,
// image) for every model, so a frame never writes a buffer that another
// frame in flight still reads.
type Uniforms struct {
	device gpu.ResourceAllocator
	models []*containers.Tensor[gpu.Buffer]
}

func NewUniforms(device gpu.ResourceAllocator) *Uniforms {
	return &Uniforms{device: device}
}

func (u *Uniforms) Reset(imageCount uint32, s *scene.Scene) error {
	u.Release()
	for m, model := range s.Models {
		t := containers.NewTensor[gpu.Buffer](len(model.Instances), int(imageCount))
		u.models = append(u.models, t)
		for i := range t.Values() {
			buf, err := u.device.CreateBuffer(InstanceUniformSize, gpu.BufferUsageUniform, true)
			if err != nil {
				u.Release()
				return fmt.Errorf("creating instance uniform buffer for model %d: %w", m, err)
			}
			t.Values()[i] = buf
		}
	}
	return nil
}

// Buffer returns the uniform buffer of one instance for one swapchain image.
func (u *Uniforms) Buffer(model, instance int, image uint32) (gpu.Buffer, error) {
	if model < 0 || model >= len(u.models) {
		return 0, fmt.Errorf("instance uniforms of model %d: %w", model, containers.ErrIndexOutOfRange)
	}
	return u.models[model].At(instance, int(image))
}

// Update writes the current matrices of every instance into the buffers of
// one swapchain image.
func (u *Uniforms) Update(image uint32, s *scene.Scene, aspect float32) error {
	viewProj := s.Camera.ViewProj(aspect)
	for m, model := range s.Models {
		for i, inst := range model.Instances {
			buf, err := u.Buffer(m, i, image)
			if err != nil {
				return err
			}
			data := []InstanceUniform{{Model: inst.Model(), ViewProj: viewProj}}
			if err := u.device.WriteBuffer(buf, 0, gpu.Bytes(data)); err != nil {
				return fmt.Errorf("writing instance uniform (%d, %d, %d): %w", m, i, image, err)
			}
		}
	}
	return nil
}

func (u *Uniforms) Release() {
	for _, t := range u.models {
		for _, buf := range t.Values() {
			if buf != 0 {
				u.device.DestroyBuffer(buf)
			}
		}
		t.Clear()
	}
	u.models = nil
}
