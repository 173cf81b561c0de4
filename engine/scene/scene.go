package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// Mesh is an uploaded vertex/index buffer pair owned by the asset library.
type Mesh struct {
	Vertices   gpu.Buffer
	Indices    gpu.Buffer
	IndexCount uint32
}

// Texture is an uploaded, sampleable image owned by the asset library.
type Texture struct {
	View    gpu.ImageView
	Sampler gpu.Sampler
}

// RenderUnit is one drawable part of a model.
type RenderUnit struct {
	Name   string
	Mesh   Mesh
	Albedo Texture
}

type Instance struct {
	ID       uuid.UUID
	Position mgl32.Vec3
	// Euler angles in degrees, applied X then Y then Z.
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

func NewInstance(position, rotation, scale mgl32.Vec3) Instance {
	return Instance{ID: uuid.New(), Position: position, Rotation: rotation, Scale: scale}
}

// Model returns the instance's world matrix.
func (i Instance) Model() mgl32.Mat4 {
	rot := mgl32.HomogRotate3DZ(mgl32.DegToRad(i.Rotation.Z())).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(i.Rotation.Y()))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(i.Rotation.X())))
	return mgl32.Translate3D(i.Position.X(), i.Position.Y(), i.Position.Z()).
		Mul4(rot).
		Mul4(mgl32.Scale3D(i.Scale.X(), i.Scale.Y(), i.Scale.Z()))
}

type Model struct {
	ID        uuid.UUID
	Name      string
	Units     []RenderUnit
	Instances []Instance
}

// Light is a directional light casting shadows over a square region centred
// on Target.
type Light struct {
	ID        uuid.UUID
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Target    mgl32.Vec3
	// Half size of the orthographic shadow volume.
	Extent float32
	// Distance of the shadow camera from Target along -Direction.
	Distance float32
}

func NewLight(direction, color mgl32.Vec3, intensity float32) Light {
	return Light{
		ID:        uuid.New(),
		Direction: direction.Normalize(),
		Color:     color,
		Intensity: intensity,
		Extent:    10,
		Distance:  20,
	}
}

// ViewProj maps world space into the light's shadow map clip space.
func (l Light) ViewProj() mgl32.Mat4 {
	dir := l.Direction.Normalize()
	eye := l.Target.Sub(dir.Mul(l.Distance))
	up := mgl32.Vec3{0, 1, 0}
	if abs(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(eye, l.Target, up)
	proj := mgl32.Ortho(-l.Extent, l.Extent, -l.Extent, l.Extent, 0.1, 2*l.Distance)
	return vulkanClip.Mul4(proj).Mul4(view)
}

type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	// Vertical field of view in degrees.
	FovY float32
	Near float32
	Far  float32
}

func (c Camera) ViewProj(aspect float32) mgl32.Mat4 {
	view := mgl32.LookAtV(c.Position, c.Target, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(c.FovY), aspect, c.Near, c.Far)
	return vulkanClip.Mul4(proj).Mul4(view)
}

// mathgl produces OpenGL clip space; Vulkan has Y down and depth in [0,1].
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

type Scene struct {
	Camera Camera
	Models []*Model
	Lights []Light
}

func (s *Scene) Topology() Topology {
	t := Topology{
		Lights:    len(s.Lights),
		Units:     make([]int, len(s.Models)),
		Instances: make([]int, len(s.Models)),
	}
	for i, m := range s.Models {
		t.Units[i] = len(m.Units)
		t.Instances[i] = len(m.Instances)
	}
	return t
}

// AddInstance appends a copy of the model's last instance shifted by offset.
func (s *Scene) AddInstance(model int, offset mgl32.Vec3) bool {
	if model < 0 || model >= len(s.Models) {
		return false
	}
	m := s.Models[model]
	next := NewInstance(mgl32.Vec3{}, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})
	if n := len(m.Instances); n > 0 {
		last := m.Instances[n-1]
		next = NewInstance(last.Position.Add(offset), last.Rotation, last.Scale)
	}
	m.Instances = append(m.Instances, next)
	return true
}

func (s *Scene) AddLight(l Light) {
	s.Lights = append(s.Lights, l)
}

// RemoveLight drops the most recently added light.
func (s *Scene) RemoveLight() bool {
	if len(s.Lights) == 0 {
		return false
	}
	s.Lights = s.Lights[:len(s.Lights)-1]
	return true
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
