package scene

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

type stubResolver struct {
	meshes   []string
	textures int
}

func (r *stubResolver) Mesh(kind string, size mgl32.Vec3) (Mesh, error) {
	r.meshes = append(r.meshes, kind)
	n := gpu.Buffer(len(r.meshes))
	return Mesh{Vertices: n * 10, Indices: n*10 + 1, IndexCount: 36}, nil
}

func (r *stubResolver) Texture(color [4]float32) (Texture, error) {
	r.textures++
	return Texture{View: gpu.ImageView(r.textures), Sampler: 1}, nil
}

const sceneFile = `
[camera]
position = [0.0, 3.0, 8.0]
fov = 60.0

[[models]]
name = "crates"

  [[models.units]]
  name = "box"
  mesh = "cube"
  color = [1.0, 0.0, 0.0, 1.0]

  [[models.units]]
  name = "lid"
  mesh = "plane"

  [[models.instances]]
  position = [1.0, 0.0, 0.0]

  [[models.instances]]
  position = [-1.0, 0.0, 0.0]
  rotation = [0.0, 90.0, 0.0]

[[lights]]
direction = [0.0, -1.0, 0.0]
intensity = 2.0

[[lights]]
direction = [1.0, -1.0, 0.0]
`

func TestBuildFromDescription(t *testing.T) {
	desc, err := ParseDescription([]byte(sceneFile))
	if err != nil {
		t.Fatalf("ParseDescription: %v", err)
	}
	r := &stubResolver{}
	s, err := Build(desc, r)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	top := s.Topology()
	want := Topology{Lights: 2, Units: []int{2}, Instances: []int{2}}
	if !top.Equal(want) {
		t.Fatalf("Topology = %+v, want %+v", top, want)
	}
	if top.MaxUnits() != 2 || top.Models() != 1 {
		t.Fatalf("MaxUnits=%d Models=%d", top.MaxUnits(), top.Models())
	}
	if len(r.meshes) != 2 || r.meshes[0] != "cube" || r.meshes[1] != "plane" {
		t.Fatalf("resolved meshes %v", r.meshes)
	}
	if s.Camera.FovY != 60 || s.Camera.Far != 100 {
		t.Fatalf("camera = %+v", s.Camera)
	}
	m := s.Models[0]
	if m.Instances[0].ID == m.Instances[1].ID {
		t.Fatal("instances share an identifier")
	}
	if m.Instances[1].Scale != (mgl32.Vec3{1, 1, 1}) {
		t.Fatalf("default scale = %v", m.Instances[1].Scale)
	}
	if s.Lights[0].Intensity != 2 || s.Lights[1].Intensity != 1 {
		t.Fatalf("light intensities %v, %v", s.Lights[0].Intensity, s.Lights[1].Intensity)
	}
}

func TestParseDescriptionRejectsGarbage(t *testing.T) {
	if _, err := ParseDescription([]byte("[[models]\nname=")); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestTopologyEdits(t *testing.T) {
	s, err := Build(Default(), &stubResolver{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	before := s.Topology()
	if !s.AddInstance(1, mgl32.Vec3{2, 0, 0}) {
		t.Fatal("AddInstance failed")
	}
	after := s.Topology()
	if before.Equal(after) || after.Instances[1] != before.Instances[1]+1 {
		t.Fatalf("topology %+v -> %+v", before, after)
	}
	added := s.Models[1].Instances[len(s.Models[1].Instances)-1]
	if added.Position != (mgl32.Vec3{3.5, 0.5, 0}) {
		t.Fatalf("added instance at %v", added.Position)
	}
	if s.AddInstance(7, mgl32.Vec3{}) {
		t.Fatal("AddInstance on a missing model succeeded")
	}

	s.AddLight(NewLight(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 1))
	if s.Topology().Lights != 2 {
		t.Fatalf("lights = %d", s.Topology().Lights)
	}
	s.RemoveLight()
	s.RemoveLight()
	if s.RemoveLight() {
		t.Fatal("RemoveLight on an empty list succeeded")
	}
}

func TestLightViewProjCentresTarget(t *testing.T) {
	for _, dir := range []mgl32.Vec3{{0, -1, 0}, {-0.4, -1, -0.3}, {1, 0, 0}} {
		l := NewLight(dir, mgl32.Vec3{1, 1, 1}, 1)
		l.Target = mgl32.Vec3{2, 0, -1}
		p := l.ViewProj().Mul4x1(l.Target.Vec4(1))
		p = p.Mul(1 / p.W())
		if abs(p.X()) > 1e-4 || abs(p.Y()) > 1e-4 {
			t.Errorf("direction %v: target projects to %v, want the centre", dir, p)
		}
		if p.Z() < 0 || p.Z() > 1 {
			t.Errorf("direction %v: target depth %v outside [0,1]", dir, p.Z())
		}
	}
}

func TestInstanceModelTranslates(t *testing.T) {
	i := NewInstance(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 90, 0}, mgl32.Vec3{2, 2, 2})
	origin := i.Model().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !origin.Vec3().ApproxEqual(mgl32.Vec3{1, 2, 3}) {
		t.Fatalf("origin maps to %v", origin)
	}
}
