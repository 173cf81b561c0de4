package scene

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/penumbra/engine/core"
)

// Description is the on-disk form of a scene.
type Description struct {
	Camera CameraDescription  `toml:"camera"`
	Models []ModelDescription `toml:"models"`
	Lights []LightDescription `toml:"lights"`
}

type CameraDescription struct {
	Position [3]float32 `toml:"position"`
	Target   [3]float32 `toml:"target"`
	Fov      float32    `toml:"fov"`
	Near     float32    `toml:"near"`
	Far      float32    `toml:"far"`
}

type ModelDescription struct {
	Name      string                `toml:"name"`
	Units     []UnitDescription     `toml:"units"`
	Instances []InstanceDescription `toml:"instances"`
}

type UnitDescription struct {
	Name string `toml:"name"`
	// Procedural mesh kind, "cube" or "plane".
	Mesh  string     `toml:"mesh"`
	Size  [3]float32 `toml:"size"`
	Color [4]float32 `toml:"color"`
}

type InstanceDescription struct {
	Position [3]float32 `toml:"position"`
	Rotation [3]float32 `toml:"rotation"`
	Scale    [3]float32 `toml:"scale"`
}

type LightDescription struct {
	Direction [3]float32 `toml:"direction"`
	Color     [3]float32 `toml:"color"`
	Intensity float32    `toml:"intensity"`
	Target    [3]float32 `toml:"target"`
	Extent    float32    `toml:"extent"`
}

// Resolver turns unit descriptions into uploaded GPU resources.
type Resolver interface {
	Mesh(kind string, size mgl32.Vec3) (Mesh, error)
	Texture(color [4]float32) (Texture, error)
}

func LoadDescription(path string) (Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Description{}, fmt.Errorf("reading scene %s: %w", path, err)
	}
	return ParseDescription(data)
}

func ParseDescription(data []byte) (Description, error) {
	var desc Description
	if err := toml.Unmarshal(data, &desc); err != nil {
		return Description{}, fmt.Errorf("%w: parsing scene: %s", core.ErrConfiguration, err)
	}
	return desc, nil
}

// Build resolves every unit and returns the runtime scene.
func Build(desc Description, r Resolver) (*Scene, error) {
	s := &Scene{
		Camera: Camera{
			Position: desc.Camera.Position,
			Target:   desc.Camera.Target,
			FovY:     orDefault(desc.Camera.Fov, 45),
			Near:     orDefault(desc.Camera.Near, 0.1),
			Far:      orDefault(desc.Camera.Far, 100),
		},
	}
	if s.Camera.Position == s.Camera.Target {
		s.Camera.Position = mgl32.Vec3{0, 5, 12}
	}

	for _, md := range desc.Models {
		m := &Model{ID: uuid.New(), Name: md.Name}
		for _, ud := range md.Units {
			size := mgl32.Vec3(ud.Size)
			if size == (mgl32.Vec3{}) {
				size = mgl32.Vec3{1, 1, 1}
			}
			mesh, err := r.Mesh(ud.Mesh, size)
			if err != nil {
				return nil, fmt.Errorf("model %s unit %s: %w", md.Name, ud.Name, err)
			}
			color := ud.Color
			if color == ([4]float32{}) {
				color = [4]float32{1, 1, 1, 1}
			}
			tex, err := r.Texture(color)
			if err != nil {
				return nil, fmt.Errorf("model %s unit %s: %w", md.Name, ud.Name, err)
			}
			m.Units = append(m.Units, RenderUnit{Name: ud.Name, Mesh: mesh, Albedo: tex})
		}
		for _, id := range md.Instances {
			scale := mgl32.Vec3(id.Scale)
			if scale == (mgl32.Vec3{}) {
				scale = mgl32.Vec3{1, 1, 1}
			}
			m.Instances = append(m.Instances, NewInstance(id.Position, id.Rotation, scale))
		}
		s.Models = append(s.Models, m)
	}

	for _, ld := range desc.Lights {
		dir := mgl32.Vec3(ld.Direction)
		if dir.Len() == 0 {
			return nil, fmt.Errorf("%w: light with zero direction", core.ErrConfiguration)
		}
		l := NewLight(dir, ld.Color, orDefault(ld.Intensity, 1))
		l.Target = ld.Target
		l.Extent = orDefault(ld.Extent, l.Extent)
		s.Lights = append(s.Lights, l)
	}

	core.LogInfo("scene built: %d models, %d lights", len(s.Models), len(s.Lights))
	return s, nil
}

// Default is the scene used when no file is configured: a floor, two
// crates and one sun.
func Default() Description {
	return Description{
		Camera: CameraDescription{Position: [3]float32{0, 6, 12}, Fov: 45, Near: 0.1, Far: 100},
		Models: []ModelDescription{
			{
				Name:      "floor",
				Units:     []UnitDescription{{Name: "slab", Mesh: "plane", Size: [3]float32{20, 1, 20}, Color: [4]float32{0.6, 0.6, 0.6, 1}}},
				Instances: []InstanceDescription{{}},
			},
			{
				Name:  "crate",
				Units: []UnitDescription{{Name: "box", Mesh: "cube", Size: [3]float32{1, 1, 1}, Color: [4]float32{0.8, 0.5, 0.2, 1}}},
				Instances: []InstanceDescription{
					{Position: [3]float32{-1.5, 0.5, 0}},
					{Position: [3]float32{1.5, 0.5, 0}, Rotation: [3]float32{0, 30, 0}},
				},
			},
		},
		Lights: []LightDescription{
			{Direction: [3]float32{-0.4, -1, -0.3}, Color: [3]float32{1, 0.95, 0.9}, Intensity: 1},
		},
	}
}

func orDefault(v, def float32) float32 {
	if v == 0 {
		return def
	}
	return v
}
