package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu/gputest"
)

func TestGenerateCubeWindsOutward(t *testing.T) {
	g := GenerateCube(2, 4, 6, 1, 1)
	if len(g.Vertices) != 24 || len(g.Indices) != 36 {
		t.Fatalf("cube has %d vertices and %d indices, want 24 and 36", len(g.Vertices), len(g.Indices))
	}
	for i := 0; i < len(g.Indices); i += 3 {
		a := mgl32.Vec3(g.Vertices[g.Indices[i]].Position)
		b := mgl32.Vec3(g.Vertices[g.Indices[i+1]].Position)
		c := mgl32.Vec3(g.Vertices[g.Indices[i+2]].Position)
		n := mgl32.Vec3(g.Vertices[g.Indices[i]].Normal)
		if b.Sub(a).Cross(c.Sub(a)).Dot(n) <= 0 {
			t.Errorf("triangle %d winds against its normal %v", i/3, n)
		}
	}
	for i, v := range g.Vertices {
		p := mgl32.Vec3(v.Position)
		if abs(p.X()) != 1 || abs(p.Y()) != 2 || abs(p.Z()) != 3 {
			t.Errorf("vertex %d at %v is not a corner of the box", i, p)
		}
	}
}

func TestGeneratePlane(t *testing.T) {
	g := GeneratePlane(10, 4, 10, 4)
	if len(g.Vertices) != 4 || len(g.Indices) != 6 {
		t.Fatalf("plane has %d vertices and %d indices, want 4 and 6", len(g.Vertices), len(g.Indices))
	}
	for i, v := range g.Vertices {
		if v.Position[1] != 0 {
			t.Errorf("vertex %d is off the ground: %v", i, v.Position)
		}
		if v.Normal != [3]float32{0, 1, 0} {
			t.Errorf("vertex %d normal = %v, want up", i, v.Normal)
		}
	}
}

func TestGenerateDefaultsNonPositiveSizes(t *testing.T) {
	g := GenerateCube(0, -1, 0, 0, 0)
	for _, v := range g.Vertices {
		for axis, c := range v.Position {
			if abs(c) != 0.5 {
				t.Fatalf("axis %d coordinate %v, want ±0.5", axis, c)
			}
		}
	}
}

func TestLibrarySharesUploads(t *testing.T) {
	dev := gputest.New()
	lib, err := NewLibrary(dev)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}

	a, err := lib.Mesh("cube", mgl32.Vec3{1, 1, 1})
	if err != nil {
		t.Fatalf("Mesh: %v", err)
	}
	b, err := lib.Mesh("cube", mgl32.Vec3{1, 1, 1})
	if err != nil {
		t.Fatalf("Mesh: %v", err)
	}
	if a != b {
		t.Errorf("identical mesh requests returned %v and %v", a, b)
	}
	if a.IndexCount != 36 {
		t.Errorf("cube index count = %d, want 36", a.IndexCount)
	}
	if _, err := lib.Mesh("plane", mgl32.Vec3{5, 1, 5}); err != nil {
		t.Fatalf("Mesh(plane): %v", err)
	}

	red := [4]float32{1, 0, 0, 1}
	t1, err := lib.Texture(red)
	if err != nil {
		t.Fatalf("Texture: %v", err)
	}
	t2, err := lib.Texture(red)
	if err != nil {
		t.Fatalf("Texture: %v", err)
	}
	if t1 != t2 {
		t.Errorf("identical texture requests returned %v and %v", t1, t2)
	}

	if got := dev.Live("Buffer"); got != 4 {
		t.Errorf("live buffers = %d, want 4", got)
	}
	if got := dev.Live("Image"); got != 1 {
		t.Errorf("live images = %d, want 1", got)
	}
	if got := len(dev.Names("UploadBuffer")); got != 4 {
		t.Errorf("buffer uploads = %d, want 4", got)
	}

	lib.Destroy()
	if got := dev.Live(""); got != 0 {
		t.Errorf("%d objects alive after Destroy", got)
	}
	if v := dev.Violations(); len(v) > 0 {
		t.Errorf("device violations: %v", v)
	}
}

func TestLibraryRejectsUnknownMesh(t *testing.T) {
	lib, err := NewLibrary(gputest.New())
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	defer lib.Destroy()
	if _, err := lib.Mesh("teapot", mgl32.Vec3{1, 1, 1}); !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("Mesh(teapot) error = %v, want ErrConfiguration", err)
	}
}

func TestRGBA8(t *testing.T) {
	got := rgba8([4]float32{1, 0.5, -1, 2})
	want := []byte{255, 128, 0, 255}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rgba8 = %v, want %v", got, want)
		}
	}
}

func TestWatcherPostsSceneChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.toml")
	if err := os.WriteFile(path, []byte("[camera]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := core.NewEventSystem()
	var changed []string
	events.Register(core.EVENT_CODE_SCENE_CHANGED, t, func(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
		changed = append(changed, data.Data.C[0])
		return true
	})

	w, err := NewWatcher(path, events)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[camera]\nfov = 60.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(changed) == 0 && time.Now().Before(deadline) {
		events.Dispatch()
		time.Sleep(10 * time.Millisecond)
	}
	if len(changed) == 0 {
		t.Fatal("no scene change posted")
	}
	want, _ := filepath.Abs(path)
	for _, p := range changed {
		if p != want {
			t.Errorf("change posted for %s, want %s", p, want)
		}
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
