package assets

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

type Device interface {
	gpu.ResourceAllocator
	gpu.Uploader
}

type meshKey struct {
	kind string
	size mgl32.Vec3
}

type texture struct {
	image gpu.Image
	view  gpu.ImageView
}

// Library uploads procedural meshes and solid-colour textures and hands
// them to scene building. Identical requests share one upload. Everything
// lives until Destroy.
type Library struct {
	device Device

	mu       sync.Mutex
	sampler  gpu.Sampler
	meshes   map[meshKey]scene.Mesh
	textures map[[4]float32]texture
}

var _ scene.Resolver = (*Library)(nil)

func NewLibrary(device Device) (*Library, error) {
	sampler, err := device.CreateSampler()
	if err != nil {
		return nil, fmt.Errorf("creating texture sampler: %w", err)
	}
	return &Library{
		device:   device,
		sampler:  sampler,
		meshes:   make(map[meshKey]scene.Mesh),
		textures: make(map[[4]float32]texture),
	}, nil
}

// Mesh returns the uploaded mesh of the given kind ("cube" or "plane").
func (l *Library) Mesh(kind string, size mgl32.Vec3) (scene.Mesh, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := meshKey{kind: kind, size: size}
	if m, ok := l.meshes[key]; ok {
		return m, nil
	}

	var g Geometry
	switch kind {
	case "cube", "":
		g = GenerateCube(size.X(), size.Y(), size.Z(), 1, 1)
	case "plane":
		g = GeneratePlane(size.X(), size.Z(), size.X(), size.Z())
	default:
		return scene.Mesh{}, fmt.Errorf("%w: unknown mesh kind %q", core.ErrConfiguration, kind)
	}

	m, err := l.upload(g)
	if err != nil {
		return scene.Mesh{}, fmt.Errorf("uploading %s mesh: %w", kind, err)
	}
	l.meshes[key] = m
	core.LogDebug("mesh uploaded: %s %v (%d vertices, %d indices)", kind, size, len(g.Vertices), len(g.Indices))
	return m, nil
}

func (l *Library) upload(g Geometry) (scene.Mesh, error) {
	vertices := gpu.Bytes(g.Vertices)
	indices := gpu.Bytes(g.Indices)

	vb, err := l.device.CreateBuffer(uint64(len(vertices)), gpu.BufferUsageVertex|gpu.BufferUsageTransferDst, false)
	if err != nil {
		return scene.Mesh{}, err
	}
	if err := l.device.UploadBuffer(vb, vertices); err != nil {
		l.device.DestroyBuffer(vb)
		return scene.Mesh{}, err
	}

	ib, err := l.device.CreateBuffer(uint64(len(indices)), gpu.BufferUsageIndex|gpu.BufferUsageTransferDst, false)
	if err != nil {
		l.device.DestroyBuffer(vb)
		return scene.Mesh{}, err
	}
	if err := l.device.UploadBuffer(ib, indices); err != nil {
		l.device.DestroyBuffer(ib)
		l.device.DestroyBuffer(vb)
		return scene.Mesh{}, err
	}

	return scene.Mesh{Vertices: vb, Indices: ib, IndexCount: uint32(len(g.Indices))}, nil
}

// Texture returns a 1x1 texture of the given linear RGBA colour.
func (l *Library) Texture(color [4]float32) (scene.Texture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.textures[color]; ok {
		return scene.Texture{View: t.view, Sampler: l.sampler}, nil
	}

	extent := gpu.Extent2D{Width: 1, Height: 1}
	img, err := l.device.CreateImage(gpu.ImageInfo{
		Extent: extent,
		Format: gpu.FormatR8G8B8A8Unorm,
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	})
	if err != nil {
		return scene.Texture{}, fmt.Errorf("creating texture image: %w", err)
	}
	if err := l.device.UploadImage(img, extent, rgba8(color)); err != nil {
		l.device.DestroyImage(img)
		return scene.Texture{}, fmt.Errorf("uploading texture: %w", err)
	}
	view, err := l.device.CreateImageView(img, gpu.FormatR8G8B8A8Unorm, gpu.AspectColor)
	if err != nil {
		l.device.DestroyImage(img)
		return scene.Texture{}, fmt.Errorf("creating texture view: %w", err)
	}

	l.textures[color] = texture{image: img, view: view}
	return scene.Texture{View: view, Sampler: l.sampler}, nil
}

func rgba8(c [4]float32) []byte {
	px := make([]byte, 4)
	for i, v := range c {
		px[i] = uint8(math.Round(float64(mgl32.Clamp(v, 0, 1)) * 255))
	}
	return px
}

// Destroy releases every uploaded resource. The device must be idle.
func (l *Library) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, t := range l.textures {
		l.device.DestroyImageView(t.view)
		l.device.DestroyImage(t.image)
		delete(l.textures, key)
	}
	for key, m := range l.meshes {
		l.device.DestroyBuffer(m.Indices)
		l.device.DestroyBuffer(m.Vertices)
		delete(l.meshes, key)
	}
	if l.sampler != 0 {
		l.device.DestroySampler(l.sampler)
		l.sampler = 0
	}
}
