package assets

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// Geometry is CPU-side mesh data ready to upload.
type Geometry struct {
	Vertices []gpu.Vertex
	Indices  []uint32
}

// face is one side of a box: its outward normal and the sign of its four
// corners on each axis, in the order the quad indices expect.
type face struct {
	normal  mgl32.Vec3
	corners [4]mgl32.Vec3
}

var boxFaces = []face{
	// front
	{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-1, -1, 1}, {1, 1, 1}, {-1, 1, 1}, {1, -1, 1}}},
	// back
	{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{1, -1, -1}, {-1, 1, -1}, {1, 1, -1}, {-1, -1, -1}}},
	// left
	{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-1, -1, -1}, {-1, 1, 1}, {-1, 1, -1}, {-1, -1, 1}}},
	// right
	{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{1, -1, 1}, {1, 1, -1}, {1, 1, 1}, {1, -1, -1}}},
	// bottom
	{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{1, -1, 1}, {-1, -1, -1}, {1, -1, -1}, {-1, -1, 1}}},
	// top
	{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-1, 1, 1}, {1, 1, -1}, {-1, 1, -1}, {1, 1, 1}}},
}

// Texture coordinates of the four corners of every face, scaled by the tile
// counts.
var quadUV = [4][2]float32{{0, 0}, {1, 1}, {0, 1}, {1, 0}}

// Two counter-clockwise triangles per quad.
var quadIndices = [6]uint32{0, 1, 2, 0, 3, 1}

func positive(v float32, name string) float32 {
	if v <= 0 {
		core.LogWarn("%s must be positive. Defaulting to one.", name)
		return 1
	}
	return v
}

// GenerateCube builds an axis-aligned box centred on the origin with four
// vertices per face so every face has its own normal.
func GenerateCube(width, height, depth, tileX, tileY float32) Geometry {
	half := mgl32.Vec3{
		positive(width, "Width") * 0.5,
		positive(height, "Height") * 0.5,
		positive(depth, "Depth") * 0.5,
	}
	tileX = positive(tileX, "tileX")
	tileY = positive(tileY, "tileY")

	g := Geometry{
		Vertices: make([]gpu.Vertex, 0, 4*len(boxFaces)),
		Indices:  make([]uint32, 0, 6*len(boxFaces)),
	}
	for _, f := range boxFaces {
		g.appendQuad(f, half, tileX, tileY)
	}
	return g
}

// GeneratePlane builds a single upward-facing quad on y = 0.
func GeneratePlane(width, depth, tileX, tileY float32) Geometry {
	half := mgl32.Vec3{positive(width, "Width") * 0.5, 0, positive(depth, "Depth") * 0.5}
	g := Geometry{
		Vertices: make([]gpu.Vertex, 0, 4),
		Indices:  make([]uint32, 0, 6),
	}
	g.appendQuad(boxFaces[5], half, positive(tileX, "tileX"), positive(tileY, "tileY"))
	return g
}

func (g *Geometry) appendQuad(f face, half mgl32.Vec3, tileX, tileY float32) {
	base := uint32(len(g.Vertices))
	for i, c := range f.corners {
		p := mgl32.Vec3{c.X() * half.X(), c.Y() * half.Y(), c.Z() * half.Z()}
		g.Vertices = append(g.Vertices, gpu.Vertex{
			Position: p,
			Normal:   f.normal,
			UV:       [2]float32{quadUV[i][0] * tileX, quadUV[i][1] * tileY},
		})
	}
	for _, idx := range quadIndices {
		g.Indices = append(g.Indices, base+idx)
	}
}
