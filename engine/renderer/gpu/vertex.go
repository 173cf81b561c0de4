package gpu

import "unsafe"

// Vertex is the interleaved layout every mesh buffer uses.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

const VertexStride = uint32(unsafe.Sizeof(Vertex{}))

// Byte offsets of the vertex attributes.
const (
	VertexPositionOffset = uint32(unsafe.Offsetof(Vertex{}.Position))
	VertexNormalOffset   = uint32(unsafe.Offsetof(Vertex{}.Normal))
	VertexUVOffset       = uint32(unsafe.Offsetof(Vertex{}.UV))
)
