package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// vertexInput describes gpu.Vertex: position at location 0, normal at 1 and
// uv at 2, interleaved in binding 0.
func vertexInput() ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    gpu.VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}}
	attributes := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: gpu.VertexPositionOffset},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: gpu.VertexNormalOffset},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: gpu.VertexUVOffset},
	}
	return bindings, attributes
}
