package gpu

import "unsafe"

// Bytes reinterprets a slice of plain values as raw bytes for upload. T must
// not contain pointers.
func Bytes[T any](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*int(unsafe.Sizeof(zero)))
}

// PassSource hands out the render passes and pipelines built by the pipeline
// collaborator. The handles are borrowed, never destroyed by the caller.
type PassSource interface {
	RenderPass(kind PassKind) RenderPass
	Pipeline(kind PassKind) PipelineSet
}
