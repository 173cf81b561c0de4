package descriptors

import "fmt"

// Each axis of a descriptor tensor has its own integer type so an instance
// index cannot be passed where a swapchain image index is expected.
type (
	InstanceAxis uint32
	UnitAxis     uint32
	ImageAxis    uint32
	LightAxis    uint32
	ModelAxis    uint32
)

// Index is a fixed-rank tuple of axis positions. Coords lists the axes
// fastest-varying first, which is the order the tensor is populated in.
type Index[I any] interface {
	comparable
	Coords() []int
	FromCoords(c []int) I
	fmt.Stringer
}

// MainIndex addresses the per-model main pass sets: instance × unit × image.
type MainIndex struct {
	Instance InstanceAxis
	Unit     UnitAxis
	Image    ImageAxis
}

func (i MainIndex) Coords() []int {
	return []int{int(i.Instance), int(i.Unit), int(i.Image)}
}

func (MainIndex) FromCoords(c []int) MainIndex {
	return MainIndex{Instance: InstanceAxis(c[0]), Unit: UnitAxis(c[1]), Image: ImageAxis(c[2])}
}

func (i MainIndex) String() string {
	return fmt.Sprintf("(instance %d, unit %d, image %d)", i.Instance, i.Unit, i.Image)
}

// ShadowIndex addresses the shadow pass sets: light × model × unit × image.
type ShadowIndex struct {
	Light LightAxis
	Model ModelAxis
	Unit  UnitAxis
	Image ImageAxis
}

func (i ShadowIndex) Coords() []int {
	return []int{int(i.Light), int(i.Model), int(i.Unit), int(i.Image)}
}

func (ShadowIndex) FromCoords(c []int) ShadowIndex {
	return ShadowIndex{Light: LightAxis(c[0]), Model: ModelAxis(c[1]), Unit: UnitAxis(c[2]), Image: ImageAxis(c[3])}
}

func (i ShadowIndex) String() string {
	return fmt.Sprintf("(light %d, model %d, unit %d, image %d)", i.Light, i.Model, i.Unit, i.Image)
}

// LightingIndex addresses the lighting pass sets: light × image.
type LightingIndex struct {
	Light LightAxis
	Image ImageAxis
}

func (i LightingIndex) Coords() []int {
	return []int{int(i.Light), int(i.Image)}
}

func (LightingIndex) FromCoords(c []int) LightingIndex {
	return LightingIndex{Light: LightAxis(c[0]), Image: ImageAxis(c[1])}
}

func (i LightingIndex) String() string {
	return fmt.Sprintf("(light %d, image %d)", i.Light, i.Image)
}
