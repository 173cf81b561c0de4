package scene

import "slices"

// Topology is every count that determines the shape of a descriptor tensor
// or the number of command buffers. Any change to it requires a rebuild.
type Topology struct {
	Lights int
	// Per model, in scene order.
	Units     []int
	Instances []int
}

func (t Topology) Models() int {
	return len(t.Units)
}

// MaxUnits is the unit extent shared by every model in the shadow tensor.
func (t Topology) MaxUnits() int {
	n := 0
	for _, u := range t.Units {
		n = max(n, u)
	}
	return n
}

func (t Topology) Equal(o Topology) bool {
	return t.Lights == o.Lights && slices.Equal(t.Units, o.Units) && slices.Equal(t.Instances, o.Instances)
}
