package containers

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// ErrIndexOutOfRange is returned for any access outside the current shape.
var ErrIndexOutOfRange = errors.New("index out of range")

// Tensor is a dense, fixed-shape, multi-axis lookup table. Dimension 0 is
// the fastest-varying axis:
//
//	linear = idx[0] + idx[1]*ext[0] + idx[2]*ext[0]*ext[1] + ...
//
// The shape only changes through Reset and Clear. The tensor never releases
// whatever its values refer to; owners tear those down before resetting.
type Tensor[T any] struct {
	extents []int
	strides []int
	data    []T
}

func NewTensor[T any](extents ...int) *Tensor[T] {
	t := &Tensor[T]{}
	t.Reset(extents...)
	return t
}

// Reset discards the previous contents and allocates Π(extents) zero
// values. Negative extents are treated as zero.
func (t *Tensor[T]) Reset(extents ...int) {
	t.extents = make([]int, len(extents))
	t.strides = make([]int, len(extents))
	size := 1
	if len(extents) == 0 {
		size = 0
	}
	for i, e := range extents {
		e = max(e, 0)
		t.extents[i] = e
		t.strides[i] = size
		size *= e
	}
	t.data = make([]T, size)
}

// Clear releases the backing store and zeroes the shape.
func (t *Tensor[T]) Clear() {
	t.extents = nil
	t.strides = nil
	t.data = nil
}

func (t *Tensor[T]) Len() int {
	return len(t.data)
}

func (t *Tensor[T]) Rank() int {
	return len(t.extents)
}

// Extents returns a copy of the current shape.
func (t *Tensor[T]) Extents() []int {
	out := make([]int, len(t.extents))
	copy(out, t.extents)
	return out
}

// Offset maps an index tuple to its slot in the backing store.
func (t *Tensor[T]) Offset(idx ...int) (int, error) {
	if len(idx) != len(t.extents) {
		return 0, fmt.Errorf("%w: got %d indices for a rank %d tensor", ErrIndexOutOfRange, len(idx), len(t.extents))
	}
	if len(t.data) == 0 {
		return 0, fmt.Errorf("%w: empty tensor", ErrIndexOutOfRange)
	}
	linear := 0
	for axis, i := range idx {
		if !inBounds(i, t.extents[axis]) {
			return 0, fmt.Errorf("%w: axis %d index %d, extent %d", ErrIndexOutOfRange, axis, i, t.extents[axis])
		}
		linear += i * t.strides[axis]
	}
	return linear, nil
}

// Coords is the inverse of Offset.
func (t *Tensor[T]) Coords(linear int) ([]int, error) {
	if !inBounds(linear, len(t.data)) {
		return nil, fmt.Errorf("%w: linear index %d, size %d", ErrIndexOutOfRange, linear, len(t.data))
	}
	idx := make([]int, len(t.extents))
	for axis := range t.extents {
		idx[axis] = linear % t.extents[axis]
		linear /= t.extents[axis]
	}
	return idx, nil
}

func (t *Tensor[T]) At(idx ...int) (T, error) {
	off, err := t.Offset(idx...)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.data[off], nil
}

func (t *Tensor[T]) Set(v T, idx ...int) error {
	off, err := t.Offset(idx...)
	if err != nil {
		return err
	}
	t.data[off] = v
	return nil
}

// Each visits every slot in linear order, which is the order a writer must
// use when it populates the tensor. Iteration stops at the first error.
func (t *Tensor[T]) Each(fn func(idx []int, v T) error) error {
	idx := make([]int, len(t.extents))
	for linear := range t.data {
		if err := fn(idx, t.data[linear]); err != nil {
			return err
		}
		for axis := range idx {
			idx[axis]++
			if idx[axis] < t.extents[axis] {
				break
			}
			idx[axis] = 0
		}
	}
	return nil
}

// Values exposes the backing store in linear order.
func (t *Tensor[T]) Values() []T {
	return t.data
}

func inBounds[N constraints.Integer](i, extent N) bool {
	return i >= 0 && i < extent
}
