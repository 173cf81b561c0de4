package containers

import (
	"errors"
	"testing"

	"golang.org/x/exp/rand"
)

func TestTensorAddressing(t *testing.T) {
	tests := []struct {
		extents []int
	}{
		{[]int{1}},
		{[]int{4}},
		{[]int{2, 3}},
		{[]int{2, 3, 2}},
		{[]int{3, 1, 4, 2}},
	}
	for _, tt := range tests {
		tensor := NewTensor[int](tt.extents...)
		want := 1
		for _, e := range tt.extents {
			want *= e
		}
		if tensor.Len() != want {
			t.Fatalf("%v: Len = %d, want %d", tt.extents, tensor.Len(), want)
		}

		seen := make(map[int]bool)
		err := tensor.Each(func(idx []int, _ int) error {
			off, err := tensor.Offset(idx...)
			if err != nil {
				return err
			}
			if seen[off] {
				t.Errorf("%v: slot %d visited twice", tt.extents, off)
			}
			seen[off] = true
			if len(seen)-1 != off {
				t.Errorf("%v: index %v maps to %d, want linear order %d", tt.extents, idx, off, len(seen)-1)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("%v: Each: %v", tt.extents, err)
		}
		if len(seen) != want {
			t.Fatalf("%v: visited %d slots, want %d", tt.extents, len(seen), want)
		}
	}
}

func TestTensorCorners(t *testing.T) {
	a, b, c := 2, 3, 4
	tensor := NewTensor[string](a, b, c)
	first, err := tensor.Offset(0, 0, 0)
	if err != nil || first != 0 {
		t.Fatalf("Offset(0,0,0) = %d, %v", first, err)
	}
	last, err := tensor.Offset(a-1, b-1, c-1)
	if err != nil || last != a*b*c-1 {
		t.Fatalf("Offset(a-1,b-1,c-1) = %d, %v; want %d", last, err, a*b*c-1)
	}
	// Dimension 0 varies fastest.
	if off, _ := tensor.Offset(1, 0, 0); off != 1 {
		t.Fatalf("Offset(1,0,0) = %d, want 1", off)
	}
	if off, _ := tensor.Offset(0, 1, 0); off != a {
		t.Fatalf("Offset(0,1,0) = %d, want %d", off, a)
	}
	if off, _ := tensor.Offset(0, 0, 1); off != a*b {
		t.Fatalf("Offset(0,0,1) = %d, want %d", off, a*b)
	}
}

func TestTensorOutOfRangePerAxis(t *testing.T) {
	extents := []int{2, 3, 2}
	tensor := NewTensor[int](extents...)
	for axis := range extents {
		for _, bad := range []int{extents[axis], extents[axis] + 5, -1} {
			idx := []int{0, 0, 0}
			idx[axis] = bad
			if _, err := tensor.At(idx...); !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("At(%v) error = %v, want ErrIndexOutOfRange", idx, err)
			}
			if err := tensor.Set(1, idx...); !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("Set(%v) error = %v, want ErrIndexOutOfRange", idx, err)
			}
		}
	}
	if _, err := tensor.At(0, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("At with wrong arity error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestTensorRandomShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 50; n++ {
		rank := 1 + rng.Intn(4)
		extents := make([]int, rank)
		for i := range extents {
			extents[i] = 1 + rng.Intn(5)
		}
		tensor := NewTensor[int](extents...)
		for linear := 0; linear < tensor.Len(); linear++ {
			idx, err := tensor.Coords(linear)
			if err != nil {
				t.Fatalf("%v: Coords(%d): %v", extents, linear, err)
			}
			if err := tensor.Set(linear, idx...); err != nil {
				t.Fatalf("%v: Set(%v): %v", extents, idx, err)
			}
		}
		for linear, v := range tensor.Values() {
			if v != linear {
				t.Fatalf("%v: slot %d holds %d", extents, linear, v)
			}
		}
	}
}

func TestTensorResetAndClear(t *testing.T) {
	tensor := NewTensor[int](2, 2)
	if err := tensor.Set(7, 1, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tensor.Reset(3, 1)
	if got := tensor.Extents(); len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Fatalf("Extents = %v, want [3 1]", got)
	}
	for _, v := range tensor.Values() {
		if v != 0 {
			t.Fatalf("Reset kept old contents: %v", tensor.Values())
		}
	}
	tensor.Clear()
	if tensor.Len() != 0 || tensor.Rank() != 0 {
		t.Fatalf("Clear left Len=%d Rank=%d", tensor.Len(), tensor.Rank())
	}
	if _, err := tensor.At(0, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("At after Clear error = %v", err)
	}
	if _, err := tensor.At(); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("At() after Clear error = %v", err)
	}
	if err := tensor.Set(7); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("Set after Clear error = %v", err)
	}

	var zero Tensor[int]
	if _, err := zero.At(); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("At on zero value error = %v", err)
	}
	if _, err := NewTensor[int]().At(); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("At on rank 0 tensor error = %v", err)
	}
}
