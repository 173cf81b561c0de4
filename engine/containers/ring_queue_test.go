package containers

import (
	"errors"
	"testing"
)

func TestRingQueueWrapsAround(t *testing.T) {
	q := NewRingQueue[int](3)
	for round := 0; round < 4; round++ {
		for i := 0; i < 3; i++ {
			if err := q.Push(round*10 + i); err != nil {
				t.Fatalf("Push: %v", err)
			}
		}
		if err := q.Push(99); !errors.Is(err, ErrQueueFull) {
			t.Fatalf("Push on full queue error = %v", err)
		}
		if v, err := q.Peek(); err != nil || v != round*10 {
			t.Fatalf("Peek = %d, %v; want %d", v, err, round*10)
		}
		for i := 0; i < 3; i++ {
			v, err := q.Pop()
			if err != nil || v != round*10+i {
				t.Fatalf("Pop = %d, %v; want %d", v, err, round*10+i)
			}
		}
		if _, err := q.Pop(); !errors.Is(err, ErrQueueEmpty) {
			t.Fatalf("Pop on empty queue error = %v", err)
		}
	}
}

func TestRingQueueClear(t *testing.T) {
	q := NewRingQueue[string](2)
	_ = q.Push("a")
	_, _ = q.Pop()
	_ = q.Push("b")
	q.Clear()
	if q.Len() != 0 || q.Cap() != 2 {
		t.Fatalf("after Clear len = %d cap = %d", q.Len(), q.Cap())
	}
	for _, s := range []string{"c", "d"} {
		if err := q.Push(s); err != nil {
			t.Fatalf("Push after Clear: %v", err)
		}
	}
	if v, _ := q.Pop(); v != "c" {
		t.Fatalf("Pop after Clear = %q, want c", v)
	}
}
