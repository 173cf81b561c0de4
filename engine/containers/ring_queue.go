package containers

import "errors"

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrQueueEmpty = errors.New("queue is empty")
)

// RingQueue is a fixed-capacity FIFO. It never grows; Push on a full queue
// fails. Not safe for concurrent use.
type RingQueue[T any] struct {
	slots []T
	head  int
	count int
}

func NewRingQueue[T any](capacity int) *RingQueue[T] {
	return &RingQueue[T]{slots: make([]T, capacity)}
}

func (q *RingQueue[T]) Push(value T) error {
	if q.count == len(q.slots) {
		return ErrQueueFull
	}
	q.slots[(q.head+q.count)%len(q.slots)] = value
	q.count++
	return nil
}

// Pop removes the oldest element.
func (q *RingQueue[T]) Pop() (T, error) {
	var zero T
	if q.count == 0 {
		return zero, ErrQueueEmpty
	}
	value := q.slots[q.head]
	q.slots[q.head] = zero
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	return value, nil
}

// Peek returns the oldest element without removing it.
func (q *RingQueue[T]) Peek() (T, error) {
	if q.count == 0 {
		var zero T
		return zero, ErrQueueEmpty
	}
	return q.slots[q.head], nil
}

func (q *RingQueue[T]) Len() int {
	return q.count
}

func (q *RingQueue[T]) Cap() int {
	return len(q.slots)
}

// Clear drops every element.
func (q *RingQueue[T]) Clear() {
	clear(q.slots)
	q.head = 0
	q.count = 0
}
