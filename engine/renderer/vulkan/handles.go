package vulkan

import "sync"

// table maps the opaque gpu handles handed to the renderer onto native
// Vulkan objects. Handles start at 1 and are never reused.
type table[H ~uint64, V any] struct {
	mu    sync.Mutex
	next  H
	items map[H]V
}

func (t *table[H, V]) add(v V) H {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.items == nil {
		t.items = make(map[H]V)
	}
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[H, V]) get(h H) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	return v, ok
}

func (t *table[H, V]) remove(h H) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	if ok {
		delete(t.items, h)
	}
	return v, ok
}

// drain empties the table and returns what was left in it.
func (t *table[H, V]) drain() map[H]V {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := t.items
	t.items = nil
	return items
}

func (t *table[H, V]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// removeWhere deletes every entry matching fn.
func (t *table[H, V]) removeWhere(fn func(V) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, v := range t.items {
		if fn(v) {
			delete(t.items, h)
		}
	}
}
