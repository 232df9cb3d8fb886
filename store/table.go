// Package store holds the synchronous source of truth for the search map: an
// insertion-ordered key/value table.
package store

import (
	"iter"
	"sync"
)

type entry[T any] struct {
	key   string
	value T
}

// Table is a key/value table that iterates in insertion order. Removing a key
// moves the most recently inserted entry into the vacated slot, so order is
// not stable across removals. All methods are safe for concurrent use and
// never fail.
type Table[T any] struct {
	entries []entry[T]
	index   map[string]int
	mu      sync.RWMutex
}

// New creates an empty Table.
func New[T any]() *Table[T] {
	return &Table[T]{index: make(map[string]int)}
}

// Set stores value under key and reports whether the key was new.
func (t *Table[T]) Set(key string, value T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.index[key]; ok {
		t.entries[i].value = value
		return false
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, entry[T]{key: key, value: value})
	return true
}

func (t *Table[T]) Get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return t.entries[i].value, true
}

func (t *Table[T]) Has(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.index[key]
	return ok
}

// Delete removes key and reports whether it was present.
func (t *Table[T]) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[key]
	if !ok {
		return false
	}
	last := len(t.entries) - 1
	if i != last {
		t.entries[i] = t.entries[last]
		t.index[t.entries[i].key] = i
	}
	var zero entry[T]
	t.entries[last] = zero
	t.entries = t.entries[:last]
	delete(t.index, key)
	return true
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear removes every entry and returns how many were removed.
func (t *Table[T]) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	t.entries = nil
	t.index = make(map[string]int)
	return n
}

// All iterates over key/value pairs. Each iteration works on a snapshot taken
// when it starts, so the sequence can be restarted and the loop body may
// mutate the table.
func (t *Table[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, e := range t.snapshot() {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

func (t *Table[T]) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, e := range t.snapshot() {
			if !yield(e.key) {
				return
			}
		}
	}
}

func (t *Table[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, e := range t.snapshot() {
			if !yield(e.value) {
				return
			}
		}
	}
}

func (t *Table[T]) snapshot() []entry[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make([]entry[T], len(t.entries))
	copy(snap, t.entries)
	return snap
}
