// Package shared holds the latest-value hand-off between producer loops
// (audio, eye tracking) and the render loop.
//
// A Buffer keeps exactly one value. Publish replaces it wholesale under the
// lock and Snapshot clones it out under the lock, so a reader never observes
// a partial write and never holds a reference the producer will mutate. No
// history is kept: a reader may skip any number of generations.
package shared

import "sync"

// Buffer is a mutex-guarded single-value slot with clone-on-read semantics.
type Buffer[T any] struct {
	mu         sync.RWMutex
	value      T
	clone      func(T) T
	generation uint64
}

// NewBuffer returns a buffer holding initial. clone copies a value so the
// copy shares no memory with the original; it is applied on both Publish
// and Snapshot. A nil clone means T is a plain value type.
func NewBuffer[T any](initial T, clone func(T) T) *Buffer[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Buffer[T]{value: clone(initial), clone: clone}
}

// Publish replaces the current value. The argument is cloned before the lock
// is taken, so the critical section is a single assignment and the caller may
// keep reusing its slice.
func (b *Buffer[T]) Publish(v T) {
	c := b.clone(v)
	b.mu.Lock()
	b.value = c
	b.generation++
	b.mu.Unlock()
}

// Snapshot returns a private copy of the latest value.
func (b *Buffer[T]) Snapshot() T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.clone(b.value)
}

// Generation counts publishes. Readers use it to skip uploads when nothing
// changed; it carries no ordering guarantee beyond the lock.
func (b *Buffer[T]) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}
