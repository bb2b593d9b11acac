package shared

import "slices"

// Point is a normalized image-space coordinate in [0,1].
type Point struct {
	X, Y float32
}

// Floats is the buffer type the audio loop publishes into.
type Floats = Buffer[[]float32]

// Points is the buffer type the eye-tracking loop publishes into.
type Points = Buffer[[]Point]

// NewFloats returns a buffer initialised to n zeros so consumers never see
// an empty feature before the first publish.
func NewFloats(n int) *Floats {
	return NewBuffer(make([]float32, n), cloneSlice[float32])
}

// NewPoints returns a buffer holding an empty point set.
func NewPoints() *Points {
	return NewBuffer([]Point{}, cloneSlice[Point])
}

func cloneSlice[E any](s []E) []E {
	if s == nil {
		return []E{}
	}
	return slices.Clone(s)
}

// SnapshotInto copies the latest float vector into dst without allocating
// when dst is large enough, and returns the filled prefix.
func SnapshotInto(b *Floats, dst []float32) []float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dst = append(dst[:0], b.value...)
	return dst
}

// PublishInto replaces the float vector by copying v into the buffer's own
// storage. It does not allocate once the storage has grown to len(v), which
// keeps the audio callback allocation free. Snapshots still clone, so reusing
// the storage is invisible to readers.
func PublishInto(b *Floats, v []float32) {
	b.mu.Lock()
	b.value = append(b.value[:0], v...)
	b.generation++
	b.mu.Unlock()
}
