// SPDX-License-Identifier: MIT
package audio

import (
	"slices"
	"testing"
)

// ramp returns [start, start+1, ...) of length n.
func ramp(start, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(start + i)
	}
	return s
}

func TestRingLinearizeAfterWrapping(t *testing.T) {
	const size = 8
	r := NewRing(size)
	dst := make([]float32, size)

	// Chunks of 3 wrap the 8-slot ring several times.
	next := 0
	for range 10 {
		r.Push(ramp(next, 3))
		next += 3
	}
	if next < 2*size {
		t.Fatalf("test did not wrap twice (%d samples)", next)
	}

	r.Linearize(dst)
	want := ramp(next-size, size)
	if !slices.Equal(dst, want) {
		t.Errorf("Linearize() = %v, want %v", dst, want)
	}
}

func TestRingChronologicalEveryPush(t *testing.T) {
	const size = 5
	r := NewRing(size)
	dst := make([]float32, size)
	next := 0

	for _, chunk := range []int{2, 3, 4, 1, 5, 7, 2} {
		ready := r.Push(ramp(next, chunk))
		next += chunk
		if !ready {
			continue
		}
		r.Window(dst)
		if !slices.Equal(dst, ramp(next-size, size)) {
			t.Fatalf("after %d samples Window() = %v", next, dst)
		}
	}
}

func TestRingNotReadyUntilFull(t *testing.T) {
	r := NewRing(4)
	if r.Push(ramp(0, 3)) {
		t.Error("ring reported ready with 3 of 4 samples")
	}
	if !r.Push(ramp(3, 1)) {
		t.Error("ring not ready with 4 of 4 samples")
	}

	r.Reset()
	if r.Push(ramp(0, 1)) {
		t.Error("ring ready right after Reset")
	}
}

func TestRingOversizedPushKeepsNewest(t *testing.T) {
	r := NewRing(4)
	dst := make([]float32, 4)

	if !r.Push(ramp(0, 10)) {
		t.Fatal("oversized push should complete the window")
	}
	r.Linearize(dst)
	if !slices.Equal(dst, ramp(6, 4)) {
		t.Errorf("Linearize() = %v, want [6 7 8 9]", dst)
	}
}

func TestTumblingEmitsDisjointWindows(t *testing.T) {
	w := NewTumbling(4)
	dst := make([]float32, 4)

	tests := []struct {
		chunk []float32
		ready bool
		want  []float32
	}{
		{ramp(0, 3), false, nil},
		{ramp(3, 3), true, ramp(0, 4)}, // 4,5 carried over
		{ramp(6, 1), false, nil},
		{ramp(7, 1), true, ramp(4, 4)},
		{ramp(8, 9), true, ramp(12, 4)}, // two windows complete, newest kept
	}

	for i, tt := range tests {
		if got := w.Push(tt.chunk); got != tt.ready {
			t.Fatalf("push %d: ready = %v, want %v", i, got, tt.ready)
		}
		if tt.ready {
			w.Window(dst)
			if !slices.Equal(dst, tt.want) {
				t.Errorf("push %d: Window() = %v, want %v", i, dst, tt.want)
			}
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"tumbling", PolicyTumbling, false},
		{"Ring", PolicyRing, false},
		{"sliding", PolicyRing, false},
		{"hopping", PolicyRing, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) = (%v, %v)", tt.in, got, err)
		}
	}
}

func TestWindowersZeroAllocs(t *testing.T) {
	chunk := ramp(0, 512)
	dst := make([]float32, 1024)

	for _, w := range []Windower{NewRing(1024), NewTumbling(1024)} {
		allocs := testing.AllocsPerRun(100, func() {
			if w.Push(chunk) {
				w.Window(dst)
			}
		})
		if allocs > 0 {
			t.Errorf("Expected zero allocations in %T push, got %.1f", w, allocs)
		}
	}
}

func BenchmarkRingPushLinearize(b *testing.B) {
	r := NewRing(2048)
	chunk := ramp(0, 512)
	dst := make([]float32, 2048)

	b.ReportAllocs()

	for b.Loop() {
		r.Push(chunk)
		r.Linearize(dst)
	}
}
