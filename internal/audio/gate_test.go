// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"testing"
)

var (
	quietBuffer = scaled(0.001)
	loudBuffer  = scaled(0.8)
)

// scaled returns an alternating-sign buffer peaking at amplitude.
func scaled(amplitude float32) []float32 {
	b := make([]float32, 1024)
	for i := range b {
		v := amplitude * float32(i%100) / 99
		if i%2 == 1 {
			v = -v
		}
		b[i] = v
	}
	return b
}

func TestGateEnableDisable(t *testing.T) {
	g := NewGate(0)
	if g.Enabled() {
		t.Error("Gate with zero threshold should start disabled")
	}

	g.Enable()
	g.Enable() // Multiple calls should be idempotent
	if !g.Enabled() {
		t.Error("Gate should be enabled after Enable()")
	}

	g.Disable()
	g.Disable()
	if g.Enabled() {
		t.Error("Gate should be disabled after Disable()")
	}

	if !NewGate(0.1).Enabled() {
		t.Error("Gate with positive threshold should start enabled")
	}
}

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0}, // Below min
		{0.0, 0.0},  // Minimum
		{0.5, 0.5},  // Middle
		{1.0, 1.0},  // Maximum
		{1.5, 1.0},  // Above max
	}

	g := NewGate(0)
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.input), func(t *testing.T) {
			g.SetThreshold(tt.input)
			if got := g.Threshold(); math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("Threshold() = %.3f, want %.3f", got, tt.expected)
			}
		})
	}
}

func TestGateOpen(t *testing.T) {
	tests := []struct {
		desc      string
		buffer    []float32
		enabled   bool
		threshold float64
		open      bool
	}{
		{"Gate disabled/Quiet signal", quietBuffer, false, 0.1, true},
		{"Gate disabled/Loud signal", loudBuffer, false, 0.1, true},
		{"Gate enabled/Quiet signal/Low threshold", quietBuffer, true, 0.0001, true},
		{"Gate enabled/Quiet signal/Mid threshold", quietBuffer, true, 0.1, false},
		{"Gate enabled/Loud signal/Mid threshold", loudBuffer, true, 0.1, true},
		{"Gate enabled/Loud signal/High threshold", loudBuffer, true, 0.999, false},
		{"Gate enabled/Silence/Zero threshold", make([]float32, 16), true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			g := NewGate(tt.threshold)
			if tt.enabled {
				g.Enable()
			} else {
				g.Disable()
			}
			if got := g.Open(tt.buffer); got != tt.open {
				t.Errorf("Open() = %v, want %v (peak %.4f, threshold %.4f)", got, tt.open, Peak(tt.buffer), g.Threshold())
			}
		})
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		in   []float32
		want float32
	}{
		{nil, 0},
		{[]float32{0.1, -0.5, 0.3}, 0.5},
		{[]float32{-1, 0.99}, 1},
		{[]float32{float32(math.Copysign(0, -1))}, 0},
	}
	for _, tt := range tests {
		if got := Peak(tt.in); got != tt.want {
			t.Errorf("Peak(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGateOpenZeroAllocs(t *testing.T) {
	g := NewGate(0.1)
	allocs := testing.AllocsPerRun(100, func() {
		_ = g.Open(loudBuffer)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in gate check, got %.1f", allocs)
	}
}

func BenchmarkGateOpen(b *testing.B) {
	g := NewGate(0.1)

	b.ReportAllocs()

	for b.Loop() {
		_ = g.Open(loudBuffer)
	}
}
