// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate zeroes windows whose peak amplitude is below a threshold, so room
// noise reads as silence (centroid 0) instead of a random frequency. The
// threshold is a float32 stored as bits so the callback reads it without a
// lock while the UI adjusts it.
type Gate struct {
	enabled   atomic.Bool
	threshold atomic.Uint32
}

// NewGate returns a gate enabled when threshold > 0.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.enabled.Store(threshold > 0)
	return g
}

func (g *Gate) Enable()  { g.enabled.Store(true) }
func (g *Gate) Disable() { g.enabled.Store(false) }

// Enabled reports whether the gate is active.
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// SetThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = min(max(threshold, 0), 1)
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current noise gate threshold in the range 0.0-1.0.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Open reports whether window passes the gate. A disabled gate is always
// open.
func (g *Gate) Open(window []float32) bool {
	if !g.enabled.Load() {
		return true
	}
	return Peak(window) > math.Float32frombits(g.threshold.Load())
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		// Clear the sign bit instead of branching on it.
		a := math.Float32frombits(math.Float32bits(s) &^ (1 << 31))
		peak = max(peak, a)
	}
	return peak
}
