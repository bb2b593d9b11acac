// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"strings"
)

// WindowProcessor is what a producer loop needs from an extractor. It is
// called from the capture hot path, so implementations must not allocate.
type WindowProcessor interface {
	// ExtractInto writes the feature for one full window into dst.
	ExtractInto(dst, window []float32) error
	FeatureLen() int
	WindowSize() int
}

// SpectrumInfo describes the bins of a spectrum-mode feature so consumers
// (the feature tap, shaders) can label them.
type SpectrumInfo interface {
	FrequencyForBin(binIndex int) float64
	WindowSize() int
	SampleRate() float64
}

// Mode selects what the extractor emits per window.
type Mode int

const (
	// ModeCentroid emits one value: the amplitude weighted mean frequency.
	ModeCentroid Mode = iota
	// ModeSpectrum emits the WindowSize/2+1 bin magnitudes.
	ModeSpectrum
)

func (m Mode) String() string {
	switch m {
	case ModeCentroid:
		return "centroid"
	case ModeSpectrum:
		return "spectrum"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "centroid" or "spectrum" in any case.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "centroid", "":
		return ModeCentroid, nil
	case "spectrum", "magnitudes":
		return ModeSpectrum, nil
	default:
		return ModeCentroid, fmt.Errorf("unknown feature mode: '%s'", name)
	}
}

// Centroid computes sum(freq_i * mag_i) / sum(mag_i) over the one-sided
// magnitudes of an n-point FFT, with freq_i = i * sampleRate / n. Silence
// (zero total amplitude) yields 0.
func Centroid(magnitudes []float32, sampleRate float64, n int) float32 {
	if n <= 0 || sampleRate <= 0 {
		return 0
	}
	resolution := sampleRate / float64(n)

	var weighted, total float64
	for i, m := range magnitudes {
		a := float64(m)
		weighted += float64(i) * resolution * a
		total += a
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	return float32(weighted / total)
}
