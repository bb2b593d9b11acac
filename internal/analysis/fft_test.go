// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"shaderviz/pkg/utils"
)

const (
	testWindowSize = 1024
	testSampleRate = 44100
)

func newTestExtractor(t testing.TB, size int, mode Mode, w WindowFunc) *Extractor {
	t.Helper()
	e, err := NewExtractor(Options{WindowSize: size, SampleRate: testSampleRate, Mode: mode, Window: w})
	if err != nil {
		t.Fatalf("NewExtractor(%d) failed: %v", size, err)
	}
	return e
}

func TestNewExtractorValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"tiny window", Options{WindowSize: 1, SampleRate: testSampleRate}},
		{"zero rate", Options{WindowSize: 1024}},
		{"bad mode", Options{WindowSize: 1024, SampleRate: testSampleRate, Mode: Mode(7)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExtractor(tt.opts); err == nil {
				t.Errorf("NewExtractor(%+v) succeeded, expected error", tt.opts)
			}
		})
	}
}

func TestSilenceYieldsZero(t *testing.T) {
	for _, size := range []int{315, 1000, 1024, 2048, 3150} {
		for _, mode := range []Mode{ModeCentroid, ModeSpectrum} {
			t.Run(fmt.Sprintf("%d/%v", size, mode), func(t *testing.T) {
				e := newTestExtractor(t, size, mode, Hann)
				feature, err := e.Extract(make([]float32, size))
				if err != nil {
					t.Fatalf("Extract failed: %v", err)
				}
				if len(feature) != e.FeatureLen() {
					t.Fatalf("feature length = %d, want %d", len(feature), e.FeatureLen())
				}
				for i, v := range feature {
					if v != 0 || math.IsNaN(float64(v)) {
						t.Fatalf("feature[%d] = %v, want 0", i, v)
					}
				}
			})
		}
	}
}

func TestSinePeakBin(t *testing.T) {
	for _, w := range []WindowFunc{Hann, Rectangular, Blackman} {
		t.Run(w.String(), func(t *testing.T) {
			e := newTestExtractor(t, testWindowSize, ModeSpectrum, w)
			wave := utils.GenerateSineWave(testWindowSize, testSampleRate, 440)

			mags, err := e.Extract(wave)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if len(mags) != testWindowSize/2+1 {
				t.Fatalf("len(mags) = %d, want %d", len(mags), testWindowSize/2+1)
			}

			want := int(math.Round(440 * testWindowSize / testSampleRate))
			if got := utils.FindPeakBin(mags, 0, len(mags)-1); got != want {
				t.Errorf("peak bin = %d, want %d", got, want)
			}
		})
	}
}

func TestSineCentroid(t *testing.T) {
	e := newTestExtractor(t, testWindowSize, ModeCentroid, Hann)
	resolution := float64(testSampleRate) / testWindowSize

	for _, freq := range []float64{440, 1000, 5000} {
		t.Run(fmt.Sprintf("%.0fHz", freq), func(t *testing.T) {
			feature, err := e.Extract(utils.GenerateSineWave(testWindowSize, testSampleRate, freq))
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if got := float64(feature[0]); math.Abs(got-freq) > 2*resolution {
				t.Errorf("centroid = %.1f Hz, want %.1f ± %.1f", got, freq, 2*resolution)
			}
		})
	}
}

func TestExtractRejectsPartialWindow(t *testing.T) {
	e := newTestExtractor(t, testWindowSize, ModeCentroid, Hann)

	for _, n := range []int{0, testWindowSize - 1, testWindowSize + 1} {
		_, err := e.Extract(make([]float32, n))
		if !errors.Is(err, ErrShortWindow) {
			t.Errorf("Extract(%d samples) error = %v, want ErrShortWindow", n, err)
		}
	}
}

func TestExtractIntoDestinationLength(t *testing.T) {
	e := newTestExtractor(t, testWindowSize, ModeSpectrum, Hann)
	if err := e.ExtractInto(make([]float32, 3), make([]float32, testWindowSize)); err == nil {
		t.Error("ExtractInto accepted a destination of the wrong length")
	}
}

func TestNonFiniteSamplesAreSilenced(t *testing.T) {
	e := newTestExtractor(t, 8, ModeCentroid, Rectangular)
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	feature, err := e.Extract([]float32{nan, inf, nan, inf, nan, inf, nan, inf})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if feature[0] != 0 {
		t.Errorf("centroid = %v, want 0", feature[0])
	}
}

func TestCentroid(t *testing.T) {
	tests := []struct {
		name string
		mags []float32
		rate float64
		n    int
		want float32
	}{
		{"silence", []float32{0, 0, 0, 0, 0}, 8, 8, 0},
		{"two bins", []float32{0, 1, 0, 1, 0}, 8, 8, 2},
		{"dc only", []float32{3, 0, 0}, 44100, 4, 0},
		{"zero size", []float32{1, 1}, 44100, 0, 0},
		{"single bin", []float32{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}, testSampleRate, testWindowSize, 10 * testSampleRate / float32(testWindowSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Centroid(tt.mags, tt.rate, tt.n)
			if math.Abs(float64(got-tt.want)) > 1e-3 {
				t.Errorf("Centroid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrequencyForBin(t *testing.T) {
	e := newTestExtractor(t, testWindowSize, ModeSpectrum, Hann)
	resolution := float64(testSampleRate) / testWindowSize

	tests := []struct {
		bin  int
		want float64
	}{
		{-1, 0},
		{0, 0},
		{10, 10 * resolution},
		{testWindowSize / 2, testSampleRate / 2},
		{testWindowSize/2 + 1, 0},
	}
	for _, tt := range tests {
		if got := e.FrequencyForBin(tt.bin); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FrequencyForBin(%d) = %v, want %v", tt.bin, got, tt.want)
		}
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		input   string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"none", Rectangular, false},
		{"triangle", Hann, true},
	}
	for _, tt := range tests {
		got, err := ParseWindowFunc(tt.input)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseWindowFunc(%q) = (%v, %v)", tt.input, got, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"centroid", ModeCentroid, false},
		{"", ModeCentroid, false},
		{"Spectrum", ModeSpectrum, false},
		{"loudness", ModeCentroid, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) = (%v, %v)", tt.input, got, err)
		}
	}
}

func TestExtractIntoZeroAllocs(t *testing.T) {
	for _, mode := range []Mode{ModeCentroid, ModeSpectrum} {
		e := newTestExtractor(t, testWindowSize, mode, Hann)
		wave := utils.GenerateComplexWave(testWindowSize, testSampleRate)
		dst := make([]float32, e.FeatureLen())

		// Warm-up call outside the measurement.
		_ = e.ExtractInto(dst, wave)
		allocs := testing.AllocsPerRun(100, func() {
			_ = e.ExtractInto(dst, wave)
		})
		if allocs > 0 {
			t.Errorf("Expected zero allocations in ExtractInto (%v), got %.1f", mode, allocs)
		}
	}
}

func BenchmarkExtractInto(b *testing.B) {
	e := newTestExtractor(b, testWindowSize, ModeSpectrum, Hann)
	wave := utils.GenerateComplexWave(testWindowSize, testSampleRate)
	dst := make([]float32, e.FeatureLen())

	b.ReportAllocs()

	for b.Loop() {
		_ = e.ExtractInto(dst, wave)
	}
}

func BenchmarkExtractIntoNonPowerOfTwo(b *testing.B) {
	e := newTestExtractor(b, 3150, ModeCentroid, Hann)
	wave := utils.GenerateComplexWave(3150, testSampleRate)
	dst := make([]float32, 1)

	b.ReportAllocs()

	for b.Loop() {
		_ = e.ExtractInto(dst, wave)
	}
}
