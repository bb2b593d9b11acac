// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"shaderviz/internal/log"
)

var logger = log.New("analysis")

// ErrShortWindow is returned when the window handed to the extractor does not
// hold exactly WindowSize samples. Callers skip that chunk.
var ErrShortWindow = errors.New("analysis window shorter than configured size")

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
	Rectangular
)

// String returns the configuration name of the window function.
func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	case Rectangular:
		return "Rectangular"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// Options configures an Extractor. The zero Mode is ModeCentroid and the zero
// Window is BartlettHann, so callers normally set all four fields.
type Options struct {
	WindowSize int
	SampleRate float64
	Mode       Mode
	Window     WindowFunc
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Windowed input signal.
	fftOutput []complex128 // N/2+1 complex coefficients.
	magnitude []float32    // Euclidean magnitude per bin.
	window    []float64    // Pre-calculated window coefficients.
}

// Extractor turns one analysis window of normalized samples into a spectral
// feature. It owns its workspace and is not safe for concurrent use: each
// producer loop builds its own.
type Extractor struct {
	fftCalculator *fourier.FFT
	opts          Options
	workspace     fftWorkspace
}

var _ WindowProcessor = (*Extractor)(nil)
var _ SpectrumInfo = (*Extractor)(nil)

// NewExtractor validates opts and pre-allocates every buffer Extract needs.
// Any window size of at least two samples is accepted; gonum's FFT handles
// sizes that are not powers of two.
func NewExtractor(opts Options) (*Extractor, error) {
	if opts.WindowSize < 2 {
		return nil, fmt.Errorf("window size must be at least 2, got %d", opts.WindowSize)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.Mode != ModeCentroid && opts.Mode != ModeSpectrum {
		return nil, fmt.Errorf("unknown feature mode %d", opts.Mode)
	}

	n := opts.WindowSize
	windowCoeffs := make([]float64, n)
	applyWindow(windowCoeffs, opts.Window)

	// FFT output size for real input is N/2 + 1 complex values.
	bins := n/2 + 1

	logger.Debugf("extractor ready (size %d, rate %.1f Hz, window %v, mode %v)", n, opts.SampleRate, opts.Window, opts.Mode)

	return &Extractor{
		fftCalculator: fourier.NewFFT(n),
		opts:          opts,
		workspace: fftWorkspace{
			input:     make([]float64, n),
			fftOutput: make([]complex128, bins),
			magnitude: make([]float32, bins),
			window:    windowCoeffs,
		},
	}, nil
}

// FeatureLen is the length of every feature vector this extractor produces:
// 1 in centroid mode, WindowSize/2+1 in spectrum mode.
func (e *Extractor) FeatureLen() int {
	if e.opts.Mode == ModeSpectrum {
		return len(e.workspace.magnitude)
	}
	return 1
}

// Mode returns the feature mode fixed at construction.
func (e *Extractor) Mode() Mode { return e.opts.Mode }

// WindowSize returns the number of samples per analysis window.
func (e *Extractor) WindowSize() int { return e.opts.WindowSize }

// SampleRate returns the configured sample rate (Hz).
func (e *Extractor) SampleRate() float64 { return e.opts.SampleRate }

// FrequencyForBin returns the centre frequency (Hz) of a bin, or 0 when the
// index is outside 0..WindowSize/2.
func (e *Extractor) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= len(e.workspace.fftOutput) {
		return 0.0
	}
	return float64(binIndex) * (e.opts.SampleRate / float64(e.opts.WindowSize))
}

// Extract allocates a new feature vector for window. For the audio callback
// use ExtractInto with a reused destination.
func (e *Extractor) Extract(samples []float32) ([]float32, error) {
	dst := make([]float32, e.FeatureLen())
	if err := e.ExtractInto(dst, samples); err != nil {
		return nil, err
	}
	return dst, nil
}

// ExtractInto windows the samples, runs the forward FFT and writes the
// feature into dst, which must hold exactly FeatureLen values. samples must
// hold exactly WindowSize values; partial windows are rejected with
// ErrShortWindow so stale data never reaches the FFT.
func (e *Extractor) ExtractInto(dst, samples []float32) error {
	if len(samples) != e.opts.WindowSize {
		return fmt.Errorf("%w: got %d samples, want %d", ErrShortWindow, len(samples), e.opts.WindowSize)
	}
	if len(dst) != e.FeatureLen() {
		return fmt.Errorf("destination length %d does not match feature length %d", len(dst), e.FeatureLen())
	}

	ws := &e.workspace
	for i, s := range samples {
		v := float64(s)
		// Non-finite input would poison every bin; treat it as silence.
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		ws.input[i] = v * ws.window[i]
	}

	e.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	for i, c := range ws.fftOutput {
		ws.magnitude[i] = float32(cmplx.Abs(c))
	}

	if e.opts.Mode == ModeSpectrum {
		copy(dst, ws.magnitude)
		return nil
	}
	dst[0] = Centroid(ws.magnitude, e.opts.SampleRate, e.opts.WindowSize)
	return nil
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	case "rectangular", "none":
		return Rectangular, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall back
// to Hann.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window funcs multiply in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		// Already all ones.
	default:
		logger.Warnf("unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}
