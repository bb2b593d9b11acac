package audio

import (
	"errors"
	"math"
	"testing"

	"shaderviz/internal/analysis"
	"shaderviz/internal/config"
	"shaderviz/internal/shared"
	"shaderviz/pkg/utils"
)

const (
	testSampleRate = 44100
	testFrameSize  = 256
	testWindowSize = 1024
)

func newTestPipeline(t testing.TB, policy Policy, mode analysis.Mode, gate *Gate) (*Pipeline, *shared.Floats) {
	t.Helper()
	ext, err := analysis.NewExtractor(analysis.Options{
		WindowSize: testWindowSize,
		SampleRate: testSampleRate,
		Mode:       mode,
		Window:     analysis.Hann,
	})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	out := shared.NewFloats(ext.FeatureLen())
	p, err := NewPipeline(NewWindower(policy, testWindowSize), ext, gate, out, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, out
}

func newTestEngine(t testing.TB, channels int) (*Engine, *shared.Floats) {
	t.Helper()
	p, out := newTestPipeline(t, PolicyRing, analysis.ModeCentroid, nil)
	cfg := &config.AudioConfig{
		SampleRate:      testSampleRate,
		InputChannels:   channels,
		FramesPerBuffer: testFrameSize,
	}
	return newEngine(cfg, p), out
}

// interleave duplicates mono into channels, putting noise in the others so
// a wrong channel pick shows up in the centroid.
func interleave(mono []float32, channels int) []float32 {
	out := make([]float32, len(mono)*channels)
	for i, s := range mono {
		out[i*channels] = s
		for c := 1; c < channels; c++ {
			out[i*channels+c] = float32(math.Sin(float64(i) * 2.9))
		}
	}
	return out
}

func TestNewPipelineSizeMismatch(t *testing.T) {
	ext, err := analysis.NewExtractor(analysis.Options{WindowSize: 512, SampleRate: testSampleRate})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPipeline(NewRing(1024), ext, nil, shared.NewFloats(1), nil); err == nil {
		t.Error("NewPipeline accepted mismatched window sizes")
	}
}

func TestPipelinePublishesCentroid(t *testing.T) {
	p, out := newTestPipeline(t, PolicyTumbling, analysis.ModeCentroid, nil)
	wave := utils.GenerateSineWave(testWindowSize, testSampleRate, 1000)

	if p.Feed(wave[:testWindowSize/2]) {
		t.Fatal("published before a full window")
	}
	if out.Generation() != 0 {
		t.Fatal("buffer written before a full window")
	}
	if !p.Feed(wave[testWindowSize/2:]) {
		t.Fatal("full window not published")
	}

	got := out.Snapshot()[0]
	if math.Abs(float64(got)-1000) > 2*testSampleRate/testWindowSize {
		t.Errorf("centroid = %.1f, want ~1000", got)
	}
}

func TestPipelineGateZeroesQuietWindows(t *testing.T) {
	p, out := newTestPipeline(t, PolicyRing, analysis.ModeCentroid, NewGate(0.5))
	wave := utils.GenerateSineWave(testWindowSize, testSampleRate, 440)
	for i := range wave {
		wave[i] *= 0.1
	}
	shared.PublishInto(out, []float32{123})

	if !p.Feed(wave) {
		t.Fatal("gated window should still publish")
	}
	if got := out.Snapshot()[0]; got != 0 {
		t.Errorf("gated centroid = %v, want 0", got)
	}
}

func TestPipelineSpectrumMode(t *testing.T) {
	p, out := newTestPipeline(t, PolicyRing, analysis.ModeSpectrum, nil)
	p.Feed(utils.GenerateSineWave(testWindowSize, testSampleRate, 440))

	mags := out.Snapshot()
	if len(mags) != testWindowSize/2+1 {
		t.Fatalf("len = %d, want %d", len(mags), testWindowSize/2+1)
	}
	if peak := utils.FindPeakBin(mags, 0, len(mags)-1); peak != 10 {
		t.Errorf("peak bin = %d, want 10", peak)
	}
}

type failingProcessor struct{ size int }

func (f failingProcessor) ExtractInto(dst, window []float32) error {
	return errors.New("fft failed")
}
func (f failingProcessor) FeatureLen() int { return 1 }
func (f failingProcessor) WindowSize() int { return f.size }

func TestPipelineErrorKeepsStaleValue(t *testing.T) {
	out := shared.NewFloats(1)
	shared.PublishInto(out, []float32{7})
	p, err := NewPipeline(NewRing(8), failingProcessor{8}, nil, out, nil)
	if err != nil {
		t.Fatal(err)
	}

	if p.Feed(make([]float32, 8)) {
		t.Error("Feed reported a publish after an extraction error")
	}
	if got := out.Snapshot()[0]; got != 7 || out.Generation() != 1 {
		t.Errorf("buffer = %v (gen %d), want stale 7", got, out.Generation())
	}
}

func TestEngineProcessUsesFirstChannel(t *testing.T) {
	engine, out := newTestEngine(t, 2)
	wave := utils.GenerateSineWave(testWindowSize, testSampleRate, 2000)
	stereo := interleave(wave, 2)

	for i := 0; i < len(stereo); i += testFrameSize * 2 {
		engine.process(stereo[i : i+testFrameSize*2])
	}

	got := out.Snapshot()[0]
	if math.Abs(float64(got)-2000) > 2*testSampleRate/testWindowSize {
		t.Errorf("centroid = %.1f, want ~2000", got)
	}
}

func TestDownmix(t *testing.T) {
	dst := make([]float32, 4)

	if n := Downmix(dst, []float32{1, 2, 3}, 1); n != 3 || dst[2] != 3 {
		t.Errorf("mono Downmix = %d %v", n, dst)
	}
	if n := Downmix(dst, []float32{1, -1, 2, -2, 3, -3}, 2); n != 3 || dst[0] != 1 || dst[2] != 3 {
		t.Errorf("stereo Downmix = %d %v", n, dst)
	}
	// dst bounds the frame count.
	if n := Downmix(dst[:1], []float32{1, 0, 2, 0}, 2); n != 1 {
		t.Errorf("bounded Downmix = %d, want 1", n)
	}
}

func TestEngineProcessZeroAllocs(t *testing.T) {
	engine, _ := newTestEngine(t, 1)
	chunk := utils.GenerateComplexWave(testFrameSize, testSampleRate)

	// Warm-up to fill the ring and grow the shared buffer storage.
	for range testWindowSize / testFrameSize {
		engine.process(chunk)
	}
	allocs := testing.AllocsPerRun(100, func() {
		engine.process(chunk)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in the capture hot path, got %.1f", allocs)
	}
}

func BenchmarkEngineProcess(b *testing.B) {
	engine, _ := newTestEngine(b, 1)
	chunk := utils.GenerateComplexWave(testFrameSize, testSampleRate)

	b.ReportAllocs()

	for b.Loop() {
		engine.process(chunk)
	}
}
