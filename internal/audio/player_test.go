package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"shaderviz/internal/analysis"
	"shaderviz/internal/shared"
	"shaderviz/pkg/utils"
)

type recordingSink struct {
	chunks [][]float32
	closed bool
	err    error
}

func (s *recordingSink) Write(interleaved []float32) error {
	s.chunks = append(s.chunks, append([]float32(nil), interleaved...))
	return s.err
}

func (s *recordingSink) Close() error { s.closed = true; return nil }

// fakeClock advances by step on every now() call and records sleeps.
type fakeClock struct {
	t      time.Time
	step   time.Duration
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

func newTestPlayer(t *testing.T, src Source, opts PlayerOptions) (*Player, *shared.Floats, *fakeClock) {
	t.Helper()
	p, out := newTestPipeline(t, PolicyTumbling, analysis.ModeCentroid, nil)
	player, err := NewPlayer(src, p, opts)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	clock := &fakeClock{step: time.Millisecond}
	player.now = clock.now
	player.sleep = clock.sleep
	return player, out, clock
}

func TestPace(t *testing.T) {
	tests := []struct {
		target, elapsed, want time.Duration
	}{
		{32 * time.Millisecond, 2 * time.Millisecond, 30 * time.Millisecond},
		{32 * time.Millisecond, 0, 32 * time.Millisecond},
		{32 * time.Millisecond, 32 * time.Millisecond, 0},
		{32 * time.Millisecond, 50 * time.Millisecond, 0},
	}
	for _, tt := range tests {
		if got := Pace(tt.target, tt.elapsed); got != tt.want {
			t.Errorf("Pace(%v, %v) = %v, want %v", tt.target, tt.elapsed, got, tt.want)
		}
	}
}

func TestNewPlayerValidation(t *testing.T) {
	p, _ := newTestPipeline(t, PolicyRing, analysis.ModeCentroid, nil)
	if _, err := NewPlayer(&sliceSource{rate: 8000, channels: 1}, p, PlayerOptions{}); err == nil {
		t.Error("NewPlayer accepted a zero chunk size")
	}
	_, err := NewPlayer(&sliceSource{rate: 0, channels: 1}, p, PlayerOptions{ChunkFrames: 64})
	if !errors.Is(err, ErrInvalidFile) {
		t.Errorf("zero sample rate error = %v, want ErrInvalidFile", err)
	}
}

func TestPlayerStopsOnShortChunk(t *testing.T) {
	// Four full chunks then a partial one that is never analysed.
	wave := utils.GenerateSineWave(4*testFrameSize+100, testSampleRate, 1000)
	src := &sliceSource{data: wave, step: 300, rate: testSampleRate, channels: 1}
	sink := &recordingSink{}
	player, out, clock := newTestPlayer(t, src, PlayerOptions{ChunkFrames: testFrameSize, Monitor: sink})

	if err := player.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.chunks) != 4 {
		t.Errorf("monitor got %d chunks, want 4", len(sink.chunks))
	}
	if out.Generation() != 1 {
		t.Errorf("published %d windows, want 1", out.Generation())
	}
	if src.closed != 1 || !sink.closed {
		t.Errorf("source closed %d times, sink closed %v", src.closed, sink.closed)
	}

	// Each chunk takes one fake millisecond between the two now() calls.
	want := Pace(player.ChunkDuration(), time.Millisecond)
	for i, d := range clock.sleeps {
		if d != want {
			t.Errorf("sleep %d = %v, want %v", i, d, want)
		}
	}
}

func TestPlayerLoopReopens(t *testing.T) {
	newSrc := func() *sliceSource {
		return &sliceSource{data: make([]float32, 2*testFrameSize), step: testFrameSize, rate: testSampleRate, channels: 1}
	}
	reopened := 0
	var sources []*sliceSource
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := newSrc()
	sink := &recordingSink{}
	opts := PlayerOptions{
		ChunkFrames: testFrameSize,
		Loop:        true,
		Monitor:     sink,
		Reopen: func() (Source, error) {
			reopened++
			if reopened == 3 {
				cancel()
			}
			s := newSrc()
			sources = append(sources, s)
			return s, nil
		},
	}
	player, _, _ := newTestPlayer(t, first, opts)

	if err := player.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reopened != 3 {
		t.Errorf("reopened %d times, want 3", reopened)
	}
	// Two chunks from each of the first three passes.
	if len(sink.chunks) != 6 {
		t.Errorf("monitor got %d chunks, want 6", len(sink.chunks))
	}
	if first.closed != 1 {
		t.Errorf("first source closed %d times", first.closed)
	}
	if last := sources[len(sources)-1]; last.closed != 1 {
		t.Errorf("last source closed %d times", last.closed)
	}
}

func TestPlayerLoopChannelChange(t *testing.T) {
	src := &sliceSource{data: make([]float32, testFrameSize), step: testFrameSize, rate: testSampleRate, channels: 1}
	opts := PlayerOptions{
		ChunkFrames: testFrameSize,
		Loop:        true,
		Reopen: func() (Source, error) {
			return &sliceSource{rate: testSampleRate, channels: 2}, nil
		},
	}
	player, _, _ := newTestPlayer(t, src, opts)
	if err := player.Run(context.Background()); err == nil {
		t.Error("Run accepted a reopened source with a different channel count")
	}
}

func TestPlayerLoopShortSource(t *testing.T) {
	tests := []struct {
		name string
		data []float32
		// reopened sources are always shorter than a chunk
		wantReopens int
	}{
		{"first pass short", make([]float32, 10), 0},
		{"reopened pass short", make([]float32, testFrameSize), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceSource{data: tt.data, step: testFrameSize, rate: testSampleRate, channels: 1}
			reopens := 0
			opts := PlayerOptions{
				ChunkFrames: testFrameSize,
				Loop:        true,
				Reopen: func() (Source, error) {
					reopens++
					return &sliceSource{data: make([]float32, 10), step: testFrameSize, rate: testSampleRate, channels: 1}, nil
				},
			}
			player, _, clock := newTestPlayer(t, src, opts)

			done := make(chan error, 1)
			go func() { done <- player.Run(context.Background()) }()
			select {
			case err := <-done:
				if !errors.Is(err, ErrShortSource) {
					t.Errorf("Run = %v, want ErrShortSource", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Run kept reopening a source shorter than one chunk")
			}
			if reopens != tt.wantReopens {
				t.Errorf("reopened %d times, want %d", reopens, tt.wantReopens)
			}
			// Every restart is paced like a chunk.
			if len(clock.sleeps) < tt.wantReopens {
				t.Errorf("%d sleeps for %d reopens", len(clock.sleeps), reopens)
			}
		})
	}
}

func TestPlayerCancelledContext(t *testing.T) {
	src := &sliceSource{data: make([]float32, 10*testFrameSize), step: testFrameSize, rate: testSampleRate, channels: 1}
	player, out, _ := newTestPlayer(t, src, PlayerOptions{ChunkFrames: testFrameSize})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := player.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Generation() != 0 || src.closed != 1 {
		t.Errorf("cancelled Run published %d windows, closed %d", out.Generation(), src.closed)
	}
}

func TestPlayerMonitorErrorDoesNotStop(t *testing.T) {
	src := &sliceSource{data: make([]float32, 3*testFrameSize), step: testFrameSize, rate: testSampleRate, channels: 1}
	sink := &recordingSink{err: errors.New("device gone")}
	player, _, _ := newTestPlayer(t, src, PlayerOptions{ChunkFrames: testFrameSize, Monitor: sink})

	if err := player.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.chunks) != 3 {
		t.Errorf("monitor got %d chunks, want 3", len(sink.chunks))
	}
}
