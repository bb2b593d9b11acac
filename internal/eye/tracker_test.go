package eye

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shaderviz/internal/shared"
)

// scriptedSource replays a fixed list of frames and errors.
type scriptedSource struct {
	frames []image.Image
	errs   []error
	i      int
	closed bool
}

func (s *scriptedSource) Frame(ctx context.Context) (image.Image, error) {
	if s.i >= len(s.frames) {
		return nil, ErrNoFrame
	}
	i := s.i
	s.i++
	return s.frames[i], s.errs[i]
}

func (s *scriptedSource) Close() error { s.closed = true; return nil }

// noSleep records retry delays instead of waiting.
func noSleep(tr *Tracker) *[]time.Duration {
	var delays []time.Duration
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &delays
}

func TestTrackerPublishesEveryFrame(t *testing.T) {
	white := uniform(40, 30, color.White)
	src := &scriptedSource{
		frames: []image.Image{white, nil, white},
		errs:   []error{nil, errors.New("timeout"), nil},
	}
	out := shared.NewPoints()
	out.Publish([]shared.Point{{X: 0.5, Y: 0.5}})

	tr := NewTracker(src, NewDetector(DetectorOptions{}), out, nil, 4)
	delays := noSleep(tr)
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Generation() != 3 {
		t.Errorf("generation = %d, want 3 (seed + two frames)", out.Generation())
	}
	if got := out.Snapshot(); len(got) != 0 {
		t.Errorf("snapshot = %v, want empty", got)
	}
	if !src.closed {
		t.Error("source not closed")
	}
	if len(*delays) != 1 || (*delays)[0] != minRetryDelay {
		t.Errorf("retry delays = %v, want [%v]", *delays, minRetryDelay)
	}
}

func TestTrackerGivesUpOnBrokenCamera(t *testing.T) {
	n := maxConsecutiveFailures + 5
	src := &scriptedSource{frames: make([]image.Image, n), errs: make([]error, n)}
	for i := range src.errs {
		src.errs[i] = errors.New("device unplugged")
	}
	out := shared.NewPoints()

	tr := NewTracker(src, NewDetector(DetectorOptions{}), out, nil, 0)
	delays := noSleep(tr)
	err := tr.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "device unplugged") {
		t.Errorf("Run error = %v", err)
	}
	if out.Generation() != 0 {
		t.Error("failed frames must not publish")
	}
	// No wait after the final failure.
	if len(*delays) != maxConsecutiveFailures-1 {
		t.Fatalf("%d retry delays, want %d", len(*delays), maxConsecutiveFailures-1)
	}
	want := minRetryDelay
	for i, d := range *delays {
		if d != want {
			t.Errorf("delay %d = %v, want %v", i, d, want)
		}
		want = min(2*want, maxRetryDelay)
	}
}

func TestTrackerRecoversFromHiccup(t *testing.T) {
	white := uniform(40, 30, color.White)
	var frames []image.Image
	var errs []error
	// A burst of failures shorter than the limit, twice, between good frames.
	for range 2 {
		for range maxConsecutiveFailures - 1 {
			frames = append(frames, nil)
			errs = append(errs, errors.New("timeout"))
		}
		frames = append(frames, white)
		errs = append(errs, nil)
	}
	src := &scriptedSource{frames: frames, errs: errs}
	out := shared.NewPoints()
	tr := NewTracker(src, NewDetector(DetectorOptions{}), out, nil, 0)
	delays := noSleep(tr)

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Generation() != 2 {
		t.Errorf("generation = %d, want 2", out.Generation())
	}
	// The delay restarts from the minimum after a good frame.
	if d := (*delays)[maxConsecutiveFailures-1]; d != minRetryDelay {
		t.Errorf("first delay of the second burst = %v, want %v", d, minRetryDelay)
	}
}

func TestTrackerCancelledDuringRetry(t *testing.T) {
	src := &scriptedSource{frames: []image.Image{nil}, errs: []error{errors.New("timeout")}}
	ctx, cancel := context.WithCancel(context.Background())
	tr := NewTracker(src, NewDetector(DetectorOptions{}), shared.NewPoints(), nil, 0)
	tr.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	if err := tr.Run(ctx); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestTrackerCancelled(t *testing.T) {
	src := &scriptedSource{frames: []image.Image{uniform(8, 8, color.White)}, errs: []error{nil}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewTracker(src, NewDetector(DetectorOptions{}), shared.NewPoints(), nil, 0).Run(ctx); err != nil {
		t.Errorf("Run: %v", err)
	}
	if src.i != 0 || !src.closed {
		t.Errorf("cancelled tracker read %d frames, closed %v", src.i, src.closed)
	}
}

func TestRawSourceFrames(t *testing.T) {
	data := []byte{
		255, 0, 0, 0, 255, 0, // frame 1
		0, 0, 255, 9, 9, 9, // frame 2
		1, 2, // truncated
	}
	src := newRawSource(io.NopCloser(bytes.NewReader(data)), 2, 1)
	ctx := context.Background()

	want := []color.RGBA{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}, {9, 9, 9, 255}}
	for f := range 2 {
		img, err := src.Frame(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", f, err)
		}
		rgba := img.(*image.RGBA)
		for x := range 2 {
			if got := rgba.RGBAAt(x, 0); got != want[f*2+x] {
				t.Errorf("frame %d pixel %d = %v, want %v", f, x, got, want[f*2+x])
			}
		}
	}
	if _, err := src.Frame(ctx); !errors.Is(err, ErrNoFrame) {
		t.Errorf("truncated frame error = %v, want ErrNoFrame", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestFFmpegCommand(t *testing.T) {
	cmd := ffmpegCommand(FFmpegOptions{Device: "/dev/video0", Format: "v4l2", Width: 320, Height: 240}, io.Discard)
	args := strings.Join(cmd.Args, " ")

	for _, want := range []string{"-f v4l2", "-i /dev/video0", "rawvideo", "rgb24", "320x240", "pipe:"} {
		if !strings.Contains(args, want) {
			t.Errorf("ffmpeg args %q missing %q", args, want)
		}
	}
	if strings.Index(args, "-f v4l2") > strings.Index(args, "-i /dev/video0") {
		t.Errorf("input format must precede the input: %q", args)
	}
}

func TestNewFFmpegSourceRejectsEmptySize(t *testing.T) {
	if _, err := NewFFmpegSource(FFmpegOptions{Device: "/dev/video0"}); err == nil {
		t.Error("NewFFmpegSource accepted a zero capture size")
	}
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, uniform(4, 4, c)); err != nil {
		t.Fatal(err)
	}
}

func TestImageSequence(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}
	writePNG(t, paths[0], color.Black)
	writePNG(t, paths[1], color.White)
	ctx := context.Background()

	t.Run("once", func(t *testing.T) {
		seq, err := NewImageSequence(paths, false)
		if err != nil {
			t.Fatal(err)
		}
		for range 2 {
			if _, err := seq.Frame(ctx); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := seq.Frame(ctx); !errors.Is(err, ErrNoFrame) {
			t.Errorf("third Frame error = %v, want ErrNoFrame", err)
		}
	})

	t.Run("loop", func(t *testing.T) {
		seq, err := NewImageSequence(paths, true)
		if err != nil {
			t.Fatal(err)
		}
		var lum []uint8
		for range 5 {
			img, err := seq.Frame(ctx)
			if err != nil {
				t.Fatal(err)
			}
			r, _, _, _ := img.At(0, 0).RGBA()
			lum = append(lum, uint8(r>>8))
		}
		if !bytes.Equal(lum, []byte{0, 255, 0, 255, 0}) {
			t.Errorf("looped luminance = %v", lum)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := NewImageSequence(nil, false); err == nil {
			t.Error("empty sequence accepted")
		}
		if _, err := NewImageSequence([]string{filepath.Join(dir, "missing.png")}, false); err == nil {
			t.Error("missing file accepted")
		}
	})
}
