package render

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shaderviz/internal/gpu"
	"shaderviz/internal/gpu/soft"
	"shaderviz/internal/shared"
)

// mainFragment shows the frame values: red is time/10, green the first
// slider, blue the feature.
func mainFragment(_ [2]float32, b soft.Bindings) [4]float32 {
	return [4]float32{b.Float(SlotFrame, 0) / 10, b.Float(SlotSliders, 0), b.Float(SlotFrame, 1), 1}
}

func white([2]float32, soft.Bindings) [4]float32 { return [4]float32{1, 1, 1, 1} }

type harness struct {
	dev      *soft.Device
	surface  *soft.Surface
	state    *State
	now      time.Time
	features *shared.Floats
}

func newHarness(t *testing.T, size gpu.Size, opts Options) *harness {
	t.Helper()
	h := &harness{
		dev:      soft.New(soft.WithFragment("main", mainFragment), soft.WithFragment("ui", white)),
		now:      time.Unix(100, 0),
		features: shared.NewFloats(1),
	}
	h.surface = soft.NewSurface(h.dev)
	opts.Features = h.features
	opts.Now = func() time.Time { return h.now }
	s, err := NewWindowState(h.dev, h.surface, size, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Release)
	h.state = s
	return h
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	if err := h.state.RenderTick(context.Background()); err != nil {
		t.Fatalf("RenderTick: %v", err)
	}
}

func TestWindowFrame(t *testing.T) {
	h := newHarness(t, gpu.Size{Width: 80, Height: 60}, Options{TimeOffset: 0.5})
	shared.PublishInto(h.features, []float32{0.5})
	h.now = h.now.Add(2 * time.Second)
	h.tick(t)

	if h.surface.Presents() != 1 {
		t.Fatalf("%d presents", h.surface.Presents())
	}
	if got := h.surface.Config().Format; got != gpu.FormatBGRA8Unorm {
		t.Errorf("surface format %v", got)
	}
	want := color.RGBA{64, 128, 128, 255}
	if got := h.surface.LastFrame().RGBAAt(70, 50); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
	// hidden sliders are not drawn
	if got := h.surface.LastFrame().RGBAAt(10, 6); got == (color.RGBA{255, 255, 255, 255}) {
		t.Error("slider drawn while hidden")
	}
}

func TestWindowSRGBFormat(t *testing.T) {
	h := newHarness(t, gpu.Size{Width: 4, Height: 4}, Options{SRGB: true})
	if got := h.state.opts.Sliders; got != 10 {
		t.Errorf("default sliders = %d", got)
	}
	if got := h.surface.Config().Format; got != gpu.FormatBGRA8UnormSRGB {
		t.Errorf("surface format %v", got)
	}
}

func TestSlidersDrawnWhenShown(t *testing.T) {
	h := newHarness(t, gpu.Size{Width: 80, Height: 60}, Options{})
	h.state.KeyPressed(KeyM)
	h.tick(t)
	if got := h.surface.LastFrame().RGBAAt(10, 6); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("slider pixel = %v", got)
	}
}

func TestKeyboardDrivesSliders(t *testing.T) {
	h := newHarness(t, gpu.Size{Width: 80, Height: 60}, Options{})
	s := h.state

	s.KeyPressed(KeyM)
	s.KeyPressed(KeyM) // held, not a second toggle
	if s.UI().Hidden {
		t.Fatal("m did not show the sliders")
	}
	s.KeyPressed(Key3)
	s.KeyPressed(KeyUp)
	s.KeyReleased(KeyUp)
	s.KeyPressed(KeyUp)
	s.KeyPressed(KeyUp) // repeat
	if got := s.UI().Sliders[3].Value; !near(got, 0.52) {
		t.Errorf("slider 3 = %v, want 0.52", got)
	}
	s.KeyPressed(KeyDown)
	if got := s.UI().Sliders[3].Value; !near(got, 0.51) {
		t.Errorf("slider 3 = %v, want 0.51", got)
	}

	s.KeyReleased(KeyM)
	s.KeyPressed(KeyM)
	if !s.UI().Hidden {
		t.Error("second m did not hide the sliders")
	}
}

func TestPointerDragsSlider(t *testing.T) {
	h := newHarness(t, gpu.Size{Width: 80, Height: 60}, Options{})
	s := h.state

	s.PointerMoved(10, 6)
	s.PointerButton(true)
	h.tick(t)
	if got := s.UI().Sliders[0].Value; got != 0.5 {
		t.Fatalf("click on hidden sliders moved slider 0 to %v", got)
	}

	s.KeyPressed(KeyM)
	h.tick(t)
	if got := s.UI().Sliders[0].Value; !near(got, 0.4) {
		t.Errorf("slider 0 = %v, want 0.4", got)
	}

	// held button follows the pointer
	s.PointerMoved(11, 6)
	h.tick(t)
	if got := s.UI().Sliders[0].Value; !near(got, 0.45) {
		t.Errorf("slider 0 = %v, want 0.45", got)
	}

	s.PointerButton(false)
	s.PointerMoved(14, 6)
	h.tick(t)
	if got := s.UI().Sliders[0].Value; !near(got, 0.45) {
		t.Errorf("released button still moved slider 0 to %v", got)
	}
}

func TestResize(t *testing.T) {
	h := newHarness(t, gpu.Size{Width: 8, Height: 6}, Options{})
	configures := h.surface.Configures()

	if err := h.state.Resize(gpu.Size{}); err != nil {
		t.Fatal(err)
	}
	if err := h.state.Resize(gpu.Size{Width: 100}); err != nil {
		t.Fatal(err)
	}
	if h.surface.Configures() != configures {
		t.Fatal("zero size reconfigured the surface")
	}

	if err := h.state.Resize(gpu.Size{Width: 16, Height: 12}); err != nil {
		t.Fatal(err)
	}
	if h.surface.Configures() != configures+1 {
		t.Fatal("resize did not reconfigure")
	}
	want := gpu.Size{Width: 16, Height: 12}
	if h.surface.Config().Size != want || h.state.Size() != want {
		t.Errorf("size after resize: surface %v, state %v", h.surface.Config().Size, h.state.Size())
	}
	h.tick(t)
	if b := h.surface.LastFrame().Bounds(); b.Dx() != 16 || b.Dy() != 12 {
		t.Errorf("frame is %v", b)
	}
}

func TestAcquireFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		fatal       bool
		reconfigure bool
	}{
		{"lost", gpu.ErrSurfaceLost, false, true},
		{"outdated", fmt.Errorf("acquire: %w", gpu.ErrSurfaceOutdated), false, true},
		{"timeout", gpu.ErrTimeout, false, false},
		{"other", errors.New("driver hiccup"), false, false},
		{"out of memory", fmt.Errorf("acquire: %w", gpu.ErrOutOfMemory), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, gpu.Size{Width: 4, Height: 4}, Options{})
			configures := h.surface.Configures()
			h.surface.FailNext(tt.err)

			err := h.state.RenderTick(context.Background())
			if tt.fatal {
				if !errors.Is(err, gpu.ErrOutOfMemory) {
					t.Fatalf("RenderTick = %v, want out of memory", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RenderTick = %v, want frame skipped", err)
			}
			if h.surface.Presents() != 0 {
				t.Error("failed frame was presented")
			}
			if got := h.surface.Configures() - configures; (got == 1) != tt.reconfigure {
				t.Errorf("%d reconfigures", got)
			}

			h.tick(t)
			if h.surface.Presents() != 1 {
				t.Error("next frame not presented")
			}
		})
	}
}

func TestPiRect(t *testing.T) {
	h := newHarness(t, gpu.Size{Width: 40, Height: 40}, Options{Pi: true})
	h.tick(t)
	frame := h.surface.LastFrame()
	if got := frame.RGBAAt(0, 0); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("corner = %v, want the clear colour", got)
	}
	if got := frame.RGBAAt(16, 30); got.B == 255 && got.R == 0 && got.G == 0 {
		t.Error("pi rectangle not drawn")
	}
}

func TestNewWindowStateRejectsEmptySize(t *testing.T) {
	dev := soft.New()
	if _, err := NewWindowState(dev, soft.NewSurface(dev), gpu.Size{}, Options{}); err == nil {
		t.Fatal("empty window accepted")
	}
}

func TestFileRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	dev := soft.New(soft.WithFragment("main", mainFragment))
	now := time.Unix(100, 0)
	features := shared.NewFloats(1)
	shared.PublishInto(features, []float32{1})

	s, err := NewFileState(dev, Options{
		ImagePath:  path,
		TimeOffset: 4,
		Features:   features,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Release()

	if s.Size() != ExportSize {
		t.Fatalf("size %v", s.Size())
	}
	if err := s.Resize(gpu.Size{Width: 10, Height: 10}); err != nil || s.Size() != ExportSize {
		t.Fatalf("resize changed a file render: %v %v", s.Size(), err)
	}
	if err := s.RenderTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.Done() {
		t.Fatal("not done after the first frame")
	}
	if err := s.RenderTick(context.Background()); !errors.Is(err, ErrRenderComplete) {
		t.Fatalf("second tick = %v, want ErrRenderComplete", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 1920 || b.Dy() != 1080 {
		t.Fatalf("image is %v", b)
	}
	r, g, b, _ := img.At(960, 540).RGBA()
	if r>>8 != 102 || g>>8 != 128 || b>>8 != 255 {
		t.Errorf("centre = (%d, %d, %d), want (102, 128, 255)", r>>8, g>>8, b>>8)
	}
	if st := dev.Stats(); st.Copies != 1 || st.Submits != 1 {
		t.Errorf("stats %+v", st)
	}
}
