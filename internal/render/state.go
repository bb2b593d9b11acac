// SPDX-License-Identifier: MIT
/*
Package render owns the frame loop: it snapshots the shared audio and eye
buffers, uploads them with the slider values, draws the shader quad and
the slider overlay, and then presents to a window or exports one image.

A State is created in one of two configurations and never changes
between them:

	NewWindowState  renders to a gpu.Surface until the window closes
	NewFileState    renders one 1920x1080 frame to an image file

State is driven from a single goroutine, the one that owns the device.
*/
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shaderviz/internal/gpu"
	"shaderviz/internal/log"
	"shaderviz/internal/observe"
	"shaderviz/internal/shared"
)

var logger = log.New("render")

// ErrRenderComplete is returned by RenderTick once a file render has been
// written.
var ErrRenderComplete = errors.New("render complete")

const (
	defaultSliders = 10
	defaultMaxEyes = 16
	fpsLogInterval = time.Second
)

// Options configures a State. Zero values take defaults.
type Options struct {
	Shaders Shaders
	SRGB    bool
	// Pi draws into the smaller rectangle used on the Pi display.
	Pi         bool
	TimeOffset float32
	Sliders    int
	MaxEyes    int
	// SpectrumLen binds a float array of this length at slot 3 when
	// positive.
	SpectrumLen int
	// SampleRate of the audio behind Features.
	SampleRate float64

	// Features and Eyes are read once per frame; nil reads as silence and
	// no eyes.
	Features *shared.Floats
	Eyes     *shared.Points

	// ImagePath is the file written by a file render.
	ImagePath string
	ShowFPS   bool
	Metrics   *observe.Metrics
	// Now replaces time.Now.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Shaders == (Shaders{}) {
		o.Shaders = DefaultShaders()
	}
	if o.Sliders <= 0 {
		o.Sliders = defaultSliders
	}
	if o.MaxEyes <= 0 {
		o.MaxEyes = defaultMaxEyes
	}
	if o.ImagePath == "" {
		o.ImagePath = "screen.png"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type State struct {
	dev    gpu.Device
	queue  gpu.Queue
	target target
	window *windowTarget
	file   *fileTarget
	opts   Options

	display *display
	ui      *UI
	overlay *uiLayer
	input   *input

	start   time.Time
	fps     FPS
	fpsLog  time.Time
	feature []float32
	sliders []float32
}

// NewWindowState configures surface at size and builds the pipelines for
// its format.
func NewWindowState(dev gpu.Device, surface gpu.Surface, size gpu.Size, opts Options) (*State, error) {
	if size.Empty() {
		return nil, fmt.Errorf("window size %v", size)
	}
	opts.defaults()
	wt, err := newWindowTarget(surface, size, opts.SRGB)
	if err != nil {
		return nil, err
	}
	s, err := newState(dev, wt, wt.cfg.Format, opts)
	if err != nil {
		return nil, err
	}
	s.window = wt
	return s, nil
}

// NewFileState prepares an offscreen render to opts.ImagePath.
func NewFileState(dev gpu.Device, opts Options) (*State, error) {
	opts.defaults()
	ft, err := newFileTarget(dev, opts.ImagePath, opts.SRGB)
	if err != nil {
		return nil, err
	}
	s, err := newState(dev, ft, ft.texture.Format(), opts)
	if err != nil {
		ft.destroy()
		return nil, err
	}
	s.file = ft
	return s, nil
}

func newState(dev gpu.Device, t target, format gpu.TextureFormat, opts Options) (*State, error) {
	quad := FullScreen()
	if opts.Pi {
		quad = PiRect()
	}
	d, err := newDisplay(dev, format, opts.Shaders, quad, FrameLayout{
		Sliders:     opts.Sliders,
		MaxEyes:     opts.MaxEyes,
		SpectrumLen: opts.SpectrumLen,
		SampleRate:  opts.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	ui := NewUI(opts.Sliders)
	overlay, err := newUILayer(dev, format, ui.Sliders, opts.Shaders)
	if err != nil {
		d.destroy()
		return nil, err
	}
	return &State{
		dev:     dev,
		queue:   dev.Queue(),
		target:  t,
		opts:    opts,
		display: d,
		ui:      ui,
		overlay: overlay,
		input:   newInput(),
		start:   opts.Now(),
	}, nil
}

// UI exposes the sliders.
func (s *State) UI() *UI { return s.ui }

// Size is the current render target size.
func (s *State) Size() gpu.Size { return s.target.size() }

// Done reports whether a file render has been written.
func (s *State) Done() bool { return s.file != nil && s.file.done }

// Resize reconfigures the window surface. Zero-area sizes and file
// renders are ignored.
func (s *State) Resize(size gpu.Size) error {
	if s.window == nil || size.Empty() {
		return nil
	}
	if err := s.window.resize(size); err != nil {
		return err
	}
	logger.Debugf("resized to %v", size)
	return nil
}

// KeyPressed handles a key going down. Repeats while held are ignored.
func (s *State) KeyPressed(k Key) {
	if !s.input.justPressed(k) {
		return
	}
	switch {
	case k == KeyM:
		s.ui.Toggle()
	case k.Digit() >= 0:
		s.ui.Select(k.Digit())
	case k == KeyUp:
		s.ui.Increment()
	case k == KeyDown:
		s.ui.Decrement()
	}
}

func (s *State) KeyReleased(k Key) { s.input.released(k) }

// PointerMoved records the pointer in window pixels.
func (s *State) PointerMoved(x, y float64) { s.input.x, s.input.y = x, y }

// PointerButton records the primary button. While it is down every tick
// clicks at the pointer.
func (s *State) PointerButton(down bool) { s.input.buttonOn = down }

// RenderTick renders one frame. Surface loss reconfigures and skips the
// frame, out of memory is returned as fatal, and other acquire errors are
// logged and skip the frame.
func (s *State) RenderTick(ctx context.Context) error {
	if s.Done() {
		return ErrRenderComplete
	}
	began := s.opts.Now()

	if s.window != nil && s.input.buttonOn {
		s.ui.Click(ClickToNDC(s.input.x, s.input.y, s.window.size()))
	}

	view, err := s.target.acquire()
	if err != nil {
		return s.acquireFailed(ctx, err)
	}

	if err := s.draw(view); err != nil {
		if errors.Is(err, gpu.ErrOutOfMemory) || s.file != nil {
			return err
		}
		logger.Errorf("frame dropped: %v", err)
		s.opts.Metrics.RecordSkip(ctx, "submit")
		return nil
	}

	if err := s.target.finish(ctx); err != nil {
		if errors.Is(err, gpu.ErrOutOfMemory) || s.file != nil {
			return fmt.Errorf("%s: %w", s.target.name(), err)
		}
		if errors.Is(err, gpu.ErrSurfaceLost) || errors.Is(err, gpu.ErrSurfaceOutdated) {
			return s.acquireFailed(ctx, err)
		}
		logger.Warnf("present: %v", err)
	}

	now := s.opts.Now()
	s.opts.Metrics.RecordFrame(ctx, s.target.name(), now.Sub(began))
	s.tickFPS(now)
	return nil
}

func (s *State) acquireFailed(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrRenderComplete):
		return err
	case errors.Is(err, gpu.ErrOutOfMemory):
		return fmt.Errorf("acquire frame: %w", err)
	case s.window != nil && (errors.Is(err, gpu.ErrSurfaceLost) || errors.Is(err, gpu.ErrSurfaceOutdated)):
		logger.Warnf("%v, reconfiguring at %v", err, s.window.size())
		s.opts.Metrics.RecordSkip(ctx, "surface_lost")
		if rerr := s.window.reconfigure(); rerr != nil {
			if errors.Is(rerr, gpu.ErrOutOfMemory) {
				return rerr
			}
			logger.Errorf("%v", rerr)
		}
		return nil
	default:
		logger.Errorf("acquire frame: %v", err)
		s.opts.Metrics.RecordSkip(ctx, "acquire")
		return nil
	}
}

// draw encodes the pass, uploads this frame's values and submits.
func (s *State) draw(view gpu.Texture) error {
	enc, err := s.dev.CreateCommandEncoder()
	if err != nil {
		return err
	}
	pass, err := enc.BeginRenderPass(gpu.RenderPassDesc{Target: view, Clear: gpu.Blue})
	if err != nil {
		return err
	}
	s.display.render(pass)
	s.overlay.render(pass, s.ui)
	if err := pass.End(); err != nil {
		return err
	}

	if err := s.display.buffers.Upload(s.queue, s.frameValues()); err != nil {
		return err
	}
	if err := s.overlay.upload(s.queue, s.ui); err != nil {
		return err
	}

	if err := s.target.encode(enc); err != nil {
		return err
	}
	cmd, err := enc.Finish()
	if err != nil {
		return err
	}
	return s.queue.Submit(cmd)
}

func (s *State) frameValues() FrameValues {
	if s.opts.Features != nil {
		s.feature = shared.SnapshotInto(s.opts.Features, s.feature)
	}
	var eyes []shared.Point
	if s.opts.Eyes != nil {
		eyes = s.opts.Eyes.Snapshot()
	}
	s.sliders = s.ui.Values(s.sliders)
	return FrameValues{
		Time:    float32(s.opts.Now().Sub(s.start).Seconds()) + s.opts.TimeOffset,
		Feature: s.feature,
		Size:    s.target.size(),
		Sliders: s.sliders,
		Eyes:    eyes,
	}
}

func (s *State) tickFPS(now time.Time) {
	if !s.opts.ShowFPS {
		return
	}
	s.fps.Presented(now)
	if now.Sub(s.fpsLog) >= fpsLogInterval {
		s.fpsLog = now
		logger.Infof("%.1f fps", s.fps.Rate())
	}
}

// Release frees the device resources the state created.
func (s *State) Release() {
	s.overlay.destroy()
	s.display.destroy()
	if s.file != nil {
		s.file.destroy()
	}
}
