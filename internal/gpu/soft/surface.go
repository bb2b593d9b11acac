package soft

import (
	"errors"
	"fmt"
	"image"
	"slices"

	"shaderviz/internal/gpu"
)

// Surface is an in-memory swap chain with a single image. Failures queued
// with FailNext are returned by the following Acquire calls.
type Surface struct {
	dev      *Device
	formats  []gpu.TextureFormat
	cfg      gpu.SurfaceConfig
	image    gpu.Texture
	failures []error

	configures int
	presents   int
	last       *image.RGBA
}

var _ gpu.Surface = (*Surface)(nil)

// NewSurface offers formats, or bgra8unorm-srgb and bgra8unorm when none
// are given.
func NewSurface(dev *Device, formats ...gpu.TextureFormat) *Surface {
	if len(formats) == 0 {
		formats = []gpu.TextureFormat{gpu.FormatBGRA8UnormSRGB, gpu.FormatBGRA8Unorm}
	}
	return &Surface{dev: dev, formats: formats}
}

func (s *Surface) Capabilities() gpu.SurfaceCapabilities {
	return gpu.SurfaceCapabilities{
		Formats:      slices.Clone(s.formats),
		PresentModes: []gpu.PresentMode{gpu.PresentFifo},
	}
}

func (s *Surface) Configure(cfg gpu.SurfaceConfig) error {
	if cfg.Size.Empty() {
		return fmt.Errorf("configure surface at %v", cfg.Size)
	}
	if !slices.Contains(s.formats, cfg.Format) {
		return fmt.Errorf("surface format %v: %w", cfg.Format, gpu.ErrUnsupported)
	}
	img, err := s.dev.CreateTexture(gpu.TextureDesc{
		Label:  "surface",
		Size:   cfg.Size,
		Format: cfg.Format,
		Usage:  gpu.TextureRenderAttachment,
	})
	if err != nil {
		return err
	}
	if s.image != nil {
		s.image.Destroy()
	}
	s.image = img
	s.cfg = cfg
	s.configures++
	return nil
}

// FailNext queues errors for the next Acquire calls, one per call.
func (s *Surface) FailNext(errs ...error) {
	s.failures = append(s.failures, errs...)
}

func (s *Surface) Acquire() (gpu.SurfaceTexture, error) {
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	if s.image == nil {
		return nil, errors.New("surface not configured")
	}
	return &surfaceTexture{s: s}, nil
}

// Config returns the last applied configuration.
func (s *Surface) Config() gpu.SurfaceConfig { return s.cfg }

// Configures counts successful Configure calls.
func (s *Surface) Configures() int { return s.configures }

// Presents counts presented frames.
func (s *Surface) Presents() int { return s.presents }

// LastFrame is a copy of the most recently presented image.
func (s *Surface) LastFrame() *image.RGBA { return s.last }

type surfaceTexture struct {
	s         *Surface
	presented bool
}

func (t *surfaceTexture) View() gpu.Texture { return t.s.image }

func (t *surfaceTexture) Present() error {
	if t.presented {
		return errors.New("frame presented twice")
	}
	t.presented = true
	t.s.presents++
	t.s.last = Image(t.s.image)
	return nil
}
