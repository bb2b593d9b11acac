package opengl

import (
	"errors"
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"

	"shaderviz/internal/gpu"
)

// Surface presents the window's default framebuffer.
type Surface struct {
	window *glfw.Window
	cfg    gpu.SurfaceConfig
	srgb   bool
}

var _ gpu.Surface = (*Surface)(nil)

// NewSurface wraps window, whose context must be current. srgbCapable
// reports whether the window was created with the sRGB framebuffer hint.
func NewSurface(window *glfw.Window, srgbCapable bool) *Surface {
	return &Surface{window: window, srgb: srgbCapable}
}

func (s *Surface) Capabilities() gpu.SurfaceCapabilities {
	formats := []gpu.TextureFormat{gpu.FormatRGBA8Unorm}
	if s.srgb {
		formats = append([]gpu.TextureFormat{gpu.FormatRGBA8UnormSRGB}, formats...)
	}
	return gpu.SurfaceCapabilities{
		Formats:      formats,
		PresentModes: []gpu.PresentMode{gpu.PresentFifo, gpu.PresentImmediate},
	}
}

// Configure records the size and sets the swap interval. The window
// itself owns the framebuffer size.
func (s *Surface) Configure(cfg gpu.SurfaceConfig) error {
	if cfg.Size.Empty() {
		return fmt.Errorf("configure surface at %v", cfg.Size)
	}
	if cfg.Format.IsBGRA() || (cfg.Format.IsSRGB() && !s.srgb) {
		return fmt.Errorf("surface format %v: %w", cfg.Format, gpu.ErrUnsupported)
	}
	interval := 1
	if cfg.PresentMode == gpu.PresentImmediate {
		interval = 0
	}
	glfw.SwapInterval(interval)
	s.cfg = cfg
	return nil
}

func (s *Surface) Acquire() (gpu.SurfaceTexture, error) {
	if s.cfg.Size.Empty() {
		return nil, errors.New("surface not configured")
	}
	if s.window.GetAttrib(glfw.Iconified) == glfw.True {
		return nil, fmt.Errorf("window minimised: %w", gpu.ErrTimeout)
	}
	return &surfaceTexture{s: s, view: &texture{size: s.cfg.Size, format: s.cfg.Format}}, nil
}

type surfaceTexture struct {
	s         *Surface
	view      *texture
	presented bool
}

func (t *surfaceTexture) View() gpu.Texture { return t.view }

func (t *surfaceTexture) Present() error {
	if t.presented {
		return errors.New("frame presented twice")
	}
	t.presented = true
	t.s.window.SwapBuffers()
	return glError("present")
}
