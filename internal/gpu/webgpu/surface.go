package webgpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"shaderviz/internal/gpu"
)

// Surface is the swap chain of a glfw window.
type Surface struct {
	dev     *Device
	surface *wgpu.Surface
	cfg     gpu.SurfaceConfig
}

var _ gpu.Surface = (*Surface)(nil)

// Capabilities lists the formats and present modes the renderer can use.
// Native formats outside the gpu set are dropped.
func (s *Surface) Capabilities() gpu.SurfaceCapabilities {
	caps := s.surface.GetCapabilities(s.dev.adapter)
	var out gpu.SurfaceCapabilities
	for _, f := range caps.Formats {
		if gf := fromFormat(f); gf != gpu.FormatUndefined {
			out.Formats = append(out.Formats, gf)
		}
	}
	for _, m := range caps.PresentModes {
		if gm, ok := fromPresentMode(m); ok {
			out.PresentModes = append(out.PresentModes, gm)
		}
	}
	return out
}

func (s *Surface) Configure(cfg gpu.SurfaceConfig) error {
	if cfg.Size.Empty() {
		return fmt.Errorf("configure surface at %v", cfg.Size)
	}
	wf, err := toFormat(cfg.Format)
	if err != nil {
		return err
	}
	caps := s.surface.GetCapabilities(s.dev.adapter)
	alpha := wgpu.CompositeAlphaModeAuto
	if len(caps.AlphaModes) > 0 {
		alpha = caps.AlphaModes[0]
	}
	s.surface.Configure(s.dev.adapter, s.dev.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      wf,
		Width:       uint32(cfg.Size.Width),
		Height:      uint32(cfg.Size.Height),
		PresentMode: toPresentMode(cfg.PresentMode),
		AlphaMode:   alpha,
	})
	s.cfg = cfg
	return nil
}

// Acquire returns the next swap chain image. Lost, outdated, timeout and
// out of memory conditions are reported with the gpu sentinels.
func (s *Surface) Acquire() (gpu.SurfaceTexture, error) {
	tex, err := s.surface.GetCurrentTexture()
	if err != nil {
		return nil, classify(err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, classify(err)
	}
	return &surfaceTexture{
		s: s,
		view: &texture{
			tex:    tex,
			view:   view,
			size:   s.cfg.Size,
			format: s.cfg.Format,
		},
	}, nil
}

// Release frees the native surface after the device is done with it.
func (s *Surface) Release() { s.surface.Release() }

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
	t.s.surface.Present()
	t.view.Destroy()
	return nil
}
