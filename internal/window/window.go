// SPDX-License-Identifier: MIT

// Package window owns the glfw window and the render loop. Everything in
// it must run on the main OS thread: glfw and both GPU backends require it.
package window

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/glfw/v3.3/glfw"

	"shaderviz/internal/gpu"
	"shaderviz/internal/gpu/opengl"
	"shaderviz/internal/gpu/webgpu"
	"shaderviz/internal/log"
	"shaderviz/internal/render"
)

var logger = log.New("window")

// Backend selects the GPU implementation.
type Backend string

const (
	BackendWebGPU Backend = "webgpu"
	BackendGL     Backend = "gl"
)

// ParseBackend accepts "webgpu" (also "wgpu", "vulkan") and "gl" (also
// "opengl").
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "webgpu", "wgpu", "vulkan":
		return BackendWebGPU, nil
	case "gl", "opengl":
		return BackendGL, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want webgpu or gl)", name)
	}
}

// Options configures the window and the renderer inside it.
type Options struct {
	Title   string
	Size    gpu.Size
	Backend Backend
	Render  render.Options
}

// resolve applies the Pi rule: the constrained display always uses GL.
func (o *Options) resolve() {
	if o.Render.Pi {
		o.Backend = BackendGL
	}
	if o.Backend == "" {
		o.Backend = BackendWebGPU
	}
	if o.Title == "" {
		o.Title = "shaderviz"
	}
}

// Run opens the window and renders until it is closed, Escape is pressed
// or ctx is cancelled. A GPU out-of-memory error ends the loop and is
// returned.
func Run(ctx context.Context, opts Options) error {
	opts.resolve()
	if opts.Size.Empty() {
		return fmt.Errorf("window size %v", opts.Size)
	}
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	defer glfw.Terminate()

	hint(opts.Backend, true)
	w, err := glfw.CreateWindow(opts.Size.Width, opts.Size.Height, opts.Title, nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer w.Destroy()

	dev, surface, release, err := openWindowDevice(opts.Backend, w)
	if err != nil {
		return err
	}
	defer release()

	fw, fh := w.GetFramebufferSize()
	state, err := render.NewWindowState(dev, surface, gpu.Size{Width: fw, Height: fh}, opts.Render)
	if err != nil {
		return err
	}
	defer state.Release()

	ev := &events{h: state, close: func() { w.SetShouldClose(true) }}
	ev.attach(w)
	logger.Infof("%s window %dx%d (%s)", opts.Backend, fw, fh, opts.Title)

	for !w.ShouldClose() {
		if ctx.Err() != nil {
			return nil
		}
		glfw.PollEvents()
		if err := state.RenderTick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	logger.Infof("window closed")
	return nil
}

// Export renders one frame to opts.Render.ImagePath without showing a
// window. GL still needs a context, so it gets a hidden one.
func Export(ctx context.Context, opts Options) error {
	opts.resolve()
	var dev gpu.Device
	switch opts.Backend {
	case BackendWebGPU:
		d, err := webgpu.OpenHeadless()
		if err != nil {
			return err
		}
		dev = d
	case BackendGL:
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("init glfw: %w", err)
		}
		defer glfw.Terminate()
		hint(BackendGL, false)
		w, err := glfw.CreateWindow(1, 1, opts.Title, nil, nil)
		if err != nil {
			return fmt.Errorf("create context window: %w", err)
		}
		defer w.Destroy()
		w.MakeContextCurrent()
		d, err := opengl.New()
		if err != nil {
			return err
		}
		dev = d
	default:
		return fmt.Errorf("unknown backend %q", opts.Backend)
	}
	defer dev.Release()
	return RenderFile(ctx, dev, opts.Render)
}

// RenderFile ticks a file state on dev until the image is written.
func RenderFile(ctx context.Context, dev gpu.Device, ro render.Options) error {
	state, err := render.NewFileState(dev, ro)
	if err != nil {
		return err
	}
	defer state.Release()
	for {
		err := state.RenderTick(ctx)
		if errors.Is(err, render.ErrRenderComplete) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func hint(b Backend, visible bool) {
	glfw.DefaultWindowHints()
	if !visible {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}
	if b == BackendWebGPU {
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
		return
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLAPI)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.SRGBCapable, glfw.True)
}

func openWindowDevice(b Backend, w *glfw.Window) (gpu.Device, gpu.Surface, func(), error) {
	switch b {
	case BackendWebGPU:
		dev, surface, err := webgpu.Open(w)
		if err != nil {
			return nil, nil, nil, err
		}
		return dev, surface, func() {
			surface.Release()
			dev.Release()
		}, nil
	case BackendGL:
		w.MakeContextCurrent()
		dev, err := opengl.New()
		if err != nil {
			return nil, nil, nil, err
		}
		return dev, opengl.NewSurface(w, true), dev.Release, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q", b)
	}
}
