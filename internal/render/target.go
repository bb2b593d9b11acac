package render

import (
	"context"
	"fmt"

	"shaderviz/internal/gpu"
)

// target is where a frame goes: a window surface or an offscreen texture
// exported once.
type target interface {
	// acquire returns the texture to render this frame into.
	acquire() (gpu.Texture, error)
	// encode appends commands after the render pass.
	encode(enc gpu.CommandEncoder) error
	// finish runs after submission.
	finish(ctx context.Context) error
	size() gpu.Size
	name() string
}

type windowTarget struct {
	surface gpu.Surface
	cfg     gpu.SurfaceConfig
	frame   gpu.SurfaceTexture
}

func newWindowTarget(surface gpu.Surface, size gpu.Size, srgb bool) (*windowTarget, error) {
	caps := surface.Capabilities()
	format := gpu.PreferredFormat(caps.Formats, srgb)
	if format == gpu.FormatUndefined {
		return nil, fmt.Errorf("surface offers no colour format: %w", gpu.ErrUnsupported)
	}
	t := &windowTarget{
		surface: surface,
		cfg:     gpu.SurfaceConfig{Format: format, Size: size, PresentMode: gpu.PresentFifo},
	}
	if err := t.reconfigure(); err != nil {
		return nil, err
	}
	logger.Infof("surface %v %v", size, format)
	return t, nil
}

func (t *windowTarget) reconfigure() error {
	if err := t.surface.Configure(t.cfg); err != nil {
		return fmt.Errorf("configure surface: %w", err)
	}
	return nil
}

func (t *windowTarget) resize(size gpu.Size) error {
	if size.Empty() {
		return nil
	}
	t.cfg.Size = size
	return t.reconfigure()
}

func (t *windowTarget) acquire() (gpu.Texture, error) {
	frame, err := t.surface.Acquire()
	if err != nil {
		return nil, err
	}
	t.frame = frame
	return frame.View(), nil
}

func (t *windowTarget) encode(gpu.CommandEncoder) error { return nil }

func (t *windowTarget) finish(context.Context) error {
	frame := t.frame
	t.frame = nil
	if frame == nil {
		return nil
	}
	return frame.Present()
}

func (t *windowTarget) size() gpu.Size { return t.cfg.Size }
func (t *windowTarget) name() string   { return "window" }

type fileTarget struct {
	dev         gpu.Device
	texture     gpu.Texture
	staging     gpu.Buffer
	bytesPerRow int
	path        string
	done        bool
}

func newFileTarget(dev gpu.Device, path string, srgb bool) (*fileTarget, error) {
	format := gpu.FormatRGBA8Unorm
	if srgb {
		format = gpu.FormatRGBA8UnormSRGB
	}
	tex, err := dev.CreateTexture(gpu.TextureDesc{
		Label:  "export",
		Size:   ExportSize,
		Format: format,
		Usage:  gpu.TextureRenderAttachment | gpu.TextureCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("export texture: %w", err)
	}
	pitch := gpu.AlignedBytesPerRow(ExportSize.Width)
	staging, err := dev.CreateBuffer(gpu.BufferDesc{
		Label: "export readback",
		Size:  uint64(pitch * ExportSize.Height),
		Usage: gpu.BufferCopyDst | gpu.BufferMapRead,
	})
	if err != nil {
		tex.Destroy()
		return nil, fmt.Errorf("export buffer: %w", err)
	}
	return &fileTarget{dev: dev, texture: tex, staging: staging, bytesPerRow: pitch, path: path}, nil
}

func (t *fileTarget) acquire() (gpu.Texture, error) {
	if t.done {
		return nil, ErrRenderComplete
	}
	return t.texture, nil
}

func (t *fileTarget) encode(enc gpu.CommandEncoder) error {
	return enc.CopyTextureToBuffer(t.texture, t.staging, t.bytesPerRow)
}

// finish waits for the copy, decodes the rows and writes the image.
func (t *fileTarget) finish(ctx context.Context) error {
	if err := t.dev.Poll(ctx); err != nil {
		return err
	}
	data, err := t.staging.MapRead(ctx)
	if err != nil {
		return fmt.Errorf("map readback: %w", err)
	}
	img, err := unpackRows(data, ExportSize, t.bytesPerRow, t.texture.Format())
	t.staging.Unmap()
	if err != nil {
		return err
	}
	if err := SaveImage(t.path, img); err != nil {
		return err
	}
	t.done = true
	logger.Infof("wrote %s", t.path)
	return nil
}

func (t *fileTarget) size() gpu.Size { return ExportSize }
func (t *fileTarget) name() string   { return "file" }

func (t *fileTarget) destroy() {
	t.staging.Destroy()
	t.texture.Destroy()
}
