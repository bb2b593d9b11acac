// SPDX-License-Identifier: MIT
/*
Package gpu is the slice of a graphics API the renderer needs: buffers,
textures, a render pipeline with a fixed vertex layout and buffer
bindings, one render pass per frame, a texture-to-buffer copy and a
presentable surface.

Three backends implement it:

	webgpu  WebGPU through wgpu-native (Vulkan, Metal, D3D12)
	opengl  OpenGL 4.3 core, used on small boards
	soft    a CPU rasteriser for tests and headless export

Shaders are GLSL 450 with descriptor set 0. The opengl backend rewrites
them for #version 430 core.
*/
package gpu

import (
	"context"
	"errors"
	"fmt"

	"shaderviz/pkg/bitint"
)

// Frame errors returned by Surface.Acquire. ErrSurfaceLost and
// ErrSurfaceOutdated are recovered by reconfiguring the surface,
// ErrOutOfMemory is fatal and anything else skips one frame.
var (
	ErrSurfaceLost     = errors.New("surface lost")
	ErrSurfaceOutdated = errors.New("surface outdated")
	ErrOutOfMemory     = errors.New("out of memory")
	ErrTimeout         = errors.New("surface acquire timed out")
)

// ErrUnsupported is returned for descriptor values a backend cannot honour.
var ErrUnsupported = errors.New("unsupported by backend")

// CopyBytesPerRowAlignment is the row pitch alignment required by
// CommandEncoder.CopyTextureToBuffer.
const CopyBytesPerRowAlignment = 256

// AlignedBytesPerRow returns the padded row pitch for a 4-byte texel row
// of the given width.
func AlignedBytesPerRow(width int) int {
	return bitint.AlignUp(4*width, CopyBytesPerRowAlignment)
}

// Size is a pixel extent.
type Size struct {
	Width, Height int
}

// Empty reports whether the size has no area.
func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// TextureFormat lists the 8-bit colour formats surfaces offer.
type TextureFormat int

const (
	FormatUndefined TextureFormat = iota
	FormatRGBA8Unorm
	FormatRGBA8UnormSRGB
	FormatBGRA8Unorm
	FormatBGRA8UnormSRGB
)

// IsSRGB reports whether writes are encoded to sRGB by the device.
func (f TextureFormat) IsSRGB() bool {
	return f == FormatRGBA8UnormSRGB || f == FormatBGRA8UnormSRGB
}

// IsBGRA reports whether texels are stored blue first.
func (f TextureFormat) IsBGRA() bool {
	return f == FormatBGRA8Unorm || f == FormatBGRA8UnormSRGB
}

func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA8Unorm:
		return "rgba8unorm"
	case FormatRGBA8UnormSRGB:
		return "rgba8unorm-srgb"
	case FormatBGRA8Unorm:
		return "bgra8unorm"
	case FormatBGRA8UnormSRGB:
		return "bgra8unorm-srgb"
	default:
		return "undefined"
	}
}

// PreferredFormat returns the first format whose sRGB-ness matches srgb,
// or the first format when none does.
func PreferredFormat(formats []TextureFormat, srgb bool) TextureFormat {
	for _, f := range formats {
		if f.IsSRGB() == srgb {
			return f
		}
	}
	if len(formats) == 0 {
		return FormatUndefined
	}
	return formats[0]
}

type PresentMode int

const (
	PresentFifo PresentMode = iota
	PresentMailbox
	PresentImmediate
)

// BufferUsage is a bit set of the ways a buffer is bound.
type BufferUsage uint32

const (
	BufferVertex BufferUsage = 1 << iota
	BufferUniform
	BufferStorage
	BufferCopyDst
	BufferMapRead
)

// TextureUsage is a bit set of the ways a texture is used.
type TextureUsage uint32

const (
	TextureRenderAttachment TextureUsage = 1 << iota
	TextureCopySrc
)

type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

type TextureDesc struct {
	Label  string
	Size   Size
	Format TextureFormat
	Usage  TextureUsage
}

// VertexAttribute is a float32 vector at Offset within one vertex.
type VertexAttribute struct {
	Location   int
	Offset     uint64
	Components int
}

type BindingKind int

const (
	BindingUniform BindingKind = iota
	BindingStorage
)

// Binding declares one buffer slot of bind group 0.
type Binding struct {
	Slot    int
	Kind    BindingKind
	MinSize uint64
}

// PipelineDesc describes a triangle-list pipeline with counter-clockwise
// front faces, back-face culling and one colour target.
type PipelineDesc struct {
	Label          string
	VertexShader   string
	FragmentShader string
	VertexStride   uint64
	Attributes     []VertexAttribute
	Format         TextureFormat
	Bindings       []Binding
}

type BindGroupEntry struct {
	Binding int
	Buffer  Buffer
}

type BindGroupDesc struct {
	Label    string
	Pipeline Pipeline
	Entries  []BindGroupEntry
}

// Color is a linear RGBA clear colour.
type Color struct {
	R, G, B, A float64
}

var (
	Black = Color{A: 1}
	Blue  = Color{B: 1, A: 1}
)

type RenderPassDesc struct {
	Target Texture
	Clear  Color
}

type SurfaceCapabilities struct {
	Formats      []TextureFormat
	PresentModes []PresentMode
}

type SurfaceConfig struct {
	Format      TextureFormat
	Size        Size
	PresentMode PresentMode
}

// Buffer is device memory. MapRead blocks until a MapRead buffer is
// readable and returns a view valid until Unmap.
type Buffer interface {
	Size() uint64
	MapRead(ctx context.Context) ([]byte, error)
	Unmap()
	Destroy()
}

type Texture interface {
	Size() Size
	Format() TextureFormat
	Destroy()
}

type Pipeline interface {
	Destroy()
}

type BindGroup interface {
	Destroy()
}

// CommandBuffer is an encoded, submittable list of commands.
type CommandBuffer any

type RenderPass interface {
	SetPipeline(Pipeline)
	SetVertexBuffer(slot int, b Buffer)
	SetBindGroup(index int, g BindGroup)
	Draw(vertices, instances int)
	End() error
}

type CommandEncoder interface {
	BeginRenderPass(RenderPassDesc) (RenderPass, error)
	// CopyTextureToBuffer copies every row of src into dst. bytesPerRow
	// must be a multiple of CopyBytesPerRowAlignment.
	CopyTextureToBuffer(src Texture, dst Buffer, bytesPerRow int) error
	Finish() (CommandBuffer, error)
}

// Queue orders buffer writes before the command buffers submitted after
// them.
type Queue interface {
	WriteBuffer(b Buffer, offset uint64, data []byte) error
	Submit(cmds ...CommandBuffer) error
}

// Device creates resources. It is owned by the render goroutine.
type Device interface {
	CreateBuffer(BufferDesc) (Buffer, error)
	CreateTexture(TextureDesc) (Texture, error)
	CreatePipeline(PipelineDesc) (Pipeline, error)
	CreateBindGroup(BindGroupDesc) (BindGroup, error)
	CreateCommandEncoder() (CommandEncoder, error)
	Queue() Queue
	// Poll waits for submitted work to finish.
	Poll(ctx context.Context) error
	Release()
}

// Surface is a presentable swap chain.
type Surface interface {
	Capabilities() SurfaceCapabilities
	Configure(SurfaceConfig) error
	Acquire() (SurfaceTexture, error)
}

// SurfaceTexture is one acquired swap chain image.
type SurfaceTexture interface {
	View() Texture
	Present() error
}

// CheckCopy validates a texture-to-buffer copy.
func CheckCopy(src Texture, dst Buffer, bytesPerRow int) error {
	size := src.Size()
	if bytesPerRow%CopyBytesPerRowAlignment != 0 || bytesPerRow < 4*size.Width {
		return fmt.Errorf("bytes per row %d for width %d: %w", bytesPerRow, size.Width, ErrUnsupported)
	}
	if need := uint64(bytesPerRow) * uint64(size.Height); dst.Size() < need {
		return fmt.Errorf("copy needs %d bytes, buffer has %d", need, dst.Size())
	}
	return nil
}
