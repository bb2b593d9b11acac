// Package opengl implements the gpu interfaces on an OpenGL 4.3 core
// context owned by a glfw window. Commands are recorded by the encoder and
// replayed on Submit; buffer writes go straight to the driver, so they
// land before any later submission.
//
// All calls must come from the thread the context is current on.
package opengl

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.3-core/gl"

	"shaderviz/internal/gpu"
	"shaderviz/internal/log"
)

var logger = log.New("opengl")

type Device struct {
	queue    queue
	released bool
}

var _ gpu.Device = (*Device)(nil)

// New loads the GL entry points for the current context.
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("init opengl: %w", err)
	}
	logger.Infof("OpenGL %s on %s", gl.GoStr(gl.GetString(gl.VERSION)), gl.GoStr(gl.GetString(gl.RENDERER)))
	gl.Enable(gl.CULL_FACE)
	gl.FrontFace(gl.CCW)
	gl.CullFace(gl.BACK)
	return &Device{}, nil
}

func (d *Device) Queue() gpu.Queue { return &d.queue }

// Poll waits for the driver to drain.
func (d *Device) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gl.Finish()
	return glError("poll")
}

func (d *Device) Release() { d.released = true }

// glError reports the first pending GL error.
func glError(op string) error {
	switch code := gl.GetError(); code {
	case gl.NO_ERROR:
		return nil
	case gl.OUT_OF_MEMORY:
		return fmt.Errorf("%s: %w", op, gpu.ErrOutOfMemory)
	default:
		return fmt.Errorf("%s: gl error 0x%x", op, code)
	}
}

// buffer is a GL buffer object, or host memory for read-back buffers.
type buffer struct {
	id   uint32
	desc gpu.BufferDesc
	host []byte
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	b := &buffer{desc: desc}
	if desc.Usage&gpu.BufferMapRead != 0 {
		b.host = make([]byte, desc.Size)
		return b, nil
	}
	gl.GenBuffers(1, &b.id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.id)
	gl.BufferData(gl.COPY_WRITE_BUFFER, int(desc.Size), nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	if err := glError("buffer " + desc.Label); err != nil {
		gl.DeleteBuffers(1, &b.id)
		return nil, err
	}
	return b, nil
}

func (b *buffer) Size() uint64 { return b.desc.Size }

func (b *buffer) MapRead(ctx context.Context) ([]byte, error) {
	if b.host == nil {
		return nil, fmt.Errorf("buffer %q is not mappable", b.desc.Label)
	}
	return b.host, ctx.Err()
}

func (b *buffer) Unmap() {}

func (b *buffer) Destroy() {
	if b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
	b.host = nil
}

// texture is a colour renderbuffer target. fbo 0 is the window.
type texture struct {
	id     uint32
	fbo    uint32
	size   gpu.Size
	format gpu.TextureFormat
}

func (d *Device) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	internal := uint32(gl.RGBA8)
	switch desc.Format {
	case gpu.FormatRGBA8Unorm:
	case gpu.FormatRGBA8UnormSRGB:
		internal = gl.SRGB8_ALPHA8
	default:
		return nil, fmt.Errorf("texture %q format %v: %w", desc.Label, desc.Format, gpu.ErrUnsupported)
	}
	t := &texture{size: desc.Size, format: desc.Format}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexStorage2D(gl.TEXTURE_2D, 1, internal, int32(desc.Size.Width), int32(desc.Size.Height))
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.id, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if err := glError("texture " + desc.Label); err != nil {
		t.Destroy()
		return nil, err
	}
	if status != gl.FRAMEBUFFER_COMPLETE {
		t.Destroy()
		return nil, fmt.Errorf("texture %q framebuffer incomplete: 0x%x", desc.Label, status)
	}
	return t, nil
}

func (t *texture) Size() gpu.Size            { return t.size }
func (t *texture) Format() gpu.TextureFormat { return t.format }

func (t *texture) Destroy() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

type pipeline struct {
	program uint32
	vao     uint32
	desc    gpu.PipelineDesc
}

func compile(kind uint32, label, src string) (uint32, error) {
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(Translate(src) + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		msg := make([]byte, n+1)
		gl.GetShaderInfoLog(shader, n, nil, &msg[0])
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile %s: %s", label, gl.GoStr(&msg[0]))
	}
	return shader, nil
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if desc.Format != gpu.FormatRGBA8Unorm && desc.Format != gpu.FormatRGBA8UnormSRGB {
		return nil, fmt.Errorf("pipeline %q format %v: %w", desc.Label, desc.Format, gpu.ErrUnsupported)
	}
	vs, err := compile(gl.VERTEX_SHADER, desc.Label+" vertex", desc.VertexShader)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(vs)
	fs, err := compile(gl.FRAGMENT_SHADER, desc.Label+" fragment", desc.FragmentShader)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(fs)

	p := &pipeline{program: gl.CreateProgram(), desc: desc}
	gl.AttachShader(p.program, vs)
	gl.AttachShader(p.program, fs)
	gl.LinkProgram(p.program)
	var status int32
	gl.GetProgramiv(p.program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(p.program, gl.INFO_LOG_LENGTH, &n)
		msg := make([]byte, n+1)
		gl.GetProgramInfoLog(p.program, n, nil, &msg[0])
		gl.DeleteProgram(p.program)
		return nil, fmt.Errorf("link %s: %s", desc.Label, gl.GoStr(&msg[0]))
	}
	gl.GenVertexArrays(1, &p.vao)
	return p, glError("pipeline " + desc.Label)
}

func (p *pipeline) Destroy() {
	if p.vao != 0 {
		gl.DeleteVertexArrays(1, &p.vao)
		p.vao = 0
	}
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		p.program = 0
	}
}

// bind points the vertex array at b using the pipeline's layout.
func (p *pipeline) bind(b *buffer) {
	gl.UseProgram(p.program)
	gl.BindVertexArray(p.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.id)
	for _, a := range p.desc.Attributes {
		loc := uint32(a.Location)
		gl.VertexAttribPointerWithOffset(loc, int32(a.Components), gl.FLOAT, false, int32(p.desc.VertexStride), uintptr(a.Offset))
		gl.EnableVertexAttribArray(loc)
	}
}

type bindGroup struct {
	entries []groupEntry
}

type groupEntry struct {
	target uint32
	slot   uint32
	buffer uint32
}

func (d *Device) CreateBindGroup(desc gpu.BindGroupDesc) (gpu.BindGroup, error) {
	p, ok := desc.Pipeline.(*pipeline)
	if !ok {
		return nil, fmt.Errorf("bind group %q: foreign pipeline", desc.Label)
	}
	g := &bindGroup{}
	for _, e := range desc.Entries {
		b, ok := e.Buffer.(*buffer)
		if !ok || b.id == 0 {
			return nil, fmt.Errorf("bind group %q slot %d: not a device buffer", desc.Label, e.Binding)
		}
		target := uint32(0)
		for _, decl := range p.desc.Bindings {
			if decl.Slot != e.Binding {
				continue
			}
			target = gl.UNIFORM_BUFFER
			if decl.Kind == gpu.BindingStorage {
				target = gl.SHADER_STORAGE_BUFFER
			}
		}
		if target == 0 {
			return nil, fmt.Errorf("bind group %q: pipeline %q has no slot %d", desc.Label, p.desc.Label, e.Binding)
		}
		g.entries = append(g.entries, groupEntry{target: target, slot: uint32(e.Binding), buffer: b.id})
	}
	return g, nil
}

func (g *bindGroup) Destroy() {}

func (g *bindGroup) bind() {
	for _, e := range g.entries {
		gl.BindBufferBase(e.target, e.slot, e.buffer)
	}
}

type queue struct{}

func (queue) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	buf, ok := b.(*buffer)
	if !ok {
		return errors.New("write to foreign buffer")
	}
	if offset+uint64(len(data)) > buf.desc.Size {
		return fmt.Errorf("write of %d bytes at %d overruns buffer %q", len(data), offset, buf.desc.Label)
	}
	if len(data) == 0 {
		return nil
	}
	if buf.host != nil {
		copy(buf.host[offset:], data)
		return nil
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, buf.id)
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, int(offset), len(data), gl.Ptr(data))
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return nil
}

func (queue) Submit(cmds ...gpu.CommandBuffer) error {
	for _, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok {
			return errors.New("submit of foreign command buffer")
		}
		if cb.submitted {
			return errors.New("command buffer submitted twice")
		}
		cb.submitted = true
		for _, op := range cb.ops {
			op()
		}
	}
	return glError("submit")
}
