package opengl

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.3-core/gl"

	"shaderviz/internal/gpu"
)

type commandBuffer struct {
	ops       []func()
	submitted bool
}

type encoder struct {
	ops      []func()
	open     bool
	finished bool
}

func (d *Device) CreateCommandEncoder() (gpu.CommandEncoder, error) {
	if d.released {
		return nil, errors.New("device released")
	}
	return &encoder{}, nil
}

func (e *encoder) BeginRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	t, ok := desc.Target.(*texture)
	if !ok {
		return nil, errors.New("render pass target from another device")
	}
	if e.open || e.finished {
		return nil, errors.New("render pass already open")
	}
	e.open = true
	c := desc.Clear
	e.ops = append(e.ops, func() {
		gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
		gl.Viewport(0, 0, int32(t.size.Width), int32(t.size.Height))
		if t.format.IsSRGB() {
			gl.Enable(gl.FRAMEBUFFER_SRGB)
		} else {
			gl.Disable(gl.FRAMEBUFFER_SRGB)
		}
		gl.ClearColor(float32(c.R), float32(c.G), float32(c.B), float32(c.A))
		gl.Clear(gl.COLOR_BUFFER_BIT)
	})
	return &pass{enc: e}, nil
}

// CopyTextureToBuffer reads the texture back into a host buffer with rows
// top first, padded to bytesPerRow.
func (e *encoder) CopyTextureToBuffer(src gpu.Texture, dst gpu.Buffer, bytesPerRow int) error {
	if err := gpu.CheckCopy(src, dst, bytesPerRow); err != nil {
		return err
	}
	t, ok := src.(*texture)
	b, ok2 := dst.(*buffer)
	if !ok || !ok2 || b.host == nil {
		return fmt.Errorf("copy needs a device texture and a MapRead buffer")
	}
	e.ops = append(e.ops, func() {
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, t.fbo)
		gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
		gl.PixelStorei(gl.PACK_ROW_LENGTH, int32(bytesPerRow/4))
		gl.ReadPixels(0, 0, int32(t.size.Width), int32(t.size.Height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(b.host))
		gl.PixelStorei(gl.PACK_ROW_LENGTH, 0)
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
		flipRows(b.host, t.size.Height, bytesPerRow)
	})
	return nil
}

// flipRows turns GL's bottom-up rows into top-down order.
func flipRows(data []byte, rows, pitch int) {
	tmp := make([]byte, pitch)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := data[top*pitch : (top+1)*pitch]
		b := data[bottom*pitch : (bottom+1)*pitch]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

func (e *encoder) Finish() (gpu.CommandBuffer, error) {
	if e.open {
		return nil, errors.New("finish with an open render pass")
	}
	if e.finished {
		return nil, errors.New("encoder finished twice")
	}
	e.finished = true
	return &commandBuffer{ops: e.ops}, nil
}

type pass struct {
	enc      *encoder
	pipeline *pipeline
	vertices *buffer
	group    *bindGroup
	err      error
}

func (p *pass) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *pass) SetPipeline(pl gpu.Pipeline) {
	gp, ok := pl.(*pipeline)
	if !ok {
		p.fail(errors.New("foreign pipeline"))
		return
	}
	p.pipeline = gp
}

func (p *pass) SetVertexBuffer(slot int, b gpu.Buffer) {
	buf, ok := b.(*buffer)
	if !ok || slot != 0 || buf.id == 0 {
		p.fail(fmt.Errorf("vertex buffer slot %d", slot))
		return
	}
	p.vertices = buf
}

func (p *pass) SetBindGroup(index int, g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok || index != 0 {
		p.fail(fmt.Errorf("bind group %d", index))
		return
	}
	p.group = bg
}

func (p *pass) Draw(vertices, instances int) {
	if p.pipeline == nil || p.vertices == nil {
		p.fail(errors.New("draw without pipeline or vertex buffer"))
		return
	}
	pl, vb, group := p.pipeline, p.vertices, p.group
	p.enc.ops = append(p.enc.ops, func() {
		pl.bind(vb)
		if group != nil {
			group.bind()
		}
		gl.DrawArraysInstanced(gl.TRIANGLES, 0, int32(vertices), int32(instances))
	})
}

func (p *pass) End() error {
	if !p.enc.open {
		return errors.New("render pass ended twice")
	}
	p.enc.open = false
	p.enc.ops = append(p.enc.ops, func() { gl.BindVertexArray(0) })
	return p.err
}
