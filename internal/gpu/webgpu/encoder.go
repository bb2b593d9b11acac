package webgpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"shaderviz/internal/gpu"
)

type encoder struct {
	enc  *wgpu.CommandEncoder
	open bool
}

func (d *Device) CreateCommandEncoder() (gpu.CommandEncoder, error) {
	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, classify(err)
	}
	return &encoder{enc: enc}, nil
}

func (e *encoder) BeginRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	t, ok := desc.Target.(*texture)
	if !ok {
		return nil, errors.New("render pass target from another device")
	}
	if e.open {
		return nil, errors.New("render pass already open")
	}
	e.open = true
	rp := e.enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:   t.view,
			LoadOp: wgpu.LoadOpClear,
			ClearValue: wgpu.Color{
				R: desc.Clear.R,
				G: desc.Clear.G,
				B: desc.Clear.B,
				A: desc.Clear.A,
			},
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	return &pass{enc: e, rp: rp}, nil
}

func (e *encoder) CopyTextureToBuffer(src gpu.Texture, dst gpu.Buffer, bytesPerRow int) error {
	if err := gpu.CheckCopy(src, dst, bytesPerRow); err != nil {
		return err
	}
	t, ok := src.(*texture)
	b, ok2 := dst.(*buffer)
	if !ok || !ok2 {
		return errors.New("copy between foreign resources")
	}
	size := t.Size()
	e.enc.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: b.buf,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(bytesPerRow),
				RowsPerImage: uint32(size.Height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(size.Width),
			Height:             uint32(size.Height),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (e *encoder) Finish() (gpu.CommandBuffer, error) {
	if e.open {
		return nil, errors.New("finish with an open render pass")
	}
	cb, err := e.enc.Finish(nil)
	e.enc.Release()
	if err != nil {
		return nil, fmt.Errorf("finish commands: %w", classify(err))
	}
	return cb, nil
}

type pass struct {
	enc *encoder
	rp  *wgpu.RenderPassEncoder
}

func (p *pass) SetPipeline(pl gpu.Pipeline) {
	if wp, ok := pl.(*pipeline); ok {
		p.rp.SetPipeline(wp.pipeline)
	}
}

func (p *pass) SetVertexBuffer(slot int, b gpu.Buffer) {
	if wb, ok := b.(*buffer); ok {
		p.rp.SetVertexBuffer(uint32(slot), wb.buf, 0, wgpu.WholeSize)
	}
}

func (p *pass) SetBindGroup(index int, g gpu.BindGroup) {
	if wg, ok := g.(*bindGroup); ok {
		p.rp.SetBindGroup(uint32(index), wg.group, nil)
	}
}

func (p *pass) Draw(vertices, instances int) {
	p.rp.Draw(uint32(vertices), uint32(instances), 0, 0)
}

// End closes the pass. The pass encoder is released before the command
// encoder finishes.
func (p *pass) End() error {
	if !p.enc.open {
		return errors.New("render pass ended twice")
	}
	p.enc.open = false
	p.rp.End()
	p.rp.Release()
	return nil
}
