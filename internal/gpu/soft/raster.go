package soft

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"shaderviz/internal/gpu"
)

type commandBuffer struct {
	ops       []func() error
	submitted bool
}

type encoder struct {
	dev      *Device
	ops      []func() error
	open     bool
	finished bool
}

func (e *encoder) BeginRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	if e.finished {
		return nil, errors.New("encoder finished")
	}
	if e.open {
		return nil, errors.New("render pass already open")
	}
	tex, ok := desc.Target.(*texture)
	if !ok || tex.pix == nil {
		return nil, errors.New("render pass target is not a live soft texture")
	}
	e.open = true
	return &pass{enc: e, target: tex, clear: desc.Clear}, nil
}

func (e *encoder) CopyTextureToBuffer(src gpu.Texture, dst gpu.Buffer, bytesPerRow int) error {
	tex, ok := src.(*texture)
	if !ok {
		return errors.New("copy from foreign texture")
	}
	buf, ok := dst.(*buffer)
	if !ok {
		return errors.New("copy to foreign buffer")
	}
	if err := gpu.CheckCopy(src, dst, bytesPerRow); err != nil {
		return err
	}
	e.ops = append(e.ops, func() error {
		if tex.pix == nil {
			return errors.New("copy from destroyed texture")
		}
		row := 4 * tex.desc.Size.Width
		for y := range tex.desc.Size.Height {
			copy(buf.data[y*bytesPerRow:], tex.pix[y*row:(y+1)*row])
		}
		e.dev.stats.Copies++
		return nil
	})
	return nil
}

func (e *encoder) Finish() (gpu.CommandBuffer, error) {
	if e.open {
		return nil, errors.New("render pass not ended")
	}
	if e.finished {
		return nil, errors.New("encoder finished twice")
	}
	e.finished = true
	return &commandBuffer{ops: e.ops}, nil
}

type drawCall struct {
	pipeline *pipeline
	vertices *buffer
	group    *bindGroup
	count    int
}

type pass struct {
	enc    *encoder
	target *texture
	clear  gpu.Color
	draws  []drawCall
	cur    drawCall
	err    error
	ended  bool
}

func (p *pass) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *pass) SetPipeline(pl gpu.Pipeline) {
	sp, ok := pl.(*pipeline)
	if !ok {
		p.fail(errors.New("foreign pipeline"))
		return
	}
	if sp.desc.Format != p.target.desc.Format {
		p.fail(fmt.Errorf("pipeline %q targets %v, pass renders to %v", sp.desc.Label, sp.desc.Format, p.target.desc.Format))
		return
	}
	p.cur.pipeline = sp
}

func (p *pass) SetVertexBuffer(slot int, b gpu.Buffer) {
	buf, ok := b.(*buffer)
	if !ok || slot != 0 {
		p.fail(fmt.Errorf("vertex buffer slot %d", slot))
		return
	}
	p.cur.vertices = buf
}

func (p *pass) SetBindGroup(index int, g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok || index != 0 {
		p.fail(fmt.Errorf("bind group %d", index))
		return
	}
	p.cur.group = bg
}

func (p *pass) Draw(vertices, instances int) {
	if p.cur.pipeline == nil || p.cur.vertices == nil {
		p.fail(errors.New("draw without pipeline or vertex buffer"))
		return
	}
	if len(p.cur.pipeline.desc.Bindings) > 0 && (p.cur.group == nil || p.cur.group.pipeline != p.cur.pipeline) {
		p.fail(fmt.Errorf("pipeline %q drawn without its bind group", p.cur.pipeline.desc.Label))
		return
	}
	if need := uint64(vertices) * p.cur.pipeline.desc.VertexStride; need > p.cur.vertices.desc.Size {
		p.fail(fmt.Errorf("draw of %d vertices overruns the vertex buffer", vertices))
		return
	}
	dc := p.cur
	dc.count = vertices
	for range max(instances, 0) {
		p.draws = append(p.draws, dc)
	}
}

func (p *pass) End() error {
	if p.ended {
		return errors.New("render pass ended twice")
	}
	p.ended = true
	p.enc.open = false
	if p.err != nil {
		return p.err
	}
	target, clear, draws, dev := p.target, p.clear, p.draws, p.enc.dev
	p.enc.ops = append(p.enc.ops, func() error {
		if target.pix == nil {
			return errors.New("render to destroyed texture")
		}
		fill(target, clear)
		for _, dc := range draws {
			rasterize(target, dc)
			dev.stats.Draws++
		}
		return nil
	})
	return nil
}

func fill(t *texture, c gpu.Color) {
	px := t.texel([4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)})
	for i := 0; i < len(t.pix); i += 4 {
		copy(t.pix[i:i+4], px[:])
	}
}

func (t *texture) texel(c [4]float32) [4]byte {
	px := [4]byte{unorm(c[0]), unorm(c[1]), unorm(c[2]), unorm(c[3])}
	if t.desc.Format.IsBGRA() {
		px[0], px[2] = px[2], px[0]
	}
	return px
}

func unorm(v float32) byte {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}

type vertex struct {
	x, y  float32 // framebuffer pixels, y down
	pixel [2]float32
}

func readVertex(dc drawCall, i int, size gpu.Size) vertex {
	base := uint64(i) * dc.pipeline.desc.VertexStride
	data := dc.vertices.data
	f := func(off uint64) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[base+off:]))
	}
	pos := dc.pipeline.position
	nx, ny := f(pos.Offset), f(pos.Offset+4)
	v := vertex{
		x: (nx + 1) / 2 * float32(size.Width),
		y: (1 - ny) / 2 * float32(size.Height),
	}
	if a := dc.pipeline.pixel; a != nil && a.Components >= 2 {
		v.pixel = [2]float32{f(a.Offset), f(a.Offset + 4)}
	}
	return v
}

// rasterize draws a triangle list with counter-clockwise front faces
// (in normalised device space) and culls the rest.
func rasterize(t *texture, dc drawCall) {
	size := t.desc.Size
	bindings := Bindings{}
	if dc.group != nil {
		for slot, b := range dc.group.entries {
			bindings[slot] = b.data
		}
	}

	for tri := 0; tri+2 < dc.count; tri += 3 {
		v0, v1, v2 := readVertex(dc, tri, size), readVertex(dc, tri+1, size), readVertex(dc, tri+2, size)
		// y is flipped in framebuffer space, so front faces have
		// negative area here.
		area := edge(v0, v1, v2.x, v2.y)
		if area >= 0 {
			continue
		}

		minX := clampInt(int(math.Floor(float64(min(v0.x, v1.x, v2.x)))), 0, size.Width)
		maxX := clampInt(int(math.Ceil(float64(max(v0.x, v1.x, v2.x)))), 0, size.Width)
		minY := clampInt(int(math.Floor(float64(min(v0.y, v1.y, v2.y)))), 0, size.Height)
		maxY := clampInt(int(math.Ceil(float64(max(v0.y, v1.y, v2.y)))), 0, size.Height)

		for y := minY; y < maxY; y++ {
			py := float32(y) + 0.5
			for x := minX; x < maxX; x++ {
				px := float32(x) + 0.5
				w0 := edge(v1, v2, px, py) / area
				w1 := edge(v2, v0, px, py) / area
				w2 := edge(v0, v1, px, py) / area
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				pixel := [2]float32{
					w0*v0.pixel[0] + w1*v1.pixel[0] + w2*v2.pixel[0],
					w0*v0.pixel[1] + w1*v1.pixel[1] + w2*v2.pixel[1],
				}
				texel := t.texel(dc.pipeline.frag(pixel, bindings))
				i := 4 * (y*size.Width + x)
				copy(t.pix[i:i+4], texel[:])
			}
		}
	}
}

func edge(a, b vertex, x, y float32) float32 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
