// Package soft is a CPU implementation of the gpu contracts. It runs the
// same command sequence as a hardware backend and rasterises triangles
// with a Go fragment function, so render code can be tested and images
// exported without a graphics device.
package soft

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"shaderviz/internal/gpu"
)

// Bindings exposes the bound buffers to a FragmentFunc by slot.
type Bindings map[int][]byte

// Float returns the i'th float32 of the buffer at slot, or 0 past its end.
func (b Bindings) Float(slot, i int) float32 {
	data := b[slot]
	off := i * 4
	if off < 0 || off+4 > len(data) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
}

// FragmentFunc shades one pixel. pixel is the interpolated location 1
// attribute; the result is RGBA in [0,1].
type FragmentFunc func(pixel [2]float32, b Bindings) [4]float32

// UVFragment writes the interpolated pixel attribute to red and green.
func UVFragment(pixel [2]float32, _ Bindings) [4]float32 {
	return [4]float32{pixel[0], pixel[1], 0, 1}
}

type Option func(*Device)

// WithFragment shades pipelines labelled label with fn. Pipelines without
// a registered function use UVFragment.
func WithFragment(label string, fn FragmentFunc) Option {
	return func(d *Device) { d.fragments[label] = fn }
}

// WithMemoryLimit makes allocations beyond n bytes fail with
// gpu.ErrOutOfMemory.
func WithMemoryLimit(n uint64) Option {
	return func(d *Device) { d.limit = n }
}

// Stats counts device activity.
type Stats struct {
	Allocated uint64
	Writes    int
	Submits   int
	Draws     int
	Copies    int
}

// Device is not safe for concurrent use.
type Device struct {
	fragments map[string]FragmentFunc
	limit     uint64
	stats     Stats
	queue     queue
	released  bool
}

var _ gpu.Device = (*Device)(nil)

func New(opts ...Option) *Device {
	d := &Device{fragments: make(map[string]FragmentFunc)}
	d.queue.dev = d
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Stats() Stats { return d.stats }

func (d *Device) alloc(n uint64) error {
	if d.released {
		return errors.New("device released")
	}
	if d.limit > 0 && d.stats.Allocated+n > d.limit {
		return fmt.Errorf("allocate %d bytes: %w", n, gpu.ErrOutOfMemory)
	}
	d.stats.Allocated += n
	return nil
}

func (d *Device) free(n uint64) { d.stats.Allocated -= min(n, d.stats.Allocated) }

type buffer struct {
	dev       *Device
	desc      gpu.BufferDesc
	data      []byte
	mapped    bool
	destroyed bool
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size", desc.Label)
	}
	if err := d.alloc(desc.Size); err != nil {
		return nil, err
	}
	return &buffer{dev: d, desc: desc, data: make([]byte, desc.Size)}, nil
}

func (b *buffer) Size() uint64 { return b.desc.Size }

func (b *buffer) MapRead(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.desc.Usage&gpu.BufferMapRead == 0 {
		return nil, fmt.Errorf("buffer %q is not mappable", b.desc.Label)
	}
	b.mapped = true
	return b.data, nil
}

func (b *buffer) Unmap() { b.mapped = false }

func (b *buffer) Destroy() {
	if !b.destroyed {
		b.destroyed = true
		b.dev.free(b.desc.Size)
	}
}

type texture struct {
	dev  *Device
	desc gpu.TextureDesc
	pix  []byte
}

func (d *Device) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	if desc.Size.Empty() {
		return nil, fmt.Errorf("texture %q size %v", desc.Label, desc.Size)
	}
	if desc.Format == gpu.FormatUndefined {
		return nil, fmt.Errorf("texture %q format: %w", desc.Label, gpu.ErrUnsupported)
	}
	n := uint64(4 * desc.Size.Width * desc.Size.Height)
	if err := d.alloc(n); err != nil {
		return nil, err
	}
	return &texture{dev: d, desc: desc, pix: make([]byte, n)}, nil
}

func (t *texture) Size() gpu.Size            { return t.desc.Size }
func (t *texture) Format() gpu.TextureFormat { return t.desc.Format }

func (t *texture) Destroy() {
	if t.pix != nil {
		t.dev.free(uint64(len(t.pix)))
		t.pix = nil
	}
}

// Image copies a soft texture into an RGBA image, undoing BGRA order. It
// returns nil for textures from other backends.
func Image(t gpu.Texture) *image.RGBA {
	tex, ok := t.(*texture)
	if !ok || tex.pix == nil {
		return nil
	}
	size := tex.desc.Size
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	copy(img.Pix, tex.pix)
	if tex.desc.Format.IsBGRA() {
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img
}

type pipeline struct {
	desc     gpu.PipelineDesc
	frag     FragmentFunc
	position gpu.VertexAttribute
	pixel    *gpu.VertexAttribute
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if desc.VertexShader == "" || desc.FragmentShader == "" {
		return nil, fmt.Errorf("pipeline %q: missing shader source", desc.Label)
	}
	if desc.VertexStride == 0 {
		return nil, fmt.Errorf("pipeline %q: zero vertex stride", desc.Label)
	}
	p := &pipeline{desc: desc, frag: d.fragments[desc.Label]}
	if p.frag == nil {
		p.frag = UVFragment
	}
	found := false
	for i, a := range desc.Attributes {
		if a.Offset+uint64(4*a.Components) > desc.VertexStride {
			return nil, fmt.Errorf("pipeline %q: attribute %d overruns the stride", desc.Label, a.Location)
		}
		switch a.Location {
		case 0:
			if a.Components < 2 {
				return nil, fmt.Errorf("pipeline %q: position needs at least 2 components", desc.Label)
			}
			p.position, found = a, true
		case 1:
			p.pixel = &desc.Attributes[i]
		}
	}
	if !found {
		return nil, fmt.Errorf("pipeline %q: no position attribute at location 0", desc.Label)
	}
	return p, nil
}

func (p *pipeline) Destroy() {}

func (p *pipeline) binding(slot int) (gpu.Binding, bool) {
	for _, b := range p.desc.Bindings {
		if b.Slot == slot {
			return b, true
		}
	}
	return gpu.Binding{}, false
}

type bindGroup struct {
	pipeline *pipeline
	entries  map[int]*buffer
}

func (d *Device) CreateBindGroup(desc gpu.BindGroupDesc) (gpu.BindGroup, error) {
	p, ok := desc.Pipeline.(*pipeline)
	if !ok {
		return nil, fmt.Errorf("bind group %q: foreign pipeline", desc.Label)
	}
	g := &bindGroup{pipeline: p, entries: make(map[int]*buffer, len(desc.Entries))}
	for _, e := range desc.Entries {
		b, ok := e.Buffer.(*buffer)
		if !ok {
			return nil, fmt.Errorf("bind group %q slot %d: foreign buffer", desc.Label, e.Binding)
		}
		decl, ok := p.binding(e.Binding)
		if !ok {
			return nil, fmt.Errorf("bind group %q: pipeline %q has no slot %d", desc.Label, p.desc.Label, e.Binding)
		}
		want := gpu.BufferUniform
		if decl.Kind == gpu.BindingStorage {
			want = gpu.BufferStorage
		}
		if b.desc.Usage&want == 0 {
			return nil, fmt.Errorf("bind group %q slot %d: buffer %q has the wrong usage", desc.Label, e.Binding, b.desc.Label)
		}
		if b.desc.Size < decl.MinSize {
			return nil, fmt.Errorf("bind group %q slot %d: %d bytes, need %d", desc.Label, e.Binding, b.desc.Size, decl.MinSize)
		}
		g.entries[e.Binding] = b
	}
	for _, decl := range p.desc.Bindings {
		if _, ok := g.entries[decl.Slot]; !ok {
			return nil, fmt.Errorf("bind group %q: slot %d unbound", desc.Label, decl.Slot)
		}
	}
	return g, nil
}

func (g *bindGroup) Destroy() {}

func (d *Device) CreateCommandEncoder() (gpu.CommandEncoder, error) {
	if d.released {
		return nil, errors.New("device released")
	}
	return &encoder{dev: d}, nil
}

func (d *Device) Queue() gpu.Queue { return &d.queue }

func (d *Device) Poll(ctx context.Context) error { return ctx.Err() }

func (d *Device) Release() { d.released = true }

type queue struct {
	dev *Device
}

func (q *queue) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	buf, ok := b.(*buffer)
	if !ok {
		return errors.New("write to foreign buffer")
	}
	if buf.desc.Usage&gpu.BufferCopyDst == 0 {
		return fmt.Errorf("buffer %q is not a copy destination", buf.desc.Label)
	}
	if offset+uint64(len(data)) > buf.desc.Size {
		return fmt.Errorf("write of %d bytes at %d overruns buffer %q (%d bytes)", len(data), offset, buf.desc.Label, buf.desc.Size)
	}
	copy(buf.data[offset:], data)
	q.dev.stats.Writes++
	return nil
}

func (q *queue) Submit(cmds ...gpu.CommandBuffer) error {
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
			if err := op(); err != nil {
				return err
			}
		}
	}
	q.dev.stats.Submits++
	return nil
}
