// SPDX-License-Identifier: MIT

// Package webgpu implements the gpu interfaces on wgpu-native through
// github.com/cogentcore/webgpu. Shaders are handed to the native GLSL
// front end with entry point main.
package webgpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"shaderviz/internal/gpu"
	"shaderviz/internal/log"
)

var logger = log.New("webgpu")

const entryPoint = "main"

// Device wraps a wgpu device and its queue. Every method must be called
// from the goroutine that created it.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *queue
}

var _ gpu.Device = (*Device)(nil)

// Open creates a device able to present to window and the surface for it.
// The window must have been created with the glfw.NoAPI client hint.
func Open(window *glfw.Window) (*Device, *Surface, error) {
	inst := wgpu.CreateInstance(nil)
	surface := inst.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	d, err := open(inst, &wgpu.RequestAdapterOptions{CompatibleSurface: surface})
	if err != nil {
		surface.Release()
		inst.Release()
		return nil, nil, err
	}
	return d, &Surface{dev: d, surface: surface}, nil
}

// OpenHeadless creates a device without a surface, for file export.
func OpenHeadless() (*Device, error) {
	return open(wgpu.CreateInstance(nil), &wgpu.RequestAdapterOptions{})
}

func open(inst *wgpu.Instance, opts *wgpu.RequestAdapterOptions) (*Device, error) {
	adapter, err := inst.RequestAdapter(opts)
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	logger.Debugf("device ready")
	return &Device{
		instance: inst,
		adapter:  adapter,
		device:   dev,
		queue:    &queue{q: dev.GetQueue()},
	}, nil
}

func (d *Device) Queue() gpu.Queue { return d.queue }

// Poll blocks until submitted work completes.
func (d *Device) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.device.Poll(true, nil)
	return nil
}

func (d *Device) Release() {
	d.queue.q.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

type buffer struct {
	dev  *Device
	buf  *wgpu.Buffer
	desc gpu.BufferDesc
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: toBufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, classify(err))
	}
	return &buffer{dev: d, buf: buf, desc: desc}, nil
}

func (b *buffer) Size() uint64 { return b.desc.Size }

// MapRead maps the whole buffer and polls the device until the map
// callback has run.
func (b *buffer) MapRead(ctx context.Context) ([]byte, error) {
	if b.desc.Usage&gpu.BufferMapRead == 0 {
		return nil, fmt.Errorf("buffer %q is not mappable", b.desc.Label)
	}
	done := false
	var status wgpu.BufferMapAsyncStatus
	err := b.buf.MapAsync(wgpu.MapModeRead, 0, b.desc.Size, func(s wgpu.BufferMapAsyncStatus) {
		status, done = s, true
	})
	if err != nil {
		return nil, err
	}
	for !done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.dev.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map buffer %q: status %v", b.desc.Label, status)
	}
	return b.buf.GetMappedRange(0, uint(b.desc.Size)), nil
}

func (b *buffer) Unmap() { b.buf.Unmap() }

func (b *buffer) Destroy() {
	b.buf.Destroy()
	b.buf.Release()
}

type texture struct {
	tex    *wgpu.Texture
	view   *wgpu.TextureView
	size   gpu.Size
	format gpu.TextureFormat
	owned  bool
}

func (d *Device) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	wf, err := toFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Size.Width),
			Height:             uint32(desc.Size.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wf,
		Usage:         toTextureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", desc.Label, classify(err))
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("texture %q view: %w", desc.Label, err)
	}
	return &texture{tex: tex, view: view, size: desc.Size, format: desc.Format, owned: true}, nil
}

func (t *texture) Size() gpu.Size            { return t.size }
func (t *texture) Format() gpu.TextureFormat { return t.format }

func (t *texture) Destroy() {
	t.view.Release()
	if t.owned {
		t.tex.Destroy()
	}
	t.tex.Release()
}

type pipeline struct {
	label    string
	pipeline *wgpu.RenderPipeline
	layout   *wgpu.PipelineLayout
	group    *wgpu.BindGroupLayout
}

func (d *Device) shader(label, src string, stage wgpu.ShaderStage) (*wgpu.ShaderModule, error) {
	m, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		GLSLDescriptor: &wgpu.ShaderModuleGLSLDescriptor{
			Code:        src,
			ShaderStage: stage,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", label, err)
	}
	return m, nil
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	wf, err := toFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	attrs, err := toVertexAttributes(desc.Attributes)
	if err != nil {
		return nil, err
	}
	vs, err := d.shader(desc.Label+" vertex", desc.VertexShader, wgpu.ShaderStageVertex)
	if err != nil {
		return nil, err
	}
	defer vs.Release()
	fs, err := d.shader(desc.Label+" fragment", desc.FragmentShader, wgpu.ShaderStageFragment)
	if err != nil {
		return nil, err
	}
	defer fs.Release()

	p := &pipeline{label: desc.Label}
	var groups []*wgpu.BindGroupLayout
	if len(desc.Bindings) > 0 {
		entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.Bindings))
		for _, b := range desc.Bindings {
			kind := wgpu.BufferBindingTypeUniform
			if b.Kind == gpu.BindingStorage {
				kind = wgpu.BufferBindingTypeReadOnlyStorage
			}
			entries = append(entries, wgpu.BindGroupLayoutEntry{
				Binding:    uint32(b.Slot),
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           kind,
					MinBindingSize: b.MinSize,
				},
			})
		}
		p.group, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   desc.Label,
			Entries: entries,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline %q bind group layout: %w", desc.Label, err)
		}
		groups = append(groups, p.group)
	}

	p.layout, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("pipeline %q layout: %w", desc.Label, err)
	}

	p.pipeline, err = d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: entryPoint,
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: desc.VertexStride,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes:  attrs,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: entryPoint,
			Targets: []wgpu.ColorTargetState{{
				Format:    wf,
				Blend:     &wgpu.BlendStateReplace,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("pipeline %q: %w", desc.Label, classify(err))
	}
	return p, nil
}

func (p *pipeline) Destroy() {
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.group != nil {
		p.group.Release()
	}
}

type bindGroup struct {
	group *wgpu.BindGroup
}

func (d *Device) CreateBindGroup(desc gpu.BindGroupDesc) (gpu.BindGroup, error) {
	p, ok := desc.Pipeline.(*pipeline)
	if !ok || p.group == nil {
		return nil, fmt.Errorf("bind group %q: pipeline has no bindings", desc.Label)
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		b, ok := e.Buffer.(*buffer)
		if !ok {
			return nil, fmt.Errorf("bind group %q slot %d: foreign buffer", desc.Label, e.Binding)
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(e.Binding),
			Buffer:  b.buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}
	g, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  p.group,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("bind group %q: %w", desc.Label, err)
	}
	return &bindGroup{group: g}, nil
}

func (g *bindGroup) Destroy() { g.group.Release() }

type queue struct {
	q *wgpu.Queue
}

func (q *queue) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	buf, ok := b.(*buffer)
	if !ok {
		return errors.New("write to foreign buffer")
	}
	if offset+uint64(len(data)) > buf.desc.Size {
		return fmt.Errorf("write of %d bytes at %d overruns buffer %q", len(data), offset, buf.desc.Label)
	}
	return q.q.WriteBuffer(buf.buf, offset, data)
}

func (q *queue) Submit(cmds ...gpu.CommandBuffer) error {
	bufs := make([]*wgpu.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		cb, ok := c.(*wgpu.CommandBuffer)
		if !ok {
			return errors.New("submit of foreign command buffer")
		}
		bufs = append(bufs, cb)
	}
	q.q.Submit(bufs...)
	for _, cb := range bufs {
		cb.Release()
	}
	return nil
}
