package render

import (
	"fmt"

	"shaderviz/internal/gpu"
)

// display draws the shader quad bound to the frame buffers.
type display struct {
	pipeline gpu.Pipeline
	vertices gpu.Buffer
	group    gpu.BindGroup
	buffers  *FrameBuffers
}

func newDisplay(dev gpu.Device, format gpu.TextureFormat, shaders Shaders, quad []Vertex, layout FrameLayout) (*display, error) {
	buffers, err := NewFrameBuffers(dev, layout)
	if err != nil {
		return nil, err
	}
	d := &display{buffers: buffers}

	d.pipeline, err = dev.CreatePipeline(gpu.PipelineDesc{
		Label:          "main",
		VertexShader:   shaders.Vertex,
		FragmentShader: shaders.Fragment,
		VertexStride:   VertexStride,
		Attributes:     vertexAttributes,
		Format:         format,
		Bindings:       buffers.Bindings(),
	})
	if err != nil {
		d.destroy()
		return nil, fmt.Errorf("main pipeline: %w", err)
	}
	logger.Debugf("pipeline created for %v", format)

	d.vertices, err = newVertexBuffer(dev, "quad", quad)
	if err != nil {
		d.destroy()
		return nil, err
	}
	d.group, err = dev.CreateBindGroup(gpu.BindGroupDesc{
		Label:    "frame",
		Pipeline: d.pipeline,
		Entries:  buffers.entries(),
	})
	if err != nil {
		d.destroy()
		return nil, fmt.Errorf("frame bind group: %w", err)
	}
	return d, nil
}

func (d *display) render(pass gpu.RenderPass) {
	pass.SetPipeline(d.pipeline)
	pass.SetVertexBuffer(0, d.vertices)
	pass.SetBindGroup(0, d.group)
	pass.Draw(6, 1)
}

func (d *display) destroy() {
	if d.group != nil {
		d.group.Destroy()
	}
	if d.vertices != nil {
		d.vertices.Destroy()
	}
	if d.pipeline != nil {
		d.pipeline.Destroy()
	}
	d.buffers.Destroy()
}
