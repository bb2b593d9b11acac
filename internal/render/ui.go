package render

import (
	"fmt"

	"shaderviz/internal/gpu"
)

const (
	sliderWidth  = 0.5
	sliderHeight = 0.05
	sliderX      = -0.7
	sliderTop    = 0.8
	sliderStep   = 0.01
	sliderDepth  = 0.001
	sliderStart  = 0.5
)

// Slider is a horizontal bar in normalised device coordinates holding a
// value in [0,1].
type Slider struct {
	CenterX, CenterY float32
	Width, Height    float32
	Value            float32
}

// TrySet sets the value to the horizontal fraction of (x, y) across the
// slider when the point lies inside it, edges included. It reports whether
// the point hit the slider.
func (s *Slider) TrySet(x, y float32) bool {
	left := s.CenterX - s.Width/2
	bottom := s.CenterY - s.Height/2
	if x < left || x > left+s.Width || y < bottom || y > bottom+s.Height {
		return false
	}
	s.Value = (x - left) / s.Width
	return true
}

func (s *Slider) nudge(d float32) {
	s.Value = min(max(s.Value+d, 0), 1)
}

// UI is the column of sliders toggled with the m key. It starts hidden and
// ignores clicks and nudges while hidden.
type UI struct {
	Sliders  []Slider
	Hidden   bool
	Selected int
}

// NewUI stacks n sliders from the top left, a tenth of the screen apart.
func NewUI(n int) *UI {
	u := &UI{Hidden: true, Sliders: make([]Slider, n)}
	for i := range u.Sliders {
		u.Sliders[i] = Slider{
			CenterX: sliderX,
			CenterY: sliderTop - float32(i)/10,
			Width:   sliderWidth,
			Height:  sliderHeight,
			Value:   sliderStart,
		}
	}
	return u
}

// Click offers an NDC point to every slider.
func (u *UI) Click(x, y float32) {
	if u.Hidden {
		return
	}
	for i := range u.Sliders {
		u.Sliders[i].TrySet(x, y)
	}
}

func (u *UI) Toggle() { u.Hidden = !u.Hidden }

// Select makes slider i the target of Increment and Decrement. Out of
// range indexes are ignored.
func (u *UI) Select(i int) {
	if i >= 0 && i < len(u.Sliders) {
		u.Selected = i
	}
}

func (u *UI) Increment() { u.nudge(sliderStep) }
func (u *UI) Decrement() { u.nudge(-sliderStep) }

func (u *UI) nudge(d float32) {
	if u.Hidden || len(u.Sliders) == 0 {
		return
	}
	u.Sliders[u.Selected].nudge(d)
}

// Values copies the slider values into dst.
func (u *UI) Values(dst []float32) []float32 {
	dst = dst[:0]
	for _, s := range u.Sliders {
		dst = append(dst, s.Value)
	}
	return dst
}

// uiLayer draws the sliders with their own pipeline. Each slider has a
// vertex buffer and a uniform holding vec4(value, selected, 0, 0).
type uiLayer struct {
	pipeline gpu.Pipeline
	quads    []sliderQuad
	scratch  []byte
}

type sliderQuad struct {
	vertices gpu.Buffer
	uniform  gpu.Buffer
	group    gpu.BindGroup
}

func newUILayer(dev gpu.Device, format gpu.TextureFormat, sliders []Slider, shaders Shaders) (*uiLayer, error) {
	pipeline, err := dev.CreatePipeline(gpu.PipelineDesc{
		Label:          "ui",
		VertexShader:   shaders.UIVertex,
		FragmentShader: shaders.UIFragment,
		VertexStride:   VertexStride,
		Attributes:     vertexAttributes,
		Format:         format,
		Bindings:       []gpu.Binding{{Slot: 0, Kind: gpu.BindingUniform, MinSize: 16}},
	})
	if err != nil {
		return nil, fmt.Errorf("ui pipeline: %w", err)
	}
	l := &uiLayer{pipeline: pipeline, scratch: make([]byte, 0, 16)}
	for i, s := range sliders {
		q, err := newSliderQuad(dev, pipeline, i, s)
		if err != nil {
			l.destroy()
			return nil, err
		}
		l.quads = append(l.quads, q)
	}
	return l, nil
}

func newSliderQuad(dev gpu.Device, pipeline gpu.Pipeline, i int, s Slider) (sliderQuad, error) {
	var q sliderQuad
	var err error
	q.vertices, err = newVertexBuffer(dev, fmt.Sprintf("slider %d vertices", i), Rect(s.CenterX, s.CenterY, s.Width, s.Height, sliderDepth))
	if err != nil {
		return q, err
	}
	q.uniform, err = dev.CreateBuffer(gpu.BufferDesc{
		Label: fmt.Sprintf("slider %d", i),
		Size:  16,
		Usage: gpu.BufferUniform | gpu.BufferCopyDst,
	})
	if err != nil {
		q.vertices.Destroy()
		return q, err
	}
	q.group, err = dev.CreateBindGroup(gpu.BindGroupDesc{
		Label:    fmt.Sprintf("slider %d", i),
		Pipeline: pipeline,
		Entries:  []gpu.BindGroupEntry{{Binding: 0, Buffer: q.uniform}},
	})
	if err != nil {
		q.vertices.Destroy()
		q.uniform.Destroy()
		return q, err
	}
	return q, nil
}

func (l *uiLayer) render(pass gpu.RenderPass, u *UI) {
	if u.Hidden {
		return
	}
	pass.SetPipeline(l.pipeline)
	for _, q := range l.quads {
		pass.SetVertexBuffer(0, q.vertices)
		pass.SetBindGroup(0, q.group)
		pass.Draw(6, 1)
	}
}

func (l *uiLayer) upload(q gpu.Queue, u *UI) error {
	for i, quad := range l.quads {
		selected := float32(0)
		if i == u.Selected {
			selected = 1
		}
		l.scratch = appendFloats(l.scratch[:0], u.Sliders[i].Value, selected, 0, 0)
		if err := q.WriteBuffer(quad.uniform, 0, l.scratch); err != nil {
			return fmt.Errorf("slider %d: %w", i, err)
		}
	}
	return nil
}

func (l *uiLayer) destroy() {
	for _, q := range l.quads {
		q.group.Destroy()
		q.vertices.Destroy()
		q.uniform.Destroy()
	}
	l.quads = nil
	if l.pipeline != nil {
		l.pipeline.Destroy()
	}
}
