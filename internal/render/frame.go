package render

import (
	"fmt"

	"shaderviz/internal/analysis"
	"shaderviz/internal/gpu"
	"shaderviz/internal/shared"
	"shaderviz/pkg/bitint"
)

// Binding slots of the main pipeline, as declared by the fragment shader.
const (
	SlotFrame    = 0 // uniform vec4(time, feature, width, height); feature is the centroid in spectrum mode
	SlotSliders  = 1 // readonly buffer float[]
	SlotEyes     = 2 // readonly buffer vec2[]
	SlotSpectrum = 3 // readonly buffer float[], spectrum mode only
)

// noEye marks an unused entry of the eye array.
var noEye = shared.Point{X: -1, Y: -1}

// FrameValues is everything the shader sees for one frame.
type FrameValues struct {
	Time    float32
	Feature []float32
	Size    gpu.Size
	Sliders []float32
	Eyes    []shared.Point
}

// FrameBuffers are the device buffers behind the main bind group. Any of
// them may be nil, in which case its value is not uploaded.
type FrameBuffers struct {
	Frame    gpu.Buffer
	Sliders  gpu.Buffer
	Eyes     gpu.Buffer
	Spectrum gpu.Buffer

	// spectrumN and sampleRate turn a spectrum back into its centroid.
	spectrumN  int
	sampleRate float64
	scratch    []byte
}

// FrameLayout sizes the buffers created by NewFrameBuffers.
type FrameLayout struct {
	Sliders     int
	MaxEyes     int
	SpectrumLen int // zero leaves out the spectrum buffer
	// SampleRate of the analysed audio, used for the centroid in spectrum
	// mode. Zero makes that centroid 0.
	SampleRate float64
}

// NewFrameBuffers allocates the buffers for layout. Eye entries start at
// (-1,-1) so shaders can tell empty slots apart.
func NewFrameBuffers(dev gpu.Device, layout FrameLayout) (*FrameBuffers, error) {
	fb := &FrameBuffers{}
	var err error
	create := func(label string, size int, usage gpu.BufferUsage) gpu.Buffer {
		if err != nil {
			return nil
		}
		var b gpu.Buffer
		b, err = dev.CreateBuffer(gpu.BufferDesc{
			Label: label,
			Size:  uint64(bitint.AlignUp(max(size, 4), 16)),
			Usage: usage | gpu.BufferCopyDst,
		})
		return b
	}
	fb.Frame = create("frame", 16, gpu.BufferUniform)
	fb.Sliders = create("sliders", 4*layout.Sliders, gpu.BufferStorage)
	fb.Eyes = create("eyes", 8*max(layout.MaxEyes, 1), gpu.BufferStorage)
	if layout.SpectrumLen > 0 {
		fb.Spectrum = create("spectrum", 4*layout.SpectrumLen, gpu.BufferStorage)
		fb.spectrumN = 2 * (layout.SpectrumLen - 1)
		fb.sampleRate = layout.SampleRate
	}
	if err != nil {
		fb.Destroy()
		return nil, fmt.Errorf("frame buffers: %w", err)
	}
	if fb.Eyes != nil {
		if err := dev.Queue().WriteBuffer(fb.Eyes, 0, fb.encodeEyes(nil)); err != nil {
			fb.Destroy()
			return nil, err
		}
	}
	return fb, nil
}

// Bindings declares the present buffers for a pipeline.
func (fb *FrameBuffers) Bindings() []gpu.Binding {
	var out []gpu.Binding
	for _, e := range fb.entries() {
		kind := gpu.BindingStorage
		if e.Binding == SlotFrame {
			kind = gpu.BindingUniform
		}
		out = append(out, gpu.Binding{Slot: e.Binding, Kind: kind, MinSize: 4})
	}
	return out
}

// entries lists the present buffers by slot.
func (fb *FrameBuffers) entries() []gpu.BindGroupEntry {
	var out []gpu.BindGroupEntry
	for slot, b := range []gpu.Buffer{fb.Frame, fb.Sliders, fb.Eyes, fb.Spectrum} {
		if b != nil {
			out = append(out, gpu.BindGroupEntry{Binding: slot, Buffer: b})
		}
	}
	return out
}

// Upload writes v into every present buffer. Arrays longer than their
// buffer are truncated; the eye array is padded with (-1,-1). With a
// spectrum buffer the uniform's feature is the spectrum's centroid in Hz,
// otherwise the first feature value.
func (fb *FrameBuffers) Upload(q gpu.Queue, v FrameValues) error {
	if fb.Frame != nil {
		var feature float32
		switch {
		case fb.spectrumN > 0:
			spectrum := v.Feature[:min(len(v.Feature), fb.spectrumN/2+1)]
			feature = analysis.Centroid(spectrum, fb.sampleRate, fb.spectrumN)
		case len(v.Feature) > 0:
			feature = v.Feature[0]
		}
		fb.scratch = appendFloats(fb.scratch[:0], v.Time, feature, float32(v.Size.Width), float32(v.Size.Height))
		if err := q.WriteBuffer(fb.Frame, 0, fb.scratch); err != nil {
			return fmt.Errorf("frame uniform: %w", err)
		}
	}
	if fb.Sliders != nil && len(v.Sliders) > 0 {
		if err := q.WriteBuffer(fb.Sliders, 0, fb.encodeFloats(v.Sliders, fb.Sliders.Size())); err != nil {
			return fmt.Errorf("sliders: %w", err)
		}
	}
	if fb.Eyes != nil {
		if err := q.WriteBuffer(fb.Eyes, 0, fb.encodeEyes(v.Eyes)); err != nil {
			return fmt.Errorf("eyes: %w", err)
		}
	}
	if fb.Spectrum != nil && len(v.Feature) > 0 {
		if err := q.WriteBuffer(fb.Spectrum, 0, fb.encodeFloats(v.Feature, fb.Spectrum.Size())); err != nil {
			return fmt.Errorf("spectrum: %w", err)
		}
	}
	return nil
}

func (fb *FrameBuffers) encodeFloats(fs []float32, capacity uint64) []byte {
	n := min(len(fs), int(capacity/4))
	fb.scratch = fb.scratch[:0]
	for _, f := range fs[:n] {
		fb.scratch = appendFloats(fb.scratch, f)
	}
	return fb.scratch
}

func (fb *FrameBuffers) encodeEyes(eyes []shared.Point) []byte {
	n := int(fb.Eyes.Size() / 8)
	fb.scratch = fb.scratch[:0]
	for i := range n {
		p := noEye
		if i < len(eyes) {
			p = eyes[i]
		}
		fb.scratch = appendFloats(fb.scratch, p.X, p.Y)
	}
	return fb.scratch
}

func (fb *FrameBuffers) Destroy() {
	for _, b := range []gpu.Buffer{fb.Frame, fb.Sliders, fb.Eyes, fb.Spectrum} {
		if b != nil {
			b.Destroy()
		}
	}
}
