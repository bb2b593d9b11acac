// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"

	"shaderviz/internal/analysis"
	"shaderviz/internal/observe"
	"shaderviz/internal/shared"
)

// Pipeline is the part of the capture loop shared by live capture and file
// playback: it windows mono samples, gates them, extracts the feature and
// publishes it. Everything is pre-allocated; Feed does not allocate.
type Pipeline struct {
	windower Windower
	proc     analysis.WindowProcessor
	gate     *Gate
	out      *shared.Floats
	metrics  *observe.Metrics

	window  []float32
	feature []float32
}

// NewPipeline checks that the windower and processor agree on the window
// size and pre-allocates the scratch buffers.
func NewPipeline(w Windower, proc analysis.WindowProcessor, gate *Gate, out *shared.Floats, metrics *observe.Metrics) (*Pipeline, error) {
	if w.Size() != proc.WindowSize() {
		return nil, fmt.Errorf("windower size %d does not match extractor window %d", w.Size(), proc.WindowSize())
	}
	if gate == nil {
		gate = NewGate(0)
	}
	return &Pipeline{
		windower: w,
		proc:     proc,
		gate:     gate,
		out:      out,
		metrics:  metrics,
		window:   make([]float32, w.Size()),
		feature:  make([]float32, proc.FeatureLen()),
	}, nil
}

// Gate exposes the pipeline's noise gate for runtime adjustment.
func (p *Pipeline) Gate() *Gate { return p.gate }

// Feed pushes mono samples through the pipeline and reports whether a new
// feature was published. An extraction error is logged and skipped; the
// shared buffer keeps its previous value.
func (p *Pipeline) Feed(mono []float32) bool {
	if !p.windower.Push(mono) {
		return false
	}
	p.windower.Window(p.window)

	status := "ok"
	if !p.gate.Open(p.window) {
		clear(p.window)
		status = "gated"
	}

	if err := p.proc.ExtractInto(p.feature, p.window); err != nil {
		logger.Debugf("skipping window: %v", err)
		p.metrics.RecordWindow(context.Background(), "error")
		return false
	}
	p.metrics.RecordWindow(context.Background(), status)

	shared.PublishInto(p.out, p.feature)
	p.metrics.RecordPublish(context.Background(), "audio")
	return true
}

// Reset drops any partially collected window.
func (p *Pipeline) Reset() { p.windower.Reset() }

// Downmix writes the first channel of interleaved into dst and returns the
// number of frames written.
func Downmix(dst, interleaved []float32, channels int) int {
	if channels <= 1 {
		return copy(dst, interleaved)
	}
	frames := min(len(interleaved)/channels, len(dst))
	for f := range frames {
		dst[f] = interleaved[f*channels]
	}
	return frames
}
