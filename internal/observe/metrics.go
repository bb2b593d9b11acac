// Package observe records the visualizer's OpenTelemetry metrics: frames
// rendered and skipped, audio windows analysed, eye frames processed and
// shared-buffer publishes.
//
// A nil *Metrics is valid and records nothing, so producers and the render
// loop take one unconditionally. Tests build a Metrics over a ManualReader;
// the binary uses the Prometheus-backed provider from InitProvider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "shaderviz"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// FrameDuration tracks render tick latency. Attribute: target.
	FrameDuration metric.Float64Histogram

	// FramesRendered counts submitted frames. Attribute: target.
	FramesRendered metric.Int64Counter

	// FramesSkipped counts ticks that did not draw. Attribute: reason.
	FramesSkipped metric.Int64Counter

	// AudioWindows counts analysis windows. Attribute: status.
	AudioWindows metric.Int64Counter

	// FeaturePublishes counts shared-buffer publishes. Attribute: buffer.
	FeaturePublishes metric.Int64Counter

	// EyeFrames counts camera frames. Attribute: status.
	EyeFrames metric.Int64Counter

	// EyePoints records how many eye positions each processed frame produced.
	EyePoints metric.Int64Histogram
}

// frameBuckets are tuned for 60-240 Hz render loops (seconds).
var frameBuckets = []float64{
	0.001, 0.002, 0.004, 0.008, 0.0167, 0.033, 0.066, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FrameDuration, err = m.Float64Histogram("shaderviz.frame.duration",
		metric.WithDescription("Time spent in one render tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesRendered, err = m.Int64Counter("shaderviz.frames.rendered",
		metric.WithDescription("Frames submitted by render target."),
	); err != nil {
		return nil, err
	}
	if met.FramesSkipped, err = m.Int64Counter("shaderviz.frames.skipped",
		metric.WithDescription("Render ticks skipped by reason."),
	); err != nil {
		return nil, err
	}
	if met.AudioWindows, err = m.Int64Counter("shaderviz.audio.windows",
		metric.WithDescription("Audio analysis windows by status."),
	); err != nil {
		return nil, err
	}
	if met.FeaturePublishes, err = m.Int64Counter("shaderviz.shared.publishes",
		metric.WithDescription("Publishes into the shared feature buffers."),
	); err != nil {
		return nil, err
	}
	if met.EyeFrames, err = m.Int64Counter("shaderviz.eye.frames",
		metric.WithDescription("Camera frames by status."),
	); err != nil {
		return nil, err
	}
	if met.EyePoints, err = m.Int64Histogram("shaderviz.eye.points",
		metric.WithDescription("Eye positions detected per frame."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 16),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFrame records one submitted frame and how long the tick took.
func (m *Metrics) RecordFrame(ctx context.Context, target string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("target", target))
	m.FramesRendered.Add(ctx, 1, attrs)
	m.FrameDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordSkip records a render tick that drew nothing.
func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.FramesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordWindow records one analysis window; status is "ok", "gated" or "error".
func (m *Metrics) RecordWindow(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.AudioWindows.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordPublish records a publish into the named shared buffer.
func (m *Metrics) RecordPublish(ctx context.Context, buffer string) {
	if m == nil {
		return
	}
	m.FeaturePublishes.Add(ctx, 1, metric.WithAttributes(attribute.String("buffer", buffer)))
}

// RecordEyeFrame records one camera frame. points is ignored unless status
// is "ok".
func (m *Metrics) RecordEyeFrame(ctx context.Context, status string, points int) {
	if m == nil {
		return
	}
	m.EyeFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status == "ok" {
		m.EyePoints.Record(ctx, int64(points))
	}
}
