package eye

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"shaderviz/internal/observe"
	"shaderviz/internal/shared"
)

// maxConsecutiveFailures bounds how many frame errors in a row the tracker
// tolerates before giving up on the camera.
const maxConsecutiveFailures = 30

// Retry delays after a failed frame double from minRetryDelay up to
// maxRetryDelay and reset on the next good frame.
const (
	minRetryDelay = 50 * time.Millisecond
	maxRetryDelay = time.Second
)

// Tracker pulls frames from a FrameSource, detects eyes and publishes the
// positions. It is the only writer of its output buffer.
type Tracker struct {
	src       FrameSource
	det       *Detector
	out       *shared.Points
	metrics   *observe.Metrics
	maxPoints int

	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker wires a source to out. maxPoints caps each published set;
// zero leaves it uncapped. metrics may be nil.
func NewTracker(src FrameSource, det *Detector, out *shared.Points, metrics *observe.Metrics, maxPoints int) *Tracker {
	return &Tracker{src: src, det: det, out: out, metrics: metrics, maxPoints: maxPoints, sleep: sleepContext}
}

// Run processes frames until ctx is cancelled or the source ends. A failed
// frame keeps the previous positions. The source is closed on return.
func (t *Tracker) Run(ctx context.Context) error {
	defer t.src.Close()

	failures := 0
	delay := minRetryDelay
	for {
		if ctx.Err() != nil {
			return nil
		}

		img, err := t.src.Frame(ctx)
		switch {
		case err == nil:
			failures = 0
			delay = minRetryDelay
		case errors.Is(err, ErrNoFrame):
			logger.Infof("frame source finished")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			failures++
			t.metrics.RecordEyeFrame(ctx, "dropped", 0)
			logger.Warnf("dropped frame: %v", err)
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("camera failed %d times in a row: %w", failures, err)
			}
			if t.sleep(ctx, delay) != nil {
				return nil
			}
			delay = min(2*delay, maxRetryDelay)
			continue
		}

		t.Step(ctx, img)
	}
}

// Step runs detection on one frame and publishes the result.
func (t *Tracker) Step(ctx context.Context, img image.Image) []shared.Point {
	points := t.det.Detect(img)
	if t.maxPoints > 0 && len(points) > t.maxPoints {
		points = points[:t.maxPoints]
	}
	t.out.Publish(points)
	t.metrics.RecordEyeFrame(ctx, "ok", len(points))
	t.metrics.RecordPublish(ctx, "eyes")
	logger.Debugf("%d eye(s)", len(points))
	return points
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
