// Package transport taps the shared feature and eye buffers and forwards
// their latest values to external listeners. The renderer never waits on
// it: every transport drops messages rather than block.
package transport

import (
	"context"
	"time"

	"shaderviz/internal/log"
	"shaderviz/internal/shared"
)

var logger = log.New("transport")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is one tap message.
type Frame struct {
	Seq      uint64       `json:"seq"`
	Time     int64        `json:"time"` // Unix nanoseconds.
	Features []float32    `json:"features"`
	Eyes     [][2]float32 `json:"eyes"`
}

// Tap polls the shared buffers and sends a Frame to every transport when
// either buffer has been published since the last send.
type Tap struct {
	features   *shared.Floats
	eyes       *shared.Points
	interval   time.Duration
	transports []Transport
	now        func() time.Time

	seq     uint64
	featGen uint64
	eyeGen  uint64
	started bool
}

// NewTap creates a tap. eyes may be nil.
func NewTap(features *shared.Floats, eyes *shared.Points, interval time.Duration, transports ...Transport) *Tap {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &Tap{
		features:   features,
		eyes:       eyes,
		interval:   interval,
		transports: transports,
		now:        time.Now,
	}
}

// Run sends frames until ctx is cancelled, then closes the transports.
func (t *Tap) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer t.close()
	logger.Infof("tap running every %s to %d transport(s)", t.interval, len(t.transports))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if f, ok := t.Step(); ok {
				t.send(f)
			}
		}
	}
}

// Step returns the next frame, or false when nothing was published since
// the previous one.
func (t *Tap) Step() (Frame, bool) {
	fg := t.features.Generation()
	var eg uint64
	if t.eyes != nil {
		eg = t.eyes.Generation()
	}
	if t.started && fg == t.featGen && eg == t.eyeGen {
		return Frame{}, false
	}
	t.started = true
	t.featGen, t.eyeGen = fg, eg
	t.seq++

	f := Frame{
		Seq:      t.seq,
		Time:     t.now().UnixNano(),
		Features: t.features.Snapshot(),
		Eyes:     [][2]float32{},
	}
	if t.eyes != nil {
		for _, p := range t.eyes.Snapshot() {
			f.Eyes = append(f.Eyes, [2]float32{p.X, p.Y})
		}
	}
	return f, true
}

func (t *Tap) send(f Frame) {
	for _, tr := range t.transports {
		if err := tr.Send(f); err != nil {
			logger.Warnf("send frame %d: %v", f.Seq, err)
		}
	}
}

func (t *Tap) close() {
	for _, tr := range t.transports {
		if err := tr.Close(); err != nil {
			logger.Warnf("close transport: %v", err)
		}
	}
}
