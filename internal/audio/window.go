// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"strings"
)

// Windower turns a stream of mono sample chunks of any length into fixed
// size analysis windows.
type Windower interface {
	// Push appends samples and reports whether a full window is ready.
	Push(samples []float32) bool
	// Window copies the current window, oldest sample first, into dst,
	// which must hold Size values.
	Window(dst []float32)
	Size() int
	Reset()
}

// Policy selects how a Windower reuses samples between windows.
type Policy int

const (
	// PolicyTumbling emits non-overlapping windows.
	PolicyTumbling Policy = iota
	// PolicyRing keeps a sliding window over the most recent samples.
	PolicyRing
)

func (p Policy) String() string {
	switch p {
	case PolicyTumbling:
		return "tumbling"
	case PolicyRing:
		return "ring"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "tumbling" or "ring" (alias "sliding").
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tumbling":
		return PolicyTumbling, nil
	case "ring", "sliding":
		return PolicyRing, nil
	default:
		return PolicyRing, fmt.Errorf("unknown window policy: '%s'", name)
	}
}

// NewWindower builds the Windower for policy.
func NewWindower(policy Policy, size int) Windower {
	if policy == PolicyTumbling {
		return NewTumbling(size)
	}
	return NewRing(size)
}

// Tumbling collects exactly Size new samples per window. Samples that
// overrun a window start the next one. If one Push completes several
// windows only the newest is kept.
type Tumbling struct {
	buf   []float32
	ready []float32
	fill  int
}

// NewTumbling returns a tumbling windower of size samples.
func NewTumbling(size int) *Tumbling {
	return &Tumbling{
		buf:   make([]float32, size),
		ready: make([]float32, size),
	}
}

func (t *Tumbling) Push(samples []float32) bool {
	complete := false
	for len(samples) > 0 {
		n := copy(t.buf[t.fill:], samples)
		t.fill += n
		samples = samples[n:]
		if t.fill == len(t.buf) {
			copy(t.ready, t.buf)
			t.fill = 0
			complete = true
		}
	}
	return complete
}

// Window copies the most recently completed window.
func (t *Tumbling) Window(dst []float32) { copy(dst, t.ready) }

func (t *Tumbling) Size() int { return len(t.buf) }

func (t *Tumbling) Reset() {
	t.fill = 0
	clear(t.ready)
}

// Ring is a circular buffer over the last Size samples. Each Push
// overwrites the oldest samples; once Size samples have been seen every
// Push yields a window.
type Ring struct {
	buf  []float32
	pos  int // next write index, also the oldest sample once full
	seen int // samples written, saturating at len(buf)
}

// NewRing returns a ring windower of size samples.
func NewRing(size int) *Ring {
	return &Ring{buf: make([]float32, size)}
}

func (r *Ring) Push(samples []float32) bool {
	n := len(r.buf)
	if len(samples) >= n {
		// Only the newest n samples survive.
		copy(r.buf, samples[len(samples)-n:])
		r.pos = 0
		r.seen = n
		return true
	}
	first := copy(r.buf[r.pos:], samples)
	copy(r.buf, samples[first:])
	r.pos = (r.pos + len(samples)) % n
	r.seen = min(r.seen+len(samples), n)
	return r.seen == n
}

// Window is Linearize.
func (r *Ring) Window(dst []float32) { r.Linearize(dst) }

// Linearize copies the ring into dst in chronological order, oldest first.
// The FFT needs a non-wrapping sequence.
func (r *Ring) Linearize(dst []float32) {
	n := copy(dst, r.buf[r.pos:])
	copy(dst[n:], r.buf[:r.pos])
}

func (r *Ring) Size() int { return len(r.buf) }

func (r *Ring) Reset() {
	clear(r.buf)
	r.pos = 0
	r.seen = 0
}
