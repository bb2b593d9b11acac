package render

import "time"

const fpsWindow = 32

// FPS averages the last 32 frame intervals.
type FPS struct {
	intervals [fpsWindow]time.Duration
	next      int
	filled    int
	last      time.Time
}

// Presented records a frame shown at now.
func (f *FPS) Presented(now time.Time) {
	if !f.last.IsZero() {
		f.intervals[f.next] = now.Sub(f.last)
		f.next = (f.next + 1) % fpsWindow
		f.filled = min(f.filled+1, fpsWindow)
	}
	f.last = now
}

// Rate returns frames per second over the recorded intervals, or 0
// before the second frame.
func (f *FPS) Rate() float64 {
	var sum time.Duration
	for _, d := range f.intervals[:f.filled] {
		sum += d
	}
	if sum <= 0 {
		return 0
	}
	return float64(f.filled) / sum.Seconds()
}
