package render

import "shaderviz/internal/gpu"

// Key is a keyboard key the renderer reacts to. The window layer maps its
// own key codes onto these.
type Key int

const (
	KeyUnknown Key = iota
	Key0
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyM
	KeyUp
	KeyDown
)

// Digit returns the number on a digit key, or -1.
func (k Key) Digit() int {
	if k >= Key0 && k <= Key9 {
		return int(k - Key0)
	}
	return -1
}

// input tracks held keys so auto-repeat does not count as new presses,
// and the pointer for click dispatch.
type input struct {
	pressed  map[Key]bool
	x, y     float64
	buttonOn bool
}

func newInput() *input {
	return &input{pressed: make(map[Key]bool)}
}

// justPressed records k as held and reports whether it was up before.
func (in *input) justPressed(k Key) bool {
	was := in.pressed[k]
	in.pressed[k] = true
	return !was
}

func (in *input) released(k Key) { in.pressed[k] = false }

// ClickToNDC maps a window pixel position (origin top left) to normalised
// device coordinates with y pointing up.
func ClickToNDC(x, y float64, size gpu.Size) (float32, float32) {
	if size.Empty() {
		return 0, 0
	}
	rx := x / float64(size.Width)
	ry := 1 - y/float64(size.Height)
	return float32(rx*2 - 1), float32(ry*2 - 1)
}
