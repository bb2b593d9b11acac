package window

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"shaderviz/internal/gpu"
	"shaderviz/internal/render"
)

// handler is the part of render.State the event callbacks drive.
type handler interface {
	KeyPressed(render.Key)
	KeyReleased(render.Key)
	PointerMoved(x, y float64)
	PointerButton(down bool)
	Resize(gpu.Size) error
}

var _ handler = (*render.State)(nil)

var keys = map[glfw.Key]render.Key{
	glfw.Key0:    render.Key0,
	glfw.Key1:    render.Key1,
	glfw.Key2:    render.Key2,
	glfw.Key3:    render.Key3,
	glfw.Key4:    render.Key4,
	glfw.Key5:    render.Key5,
	glfw.Key6:    render.Key6,
	glfw.Key7:    render.Key7,
	glfw.Key8:    render.Key8,
	glfw.Key9:    render.Key9,
	glfw.KeyKP0:  render.Key0,
	glfw.KeyKP1:  render.Key1,
	glfw.KeyKP2:  render.Key2,
	glfw.KeyKP3:  render.Key3,
	glfw.KeyKP4:  render.Key4,
	glfw.KeyKP5:  render.Key5,
	glfw.KeyKP6:  render.Key6,
	glfw.KeyKP7:  render.Key7,
	glfw.KeyKP8:  render.Key8,
	glfw.KeyKP9:  render.Key9,
	glfw.KeyM:    render.KeyM,
	glfw.KeyUp:   render.KeyUp,
	glfw.KeyDown: render.KeyDown,
}

// mapKey translates a glfw key code.
func mapKey(k glfw.Key) render.Key {
	if rk, ok := keys[k]; ok {
		return rk
	}
	return render.KeyUnknown
}

// events turns glfw callbacks into handler calls. Escape asks the window
// to close instead of reaching the handler.
type events struct {
	h     handler
	close func()
}

func (e *events) key(k glfw.Key, action glfw.Action) {
	if k == glfw.KeyEscape {
		if action == glfw.Press {
			e.close()
		}
		return
	}
	rk := mapKey(k)
	if rk == render.KeyUnknown {
		return
	}
	switch action {
	case glfw.Press, glfw.Repeat:
		e.h.KeyPressed(rk)
	case glfw.Release:
		e.h.KeyReleased(rk)
	}
}

func (e *events) cursor(x, y float64) { e.h.PointerMoved(x, y) }

func (e *events) button(b glfw.MouseButton, action glfw.Action) {
	if b != glfw.MouseButtonLeft {
		return
	}
	e.h.PointerButton(action == glfw.Press)
}

func (e *events) resize(width, height int) {
	size := gpu.Size{Width: width, Height: height}
	if err := e.h.Resize(size); err != nil {
		logger.Errorf("resize to %v: %v", size, err)
	}
}

// attach installs the callbacks on w.
func (e *events) attach(w *glfw.Window) {
	w.SetKeyCallback(func(_ *glfw.Window, k glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		e.key(k, action)
	})
	// Cursor positions are in screen coordinates; the renderer works in
	// framebuffer pixels.
	w.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		ww, wh := w.GetSize()
		fw, fh := w.GetFramebufferSize()
		if ww > 0 && wh > 0 {
			x *= float64(fw) / float64(ww)
			y *= float64(fh) / float64(wh)
		}
		e.cursor(x, y)
	})
	w.SetMouseButtonCallback(func(_ *glfw.Window, b glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		e.button(b, action)
	})
	w.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) { e.resize(width, height) })
}
