package render

import (
	"math"
	"testing"

	"shaderviz/internal/gpu"
)

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-4 }

func TestSliderTrySet(t *testing.T) {
	tests := []struct {
		name  string
		x, y  float32
		hit   bool
		value float32
	}{
		{"left edge", -0.5, 0, true, 0},
		{"right edge", 0.5, 0, true, 1},
		{"middle", 0.25, 0.5, true, 0.75},
		{"left of", -0.51, 0, false, 0.5},
		{"above", 0, 0.51, false, 0.5},
		{"below", 0, -0.6, false, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Slider{Width: 1, Height: 1, Value: 0.5}
			if got := s.TrySet(tt.x, tt.y); got != tt.hit {
				t.Fatalf("TrySet(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.hit)
			}
			if !near(s.Value, tt.value) {
				t.Errorf("value = %v, want %v", s.Value, tt.value)
			}
		})
	}
}

func TestNewUILayout(t *testing.T) {
	u := NewUI(10)
	if !u.Hidden {
		t.Error("ui starts visible")
	}
	for i, s := range u.Sliders {
		if s.CenterX != -0.7 || !near(s.CenterY, 0.8-float32(i)/10) {
			t.Errorf("slider %d centred at (%v, %v)", i, s.CenterX, s.CenterY)
		}
		if s.Value != 0.5 {
			t.Errorf("slider %d starts at %v", i, s.Value)
		}
	}
}

func TestUIHiddenIgnoresInput(t *testing.T) {
	u := NewUI(2)
	u.Click(-0.95, 0.8)
	u.Increment()
	if u.Sliders[0].Value != 0.5 {
		t.Fatalf("hidden ui changed to %v", u.Sliders[0].Value)
	}
	u.Toggle()
	u.Click(-0.95, 0.8)
	if !near(u.Sliders[0].Value, 0) {
		t.Errorf("click at left edge gave %v", u.Sliders[0].Value)
	}
	if u.Sliders[1].Value != 0.5 {
		t.Errorf("click leaked to slider 1: %v", u.Sliders[1].Value)
	}
}

func TestUISelectAndNudge(t *testing.T) {
	u := NewUI(3)
	u.Toggle()

	u.Select(7)
	if u.Selected != 0 {
		t.Fatalf("out of range select moved to %d", u.Selected)
	}
	u.Select(-1)
	if u.Selected != 0 {
		t.Fatalf("negative select moved to %d", u.Selected)
	}

	u.Select(2)
	u.Increment()
	if !near(u.Sliders[2].Value, 0.51) {
		t.Errorf("increment gave %v", u.Sliders[2].Value)
	}
	for range 100 {
		u.Increment()
	}
	if u.Sliders[2].Value != 1 {
		t.Errorf("increment past the top gave %v", u.Sliders[2].Value)
	}
	for range 200 {
		u.Decrement()
	}
	if u.Sliders[2].Value != 0 {
		t.Errorf("decrement past the bottom gave %v", u.Sliders[2].Value)
	}
	if u.Sliders[0].Value != 0.5 || u.Sliders[1].Value != 0.5 {
		t.Error("nudge touched an unselected slider")
	}
}

func TestKeyRepeatIsIgnored(t *testing.T) {
	in := newInput()
	if !in.justPressed(KeyM) {
		t.Fatal("first press not reported")
	}
	if in.justPressed(KeyM) {
		t.Fatal("repeat reported as a press")
	}
	in.released(KeyM)
	if !in.justPressed(KeyM) {
		t.Fatal("press after release not reported")
	}
}

func TestKeyDigit(t *testing.T) {
	for k, want := range map[Key]int{Key0: 0, Key7: 7, Key9: 9, KeyM: -1, KeyUnknown: -1, KeyDown: -1} {
		if got := k.Digit(); got != want {
			t.Errorf("Key(%d).Digit() = %d, want %d", k, got, want)
		}
	}
}

func TestClickToNDC(t *testing.T) {
	size := gpu.Size{Width: 800, Height: 600}
	tests := []struct {
		x, y   float64
		nx, ny float32
	}{
		{0, 0, -1, 1},
		{800, 600, 1, -1},
		{400, 300, 0, 0},
		{100, 60, -0.75, 0.8},
	}
	for _, tt := range tests {
		nx, ny := ClickToNDC(tt.x, tt.y, size)
		if !near(nx, tt.nx) || !near(ny, tt.ny) {
			t.Errorf("ClickToNDC(%v, %v) = (%v, %v), want (%v, %v)", tt.x, tt.y, nx, ny, tt.nx, tt.ny)
		}
	}
	if x, y := ClickToNDC(5, 5, gpu.Size{}); x != 0 || y != 0 {
		t.Errorf("empty size gave (%v, %v)", x, y)
	}
}

func TestRectWinding(t *testing.T) {
	vs := Rect(0, 0, 2, 2, 0.5)
	if len(vs) != 6 {
		t.Fatalf("%d vertices", len(vs))
	}
	for tri := range 2 {
		a, b, c := vs[3*tri].Position, vs[3*tri+1].Position, vs[3*tri+2].Position
		area := (b[0]-a[0])*(c[1]-a[1]) - (c[0]-a[0])*(b[1]-a[1])
		if area <= 0 {
			t.Errorf("triangle %d is clockwise", tri)
		}
	}
	data := EncodeVertices(vs)
	if len(data) != 6*VertexStride {
		t.Fatalf("encoded %d bytes", len(data))
	}
	// first vertex: (-1, 1, 0.5, 0) then (0, 1, 0, 0)
	want := []float32{-1, 1, 0.5, 0, 0, 1, 0, 0}
	for i, w := range want {
		if got := floatAt(data, i); got != w {
			t.Errorf("float %d = %v, want %v", i, got, w)
		}
	}
}
