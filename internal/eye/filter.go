package eye

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// passLevel is the 8-bit level a correlation response must reach to count
// as a hit once its kernel has been scaled by passKernel.
const passLevel = 128

// Directional 3x3 gradient kernels, row-major. The edge map keeps the
// strongest response of the four; negative responses clamp to zero.
var edgeKernels = [4][9]float64{
	{1, 2, 1, 0, 0, 0, -1, -2, -1},
	{1, 0, -1, 2, 0, -2, 1, 0, -1},
	{0, 1, 2, -1, 0, 1, -2, -1, 0},
	{-2, -1, 0, -1, 0, 1, 0, 1, 2},
}

var keepAlpha = &convolution.Options{KeepAlpha: true}

// edges returns the gradient magnitude of img's luminance, saturated at
// white.
func edges(img image.Image) *image.RGBA {
	gray := effect.Grayscale(img)
	var out *image.RGBA
	for i := range edgeKernels {
		k := &convolution.Kernel{Matrix: edgeKernels[i][:], Width: 3, Height: 3}
		resp := convolution.Convolve(gray, k, keepAlpha)
		if out == nil {
			out = resp
			continue
		}
		out = blend.Lighten(out, resp)
	}
	return out
}

// binarize keeps pixels brighter than t, a fraction of full scale.
func binarize(img image.Image, t float32) *image.Gray {
	level := int(t*255) + 1
	return segment.Threshold(img, uint8(min(max(level, 0), 255)))
}

// passKernel builds a w x h correlation kernel for 0/255 binary maps. hi
// weights the cells listed in on and lo every other cell. The kernel is
// scaled so that a response above minimum, counted in set pixels, reaches
// passLevel. minimum must be positive.
func passKernel(w, h int, on []image.Point, hi, lo, minimum float64) *convolution.Kernel {
	scale := (passLevel - 0.5) / (255 * minimum)
	k := convolution.NewKernel(w, h)
	for i := range k.Matrix {
		k.Matrix[i] = lo * scale
	}
	for _, o := range on {
		k.Matrix[(o.Y+h/2)*w+o.X+w/2] = hi * scale
	}
	return k
}

// correlate runs a passKernel over a binary map and returns the hits.
func correlate(binary image.Image, k *convolution.Kernel) *image.Gray {
	return segment.Threshold(convolution.Convolve(binary, k, keepAlpha), passLevel)
}

// templateKernel builds the shape kernel from a template image: bright
// cells score 3, the rest -1. A window must score above a twelfth of the
// kernel area.
func templateKernel(tmpl image.Image) *convolution.Kernel {
	g := effect.Grayscale(tmpl)
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	var on []image.Point
	for y := range h {
		for x := range w {
			if g.RGBAAt(b.Min.X+x, b.Min.Y+y).R > 76 {
				on = append(on, image.Pt(x-w/2, y-h/2))
			}
		}
	}
	return passKernel(w, h, on, 3, -1, float64(w*h)/12)
}

// ringKernel favours hits with nothing else around them: a small dot of
// hi weight inside a size x size field of lo weight.
func ringKernel(size int, dot float32, peak float64) *convolution.Kernel {
	return passKernel(size, size, ringCells(size, 0, 0, dot), 2, -2, peak)
}

// ringCells lists the offsets from the centre of a size x size grid whose
// normalised distance lies in [inner, outer] or below dot.
func ringCells(size int, inner, outer, dot float32) []image.Point {
	var on []image.Point
	half := float32(size) / 2
	for y := range size {
		for x := range size {
			dx := (float32(x) - half) / float32(size)
			dy := (float32(y) - half) / float32(size)
			d2 := dx*dx + dy*dy
			if (d2 >= inner*inner && d2 <= outer*outer) || d2 < dot*dot {
				on = append(on, image.Pt(x-size/2, y-size/2))
			}
		}
	}
	return on
}

// RingTemplate renders a bright ring on black, usable as a detector
// template when no eye image is configured.
func RingTemplate(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for _, o := range ringCells(size, 0.3, 0.4, 0.05) {
		img.SetGray(o.X+size/2, o.Y+size/2, color.Gray{Y: 255})
	}
	return img
}
