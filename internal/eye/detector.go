// SPDX-License-Identifier: MIT
/*
Package eye tracks dark round blobs (pupils) in camera frames and publishes
their positions for the shader.

Detection runs in fixed stages on a downscaled frame:
  - grayscale, then the strongest of four directional 3x3 gradients
  - edge threshold to a binary map
  - correlation with an eye-shaped template (image or synthesised ring)
  - correlation with a wide ring kernel that favours isolated hits
  - minimum pairwise distance between kept points
  - colour filter keeping near-black pixels only

Positions are normalised to [0,1] image space.
*/
package eye

import (
	"cmp"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/anthonynsimon/bild/convolution"
	"golang.org/x/image/draw"

	"shaderviz/internal/shared"
)

// DetectorOptions tunes the stages. Zero fields take the defaults below.
type DetectorOptions struct {
	// Width and Height of the working frame. Larger frames are scaled
	// down first; zero uses 160x120.
	Width, Height int
	// Template is the eye shape; nil uses RingTemplate(16).
	Template image.Image
	// EdgeThreshold binarises the gradient map.
	EdgeThreshold float32
	// RingSize is the side of the isolation kernel.
	RingSize int
	// PeakThreshold is the minimum isolation response.
	PeakThreshold float64
	// MinDistance in working-frame pixels between reported points.
	MinDistance float64
	// DarkThreshold is the maximum normalised RGB distance from black.
	DarkThreshold float64
}

const (
	defaultWidth         = 160
	defaultHeight        = 120
	defaultEdgeThreshold = 0.3
	defaultRingSize      = 32
	defaultRingDot       = 0.04
	defaultPeakThreshold = 0.4
	defaultMinDistance   = 10
	defaultDarkThreshold = 0.2
	defaultTemplateSize  = 16
)

// Detector is not safe for concurrent use; each tracker owns one.
type Detector struct {
	opts     DetectorOptions
	template *convolution.Kernel
	ring     *convolution.Kernel
	scaled   *image.RGBA
}

func NewDetector(opts DetectorOptions) *Detector {
	if opts.Template == nil || opts.Template.Bounds().Empty() {
		opts.Template = RingTemplate(defaultTemplateSize)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = defaultWidth, defaultHeight
	}
	if opts.EdgeThreshold == 0 {
		opts.EdgeThreshold = defaultEdgeThreshold
	}
	if opts.RingSize <= 0 {
		opts.RingSize = defaultRingSize
	}
	if opts.PeakThreshold <= 0 {
		opts.PeakThreshold = defaultPeakThreshold
	}
	if opts.MinDistance == 0 {
		opts.MinDistance = defaultMinDistance
	}
	if opts.DarkThreshold == 0 {
		opts.DarkThreshold = defaultDarkThreshold
	}
	return &Detector{
		opts:     opts,
		template: templateKernel(opts.Template),
		ring:     ringKernel(opts.RingSize, defaultRingDot, opts.PeakThreshold),
	}
}

// Detect returns the eye positions found in img, ordered by x then y.
func (d *Detector) Detect(img image.Image) []shared.Point {
	frame := d.prepare(img)
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	if w == 0 || h == 0 {
		return []shared.Point{}
	}

	candidates := d.locate(binarize(edges(frame), d.opts.EdgeThreshold))

	points := make([]shared.Point, 0, len(candidates))
	for _, c := range candidates {
		if !dark(frame.RGBAAt(c.X, c.Y), d.opts.DarkThreshold) {
			continue
		}
		points = append(points, shared.Point{
			X: float32(c.X) / float32(w),
			Y: float32(c.Y) / float32(h),
		})
	}
	return points
}

// locate runs the two correlation stages over a binary edge map and
// returns the surviving pixel coordinates.
func (d *Detector) locate(binary *image.Gray) []image.Point {
	isolated := correlate(correlate(binary, d.template), d.ring)

	var hits []image.Point
	b := isolated.Bounds()
	for y := range b.Dy() {
		row := isolated.Pix[y*isolated.Stride : y*isolated.Stride+b.Dx()]
		for x, v := range row {
			if v != 0 {
				hits = append(hits, image.Pt(x, y))
			}
		}
	}
	return spread(hits, d.opts.MinDistance)
}

// prepare scales img into the working frame, reusing the buffer.
func (d *Detector) prepare(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > d.opts.Width || h > d.opts.Height {
		w, h = d.opts.Width, d.opts.Height
	}
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && b.Dx() == w && b.Dy() == h {
		return rgba
	}

	if d.scaled == nil || d.scaled.Bounds().Dx() != w || d.scaled.Bounds().Dy() != h {
		d.scaled = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(d.scaled, d.scaled.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(d.scaled, d.scaled.Bounds(), img, b, draw.Src, nil)
	}
	return d.scaled
}

// spread sorts points by x then y and drops every point closer than minDist
// to one already kept.
func spread(points []image.Point, minDist float64) []image.Point {
	slices.SortFunc(points, func(a, b image.Point) int {
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})

	kept := make([]image.Point, 0, 8)
	limit := minDist * minDist
	for _, p := range points {
		ok := true
		for _, k := range kept {
			dx, dy := float64(p.X-k.X), float64(p.Y-k.Y)
			if dx*dx+dy*dy < limit {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, p)
		}
	}
	return kept
}

// dark reports whether c lies within limit of black, with RGB distance
// scaled so white is about 1.7.
func dark(c color.RGBA, limit float64) bool {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	return math.Sqrt(r*r+g*g+b*b)/256 < limit
}
