package render

import (
	"encoding/binary"
	"math"

	"shaderviz/internal/gpu"
)

// VertexStride is the std430 size of Vertex: a vec3 padded to 16 bytes
// followed by a vec2 padded to 16.
const VertexStride = 32

// Vertex is one corner of a quad. Position is in normalised device
// coordinates; Pixel runs from (0,0) bottom left to (1,1) top right.
type Vertex struct {
	Position [3]float32
	Pixel    [2]float32
}

// vertexAttributes matches the shaders' inputs: location 0 reads the
// padded position as a vec4, location 1 the pixel coordinate.
var vertexAttributes = []gpu.VertexAttribute{
	{Location: 0, Offset: 0, Components: 4},
	{Location: 1, Offset: 16, Components: 2},
}

// Rect returns the six counter-clockwise vertices of an axis aligned
// rectangle centred at (cx, cy) at depth z.
func Rect(cx, cy, w, h, z float32) []Vertex {
	l, r := cx-w/2, cx+w/2
	b, t := cy-h/2, cy+h/2
	return []Vertex{
		{Position: [3]float32{l, t, z}, Pixel: [2]float32{0, 1}},
		{Position: [3]float32{l, b, z}, Pixel: [2]float32{0, 0}},
		{Position: [3]float32{r, b, z}, Pixel: [2]float32{1, 0}},
		{Position: [3]float32{l, t, z}, Pixel: [2]float32{0, 1}},
		{Position: [3]float32{r, b, z}, Pixel: [2]float32{1, 0}},
		{Position: [3]float32{r, t, z}, Pixel: [2]float32{1, 1}},
	}
}

// FullScreen covers the whole target.
func FullScreen() []Vertex { return Rect(0, 0, 2, 2, 0) }

// PiRect is the smaller draw area used on the Raspberry Pi display.
func PiRect() []Vertex { return Rect(-0.4, -0.45, 1.3, 1.1, 0) }

// EncodeVertices lays vertices out for a VertexStride vertex buffer.
func EncodeVertices(vs []Vertex) []byte {
	out := make([]byte, 0, len(vs)*VertexStride)
	for _, v := range vs {
		out = appendFloats(out, v.Position[0], v.Position[1], v.Position[2], 0)
		out = appendFloats(out, v.Pixel[0], v.Pixel[1], 0, 0)
	}
	return out
}

func appendFloats(b []byte, fs ...float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// newVertexBuffer uploads vs into a new vertex buffer.
func newVertexBuffer(dev gpu.Device, label string, vs []Vertex) (gpu.Buffer, error) {
	data := EncodeVertices(vs)
	buf, err := dev.CreateBuffer(gpu.BufferDesc{
		Label: label,
		Size:  uint64(len(data)),
		Usage: gpu.BufferVertex | gpu.BufferCopyDst,
	})
	if err != nil {
		return nil, err
	}
	if err := dev.Queue().WriteBuffer(buf, 0, data); err != nil {
		buf.Destroy()
		return nil, err
	}
	return buf, nil
}
