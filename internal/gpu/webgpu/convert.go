package webgpu

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"

	"shaderviz/internal/gpu"
)

var formats = map[gpu.TextureFormat]wgpu.TextureFormat{
	gpu.FormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	gpu.FormatRGBA8UnormSRGB: wgpu.TextureFormatRGBA8UnormSrgb,
	gpu.FormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	gpu.FormatBGRA8UnormSRGB: wgpu.TextureFormatBGRA8UnormSrgb,
}

func toFormat(f gpu.TextureFormat) (wgpu.TextureFormat, error) {
	wf, ok := formats[f]
	if !ok {
		return wgpu.TextureFormatUndefined, fmt.Errorf("texture format %v: %w", f, gpu.ErrUnsupported)
	}
	return wf, nil
}

// fromFormat maps a native format back, returning FormatUndefined for
// formats the renderer never uses.
func fromFormat(wf wgpu.TextureFormat) gpu.TextureFormat {
	for f, w := range formats {
		if w == wf {
			return f
		}
	}
	return gpu.FormatUndefined
}

func toPresentMode(m gpu.PresentMode) wgpu.PresentMode {
	switch m {
	case gpu.PresentMailbox:
		return wgpu.PresentModeMailbox
	case gpu.PresentImmediate:
		return wgpu.PresentModeImmediate
	default:
		return wgpu.PresentModeFifo
	}
}

func fromPresentMode(m wgpu.PresentMode) (gpu.PresentMode, bool) {
	switch m {
	case wgpu.PresentModeFifo:
		return gpu.PresentFifo, true
	case wgpu.PresentModeMailbox:
		return gpu.PresentMailbox, true
	case wgpu.PresentModeImmediate:
		return gpu.PresentImmediate, true
	}
	return 0, false
}

func toBufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&gpu.BufferVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&gpu.BufferUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&gpu.BufferStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&gpu.BufferCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&gpu.BufferMapRead != 0 {
		out |= wgpu.BufferUsageMapRead
	}
	return out
}

func toTextureUsage(u gpu.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&gpu.TextureRenderAttachment != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&gpu.TextureCopySrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	return out
}

var vertexFormats = map[int]wgpu.VertexFormat{
	1: wgpu.VertexFormatFloat32,
	2: wgpu.VertexFormatFloat32x2,
	3: wgpu.VertexFormatFloat32x3,
	4: wgpu.VertexFormatFloat32x4,
}

func toVertexAttributes(attrs []gpu.VertexAttribute) ([]wgpu.VertexAttribute, error) {
	out := make([]wgpu.VertexAttribute, 0, len(attrs))
	for _, a := range attrs {
		vf, ok := vertexFormats[a.Components]
		if !ok {
			return nil, fmt.Errorf("vertex attribute %d with %d components: %w", a.Location, a.Components, gpu.ErrUnsupported)
		}
		out = append(out, wgpu.VertexAttribute{
			Format:         vf,
			Offset:         a.Offset,
			ShaderLocation: uint32(a.Location),
		})
	}
	return out, nil
}

// classify maps wgpu-native surface errors onto the gpu sentinels. The
// native layer reports them as text.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "outdated"):
		return fmt.Errorf("%w: %v", gpu.ErrSurfaceOutdated, err)
	case strings.Contains(msg, "lost"):
		return fmt.Errorf("%w: %v", gpu.ErrSurfaceLost, err)
	case strings.Contains(msg, "out of memory"), strings.Contains(msg, "outofmemory"):
		return fmt.Errorf("%w: %v", gpu.ErrOutOfMemory, err)
	case strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", gpu.ErrTimeout, err)
	}
	return err
}
