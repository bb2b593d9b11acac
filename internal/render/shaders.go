package render

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	//go:embed shaders/shader.vert
	defaultVertex string
	//go:embed shaders/shader.frag
	defaultFragment string
	//go:embed shaders/ui.vert
	uiVertex string
	//go:embed shaders/ui.frag
	uiFragment string
)

// Shaders holds GLSL 450 sources for both pipelines.
type Shaders struct {
	Vertex     string
	Fragment   string
	UIVertex   string
	UIFragment string
}

// DefaultShaders returns the built-in sources.
func DefaultShaders() Shaders {
	return Shaders{
		Vertex:     defaultVertex,
		Fragment:   defaultFragment,
		UIVertex:   uiVertex,
		UIFragment: uiFragment,
	}
}

// LoadShaders reads the fragment shader from path. A missing file falls
// back to the built-in shader when allowDefault is set.
func LoadShaders(path string, allowDefault bool) (Shaders, error) {
	s := DefaultShaders()
	if path == "" {
		return s, nil
	}
	src, err := os.ReadFile(path)
	switch {
	case err == nil:
		s.Fragment = string(src)
	case allowDefault && errors.Is(err, fs.ErrNotExist):
		logger.Infof("%s not found, using the built-in shader", path)
	default:
		return s, fmt.Errorf("read shader: %w", err)
	}
	return s, nil
}
