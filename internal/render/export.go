package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"shaderviz/internal/gpu"
)

// ExportSize is the resolution of the one-shot file render.
var ExportSize = gpu.Size{Width: 1920, Height: 1080}

// unpackRows copies a padded readback into an RGBA image, swapping blue
// and red for BGRA textures.
func unpackRows(data []byte, size gpu.Size, bytesPerRow int, format gpu.TextureFormat) (*image.RGBA, error) {
	row := 4 * size.Width
	if bytesPerRow < row || len(data) < bytesPerRow*(size.Height-1)+row {
		return nil, fmt.Errorf("readback of %d bytes too short for %v at pitch %d", len(data), size, bytesPerRow)
	}
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for y := range size.Height {
		copy(img.Pix[y*img.Stride:y*img.Stride+row], data[y*bytesPerRow:])
	}
	if format.IsBGRA() {
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img, nil
}

// encodeImage picks the encoder from the file extension. Unknown
// extensions are written as png.
func encodeImage(w io.Writer, ext string, img image.Image) error {
	switch strings.ToLower(ext) {
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return png.Encode(w, img)
	}
}

// SaveImage writes img to path through a temporary file in the same
// directory.
func SaveImage(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeImage(tmp, filepath.Ext(path), img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
