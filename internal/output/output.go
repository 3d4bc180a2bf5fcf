// Package output writes generated images and their metadata to disk.
package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// Image formats accepted by SaveImages.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatBMP  = "bmp"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 75

// Namer returns the file name, without extension, of the i-th item.
type Namer func(i int) string

// Indexed names items "{base}_{i}".
func Indexed(base string) Namer {
	return func(i int) string { return fmt.Sprintf("%s_%d", base, i) }
}

// NormalizeFormat lowercases an image format name and folds "jpg" into "jpeg".
func NormalizeFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatJPEG, "jpg":
		return FormatJPEG, nil
	case FormatPNG, FormatBMP:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

// SaveImages writes images to dir as "{name}.{format}" and returns the paths
// written. An empty dir writes nothing.
func SaveImages(images []image.Image, dir string, name Namer, format string, quality int) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if name == nil {
		name = Indexed("image")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, 0, len(images))
	for i, img := range images {
		path := filepath.Join(dir, name(i)+"."+format)
		var buf bytes.Buffer
		if err := encode(&buf, img, format, quality); err != nil {
			return paths, fmt.Errorf("encode %s: %w", path, err)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func encode(buf *bytes.Buffer, img image.Image, format string, quality int) error {
	switch format {
	case FormatPNG:
		return png.Encode(buf, img)
	case FormatBMP:
		return bmp.Encode(buf, img)
	default:
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	}
}
