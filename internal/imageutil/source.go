// Package imageutil resolves, resizes and post-processes the images that flow
// in and out of a generation request.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"imaged/internal/common/fsutil"
)

// dataURIPrefix marks inline image data.
const dataURIPrefix = "data:image"

// Source is an image given either in memory or as a string reference. A string
// reference starting with "data:image" is decoded inline; anything else is a
// filesystem path.
type Source struct {
	Image image.Image
	Ref   string
}

// FromImage wraps an in-memory image.
func FromImage(img image.Image) Source { return Source{Image: img} }

// FromRef wraps a path or data URI.
func FromRef(ref string) Source { return Source{Ref: ref} }

// IsZero reports whether no image was supplied.
func (s Source) IsZero() bool { return s.Image == nil && strings.TrimSpace(s.Ref) == "" }

// IsInline reports whether the reference carries inline image data.
func (s Source) IsInline() bool { return strings.HasPrefix(s.Ref, dataURIPrefix) }

// Resolve returns the decoded image. A zero Source resolves to nil without error.
func (s Source) Resolve() (image.Image, error) {
	if s.Image != nil {
		return s.Image, nil
	}
	ref := strings.TrimSpace(s.Ref)
	if ref == "" {
		return nil, nil
	}
	if s.IsInline() {
		return DecodeDataURI(ref)
	}
	return loadFile(ref)
}

// DecodeDataURI decodes a "data:image/<fmt>;base64,<payload>" string.
func DecodeDataURI(uri string) (image.Image, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI: missing payload")
	}
	payload := uri[comma+1:]
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some clients strip padding
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("decode base64 image: %w", err)
		}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode inline image: %w", err)
	}
	return img, nil
}

func loadFile(path string) (image.Image, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", p, err)
	}
	return img, nil
}
