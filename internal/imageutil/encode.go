package imageutil

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
)

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToDataURI encodes img as a PNG data URI.
func ToDataURI(img image.Image) (string, error) {
	b, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + "/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}
