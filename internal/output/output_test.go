package output

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testImages(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, 16, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 16; x++ {
				img.Set(x, y, color.RGBA{R: uint8(60 * i), G: 90, B: 10, A: 255})
			}
		}
		out[i] = img
	}
	return out
}

func TestSaveImagesFormats(t *testing.T) {
	dir := t.TempDir()
	for _, format := range []string{"PNG", "jpg", "bmp"} {
		paths, err := SaveImages(testImages(2), dir, Indexed("img_"+format), format, 90)
		require.NoError(t, err)
		require.Len(t, paths, 2)
		for _, p := range paths {
			f, err := os.Open(p)
			require.NoError(t, err)
			_, kind, err := image.Decode(f)
			f.Close()
			require.NoError(t, err, p)
			norm, _ := NormalizeFormat(format)
			assert.Equal(t, norm, kind)
		}
	}
	assert.FileExists(t, filepath.Join(dir, "img_PNG_1.png"))
	assert.FileExists(t, filepath.Join(dir, "img_jpg_0.jpeg"))
}

func TestSaveImagesNoDirIsNoop(t *testing.T) {
	paths, err := SaveImages(testImages(1), "", nil, "png", 0)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSaveImagesRejectsUnknownFormat(t *testing.T) {
	_, err := SaveImages(testImages(1), t.TempDir(), nil, "tiff", 0)
	assert.Error(t, err)
}

func TestSaveMetadataTextAndJSON(t *testing.T) {
	dir := t.TempDir()
	entries := []Metadata{{"prompt": "a fox", "seed": 42}, {"prompt": "a fox", "seed": 43}}
	require.NoError(t, SaveMetadata(entries, dir, Indexed("meta"), []string{"txt", "JSON"}, "png"))

	txt, err := os.ReadFile(filepath.Join(dir, "meta_1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "prompt: a fox\nseed: 43\n", string(txt))

	raw, err := os.ReadFile(filepath.Join(dir, "meta_0.json"))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "a fox", got["prompt"])
	assert.EqualValues(t, 42, got["seed"])
}

func TestSaveMetadataEmbedPNG(t *testing.T) {
	dir := t.TempDir()
	name := Indexed("out")
	_, err := SaveImages(testImages(1), dir, name, "png", 0)
	require.NoError(t, err)
	require.NoError(t, SaveMetadata([]Metadata{{"prompt": "a fox", "steps": 25}}, dir, name, []string{"embed"}, "png"))

	data, err := os.ReadFile(filepath.Join(dir, "out_0.png"))
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("tEXtprompt\x00a fox")))
	assert.True(t, bytes.Contains(data, []byte("tEXtsteps\x0025")))
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestEmbedPNGTextNonLatin1(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImages(1)[0]))

	data, err := EmbedPNGText(buf.Bytes(), Metadata{"prompt": "un chat à Paris", "negative_prompt": "猫, blurry"})
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("tEXtprompt\x00un chat \xe0 Paris")), "latin-1 value stays in tEXt")
	assert.True(t, bytes.Contains(data, []byte("iTXtnegative_prompt\x00\x00\x00\x00\x00猫, blurry")), "other values use iTXt")
	assert.False(t, bytes.Contains(data, []byte("tEXtnegative_prompt")))

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	_, err = EmbedPNGText(buf.Bytes(), Metadata{"日付": 1})
	assert.Error(t, err)
}

func TestSaveMetadataEmbedJPEG(t *testing.T) {
	dir := t.TempDir()
	name := Indexed("out")
	_, err := SaveImages(testImages(1), dir, name, "jpeg", 80)
	require.NoError(t, err)
	require.NoError(t, SaveMetadata([]Metadata{{"prompt": "a fox"}}, dir, name, []string{"embed"}, "jpeg"))

	data, err := os.ReadFile(filepath.Join(dir, "out_0.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xFE}, data[:4])
	assert.True(t, bytes.Contains(data, []byte(`{"prompt":"a fox"}`)))
	_, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}

func TestEmbedRejectsForeignData(t *testing.T) {
	_, err := EmbedPNGText([]byte("nope"), Metadata{"a": 1})
	assert.Error(t, err)
	_, err = EmbedJPEGComment([]byte("nope"), Metadata{"a": 1})
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, testImages(1)[0]))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x_0.bmp"), buf.Bytes(), 0o644))
	err = SaveMetadata([]Metadata{{"a": 1}}, dir, Indexed("x"), []string{"embed"}, "bmp")
	assert.Error(t, err)
}
