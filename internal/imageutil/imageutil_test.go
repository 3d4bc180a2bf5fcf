package imageutil

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestSourceResolve(t *testing.T) {
	red := solid(4, 4, color.RGBA{R: 255, A: 255})

	t.Run("zero source resolves to nil", func(t *testing.T) {
		img, err := Source{}.Resolve()
		require.NoError(t, err)
		assert.Nil(t, img)
		assert.True(t, Source{Ref: "  "}.IsZero())
	})

	t.Run("in-memory image is returned as is", func(t *testing.T) {
		img, err := FromImage(red).Resolve()
		require.NoError(t, err)
		assert.Same(t, red, img)
	})

	t.Run("data URI is decoded inline", func(t *testing.T) {
		uri, err := ToDataURI(red)
		require.NoError(t, err)
		src := FromRef(uri)
		assert.True(t, src.IsInline())

		img, err := src.Resolve()
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
		r, _, _, _ := img.At(1, 1).RGBA()
		assert.Equal(t, uint32(0xffff), r)
	})

	t.Run("other strings are file paths", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "in.png")
		f, err := os.Create(p)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, red))
		require.NoError(t, f.Close())

		img, err := FromRef(p).Resolve()
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dy())
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := FromRef(filepath.Join(t.TempDir(), "nope.png")).Resolve()
		assert.Error(t, err)
	})

	t.Run("garbage data URI is an error", func(t *testing.T) {
		_, err := FromRef("data:image/png;base64,@@@").Resolve()
		assert.Error(t, err)
	})
}

func TestResizeClampsTo64(t *testing.T) {
	src := solid(100, 100, color.White)

	assert.Equal(t, image.Rect(0, 0, 520, 300), Resize(src, 520, 300, false).Bounds())
	assert.Equal(t, image.Rect(0, 0, 512, 256), Resize(src, 520, 300, true).Bounds())
	assert.Equal(t, 64, ClampTo64(8))
}

func TestLuminance(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(1, 0, color.Gray{Y: 255})

	assert.Equal(t, []float32{0, 1}, Luminance(img))
}

func TestApplyColorProfileMovesTowardsSource(t *testing.T) {
	src := solid(8, 8, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	dst := solid(8, 8, color.RGBA{R: 40, G: 40, B: 200, A: 255})

	out := ApplyColorProfile(src, dst)

	require.Equal(t, dst.Bounds(), out.Bounds())
	c := out.NRGBAAt(3, 3)
	assert.Greater(t, c.R, c.B, "output should take on the source's red cast")
	assert.Equal(t, uint8(255), c.A)
}
