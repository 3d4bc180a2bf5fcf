package imageutil

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ClampTo64 rounds a dimension down to a multiple of 64, never below 64.
func ClampTo64(n int) int {
	n -= n % 64
	if n < 64 {
		return 64
	}
	return n
}

// Resize scales img to exactly w x h using Catmull-Rom interpolation and
// returns an RGBA image. When clamp64 is set, w and h are first rounded down to
// multiples of 64.
func Resize(img image.Image, w, h int, clamp64 bool) *image.RGBA {
	if clamp64 {
		w, h = ClampTo64(w), ClampTo64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ToRGB flattens img onto an opaque RGBA canvas, discarding alpha.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Luminance returns the grey level of every pixel in [0,1], row-major.
func Luminance(img image.Image) []float32 {
	b := img.Bounds()
	out := make([]float32, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			out = append(out, float32(g.Y)/0xffff)
		}
	}
	return out
}
