package imageutil

import (
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

type labStats struct {
	mean [3]float64
	std  [3]float64
}

func toColorful(c color.Color) (colorful.Color, uint8) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return colorful.Color{R: float64(n.R) / 255, G: float64(n.G) / 255, B: float64(n.B) / 255}, n.A
}

func statsOf(img image.Image) labStats {
	b := img.Bounds()
	var sum, sq [3]float64
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return labStats{}
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, _ := toColorful(img.At(x, y))
			l, a, bb := c.Lab()
			for i, v := range [3]float64{l, a, bb} {
				sum[i] += v
				sq[i] += v * v
			}
		}
	}
	var s labStats
	for i := range sum {
		s.mean[i] = sum[i] / n
		s.std[i] = math.Sqrt(math.Max(sq[i]/n-s.mean[i]*s.mean[i], 0))
	}
	return s
}

// ApplyColorProfile returns a copy of dst whose L*a*b* channel means and
// standard deviations match those of src. Alpha is kept from dst.
func ApplyColorProfile(src, dst image.Image) *image.NRGBA {
	ref := statsOf(src)
	cur := statsOf(dst)

	b := dst.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, alpha := toColorful(dst.At(x, y))
			l, a, bb := c.Lab()
			v := [3]float64{l, a, bb}
			for i := range v {
				scale := 1.0
				if cur.std[i] > 1e-6 {
					scale = ref.std[i] / cur.std[i]
				}
				v[i] = (v[i]-cur.mean[i])*scale + ref.mean[i]
			}
			r, g, bl := colorful.Lab(v[0], v[1], v[2]).Clamped().RGB255()
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBA{R: r, G: g, B: bl, A: alpha})
		}
	}
	return out
}
