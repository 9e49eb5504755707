package image

import (
	"image"
	"image/color"
	"math"
)

// Composite alpha-blends overlay onto base. The overlay alpha is scaled by
// opacity (0-1); pixels outside the overlay keep the base color.
func Composite(base *Raster, overlay *image.RGBA, opacity float64) *image.RGBA {
	result := base.ToRGBA()
	b := overlay.Bounds()
	opacity = clamp(opacity, 0, 1)

	for y := 0; y < base.Height && y < b.Dy(); y++ {
		for x := 0; x < base.Width && x < b.Dx(); x++ {
			src := overlay.RGBAAt(b.Min.X+x, b.Min.Y+y)
			dst := result.RGBAAt(x, y)
			result.SetRGBA(x, y, blend(dst, src, opacity))
		}
	}
	return result
}

func blend(dst, src color.RGBA, opacity float64) color.RGBA {
	alpha := float64(src.A) / 255 * opacity
	mix := func(s, d uint8) uint8 {
		return uint8(math.Round(clamp(float64(s)*alpha+float64(d)*(1-alpha), 0, 255)))
	}
	return color.RGBA{R: mix(src.R, dst.R), G: mix(src.G, dst.G), B: mix(src.B, dst.B), A: 255}
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
