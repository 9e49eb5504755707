// Package colorutil provides shared color utilities for the mineral classifier.
package colorutil

import (
	"image/color"
)

// RGB is an 8-bit sRGB triple in R, G, B order.
type RGB [3]uint8

// RGBA converts c to an opaque color.RGBA.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
}

// Floats returns the channels as float64 values in 0-255.
func (c RGB) Floats() [3]float64 {
	return [3]float64{float64(c[0]), float64(c[1]), float64(c[2])}
}

// FromColor converts any color.Color to 8-bit RGB, dropping alpha.
func FromColor(c color.Color) RGB {
	r, g, b, _ := c.RGBA()
	return RGB{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// Common overlay colors used for the reserved classes.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// Luminance converts RGB (0-255) to an 8-bit gray level using ITU-R 601-2
// weights (L = R*299/1000 + G*587/1000 + B*114/1000) with fixed-point rounding.
func Luminance(c RGB) uint8 {
	return uint8((uint32(c[0])*19595 + uint32(c[1])*38470 + uint32(c[2])*7471 + 0x8000) >> 16)
}

// Mean returns the element-wise mean of colors, truncated to integers.
// An empty slice yields black.
func Mean(colors []RGB) RGB {
	if len(colors) == 0 {
		return RGB{}
	}
	var sum [3]int
	for _, c := range colors {
		sum[0] += int(c[0])
		sum[1] += int(c[1])
		sum[2] += int(c[2])
	}
	n := len(colors)
	return RGB{uint8(sum[0] / n), uint8(sum[1] / n), uint8(sum[2] / n)}
}

// tab10 is the ten-color qualitative palette used for class overlays.
var tab10 = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 255},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 255},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 255},
	{R: 0xd6, G: 0x27, B: 0x28, A: 255},
	{R: 0x94, G: 0x67, B: 0xbd, A: 255},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 255},
	{R: 0xe3, G: 0x77, B: 0xc2, A: 255},
	{R: 0x7f, G: 0x7f, B: 0x7f, A: 255},
	{R: 0xbc, G: 0xbd, B: 0x22, A: 255},
	{R: 0x17, G: 0xbe, B: 0xcf, A: 255},
}

// ClassColor returns the overlay color for class index idx given k mineral
// classes. Index k (carbon) is black and k+1 (other) is magenta; minerals
// cycle through the tab10 palette.
func ClassColor(idx, k int) color.RGBA {
	switch {
	case idx == k:
		return Black
	case idx == k+1:
		return Magenta
	case idx < 0:
		return White
	default:
		return tab10[idx%len(tab10)]
	}
}

// Hex formats c as "#rrggbb".
func Hex(c color.RGBA) string {
	const digits = "0123456789abcdef"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []uint8{c.R, c.G, c.B} {
		b[1+2*i] = digits[v>>4]
		b[2+2*i] = digits[v&0x0f]
	}
	return string(b)
}
