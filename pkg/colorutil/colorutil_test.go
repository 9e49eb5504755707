package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuminance(t *testing.T) {
	assert.Equal(t, uint8(0), Luminance(RGB{0, 0, 0}))
	assert.Equal(t, uint8(255), Luminance(RGB{255, 255, 255}))
	assert.Equal(t, uint8(200), Luminance(RGB{200, 200, 200}))
	// 0.299*255 = 76.245
	assert.Equal(t, uint8(76), Luminance(RGB{255, 0, 0}))
}

func TestMeanTruncates(t *testing.T) {
	got := Mean([]RGB{{10, 20, 31}, {11, 20, 30}})
	assert.Equal(t, RGB{10, 20, 30}, got)
	assert.Equal(t, RGB{}, Mean(nil))
}

func TestClassColorReserved(t *testing.T) {
	assert.Equal(t, Black, ClassColor(3, 3))
	assert.Equal(t, Magenta, ClassColor(4, 3))
	assert.Equal(t, ClassColor(0, 3), ClassColor(10, 12))
}

func TestFromColorAndHex(t *testing.T) {
	c := FromColor(color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	assert.Equal(t, RGB{1, 2, 3}, c)
	assert.Equal(t, "#010203", Hex(c.RGBA()))
}
