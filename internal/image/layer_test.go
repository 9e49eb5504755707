package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/pkg/colorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func writeTestImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	if filepath.Ext(path) == ".png" {
		require.NoError(t, png.Encode(f, img))
		return
	}
	require.NoError(t, tiff.Encode(f, img, nil))
}

func checkerboard() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(2, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	return img
}

func TestLoadPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slide.png")
	writeTestImage(t, path, checkerboard())

	src, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "png", src.Format)
	assert.Equal(t, 3, src.Raster.Width)
	assert.Equal(t, 2, src.Raster.Height)
	assert.Equal(t, colorutil.RGB{10, 20, 30}, src.Raster.At(0, 0))
	assert.Equal(t, colorutil.RGB{200, 100, 50}, src.Raster.At(2, 1))
	assert.Equal(t, 1, src.Pages)
}

func TestLoadTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slide.tif")
	writeTestImage(t, path, checkerboard())

	src, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tiff", src.Format)
	assert.Equal(t, colorutil.RGB{200, 100, 50}, src.Raster.At(2, 1))
	assert.Equal(t, 1, src.Pages)
	// x/image/tiff always writes 72 dpi.
	assert.Equal(t, 72.0, src.DPI)
	assert.InDelta(t, 352.78, src.PixelSize(), 0.01)
}

// tiffWithTwoPages builds a little-endian TIFF whose first directory holds
// XResolution 300/1 in centimetres and links to an empty second directory.
func tiffWithTwoPages() []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	b.WriteString("II")
	binary.Write(&b, le, uint16(42))
	binary.Write(&b, le, uint32(8))

	// first directory at 8: 2 entries, next directory at 46
	binary.Write(&b, le, uint16(2))
	binary.Write(&b, le, [6]uint16{tagXResolution, typeRational, 1, 0, 38, 0})
	binary.Write(&b, le, [6]uint16{tagResolutionUnit, typeShort, 1, 0, unitCentimeter, 0})
	binary.Write(&b, le, uint32(46))
	// rational at 38
	binary.Write(&b, le, [2]uint32{300, 1})
	// second directory at 46
	binary.Write(&b, le, uint16(0))
	binary.Write(&b, le, uint32(0))
	return b.Bytes()
}

func TestParseTIFFInfo(t *testing.T) {
	info, err := parseTIFFInfo(bytes.NewReader(tiffWithTwoPages()))
	require.NoError(t, err)
	assert.Equal(t, 2, info.pages)
	assert.InDelta(t, 762.0, info.dpi, 1e-9)
}

func TestParseTIFFInfoErrors(t *testing.T) {
	_, err := parseTIFFInfo(bytes.NewReader([]byte("XX\x2a\x00\x08\x00\x00\x00")))
	assert.Error(t, err, "bad byte order")

	data := tiffWithTwoPages()
	_, err = parseTIFFInfo(bytes.NewReader(data[:40]))
	assert.Error(t, err, "rational past the end")

	// A directory that links to itself is read once.
	loop := tiffWithTwoPages()[:46]
	binary.LittleEndian.PutUint32(loop[34:], 8)
	info, err := parseTIFFInfo(bytes.NewReader(loop))
	require.NoError(t, err)
	assert.Equal(t, 1, info.pages)
}

func TestLoadMissingFileIsIOError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrIO))
}

func TestLoadGarbageIsIOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := Load(path)
	assert.True(t, errors.Is(err, apperr.ErrIO))
}

func TestRasterAccessors(t *testing.T) {
	r := Filled(2, 2, colorutil.RGB{1, 2, 3})
	assert.Equal(t, 4, r.Len())
	assert.False(t, r.Empty())
	assert.True(t, r.In(1, 1))
	assert.False(t, r.In(2, 0))

	r.Set(1, 0, colorutil.RGB{9, 9, 9})
	assert.Equal(t, colorutil.RGB{9, 9, 9}, r.PixelAt(1))
	assert.True(t, NewRaster(0, 5).Empty())
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.tif", "a.PNG", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	paths, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.PNG"), filepath.Join(dir, "b.tif")}, paths)
}

func TestCompositeBlendsByOpacity(t *testing.T) {
	base := Filled(1, 1, colorutil.RGB{0, 0, 0})
	overlay := image.NewRGBA(image.Rect(0, 0, 1, 1))
	overlay.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	out := Composite(base, overlay, 0.5)
	assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, out.RGBAAt(0, 0))

	full := Composite(base, overlay, 1)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, full.RGBAAt(0, 0))

	overlay.SetRGBA(0, 0, color.RGBA{R: 255, A: 0})
	clear := Composite(base, overlay, 1)
	assert.Equal(t, color.RGBA{A: 255}, clear.RGBAAt(0, 0), "transparent overlay keeps the base")
}
