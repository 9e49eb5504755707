// Package image provides image loading and the packed RGB raster the
// classifier operates on.
package image

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/pkg/colorutil"

	_ "golang.org/x/image/tiff"
)

// Raster is an H×W×3 8-bit RGB image stored row-major.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8 // len = Width*Height*3
}

// NewRaster allocates a black raster.
func NewRaster(width, height int) *Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Raster{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// Filled returns a raster with every pixel set to c.
func Filled(width, height int, c colorutil.RGB) *Raster {
	r := NewRaster(width, height)
	for i := 0; i < len(r.Pix); i += 3 {
		r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c[0], c[1], c[2]
	}
	return r
}

// FromImage converts any decoded image to a Raster.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < r.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < r.Width; x++ {
				o := (y*r.Width + x) * 3
				r.Pix[o], r.Pix[o+1], r.Pix[o+2] = row[x*4], row[x*4+1], row[x*4+2]
			}
		}
	case *image.Gray:
		for y := 0; y < r.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < r.Width; x++ {
				o := (y*r.Width + x) * 3
				r.Pix[o], r.Pix[o+1], r.Pix[o+2] = row[x], row[x], row[x]
			}
		}
	default:
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				c := colorutil.FromColor(img.At(b.Min.X+x, b.Min.Y+y))
				o := (y*r.Width + x) * 3
				r.Pix[o], r.Pix[o+1], r.Pix[o+2] = c[0], c[1], c[2]
			}
		}
	}
	return r
}

// Len returns the pixel count.
func (r *Raster) Len() int { return r.Width * r.Height }

// Empty reports whether the raster has no pixels.
func (r *Raster) Empty() bool { return r == nil || r.Width == 0 || r.Height == 0 }

// In reports whether (x, y) lies inside the raster.
func (r *Raster) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.Width && y < r.Height
}

// At returns the color at (x, y). Coordinates must be in bounds.
func (r *Raster) At(x, y int) colorutil.RGB {
	return r.PixelAt(y*r.Width + x)
}

// Set writes c at (x, y).
func (r *Raster) Set(x, y int, c colorutil.RGB) {
	o := (y*r.Width + x) * 3
	r.Pix[o], r.Pix[o+1], r.Pix[o+2] = c[0], c[1], c[2]
}

// PixelAt returns the color of the i-th pixel in row-major order.
func (r *Raster) PixelAt(i int) colorutil.RGB {
	o := i * 3
	return colorutil.RGB{r.Pix[o], r.Pix[o+1], r.Pix[o+2]}
}

// ToRGBA converts the raster to an *image.RGBA for encoding.
func (r *Raster) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i := 0; i < r.Len(); i++ {
		c := r.PixelAt(i)
		out.SetRGBA(i%r.Width, i/r.Width, color.RGBA{R: c[0], G: c[1], B: c[2], A: 255})
	}
	return out
}

// Source is a loaded image file.
type Source struct {
	Path   string
	Format string  // decoder name reported by image.Decode
	Raster *Raster
	DPI    float64 // from TIFF resolution tags, 0 if unknown
	Pages  int     // TIFF directory count; only the first page is decoded
}

// PixelSize returns the side of one pixel in micrometres, or 0 when the
// resolution is unknown.
func (s *Source) PixelSize() float64 {
	if s.DPI <= 0 {
		return 0
	}
	return 25400 / s.DPI
}

// Load decodes the image at path.
func Load(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperr.IO("image.load", err, "open %s", path)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, apperr.IO("image.load", err, "decode %s", path)
	}

	src := &Source{
		Path:   path,
		Format: format,
		Raster: FromImage(img),
		Pages:  1,
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tiff" || ext == ".tif" {
		if info, err := readTIFFInfo(path); err == nil {
			src.DPI = info.dpi
			src.Pages = info.pages
		}
	}

	return src, nil
}

type tiffInfo struct {
	dpi   float64
	pages int
}

// TIFF tag numbers and field types used by readTIFFInfo.
const (
	tagXResolution    = 282
	tagYResolution    = 283
	tagResolutionUnit = 296

	typeShort    = 3
	typeRational = 5

	unitCentimeter = 3
)

func readTIFFInfo(path string) (tiffInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return tiffInfo{}, err
	}
	defer file.Close()
	return parseTIFFInfo(file)
}

// parseTIFFInfo walks the IFD chain to count pages and reads the
// resolution tags of the first directory.
func parseTIFFInfo(r io.ReaderAt) (tiffInfo, error) {
	var info tiffInfo

	var header [8]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return info, fmt.Errorf("read header: %w", err)
	}
	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return info, fmt.Errorf("not a TIFF file")
	}

	offset := int64(order.Uint32(header[4:]))
	seen := make(map[int64]bool)
	for offset != 0 && !seen[offset] {
		seen[offset] = true

		var count [2]byte
		if _, err := r.ReadAt(count[:], offset); err != nil {
			return info, fmt.Errorf("read directory at %d: %w", offset, err)
		}
		n := int64(order.Uint16(count[:]))
		dir := make([]byte, 12*n+4)
		if _, err := r.ReadAt(dir, offset+2); err != nil {
			return info, fmt.Errorf("read directory at %d: %w", offset, err)
		}

		if info.pages == 0 {
			dpi, err := resolution(r, order, dir[:12*n])
			if err != nil {
				return info, err
			}
			info.dpi = dpi
		}
		info.pages++
		offset = int64(order.Uint32(dir[12*n:]))
	}

	if info.pages == 0 {
		return info, fmt.Errorf("no image directories")
	}
	return info, nil
}

// resolution returns dots per inch from directory entries, 0 if absent.
func resolution(r io.ReaderAt, order binary.ByteOrder, entries []byte) (float64, error) {
	var x, y float64
	unit := uint16(2)

	for i := 0; i+12 <= len(entries); i += 12 {
		e := entries[i : i+12]
		tag, typ := order.Uint16(e[0:]), order.Uint16(e[2:])
		switch {
		case (tag == tagXResolution || tag == tagYResolution) && typ == typeRational:
			v, err := rational(r, order, int64(order.Uint32(e[8:])))
			if err != nil {
				return 0, err
			}
			if tag == tagXResolution {
				x = v
			} else {
				y = v
			}
		case tag == tagResolutionUnit && typ == typeShort:
			unit = order.Uint16(e[8:])
		}
	}

	dpi := x
	if dpi == 0 {
		dpi = y
	}
	if unit == unitCentimeter {
		dpi *= 2.54
	}
	return dpi, nil
}

func rational(r io.ReaderAt, order binary.ByteOrder, offset int64) (float64, error) {
	var b [8]byte
	if _, err := r.ReadAt(b[:], offset); err != nil {
		return 0, fmt.Errorf("read rational at %d: %w", offset, err)
	}
	num, den := order.Uint32(b[:4]), order.Uint32(b[4:])
	if den == 0 {
		return 0, nil
	}
	return float64(num) / float64(den), nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// ListImages returns the supported image files directly inside dir, sorted
// by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.IO("image.list", err, "read directory %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedFormat(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
