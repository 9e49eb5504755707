package export

import (
	"fmt"
	stdimage "image"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/tiff"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"mineral-classifier/internal/classify"
	"mineral-classifier/internal/image"
	"mineral-classifier/pkg/colorutil"
)

// MaxHeatmapSide bounds the confidence grid on its long side.
const MaxHeatmapSide = 512

// LabelGray converts labels to an 8-bit gray image with values verbatim.
func LabelGray(l *classify.LabelImage) (*stdimage.Gray, error) {
	g := stdimage.NewGray(stdimage.Rect(0, 0, l.Width, l.Height))
	for i, v := range l.Pix {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("label %d at pixel %d does not fit in 8 bits", v, i)
		}
		g.Pix[(i/l.Width)*g.Stride+i%l.Width] = uint8(v)
	}
	return g, nil
}

// WriteLabelTIFF writes the label image as an uncompressed 8-bit TIFF.
func WriteLabelTIFF(w io.Writer, l *classify.LabelImage) error {
	g, err := LabelGray(l)
	if err != nil {
		return err
	}
	return tiff.Encode(w, g, &tiff.Options{Compression: tiff.Uncompressed})
}

// ColorLabels paints each label with its class color.
func ColorLabels(l *classify.LabelImage, k int) *stdimage.RGBA {
	out := stdimage.NewRGBA(stdimage.Rect(0, 0, l.Width, l.Height))
	for i, v := range l.Pix {
		out.SetRGBA(i%l.Width, i/l.Width, colorutil.ClassColor(int(v), k))
	}
	return out
}

// WriteOverlayPNG writes the class colors blended over src. A nil src
// writes the class colors alone.
func WriteOverlayPNG(w io.Writer, src *image.Raster, l *classify.LabelImage, k int) error {
	colors := ColorLabels(l, k)
	if src == nil || src.Width != l.Width || src.Height != l.Height {
		return png.Encode(w, colors)
	}
	return png.Encode(w, image.Composite(src, colors, OverlayOpacity))
}

// confidenceGrid adapts a block-averaged confidence image to plotter.GridXYZ.
// Row 0 of the grid is the bottom of the image.
type confidenceGrid struct {
	cols, rows int
	z          []float64
}

func newConfidenceGrid(c *classify.ConfidenceImage, maxSide int) confidenceGrid {
	step := int(math.Ceil(float64(max(c.Width, c.Height)) / float64(maxSide)))
	step = max(step, 1)
	g := confidenceGrid{
		cols: (c.Width + step - 1) / step,
		rows: (c.Height + step - 1) / step,
	}
	g.z = make([]float64, g.cols*g.rows)
	n := make([]int, len(g.z))
	for y := 0; y < c.Height; y++ {
		r := g.rows - 1 - y/step
		for x := 0; x < c.Width; x++ {
			i := r*g.cols + x/step
			g.z[i] += float64(c.Pix[y*c.Width+x])
			n[i]++
		}
	}
	for i := range g.z {
		if n[i] > 0 {
			g.z[i] /= float64(n[i])
		}
	}
	return g
}

func (g confidenceGrid) Dims() (int, int) { return g.cols, g.rows }

func (g confidenceGrid) Z(c, r int) float64 { return g.z[r*g.cols+c] }

func (g confidenceGrid) X(c int) float64 { return float64(c) }

func (g confidenceGrid) Y(r int) float64 { return float64(r) }

// WriteConfidencePNG renders the confidence map as a PNG heatmap to w.
func WriteConfidencePNG(w io.Writer, c *classify.ConfidenceImage) error {
	if c == nil || c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("empty confidence image")
	}
	grid := newConfidenceGrid(c, MaxHeatmapSide)

	p := plot.New()
	p.Title.Text = "Classification Confidence"
	p.HideAxes()

	h := plotter.NewHeatMap(grid, palette.Heat(256, 1))
	h.Min, h.Max = 0, 1
	p.Add(h)

	width := 8 * vg.Inch
	height := width * vg.Length(grid.rows) / vg.Length(grid.cols)
	wt, err := p.WriterTo(width, height+0.5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render heatmap: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
