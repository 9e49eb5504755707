// Package carbon detects small dark regions (graphite/carbon) in a
// thin-section image.
//
// The image is converted to gray, thresholded below Params.Threshold and
// split into 4-connected components. Components smaller than
// Params.MinBlobSize are marked as carbon.
package carbon

import (
	"fmt"

	"gocv.io/x/gocv"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/image"
)

// Params controls detection.
type Params struct {
	Threshold   int // gray levels strictly below this are dark (0-255)
	MinBlobSize int // dark components with fewer pixels are carbon
}

// DefaultParams returns the default detection parameters.
func DefaultParams() Params {
	return Params{Threshold: 30, MinBlobSize: 100}
}

// WithThreshold returns a copy of p with the gray threshold changed.
func (p Params) WithThreshold(t int) Params {
	p.Threshold = t
	return p
}

// WithMinBlobSize returns a copy of p with the blob size limit changed.
func (p Params) WithMinBlobSize(n int) Params {
	p.MinBlobSize = n
	return p
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if p.Threshold < 0 || p.Threshold > 255 {
		return apperr.Validation("carbon.params", "threshold %d outside 0-255", p.Threshold)
	}
	if p.MinBlobSize < 1 {
		return apperr.Validation("carbon.params", "min blob size %d must be at least 1", p.MinBlobSize)
	}
	return nil
}

// Mask is a row-major boolean carbon mask.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// NewMask allocates an all-false mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At reports whether pixel (x, y) is carbon.
func (m *Mask) At(x, y int) bool { return m.Pix[y*m.Width+x] }

// Count returns the number of carbon pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Component is one connected dark region.
type Component struct {
	Label  int
	Area   int
	Carbon bool
}

// Result is the outcome of a detection.
type Result struct {
	Mask       *Mask
	Components []Component
}

// CarbonComponents returns the number of components marked as carbon.
func (r *Result) CarbonComponents() int {
	n := 0
	for _, c := range r.Components {
		if c.Carbon {
			n++
		}
	}
	return n
}

// Detect runs carbon detection on r.
func Detect(r *image.Raster, p Params) (*Result, error) {
	if r.Empty() {
		return nil, apperr.Validation("carbon.detect", "image has zero size")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	src, err := r.ToMat()
	if err != nil {
		return nil, apperr.Validation("carbon.detect", "%v", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	// BinaryInv sets pixels <= thresh to 255, so thresh = Threshold-1 selects
	// gray < Threshold. Threshold 0 selects nothing.
	dark := gocv.NewMat()
	defer dark.Close()
	gocv.Threshold(gray, &dark, float32(p.Threshold-1), 255, gocv.ThresholdBinaryInv)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStatsWithParams(dark, &labels, &stats, &centroids, 4, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)
	if n < 1 {
		return nil, fmt.Errorf("connected components returned %d labels", n)
	}

	res := &Result{Mask: NewMask(r.Width, r.Height)}
	carbon := make([]bool, n)
	for label := 1; label < n; label++ {
		area := int(stats.GetIntAt(label, int(gocv.CC_STAT_AREA)))
		c := Component{Label: label, Area: area, Carbon: area < p.MinBlobSize}
		carbon[label] = c.Carbon
		res.Components = append(res.Components, c)
	}

	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if l := labels.GetIntAt(y, x); l > 0 && carbon[l] {
				res.Mask.Pix[y*r.Width+x] = true
			}
		}
	}
	return res, nil
}
