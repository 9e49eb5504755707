package image

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ToMat converts the raster to a gocv.Mat in BGR format.
// The caller must Close the returned Mat.
func (r *Raster) ToMat() (gocv.Mat, error) {
	if r.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty raster")
	}

	bgr := make([]byte, len(r.Pix))
	for i := 0; i < len(r.Pix); i += 3 {
		bgr[i] = r.Pix[i+2]
		bgr[i+1] = r.Pix[i+1]
		bgr[i+2] = r.Pix[i]
	}

	mat, err := gocv.NewMatFromBytes(r.Height, r.Width, gocv.MatTypeCV8UC3, bgr)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("create mat: %w", err)
	}
	return mat, nil
}
