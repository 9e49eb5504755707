package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes features to zero mean and unit variance using
// statistics captured at fit time.
type Scaler struct {
	Mean  []float64
	Scale []float64 // population standard deviation, 1 where it is zero
}

// FitScaler computes per-column mean and population standard deviation.
func FitScaler(x mat.Matrix) *Scaler {
	rows, cols := x.Dims()
	s := &Scaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

// Transform standardizes src into dst. Both must have one entry per feature.
func (s *Scaler) Transform(dst, src []float64) {
	for j := range s.Mean {
		dst[j] = (src[j] - s.Mean[j]) / s.Scale[j]
	}
}

// TransformMatrix returns a standardized copy of x.
func (s *Scaler) TransformMatrix(x mat.Matrix) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != len(s.Mean) {
		return nil, fmt.Errorf("scaler fitted on %d features, got %d", len(s.Mean), cols)
	}
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return out, nil
}
