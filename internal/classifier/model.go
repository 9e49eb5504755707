package classifier

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Model is a trained classifier over standardized features.
//
// Predict returns the predicted class index and a model-specific score: a
// distance for the distance family (nearest-neighbor, k-means) and a
// probability for the probability family (support-vector, random-forest).
// Confidence and Accept map that score to a pixel confidence and decide
// whether the prediction clears the "other" threshold.
type Model interface {
	Kind() Kind
	Fit(x *mat.Dense, y []int, classes int) error
	Predict(x []float64) (class int, score float64)
	Confidence(score float64) float64
	Accept(score, otherThreshold float64) bool
}

// distanceRule is embedded by models whose score is a distance.
type distanceRule struct{}

func (distanceRule) Confidence(d float64) float64 { return math.Exp(-d / 50) }

func (distanceRule) Accept(d, otherThreshold float64) bool { return d < otherThreshold }

// probabilityRule is embedded by models whose score is a class probability.
// The threshold is shared with the distance family, so it is mapped onto
// a probability floor of 1 - threshold/200.
type probabilityRule struct{}

func (probabilityRule) Confidence(p float64) float64 { return p }

func (probabilityRule) Accept(p, otherThreshold float64) bool {
	return p > 1-otherThreshold/200
}

// New returns an unfitted model of the given kind.
func New(kind Kind, opts Options) Model {
	switch kind {
	case SupportVector:
		return NewSVM()
	case RandomForest:
		return NewForest(opts.Seed)
	case KMeans:
		return NewKMeans()
	default:
		return NewKNN(3)
	}
}

// argmax returns the index of the largest value; ties go to the lowest index.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
