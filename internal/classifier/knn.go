package classifier

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"mineral-classifier/internal/apperr"
)

// KNN is a k-nearest-neighbor classifier with uniform weights.
type KNN struct {
	distanceRule

	K int // requested neighbours; capped at the training set size

	x       *mat.Dense
	y       []int
	classes int
	k       int
}

// NewKNN returns a nearest-neighbor model using k neighbours.
func NewKNN(k int) *KNN {
	return &KNN{K: k}
}

func (m *KNN) Kind() Kind { return NearestNeighbor }

// Fit memorizes the training set.
func (m *KNN) Fit(x *mat.Dense, y []int, classes int) error {
	n, _ := x.Dims()
	if n == 0 || len(y) != n {
		return apperr.Training("knn.fit", "need matching samples and labels, got %d rows and %d labels", n, len(y))
	}
	m.x = mat.DenseCopyOf(x)
	m.y = append([]int(nil), y...)
	m.classes = classes
	m.k = min(m.K, n)
	if m.k < 1 {
		m.k = 1
	}
	return nil
}

type neighbor struct {
	dist  float64
	index int
}

// Predict votes among the k nearest samples. Ties in the vote go to the
// lowest class index; ties in distance keep the earlier sample. The score
// is the mean Euclidean distance to the k neighbours.
func (m *KNN) Predict(p []float64) (int, float64) {
	n, _ := m.x.Dims()
	best := make([]neighbor, 0, m.k)
	for i := 0; i < n; i++ {
		d := math.Sqrt(sqDist(p, m.x.RawRowView(i)))
		if len(best) == m.k && d >= best[len(best)-1].dist {
			continue
		}
		pos := len(best)
		for pos > 0 && best[pos-1].dist > d {
			pos--
		}
		if len(best) < m.k {
			best = append(best, neighbor{})
		}
		copy(best[pos+1:], best[pos:len(best)-1])
		best[pos] = neighbor{dist: d, index: i}
	}

	votes := make([]int, max(m.classes, 1))
	var sum float64
	for _, nb := range best {
		votes[m.y[nb.index]]++
		sum += nb.dist
	}
	class := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[class] {
			class = c
		}
	}
	return class, sum / float64(len(best))
}
