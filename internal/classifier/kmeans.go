package classifier

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"mineral-classifier/internal/apperr"
)

const (
	kmeansMaxIter = 300
	kmeansTol     = 1e-4
)

// KMeansModel clusters the samples into one cluster per class and maps each
// cluster to exactly one class.
type KMeansModel struct {
	distanceRule

	MaxIter int
	Tol     float64

	centers *mat.Dense
	classOf []int // cluster index -> class index
	iters   int
}

// NewKMeans returns a k-means model with the default iteration limits.
func NewKMeans() *KMeansModel {
	return &KMeansModel{MaxIter: kmeansMaxIter, Tol: kmeansTol}
}

func (m *KMeansModel) Kind() Kind { return KMeans }

// Centers returns the fitted cluster centers in standardized space.
func (m *KMeansModel) Centers() *mat.Dense { return m.centers }

// Mapping returns the class index assigned to each cluster.
func (m *KMeansModel) Mapping() []int { return append([]int(nil), m.classOf...) }

// Iterations returns the number of Lloyd iterations run by Fit.
func (m *KMeansModel) Iterations() int { return m.iters }

// Fit runs Lloyd's algorithm seeded at the class means, then assigns
// clusters to classes one-to-one. Labels are only used for seeding and for
// the final mapping.
func (m *KMeansModel) Fit(x *mat.Dense, y []int, classes int) error {
	if classes <= 0 {
		return apperr.Training("kmeans.fit", "cluster count is zero")
	}
	n, dims := x.Dims()
	if n == 0 || len(y) != n {
		return apperr.Training("kmeans.fit", "need matching samples and labels, got %d rows and %d labels", n, len(y))
	}

	means := classMeans(x, y, classes)
	centers := mat.DenseCopyOf(means)
	assign := make([]int, n)
	sums := mat.NewDense(classes, dims, nil)
	counts := make([]int, classes)

	m.iters = 0
	for m.iters < m.MaxIter {
		m.iters++
		for i := 0; i < n; i++ {
			assign[i], _ = nearestRow(centers, x.RawRowView(i))
		}

		sums.Zero()
		clear(counts)
		for i := 0; i < n; i++ {
			row := sums.RawRowView(assign[i])
			for j, v := range x.RawRowView(i) {
				row[j] += v
			}
			counts[assign[i]]++
		}

		var shift float64
		for c := 0; c < classes; c++ {
			if counts[c] == 0 {
				continue // empty cluster keeps its center
			}
			row := sums.RawRowView(c)
			for j := range row {
				row[j] /= float64(counts[c])
			}
			shift += sqDist(row, centers.RawRowView(c))
			centers.SetRow(c, row)
		}
		if shift <= m.Tol {
			break
		}
	}

	m.centers = centers
	m.classOf = matchClusters(centers, means)
	return nil
}

// Predict returns the class mapped to the nearest center and the distance
// to that center.
func (m *KMeansModel) Predict(p []float64) (int, float64) {
	c, d2 := nearestRow(m.centers, p)
	return m.classOf[c], math.Sqrt(d2)
}

func nearestRow(rows *mat.Dense, p []float64) (int, float64) {
	r, _ := rows.Dims()
	best, bestD := 0, math.Inf(1)
	for i := 0; i < r; i++ {
		if d := sqDist(p, rows.RawRowView(i)); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

func classMeans(x *mat.Dense, y []int, classes int) *mat.Dense {
	_, dims := x.Dims()
	means := mat.NewDense(classes, dims, nil)
	counts := make([]int, classes)
	for i, c := range y {
		row := means.RawRowView(c)
		for j, v := range x.RawRowView(i) {
			row[j] += v
		}
		counts[c]++
	}
	for c := 0; c < classes; c++ {
		if counts[c] == 0 {
			continue
		}
		row := means.RawRowView(c)
		for j := range row {
			row[j] /= float64(counts[c])
		}
	}
	return means
}

// matchClusters pairs clusters with class means greedily by ascending
// distance so every cluster gets a distinct class.
func matchClusters(centers, means *mat.Dense) []int {
	k, _ := centers.Dims()
	type pair struct {
		d              float64
		cluster, class int
	}
	pairs := make([]pair, 0, k*k)
	for c := 0; c < k; c++ {
		for l := 0; l < k; l++ {
			pairs = append(pairs, pair{sqDist(centers.RawRowView(c), means.RawRowView(l)), c, l})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].d < pairs[j].d })

	classOf := make([]int, k)
	for i := range classOf {
		classOf[i] = -1
	}
	taken := make([]bool, k)
	for _, p := range pairs {
		if classOf[p.cluster] >= 0 || taken[p.class] {
			continue
		}
		classOf[p.cluster] = p.class
		taken[p.class] = true
	}
	return classOf
}
