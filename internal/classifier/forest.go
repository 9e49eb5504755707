package classifier

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mineral-classifier/internal/apperr"
)

const (
	forestTrees = 100
	forestSeed  = 42
)

// Forest is a bagged ensemble of Gini CART trees grown to purity.
type Forest struct {
	probabilityRule

	Trees       int
	MaxFeatures int // 0 selects max(1, floor(sqrt(features)))
	Seed        uint64

	classes int
	trees   []tree
}

// NewForest returns a random forest with 100 trees and the given seed.
func NewForest(seed uint64) *Forest {
	return &Forest{Trees: forestTrees, Seed: seed}
}

func (m *Forest) Kind() Kind { return RandomForest }

type treeNode struct {
	feature   int // -1 for a leaf
	threshold float64
	left      int
	right     int
	dist      []float64
}

type tree []treeNode

func (t tree) leaf(p []float64) []float64 {
	n := 0
	for t[n].feature >= 0 {
		if p[t[n].feature] <= t[n].threshold {
			n = t[n].left
		} else {
			n = t[n].right
		}
	}
	return t[n].dist
}

// Fit grows every tree on a bootstrap sample drawn from a PCG source
// seeded with Seed, so equal seeds give equal forests.
func (m *Forest) Fit(x *mat.Dense, y []int, classes int) error {
	n, dims := x.Dims()
	if n == 0 || len(y) != n {
		return apperr.Training("forest.fit", "need matching samples and labels, got %d rows and %d labels", n, len(y))
	}
	if m.Trees < 1 {
		m.Trees = forestTrees
	}
	maxFeatures := m.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(dims))))
	}

	rng := rand.New(rand.NewPCG(m.Seed, m.Seed^0x9e3779b97f4a7c15))
	g := &grower{x: x, y: y, classes: classes, dims: dims, maxFeatures: maxFeatures, rng: rng}

	m.classes = classes
	m.trees = make([]tree, m.Trees)
	for i := range m.trees {
		idx := make([]int, n)
		for j := range idx {
			idx[j] = rng.IntN(n)
		}
		g.nodes = nil
		g.grow(idx)
		m.trees[i] = g.nodes
	}
	return nil
}

// Probabilities averages the leaf class distributions of all trees.
func (m *Forest) Probabilities(p []float64) []float64 {
	prob := make([]float64, max(m.classes, 1))
	for _, t := range m.trees {
		floats.Add(prob, t.leaf(p))
	}
	floats.Scale(1/float64(len(m.trees)), prob)
	return prob
}

// Predict returns the most probable class and its probability.
func (m *Forest) Predict(p []float64) (int, float64) {
	prob := m.Probabilities(p)
	c := argmax(prob)
	return c, prob[c]
}

type grower struct {
	x           *mat.Dense
	y           []int
	classes     int
	dims        int
	maxFeatures int
	rng         *rand.Rand
	nodes       tree
}

func (g *grower) distribution(idx []int) ([]float64, bool) {
	dist := make([]float64, max(g.classes, 1))
	for _, i := range idx {
		dist[g.y[i]]++
	}
	pure := false
	for _, c := range dist {
		if c == float64(len(idx)) {
			pure = true
		}
	}
	floats.Scale(1/float64(len(idx)), dist)
	return dist, pure
}

// grow appends the subtree for idx and returns its node index.
func (g *grower) grow(idx []int) int {
	id := len(g.nodes)
	dist, pure := g.distribution(idx)
	g.nodes = append(g.nodes, treeNode{feature: -1, dist: dist})
	if pure || len(idx) < 2 {
		return id
	}

	feature, threshold, ok := g.bestSplit(idx)
	if !ok {
		return id
	}
	var left, right []int
	for _, i := range idx {
		if g.x.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left)
	r := g.grow(right)
	g.nodes[id] = treeNode{feature: feature, threshold: threshold, left: l, right: r}
	return id
}

// bestSplit examines features in random order. At least maxFeatures are
// examined, and the search continues past that until a usable split exists.
func (g *grower) bestSplit(idx []int) (int, float64, bool) {
	bestFeature, bestThreshold := -1, 0.0
	bestScore := math.Inf(1)

	sorted := append([]int(nil), idx...)
	leftCounts := make([]float64, max(g.classes, 1))
	rightCounts := make([]float64, max(g.classes, 1))
	for visited, f := range g.rng.Perm(g.dims) {
		if visited >= g.maxFeatures && bestFeature >= 0 {
			break
		}
		sort.SliceStable(sorted, func(a, b int) bool {
			return g.x.At(sorted[a], f) < g.x.At(sorted[b], f)
		})

		clear(leftCounts)
		clear(rightCounts)
		for _, i := range sorted {
			rightCounts[g.y[i]]++
		}
		n := float64(len(sorted))
		for s := 0; s < len(sorted)-1; s++ {
			c := g.y[sorted[s]]
			leftCounts[c]++
			rightCounts[c]--
			v, next := g.x.At(sorted[s], f), g.x.At(sorted[s+1], f)
			if v == next {
				continue
			}
			nl := float64(s + 1)
			nr := n - nl
			score := nl*gini(leftCounts, nl) + nr*gini(rightCounts, nr)
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = v + (next-v)/2
				if bestThreshold == next {
					bestThreshold = v
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []float64, n float64) float64 {
	var s float64
	for _, c := range counts {
		p := c / n
		s += p * p
	}
	return 1 - s
}
