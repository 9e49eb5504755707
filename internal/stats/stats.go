// Package stats computes area percentages with 95% binomial confidence
// intervals from a label image.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/classify"
)

// Names of the reserved classes.
const (
	CarbonName = "Carbon (Graphite)"
	OtherName  = "Other"
)

// z is the two-sided 95% normal quantile.
var z = distuv.UnitNormal.Quantile(0.975)

// ClassStatistic is the area share of one class. Percentages are 0-100.
type ClassStatistic struct {
	Name       string  `json:"name"`
	PixelCount int     `json:"pixel_count"`
	Percentage float64 `json:"percentage"`
	CILower    float64 `json:"ci_lower"`
	CIUpper    float64 `json:"ci_upper"`
}

// BinomialInterval returns the normal-approximation 95% interval for a
// proportion p observed over n trials, clamped to [0, 1]. A zero
// proportion yields [0, 0].
func BinomialInterval(p float64, n int) (lo, hi float64) {
	if n <= 0 || p <= 0 {
		return 0, 0
	}
	margin := z * math.Sqrt(p*(1-p)/float64(n))
	return math.Max(0, p-margin), math.Min(1, p+margin)
}

// Compute returns one statistic per mineral in index order, followed by
// carbon and other when they occur.
func Compute(labels *classify.LabelImage, names []string) ([]ClassStatistic, error) {
	if labels == nil || len(labels.Pix) == 0 {
		return nil, apperr.State("stats.compute", "no classification result")
	}
	k := len(names)
	counts := labels.Counts(k)
	total := len(labels.Pix)

	stat := func(name string, count int) ClassStatistic {
		p := float64(count) / float64(total)
		lo, hi := BinomialInterval(p, total)
		return ClassStatistic{
			Name:       name,
			PixelCount: count,
			Percentage: 100 * p,
			CILower:    100 * lo,
			CIUpper:    100 * hi,
		}
	}

	out := make([]ClassStatistic, 0, k+2)
	for i, name := range names {
		out = append(out, stat(name, counts[i]))
	}
	if counts[k] > 0 {
		out = append(out, stat(CarbonName, counts[k]))
	}
	if counts[k+1] > 0 {
		out = append(out, stat(OtherName, counts[k+1]))
	}
	return out, nil
}

// Total returns the sum of pixel counts.
func Total(stats []ClassStatistic) int {
	n := 0
	for _, s := range stats {
		n += s.PixelCount
	}
	return n
}
