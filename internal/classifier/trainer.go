package classifier

import (
	"gonum.org/v1/gonum/mat"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/mineral"
	"mineral-classifier/pkg/colorutil"
)

// Options tunes training.
type Options struct {
	Seed uint64 // random forest bootstrap and feature sampling
}

// DefaultOptions returns the default training options.
func DefaultOptions() Options {
	return Options{Seed: forestSeed}
}

// Trained bundles a fitted model with the scaler it was trained behind.
type Trained struct {
	Kind    Kind
	Scaler  *Scaler
	Model   Model
	Classes int
	Samples int
}

// Features builds the feature matrix (one RGB row per sample) and the label
// vector, in registry order.
func Features(reg *mineral.Registry) (*mat.Dense, []int) {
	n := reg.SampleCount()
	if n == 0 {
		return nil, nil
	}
	x := mat.NewDense(n, 3, nil)
	y := make([]int, 0, n)
	row := 0
	for idx, c := range reg.Classes() {
		for _, s := range c.Samples {
			f := s.Color.Floats()
			x.SetRow(row, f[:])
			y = append(y, idx)
			row++
		}
	}
	return x, y
}

// Train fits a scaler on the registry samples and a model of the given kind
// on the standardized features.
func Train(reg *mineral.Registry, kind Kind, opts Options) (*Trained, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, apperr.Training("classifier.train", "no mineral classes defined")
	}
	for _, c := range reg.Classes() {
		if len(c.Samples) == 0 {
			return nil, apperr.Training("classifier.train", "mineral %q has no samples", c.Name)
		}
	}

	x, y := Features(reg)
	scaler := FitScaler(x)
	xs, err := scaler.TransformMatrix(x)
	if err != nil {
		return nil, apperr.Training("classifier.train", "%v", err)
	}

	model := New(kind, opts)
	if err := model.Fit(xs, y, reg.Len()); err != nil {
		return nil, err
	}
	return &Trained{
		Kind:    kind,
		Scaler:  scaler,
		Model:   model,
		Classes: reg.Len(),
		Samples: len(y),
	}, nil
}

// Classifier scores single pixels against a Trained model. It keeps scratch
// buffers and is not safe for concurrent use.
type Classifier struct {
	t      *Trained
	raw    []float64
	scaled []float64
}

// NewClassifier returns a per-pixel scorer for t.
func (t *Trained) NewClassifier() *Classifier {
	return &Classifier{t: t, raw: make([]float64, 3), scaled: make([]float64, 3)}
}

// Classify standardizes c and returns the predicted class, whether it clears
// otherThreshold, and its confidence.
func (c *Classifier) Classify(px colorutil.RGB, otherThreshold float64) (class int, accepted bool, confidence float64) {
	f := px.Floats()
	copy(c.raw, f[:])
	c.t.Scaler.Transform(c.scaled, c.raw)
	class, score := c.t.Model.Predict(c.scaled)
	return class, c.t.Model.Accept(score, otherThreshold), c.t.Model.Confidence(score)
}
