// Package classify assigns every pixel of an image a label and a confidence
// using carbon detection and a trained mineral classifier.
package classify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/carbon"
	"mineral-classifier/internal/classifier"
	"mineral-classifier/internal/image"
)

// DefaultBatchSize is the number of pixels classified between progress
// reports and cancellation checks.
const DefaultBatchSize = 10000

// Confidence assigned to reserved labels.
const (
	CarbonConfidence = 1.0
	OtherConfidence  = 0.1
)

// LabelImage holds one label per pixel: 0..K-1 minerals, K carbon, K+1 other.
type LabelImage struct {
	Width  int
	Height int
	Pix    []int32
}

// At returns the label at (x, y).
func (l *LabelImage) At(x, y int) int { return int(l.Pix[y*l.Width+x]) }

// Counts returns the number of pixels per label for labels 0..K+1.
func (l *LabelImage) Counts(k int) []int {
	counts := make([]int, k+2)
	for _, v := range l.Pix {
		if int(v) < len(counts) && v >= 0 {
			counts[v]++
		}
	}
	return counts
}

// ConfidenceImage holds one confidence in [0, 1] per pixel.
type ConfidenceImage struct {
	Width  int
	Height int
	Pix    []float32
}

// At returns the confidence at (x, y).
func (c *ConfidenceImage) At(x, y int) float64 { return float64(c.Pix[y*c.Width+x]) }

// Progress is reported after each batch.
type Progress struct {
	Batch   int
	Batches int
	Percent float64
}

// Request describes one classification run.
type Request struct {
	Image          *image.Raster
	Classes        int // K
	Trained        *classifier.Trained
	Mask           *carbon.Mask // nil means no carbon
	OtherThreshold float64
	BatchSize      int
	Progress       func(Progress)
}

// Result is the labelled image and its confidence map.
type Result struct {
	Labels     *LabelImage
	Confidence *ConfidenceImage
	Classes    int
	Elapsed    time.Duration
}

// Engine runs classification requests.
type Engine struct {
	log zerolog.Logger
}

// NewEngine returns an engine logging to log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

func (e *Engine) validate(req *Request) error {
	switch {
	case req.Image.Empty():
		return apperr.State("classify.run", "no image loaded")
	case req.Classes <= 0:
		return apperr.State("classify.run", "no mineral classes defined")
	case req.Trained == nil || req.Trained.Model == nil || req.Trained.Scaler == nil:
		return apperr.State("classify.run", "no trained model")
	case len(req.Trained.Scaler.Mean) != 3 || len(req.Trained.Scaler.Scale) != 3:
		return apperr.State("classify.run", "scaler fitted on %d features, pixels have 3", len(req.Trained.Scaler.Mean))
	case req.Trained.Classes != req.Classes:
		return apperr.State("classify.run", "model trained on %d classes, request has %d", req.Trained.Classes, req.Classes)
	case req.Mask != nil && (req.Mask.Width != req.Image.Width || req.Mask.Height != req.Image.Height):
		return apperr.State("classify.run", "carbon mask is %dx%d, image is %dx%d",
			req.Mask.Width, req.Mask.Height, req.Image.Width, req.Image.Height)
	}
	return nil
}

// Run classifies every pixel. Pixels are processed in row-major batches of
// BatchSize; the final batch may be shorter. Carbon pixels take label K and
// confidence 1. Other pixels take the model's prediction when it is
// accepted under OtherThreshold, otherwise label K+1 and confidence 0.1.
//
// ctx is checked between batches; a cancelled run returns ctx.Err() and no
// result.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := e.validate(&req); err != nil {
		return nil, err
	}
	batch := req.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	start := time.Now()
	w, h := req.Image.Width, req.Image.Height
	n := w * h
	k := req.Classes
	batches := (n + batch - 1) / batch

	labels := &LabelImage{Width: w, Height: h, Pix: make([]int32, n)}
	conf := &ConfidenceImage{Width: w, Height: h, Pix: make([]float32, n)}
	pc := req.Trained.NewClassifier()

	e.log.Debug().
		Int("pixels", n).
		Int("batches", batches).
		Int("classes", k).
		Str("model", req.Trained.Kind.String()).
		Msg("classification started")

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			e.log.Info().Int("batch", b).Msg("classification cancelled")
			return nil, err
		}
		lo, hi := b*batch, min((b+1)*batch, n)
		for i := lo; i < hi; i++ {
			if req.Mask != nil && req.Mask.Pix[i] {
				labels.Pix[i] = int32(k)
				conf.Pix[i] = CarbonConfidence
				continue
			}
			class, ok, c := pc.Classify(req.Image.PixelAt(i), req.OtherThreshold)
			if ok {
				labels.Pix[i] = int32(class)
				conf.Pix[i] = float32(c)
			} else {
				labels.Pix[i] = int32(k + 1)
				conf.Pix[i] = OtherConfidence
			}
		}
		if req.Progress != nil {
			req.Progress(Progress{Batch: b + 1, Batches: batches, Percent: 100 * float64(hi) / float64(n)})
		}
	}

	res := &Result{Labels: labels, Confidence: conf, Classes: k, Elapsed: time.Since(start)}
	e.log.Info().
		Int("pixels", n).
		Dur("elapsed", res.Elapsed).
		Msg("classification finished")
	return res, nil
}
