package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/carbon"
	"mineral-classifier/internal/classifier"
	"mineral-classifier/internal/image"
	"mineral-classifier/internal/mineral"
	"mineral-classifier/pkg/colorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedModel predicts class 0 at a fixed distance.
type fixedModel struct {
	*classifier.KNN
	dist float64
}

func (m fixedModel) Predict([]float64) (int, float64) { return 0, m.dist }

func fixedTrained(dist float64) *classifier.Trained {
	return &classifier.Trained{
		Kind:    classifier.NearestNeighbor,
		Scaler:  &classifier.Scaler{Mean: []float64{0, 0, 0}, Scale: []float64{1, 1, 1}},
		Model:   fixedModel{KNN: classifier.NewKNN(3), dist: dist},
		Classes: 1,
	}
}

func train(t *testing.T, kind classifier.Kind, classes map[string]colorutil.RGB, order ...string) *classifier.Trained {
	t.Helper()
	reg := mineral.NewRegistry()
	for _, name := range order {
		c := classes[name]
		_, err := reg.AddClass(name, []mineral.Sample{{Color: c}, {Color: c}, {Color: c}})
		require.NoError(t, err)
	}
	tr, err := classifier.Train(reg, kind, classifier.DefaultOptions())
	require.NoError(t, err)
	return tr
}

func TestUniformImageMatchingSingleClass(t *testing.T) {
	gray := colorutil.RGB{200, 200, 200}
	tr := train(t, classifier.NearestNeighbor, map[string]colorutil.RGB{"Quartz": gray}, "Quartz")

	res, err := NewEngine(zerolog.Nop()).Run(context.Background(), Request{
		Image:          image.Filled(2, 2, gray),
		Classes:        1,
		Trained:        tr,
		OtherThreshold: 50,
	})
	require.NoError(t, err)
	for i := range res.Labels.Pix {
		assert.Equal(t, int32(0), res.Labels.Pix[i])
		assert.InDelta(t, 1.0, res.Confidence.Pix[i], 1e-6)
	}
}

func TestBlackImageIsAllCarbon(t *testing.T) {
	tr := train(t, classifier.NearestNeighbor, map[string]colorutil.RGB{"Quartz": {200, 200, 200}}, "Quartz")
	img := image.Filled(2, 2, colorutil.RGB{0, 0, 0})
	det, err := carbon.Detect(img, carbon.DefaultParams())
	require.NoError(t, err)

	res, err := NewEngine(zerolog.Nop()).Run(context.Background(), Request{
		Image:          img,
		Classes:        1,
		Trained:        tr,
		Mask:           det.Mask,
		OtherThreshold: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 1, 1, 1}, res.Labels.Pix)
	assert.Equal(t, []float32{1, 1, 1, 1}, res.Confidence.Pix)
}

func TestFarPixelsBecomeOther(t *testing.T) {
	tr := train(t, classifier.NearestNeighbor, map[string]colorutil.RGB{
		"Quartz":  {200, 200, 200},
		"Olivine": {60, 120, 40},
	}, "Quartz", "Olivine")

	img := image.Filled(3, 1, colorutil.RGB{200, 200, 200})
	img.Set(1, 0, colorutil.RGB{250, 10, 250})
	img.Set(2, 0, colorutil.RGB{60, 120, 40})

	res, err := NewEngine(zerolog.Nop()).Run(context.Background(), Request{
		Image:          img,
		Classes:        2,
		Trained:        tr,
		OtherThreshold: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 3, 1}, res.Labels.Pix)
	assert.InDelta(t, OtherConfidence, res.Confidence.Pix[1], 1e-6)
}

func TestThresholdBoundary(t *testing.T) {
	img := image.Filled(1, 1, colorutil.RGB{1, 2, 3})
	eng := NewEngine(zerolog.Nop())

	res, err := eng.Run(context.Background(), Request{Image: img, Classes: 1, Trained: fixedTrained(50), OtherThreshold: 50})
	require.NoError(t, err)
	assert.Equal(t, int32(2), res.Labels.Pix[0], "distance equal to the threshold is other")

	res, err = eng.Run(context.Background(), Request{Image: img, Classes: 1, Trained: fixedTrained(49), OtherThreshold: 50})
	require.NoError(t, err)
	assert.Equal(t, int32(0), res.Labels.Pix[0])
}

func TestCarbonTakesPrecedence(t *testing.T) {
	gray := colorutil.RGB{200, 200, 200}
	tr := train(t, classifier.NearestNeighbor, map[string]colorutil.RGB{"Quartz": gray}, "Quartz")
	mask := carbon.NewMask(2, 1)
	mask.Pix[1] = true

	res, err := NewEngine(zerolog.Nop()).Run(context.Background(), Request{
		Image: image.Filled(2, 1, gray), Classes: 1, Trained: tr, Mask: mask, OtherThreshold: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1}, res.Labels.Pix)
	assert.Equal(t, float32(CarbonConfidence), res.Confidence.Pix[1])
}

func TestPartialLastBatchAndProgress(t *testing.T) {
	var reports []Progress
	res, err := NewEngine(zerolog.Nop()).Run(context.Background(), Request{
		Image:          image.Filled(7, 3, colorutil.RGB{9, 9, 9}),
		Classes:        1,
		Trained:        fixedTrained(100),
		OtherThreshold: 50,
		BatchSize:      4,
		Progress:       func(p Progress) { reports = append(reports, p) },
	})
	require.NoError(t, err)

	counts := res.Labels.Counts(1)
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 21, total)
	assert.Equal(t, 21, counts[2])

	require.Len(t, reports, 6)
	assert.Equal(t, Progress{Batch: 6, Batches: 6, Percent: 100}, reports[5])
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i].Percent, reports[i-1].Percent)
	}
}

func TestCancellationBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := NewEngine(zerolog.Nop()).Run(ctx, Request{
		Image:          image.Filled(10, 10, colorutil.RGB{}),
		Classes:        1,
		Trained:        fixedTrained(0),
		OtherThreshold: 50,
		BatchSize:      10,
		Progress: func(p Progress) {
			if p.Batch == 2 {
				cancel()
			}
		},
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStateErrors(t *testing.T) {
	eng := NewEngine(zerolog.Nop())
	img := image.Filled(2, 2, colorutil.RGB{})
	ctx := context.Background()

	noScaler := fixedTrained(0)
	noScaler.Scaler = nil
	narrowScaler := fixedTrained(0)
	narrowScaler.Scaler = &classifier.Scaler{Mean: []float64{0}, Scale: []float64{1}}

	for name, req := range map[string]Request{
		"no image":    {Classes: 1, Trained: fixedTrained(0)},
		"empty":       {Image: image.NewRaster(0, 0), Classes: 1, Trained: fixedTrained(0)},
		"no classes":  {Image: img, Trained: fixedTrained(0)},
		"no model":    {Image: img, Classes: 1},
		"no scaler":   {Image: img, Classes: 1, Trained: noScaler},
		"scaler dims": {Image: img, Classes: 1, Trained: narrowScaler},
		"mask shape":  {Image: img, Classes: 1, Trained: fixedTrained(0), Mask: carbon.NewMask(3, 2)},
		"class skew":  {Image: img, Classes: 2, Trained: fixedTrained(0)},
	} {
		_, err := eng.Run(ctx, req)
		assert.True(t, errors.Is(err, apperr.ErrState), name)
	}
}
