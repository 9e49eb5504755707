package main

import (
	"bytes"
	"errors"
	"testing"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/classifier"
	"mineral-classifier/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsOverridesOnlyGivenFlags(t *testing.T) {
	o, err := parseFlags([]string{"-image", "a.tif", "-model", "rf", "-other-threshold", "12.5"})
	require.NoError(t, err)
	assert.Nil(t, o.overrides.CarbonThreshold)
	assert.Nil(t, o.overrides.SaveResults)

	cfg, err := loadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, classifier.RandomForest, cfg.ModelKind)
	assert.Equal(t, 12.5, cfg.OtherThreshold)
	assert.Equal(t, 30, cfg.CarbonThreshold)
}

func TestParseFlagsNeedsOneInput(t *testing.T) {
	_, err := parseFlags([]string{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = parseFlags([]string{"-image", "a.tif", "-dir", "slides"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = parseFlags([]string{"-history", "5"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestLoadConfigRejectsBadOverride(t *testing.T) {
	o, err := parseFlags([]string{"-image", "a.tif", "-carbon-threshold", "300"})
	require.NoError(t, err)
	_, err = loadConfig(o)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, []stats.ClassStatistic{
		{Name: "Quartz", PixelCount: 3, Percentage: 75, CILower: 32.5651, CIUpper: 100},
		{Name: stats.CarbonName, PixelCount: 1, Percentage: 25, CILower: 0, CIUpper: 67.4349},
	})
	assert.Equal(t, "Results with 95% Confidence Intervals:\n"+
		"Quartz: 75.00% (32.57% - 100.00%), Pixels: 3\n"+
		"Carbon (Graphite): 25.00% (0.00% - 67.43%), Pixels: 1\n", buf.String())
}

func TestPrintArea(t *testing.T) {
	var buf bytes.Buffer
	// 254 dpi is 100 µm per pixel, 0.01 mm² per pixel.
	printArea(&buf, []stats.ClassStatistic{{Name: "Quartz", PixelCount: 150}}, 100, 254)
	assert.Equal(t, "Pixel size: 100.00 µm (254 dpi)\nQuartz: 1.5000 mm²\n", buf.String())
}
