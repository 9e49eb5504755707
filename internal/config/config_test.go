package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/classifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, 30, c.CarbonThreshold)
	assert.Equal(t, 100, c.MinBlobSize)
	assert.Equal(t, 50.0, c.OtherThreshold)
	assert.Equal(t, classifier.NearestNeighbor, c.ModelKind)
	assert.Equal(t, 10000, c.BatchSize)
	assert.True(t, c.SaveResults)
	assert.NoError(t, c.Validate())
}

func TestLoadPartialOverride(t *testing.T) {
	p := writeFile(t, "cfg.json", `{"carbon_threshold": 40, "model_kind": "random-forest"}`)

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 40, c.CarbonThreshold)
	assert.Equal(t, classifier.RandomForest, c.ModelKind)
	assert.Equal(t, 100, c.MinBlobSize, "missing keys keep defaults")
	assert.Equal(t, 50.0, c.OtherThreshold)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"threshold range": `{"carbon_threshold": 256}`,
		"blob size":       `{"min_blob_size": 0}`,
		"other":           `{"other_threshold": -1}`,
		"model":           `{"model_kind": "perceptron"}`,
		"batch":           `{"batch_size": 0}`,
	} {
		_, err := Load(writeFile(t, "cfg.json", body))
		assert.True(t, errors.Is(err, apperr.ErrValidation), name)
	}

	_, err := Load(writeFile(t, "cfg.yaml", `{}`))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = Load(writeFile(t, "cfg.json", `{`))
	assert.True(t, errors.Is(err, apperr.ErrIO))

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, apperr.ErrIO))
}

func TestApplyLeavesConfigOnError(t *testing.T) {
	c := Default()
	bad := -5
	err := c.Apply(File{MinBlobSize: &bad})
	require.Error(t, err)
	assert.Equal(t, Default(), c)
}

func TestSaveRoundTrip(t *testing.T) {
	c := Default()
	c.ModelKind = classifier.KMeans
	c.OtherThreshold = 12.5
	c.OutputDir = "/tmp/out"
	p := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, c.Save(p))

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestResultsDir(t *testing.T) {
	c := Default()
	assert.Equal(t, filepath.Join("/data/slides", ResultsDirName), c.ResultsDir("/data/slides/a.tif"))
	c.OutputDir = "/out"
	assert.Equal(t, "/out", c.ResultsDir("/data/slides/a.tif"))
}
