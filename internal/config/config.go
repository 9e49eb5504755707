// Package config holds the classifier settings and loads them from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/carbon"
	"mineral-classifier/internal/classifier"
)

// ResultsDirName is the default output folder created next to the input.
const ResultsDirName = "mineral_classification_results"

// Config is the resolved configuration.
type Config struct {
	CarbonThreshold int
	MinBlobSize     int
	OtherThreshold  float64
	ModelKind       classifier.Kind
	BatchSize       int
	Seed            uint64
	SaveResults     bool
	OutputDir       string // empty: <image dir>/mineral_classification_results
}

// Default returns the built-in defaults.
func Default() Config {
	p := carbon.DefaultParams()
	return Config{
		CarbonThreshold: p.Threshold,
		MinBlobSize:     p.MinBlobSize,
		OtherThreshold:  50,
		ModelKind:       classifier.NearestNeighbor,
		BatchSize:       10000,
		Seed:            42,
		SaveResults:     true,
	}
}

// File is the on-disk form. Nil fields keep the current value, so partial
// files are safe.
type File struct {
	CarbonThreshold *int     `json:"carbon_threshold,omitempty"`
	MinBlobSize     *int     `json:"min_blob_size,omitempty"`
	OtherThreshold  *float64 `json:"other_threshold,omitempty"`
	ModelKind       *string  `json:"model_kind,omitempty"`
	BatchSize       *int     `json:"batch_size,omitempty"`
	Seed            *uint64  `json:"seed,omitempty"`
	SaveResults     *bool    `json:"save_results,omitempty"`
	OutputDir       *string  `json:"output_dir,omitempty"`
}

// maxFileSize bounds the config file read.
const maxFileSize = 1 << 20

// Load reads path and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return cfg, apperr.Validation("config.load", "config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return cfg, apperr.IO("config.load", err, "stat %s", clean)
	}
	if info.Size() > maxFileSize {
		return cfg, apperr.Validation("config.load", "config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return cfg, apperr.IO("config.load", err, "read %s", clean)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return cfg, apperr.IO("config.load", err, "parse %s", clean)
	}
	if err := cfg.Apply(f); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Apply overlays the non-nil fields of f and validates the result. On error
// c is left unchanged.
func (c *Config) Apply(f File) error {
	next := *c
	if f.CarbonThreshold != nil {
		next.CarbonThreshold = *f.CarbonThreshold
	}
	if f.MinBlobSize != nil {
		next.MinBlobSize = *f.MinBlobSize
	}
	if f.OtherThreshold != nil {
		next.OtherThreshold = *f.OtherThreshold
	}
	if f.ModelKind != nil {
		k, err := classifier.ParseKind(*f.ModelKind)
		if err != nil {
			return err
		}
		next.ModelKind = k
	}
	if f.BatchSize != nil {
		next.BatchSize = *f.BatchSize
	}
	if f.Seed != nil {
		next.Seed = *f.Seed
	}
	if f.SaveResults != nil {
		next.SaveResults = *f.SaveResults
	}
	if f.OutputDir != nil {
		next.OutputDir = *f.OutputDir
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if err := c.CarbonParams().Validate(); err != nil {
		return err
	}
	if c.OtherThreshold < 0 {
		return apperr.Validation("config", "other_threshold must be non-negative, got %g", c.OtherThreshold)
	}
	if c.BatchSize < 1 {
		return apperr.Validation("config", "batch_size must be at least 1, got %d", c.BatchSize)
	}
	return nil
}

// CarbonParams returns the carbon detection parameters.
func (c Config) CarbonParams() carbon.Params {
	return carbon.DefaultParams().
		WithThreshold(c.CarbonThreshold).
		WithMinBlobSize(c.MinBlobSize)
}

// ResultsDir returns the output directory for imagePath.
func (c Config) ResultsDir(imagePath string) string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(filepath.Dir(imagePath), ResultsDirName)
}

// Save writes c as JSON.
func (c Config) Save(path string) error {
	kind := c.ModelKind.String()
	f := File{
		CarbonThreshold: &c.CarbonThreshold,
		MinBlobSize:     &c.MinBlobSize,
		OtherThreshold:  &c.OtherThreshold,
		ModelKind:       &kind,
		BatchSize:       &c.BatchSize,
		Seed:            &c.Seed,
		SaveResults:     &c.SaveResults,
	}
	if c.OutputDir != "" {
		f.OutputDir = &c.OutputDir
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return apperr.IO("config.save", err, "write %s", path)
	}
	return nil
}
