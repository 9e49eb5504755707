// Package export writes the artifacts of a classification run: the
// statistics CSV, the label TIFF, a color overlay, a confidence heatmap and
// a composition chart.
package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/classify"
	"mineral-classifier/internal/image"
	"mineral-classifier/internal/stats"
)

// TimestampLayout formats the run time embedded in artifact names.
const TimestampLayout = "20060102_150405"

// OverlayOpacity is the class color opacity over the source image.
const OverlayOpacity = 0.6

// Input is everything an export needs from a run.
type Input struct {
	ImagePath string
	Image     *image.Raster
	Result    *classify.Result
	Stats     []stats.ClassStatistic
	Names     []string // mineral names in class index order
}

// Artifacts lists the files written by Export. Paths of failed artifacts
// are empty.
type Artifacts struct {
	CSV        string
	LabelTIFF  string
	Overlay    string
	Confidence string
	Chart      string
}

// Paths returns the non-empty artifact paths.
func (a Artifacts) Paths() []string {
	var out []string
	for _, p := range []string{a.CSV, a.LabelTIFF, a.Overlay, a.Confidence, a.Chart} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Exporter writes run artifacts into a directory.
type Exporter struct {
	log zerolog.Logger
	now func() time.Time
}

// New returns an exporter stamping files with the current time.
func New(log zerolog.Logger) *Exporter {
	return &Exporter{log: log, now: time.Now}
}

// Export writes every artifact into dir. A failing artifact does not stop
// the others; all failures are joined into the returned error and
// completed files are kept.
func (e *Exporter) Export(dir string, in Input) (Artifacts, error) {
	var art Artifacts
	if in.Result == nil || in.Result.Labels == nil {
		return art, apperr.State("export", "no classification result")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return art, apperr.IO("export", err, "create %s", dir)
	}

	base := filepath.Base(in.ImagePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	ts := e.now().Format(TimestampLayout)
	name := func(kind, ext string) string {
		return filepath.Join(dir, base+"_"+kind+"_"+ts+ext)
	}

	var errs []error
	write := func(dst *string, path string, fn func(string) error) {
		if err := fn(path); err != nil {
			e.log.Error().Err(err).Str("path", path).Msg("export failed")
			errs = append(errs, apperr.IO("export", err, "write %s", filepath.Base(path)))
			return
		}
		*dst = path
		e.log.Debug().Str("path", path).Msg("artifact written")
	}

	k := in.Result.Classes
	write(&art.CSV, name("data", ".csv"), func(p string) error {
		return writeFile(p, func(f *os.File) error { return WriteCSV(f, in.Stats) })
	})
	write(&art.LabelTIFF, name("classified", ".tiff"), func(p string) error {
		return writeFile(p, func(f *os.File) error { return WriteLabelTIFF(f, in.Result.Labels) })
	})
	write(&art.Overlay, name("classified", ".png"), func(p string) error {
		return writeFile(p, func(f *os.File) error { return WriteOverlayPNG(f, in.Image, in.Result.Labels, k) })
	})
	write(&art.Confidence, name("confidence", ".png"), func(p string) error {
		return writeFile(p, func(f *os.File) error { return WriteConfidencePNG(f, in.Result.Confidence) })
	})
	write(&art.Chart, name("chart", ".html"), func(p string) error {
		return writeFile(p, func(f *os.File) error { return WriteChart(f, in.Stats, k, filepath.Base(in.ImagePath)) })
	})

	e.log.Info().
		Str("dir", dir).
		Int("written", len(art.Paths())).
		Int("failed", len(errs)).
		Msg("results exported")
	return art, errors.Join(errs...)
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
