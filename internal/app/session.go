// Package app provides the classification session: the loaded image, the
// mineral classes, pending pixel picks, the last run and change events.
package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/carbon"
	"mineral-classifier/internal/classifier"
	"mineral-classifier/internal/classify"
	"mineral-classifier/internal/config"
	"mineral-classifier/internal/export"
	"mineral-classifier/internal/image"
	"mineral-classifier/internal/logger"
	"mineral-classifier/internal/mineral"
	"mineral-classifier/internal/selection"
	"mineral-classifier/internal/stats"
	"mineral-classifier/internal/store"
)

// EventType identifies session events.
type EventType int

const (
	EventImageLoaded EventType = iota
	EventFolderOpened
	EventPicksChanged
	EventClassesChanged
	EventSelectionsLoaded
	EventSelectionsSaved
	EventClassifyProgress
	EventClassified
	EventExported
	EventReset
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Run is a completed classification.
type Run struct {
	ID        uuid.UUID
	ImagePath string
	Kind      classifier.Kind
	Names     []string
	Carbon    *carbon.Result
	Result    *classify.Result
	Stats     []stats.ClassStatistic
	CreatedAt time.Time
}

// Session holds the state of one classification workflow. All methods are
// safe for concurrent use. Failed operations leave the registry and the
// last run untouched.
type Session struct {
	mu sync.RWMutex

	cfg      config.Config
	source   *image.Source
	images   []string
	index    int
	registry *mineral.Registry
	picks    []mineral.Sample
	last     *Run

	engine   *classify.Engine
	exporter *export.Exporter
	store    *store.Store
	log      zerolog.Logger

	listeners map[EventType][]EventListener
}

// NewSession creates a session with the given configuration.
func NewSession(cfg config.Config, log zerolog.Logger) *Session {
	return &Session{
		cfg:       cfg,
		registry:  mineral.NewRegistry(),
		engine:    classify.NewEngine(logger.Component(log, "classify")),
		exporter:  export.New(logger.Component(log, "export")),
		log:       logger.Component(log, "session"),
		listeners: make(map[EventType][]EventListener),
	}
}

// SetStore attaches a run history database. Nil detaches it.
func (s *Session) SetStore(st *store.Store) {
	s.mu.Lock()
	s.store = st
	s.mu.Unlock()
}

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Config returns the current configuration.
func (s *Session) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig replaces the configuration after validating it.
func (s *Session) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Source returns the loaded image, or nil.
func (s *Session) Source() *image.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Registry returns a snapshot of the mineral classes.
func (s *Session) Registry() *mineral.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Clone()
}

// LastRun returns the last successful classification, or nil.
func (s *Session) LastRun() *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// SelectionsPath returns the per-image selections file of the loaded
// image, or "" when no image is loaded.
func (s *Session) SelectionsPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.source == nil {
		return ""
	}
	return selection.PathFor(s.cfg.ResultsDir(s.source.Path), s.source.Path)
}

// LoadImage loads the image at path, clears pending picks and the last run,
// and loads the image's saved selections from the results directory when
// they exist.
func (s *Session) LoadImage(path string) error {
	src, err := image.Load(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.source = src
	s.picks = nil
	s.last = nil
	s.mu.Unlock()

	s.log.Info().
		Str("path", path).
		Int("width", src.Raster.Width).
		Int("height", src.Raster.Height).
		Int("pages", src.Pages).
		Float64("dpi", src.DPI).
		Msg("image loaded")
	s.Emit(EventImageLoaded, src)

	selPath := s.SelectionsPath()
	if _, err := os.Stat(selPath); err == nil {
		if err := s.LoadSelections(selPath); err != nil {
			s.log.Warn().Err(err).Str("path", selPath).Msg("saved selections not loaded")
		}
	}
	return nil
}

// OpenFolder lists the images in dir, clears classes and results, and loads
// the first image. Results go to dir/mineral_classification_results unless
// an output directory is configured.
func (s *Session) OpenFolder(dir string) error {
	paths, err := image.ListImages(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return apperr.Validation("session.folder", "no image files in %s", dir)
	}

	s.mu.Lock()
	s.images = paths
	s.index = 0
	s.registry = mineral.NewRegistry()
	s.picks = nil
	s.last = nil
	if s.cfg.OutputDir == "" {
		s.cfg.OutputDir = filepath.Join(dir, config.ResultsDirName)
	}
	out := s.cfg.OutputDir
	s.mu.Unlock()

	if err := os.MkdirAll(out, 0o755); err != nil {
		return apperr.IO("session.folder", err, "create %s", out)
	}
	s.Emit(EventFolderOpened, paths)
	return s.LoadImage(paths[0])
}

// Images returns the folder image list and the current index.
func (s *Session) Images() ([]string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.images...), s.index
}

// NextImage loads the next folder image, wrapping around.
func (s *Session) NextImage() error { return s.step(1) }

// PreviousImage loads the previous folder image, wrapping around.
func (s *Session) PreviousImage() error { return s.step(-1) }

func (s *Session) step(delta int) error {
	s.mu.Lock()
	if len(s.images) == 0 {
		s.mu.Unlock()
		return apperr.State("session.step", "no folder open")
	}
	n := len(s.images)
	s.index = ((s.index+delta)%n + n) % n
	path := s.images[s.index]
	s.mu.Unlock()
	return s.LoadImage(path)
}

// Pick records the color at (x, y) as a pending sample. Coordinates are
// clamped to the image bounds.
func (s *Session) Pick(x, y int) (mineral.Sample, error) {
	s.mu.Lock()
	if s.source == nil {
		s.mu.Unlock()
		return mineral.Sample{}, apperr.State("session.pick", "no image loaded")
	}
	r := s.source.Raster
	x = max(0, min(x, r.Width-1))
	y = max(0, min(y, r.Height-1))
	sample := mineral.Sample{X: x, Y: y, Color: r.At(x, y)}
	s.picks = append(s.picks, sample)
	n := len(s.picks)
	s.mu.Unlock()

	s.log.Debug().Int("x", x).Int("y", y).Int("pending", n).Msg("pixel picked")
	s.Emit(EventPicksChanged, n)
	return sample, nil
}

// Picks returns the pending samples.
func (s *Session) Picks() []mineral.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]mineral.Sample(nil), s.picks...)
}

// ClearPicks discards the pending samples.
func (s *Session) ClearPicks() {
	s.mu.Lock()
	s.picks = nil
	s.mu.Unlock()
	s.Emit(EventPicksChanged, 0)
}

// AddClass turns the pending samples into the mineral name and clears them.
func (s *Session) AddClass(name string) (*mineral.Class, error) {
	s.mu.Lock()
	if len(s.picks) == 0 {
		s.mu.Unlock()
		return nil, apperr.Validation("session.add", "no pixels selected")
	}
	c, err := s.registry.AddClass(name, s.picks)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.picks = nil
	s.mu.Unlock()

	s.log.Info().Str("mineral", c.Name).Int("samples", len(c.Samples)).Msg("mineral added")
	s.Emit(EventPicksChanged, 0)
	s.Emit(EventClassesChanged, c)
	return c, nil
}

// AddSamples adds a class from explicit samples, bypassing pending picks.
func (s *Session) AddSamples(name string, samples []mineral.Sample) (*mineral.Class, error) {
	s.mu.Lock()
	c, err := s.registry.AddClass(name, samples)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.Emit(EventClassesChanged, c)
	return c, nil
}

// RemoveClass deletes a mineral.
func (s *Session) RemoveClass(name string) bool {
	s.mu.Lock()
	ok := s.registry.Remove(name)
	s.mu.Unlock()
	if ok {
		s.Emit(EventClassesChanged, nil)
	}
	return ok
}

// ClearClasses deletes every mineral.
func (s *Session) ClearClasses() {
	s.mu.Lock()
	s.registry.Clear()
	s.mu.Unlock()
	s.Emit(EventClassesChanged, nil)
}

// LoadSelections replaces the classes with those stored at path.
func (s *Session) LoadSelections(path string) error {
	f, err := selection.Load(path, s.log)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.registry = f.Minerals
	s.mu.Unlock()
	s.Emit(EventSelectionsLoaded, path)
	s.Emit(EventClassesChanged, nil)
	return nil
}

// SaveSelections writes the classes to path. An empty path uses the
// per-image file in the results directory.
func (s *Session) SaveSelections(path string) (string, error) {
	s.mu.RLock()
	if s.registry.Len() == 0 {
		s.mu.RUnlock()
		return "", apperr.Validation("session.save", "no mineral classes defined")
	}
	f := selection.New("")
	if s.source != nil {
		f.ImagePath = s.source.Path
	}
	f.Minerals = s.registry.Clone()
	s.mu.RUnlock()
	if path == "" {
		if path = s.SelectionsPath(); path == "" {
			return "", apperr.State("session.save", "no image loaded")
		}
	}

	if err := selection.Save(path, f); err != nil {
		return "", err
	}
	s.log.Info().Str("path", path).Int("minerals", f.Minerals.Len()).Msg("selections saved")
	s.Emit(EventSelectionsSaved, path)
	return path, nil
}

// Classify detects carbon, trains the configured model on a snapshot of the
// classes and labels every pixel of the loaded image. Progress is emitted
// as EventClassifyProgress.
func (s *Session) Classify(ctx context.Context) (*Run, error) {
	s.mu.RLock()
	src := s.source
	reg := s.registry.Clone()
	cfg := s.cfg
	st := s.store
	s.mu.RUnlock()

	if src == nil || src.Raster.Empty() {
		return nil, apperr.State("session.classify", "no image loaded")
	}
	if reg.Len() == 0 {
		return nil, apperr.Validation("session.classify", "no mineral classes defined")
	}

	det, err := carbon.Detect(src.Raster, cfg.CarbonParams())
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int("carbon_pixels", det.Mask.Count()).
		Int("carbon_blobs", det.CarbonComponents()).
		Int("dark_blobs", len(det.Components)).
		Msg("carbon detected")

	trained, err := classifier.Train(reg, cfg.ModelKind, classifier.Options{Seed: cfg.Seed})
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Run(ctx, classify.Request{
		Image:          src.Raster,
		Classes:        reg.Len(),
		Trained:        trained,
		Mask:           det.Mask,
		OtherThreshold: cfg.OtherThreshold,
		BatchSize:      cfg.BatchSize,
		Progress:       func(p classify.Progress) { s.Emit(EventClassifyProgress, p) },
	})
	if err != nil {
		return nil, err
	}

	names := reg.Names()
	classStats, err := stats.Compute(res.Labels, names)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New(),
		ImagePath: src.Path,
		Kind:      cfg.ModelKind,
		Names:     names,
		Carbon:    det,
		Result:    res,
		Stats:     classStats,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.last = run
	s.mu.Unlock()

	if st != nil {
		rec := &store.Run{
			ID:              run.ID,
			ImagePath:       run.ImagePath,
			ModelKind:       run.Kind.String(),
			CarbonThreshold: cfg.CarbonThreshold,
			MinBlobSize:     cfg.MinBlobSize,
			OtherThreshold:  cfg.OtherThreshold,
			Width:           src.Raster.Width,
			Height:          src.Raster.Height,
			DPI:             src.DPI,
			CreatedAt:       run.CreatedAt,
			Stats:           run.Stats,
		}
		if err := st.RecordRun(ctx, rec); err != nil {
			s.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("run not recorded")
		}
	}

	s.Emit(EventClassified, run)
	return run, nil
}

// Export writes the artifacts of the last run into dir. An empty dir uses
// the configured results directory.
func (s *Session) Export(dir string) (export.Artifacts, error) {
	s.mu.RLock()
	run := s.last
	src := s.source
	cfg := s.cfg
	s.mu.RUnlock()

	if run == nil {
		return export.Artifacts{}, apperr.State("session.export", "no classification result")
	}
	if dir == "" {
		dir = cfg.ResultsDir(run.ImagePath)
	}
	in := export.Input{
		ImagePath: run.ImagePath,
		Result:    run.Result,
		Stats:     run.Stats,
		Names:     run.Names,
	}
	if src != nil && src.Path == run.ImagePath {
		in.Image = src.Raster
	}

	art, err := s.exporter.Export(dir, in)
	if len(art.Paths()) > 0 {
		s.Emit(EventExported, art)
	}
	return art, err
}

// Reset clears the last run and pending picks. Classes are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	s.last = nil
	s.picks = nil
	s.mu.Unlock()
	s.Emit(EventReset, nil)
}
