// Command mineral-classifier classifies the pixels of thin-section images
// into user-defined minerals, carbon and "other", and reports area fractions
// with 95% confidence intervals.
//
// Usage:
//
//	mineral-classifier -image slide.tif -selections quartz_feldspar.json
//	mineral-classifier -dir slides/ -model rf -db runs.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mineral-classifier/internal/app"
	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/classify"
	"mineral-classifier/internal/config"
	"mineral-classifier/internal/logger"
	"mineral-classifier/internal/stats"
	"mineral-classifier/internal/store"
	"mineral-classifier/internal/version"
)

const (
	appName       = "mineral-classifier"
	watchInterval = time.Second
)

type options struct {
	image      string
	dir        string
	selections string
	configPath string
	dbPath     string
	history    int
	watch      bool
	logLevel   string
	showVer    bool
	overrides  config.File
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVer {
		fmt.Println(version.String(appName))
		return
	}

	log := logger.NewConsole(logger.ParseLevel(opts.logLevel))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout, log); err != nil {
		log.Error().Err(err).Str("kind", apperr.KindOf(err).String()).Msg("failed")
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.StringVar(&o.image, "image", "", "Image to classify (TIFF, PNG or JPEG)")
	fs.StringVar(&o.dir, "dir", "", "Folder of images to classify one after another")
	fs.StringVar(&o.selections, "selections", "", "Mineral selections JSON (default: <results>/<image>_selections.json)")
	fs.StringVar(&o.configPath, "config", "", "Configuration JSON file")
	fs.StringVar(&o.dbPath, "db", "", "SQLite run history database")
	fs.IntVar(&o.history, "history", 0, "Print the N most recent recorded runs and exit (needs -db)")
	fs.BoolVar(&o.watch, "watch", false, "Keep running and reclassify when the selections or config file changes (-image only)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error, quiet")
	fs.BoolVar(&o.showVer, "version", false, "Print version and exit")

	model := fs.String("model", "", "Model: knn, svm, rf or kmeans")
	carbonThreshold := fs.Int("carbon-threshold", 0, "Gray level below which pixels are carbon candidates (0-255)")
	minBlob := fs.Int("min-blob", 0, "Dark components smaller than this many pixels are carbon")
	otherThreshold := fs.Float64("other-threshold", 0, "Rejection threshold for the Other class")
	batch := fs.Int("batch", 0, "Pixels per classification batch")
	seed := fs.Uint64("seed", 0, "Random forest seed")
	out := fs.String("out", "", "Results directory")
	save := fs.Bool("save", true, "Write result files")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	// Only flags given on the command line override the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			o.overrides.ModelKind = model
		case "carbon-threshold":
			o.overrides.CarbonThreshold = carbonThreshold
		case "min-blob":
			o.overrides.MinBlobSize = minBlob
		case "other-threshold":
			o.overrides.OtherThreshold = otherThreshold
		case "batch":
			o.overrides.BatchSize = batch
		case "seed":
			o.overrides.Seed = seed
		case "out":
			o.overrides.OutputDir = out
		case "save":
			o.overrides.SaveResults = save
		}
	})

	if !o.showVer && o.history == 0 && (o.image == "") == (o.dir == "") {
		fs.Usage()
		return o, apperr.Validation("flags", "exactly one of -image or -dir is required")
	}
	if o.watch && o.dir != "" {
		return o, apperr.Validation("flags", "-watch works with -image only")
	}
	if o.history > 0 && o.dbPath == "" {
		return o, apperr.Validation("flags", "-history needs -db")
	}
	return o, nil
}

func loadConfig(o options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Apply(o.overrides); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(ctx context.Context, o options, w io.Writer, log zerolog.Logger) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	var st *store.Store
	if o.dbPath != "" {
		if st, err = store.Open(o.dbPath, logger.Component(log, "store")); err != nil {
			return err
		}
		defer st.Close()
	}
	if o.history > 0 {
		return printHistory(ctx, w, st, o.history)
	}

	s := app.NewSession(cfg, log)
	s.SetStore(st)
	s.On(app.EventClassifyProgress, func(data interface{}) {
		p := data.(classify.Progress)
		log.Debug().Int("batch", p.Batch).Int("batches", p.Batches).Float64("percent", p.Percent).Msg("progress")
	})

	var images []string
	if o.dir != "" {
		if err := s.OpenFolder(o.dir); err != nil {
			return err
		}
		images, _ = s.Images()
	} else {
		if err := s.LoadImage(o.image); err != nil {
			return err
		}
		images = []string{o.image}
	}

	var failed []error
	for i, path := range images {
		if i > 0 {
			if err := s.NextImage(); err != nil {
				return err
			}
		}
		if err := classifyCurrent(ctx, s, o, w); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("path", path).Msg("image skipped")
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
		}
	}
	if o.watch {
		return watch(ctx, s, o, w, log)
	}
	return errors.Join(failed...)
}

// watch reclassifies the loaded image whenever its selections file or the
// config file changes, until ctx is done.
func watch(ctx context.Context, s *app.Session, o options, w io.Writer, log zerolog.Logger) error {
	selPath := o.selections
	if selPath == "" {
		selPath = s.SelectionsPath()
	}
	paths := []string{selPath}
	if o.configPath != "" {
		paths = append(paths, o.configPath)
	}

	changes := make(chan string, 1)
	wt := app.NewWatcher(watchInterval, paths...)
	wt.OnChange(func(p string) {
		select {
		case changes <- p:
		default:
		}
	})
	wt.Start()
	defer wt.Stop()
	log.Info().Strs("paths", paths).Msg("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-changes:
			log.Info().Str("path", p).Msg("change detected")
			if p == o.configPath {
				cfg, err := loadConfig(o)
				if err == nil {
					err = s.SetConfig(cfg)
				}
				if err != nil {
					log.Error().Err(err).Msg("config not reloaded")
					continue
				}
			} else if o.selections == "" {
				if err := s.LoadSelections(p); err != nil {
					log.Error().Err(err).Msg("selections not reloaded")
					continue
				}
			}
			if err := classifyCurrent(ctx, s, o, w); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("reclassification failed")
			}
		}
	}
}

func classifyCurrent(ctx context.Context, s *app.Session, o options, w io.Writer) error {
	if o.selections != "" {
		if err := s.LoadSelections(o.selections); err != nil {
			return err
		}
	}
	if s.Registry().Len() == 0 {
		return apperr.Validation("classify", "no mineral selections for %s", s.Source().Path)
	}

	r, err := s.Classify(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s (%s, %.2fs)\n", r.ImagePath, r.Kind.Title(), r.Result.Elapsed.Seconds())
	printStats(w, r.Stats)
	if src := s.Source(); src != nil && src.PixelSize() > 0 {
		printArea(w, r.Stats, src.PixelSize(), src.DPI)
	}

	if !s.Config().SaveResults {
		return nil
	}
	art, err := s.Export("")
	for _, p := range art.Paths() {
		fmt.Fprintf(w, "  wrote %s\n", p)
	}
	return err
}

func printStats(w io.Writer, rows []stats.ClassStatistic) {
	fmt.Fprintln(w, "Results with 95% Confidence Intervals:")
	for _, r := range rows {
		fmt.Fprintf(w, "%s: %.2f%% (%.2f%% - %.2f%%), Pixels: %d\n",
			r.Name, r.Percentage, r.CILower, r.CIUpper, r.PixelCount)
	}
}

// printArea converts pixel counts to areas for images with a known
// resolution.
func printArea(w io.Writer, rows []stats.ClassStatistic, pixelSize, dpi float64) {
	px := pixelSize * pixelSize / 1e6 // mm² per pixel
	fmt.Fprintf(w, "Pixel size: %.2f µm (%.0f dpi)\n", pixelSize, dpi)
	for _, r := range rows {
		fmt.Fprintf(w, "%s: %.4f mm²\n", r.Name, float64(r.PixelCount)*px)
	}
}

func printHistory(ctx context.Context, w io.Writer, st *store.Store, limit int) error {
	runs, err := st.Runs(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-6s %dx%d @%.0fdpi  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.ID, r.ModelKind, r.Width, r.Height, r.DPI, r.ImagePath)
		names := make([]string, 0, len(r.Stats))
		for _, c := range r.Stats {
			names = append(names, fmt.Sprintf("%s %.2f%%", c.Name, c.Percentage))
		}
		fmt.Fprintf(w, "    %s\n", strings.Join(names, ", "))
	}
	return nil
}
