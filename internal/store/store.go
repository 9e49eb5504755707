// Package store keeps a SQLite history of classification runs.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"mineral-classifier/internal/apperr"
	"mineral-classifier/internal/stats"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout keeps every created_at the same width so text order is time
// order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded classification.
type Run struct {
	ID              uuid.UUID
	ImagePath       string
	ModelKind       string
	CarbonThreshold int
	MinBlobSize     int
	OtherThreshold  float64
	Width           int
	Height          int
	DPI             float64 // 0 when the image carries no resolution
	CreatedAt       time.Time
	Stats           []stats.ClassStatistic
}

// Store is a run history database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.IO("store.open", err, "open %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, apperr.IO("store.open", err, "enable foreign keys")
	}

	s := &Store{db: db, log: log}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, apperr.IO("store.open", err, "migrate %s", path)
	}
	log.Debug().Str("path", path).Msg("run store ready")
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	// m is not closed: closing it would close s.db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores r and its statistics in one transaction. A zero ID is
// replaced with a new random one; a zero CreatedAt with the current time.
func (s *Store) RecordRun(ctx context.Context, r *Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.IO("store.record", err, "begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, image_path, model_kind, carbon_threshold, min_blob_size,
			other_threshold, width, height, dpi, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.ImagePath, r.ModelKind, r.CarbonThreshold, r.MinBlobSize,
		r.OtherThreshold, r.Width, r.Height, r.DPI, r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return apperr.IO("store.record", err, "insert run %s", r.ID)
	}

	for i, st := range r.Stats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO class_stats (run_id, position, name, pixel_count, percentage, ci_lower, ci_upper)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID.String(), i, st.Name, st.PixelCount, st.Percentage, st.CILower, st.CIUpper)
		if err != nil {
			return apperr.IO("store.record", err, "insert statistic %q", st.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.IO("store.record", err, "commit")
	}

	s.log.Debug().Str("run_id", r.ID.String()).Int("classes", len(r.Stats)).Msg("run recorded")
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT run_id, image_path, model_kind, carbon_threshold, min_blob_size,
		other_threshold, width, height, dpi, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.IO("store.runs", err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var id, created string
		if err := rows.Scan(&id, &r.ImagePath, &r.ModelKind, &r.CarbonThreshold, &r.MinBlobSize,
			&r.OtherThreshold, &r.Width, &r.Height, &r.DPI, &created); err != nil {
			return nil, apperr.IO("store.runs", err, "scan run")
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, apperr.IO("store.runs", err, "parse run id %q", id)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, apperr.IO("store.runs", err, "parse created_at %q", created)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.IO("store.runs", err, "iterate runs")
	}

	for i := range runs {
		st, err := s.classStats(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Stats = st
	}
	return runs, nil
}

func (s *Store) classStats(ctx context.Context, id uuid.UUID) ([]stats.ClassStatistic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, pixel_count, percentage, ci_lower, ci_upper
		FROM class_stats WHERE run_id = ? ORDER BY position`, id.String())
	if err != nil {
		return nil, apperr.IO("store.runs", err, "query statistics for %s", id)
	}
	defer rows.Close()

	var out []stats.ClassStatistic
	for rows.Next() {
		var st stats.ClassStatistic
		if err := rows.Scan(&st.Name, &st.PixelCount, &st.Percentage, &st.CILower, &st.CIUpper); err != nil {
			return nil, apperr.IO("store.runs", err, "scan statistic")
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.IO("store.runs", err, "iterate statistics")
	}
	return out, nil
}
