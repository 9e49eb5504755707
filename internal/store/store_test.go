package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mineral-classifier/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestRecordAndListRuns(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	first := &Run{
		ImagePath:       "/slides/a.tif",
		ModelKind:       "knn",
		CarbonThreshold: 30,
		MinBlobSize:     100,
		OtherThreshold:  50,
		Width:           640,
		Height:          480,
		DPI:             2540,
		CreatedAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Stats: []stats.ClassStatistic{
			{Name: "Quartz", PixelCount: 300000, Percentage: 97.65625, CILower: 97.6, CIUpper: 97.7},
			{Name: stats.CarbonName, PixelCount: 7200, Percentage: 2.34375, CILower: 2.3, CIUpper: 2.4},
		},
	}
	require.NoError(t, s.RecordRun(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	second := &Run{ImagePath: "/slides/b.tif", ModelKind: "rf", Width: 1, Height: 1,
		CreatedAt: first.CreatedAt.Add(time.Hour)}
	require.NoError(t, s.RecordRun(ctx, second))

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Empty(t, runs[0].Stats)

	got := runs[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.ImagePath, got.ImagePath)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, 2540.0, got.DPI)
	assert.Equal(t, first.Stats, got.Stats)

	limited, err := s.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRunsWithinOneSecondListNewestFirst(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	earlier := &Run{ImagePath: "a.png", ModelKind: "knn", CreatedAt: base.Add(100 * time.Millisecond)}
	later := &Run{ImagePath: "b.png", ModelKind: "knn", CreatedAt: base.Add(120 * time.Millisecond)}
	require.NoError(t, s.RecordRun(ctx, later))
	require.NoError(t, s.RecordRun(ctx, earlier))

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, later.ID, runs[0].ID)
	assert.True(t, later.CreatedAt.Equal(runs[0].CreatedAt))
	assert.Equal(t, earlier.ID, runs[1].ID)
}

func TestReopenKeepsHistory(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.RecordRun(context.Background(), &Run{ImagePath: "x.png", ModelKind: "svm"}))
	require.NoError(t, s.Close())

	again, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer again.Close()
	runs, err := again.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDuplicateIDFails(t *testing.T) {
	s, _ := openTemp(t)
	id := uuid.New()
	require.NoError(t, s.RecordRun(context.Background(), &Run{ID: id, ImagePath: "a", ModelKind: "knn"}))
	assert.Error(t, s.RecordRun(context.Background(), &Run{ID: id, ImagePath: "b", ModelKind: "knn"}))
}
