package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherCheck(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a_selections.json")
	later := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o644))

	w := NewWatcher(time.Hour, existing, later)
	assert.Empty(t, w.Check())

	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(existing, future, future))
	assert.Equal(t, []string{existing}, w.Check())
	assert.Empty(t, w.Check(), "baseline moves forward")

	require.NoError(t, os.WriteFile(later, []byte("{}"), 0o644))
	assert.Equal(t, []string{later}, w.Check(), "created file counts")

	require.NoError(t, os.Remove(existing))
	assert.Equal(t, []string{existing}, w.Check(), "removed file counts")
}

func TestWatcherCallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sel.json")
	w := NewWatcher(5*time.Millisecond, path)
	got := make(chan string, 1)
	w.OnChange(func(p string) {
		select {
		case got <- p:
		default:
		}
	})
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	select {
	case p := <-got:
		assert.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
}
