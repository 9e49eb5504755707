package app

import (
	"os"
	"sync"
	"time"
)

// Watcher polls a set of files and calls a callback when one of them is
// modified, created or removed.
type Watcher struct {
	paths    []string
	interval time.Duration

	mu       sync.Mutex
	baseline map[string]time.Time
	onChange func(path string)
	stopCh   chan struct{}
}

// NewWatcher watches paths, checking every interval. The current
// modification times are the baseline.
func NewWatcher(interval time.Duration, paths ...string) *Watcher {
	w := &Watcher{
		paths:    append([]string(nil), paths...),
		interval: interval,
		baseline: make(map[string]time.Time, len(paths)),
	}
	for _, p := range w.paths {
		w.baseline[p] = modTime(p)
	}
	return w
}

// OnChange sets the callback. It is called from the watch goroutine.
func (w *Watcher) OnChange(callback func(path string)) {
	w.mu.Lock()
	w.onChange = callback
	w.mu.Unlock()
}

// Start begins polling in a background goroutine.
func (w *Watcher) Start() {
	w.stopCh = make(chan struct{})
	go w.watchLoop(w.stopCh)
}

// Stop stops the polling goroutine.
func (w *Watcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
}

func (w *Watcher) watchLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			changed := w.Check()
			w.mu.Lock()
			fn := w.onChange
			w.mu.Unlock()
			if fn == nil {
				continue
			}
			for _, p := range changed {
				fn(p)
			}
		}
	}
}

// Check returns the paths whose modification time differs from the
// baseline and moves the baseline forward.
func (w *Watcher) Check() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []string
	for _, p := range w.paths {
		t := modTime(p)
		if !t.Equal(w.baseline[p]) {
			w.baseline[p] = t
			changed = append(changed, p)
		}
	}
	return changed
}

// modTime is the zero time for missing files.
func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
