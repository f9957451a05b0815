package bundle

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/metrics"
)

// DefaultDebounce groups the burst of events produced by one publish.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the live bundle whenever the store's current link or
// metadata file changes and passes every bundle that verifies to onLoad.
// A bundle that fails to load is logged and skipped; the caller keeps
// serving whatever it had. Call the returned stop function to clean up.
func (s *Store) Watch(logger *slog.Logger, debounce time.Duration, onLoad func(*Bundle)) (stop func(), err error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("bundle watcher: %w", err)
	}
	if err := w.Add(s.root); err != nil {
		w.Close()
		return nil, fmt.Errorf("bundle watcher add %s: %w", s.root, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		b, err := s.Load()
		if err != nil {
			logger.Warn("bundle reload skipped", "dir", s.root, "error", err)
			metrics.BundleReloads.WithLabelValues("failed").Inc()
			return
		}
		logger.Info("bundle reloaded", "version", b.Metadata.Version, "model_type", b.Metadata.ModelType)
		onLoad(b)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(ev.Name)
				if name != currentLink && name != MetadataFile {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					mu.Lock()
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, reload)
					mu.Unlock()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("bundle watcher error", "error", err)
			case <-done:
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}
