package memory

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the working-memory file and re-syncs the index when it
// changes. Editor save storms are debounced (300ms). The parent directory is
// watched, not the file itself, so atomic rename-style saves keep working.
type Watcher struct {
	engine   *Engine
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	stopChan chan struct{}
}

// NewWatcher creates a watcher for the engine's working-memory file.
func NewWatcher(engine *Engine, path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		engine:   engine,
		path:     path,
		watcher:  w,
		debounce: 300 * time.Millisecond,
	}, nil
}

// Start begins watching and syncs once up front so the index reflects the
// file state at startup.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	if err := w.engine.Sync(ctx); err != nil {
		slog.Error("initial sync failed", "error", err)
	}

	w.stopChan = make(chan struct{})
	go w.watchLoop(ctx)

	slog.Info("memory watcher started", "path", w.path)
	return nil
}

// Stop halts the file watcher.
func (w *Watcher) Stop() {
	if w.stopChan != nil {
		close(w.stopChan)
	}
	w.watcher.Close()
	slog.Info("memory watcher stopped")
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if err := w.engine.Sync(ctx); err != nil {
					slog.Error("sync after file change failed", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("memory watcher error", "error", err)
		}
	}
}
