package guard

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader watches the workflow definition file and triggers hot-reload.
type Reloader struct {
	watcher *fsnotify.Watcher
	engine  *Engine
	lg      *zap.Logger
}

// NewReloader creates a file watcher for the engine's workflow path.
func NewReloader(engine *Engine, lg *zap.Logger) (*Reloader, error) {
	path := engine.cfg.WorkflowPath
	if path == "" {
		return nil, fmt.Errorf("guard: nothing to watch, workflow path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("guard: watch %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("guard: create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("guard: watch %q: %w", path, err)
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Reloader{watcher: watcher, engine: engine, lg: lg}, nil
}

// Run watches for file changes and reloads the workflow. Blocks until
// ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.engine.Reload(); err != nil {
						r.lg.Warn("hot-reload failed; keeping current workflow", zap.Error(err))
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.lg.Warn("file watcher error", zap.Error(err))
		}
	}
}
