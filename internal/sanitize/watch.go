package sanitize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher hot-reloads an Engine's rule set when the rule file changes on
// disk. A broken rule file leaves the previous rules in place.
type Watcher struct {
	watcher *fsnotify.Watcher
	engine  *Engine
	path    string
	logger  *slog.Logger
}

// NewWatcher creates a file watcher for the rule file at path.
func NewWatcher(engine *Engine, path string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create rule watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}
	return &Watcher{watcher: fw, engine: engine, path: path, logger: logger}, nil
}

// Run blocks until ctx is cancelled, reloading rules on write events.
// Writes are debounced so editors that save in multiple syscalls trigger a
// single reload.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("rule watcher error", "error", err, "path", w.path)
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Error("rule reload failed, keeping previous rules",
			"error", err,
			"path", w.path,
		)
		return
	}
	w.engine.Reload(rules)
	w.logger.Info("sanitization rules reloaded", "path", w.path, "rules", len(rules))
}
