package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/talktothecity/pipeline/pkg/llm"
)

// ModelMapWatcher holds a live, hot-reloadable cloud→local model mapping
// loaded from a YAML file. Reads and writes are lock-protected; writes
// happen on the initial load and on each debounced reload after a change.
type ModelMapWatcher struct {
	path string

	mu     sync.RWMutex
	mapped llm.ModelMap
}

// LoadModelMap reads path once and returns a watcher seeded with its
// contents. If path does not exist, the watcher starts with
// llm.DefaultModelMap and that becomes the file's effective defaults.
func LoadModelMap(path string) (*ModelMapWatcher, error) {
	w := &ModelMapWatcher{path: path, mapped: llm.DefaultModelMap}

	if err := w.reload(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load model map %s: %w", path, err)
	}
	return w, nil
}

// Get returns the current mapping for a cloud model name, falling back to
// the argument itself when no mapping exists.
func (w *ModelMapWatcher) Get(cloudModel string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if local, ok := w.mapped[cloudModel]; ok {
		return local
	}
	return cloudModel
}

func (w *ModelMapWatcher) reload() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	var parsed map[string]string
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse model map yaml: %w", err)
	}

	w.mu.Lock()
	w.mapped = parsed
	w.mu.Unlock()
	return nil
}

// Watch starts watching the model map file for changes and reloads it on
// write, until ctx is cancelled. Safe to call at most once per watcher.
func (w *ModelMapWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	go w.watchLoop(ctx, watcher, file)
	return nil
}

func (w *ModelMapWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, file string) {
	defer watcher.Close()

	var debounce *time.Timer
	const debounceDelay = 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := w.reload(); err != nil {
					slog.Error("reload model map failed", "path", w.path, "error", err)
					return
				}
				slog.Info("model map reloaded", "path", w.path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("model map watcher error", "error", err)
		}
	}
}
