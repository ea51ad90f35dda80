package store

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
)

// DefaultDebounce is how long Watch waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls onChange whenever files below root change, after changes
// have settled for debounce. Version control directories are ignored. It
// returns when ctx is done.
func Watch(ctx context.Context, root string, debounce time.Duration, logger *zap.Logger, onChange func(ctx context.Context) error) error {
	logger = logging.OrNop(logger)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addTree(watcher, root); err != nil {
		return err
	}
	logger.Info("Watching dataset", zap.String("root", root))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignored(root, event.Name) {
				continue
			}
			logger.Debug("Dataset changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if event.Op&fsnotify.Create != 0 {
				// new directories need their own watch
				if err := addTree(watcher, event.Name); err != nil {
					logger.Debug("Cannot watch new path", zap.String("path", event.Name), zap.Error(err))
				}
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))
		case <-timer.C:
			if err := onChange(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("Re-aggregation failed", zap.Error(err))
			}
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (d.Name() == ".git" || d.Name() == ".datalad") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func ignored(root, name string) bool {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return true
	}
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	return first == ".git" || first == ".datalad"
}
