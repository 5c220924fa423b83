// Package watcher reloads the document when its snapshot file is changed
// outside the service.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events of one atomic write.
const debounce = 200 * time.Millisecond

// Reloader re-reads persisted state and reports whether it changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Watch starts an fsnotify watcher on the directory holding file and reloads
// r after the file is created, written or renamed into place, until ctx is
// cancelled. cb (if non-nil) runs after each reload that changed the state.
//
// The directory is watched rather than the file so that atomic replacement
// (temp file + rename) keeps being observed.
func Watch(ctx context.Context, r Reloader, file string, logger *slog.Logger, cb func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(file)
	name := filepath.Base(file)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("file", file))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			changed, reloadErr := r.Reload(ctx)
			if reloadErr != nil {
				logger.Warn("watcher: reload failed", slog.String("error", reloadErr.Error()))
				continue
			}
			if !changed {
				continue
			}
			logger.Info("watcher: document reloaded", slog.String("file", file))
			if cb != nil {
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
