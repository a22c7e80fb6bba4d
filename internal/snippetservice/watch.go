package snippetservice

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of events from one write.
const watchDebounce = 200 * time.Millisecond

// Watch observes the storage location for changes made outside this
// process and calls Reconcile after each burst of events. It blocks until
// ctx is cancelled.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	location := s.store.Location()
	dir := filepath.Dir(location)
	prefix := filepath.Base(location)
	if err := w.Add(dir); err != nil {
		return err
	}
	s.logger.Info("watcher: started", slog.String("path", location))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			fire = timer.C
		} else {
			timer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-fire:
			if _, err := s.Reconcile(ctx); err != nil {
				s.logger.Error("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// SQLite writes to -wal and -journal siblings of the database.
			if !strings.HasPrefix(filepath.Base(ev.Name), prefix) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug("watcher: event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
