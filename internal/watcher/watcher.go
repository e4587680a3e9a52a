// Package watcher reloads the in-memory data when the database file is
// replaced on disk.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/anisongdb/internal/event"
)

// ReloadFunc reloads everything derived from the database file.
type ReloadFunc func(ctx context.Context) error

// fingerprint identifies one version of the database file.
type fingerprint struct {
	info    os.FileInfo
	size    int64
	modTime time.Time
}

func (f fingerprint) same(o fingerprint) bool {
	if f.info == nil || o.info == nil {
		return f.info == nil && o.info == nil
	}
	return os.SameFile(f.info, o.info) && f.size == o.size && f.modTime.Equal(o.modTime)
}

func stat(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{info: info, size: info.Size(), modTime: info.ModTime()}
}

// Service watches the database file and calls the reload function once the
// file has settled after being replaced or rewritten.
type Service struct {
	path     string
	reload   ReloadFunc
	eventBus *event.Bus
	logger   *slog.Logger

	debounce     time.Duration
	pollInterval time.Duration
	checkTimeout time.Duration

	mu   sync.Mutex
	last fingerprint
}

// NewService creates a watcher for the database file at path.
func NewService(path string, reload ReloadFunc, eventBus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		path:         filepath.Clean(path),
		reload:       reload,
		eventBus:     eventBus,
		logger:       logger.With("component", "db-watcher"),
		debounce:     2 * time.Second,
		pollInterval: time.Minute,
		checkTimeout: 2 * time.Second,
	}
}

// SetDebounce overrides the settle delay.
func (s *Service) SetDebounce(d time.Duration) {
	if d > 0 {
		s.debounce = d
	}
}

// SetPollInterval overrides how often the file is checked when fsnotify
// does not work for its directory.
func (s *Service) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Start blocks until ctx is canceled. The parent directory is watched so
// that a file moved over the database is seen. If fsnotify is unavailable
// there, the file is polled instead.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.last = stat(s.path)
	s.mu.Unlock()

	dir := filepath.Dir(s.path)
	var eventCh <-chan fsnotify.Event
	var errCh <-chan error

	if CheckFSNotify(dir, s.checkTimeout) {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
		}
		if err != nil {
			s.logger.Warn("fsnotify unavailable, polling database file", "path", s.path, "error", err)
			if w != nil {
				w.Close() //nolint:errcheck
			}
		} else {
			defer w.Close() //nolint:errcheck
			eventCh, errCh = w.Events, w.Errors
		}
	} else {
		s.logger.Warn("fsnotify does not deliver events here, polling database file", "dir", dir)
	}

	var pollCh <-chan time.Time
	if eventCh == nil {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		pollCh = ticker.C
	}

	// Starts stopped; every relevant event pushes it back.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false
	arm := func() {
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.debounce)
		pending = true
	}

	s.logger.Info("database watcher starting", "path", s.path, "polling", eventCh == nil)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("database watcher stopping")
			return

		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if s.relevant(ev) {
				arm()
			}

		case err, ok := <-errCh:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-pollCh:
			if s.changed() {
				arm()
			}

		case <-debounceTimer.C:
			if pending {
				pending = false
				s.check(ctx)
			}
		}
	}
}

// relevant reports whether ev touches the database file itself. WAL and
// shared-memory files are ignored.
func (s *Service) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != s.path {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}

func (s *Service) changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !stat(s.path).same(s.last)
}

// check reloads if the file differs from the last version seen. A missing
// file is left alone until something appears at the path again.
func (s *Service) check(ctx context.Context) {
	cur := stat(s.path)
	s.mu.Lock()
	unchanged := cur.same(s.last)
	s.mu.Unlock()
	if unchanged {
		return
	}
	if cur.info == nil {
		s.logger.Warn("database file missing, waiting for replacement", "path", s.path)
		return
	}

	s.logger.Info("database file changed, reloading", "path", s.path, "size", cur.size)
	start := time.Now()
	if err := s.reload(ctx); err != nil {
		s.logger.Error("reload after database change failed", "error", err)
		return
	}

	s.mu.Lock()
	s.last = cur
	s.mu.Unlock()

	s.eventBus.Publish(event.Event{
		Type: event.DatabaseChanged,
		Data: map[string]any{
			"path":        s.path,
			"size":        cur.size,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
}
