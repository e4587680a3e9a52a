package watcher

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CheckFSNotify tests whether fsnotify delivers events for dir, which is not
// the case on some network and FUSE mounts. It creates a temporary file in
// dir and reports whether its Create event arrives within timeout.
func CheckFSNotify(dir string, timeout time.Duration) bool {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(dir); err != nil {
		return false
	}

	markerName := fmt.Sprintf(".anisongdb_notifycheck_%d", rand.Int63()) //nolint:gosec // G404: not security-sensitive
	markerPath := filepath.Join(dir, markerName)
	f, err := os.Create(markerPath) //nolint:gosec // G304: name generated above
	if err != nil {
		return false
	}
	_ = f.Close()
	defer os.Remove(markerPath) //nolint:errcheck

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == markerName {
				return true
			}
		case <-w.Errors:
			return false
		case <-timer.C:
			return false
		}
	}
}
