package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the bound config file on change and invokes onChange
// after each successful reload. Its debounced shape is grounded on the
// untoldecay-BeadsLog fork's FileWatcher (cmd/bd/daemon_watcher.go):
// watch the parent directory rather than the file itself (editors often
// replace-via-rename, which drops the original inode from a direct
// watch). An fsnotify setup failure is returned to the caller as an
// error rather than turning into a silent no-op.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	stop    chan struct{}
}

// WatchConfigFile starts watching path's parent directory for writes to
// path and calls onChange after each one, debounced to debounce. The
// returned Watcher must be closed with Stop when no longer needed. If
// the underlying filesystem watcher cannot be created, WatchConfigFile
// returns an error rather than silently degrading, since callers
// that asked for hot reload need to know it isn't active.
func WatchConfigFile(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, path: filepath.Clean(path), stop: make(chan struct{})}
	go w.run(debounce, onChange)
	return w, nil
}

func (w *Watcher) run(debounce time.Duration, onChange func()) {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := BindConfigFile(w.path); err != nil {
					log.Printf("config: reload of %s failed: %v", w.path, err)
					return
				}
				onChange()
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		case <-w.stop:
			return
		}
	}
}

// Stop releases the underlying filesystem watcher.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
}
