package jobfile

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/stewardhq/steward/errors"
	"github.com/stewardhq/steward/store"
)

// ReloadCallback receives the freshly loaded job list after a change to
// the job directory.
type ReloadCallback func(jobs []*store.Job) error

// Watcher watches the job directory and triggers reload callbacks when
// documents are added, modified, or removed.
type Watcher struct {
	dir            string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	log            *zap.SugaredLogger
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
}

// NewWatcher creates a watcher for the given job directory
func NewWatcher(dir string, log *zap.SugaredLogger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, errors.Wrapf(err, "failed to watch job directory %s", dir)
	}

	return &Watcher{
		dir:            dir,
		watcher:        fsWatcher,
		log:            log,
		debouncePeriod: 500 * time.Millisecond, // Debounce rapid file changes
	}, nil
}

// OnReload registers a callback to be called after the directory reloads
func (w *Watcher) OnReload(callback ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching for job document changes
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops watching
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.log.Infow("Job directory changed",
					"file", filepath.Base(event.Name),
					"op", event.Op.String())
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnw("Job watcher error", "error", err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.reload(); err != nil {
			w.log.Errorw("Job reload failed", "error", err)
		}
	})
}

func (w *Watcher) reload() error {
	jobs, err := LoadDir(w.dir, w.log)
	if err != nil {
		return err
	}

	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(jobs); err != nil {
			w.log.Warnw("Job reload callback error", "error", err)
			// Continue calling other callbacks even if one fails
		}
	}

	return nil
}
