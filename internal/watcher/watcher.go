package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 2 * time.Second

// Watcher watches catalogued source folders and reports settled changes.
// A recording being copied in arrives as a burst of writes, so events are
// debounced per source and only the quiet end of a burst triggers the
// callback.
type Watcher struct {
	fs       *fsnotify.Watcher
	logger   *slog.Logger
	onChange func(sourceID string)

	mu       sync.Mutex
	debounce time.Duration
	sources  map[string]string      // watched path -> source id
	pending  map[string]*time.Timer // source id -> debounce timer
	closed   bool
}

// New starts a watcher. The callback runs on a timer goroutine once a
// source folder has been quiet for the debounce window.
func New(logger *slog.Logger, onChange func(sourceID string)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fs:       fs,
		logger:   logger,
		onChange: onChange,
		debounce: defaultDebounce,
		sources:  make(map[string]string),
		pending:  make(map[string]*time.Timer),
	}
	go w.loop()
	return w, nil
}

// Add registers a source folder. Watching is not recursive; recordings
// land directly in the folder.
func (w *Watcher) Add(sourceID, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher closed")
	}

	clean := filepath.Clean(path)
	if _, ok := w.sources[clean]; ok {
		return nil
	}
	if err := w.fs.Add(clean); err != nil {
		return fmt.Errorf("watch %s: %w", clean, err)
	}

	w.sources[clean] = sourceID
	w.logger.Info("watching source folder", "source_id", sourceID, "path", clean)
	return nil
}

// Remove stops watching the folders of a source and drops its pending
// debounce timer.
func (w *Watcher) Remove(sourceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, id := range w.sources {
		if id != sourceID {
			continue
		}
		if err := w.fs.Remove(path); err != nil {
			w.logger.Warn("unwatch failed", "path", path, "error", err)
		}
		delete(w.sources, path)
	}
	if t, ok := w.pending[sourceID]; ok {
		t.Stop()
		delete(w.pending, sourceID)
	}
}

// Sync reconciles the watch set against the catalogue, keyed source id to
// folder path. Folders that reappeared after going offline get watched
// again on the next call.
func (w *Watcher) Sync(want map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	wantPaths := make(map[string]string, len(want))
	for id, path := range want {
		wantPaths[filepath.Clean(path)] = id
	}

	for path, id := range w.sources {
		if wantID, ok := wantPaths[path]; ok && wantID == id {
			continue
		}
		if err := w.fs.Remove(path); err != nil {
			w.logger.Warn("unwatch failed", "path", path, "error", err)
		}
		delete(w.sources, path)
		if t, ok := w.pending[id]; ok {
			t.Stop()
			delete(w.pending, id)
		}
	}

	for path, id := range wantPaths {
		if _, ok := w.sources[path]; ok {
			continue
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("watch failed", "source_id", id, "path", path, "error", err)
			continue
		}
		w.sources[path] = id
		w.logger.Info("watching source folder", "source_id", id, "path", path)
	}
}

// Close stops watching. Pending debounce timers are cancelled; a timer
// that already fired may still deliver one callback.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()

	return w.fs.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}

	clean := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	// The watched folder itself going away takes the kernel watch with it;
	// forget the path so Sync can rewatch when it comes back.
	if id, ok := w.sources[clean]; ok {
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			delete(w.sources, clean)
			w.logger.Warn("source folder disappeared", "source_id", id, "path", clean)
		}
		return
	}

	sourceID, ok := w.sources[filepath.Dir(clean)]
	if !ok {
		return
	}

	if t, exists := w.pending[sourceID]; exists {
		t.Reset(w.debounce)
		return
	}
	w.pending[sourceID] = time.AfterFunc(w.debounce, func() { w.settled(sourceID) })
}

func (w *Watcher) settled(sourceID string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, sourceID)
	w.mu.Unlock()

	w.logger.Info("source folder changed", "source_id", sourceID)
	if w.onChange != nil {
		w.onChange(sourceID)
	}
}
