package workspace

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"agentforge/pkg/logx"
)

// Watcher reports on-disk changes under a DirStore root. Each relevant event
// invokes onChange with the store-relative path; callers are expected to
// debounce (the retrieval service does).
type Watcher struct {
	store    *DirStore
	watcher  *fsnotify.Watcher
	onChange func(path string)
	logger   *logx.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher over every non-ignored directory of store.
func NewWatcher(store *DirStore, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		store:    store,
		watcher:  fw,
		onChange: onChange,
		logger:   logx.NewLogger("watcher"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := w.watchDirRecursive(store.Root()); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// watchDirRecursive adds root and all non-ignored subdirectories.
func (w *Watcher) watchDirRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !entry.IsDir() {
			return nil
		}
		if p != root && w.store.Ignored(entry.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("Cannot watch %s: %v", p, err)
		}
		return nil
	})
}

// Start begins processing events in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, err := w.store.Rel(event.Name)
	if err != nil {
		return
	}
	for _, part := range strings.Split(rel, "/") {
		if w.store.Ignored(part) {
			return
		}
	}
	if event.Has(fsnotify.Create) {
		// New directories need their own watch.
		_ = w.watchDirRecursive(event.Name)
	}
	w.logger.Debug("%s %s", event.Op, rel)
	if w.onChange != nil {
		w.onChange(rel)
	}
}
