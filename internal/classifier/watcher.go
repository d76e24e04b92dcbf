package classifier

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shopdesk/internal/logging"
)

// TableWatcher watches a curated phrase-table file and hot-reloads it into a
// Classifier. Rapid editor saves are debounced; a file that fails to parse is
// logged and the previous table stays active.
type TableWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	classifier  *Classifier
	tablePath   string
	debounceDur time.Duration
	lastReload  time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewTableWatcher creates a watcher for the given phrase-table path.
func NewTableWatcher(tablePath string, c *Classifier) (*TableWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &TableWatcher{
		watcher:     watcher,
		classifier:  c,
		tablePath:   tablePath,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. The containing directory is watched rather than the
// file itself so atomic rename-style saves are still observed.
func (w *TableWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.tablePath)); err != nil {
		return err
	}
	w.running = true
	go w.loop()
	logging.Classifier("TableWatcher: watching %s", w.tablePath)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *TableWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *TableWatcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.tablePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.maybeReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Classifier("TableWatcher: watch error: %v", err)
		}
	}
}

func (w *TableWatcher) maybeReload() {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	table, err := LoadTable(w.tablePath)
	if err != nil {
		logging.Classifier("TableWatcher: reload failed, keeping previous table: %v", err)
		return
	}
	w.classifier.SetTable(table)
}
