package safety

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"drift/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// RuleWatcher reloads the user rules file when it changes on disk, so a
// long-lived process picks up new patterns without a restart. A load error
// keeps the previous rule set active.
//
// Events are debounced: editors fire several events per save, and the file
// may be mid-write when the first one lands. A change is applied only after
// the file has been quiet for the debounce window.
type RuleWatcher struct {
	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	classifier *Classifier
	rulesPath  string
	pendingAt  time.Time
	debounce   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool
}

// NewRuleWatcher creates a watcher for the given rules file. The file does
// not need to exist yet; its directory is watched so creation is seen.
func NewRuleWatcher(classifier *Classifier, rulesPath string) (*RuleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &RuleWatcher{
		watcher:    watcher,
		classifier: classifier,
		rulesPath:  rulesPath,
		debounce:   500 * time.Millisecond,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *RuleWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.rulesPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.SafetyWarn("rule watcher: failed to create %s: %v (continuing)", dir, err)
	}
	if err := w.watcher.Add(dir); err != nil {
		logging.SafetyWarn("rule watcher: initial watch failed: %v", err)
	} else {
		logging.Safety("rule watcher: watching %s", w.rulesPath)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *RuleWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategorySafety).Error("rule watcher: close failed: %v", err)
	}
}

func (w *RuleWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategorySafety).Error("rule watcher: %v", err)
		case <-ticker.C:
			w.processSettled()
		}
	}
}

// handleEvent records a change to the rules file; it is applied once the
// file has settled. Events for other files in the directory are ignored.
func (w *RuleWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.rulesPath) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pendingAt = time.Now()
	w.mu.Unlock()
}

// processSettled applies a pending change once the debounce window has
// passed with no further events.
func (w *RuleWatcher) processSettled() {
	w.mu.Lock()
	if w.pendingAt.IsZero() || time.Since(w.pendingAt) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pendingAt = time.Time{}
	w.mu.Unlock()

	if _, err := os.Stat(w.rulesPath); os.IsNotExist(err) {
		w.classifier.ResetUserRules()
		logging.Safety("rule watcher: rules file removed, built-ins restored")
		return
	}

	if err := w.classifier.LoadUserRules(w.rulesPath); err != nil {
		logging.SafetyWarn("rule watcher: reload failed, keeping previous rules: %v", err)
		return
	}
	logging.Safety("rule watcher: rules reloaded from %s", w.rulesPath)
}
