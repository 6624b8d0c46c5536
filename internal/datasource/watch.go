package datasource

import (
	"alsolved/internal/logger"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher calls OnChange once a burst of writes to a file has settled.
// It watches the parent directory so that editors replacing the file by
// rename are seen too.
type Watcher struct {
	Path     string
	Debounce time.Duration
	OnChange func()

	fsw   *fsnotify.Watcher
	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(path string, debounce time.Duration, onChange func()) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{Path: path, Debounce: debounce, OnChange: onChange}
}

// Start begins watching until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("datasource: watcher: %w", err)
	}
	dir := filepath.Dir(w.Path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("datasource: watch %s: %w", dir, err)
	}
	w.fsw = fsw
	go w.loop(ctx)
	logger.Info("datasource: watching document", map[string]interface{}{"path": w.Path, "debounce": w.Debounce.String()})
	return nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	target := filepath.Clean(w.Path)
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("datasource: watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, func() {
		logger.Info("datasource: document changed", map[string]interface{}{"path": w.Path})
		w.OnChange()
	})
}
