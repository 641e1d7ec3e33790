package hud

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chathud/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher calls onChange when the database file, or its WAL, is written.
// It watches the parent directory so the file may not exist yet.
type Watcher struct {
	target   string
	parent   string
	onChange func()
	fsw      *fsnotify.Watcher
	debounce *Debouncer
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewWatcher creates a watcher for dbPath. Bursts of events within delay
// collapse into one onChange call.
func NewWatcher(dbPath string, delay time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	target := filepath.Clean(dbPath)
	return &Watcher{
		target:   target,
		parent:   filepath.Dir(target),
		onChange: onChange,
		fsw:      fsw,
		debounce: NewDebouncer(delay),
	}, nil
}

// Start begins watching until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.fsw.Add(w.parent); err != nil {
		return fmt.Errorf("watch %s: %w", w.parent, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx)
	logging.HUD("watching %s for external writes", w.target)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fsw.Close()
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.debounce.Cancel()
	return w.fsw.Close()
}

func (w *Watcher) matches(name string) bool {
	name = filepath.Clean(name)
	return name == w.target || strings.HasPrefix(name, w.target+"-")
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.matches(ev.Name) || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			logging.HUDDebug("store changed: %s", ev)
			w.debounce.Debounce(w.onChange)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryHUD).Warn("watcher error: %v", err)
		}
	}
}
