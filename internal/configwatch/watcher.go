// Package configwatch notifies the service when its configuration file changes.
package configwatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/stagehand/pkg/lifecycle"
	"github.com/bft-labs/stagehand/pkg/log"
)

// ChangeFunc is called after the watched file settles following a change.
type ChangeFunc func(ctx context.Context, path string)

// Config holds configuration options for the watcher.
type Config struct {
	Name string

	// Path is the file to watch. Its directory is watched so that editors
	// replacing the file atomically are still observed.
	Path string

	// DebounceDelay is the delay to wait after a file change before notifying.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	OnChange ChangeFunc
	Logger   log.Logger
}

// Watcher is a lifecycle component running an fsnotify loop between Start and Stop.
type Watcher struct {
	*lifecycle.Base
	cfg Config

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// New creates a watcher component.
func New(cfg Config, opts ...lifecycle.Option) *Watcher {
	if cfg.Name == "" {
		cfg.Name = "config watcher"
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	w := &Watcher{cfg: cfg}
	opts = append([]lifecycle.Option{lifecycle.WithLogger(cfg.Logger)}, opts...)
	w.Base = lifecycle.NewBase(cfg.Name, lifecycle.Hooks{
		Initialize: w.initialize,
		Start:      w.start,
		Stop:       w.stop,
		Terminate:  w.stop,
	}, opts...)
	return w
}

func (w *Watcher) initialize(context.Context, *lifecycle.Monitor) error {
	if w.cfg.Path == "" {
		return errors.New("config path is required")
	}
	if w.cfg.OnChange == nil {
		return errors.New("change handler is required")
	}
	return nil
}

func (w *Watcher) start(ctx context.Context, _ *lifecycle.Monitor) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(w.cfg.Path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// The loop outlives the Start call, so it must not inherit its deadline.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(loopCtx, fw)

	w.Logger().Info("watching configuration", log.String("path", w.cfg.Path))
	return nil
}

// stop returns once the loop and any change callback in progress have finished.
func (w *Watcher) stop(context.Context, *lifecycle.Monitor) error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	w.mu.Lock()
	w.dropPending()
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

// dropPending cancels a scheduled callback that has not fired. Callers hold mu.
func (w *Watcher) dropPending() {
	if w.debounce != nil && w.debounce.Stop() {
		w.wg.Done()
	}
	w.debounce = nil
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	target := filepath.Base(w.cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceNotify(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.Logger().Error("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) debounceNotify(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	w.dropPending()

	w.wg.Add(1)
	w.debounce = time.AfterFunc(w.cfg.DebounceDelay, func() {
		defer w.wg.Done()
		if ctx.Err() != nil {
			return
		}
		w.cfg.OnChange(ctx, w.cfg.Path)
	})
}

var _ lifecycle.Component = (*Watcher)(nil)
