package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reports changes to a fixed set of files.
type ConfigWatcher struct {
	opts      Options
	logger    *slog.Logger
	paths     []string
	watched   map[string]bool
	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher
	debouncer *Debouncer
	events    chan []Event
	stopCh    chan struct{}

	mu             sync.Mutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// New creates a watcher for paths. The files need not exist yet, but their
// directories should; a missing directory forces polling for that file set.
func New(opts Options, logger *slog.Logger, paths ...string) (*ConfigWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("watcher: no paths to watch")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithDefaults()

	w := &ConfigWatcher{
		opts:      opts,
		logger:    logger,
		watched:   make(map[string]bool, len(paths)),
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
		events:    make(chan []Event, opts.EventBufferSize),
		stopCh:    make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		if !w.watched[abs] {
			w.watched[abs] = true
			w.paths = append(w.paths, abs)
		}
	}

	if !opts.ForcePolling {
		fsw, err := w.openFsnotify()
		if err != nil {
			logger.Warn("config_watch_polling_fallback", slog.String("error", err.Error()))
		} else {
			w.fsWatcher = fsw
		}
	}
	if w.fsWatcher == nil {
		w.poller = NewPollingWatcher(opts.PollInterval, w.paths, w.debouncer.Add)
	}

	go w.forward()
	return w, nil
}

func (w *ConfigWatcher) openFsnotify() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return fsw, nil
}

// Start blocks delivering events until ctx is done or Stop is called.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.logger.Info("config_watch_started",
		slog.String("mode", w.Mode()),
		slog.Any("paths", w.paths))

	if w.poller != nil {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-w.stopCh:
				cancel()
			case <-runCtx.Done():
			}
		}()
		w.poller.Run(runCtx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *ConfigWatcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if !w.watched[path] {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(Event{Path: path, Operation: op, Timestamp: time.Now()})
}

// forward owns w.events and closes it once the debouncer is stopped.
func (w *ConfigWatcher) forward() {
	defer close(w.events)
	for batch := range w.debouncer.Output() {
		select {
		case w.events <- batch:
		default:
			n := w.droppedBatches.Add(1)
			w.logger.Warn("config_watch_batch_dropped",
				slog.Int("batch_size", len(batch)),
				slog.Uint64("total_dropped_batches", n))
		}
	}
}

// Events returns debounced batches. Closed after Stop.
func (w *ConfigWatcher) Events() <-chan []Event {
	return w.events
}

// Paths returns the absolute paths being watched.
func (w *ConfigWatcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

// Mode reports "fsnotify" or "polling".
func (w *ConfigWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches returns the number of batches the consumer was too slow for.
func (w *ConfigWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

// Stop releases the watcher. Safe to call multiple times.
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
