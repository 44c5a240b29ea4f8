package watcher

import (
	"context"
	"os"
	"sync"
	"time"
)

// PollingWatcher stats a fixed set of files on an interval. Used where
// fsnotify cannot be created.
type PollingWatcher struct {
	interval time.Duration
	paths    []string
	emit     func(Event)

	mu    sync.Mutex
	state map[string]fileSnapshot
}

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a poller for paths. emit receives every change.
func NewPollingWatcher(interval time.Duration, paths []string, emit func(Event)) *PollingWatcher {
	p := &PollingWatcher{
		interval: interval,
		paths:    paths,
		emit:     emit,
		state:    make(map[string]fileSnapshot, len(paths)),
	}
	for _, path := range paths {
		p.state[path] = snapshot(path)
	}
	return p
}

// Run polls until ctx is done.
func (p *PollingWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll compares every path with its last snapshot and emits the changes.
func (p *PollingWatcher) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for _, path := range p.paths {
		prev := p.state[path]
		cur := snapshot(path)
		p.state[path] = cur

		switch {
		case !prev.exists && cur.exists:
			p.emit(Event{Path: path, Operation: OpCreate, Timestamp: now})
		case prev.exists && !cur.exists:
			p.emit(Event{Path: path, Operation: OpDelete, Timestamp: now})
		case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
			p.emit(Event{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
}

func snapshot(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}
