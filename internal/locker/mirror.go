package locker

import (
	"context"
	"sync"
	"time"
)

// writeTimeout bounds a single mirror write so a wedged database cannot
// stall the drain worker forever.
const writeTimeout = 5 * time.Second

// MirrorStore is the persistence half of the mirror. *Store is the
// production implementation.
type MirrorStore interface {
	UpsertLocker(ctx context.Context, l Locker) error
}

// AsyncMirror decouples registry updates from disk. LockerChanged enqueues
// a copy and returns immediately; a single worker drains the queue in the
// background. When the queue is full the update is dropped with a warning,
// never blocking the caller. A later update for the same locker supersedes
// the dropped one anyway.
type AsyncMirror struct {
	store  MirrorStore
	queue  chan Locker
	logger Logger

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewAsyncMirror creates a mirror draining into store with the given
// queue capacity. Call Start to launch the worker.
func NewAsyncMirror(store MirrorStore, queueSize int, logger Logger) *AsyncMirror {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &AsyncMirror{
		store:   store,
		queue:   make(chan Locker, queueSize),
		logger:  logger,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the drain worker.
func (m *AsyncMirror) Start() {
	go m.run()
}

// LockerChanged implements Mirror. Never blocks.
func (m *AsyncMirror) LockerChanged(l Locker) {
	select {
	case m.queue <- l:
	default:
		m.logger.Warn("mirror queue full, dropping update", "device_id", l.DeviceID)
	}
}

// Close stops the worker after draining whatever is already queued.
func (m *AsyncMirror) Close() {
	m.stopOnce.Do(func() { close(m.stopped) })
	<-m.done
}

func (m *AsyncMirror) run() {
	defer close(m.done)

	for {
		select {
		case l := <-m.queue:
			m.write(l)
		case <-m.stopped:
			// Drain remaining items, then exit.
			for {
				select {
				case l := <-m.queue:
					m.write(l)
				default:
					return
				}
			}
		}
	}
}

func (m *AsyncMirror) write(l Locker) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := m.store.UpsertLocker(ctx, l); err != nil {
		m.logger.Warn("mirror write failed", "device_id", l.DeviceID, "error", err)
	}
}
