package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// pending is one in-flight command awaiting its device reply.
type pending struct {
	lockerID string
	cell     string
	cmdType  locker.CommandType
	ch       chan locker.Result
	timer    *time.Timer
	created  time.Time
}

// Correlator matches device replies to the commands that caused them.
//
// Issue registers a pending entry under a fresh request ID; exactly one of
// Resolve (reply arrived) or the expiry timer (reply never came) consumes
// it. The take is a delete under the mutex, so a reply racing its own
// timeout fulfils the waiter exactly once and the loser finds nothing.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pending
	logger  locker.Logger
}

// NewCorrelator creates an empty correlator.
func NewCorrelator(logger locker.Logger) *Correlator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Correlator{
		pending: make(map[string]*pending),
		logger:  logger,
	}
}

// Issue registers a pending command and returns its request ID together
// with the channel the eventual Result is delivered on. The channel is
// buffered so fulfilment never blocks; it receives exactly one Result.
func (c *Correlator) Issue(lockerID, cell string, cmdType locker.CommandType, timeout time.Duration) (string, <-chan locker.Result) {
	id := uuid.NewString()
	p := &pending{
		lockerID: lockerID,
		cell:     cell,
		cmdType:  cmdType,
		ch:       make(chan locker.Result, 1),
		created:  time.Now(),
	}

	// Insert before arming the timer so an immediately-firing timer can
	// always find its entry. The timer callback runs on its own goroutine
	// and blocks on the mutex until the insert is visible.
	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() { c.expire(id) })
	c.mu.Unlock()

	return id, p.ch
}

// Resolve fulfils a pending command with a device reply. Returns false
// when the request ID is unknown, already resolved or already timed out;
// such late or duplicate replies are dropped.
func (c *Correlator) Resolve(requestID string, success bool, message string) bool {
	p := c.take(requestID)
	if p == nil {
		return false
	}
	p.timer.Stop()

	p.ch <- locker.Result{
		Success:   success,
		Message:   message,
		LockerID:  p.lockerID,
		Cell:      p.cell,
		RequestID: requestID,
	}
	return true
}

// expire fulfils a pending command with a timeout result. Called from the
// entry's timer.
func (c *Correlator) expire(requestID string) {
	p := c.take(requestID)
	if p == nil {
		return
	}

	c.logger.Warn("command timed out",
		"request_id", requestID,
		"device_id", p.lockerID,
		"cell", p.cell,
		"type", p.cmdType,
	)
	p.ch <- locker.Result{
		Success:   false,
		Timeout:   true,
		Message:   "no response from locker",
		LockerID:  p.lockerID,
		Cell:      p.cell,
		RequestID: requestID,
	}
}

// take atomically removes and returns a pending entry, or nil.
func (c *Correlator) take(requestID string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[requestID]
	if !ok {
		return nil
	}
	delete(c.pending, requestID)
	return p
}

// PendingCount reports the number of commands still awaiting replies.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SweepStale force-expires entries older than maxAge. The per-entry timer
// normally handles expiry; this is the periodic backstop that keeps the
// map from accumulating entries if a timer is ever lost.
func (c *Correlator) SweepStale(maxAge time.Duration) int {
	c.mu.Lock()
	cutoff := time.Now().Add(-maxAge)
	var stale []string
	for id, p := range c.pending {
		if p.created.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		c.expire(id)
	}
	return len(stale)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
