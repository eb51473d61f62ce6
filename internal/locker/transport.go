package locker

import (
	"sync"

	"github.com/gorilla/websocket"
)

// TransportKind identifies how a locker controller is connected.
type TransportKind string

// Transport kinds.
const (
	TransportSocket TransportKind = "socket"
	TransportPoll   TransportKind = "poll"
)

// Transport delivers outbound payloads to one locker controller. A locker
// has at most one transport at a time; re-registration replaces it.
type Transport interface {
	// Kind reports how the controller is connected.
	Kind() TransportKind

	// Send hands the payload to the controller. For a socket transport the
	// write happens immediately; for a poll transport the payload is queued
	// until the next poll. A nil error means accepted, not acknowledged.
	Send(payload []byte) error

	// Close releases the transport. Safe to call more than once.
	Close() error
}

// socketWriter is the subset of *websocket.Conn the transport needs,
// split out so tests can substitute a fake.
type socketWriter interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SocketTransport sends over a live websocket connection. Writes are
// serialised with a mutex because gorilla connections permit only one
// concurrent writer.
type SocketTransport struct {
	mu     sync.Mutex
	conn   socketWriter
	closed bool
}

// NewSocketTransport wraps an upgraded websocket connection.
func NewSocketTransport(conn *websocket.Conn) *SocketTransport {
	return &SocketTransport{conn: conn}
}

// newSocketTransport is the test seam.
func newSocketTransport(conn socketWriter) *SocketTransport {
	return &SocketTransport{conn: conn}
}

// Kind implements Transport.
func (t *SocketTransport) Kind() TransportKind { return TransportSocket }

// Send implements Transport.
func (t *SocketTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close implements Transport.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// PollQueue buffers outbound payloads for a controller that connects by
// periodic HTTP polling. The queue is bounded; when full, Send fails with
// ErrQueueFull and the caller reports the command as a transport failure
// rather than letting backlog grow without limit.
type PollQueue struct {
	mu     sync.Mutex
	items  [][]byte
	max    int
	closed bool
}

// NewPollQueue creates a queue holding at most max payloads.
func NewPollQueue(max int) *PollQueue {
	if max <= 0 {
		max = 1
	}
	return &PollQueue{max: max}
}

// Kind implements Transport.
func (q *PollQueue) Kind() TransportKind { return TransportPoll }

// Send implements Transport.
func (q *PollQueue) Send(payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrTransportClosed
	}
	if len(q.items) >= q.max {
		return ErrQueueFull
	}
	q.items = append(q.items, payload)
	return nil
}

// Drain returns all queued payloads in FIFO order and empties the queue.
// Called by the poll endpoint on each device poll.
func (q *PollQueue) Drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of queued payloads.
func (q *PollQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close implements Transport. Queued payloads are discarded.
func (q *PollQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	return nil
}
