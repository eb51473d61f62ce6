package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// replyingTransport parses each sent command and answers it like firmware
// would, via the correlator.
type replyingTransport struct {
	c       *Correlator
	succeed bool
	sendErr error

	mu   sync.Mutex
	sent []locker.CommandPayload
}

func (r *replyingTransport) Kind() locker.TransportKind { return locker.TransportSocket }

func (r *replyingTransport) Send(payload []byte) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	var p locker.CommandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, p)
	r.mu.Unlock()

	go r.c.Resolve(p.RequestID, r.succeed, "done")
	return nil
}

func (r *replyingTransport) Close() error { return nil }

// silentTransport accepts commands and never replies.
type silentTransport struct{}

func (silentTransport) Kind() locker.TransportKind { return locker.TransportSocket }
func (silentTransport) Send([]byte) error          { return nil }
func (silentTransport) Close() error               { return nil }

// captureSink records broadcast events.
type captureSink struct {
	mu     sync.Mutex
	events []CommandEvent
}

func (s *captureSink) BroadcastEvent(kind string, payload any) {
	if kind != locker.EventCellOperation {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := payload.(CommandEvent); ok {
		s.events = append(s.events, ev)
	}
}

func (s *captureSink) last(t *testing.T) CommandEvent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		t.Fatal("no command event broadcast")
	}
	return s.events[len(s.events)-1]
}

// captureTelemetry records command measurements.
type captureTelemetry struct {
	mu      sync.Mutex
	records int
	lastOK  bool
}

func (c *captureTelemetry) RecordCommand(_ string, _ string, _ time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records++
	c.lastOK = success
}

func newTestDispatcher(t *testing.T, tr locker.Transport) (*Dispatcher, *locker.Registry, *Correlator, *captureSink) {
	t.Helper()

	registry := locker.NewRegistry(time.Minute)
	correlator := NewCorrelator(nil)
	d := NewDispatcher(registry, correlator, time.Second, nil)
	sink := &captureSink{}
	d.SetEventSink(sink)

	if tr != nil {
		registry.Register("LOC001", "", nil, tr)
	}
	return d, registry, correlator, sink
}

func TestDispatcher_SuccessfulCommand(t *testing.T) {
	correlatorHolder := &replyingTransport{succeed: true}
	d, _, correlator, sink := newTestDispatcher(t, correlatorHolder)
	correlatorHolder.c = correlator

	tel := &captureTelemetry{}
	d.SetTelemetry(tel)

	res, err := d.Dispatch(context.Background(), "LOC001",
		locker.Command{Type: locker.CommandUnlock, Cell: "A1"}, 0)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Success || res.Timeout {
		t.Errorf("result = %+v, want success", res)
	}
	if res.LockerID != "LOC001" || res.Cell != "A1" {
		t.Errorf("result identity = %+v", res)
	}

	correlatorHolder.mu.Lock()
	sent := correlatorHolder.sent
	correlatorHolder.mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("transport received %d payloads, want 1", len(sent))
	}
	if sent[0].Type != locker.CommandUnlock || sent[0].ID != "LOC001" || sent[0].Cell != "A1" {
		t.Errorf("wire payload = %+v", sent[0])
	}
	if sent[0].RequestID != res.RequestID {
		t.Error("wire request ID does not match the result's")
	}

	ev := sink.last(t)
	if !ev.Success || ev.LockerID != "LOC001" {
		t.Errorf("broadcast event = %+v", ev)
	}
	if tel.records != 1 || !tel.lastOK {
		t.Errorf("telemetry records = %d lastOK = %v", tel.records, tel.lastOK)
	}
}

func TestDispatcher_DeviceReportsFailure(t *testing.T) {
	tr := &replyingTransport{succeed: false}
	d, _, correlator, sink := newTestDispatcher(t, tr)
	tr.c = correlator

	res, err := d.Dispatch(context.Background(), "LOC001",
		locker.Command{Type: locker.CommandLock, Cell: "B2"}, 0)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Success || res.Timeout {
		t.Errorf("result = %+v, want non-timeout failure", res)
	}
	if ev := sink.last(t); ev.Success {
		t.Errorf("broadcast event = %+v, want failure", ev)
	}
}

func TestDispatcher_UnknownLocker(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, nil)

	_, err := d.Dispatch(context.Background(), "ghost",
		locker.Command{Type: locker.CommandUnlock, Cell: "A1"}, 0)
	if !errors.Is(err, locker.ErrLockerNotFound) {
		t.Errorf("Dispatch() error = %v, want ErrLockerNotFound", err)
	}
}

func TestDispatcher_StaleLockerUnreachable(t *testing.T) {
	registry := locker.NewRegistry(30 * time.Millisecond)
	correlator := NewCorrelator(nil)
	d := NewDispatcher(registry, correlator, time.Second, nil)

	registry.Register("LOC001", "", nil, silentTransport{})
	time.Sleep(50 * time.Millisecond)

	_, err := d.Dispatch(context.Background(), "LOC001",
		locker.Command{Type: locker.CommandUnlock, Cell: "A1"}, 0)
	if !errors.Is(err, locker.ErrLockerUnreachable) {
		t.Errorf("Dispatch() error = %v, want ErrLockerUnreachable", err)
	}
	if correlator.PendingCount() != 0 {
		t.Error("unreachable dispatch left a pending entry behind")
	}
}

func TestDispatcher_NoTransportUnreachable(t *testing.T) {
	d, registry, _, _ := newTestDispatcher(t, silentTransport{})
	registry.DropTransport("LOC001", nil) // no-op, transport differs

	tr, _ := registry.Transport("LOC001")
	registry.DropTransport("LOC001", tr)

	_, err := d.Dispatch(context.Background(), "LOC001",
		locker.Command{Type: locker.CommandUnlock, Cell: "A1"}, 0)
	if !errors.Is(err, locker.ErrLockerUnreachable) {
		t.Errorf("Dispatch() error = %v, want ErrLockerUnreachable", err)
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	d, _, correlator, sink := newTestDispatcher(t, silentTransport{})

	start := time.Now()
	res, err := d.Dispatch(context.Background(), "LOC001",
		locker.Command{Type: locker.CommandUnlock, Cell: "A1"}, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Dispatch returned after %v, before the timeout", elapsed)
	}
	if res.Success || !res.Timeout {
		t.Errorf("result = %+v, want timeout", res)
	}
	if ev := sink.last(t); !ev.Timeout {
		t.Errorf("broadcast event = %+v, want timeout", ev)
	}
	if correlator.PendingCount() != 0 {
		t.Error("timed-out dispatch left a pending entry behind")
	}
}

func TestDispatcher_TransportSendFailure(t *testing.T) {
	tr := &replyingTransport{sendErr: locker.ErrQueueFull}
	d, _, correlator, _ := newTestDispatcher(t, tr)
	tr.c = correlator

	res, err := d.Dispatch(context.Background(), "LOC001",
		locker.Command{Type: locker.CommandUnlock, Cell: "A1"}, 0)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Success || res.Timeout {
		t.Errorf("result = %+v, want immediate non-timeout failure", res)
	}
	if correlator.PendingCount() != 0 {
		t.Error("failed send left a pending entry behind")
	}
}

func TestDispatcher_ContextCancelled(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, silentTransport{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := d.Dispatch(ctx, "LOC001",
		locker.Command{Type: locker.CommandUnlock, Cell: "A1"}, time.Hour)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Success {
		t.Errorf("result = %+v, want cancellation failure", res)
	}
}
