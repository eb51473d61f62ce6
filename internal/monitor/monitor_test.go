package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Drrein86/lockerweb-core/internal/dispatch"
	"github.com/Drrein86/lockerweb-core/internal/locker"
)

type captureSink struct {
	mu     sync.Mutex
	events []locker.ConnectionEvent
}

func (s *captureSink) BroadcastEvent(kind string, payload any) {
	if kind != locker.EventLockerConnection {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := payload.(locker.ConnectionEvent); ok {
		s.events = append(s.events, ev)
	}
}

func (s *captureSink) snapshot() []locker.ConnectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]locker.ConnectionEvent(nil), s.events...)
}

func TestMonitor_SweepEmitsDisconnectOnce(t *testing.T) {
	registry := locker.NewRegistry(30 * time.Millisecond)
	sink := &captureSink{}
	m := New(Config{
		Registry:      registry,
		Sink:          sink,
		SweepInterval: time.Minute,
		PendingMaxAge: time.Minute,
	})

	registry.Register("LOC001", "", nil, nil)
	registry.Register("LOC002", "", nil, nil)
	time.Sleep(50 * time.Millisecond)
	registry.Heartbeat("LOC002", nil)

	m.Sweep()

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("got %d disconnect events, want 1: %v", len(events), events)
	}
	if events[0].LockerID != "LOC001" || events[0].Connected {
		t.Errorf("event = %+v, want LOC001 disconnected", events[0])
	}

	// The transition already happened; further sweeps stay silent.
	m.Sweep()
	m.Sweep()
	if events := sink.snapshot(); len(events) != 1 {
		t.Errorf("repeat sweeps emitted extra events: %v", events)
	}
}

func TestMonitor_SilentLockerUnreachableBeforeSweep(t *testing.T) {
	registry := locker.NewRegistry(30 * time.Millisecond)
	m := New(Config{
		Registry:      registry,
		SweepInterval: time.Minute,
	})

	registry.Register("LOC001", "", nil, nil)
	time.Sleep(50 * time.Millisecond)

	// Reachability must flip before any sweep runs.
	if registry.IsOnline("LOC001") {
		t.Error("silent locker still online before the sweep")
	}
	m.Sweep()
	if registry.IsOnline("LOC001") {
		t.Error("silent locker online after the sweep")
	}
}

func TestMonitor_SweepReapsStalePending(t *testing.T) {
	registry := locker.NewRegistry(time.Minute)
	correlator := dispatch.NewCorrelator(nil)
	m := New(Config{
		Registry:      registry,
		Correlator:    correlator,
		SweepInterval: time.Minute,
		PendingMaxAge: 10 * time.Millisecond,
	})

	_, ch := correlator.Issue("LOC001", "A1", locker.CommandUnlock, time.Hour)
	time.Sleep(30 * time.Millisecond)

	m.Sweep()

	select {
	case res := <-ch:
		if !res.Timeout {
			t.Errorf("result = %+v, want timeout", res)
		}
	case <-time.After(time.Second):
		t.Fatal("stale pending entry was not reaped")
	}
	if correlator.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after sweep, want 0", correlator.PendingCount())
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	registry := locker.NewRegistry(time.Minute)
	m := New(Config{
		Registry:      registry,
		SweepInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
