package locker

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeStore records upserted lockers, optionally blocking until released.
type fakeStore struct {
	mu      sync.Mutex
	upserts []Locker
	block   chan struct{} // when non-nil, UpsertLocker waits on it
}

func (f *fakeStore) UpsertLocker(_ context.Context, l Locker) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, l)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func TestAsyncMirror_WritesThrough(t *testing.T) {
	store := &fakeStore{}
	m := NewAsyncMirror(store, 8, nil)
	m.Start()

	m.LockerChanged(Locker{DeviceID: "LOC001"})
	m.LockerChanged(Locker{DeviceID: "LOC002"})
	m.Close()

	if store.count() != 2 {
		t.Fatalf("store received %d upserts, want 2", store.count())
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.upserts[0].DeviceID != "LOC001" || store.upserts[1].DeviceID != "LOC002" {
		t.Errorf("upserts out of order: %v", store.upserts)
	}
}

func TestAsyncMirror_DropsWhenFull(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	m := NewAsyncMirror(store, 1, nil)
	m.Start()

	// First update is picked up by the worker and parks on the blocked
	// store, second fills the queue, third must be dropped silently.
	m.LockerChanged(Locker{DeviceID: "a"})
	time.Sleep(20 * time.Millisecond)
	m.LockerChanged(Locker{DeviceID: "b"})
	m.LockerChanged(Locker{DeviceID: "c"})

	close(store.block)
	m.Close()

	if store.count() != 2 {
		t.Errorf("store received %d upserts, want 2 (one dropped)", store.count())
	}
}

func TestAsyncMirror_CloseDrainsQueue(t *testing.T) {
	store := &fakeStore{}
	m := NewAsyncMirror(store, 16, nil)
	m.Start()

	for i := 0; i < 10; i++ {
		m.LockerChanged(Locker{DeviceID: "LOC001"})
	}
	m.Close()

	if store.count() != 10 {
		t.Errorf("store received %d upserts after Close, want 10", store.count())
	}
}
