package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

func TestCorrelator_ResolveDeliversResult(t *testing.T) {
	c := NewCorrelator(nil)

	id, ch := c.Issue("LOC001", "A1", locker.CommandUnlock, time.Second)
	if id == "" {
		t.Fatal("Issue() returned empty request ID")
	}

	if !c.Resolve(id, true, "opened") {
		t.Fatal("Resolve() = false for a live entry")
	}

	select {
	case res := <-ch:
		if !res.Success || res.Timeout {
			t.Errorf("result = %+v, want success", res)
		}
		if res.LockerID != "LOC001" || res.Cell != "A1" || res.RequestID != id {
			t.Errorf("result identity = %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("no result delivered after Resolve")
	}

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after resolve, want 0", c.PendingCount())
	}
}

func TestCorrelator_ResolveUnknownID(t *testing.T) {
	c := NewCorrelator(nil)

	if c.Resolve("no-such-id", true, "") {
		t.Error("Resolve() = true for unknown request ID")
	}
}

func TestCorrelator_ResolveIsIdempotent(t *testing.T) {
	c := NewCorrelator(nil)

	id, ch := c.Issue("LOC001", "A1", locker.CommandUnlock, time.Second)
	if !c.Resolve(id, true, "") {
		t.Fatal("first Resolve() = false")
	}
	if c.Resolve(id, false, "duplicate") {
		t.Error("second Resolve() = true, duplicate reply was accepted")
	}

	res := <-ch
	if !res.Success {
		t.Error("duplicate reply overwrote the first result")
	}
	select {
	case extra := <-ch:
		t.Errorf("channel delivered a second result: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCorrelator_TimeoutFulfilsWaiter(t *testing.T) {
	c := NewCorrelator(nil)

	id, ch := c.Issue("LOC001", "A1", locker.CommandUnlock, 50*time.Millisecond)

	select {
	case res := <-ch:
		if res.Success || !res.Timeout {
			t.Errorf("result = %+v, want timeout failure", res)
		}
		if res.RequestID != id {
			t.Errorf("RequestID = %q, want %q", res.RequestID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}

	// A reply arriving after expiry finds nothing to fulfil.
	if c.Resolve(id, true, "late") {
		t.Error("Resolve() = true after the entry expired")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestCorrelator_ResolveBeatsTimeout(t *testing.T) {
	c := NewCorrelator(nil)

	id, ch := c.Issue("LOC001", "A1", locker.CommandUnlock, 80*time.Millisecond)
	if !c.Resolve(id, true, "") {
		t.Fatal("Resolve() = false before the timeout")
	}

	res := <-ch
	if !res.Success || res.Timeout {
		t.Errorf("result = %+v, want success", res)
	}

	// Wait past the original deadline; the stopped timer must not deliver
	// a second, contradictory result.
	select {
	case extra := <-ch:
		t.Errorf("late timer delivered a second result: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCorrelator_ConcurrentResolveRace(t *testing.T) {
	c := NewCorrelator(nil)

	for i := 0; i < 50; i++ {
		id, ch := c.Issue("LOC001", "A1", locker.CommandUnlock, time.Second)

		var wg sync.WaitGroup
		wins := make(chan bool, 2)
		for k := 0; k < 2; k++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.Resolve(id, true, "") {
					wins <- true
				}
			}()
		}
		wg.Wait()
		close(wins)

		var count int
		for range wins {
			count++
		}
		if count != 1 {
			t.Fatalf("iteration %d: %d resolvers won, want exactly 1", i, count)
		}
		<-ch
	}
}

func TestCorrelator_ImmediateTimeoutNeverStrands(t *testing.T) {
	c := NewCorrelator(nil)

	// A timer this short fires while Issue is still returning; the entry
	// must already be in the map so expiry delivers instead of stranding
	// it for the sweep.
	for i := 0; i < 200; i++ {
		_, ch := c.Issue("LOC001", "A1", locker.CommandUnlock, time.Nanosecond)

		select {
		case res := <-ch:
			if !res.Timeout {
				t.Fatalf("iteration %d: result = %+v, want timeout", i, res)
			}
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: entry stranded, no timeout delivered", i)
		}
	}

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestCorrelator_SweepStale(t *testing.T) {
	c := NewCorrelator(nil)

	// Long timer so only the sweep can expire it.
	_, ch := c.Issue("LOC001", "A1", locker.CommandUnlock, time.Hour)
	time.Sleep(30 * time.Millisecond)

	if n := c.SweepStale(10 * time.Millisecond); n != 1 {
		t.Fatalf("SweepStale() = %d, want 1", n)
	}

	select {
	case res := <-ch:
		if !res.Timeout {
			t.Errorf("result = %+v, want timeout", res)
		}
	case <-time.After(time.Second):
		t.Fatal("swept entry delivered no result")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after sweep, want 0", c.PendingCount())
	}
}

func TestCorrelator_SweepSparesFresh(t *testing.T) {
	c := NewCorrelator(nil)

	c.Issue("LOC001", "A1", locker.CommandUnlock, time.Hour)
	if n := c.SweepStale(time.Minute); n != 0 {
		t.Errorf("SweepStale() = %d for a fresh entry, want 0", n)
	}
	if c.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", c.PendingCount())
	}
}
