package locker

import (
	"sync"
	"time"
)

// Mirror receives best-effort copies of registry changes. Implementations
// must not block; the registry calls it while holding no locks but on the
// hot path of device message handling.
type Mirror interface {
	LockerChanged(l Locker)
}

// Registry tracks every locker the core has seen this process lifetime,
// together with its live transport. It is the authoritative in-memory
// store; nothing is ever loaded back from disk.
//
// Liveness is derived, not stored: a locker is online when its last
// message arrived within the liveness window. MarkOffline and SweepOffline
// only reconcile the recorded flag (and fire disconnect notifications),
// they are not what reachability checks consult.
type Registry struct {
	mu             sync.RWMutex
	lockers        map[string]*Locker
	transports     map[string]Transport
	livenessWindow time.Duration

	logger Logger
	mirror Mirror
}

// NewRegistry creates an empty registry. Lockers whose last message is
// older than livenessWindow are considered offline.
func NewRegistry(livenessWindow time.Duration) *Registry {
	return &Registry{
		lockers:        make(map[string]*Locker),
		transports:     make(map[string]Transport),
		livenessWindow: livenessWindow,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for registry operations.
func (r *Registry) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// SetMirror attaches the persistence mirror. Pass nil to detach.
func (r *Registry) SetMirror(m Mirror) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirror = m
}

// Register records a locker announcing itself and installs its transport,
// replacing any previous one. Cell state from the announcement is merged
// into whatever was already known, so a reconnect does not erase package
// assignments made while the device was away.
func (r *Registry) Register(deviceID, address string, cells map[string]CellUpdate, t Transport) {
	now := time.Now()

	r.mu.Lock()
	l, exists := r.lockers[deviceID]
	if !exists {
		l = &Locker{
			DeviceID:     deviceID,
			RegisteredAt: now,
			Cells:        make(map[string]Cell),
		}
		r.lockers[deviceID] = l
	}
	if address != "" {
		l.Address = address
	}
	l.Online = true
	l.LastSeen = now
	for id, upd := range cells {
		c := l.Cells[id]
		upd.Apply(&c)
		l.Cells[id] = c
	}

	if prev, ok := r.transports[deviceID]; ok && prev != t {
		prev.Close()
	}
	if t != nil {
		r.transports[deviceID] = t
	}

	cpy := *l.DeepCopy()
	mirror := r.mirror
	r.mu.Unlock()

	if exists {
		r.logger.Info("locker re-registered", "device_id", deviceID, "address", address)
	} else {
		r.logger.Info("locker registered", "device_id", deviceID, "address", address, "cells", len(cpy.Cells))
	}
	if mirror != nil {
		mirror.LockerChanged(cpy)
	}
}

// Heartbeat refreshes a locker's last-seen time and merges any cell deltas
// the controller included. Returns false when the locker is unknown, in
// which case the caller should ask the device to re-register.
func (r *Registry) Heartbeat(deviceID string, cells map[string]CellUpdate) bool {
	r.mu.Lock()
	l, ok := r.lockers[deviceID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	l.Online = true
	l.LastSeen = time.Now()
	for id, upd := range cells {
		c := l.Cells[id]
		upd.Apply(&c)
		l.Cells[id] = c
	}

	cpy := *l.DeepCopy()
	mirror := r.mirror
	r.mu.Unlock()

	if mirror != nil {
		mirror.LockerChanged(cpy)
	}
	return true
}

// ApplyCellUpdate merges a single-cell state report (cellLocked, cellOpened,
// cellClosed) and refreshes liveness. Returns false for unknown lockers.
func (r *Registry) ApplyCellUpdate(deviceID, cellID string, upd CellUpdate) bool {
	r.mu.Lock()
	l, ok := r.lockers[deviceID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	l.Online = true
	l.LastSeen = time.Now()
	c := l.Cells[cellID]
	upd.Apply(&c)
	l.Cells[cellID] = c

	cpy := *l.DeepCopy()
	mirror := r.mirror
	r.mu.Unlock()

	if mirror != nil {
		mirror.LockerChanged(cpy)
	}
	return true
}

// Touch refreshes last-seen without changing any cell state. Used for
// pings and poll requests.
func (r *Registry) Touch(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lockers[deviceID]
	if !ok {
		return false
	}
	l.Online = true
	l.LastSeen = time.Now()
	return true
}

// MarkOffline clears the online flag and drops the transport. Returns true
// when the locker existed and was flagged online, so callers can emit the
// disconnect notification exactly once.
func (r *Registry) MarkOffline(deviceID string) bool {
	r.mu.Lock()
	l, ok := r.lockers[deviceID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	wasOnline := l.Online
	l.Online = false
	if t, ok := r.transports[deviceID]; ok {
		delete(r.transports, deviceID)
		t.Close()
	}

	cpy := *l.DeepCopy()
	mirror := r.mirror
	r.mu.Unlock()

	if wasOnline {
		r.logger.Info("locker offline", "device_id", deviceID)
		if mirror != nil {
			mirror.LockerChanged(cpy)
		}
	}
	return wasOnline
}

// DropTransport removes a transport without touching the online flag,
// but only if it is still the one installed. Used when a websocket read
// loop exits after the device has already reconnected on a new socket.
func (r *Registry) DropTransport(deviceID string, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.transports[deviceID]
	if !ok || cur != t {
		return false
	}
	delete(r.transports, deviceID)
	return true
}

// IsOnline derives reachability from the last-seen time. The stored flag
// is deliberately ignored.
func (r *Registry) IsOnline(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lockers[deviceID]
	if !ok {
		return false
	}
	return time.Since(l.LastSeen) < r.livenessWindow
}

// Get returns a deep copy of one locker.
func (r *Registry) Get(deviceID string) (*Locker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lockers[deviceID]
	if !ok {
		return nil, ErrLockerNotFound
	}
	return l.DeepCopy(), nil
}

// Transport returns the currently installed transport for a locker.
func (r *Registry) Transport(deviceID string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transports[deviceID]
	return t, ok
}

// Snapshot returns deep copies of every locker, with the Online field
// recomputed from the liveness window so readers see derived state.
func (r *Registry) Snapshot() map[string]*Locker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	out := make(map[string]*Locker, len(r.lockers))
	for id, l := range r.lockers {
		cpy := l.DeepCopy()
		cpy.Online = now.Sub(l.LastSeen) < r.livenessWindow
		out[id] = cpy
	}
	return out
}

// Count returns the number of known lockers and how many are online.
func (r *Registry) Count() (total, online int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	for _, l := range r.lockers {
		total++
		if now.Sub(l.LastSeen) < r.livenessWindow {
			online++
		}
	}
	return total, online
}

// SweepOffline reconciles stored flags with derived liveness: every locker
// still flagged online whose last message is outside the window is marked
// offline and returned, so the caller can emit one disconnect notification
// per transition.
func (r *Registry) SweepOffline() []string {
	r.mu.Lock()

	now := time.Now()
	var swept []string
	var copies []Locker
	for id, l := range r.lockers {
		if !l.Online || now.Sub(l.LastSeen) < r.livenessWindow {
			continue
		}
		l.Online = false
		if t, ok := r.transports[id]; ok {
			delete(r.transports, id)
			t.Close()
		}
		swept = append(swept, id)
		copies = append(copies, *l.DeepCopy())
	}
	mirror := r.mirror
	r.mu.Unlock()

	for i, id := range swept {
		r.logger.Info("locker swept offline", "device_id", id)
		if mirror != nil {
			mirror.LockerChanged(copies[i])
		}
	}
	return swept
}
