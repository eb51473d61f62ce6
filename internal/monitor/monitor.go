// Package monitor runs the periodic housekeeping loop: reconciling stale
// liveness flags and reaping abandoned pending commands.
package monitor

import (
	"context"
	"time"

	"github.com/Drrein86/lockerweb-core/internal/dispatch"
	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// Monitor periodically sweeps the registry for lockers that went silent
// and the correlator for pending commands whose timers never fired. Each
// offline transition produces exactly one disconnect event; liveness
// itself is derived from last-seen times, so a missed sweep only delays
// the notification, never the reachability verdict.
type Monitor struct {
	registry      *locker.Registry
	correlator    *dispatch.Correlator
	sink          locker.EventSink
	sweepInterval time.Duration
	pendingMaxAge time.Duration
	logger        locker.Logger
}

// Config collects the monitor's dependencies and intervals.
type Config struct {
	Registry      *locker.Registry
	Correlator    *dispatch.Correlator
	Sink          locker.EventSink
	SweepInterval time.Duration
	PendingMaxAge time.Duration
	Logger        locker.Logger
}

// New creates a monitor. Sink and Logger may be nil.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Monitor{
		registry:      cfg.Registry,
		correlator:    cfg.Correlator,
		sink:          cfg.Sink,
		sweepInterval: cfg.SweepInterval,
		pendingMaxAge: cfg.PendingMaxAge,
		logger:        logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. Blocks;
// callers run it in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	m.logger.Info("liveness monitor started",
		"sweep_interval", m.sweepInterval,
		"pending_max_age", m.pendingMaxAge,
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep performs one housekeeping pass. Exported for tests and for
// on-demand reconciliation.
func (m *Monitor) Sweep() {
	for _, id := range m.registry.SweepOffline() {
		if m.sink != nil {
			m.sink.BroadcastEvent(locker.EventLockerConnection, locker.ConnectionEvent{
				LockerID:  id,
				Connected: false,
			})
		}
	}

	if m.correlator != nil && m.pendingMaxAge > 0 {
		if n := m.correlator.SweepStale(m.pendingMaxAge); n > 0 {
			m.logger.Warn("reaped stale pending commands", "count", n)
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
