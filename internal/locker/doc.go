// Package locker contains the domain model for the locker fleet: the
// connection registry, per-cell state, device transports and the
// best-effort persistence mirror.
//
// The registry is the single source of truth for which lockers exist,
// whether they are reachable now, and what is known about their cells.
// All state is process-lifetime and in-memory; the SQLite mirror is a
// downstream display/audit copy updated fire-and-forget.
//
// Thread Safety: all exported types are safe for concurrent use.
package locker
