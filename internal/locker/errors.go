package locker

import "errors"

// Domain errors for the locker package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, locker.ErrQueueFull) {
//	    // surface as transport failure
//	}
var (
	// ErrLockerNotFound is returned when a device ID has no registry entry.
	ErrLockerNotFound = errors.New("locker: not found")

	// ErrLockerUnreachable is returned when a locker is known but has no
	// live transport or has fallen outside the liveness window.
	ErrLockerUnreachable = errors.New("locker: unreachable")

	// ErrQueueFull is returned when a poll queue cannot accept another
	// outbound command.
	ErrQueueFull = errors.New("locker: poll queue full")

	// ErrTransportClosed is returned when sending on a transport whose
	// underlying connection has gone away.
	ErrTransportClosed = errors.New("locker: transport closed")
)
