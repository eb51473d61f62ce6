package locker

import "time"

// Cell is the transient state of one lockable compartment.
type Cell struct {
	Size       string `json:"size,omitempty"`
	Locked     bool   `json:"locked"`
	HasPackage bool   `json:"has_package"`
	PackageID  string `json:"package_id,omitempty"`
	Opened     bool   `json:"opened"`
}

// CellUpdate is a partial cell state change. Nil fields are left unchanged
// when the update is merged, so a heartbeat can report just the fields it
// knows about.
type CellUpdate struct {
	Size       *string `json:"size,omitempty"`
	Locked     *bool   `json:"locked,omitempty"`
	HasPackage *bool   `json:"has_package,omitempty"`
	PackageID  *string `json:"package_id,omitempty"`
	Opened     *bool   `json:"opened,omitempty"`
}

// Apply merges the non-nil fields of the update into the cell.
func (u CellUpdate) Apply(c *Cell) {
	if u.Size != nil {
		c.Size = *u.Size
	}
	if u.Locked != nil {
		c.Locked = *u.Locked
	}
	if u.HasPackage != nil {
		c.HasPackage = *u.HasPackage
	}
	if u.PackageID != nil {
		c.PackageID = *u.PackageID
	}
	if u.Opened != nil {
		c.Opened = *u.Opened
	}
}

// Locker represents one physical locker unit and its controller connection.
//
// Online is the last explicitly recorded flag; reachability decisions use
// Registry.IsOnline, which derives liveness from LastSeen so a stuck flag
// can never keep a silent locker "online".
type Locker struct {
	DeviceID     string          `json:"device_id"`
	Address      string          `json:"address,omitempty"`
	Online       bool            `json:"online"`
	LastSeen     time.Time       `json:"last_seen"`
	RegisteredAt time.Time       `json:"registered_at"`
	Cells        map[string]Cell `json:"cells"`
}

// DeepCopy creates a complete independent copy of the Locker.
// The cell map is cloned so modifications to the copy do not affect the
// original. This is essential for snapshot isolation.
func (l *Locker) DeepCopy() *Locker {
	if l == nil {
		return nil
	}

	cpy := *l
	if l.Cells != nil {
		cpy.Cells = make(map[string]Cell, len(l.Cells))
		for id, c := range l.Cells {
			cpy.Cells[id] = c
		}
	}
	return &cpy
}

// CommandType is the kind of cell operation sent to a device.
type CommandType string

// Command types understood by locker controllers.
const (
	CommandUnlock CommandType = "unlock"
	CommandLock   CommandType = "lock"
)

// Valid reports whether the command type is one the firmware understands.
func (t CommandType) Valid() bool {
	return t == CommandUnlock || t == CommandLock
}

// Command is a cell operation requested by a web handler.
type Command struct {
	Type CommandType `json:"type"`
	Cell string      `json:"cell"`
}

// CommandPayload is the wire form of a command as sent to a device,
// with the correlation identifier attached.
type CommandPayload struct {
	Type      CommandType `json:"type"`
	ID        string      `json:"id"`
	Cell      string      `json:"cell"`
	RequestID string      `json:"requestId"`
}

// Result is the structured outcome of a dispatched command. It is always
// returned as a value, never raised; HTTP handlers translate it into a
// status code.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timeout   bool   `json:"timeout,omitempty"`
	LockerID  string `json:"locker_id,omitempty"`
	Cell      string `json:"cell,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Event kinds pushed to the admin status stream (and the optional MQTT
// event mirror).
const (
	EventLockerUpdate     = "locker.update"
	EventCellOperation    = "cell.operation"
	EventLockerConnection = "locker.connection"
	EventError            = "error"
)

// ConnectionEvent is the payload broadcast when a locker's connection
// state changes.
type ConnectionEvent struct {
	LockerID  string `json:"locker_id"`
	Connected bool   `json:"connected"`
}

// EventSink receives discrete status events for fan-out to admin
// subscribers. The api.Hub is the canonical implementation.
type EventSink interface {
	BroadcastEvent(kind string, payload any)
}

// MultiSink fans each event out to several sinks, letting the status
// stream and the MQTT mirror receive the same events.
type MultiSink []EventSink

// BroadcastEvent implements EventSink.
func (m MultiSink) BroadcastEvent(kind string, payload any) {
	for _, sink := range m {
		if sink != nil {
			sink.BroadcastEvent(kind, payload)
		}
	}
}

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
