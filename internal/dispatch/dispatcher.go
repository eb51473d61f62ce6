package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// Telemetry receives per-command measurements. The InfluxDB client is the
// production implementation; a nil Telemetry disables recording.
type Telemetry interface {
	RecordCommand(lockerID string, command string, duration time.Duration, success bool)
}

// CommandEvent is the payload broadcast on the status stream for every
// dispatched command, successful or not.
type CommandEvent struct {
	LockerID  string             `json:"locker_id"`
	Cell      string             `json:"cell"`
	Type      locker.CommandType `json:"type"`
	Success   bool               `json:"success"`
	Timeout   bool               `json:"timeout,omitempty"`
	Message   string             `json:"message,omitempty"`
	RequestID string             `json:"request_id"`
}

// Dispatcher is the synchronous command facade. Web handlers call
// Dispatch and get a Result back once the device has replied, the
// per-command timeout has fired, or the caller's context was cancelled.
type Dispatcher struct {
	registry       *locker.Registry
	correlator     *Correlator
	sink           locker.EventSink
	telemetry      Telemetry
	defaultTimeout time.Duration
	logger         locker.Logger
}

// NewDispatcher wires the facade. sink and telemetry may be nil.
func NewDispatcher(registry *locker.Registry, correlator *Correlator, defaultTimeout time.Duration, logger locker.Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		registry:       registry,
		correlator:     correlator,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// SetEventSink attaches the status stream.
func (d *Dispatcher) SetEventSink(sink locker.EventSink) { d.sink = sink }

// SetTelemetry attaches command metrics recording.
func (d *Dispatcher) SetTelemetry(t Telemetry) { d.telemetry = t }

// Dispatch sends a command to a locker and waits for the outcome.
//
// It returns ErrLockerNotFound for unknown lockers and
// ErrLockerUnreachable when the locker is outside the liveness window or
// has no transport; handlers map these to 404 and 503. Everything past
// that point is a Result: device replies, timeouts, transport failures
// and caller cancellation all come back as values with Success and
// Timeout set accordingly.
func (d *Dispatcher) Dispatch(ctx context.Context, lockerID string, cmd locker.Command, timeout time.Duration) (locker.Result, error) {
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	start := time.Now()

	if _, err := d.registry.Get(lockerID); err != nil {
		return locker.Result{}, err
	}
	if !d.registry.IsOnline(lockerID) {
		return locker.Result{}, locker.ErrLockerUnreachable
	}
	transport, ok := d.registry.Transport(lockerID)
	if !ok {
		return locker.Result{}, locker.ErrLockerUnreachable
	}

	requestID, resultCh := d.correlator.Issue(lockerID, cmd.Cell, cmd.Type, timeout)

	payload, err := json.Marshal(locker.CommandPayload{
		Type:      cmd.Type,
		ID:        lockerID,
		Cell:      cmd.Cell,
		RequestID: requestID,
	})
	if err != nil {
		// Unreachable with well-formed commands; resolve so the entry is
		// consumed rather than left for the timer.
		d.correlator.Resolve(requestID, false, "encoding command: "+err.Error())
		return d.finish(start, cmd, <-resultCh), nil
	}

	d.logger.Debug("dispatching command",
		"device_id", lockerID,
		"cell", cmd.Cell,
		"type", cmd.Type,
		"request_id", requestID,
		"transport", transport.Kind(),
	)

	if err := transport.Send(payload); err != nil {
		d.logger.Warn("command send failed",
			"device_id", lockerID,
			"request_id", requestID,
			"error", err,
		)
		d.correlator.Resolve(requestID, false, "transport send failed: "+err.Error())
		return d.finish(start, cmd, <-resultCh), nil
	}

	select {
	case res := <-resultCh:
		return d.finish(start, cmd, res), nil
	case <-ctx.Done():
		// The pending entry stays behind; its timer reaps it.
		res := locker.Result{
			Success:   false,
			Message:   "request cancelled",
			LockerID:  lockerID,
			Cell:      cmd.Cell,
			RequestID: requestID,
		}
		return d.finish(start, cmd, res), nil
	}
}

// finish records telemetry and broadcasts the command outcome.
func (d *Dispatcher) finish(start time.Time, cmd locker.Command, res locker.Result) locker.Result {
	if d.telemetry != nil {
		d.telemetry.RecordCommand(res.LockerID, string(cmd.Type), time.Since(start), res.Success)
	}
	if d.sink != nil {
		d.sink.BroadcastEvent(locker.EventCellOperation, CommandEvent{
			LockerID:  res.LockerID,
			Cell:      res.Cell,
			Type:      cmd.Type,
			Success:   res.Success,
			Timeout:   res.Timeout,
			Message:   res.Message,
			RequestID: res.RequestID,
		})
	}
	return res
}
