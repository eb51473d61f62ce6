package api

import (
	"net"
	"net/http"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// processDeviceMessage applies one upstream device message to the
// registry and the correlator. Shared by the websocket read loop and the
// HTTP message endpoints so both transports speak the same protocol.
//
// Returns false when the message references a locker the registry does
// not know; the caller should tell the device to re-register.
func (s *Server) processDeviceMessage(deviceID string, msg locker.DeviceMessage) bool {
	if deviceID == "" {
		deviceID = msg.ID
	}
	if deviceID == "" {
		return false
	}

	known := true
	switch msg.Type {
	case locker.MsgHeartbeat:
		known = s.registry.Heartbeat(deviceID, msg.Cells)

	case locker.MsgPing:
		known = s.registry.Touch(deviceID)

	case locker.MsgCellLocked, locker.MsgCellOpened, locker.MsgCellClosed:
		known = s.applyCellReport(deviceID, msg)

	case locker.MsgAck:
		// Pure reply, no state change beyond liveness.
		known = s.registry.Touch(deviceID)

	default:
		s.logger.Debug("unknown device message type",
			"device_id", deviceID,
			"type", msg.Type,
		)
		known = s.registry.Touch(deviceID)
	}

	// A reply fulfils its pending command regardless of message type;
	// firmware variants answer with "ack" or by echoing the command.
	if msg.IsReply() {
		resolved := s.correlator.Resolve(msg.RequestID, msg.ReplySuccess(), msg.Error)
		if !resolved {
			s.logger.Warn("dropping late or duplicate command reply",
				"device_id", deviceID,
				"request_id", msg.RequestID,
			)
		}
	}

	return known
}

// applyCellReport merges a single-cell state message and broadcasts the
// updated locker.
func (s *Server) applyCellReport(deviceID string, msg locker.DeviceMessage) bool {
	if msg.Cell == "" {
		return s.registry.Touch(deviceID)
	}

	upd := locker.CellUpdate{
		Locked:    msg.Locked,
		PackageID: msg.PackageID,
	}
	switch msg.Type {
	case locker.MsgCellOpened:
		opened := true
		upd.Opened = &opened
		if upd.Locked == nil {
			unlocked := false
			upd.Locked = &unlocked
		}
	case locker.MsgCellClosed:
		opened := false
		upd.Opened = &opened
	case locker.MsgCellLocked:
		if upd.Locked == nil {
			lckd := true
			upd.Locked = &lckd
		}
	}

	if !s.registry.ApplyCellUpdate(deviceID, msg.Cell, upd) {
		return false
	}

	if l, err := s.registry.Get(deviceID); err == nil && s.sink != nil {
		s.sink.BroadcastEvent(locker.EventLockerUpdate, l)
	}
	return true
}

// registerDevice records a locker announcement arriving on either
// transport and broadcasts the connection event.
func (s *Server) registerDevice(msg locker.DeviceMessage, remoteAddr string, t locker.Transport) {
	address := msg.IP
	if address == "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
			address = host
		} else {
			address = remoteAddr
		}
	}

	s.registry.Register(msg.ID, address, msg.Cells, t)

	if s.sink != nil {
		s.sink.BroadcastEvent(locker.EventLockerConnection, locker.ConnectionEvent{
			LockerID:  msg.ID,
			Connected: true,
		})
		if l, err := s.registry.Get(msg.ID); err == nil {
			s.sink.BroadcastEvent(locker.EventLockerUpdate, l)
		}
	}
}

// deviceDisconnected handles a transport going away. The disconnect event
// fires only when this transport was still current and the locker was
// flagged online; a device that already reconnected is untouched.
func (s *Server) deviceDisconnected(deviceID string, t locker.Transport) {
	if !s.registry.DropTransport(deviceID, t) {
		return
	}
	if s.registry.MarkOffline(deviceID) && s.sink != nil {
		s.sink.BroadcastEvent(locker.EventLockerConnection, locker.ConnectionEvent{
			LockerID:  deviceID,
			Connected: false,
		})
	}
}

// requireDeviceID extracts and validates the id parameter shared by the
// HTTP device endpoints.
func requireDeviceID(w http.ResponseWriter, id string) bool {
	if id == "" {
		writeBadRequest(w, "device id is required")
		return false
	}
	return true
}
