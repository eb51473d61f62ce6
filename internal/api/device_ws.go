package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// handleDeviceWS upgrades a locker controller connection and runs its
// read loop. The shared device key has already been checked by the
// device auth middleware.
//
// The controller must announce itself with a register message before
// anything else; messages arriving first for an unknown device are
// answered with an error frame asking it to register.
func (s *Server) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("device websocket upgrade failed", "error", err)
		return
	}

	transport := locker.NewSocketTransport(conn)
	go s.deviceReadLoop(conn, transport, r.RemoteAddr)
}

// deviceReadLoop consumes messages from one controller socket until it
// closes or errors.
func (s *Server) deviceReadLoop(conn *websocket.Conn, transport *locker.SocketTransport, remoteAddr string) {
	var deviceID string

	defer func() {
		transport.Close()
		if deviceID != "" {
			s.deviceDisconnected(deviceID, transport)
		}
	}()

	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	idleTimeout := time.Duration(s.wsCfg.PingInterval+s.wsCfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(idleTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("device websocket read error", "device_id", deviceID, "error", err)
			} else {
				s.logger.Debug("device websocket closed", "device_id", deviceID)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		var msg locker.DeviceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("invalid device message", "device_id", deviceID, "error", err)
			s.sendDeviceError(transport, "invalid JSON message")
			continue
		}

		if msg.Type == locker.MsgRegister {
			if msg.ID == "" {
				s.sendDeviceError(transport, "register requires an id")
				continue
			}
			deviceID = msg.ID
			s.registerDevice(msg, remoteAddr, transport)
			s.sendDeviceResponse(transport, map[string]any{"type": "registered", "id": deviceID})
			continue
		}

		if deviceID == "" && msg.ID == "" {
			s.sendDeviceError(transport, "register first")
			continue
		}

		if !s.processDeviceMessage(deviceID, msg) {
			s.sendDeviceError(transport, "unknown locker, register first")
			continue
		}

		if msg.Type == locker.MsgPing {
			s.sendDeviceResponse(transport, map[string]any{"type": "pong"})
		}
	}
}

// sendDeviceResponse sends a JSON frame to a controller, ignoring errors;
// a broken socket surfaces in the read loop.
func (s *Server) sendDeviceResponse(t locker.Transport, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	t.Send(data) //nolint:errcheck // Best-effort reply; read loop handles dead sockets
}

// sendDeviceError sends an error frame to a controller.
func (s *Server) sendDeviceError(t locker.Transport, message string) {
	s.sendDeviceResponse(t, map[string]any{"type": "error", "message": message})
}
