package api

import (
	"encoding/json"
	"net/http"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// The HTTP device endpoints serve controllers that cannot hold a
// websocket open (constrained firmware, NAT'd deployments). State flows
// up via register/heartbeat/messages posts; commands flow down through a
// bounded per-device queue drained by GET /device/poll.

// pollResponse is the body of GET /device/poll.
type pollResponse struct {
	Commands []json.RawMessage `json:"commands"`
}

// handleDeviceRegister records a locker announcing itself over HTTP and
// installs a poll queue as its transport. Re-registration keeps an
// existing poll queue so queued commands survive a controller restart
// race; a locker switching from websocket to polling gets a fresh queue.
func (s *Server) handleDeviceRegister(w http.ResponseWriter, r *http.Request) {
	var msg locker.DeviceMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !requireDeviceID(w, msg.ID) {
		return
	}

	var transport locker.Transport
	if cur, ok := s.registry.Transport(msg.ID); ok && cur.Kind() == locker.TransportPoll {
		transport = cur
	} else {
		transport = locker.NewPollQueue(s.lockerCfg.PollQueueSize)
	}

	msg.Type = locker.MsgRegister
	s.registerDevice(msg, r.RemoteAddr, transport)

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "registered",
		"id":     msg.ID,
	})
}

// handleDeviceHeartbeat refreshes liveness and merges any cell deltas.
// Unknown lockers get a 404 so the controller knows to re-register.
func (s *Server) handleDeviceHeartbeat(w http.ResponseWriter, r *http.Request) {
	var msg locker.DeviceMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !requireDeviceID(w, msg.ID) {
		return
	}

	if !s.registry.Heartbeat(msg.ID, msg.Cells) {
		writeNotFound(w, "unknown locker, register first")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleDeviceMessages accepts command replies and cell state reports
// from polling controllers. The body is a single device message.
func (s *Server) handleDeviceMessages(w http.ResponseWriter, r *http.Request) {
	var msg locker.DeviceMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !requireDeviceID(w, msg.ID) {
		return
	}

	if !s.processDeviceMessage(msg.ID, msg) {
		writeNotFound(w, "unknown locker, register first")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleDevicePoll drains the device's queued commands. Polling counts as
// liveness; a controller that only ever polls still stays online.
func (s *Server) handleDevicePoll(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !requireDeviceID(w, id) {
		return
	}

	if !s.registry.Touch(id) {
		writeNotFound(w, "unknown locker, register first")
		return
	}

	transport, ok := s.registry.Transport(id)
	if !ok || transport.Kind() != locker.TransportPoll {
		writeBadRequest(w, "locker is not on the polling transport")
		return
	}
	queue, ok := transport.(*locker.PollQueue)
	if !ok {
		writeInternalError(w, "transport type mismatch")
		return
	}

	resp := pollResponse{Commands: []json.RawMessage{}}
	for _, payload := range queue.Drain() {
		resp.Commands = append(resp.Commands, json.RawMessage(payload))
	}

	writeJSON(w, http.StatusOK, resp)
}
