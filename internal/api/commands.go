package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// commandRequest is the body of POST /lockers/{id}/commands.
type commandRequest struct {
	Type      string `json:"type"`
	Cell      string `json:"cell"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// handleDispatchCommand sends a cell command to a locker and waits for
// the outcome.
//
// Status mapping: 404 when the locker is unknown, 503 when it is outside
// the liveness window or never replied, 200 otherwise; the device's own
// success or failure travels in the body.
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	lockerID := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmdType := locker.CommandType(req.Type)
	if !cmdType.Valid() {
		writeBadRequest(w, "type must be \"unlock\" or \"lock\"")
		return
	}
	if req.Cell == "" {
		writeBadRequest(w, "cell is required")
		return
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond

	res, err := s.dispatcher.Dispatch(r.Context(), lockerID, locker.Command{
		Type: cmdType,
		Cell: req.Cell,
	}, timeout)
	if err != nil {
		switch {
		case errors.Is(err, locker.ErrLockerNotFound):
			writeNotFound(w, "locker not found")
		case errors.Is(err, locker.ErrLockerUnreachable):
			writeUnavailable(w, "locker is offline")
		default:
			writeInternalError(w, "command dispatch failed")
		}
		return
	}

	status := http.StatusOK
	if res.Timeout {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}
