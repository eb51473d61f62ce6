package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// handleListLockers returns the current fleet snapshot.
func (s *Server) handleListLockers(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.registry.Snapshot()

	lockers := make([]*locker.Locker, 0, len(snapshot))
	for _, l := range snapshot {
		lockers = append(lockers, l)
	}
	sort.Slice(lockers, func(i, j int) bool {
		return lockers[i].DeviceID < lockers[j].DeviceID
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"lockers": lockers,
		"count":   len(lockers),
	})
}

// handleGetLocker returns one locker with derived liveness.
func (s *Server) handleGetLocker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	l, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, locker.ErrLockerNotFound) {
			writeNotFound(w, "locker not found")
			return
		}
		writeInternalError(w, "failed to load locker")
		return
	}
	l.Online = s.registry.IsOnline(id)

	writeJSON(w, http.StatusOK, l)
}

// handleStats returns operational counters for dashboards.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	total, online := s.registry.Count()

	writeJSON(w, http.StatusOK, map[string]any{
		"lockers_total":    total,
		"lockers_online":   online,
		"pending_commands": s.correlator.PendingCount(),
		"ws_clients":       s.hub.ClientCount(),
	})
}
