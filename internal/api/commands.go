package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/elan2mqtt/internal/audit"
)

// CommandListResponse is the body of GET /api/v1/commands.
type CommandListResponse struct {
	Commands []audit.Entry `json:"commands"`
	Count    int           `json:"count"`
}

// handleListCommands returns audited commands, newest first.
//
// Query parameters:
//   - device_id: filter by device
//   - outcome: relayed, invalid or failed
//   - limit: max results (default 50, max 500)
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "command audit not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: q.Get("device_id"),
		Outcome:  q.Get("outcome"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	entries, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command audit", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, CommandListResponse{Commands: entries, Count: len(entries)})
}
