package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/elan2mqtt/internal/bridge"
)

// healthCheckTimeout bounds all component checks of one request.
const healthCheckTimeout = 3 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Bridge        bridge.Snapshot   `json:"bridge"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Health statuses.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// handleHealth answers 200 while a session is up and every component check
// passes, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()

	resp := HealthResponse{
		Status:        statusOK,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Bridge:        snap,
	}
	healthy := snap.SessionUp

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(s.checks))
		for name, checker := range s.checks {
			if err := checker.HealthCheck(ctx); err != nil {
				resp.Checks[name] = err.Error()
				healthy = false
				continue
			}
			resp.Checks[name] = statusOK
		}
	}

	code := http.StatusOK
	if !healthy {
		resp.Status = statusDegraded
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
