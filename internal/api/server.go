package api

import (
	"encoding/json"
	"net/http"
	"time"

	"plotsweep/internal/apperr"
)

var startedAt = time.Now()

// handleHealthz reports process liveness only — it never touches Postgres
// or Redis, so a slow dependency doesn't flip a liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": time.Since(startedAt).Seconds(),
	})
}

// handleReadyz reports dependency reachability: a failed Postgres or Redis
// ping means this instance should be pulled from rotation.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	if err := s.queue.Ping(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "queue unreachable")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleStatus reports the queue depth as a crude backlog indicator.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "could not read queue depth")
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"queue_depth": depth,
		"build":       BuildCommit,
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeAppError maps an apperr.Error (or any error) to its HTTP status and
// writes the standard error envelope.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.StatusCode(apperr.KindOf(err))
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSONError(w, status, msg)
}
