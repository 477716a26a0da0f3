package api

import (
	"encoding/json"
	"io"
	"net/http"

	"plotsweep/internal/auth"
)

// handleIngest requires a bearer session token (§6) and admits the batch
// body via the ingest admitter.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	tokenStr, ok := auth.FromRequest(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	cid, err := s.sessions.Verify(tokenStr)
	if err != nil {
		writeAppError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not read body")
		return
	}

	result, err := s.admitter.AdmitBatch(r.Context(), &cid, body)
	if err != nil {
		writeAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "accepted",
		"accepted": result.Accepted,
	})
}
