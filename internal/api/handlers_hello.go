package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type helloRequest struct {
	CID     int64  `json:"cid"`
	Name    string `json:"name"`
	World   string `json:"world"`
	WorldID uint32 `json:"worldId"`
}

// handleHello issues a session token for the presented client id (§4.7) and
// touches the sweeper's last-seen row.
func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	var req helloRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed body")
		return
	}

	token, err := s.sessions.Issue(req.CID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "could not issue session token")
		return
	}

	now := time.Now()
	// A sweeper row is a convenience for audit correlation, not a
	// precondition for the session, so its failure doesn't fail /hello.
	_ = s.repo.TouchSweeper(r.Context(), req.CID, req.Name, req.WorldID, float64(now.Unix()))

	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":       "hello " + req.Name,
		"server_time":   now.Unix(),
		"session_token": token,
	})
}
