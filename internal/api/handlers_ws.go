package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"plotsweep/internal/auth"
)

// handleWebSocket upgrades to the viewer fanout. The jwt query param is
// optional (§6): an absent token attaches an anonymous viewer, but a
// present-and-invalid token is an AuthFailure (§7) and gets a
// policy-violation close instead of silently falling back to anonymous.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var sweeperID *int64
	if tokenStr, ok := auth.FromQuery(r); ok {
		cid, err := s.sessions.Verify(tokenStr)
		if err != nil {
			s.hub.RejectUpgrade(w, r, websocket.ClosePolicyViolation, "invalid session token")
			return
		}
		sweeperID = &cid
	}

	if err := s.hub.Upgrade(w, r, sweeperID); err != nil {
		writeJSONError(w, http.StatusBadRequest, "websocket upgrade failed")
	}
}
