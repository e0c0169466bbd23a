package web

import (
	"encoding/json"
	"net/http"

	"github.com/edvart/strike-inhouse/internal/eventbus"
)

// handleGameServerEvent ingests one event posted by the game server. The
// response body is always the intent response.
func (s *Server) handleGameServerEvent(w http.ResponseWriter, r *http.Request) {
	if !s.svc.GameServer.Authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var evt eventbus.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		http.Error(w, "Invalid event", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Ingestor.Ingest(r.Context(), evt))
}
