package web

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/edvart/strike-inhouse/internal/auth"
	"github.com/edvart/strike-inhouse/internal/coordinator"
	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/store"
)

const defaultQueueSize = 10

// handleAdminCreateQueue opens a new pool.
func (s *Server) handleAdminCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type store.QueueType `json:"type"`
		Size int             `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = store.QueueRanked
	}
	if req.Size == 0 {
		req.Size = defaultQueueSize
	}
	if req.Size < 2 {
		http.Error(w, "size must be at least 2", http.StatusBadRequest)
		return
	}

	q, err := s.svc.Queues.CreateQueue(r.Context(), req.Type, req.Size)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.log.WithField("queue", q.ID).Infof("Admin %s created %s queue of %d", auth.PlayerFromContext(r.Context()).Username, q.Type, q.Size)
	writeJSON(w, http.StatusCreated, q)
}

// handleAdminTerminateGame terminates a game as if the game server asked.
func (s *Server) handleAdminTerminateGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := idParam(w, r, "gameID")
	if !ok {
		return
	}
	s.ingest(w, r, coordinator.GameDeleteIntentEvent{Game: gameID})
}

// handleAdminSetResult records the winner of a game.
func (s *Server) handleAdminSetResult(w http.ResponseWriter, r *http.Request) {
	gameID, ok := idParam(w, r, "gameID")
	if !ok {
		return
	}
	var req struct {
		Winner int64 `json:"winner"`
		Looser int64 `json:"looser"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	game, err := s.svc.Coordinator.Game(r.Context(), gameID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if game == nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	teams := []int64{game.TeamA, game.TeamB}
	if req.Winner == req.Looser || !slices.Contains(teams, req.Winner) || !slices.Contains(teams, req.Looser) {
		http.Error(w, "winner and looser must be the two teams of the game", http.StatusBadRequest)
		return
	}

	s.log.WithField("game", gameID).Infof("Admin set result: team %d wins", req.Winner)
	s.ingest(w, r, coordinator.PreGameEndEvent{Game: gameID, Winner: req.Winner, Looser: req.Looser})
}

// handleAdminSetRole assigns a role to a player.
func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	playerID, ok := idParam(w, r, "playerID")
	if !ok {
		return
	}
	var req struct {
		Role int64 `json:"role_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var (
		player *store.Player
		status = http.StatusOK
		reason string
	)
	err := s.svc.Store.Update(r.Context(), func(tx store.Tx) error {
		var err error
		if player, err = store.Get[store.Player](r.Context(), tx, playerID); err != nil {
			return err
		}
		if player == nil {
			status, reason = http.StatusNotFound, "player not found"
			return nil
		}
		if req.Role != 0 {
			role, err := store.Get[store.Role](r.Context(), tx, req.Role)
			if err != nil {
				return err
			}
			if role == nil {
				status, reason = http.StatusBadRequest, "role not found"
				return nil
			}
		}
		player.RoleID = req.Role
		return store.Save(r.Context(), tx, player)
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if reason != "" {
		http.Error(w, reason, status)
		return
	}
	s.log.WithField("player", playerID).Infof("Role set to %d", req.Role)
	writeJSON(w, http.StatusOK, viewPlayer(player))
}

// ingest runs evt through the game server boundary.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, evt any) {
	e, err := eventbus.Abstract(evt)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeIntent(w, s.svc.Ingestor.Ingest(r.Context(), e))
}
