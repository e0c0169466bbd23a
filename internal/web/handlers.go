package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/edvart/strike-inhouse/internal/auth"
	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/mappick"
	"github.com/edvart/strike-inhouse/internal/store"
)

const (
	leaderboardSize = 50
	historySize     = 20
)

type queueOp func(ctx context.Context, playerID, queueID int64) (intent.Response, error)

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	s.queueAction(w, r, s.svc.Queues.Join)
}

func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	s.queueAction(w, r, s.svc.Queues.Leave)
}

func (s *Server) handleConfirmQueue(w http.ResponseWriter, r *http.Request) {
	s.queueAction(w, r, s.svc.Queues.Confirm)
}

func (s *Server) queueAction(w http.ResponseWriter, r *http.Request, op queueOp) {
	player := auth.PlayerFromContext(r.Context())
	queueID, ok := idParam(w, r, "queueID")
	if !ok {
		return
	}

	resp, err := op(r.Context(), player.ID, queueID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeIntent(w, resp)
}

func (s *Server) handlePickPlayer(w http.ResponseWriter, r *http.Request) {
	captain := auth.PlayerFromContext(r.Context())
	queueID, ok := idParam(w, r, "queueID")
	if !ok {
		return
	}
	playerID, ok := idParam(w, r, "playerID")
	if !ok {
		return
	}

	resp, err := s.svc.Queues.Pick(r.Context(), captain.ID, playerID, queueID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeIntent(w, resp)
}

func (s *Server) handleQueueState(w http.ResponseWriter, r *http.Request) {
	queueID, ok := idParam(w, r, "queueID")
	if !ok {
		return
	}

	draft, err := s.svc.Queues.DraftState(r.Context(), queueID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if draft == nil {
		http.Error(w, "queue not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

type matchState struct {
	Match   *store.Match          `json:"match"`
	Process *store.MapPickProcess `json:"map_pick_process,omitempty"`
	Actions []string              `json:"actions,omitempty"`
}

func (s *Server) handleMatchState(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}

	match, err := store.Get[store.Match](r.Context(), s.svc.Store, matchID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if match == nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	state := matchState{Match: match}
	if match.MapPickProcess != 0 {
		if state.Process, err = s.svc.Maps.Process(r.Context(), match.MapPickProcess); err != nil {
			s.internalError(w, r, err)
			return
		}
	}
	if state.Process != nil {
		for _, a := range mappick.Sequence(state.Process) {
			state.Actions = append(state.Actions, a.String())
		}
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSelectMap(w http.ResponseWriter, r *http.Request) {
	player := auth.PlayerFromContext(r.Context())
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	candidateID, ok := idParam(w, r, "candidateID")
	if !ok {
		return
	}

	match, err := store.Get[store.Match](r.Context(), s.svc.Store, matchID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if match == nil || match.MapPickProcess == 0 {
		writeIntent(w, intent.Fail("Match has no map selection"))
		return
	}

	resp, err := s.svc.Maps.SelectMap(r.Context(), match.MapPickProcess, candidateID, player.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeIntent(w, resp)
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	gameID, ok := idParam(w, r, "gameID")
	if !ok {
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
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := leaderboardSize
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}

	players, err := store.Leaderboard(r.Context(), s.svc.Store, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	views := make([]playerView, len(players))
	for i, p := range players {
		views[i] = viewPlayer(p)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePlayerHistory(w http.ResponseWriter, r *http.Request) {
	playerID, ok := idParam(w, r, "playerID")
	if !ok {
		return
	}
	limit := historySize
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}

	history, err := s.svc.Recorder.History(r.Context(), playerID, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	var playerID int64
	if player := auth.PlayerFromContext(r.Context()); player != nil {
		playerID = player.ID
	}
	s.svc.SSE.HandleConnection(w, r, playerID)
}
