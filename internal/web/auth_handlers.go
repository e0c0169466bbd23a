package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edvart/strike-inhouse/internal/auth"
	"github.com/edvart/strike-inhouse/internal/store"
)

type credentials struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	VerificationCode int    `json:"verification_code"`
}

type authResponse struct {
	SessionKey string     `json:"session_key"`
	PlayerID   int64      `json:"player_id"`
	Player     playerView `json:"player"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	player, err := s.svc.Accounts.SignUp(r.Context(), req.Username, req.VerificationCode, req.Password)
	switch {
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrAlreadyVerified),
		errors.Is(err, auth.ErrInvalidCode),
		errors.Is(err, auth.ErrWeakPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}
	s.startSession(w, r, player)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	player, err := s.svc.Accounts.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}
	s.startSession(w, r, player)
}

// handleDevLogin logs in as any username without a password.
func (s *Server) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		var req credentials
		json.NewDecoder(r.Body).Decode(&req)
		username = req.Username
	}
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}

	player, err := s.svc.Accounts.DevLogin(r.Context(), username)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.log.Warnf("Dev login as %s", player.Username)
	s.startSession(w, r, player)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, player *store.Player) {
	key, err := s.svc.Sessions.CreateSession(r.Context(), w, player.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		SessionKey: key,
		PlayerID:   player.ID,
		Player:     viewPlayer(player),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Sessions.DeleteSession(r.Context(), w, r); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewPlayer(auth.PlayerFromContext(r.Context())))
}
