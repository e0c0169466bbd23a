// Package web exposes the matchmaking services over HTTP.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/auth"
	"github.com/edvart/strike-inhouse/internal/coordinator"
	"github.com/edvart/strike-inhouse/internal/gameserver"
	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/mappick"
	"github.com/edvart/strike-inhouse/internal/matchmaking"
	"github.com/edvart/strike-inhouse/internal/matchrecorder"
	"github.com/edvart/strike-inhouse/internal/permission"
	"github.com/edvart/strike-inhouse/internal/push"
	"github.com/edvart/strike-inhouse/internal/store"
)

// Services are the collaborators the HTTP layer calls into.
type Services struct {
	Store       store.Store
	Queues      *matchmaking.Service
	Maps        *mappick.Service
	Coordinator *coordinator.Coordinator
	Accounts    *auth.Accounts
	Sessions    *auth.SessionManager
	Permissions permission.Checker
	Push        *push.Service
	GameServer  *gameserver.Server
	Ingestor    *gameserver.Ingestor
	Recorder    *matchrecorder.Recorder
	SSE         *SSEHub
}

// Config holds server configuration.
type Config struct {
	DevMode bool
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	router *chi.Mux
	svc    Services
	log    logrus.FieldLogger
	cfg    Config
}

func NewServer(svc Services, cfg Config, log logrus.FieldLogger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		svc:    svc,
		log:    log.WithField("component", "web"),
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	// The game server authenticates with its shared token, not a session.
	r.Route("/gameserver", func(r chi.Router) {
		r.Post("/event", s.handleGameServerEvent)
		r.Handle("/ws", s.svc.GameServer)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.svc.Sessions.Middleware)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.With(auth.RequireAuth).Get("/me", s.handleMe)
		})
		if s.cfg.DevMode {
			r.Post("/dev/login", s.handleDevLogin)
		}

		r.Get("/events", s.handleSSE)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/players/{playerID}/history", s.handlePlayerHistory)
		r.Get("/queue/{queueID}", s.handleQueueState)
		r.Get("/match/{matchID}", s.handleMatchState)
		r.Get("/game/{gameID}", s.handleGameState)
		r.Get("/push/vapid-key", s.handleGetVAPIDPublicKey)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Post("/queue/{queueID}/join", s.handleJoinQueue)
			r.Post("/queue/{queueID}/leave", s.handleLeaveQueue)
			r.Post("/queue/{queueID}/confirm", s.handleConfirmQueue)
			r.Post("/queue/{queueID}/pick/{playerID}", s.handlePickPlayer)
			r.Post("/match/{matchID}/maps/{candidateID}/select", s.handleSelectMap)

			r.Post("/push/subscribe", s.handleSubscribePush)
			r.Post("/push/unsubscribe", s.handleUnsubscribePush)
			r.Post("/push/test", s.handleTestPush)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.With(auth.RequirePermission(s.svc.Permissions, permission.QueueCreate)).
				Post("/queues", s.handleAdminCreateQueue)
			r.With(auth.RequirePermission(s.svc.Permissions, permission.GamesCreate)).
				Post("/games/{gameID}/terminate", s.handleAdminTerminateGame)
			r.With(auth.RequirePermission(s.svc.Permissions, permission.GamesCreate)).
				Post("/games/{gameID}/result", s.handleAdminSetResult)
			r.With(auth.RequirePermission(s.svc.Permissions, permission.PermissionGrant)).
				Post("/players/{playerID}/role", s.handleAdminSetRole)
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeIntent answers with the response body; rejections are 400s.
func writeIntent(w http.ResponseWriter, resp intent.Response) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// idParam parses the int64 URL parameter name.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// playerView is the public shape of a player.
type playerView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Elo      int    `json:"elo"`
}

func viewPlayer(p *store.Player) playerView {
	return playerView{ID: p.ID, Username: p.Username, Elo: p.Elo}
}
