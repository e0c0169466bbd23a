package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/store"
)

const (
	SessionCookieName = "session_id"
	SessionDuration   = 7 * 24 * time.Hour
)

type contextKey struct{}

// SessionManager handles player sessions.
type SessionManager struct {
	store store.Store
	clock clock.Clock
	log   logrus.FieldLogger
}

func NewSessionManager(st store.Store, clk clock.Clock, log logrus.FieldLogger) *SessionManager {
	return &SessionManager{
		store: st,
		clock: clk,
		log:   log.WithField("component", "sessions"),
	}
}

// CreateSession creates a session for player, sets the cookie and returns
// the session key.
func (sm *SessionManager) CreateSession(ctx context.Context, w http.ResponseWriter, playerID int64) (string, error) {
	now := sm.clock.Now()
	session := &store.Session{
		PlayerID:  playerID,
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(SessionDuration),
	}
	err := sm.store.Update(ctx, func(tx store.Tx) error {
		return store.Save(ctx, tx, session)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	key := sessionKey(session)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    key,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	sm.log.WithField("player", playerID).Debug("Session created")
	return key, nil
}

// GetSession returns the session of the request, or nil. The key is read
// from the cookie, falling back to a bearer token.
func (sm *SessionManager) GetSession(ctx context.Context, r *http.Request) (*store.Session, error) {
	id, token, ok := parseSessionKey(requestKey(r))
	if !ok {
		return nil, nil
	}
	return store.SessionByToken(ctx, sm.store, id, token, sm.clock.Now())
}

// GetPlayer returns the player of the current session, or nil.
func (sm *SessionManager) GetPlayer(ctx context.Context, r *http.Request) (*store.Player, error) {
	session, err := sm.GetSession(ctx, r)
	if err != nil || session == nil {
		return nil, err
	}
	return store.Get[store.Player](ctx, sm.store, session.PlayerID)
}

// DeleteSession removes the current session and clears the cookie.
func (sm *SessionManager) DeleteSession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	session, err := sm.GetSession(ctx, r)
	if err != nil {
		return err
	}
	if session != nil {
		err := sm.store.Update(ctx, func(tx store.Tx) error {
			return store.Delete(ctx, tx, session)
		})
		if err != nil {
			return err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return nil
}

// Cleanup removes expired sessions.
func (sm *SessionManager) Cleanup(ctx context.Context) {
	n, err := store.DeleteExpiredSessions(ctx, sm.store, sm.clock.Now())
	if err != nil {
		sm.log.WithError(err).Error("Failed to clean up sessions")
		return
	}
	if n > 0 {
		sm.log.Infof("Removed %d expired sessions", n)
	}
}

// Middleware loads the session player into the request context.
func (sm *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		player, err := sm.GetPlayer(r.Context(), r)
		if err != nil {
			sm.log.WithError(err).Error("Failed to load session")
		}
		if player != nil {
			r = r.WithContext(WithPlayer(r.Context(), player))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a logged-in player.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PlayerFromContext(r.Context()) == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithPlayer(ctx context.Context, player *store.Player) context.Context {
	return context.WithValue(ctx, contextKey{}, player)
}

// PlayerFromContext returns the logged-in player, or nil.
func PlayerFromContext(ctx context.Context) *store.Player {
	player, _ := ctx.Value(contextKey{}).(*store.Player)
	return player
}

func sessionKey(s *store.Session) string {
	return strconv.FormatInt(s.ID, 10) + "." + s.Token
}

func requestKey(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return bearer
	}
	return ""
}

func parseSessionKey(key string) (int64, string, bool) {
	rawID, token, ok := strings.Cut(key, ".")
	if !ok || token == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, token, true
}
