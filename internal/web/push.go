package web

import (
	"encoding/json"
	"net/http"

	"github.com/edvart/strike-inhouse/internal/auth"
	"github.com/edvart/strike-inhouse/internal/push"
)

type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// handleSubscribePush handles push subscription from frontend
func (s *Server) handleSubscribePush(w http.ResponseWriter, r *http.Request) {
	player := auth.PlayerFromContext(r.Context())

	var req PushSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := s.svc.Push.Subscribe(r.Context(), player.ID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		http.Error(w, "Failed to save subscription: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleUnsubscribePush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := s.svc.Push.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleGetVAPIDPublicKey returns the VAPID public key for frontend
func (s *Server) handleGetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Push.Enabled() {
		http.Error(w, "Push notifications not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.svc.Push.PublicKey()})
}

// handleTestPush sends a test push notification to the current player
func (s *Server) handleTestPush(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Push.Enabled() {
		http.Error(w, "Push notifications not configured", http.StatusServiceUnavailable)
		return
	}
	player := auth.PlayerFromContext(r.Context())

	sent, err := s.svc.Push.SendToPlayers(r.Context(), []int64{player.ID}, push.NotificationPayload{
		Title: "Test Notification",
		Body:  "If you see this, push notifications are working!",
		Icon:  "/static/favicon.ico",
		Badge: "/static/favicon.ico",
		Tag:   "test-notification",
		Data:  map[string]any{"url": "/"},
	})
	if err != nil {
		http.Error(w, "Failed to send test notification", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "Test notification sent", "sent": sent})
}
