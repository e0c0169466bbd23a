package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/coordinator"
	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/mappick"
	"github.com/edvart/strike-inhouse/internal/matchmaking"
	"github.com/edvart/strike-inhouse/internal/matchrecorder"
)

// StreamedEvents are forwarded to every connected browser.
var StreamedEvents = []string{
	eventbus.TypeName[matchmaking.PlayerJoinQueue](),
	eventbus.TypeName[matchmaking.PlayerLeaveQueue](),
	eventbus.TypeName[matchmaking.PlayerConfirmQueue](),
	eventbus.TypeName[matchmaking.QueueLocked](),
	eventbus.TypeName[matchmaking.QueueUnlocked](),
	eventbus.TypeName[matchmaking.DraftStarted](),
	eventbus.TypeName[matchmaking.PlayerPicked](),
	eventbus.TypeName[matchmaking.DraftCompleted](),
	eventbus.TypeName[mappick.MapSelected](),
	eventbus.TypeName[mappick.MapPickDone](),
	eventbus.TypeName[coordinator.GameEnded](),
	eventbus.TypeName[matchrecorder.MatchCompleted](),
}

// StreamMessage is one server-sent event.
type StreamMessage struct {
	Type    string         `json:"type"`
	Subject int64          `json:"subject,omitempty"`
	Data    map[string]any `json:"data"`
}

// SSEClient represents a connected SSE client.
type SSEClient struct {
	ID       string
	PlayerID int64
	Channel  chan StreamMessage
}

// SSEHub fans bus events out to SSE connections.
type SSEHub struct {
	mu      sync.RWMutex
	clients map[*SSEClient]bool
	log     logrus.FieldLogger
}

func NewSSEHub(log logrus.FieldLogger) *SSEHub {
	return &SSEHub{
		clients: make(map[*SSEClient]bool),
		log:     log.WithField("component", "sse"),
	}
}

// Register forwards eventTypes published on bus to every client.
func (h *SSEHub) Register(bus *eventbus.Bus, eventTypes ...string) error {
	for _, t := range eventTypes {
		err := bus.Handle(t, func(ctx context.Context, subject any, payload map[string]any) (any, error) {
			msg := StreamMessage{Type: t, Data: payload}
			if s, ok := subject.(eventbus.Identified); ok {
				msg.Subject = s.EntityID()
			}
			return h.Broadcast(msg), nil
		})
		if err != nil {
			return fmt.Errorf("failed to stream %s: %w", t, err)
		}
	}
	return nil
}

// Broadcast queues msg for every client and returns how many received it.
// Slow clients miss the message.
func (h *SSEHub) Broadcast(msg StreamMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		select {
		case client.Channel <- msg:
			sent++
		default:
			h.log.Warnf("Dropping %s for slow client %s", msg.Type, client.ID)
		}
	}
	return sent
}

// Clients returns the number of connected clients.
func (h *SSEHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection streams events until the request is done.
func (h *SSEHub) HandleConnection(w http.ResponseWriter, r *http.Request, playerID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &SSEClient{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Channel:  make(chan StreamMessage, 16),
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	log := h.log.WithFields(logrus.Fields{"client": client.ID, "player": playerID})
	log.Debug("SSE client connected")
	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		log.Debug("SSE client disconnected")
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-client.Channel:
			data, err := json.Marshal(msg)
			if err != nil {
				log.WithError(err).Error("Failed to encode event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
			flusher.Flush()
		}
	}
}
