package gameserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/intent"
)

const (
	maxMessageSize = 1 << 20
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// Reply answers an inbound frame that carried a msg_id.
type Reply struct {
	ID      string          `json:"msg_id"`
	Type    string          `json:"type"`
	Payload intent.Response `json:"payload"`
}

// Server accepts the game server's websocket connection, attaches it to the
// channel and ingests every frame it receives.
type Server struct {
	channel  *Channel
	ingestor *Ingestor
	token    string
	sched    eventbus.Scheduler
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewServer(channel *Channel, ingestor *Ingestor, token string, sched eventbus.Scheduler, log logrus.FieldLogger) *Server {
	return &Server{
		channel:  channel,
		ingestor: ingestor,
		token:    token,
		sched:    sched,
		log:      log.WithField("component", "gameserver"),
		upgrader: websocket.Upgrader{
			// The game server is not a browser.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Authorized checks the shared game server token from the Authorization
// header or the token query parameter.
func (s *Server) Authorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.Authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Failed to upgrade game server connection")
		return
	}
	conn := &wsConn{conn: ws}
	defer func() {
		s.channel.Detach(conn)
		conn.Close()
	}()

	if err := s.channel.Attach(conn); err != nil {
		s.log.WithError(err).Warn("Game server connection lost while flushing")
		return
	}

	base := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(base)
	defer cancel()
	go conn.keepAlive(ctx)

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Message
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("Game server connection closed")
			}
			return
		}

		// Handlers may wait on further game server events, so they must not
		// hold up the read loop.
		s.sched.Go(func() {
			resp := s.ingestor.Ingest(base, eventbus.Event{ID: frame.ID, Type: frame.Type, Data: frame.Payload})
			if frame.ID == "" {
				return
			}
			if err := conn.WriteJSON(Reply{ID: frame.ID, Type: "response", Payload: resp}); err != nil {
				s.log.WithError(err).Warnf("Failed to answer %s", frame.Type)
			}
		})
	}
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
