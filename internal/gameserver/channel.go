// Package gameserver connects the backend to the remote game server: an
// outbound channel that queues messages while the server is away, and the
// boundary that feeds inbound events into the game bus.
package gameserver

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/eventbus"
)

// Conn is the write side of a game server connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Message is the wire form of an outbound event.
type Message struct {
	ID      string         `json:"msg_id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type SendResult int

const (
	Sent SendResult = iota
	Queued
)

func (r SendResult) String() string {
	if r == Sent {
		return "sent"
	}
	return "queued"
}

// Channel delivers messages to the connected game server. Messages sent while
// no server is connected are kept in FIFO order and flushed on Attach.
type Channel struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	conn  Conn
	queue []Message
}

func NewChannel(log logrus.FieldLogger) *Channel {
	return &Channel{log: log.WithField("component", "gameserver")}
}

// NewMessage wraps a typed or abstract event for the wire.
func NewMessage(evt any) (Message, error) {
	e, err := eventbus.Abstract(evt)
	if err != nil {
		return Message{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return Message{ID: e.ID, Type: e.Type, Payload: e.Data}, nil
}

// Send delivers evt, or queues it when the game server is not connected or
// the write fails.
func (c *Channel) Send(evt any) (SendResult, error) {
	msg, err := NewMessage(evt)
	if err != nil {
		return Queued, fmt.Errorf("failed to encode outbound event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.queue = append(c.queue, msg)
		c.log.Warnf("Event %s queued (%d pending)", msg.Type, len(c.queue))
		return Queued, nil
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.WithError(err).Warnf("Failed to send %s, queueing", msg.Type)
		c.dropConn()
		c.queue = append(c.queue, msg)
		return Queued, nil
	}
	return Sent, nil
}

// Attach makes conn the active connection and flushes queued messages in
// order. On a failed write the unsent remainder stays queued and conn is
// dropped.
func (c *Channel) Attach(conn Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn != conn {
		c.conn.Close()
	}
	c.conn = conn
	c.log.Infof("Game server connected, flushing %d queued events", len(c.queue))

	for len(c.queue) > 0 {
		msg := c.queue[0]
		if err := c.conn.WriteJSON(msg); err != nil {
			c.dropConn()
			return fmt.Errorf("failed to flush %s: %w", msg.Type, err)
		}
		c.queue = c.queue[1:]
	}
	c.queue = nil
	return nil
}

// Detach forgets conn if it is still the active connection.
func (c *Channel) Detach(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
		c.log.Info("Game server disconnected")
	}
}

// Connected reports whether a game server is attached.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Pending returns the number of queued messages.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Channel) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
