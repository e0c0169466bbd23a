// Package matchmaking runs player pools through join, lock, confirmation and
// captain draft.
package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/store"
)

type Config struct {
	// ConfirmTimeout is how long a locked pool waits for every member to
	// confirm.
	ConfirmTimeout time.Duration
	// MapCount is the number of maps played by matches drafted from a pool.
	MapCount int
	// MapPool names the map candidates of every drafted match. When empty,
	// every competitive map is a candidate.
	MapPool []string
}

// Service owns every pool mutation. State is committed before the matching
// event is published.
type Service struct {
	store store.Store
	bus   *eventbus.Bus
	clock clock.Clock
	log   logrus.FieldLogger
	cfg   Config
}

// New creates the service and registers its handlers on bus.
func New(st store.Store, bus *eventbus.Bus, clk clock.Clock, log logrus.FieldLogger, cfg Config) (*Service, error) {
	s := &Service{
		store: st,
		bus:   bus,
		clock: clk,
		log:   log,
		cfg:   cfg,
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) register() error {
	if err := eventbus.On(s.bus, s.onPlayerJoin); err != nil {
		return err
	}
	if err := eventbus.On(s.bus, s.onPlayerConfirm); err != nil {
		return err
	}
	return eventbus.On(s.bus, s.onQueueConfirmed)
}

// CreateQueue creates an empty pool.
func (s *Service) CreateQueue(ctx context.Context, typ store.QueueType, size int) (*store.Queue, error) {
	if size < 2 {
		return nil, fmt.Errorf("queue size must be at least 2, got %d", size)
	}
	q := newQueue(typ, size, s.clock.Now())
	if err := store.Save(ctx, s.store, q); err != nil {
		return nil, err
	}
	s.log.WithField("queue", q.ID).Infof("Created %s queue for %d players", typ, size)
	return q, nil
}

// EnsureQueue returns the open pool of typ, creating one when there is none.
func (s *Service) EnsureQueue(ctx context.Context, typ store.QueueType, size int) (*store.Queue, error) {
	q, err := store.OpenQueue(ctx, s.store, typ)
	if err != nil || q != nil {
		return q, err
	}
	return s.CreateQueue(ctx, typ, size)
}

// Queue returns the pool with id, or nil.
func (s *Service) Queue(ctx context.Context, id int64) (*store.Queue, error) {
	return store.Get[store.Queue](ctx, s.store, id)
}

// Join adds player to the pool.
func (s *Service) Join(ctx context.Context, playerID, queueID int64) (intent.Response, error) {
	resp, q, err := s.mutate(ctx, queueID, playerID, func(q *store.Queue) intent.Response {
		if q.Locked {
			return intent.Fail("Queue is locked")
		}
		if q.Has(playerID) {
			return intent.Fail("Player already in queue")
		}
		if q.IsFull() {
			return intent.Fail("Queue is full")
		}
		q.Players = append(q.Players, playerID)
		return intent.Succeed("Player joined queue")
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	s.log.WithField("queue", q.ID).Infof("Player %d joined queue (%d/%d)", playerID, len(q.Players), q.Size)
	s.bus.PublishAsync(ctx, PlayerJoinQueue{Player: playerID}, q)
	return resp, nil
}

// Leave removes player from the pool.
func (s *Service) Leave(ctx context.Context, playerID, queueID int64) (intent.Response, error) {
	resp, q, err := s.mutate(ctx, queueID, playerID, func(q *store.Queue) intent.Response {
		if q.Locked {
			return intent.Fail("Queue is locked")
		}
		if !q.Has(playerID) {
			return intent.Fail("Player not in queue")
		}
		q.Players = remove(q.Players, playerID)
		return intent.Succeed("Player left queue")
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	s.log.WithField("queue", q.ID).Infof("Player %d left queue (%d/%d)", playerID, len(q.Players), q.Size)
	s.bus.Publish(ctx, PlayerLeaveQueue{Player: playerID}, q)
	return resp, nil
}

// Confirm records that player accepts the match of a locked pool.
func (s *Service) Confirm(ctx context.Context, playerID, queueID int64) (intent.Response, error) {
	resp, q, err := s.mutate(ctx, queueID, playerID, func(q *store.Queue) intent.Response {
		if !q.Locked {
			return intent.Fail("Queue is not locked")
		}
		if !q.Has(playerID) {
			return intent.Fail("Player not in queue")
		}
		if q.HasConfirmed(playerID) {
			return intent.Fail("Player already confirmed")
		}
		q.ConfirmedPlayers = append(q.ConfirmedPlayers, playerID)
		return intent.Succeed("Player confirmed queue")
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	s.log.WithField("queue", q.ID).Infof("Player %d confirmed queue (%d/%d)", playerID, len(q.ConfirmedPlayers), q.Size)
	s.bus.Publish(ctx, PlayerConfirmQueue{Player: playerID}, q)
	return resp, nil
}

// mutate loads the pool and the player, applies fn and commits the pool when
// fn succeeds.
func (s *Service) mutate(ctx context.Context, queueID, playerID int64, fn func(q *store.Queue) intent.Response) (intent.Response, *store.Queue, error) {
	var (
		resp intent.Response
		q    *store.Queue
	)
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		q, err = store.Get[store.Queue](ctx, tx, queueID)
		if err != nil {
			return err
		}
		if q == nil {
			resp = intent.Fail("Queue not found")
			return nil
		}
		player, err := store.Get[store.Player](ctx, tx, playerID)
		if err != nil {
			return err
		}
		if player == nil {
			resp = intent.Fail("Player not found")
			return nil
		}

		resp = fn(q)
		if !resp.Success {
			return nil
		}
		return store.Save(ctx, tx, q)
	})
	if err != nil {
		return intent.Response{}, nil, err
	}
	return resp, q, nil
}

func newQueue(typ store.QueueType, size int, now time.Time) *store.Queue {
	return &store.Queue{
		Type:             typ,
		Size:             size,
		Players:          []int64{},
		ConfirmedPlayers: []int64{},
		CreatedAt:        now,
	}
}

func remove(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
