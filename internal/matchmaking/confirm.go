package matchmaking

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/store"
)

func queueSubject(subject any) (*store.Queue, error) {
	q, ok := subject.(*store.Queue)
	if !ok || q == nil {
		return nil, fmt.Errorf("expected queue subject, got %T", subject)
	}
	return q, nil
}

// onPlayerJoin locks a pool that just became full and waits for every member
// to confirm. Members that did not confirm in time are evicted and the pool
// is opened again.
func (s *Service) onPlayerJoin(ctx context.Context, subject any, evt PlayerJoinQueue) (any, error) {
	subjectQueue, err := queueSubject(subject)
	if err != nil {
		return nil, err
	}

	// Registered before the lock is committed so a fast confirmation cannot
	// slip between the two.
	confirmed := eventbus.WaitFor[QueueConfirmed](s.bus, s.cfg.ConfirmTimeout).On(subjectQueue)

	var q *store.Queue
	locked := false
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		q, err = store.Get[store.Queue](ctx, tx, subjectQueue.ID)
		if err != nil || q == nil {
			return err
		}
		if q.Locked || len(q.Players) != q.Size {
			return nil
		}
		now := s.clock.Now()
		q.Locked = true
		q.LockedAt = &now
		locked = true
		return store.Save(ctx, tx, q)
	})
	if err != nil || !locked {
		confirmed.Cancel()
		return nil, err
	}

	log := s.log.WithField("queue", q.ID)
	log.Infof("Queue full (%d/%d), waiting %s for confirmations", len(q.Players), q.Size, s.cfg.ConfirmTimeout)
	s.bus.PublishAsync(ctx, QueueLocked{
		Players:  q.Players,
		Deadline: q.LockedAt.Add(s.cfg.ConfirmTimeout).Unix(),
	}, q)

	_, err = confirmed.Wait(ctx)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, eventbus.ErrWaitTimeout):
		return nil, s.rollback(ctx, q.ID)
	default:
		confirmed.Cancel()
		return nil, err
	}
}

// rollback evicts members that did not confirm, unlocks the pool and clears
// confirmations. A pool that got confirmed in the meantime is left alone,
// including one whose last confirmation is committed but not yet marked.
func (s *Service) rollback(ctx context.Context, queueID int64) error {
	var (
		q        *store.Queue
		evicted  []int64
		unlocked bool
	)
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		q, err = store.Get[store.Queue](ctx, tx, queueID)
		if err != nil || q == nil {
			return err
		}
		if !q.Locked || q.Confirmed || len(q.ConfirmedPlayers) == q.Size {
			return nil
		}

		kept := make([]int64, 0, len(q.Players))
		for _, id := range q.Players {
			if q.HasConfirmed(id) {
				kept = append(kept, id)
			} else {
				evicted = append(evicted, id)
			}
		}
		q.Players = kept
		q.Locked = false
		q.LockedAt = nil
		q.ConfirmedPlayers = []int64{}
		unlocked = true
		return store.Save(ctx, tx, q)
	})
	if err != nil || !unlocked {
		return err
	}

	s.log.WithField("queue", q.ID).Warnf("QueueConfirmed was never received, unlocking queue. Not confirmed: %d", len(evicted))
	s.bus.PublishAsync(ctx, QueueUnlocked{Evicted: evicted}, q)
	return nil
}

// onPlayerConfirm marks the pool confirmed once every member confirmed.
func (s *Service) onPlayerConfirm(ctx context.Context, subject any, evt PlayerConfirmQueue) (any, error) {
	subjectQueue, err := queueSubject(subject)
	if err != nil {
		return nil, err
	}

	var q *store.Queue
	done := false
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		q, err = store.Get[store.Queue](ctx, tx, subjectQueue.ID)
		if err != nil || q == nil {
			return err
		}
		if q.Confirmed || !q.Locked || len(q.ConfirmedPlayers) != q.Size {
			return nil
		}
		q.Confirmed = true
		done = true
		return store.Save(ctx, tx, q)
	})
	if err != nil || !done {
		return nil, err
	}

	s.log.WithField("queue", q.ID).Info("All players confirmed queue")
	s.bus.Publish(ctx, QueueConfirmed{}, q)
	return nil, nil
}
