// Package matchrecorder keeps the history of finished games and matches.
package matchrecorder

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/coordinator"
	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/store"
)

// MatchCompleted is published on the match once every game of it is over.
// Winner is the match team that won most games, zero on a tie.
type MatchCompleted struct {
	Match  int64 `json:"match"`
	Winner int64 `json:"winner,omitempty"`
}

// Recorder saves finished games to the history.
type Recorder struct {
	store store.Store
	bus   *eventbus.Bus
	clock clock.Clock
	log   logrus.FieldLogger
}

func New(st store.Store, bus *eventbus.Bus, clk clock.Clock, log logrus.FieldLogger) *Recorder {
	return &Recorder{
		store: st,
		bus:   bus,
		clock: clk,
		log:   log.WithField("component", "recorder"),
	}
}

// Register subscribes the recorder to game results on its bus.
func (r *Recorder) Register() error {
	return eventbus.On(r.bus, r.onGameEnded)
}

func (r *Recorder) onGameEnded(ctx context.Context, subject any, e coordinator.GameEnded) (any, error) {
	var (
		result    *store.GameResult
		match     *store.Match
		completed bool
		winner    int64
	)
	err := r.store.Update(ctx, func(tx store.Tx) error {
		existing, err := store.GameResultFor(ctx, tx, e.Game)
		if err != nil || existing != nil {
			return err
		}
		game, err := store.Get[store.Game](ctx, tx, e.Game)
		if err != nil {
			return err
		}
		if game == nil {
			return fmt.Errorf("game %d not found", e.Game)
		}

		if result, err = r.record(ctx, tx, game, e.Ranked); err != nil {
			return err
		}
		if game.MatchID == 0 {
			return nil
		}
		if match, err = store.Get[store.Match](ctx, tx, game.MatchID); err != nil || match == nil {
			return err
		}
		completed, winner, err = matchOutcome(ctx, tx, match)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		r.log.WithField("game", e.Game).Debug("Game result already recorded")
		return nil, nil
	}

	r.log.WithField("game", e.Game).Infof("Recorded result for %d players", len(result.Players))
	if completed {
		r.log.WithField("match", match.ID).Infof("Match completed, winner team %d", winner)
		r.bus.PublishAsync(ctx, MatchCompleted{Match: match.ID, Winner: winner}, match)
	}
	return result.ID, nil
}

func (r *Recorder) record(ctx context.Context, tx store.Tx, game *store.Game, ranked bool) (*store.GameResult, error) {
	sessions, err := store.PlayerSessions(ctx, tx, game.ID)
	if err != nil {
		return nil, err
	}

	result := &store.GameResult{
		GameID:     game.ID,
		MatchID:    game.MatchID,
		MapID:      game.MapID,
		Mode:       game.Mode,
		Winner:     game.Winner,
		Ranked:     ranked,
		Players:    []store.ResultPlayer{},
		FinishedAt: r.clock.Now(),
	}
	for _, s := range sessions {
		if s.Status != store.SessionParticipating || s.RosterID == 0 {
			continue
		}
		player, err := store.Get[store.Player](ctx, tx, s.PlayerID)
		if err != nil {
			return nil, err
		}
		if player == nil {
			continue
		}
		result.Players = append(result.Players, store.ResultPlayer{
			PlayerID: player.ID,
			RosterID: s.RosterID,
			Elo:      player.Elo,
		})
	}
	if err := store.Save(ctx, tx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// matchOutcome reports whether every game of match is over and which match
// team won the most of them.
func matchOutcome(ctx context.Context, tx store.Tx, match *store.Match) (bool, int64, error) {
	wins := map[int64]int{}
	for _, id := range match.Games {
		game, err := store.Get[store.Game](ctx, tx, id)
		if err != nil {
			return false, 0, err
		}
		if game == nil {
			continue
		}
		if game.Status != store.GameFinished && game.Status != store.GameTerminated {
			return false, 0, nil
		}
		if game.Winner == 0 {
			continue
		}
		team, err := store.Get[store.InGameTeam](ctx, tx, game.Winner)
		if err != nil {
			return false, 0, err
		}
		if team != nil && team.MatchTeam != 0 {
			wins[team.MatchTeam]++
		}
	}

	switch one, two := wins[match.TeamOne], wins[match.TeamTwo]; {
	case one > two:
		return true, match.TeamOne, nil
	case two > one:
		return true, match.TeamTwo, nil
	}
	return true, 0, nil
}

// History returns the latest results of playerID.
func (r *Recorder) History(ctx context.Context, playerID int64, limit int) ([]*store.GameResult, error) {
	return store.PlayerHistory(ctx, r.store, playerID, limit)
}
