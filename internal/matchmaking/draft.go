package matchmaking

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/mappick"
	"github.com/edvart/strike-inhouse/internal/store"
)

// smallQueueSize is the largest pool that plays on a single bomb site.
const smallQueueSize = 4

// SelectCaptains returns the two highest rated players. captainA is the
// second highest and picks first; ties keep pool order.
func SelectCaptains(players []*store.Player) (captainA, captainB *store.Player) {
	if len(players) < 2 {
		return nil, nil
	}
	sorted := slices.Clone(players)
	slices.SortStableFunc(sorted, func(a, b *store.Player) int { return cmp.Compare(a.Elo, b.Elo) })
	return sorted[len(sorted)-2], sorted[len(sorted)-1]
}

// onQueueConfirmed drafts a confirmed pool: it chooses captains, creates the
// match with its teams and map pick process, and replaces the pool with a
// fresh one.
func (s *Service) onQueueConfirmed(ctx context.Context, subject any, evt QueueConfirmed) (any, error) {
	subjectQueue, err := queueSubject(subject)
	if err != nil {
		return nil, err
	}

	var (
		q       *store.Queue
		started DraftStarted
		drafted bool
	)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		q, err = store.Get[store.Queue](ctx, tx, subjectQueue.ID)
		if err != nil || q == nil {
			return err
		}
		if !q.Confirmed || q.CaptainA != 0 {
			return nil
		}

		players := make([]*store.Player, 0, len(q.Players))
		for _, id := range q.Players {
			p, err := store.Get[store.Player](ctx, tx, id)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("queue %d references missing player %d", q.ID, id)
			}
			players = append(players, p)
		}
		captainA, captainB := SelectCaptains(players)
		if captainA == nil {
			return fmt.Errorf("queue %d has fewer than two players", q.ID)
		}

		match, err := s.createMatch(ctx, tx, q, captainA, captainB)
		if err != nil {
			return err
		}

		next := newQueue(q.Type, q.Size, s.clock.Now())
		if err := store.Save(ctx, tx, next); err != nil {
			return err
		}

		q.MatchID = match.ID
		q.CaptainA = captainA.ID
		q.CaptainB = captainB.ID
		q.SupersededBy = next.ID
		if err := store.Save(ctx, tx, q); err != nil {
			return err
		}

		started = DraftStarted{
			Match:     match.ID,
			CaptainA:  captainA.ID,
			CaptainB:  captainB.ID,
			NextQueue: next.ID,
		}
		drafted = true
		return nil
	})
	if err != nil || !drafted {
		return nil, err
	}

	s.log.WithField("queue", q.ID).Infof("Draft started for match %d. Captains: %d, %d. New queue %d",
		started.Match, started.CaptainA, started.CaptainB, started.NextQueue)
	s.bus.PublishAsync(ctx, started, q)
	return nil, nil
}

func (s *Service) createMatch(ctx context.Context, tx store.Tx, q *store.Queue, captainA, captainB *store.Player) (*store.Match, error) {
	teamOne := &store.MatchTeam{Name: "Team_" + captainA.Username, Players: []int64{captainA.ID}}
	teamTwo := &store.MatchTeam{Name: "Team_" + captainB.Username, Players: []int64{captainB.ID}}
	if err := store.Save(ctx, tx, teamOne); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, tx, teamTwo); err != nil {
		return nil, err
	}

	maps, err := s.mapPool(ctx, tx)
	if err != nil {
		return nil, err
	}
	mapIDs := make([]int64, len(maps))
	for i, m := range maps {
		mapIDs[i] = m.ID
	}
	process := mappick.NewProcess(captainA.ID, captainB.ID, mapIDs)
	if err := store.Save(ctx, tx, process); err != nil {
		return nil, err
	}

	blockB := 0
	if q.Size <= smallQueueSize {
		blockB = 1
	}
	match := &store.Match{
		Name:     fmt.Sprintf("%s vs %s", teamOne.Name, teamTwo.Name),
		TeamOne:  teamOne.ID,
		TeamTwo:  teamTwo.ID,
		MapCount: s.cfg.MapCount,
		Mode:     store.ModeRanked,
		ConfigOverrides: map[string]any{
			"min_players":  q.Size,
			"max_players":  q.Size,
			"block_b_site": blockB,
		},
		MapPickProcess: process.ID,
		CreatedAt:      s.clock.Now(),
	}
	if err := store.Save(ctx, tx, match); err != nil {
		return nil, err
	}

	process.MatchID = match.ID
	if err := store.Save(ctx, tx, process); err != nil {
		return nil, err
	}
	return match, nil
}

// Pick drafts target onto the team of captain. Captain A picks whenever the
// teams are even, captain B whenever team one is ahead by one.
func (s *Service) Pick(ctx context.Context, captainID, targetID, queueID int64) (intent.Response, error) {
	var (
		resp     intent.Response
		q        *store.Queue
		team     *store.MatchTeam
		complete bool
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
		if !q.IsCaptain(captainID) {
			resp = intent.Fail("Player is not a captain")
			return nil
		}

		match, err := store.Get[store.Match](ctx, tx, q.MatchID)
		if err != nil {
			return err
		}
		if match == nil {
			return fmt.Errorf("queue %d has captains but no match", q.ID)
		}
		teamOne, err := store.Get[store.MatchTeam](ctx, tx, match.TeamOne)
		if err != nil {
			return err
		}
		teamTwo, err := store.Get[store.MatchTeam](ctx, tx, match.TeamTwo)
		if err != nil {
			return err
		}
		if teamOne == nil || teamTwo == nil {
			return fmt.Errorf("match %d is missing a team", match.ID)
		}

		a, b := len(teamOne.Players), len(teamTwo.Players)
		isA := captainID == q.CaptainA
		if (isA && a != b) || (!isA && a-b != 1) {
			resp = intent.Fail("Not your turn")
			return nil
		}
		if !q.Confirmed {
			resp = intent.Fail("Queue not confirmed")
			return nil
		}
		if !q.Has(targetID) {
			resp = intent.Fail("Player not in queue")
			return nil
		}
		if teamOne.Has(targetID) || teamTwo.Has(targetID) {
			resp = intent.Fail("Player already picked")
			return nil
		}

		team = teamTwo
		if isA {
			team = teamOne
		}
		team.Players = append(team.Players, targetID)
		if err := store.Save(ctx, tx, team); err != nil {
			return err
		}

		complete = len(teamOne.Players)+len(teamTwo.Players) == len(q.Players)
		resp = intent.Succeed("Player picked")
		return nil
	})
	if err != nil {
		return intent.Response{}, err
	}
	if !resp.Success {
		return resp, nil
	}

	log := s.log.WithField("queue", q.ID)
	log.Infof("Captain %d picked %d for %s", captainID, targetID, team.Name)
	s.bus.Publish(ctx, PlayerPicked{Player: targetID, Captain: captainID, Team: team.ID}, q)

	if complete {
		log.Infof("Draft completed for match %d", q.MatchID)
		s.bus.PublishAsync(ctx, DraftCompleted{Match: q.MatchID}, q)
	}
	return resp, nil
}

// Draft is the current state of a drafted pool.
type Draft struct {
	Queue   *store.Queue     `json:"queue"`
	Match   *store.Match     `json:"match,omitempty"`
	TeamOne *store.MatchTeam `json:"team_one,omitempty"`
	TeamTwo *store.MatchTeam `json:"team_two,omitempty"`
}

// DraftState returns the pool with its match and teams, when drafted.
func (s *Service) DraftState(ctx context.Context, queueID int64) (*Draft, error) {
	q, err := store.Get[store.Queue](ctx, s.store, queueID)
	if err != nil || q == nil {
		return nil, err
	}
	d := &Draft{Queue: q}
	if q.MatchID == 0 {
		return d, nil
	}
	if d.Match, err = store.Get[store.Match](ctx, s.store, q.MatchID); err != nil || d.Match == nil {
		return d, err
	}
	if d.TeamOne, err = store.Get[store.MatchTeam](ctx, s.store, d.Match.TeamOne); err != nil {
		return nil, err
	}
	if d.TeamTwo, err = store.Get[store.MatchTeam](ctx, s.store, d.Match.TeamTwo); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) mapPool(ctx context.Context, tx store.Tx) ([]*store.Map, error) {
	if len(s.cfg.MapPool) == 0 {
		return store.MapsWithTag(ctx, tx, store.TagCompetitive)
	}
	maps, err := store.MapsNamed(ctx, tx, s.cfg.MapPool)
	if err != nil {
		return nil, err
	}
	if len(maps) != len(s.cfg.MapPool) {
		return nil, fmt.Errorf("map pool: only %d of %d maps exist", len(maps), len(s.cfg.MapPool))
	}
	return maps, nil
}
