package mappick

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/store"
)

// MapSelected is published on the match after every accepted selection.
type MapSelected struct {
	Process   int64  `json:"process"`
	Candidate int64  `json:"candidate"`
	Map       int64  `json:"map"`
	Player    int64  `json:"player"`
	Team      int64  `json:"team"`
	Action    string `json:"action"`
}

// MapPickDone is published on the match once its decider is known.
type MapPickDone struct {
	Match   int64 `json:"match"`
	Process int64 `json:"process"`
}

type Service struct {
	store store.Store
	bus   *eventbus.Bus
	log   logrus.FieldLogger
}

func NewService(st store.Store, bus *eventbus.Bus, log logrus.FieldLogger) *Service {
	return &Service{store: st, bus: bus, log: log}
}

// SelectMap bans or picks candidateID of the process on behalf of actor.
func (s *Service) SelectMap(ctx context.Context, processID, candidateID, actor int64) (intent.Response, error) {
	var (
		resp    intent.Response
		process *store.MapPickProcess
		match   *store.Match
		team    int64
	)

	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		process, err = store.Get[store.MapPickProcess](ctx, tx, processID)
		if err != nil {
			return err
		}
		if process == nil {
			resp = intent.Fail("Map pick process not found")
			return nil
		}
		match, err = store.Get[store.Match](ctx, tx, process.MatchID)
		if err != nil {
			return err
		}
		if match == nil {
			return fmt.Errorf("map pick process %d has no match", process.ID)
		}

		team, err = teamOf(ctx, tx, match, actor)
		if err != nil {
			return err
		}

		resp = Select(process, candidateID, actor, team, match.MapCount)
		if !resp.Success {
			return nil
		}
		return store.Save(ctx, tx, process)
	})
	if err != nil {
		return intent.Response{}, err
	}
	if !resp.Success {
		return resp, nil
	}

	candidate := process.Candidate(candidateID)
	log := s.log.WithFields(logrus.Fields{"process": process.ID, "match": match.ID})
	log.Infof("Player %d selected candidate %d (%s, selection %d)", actor, candidateID, candidate.Action, candidate.Order)

	s.bus.PublishAsync(ctx, MapSelected{
		Process:   process.ID,
		Candidate: candidateID,
		Map:       candidate.MapID,
		Player:    actor,
		Team:      team,
		Action:    candidate.Action.String(),
	}, match)

	if process.Finished {
		log.Infof("Map pick finished with %d map(s)", len(process.PickedMaps()))
		s.bus.Publish(ctx, MapPickDone{Match: match.ID, Process: process.ID}, match)
	}
	return resp, nil
}

// Process returns the process with id, or nil.
func (s *Service) Process(ctx context.Context, id int64) (*store.MapPickProcess, error) {
	return store.Get[store.MapPickProcess](ctx, s.store, id)
}

func teamOf(ctx context.Context, r store.Reader, match *store.Match, player int64) (int64, error) {
	for _, id := range []int64{match.TeamOne, match.TeamTwo} {
		team, err := store.Get[store.MatchTeam](ctx, r, id)
		if err != nil {
			return 0, err
		}
		if team != nil && team.Has(player) {
			return team.ID, nil
		}
	}
	return 0, nil
}
