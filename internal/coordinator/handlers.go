package coordinator

import (
	"context"
	"fmt"
	"slices"

	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/permission"
	"github.com/edvart/strike-inhouse/internal/ranked"
	"github.com/edvart/strike-inhouse/internal/store"
)

func (c *Coordinator) onGameDelete(ctx context.Context, subject any, evt GameDeleteIntentEvent) (intent.Response, error) {
	var resp intent.Response
	err := c.store.Update(ctx, func(tx store.Tx) error {
		game, err := store.Get[store.Game](ctx, tx, evt.Game)
		if err != nil {
			return err
		}
		if game == nil {
			resp = intent.Fail(fmt.Sprintf("Game %d not found on backend", evt.Game))
			return nil
		}
		game.Status = store.GameTerminated
		resp = intent.Succeed("Game deleted")
		return store.Save(ctx, tx, game)
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	c.log.WithField("game", evt.Game).Info("Game terminated")
	c.send(GameTerminatedEvent{Game: evt.Game})
	return resp, nil
}

// listChange describes a whitelist or blacklist toggle.
type listChange struct {
	player, game, manager int64
	add                   bool
	required              string
	list                  func(g *store.Game) *[]int64
	noun                  string
}

func (c *Coordinator) onWhitelistChange(ctx context.Context, subject any, evt ChangePlayerWhitelistStatusAtGameIntent) (intent.Response, error) {
	return c.changeList(ctx, listChange{
		player:   evt.Player,
		game:     evt.Game,
		manager:  evt.Manager,
		add:      evt.IsWhitelisted,
		required: permission.GamesWhitelist,
		list:     func(g *store.Game) *[]int64 { return &g.Whitelist },
		noun:     "whitelist",
	})
}

func (c *Coordinator) onBlacklistChange(ctx context.Context, subject any, evt ChangePlayerBlacklistStatusAtGameIntent) (intent.Response, error) {
	return c.changeList(ctx, listChange{
		player:   evt.Player,
		game:     evt.Game,
		manager:  evt.Manager,
		add:      evt.IsBlacklisted,
		required: permission.GamesBlacklist,
		list:     func(g *store.Game) *[]int64 { return &g.Blacklist },
		noun:     "blacklist",
	})
}

func (c *Coordinator) changeList(ctx context.Context, ch listChange) (intent.Response, error) {
	allowed, err := c.perms.HasPermission(ctx, ch.manager, ch.required)
	if err != nil {
		return intent.Response{}, err
	}
	if !allowed {
		return intent.Fail(fmt.Sprintf("You don't have permission to manage game %s", ch.noun)), nil
	}

	var (
		resp    intent.Response
		changed bool
	)
	err = c.store.Update(ctx, func(tx store.Tx) error {
		player, err := store.Get[store.Player](ctx, tx, ch.player)
		if err != nil {
			return err
		}
		game, err := store.Get[store.Game](ctx, tx, ch.game)
		if err != nil {
			return err
		}
		if player == nil || game == nil {
			resp = intent.Fail("Invalid intent request")
			return nil
		}

		list := ch.list(game)
		has := slices.Contains(*list, player.ID)
		switch {
		case ch.add && has:
			resp = intent.Succeed("Player already " + ch.noun + "ed")
		case ch.add:
			*list = append(*list, player.ID)
			resp = intent.Succeed("Player " + ch.noun + "ed")
			changed = true
		case has:
			*list = slices.DeleteFunc(*list, func(id int64) bool { return id == player.ID })
			resp = intent.Succeed("Player removed from " + ch.noun)
			changed = true
		default:
			resp = intent.Succeed("Player already not on " + ch.noun)
		}
		if !changed {
			return nil
		}
		return store.Save(ctx, tx, game)
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	if changed {
		c.log.WithField("game", ch.game).Infof("Manager %d changed %s status of player %d", ch.manager, ch.noun, ch.player)
		c.send(GameUpdated{Game: ch.game})
	}
	return resp, nil
}

// onPlayerJoinGame places a player in a game. Match members keep the side of
// their match team; everyone else joins the emptier side.
func (c *Coordinator) onPlayerJoinGame(ctx context.Context, subject any, evt PlayerJoinGameIntentEvent) (intent.Response, error) {
	var resp intent.Response
	err := c.store.Update(ctx, func(tx store.Tx) error {
		game, err := store.Get[store.Game](ctx, tx, evt.Game)
		if err != nil {
			return err
		}
		player, err := store.Get[store.Player](ctx, tx, evt.Player)
		if err != nil {
			return err
		}
		if game == nil || player == nil {
			resp = intent.Fail("Invalid intent request")
			return nil
		}

		deny := func(reason string) {
			c.log.WithField("game", game.ID).Infof("Player %s denied join: %s", player.Username, reason)
			resp = intent.Fail(fmt.Sprintf("Cannot join game %d: %s", game.ID, reason))
		}
		switch {
		case game.Status == store.GameFinished || game.Status == store.GameTerminated:
			deny("game is over")
			return nil
		case slices.Contains(game.Blacklist, player.ID):
			deny("you are blacklisted")
			return nil
		case !evt.Spectate && game.IsWhitelisted && !slices.Contains(game.Whitelist, player.ID):
			deny("you are not whitelisted")
			return nil
		}

		sessions, err := store.PlayerSessions(ctx, tx, game.ID)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(sessions, func(s *store.PlayerSession) bool { return s.PlayerID == player.ID })
		session := &store.PlayerSession{PlayerID: player.ID, GameID: game.ID}
		if idx >= 0 {
			session = sessions[idx]
		}

		if evt.Spectate {
			session.Status = store.SessionSpectator
			session.RosterID = 0
		} else {
			session.Status = store.SessionParticipating
			if session.RosterID == 0 {
				session.RosterID = emptierRoster(game, sessions)
			}
		}
		session.State = store.SessionInGame
		if err := store.Save(ctx, tx, session); err != nil {
			return err
		}
		resp = intent.Succeed("You joined the game").With("roster", session.RosterID)
		return nil
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	c.log.WithField("game", evt.Game).Infof("Player %d joined game", evt.Player)
	c.send(GameUpdated{Game: evt.Game})
	return resp, nil
}

func emptierRoster(game *store.Game, sessions []*store.PlayerSession) int64 {
	a, b := 0, 0
	for _, s := range sessions {
		if s.State != store.SessionInGame {
			continue
		}
		switch s.RosterID {
		case game.TeamA:
			a++
		case game.TeamB:
			b++
		}
	}
	if b < a {
		return game.TeamB
	}
	return game.TeamA
}

func (c *Coordinator) onPlayerLeaveGame(ctx context.Context, subject any, evt PlayerLeaveGameIntentEvent) (intent.Response, error) {
	var resp intent.Response
	err := c.store.Update(ctx, func(tx store.Tx) error {
		sessions, err := store.PlayerSessions(ctx, tx, evt.Game)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(sessions, func(s *store.PlayerSession) bool {
			return s.PlayerID == evt.Player && s.State == store.SessionInGame
		})
		if idx < 0 {
			resp = intent.Fail("You are not in this game")
			return nil
		}
		sessions[idx].State = store.SessionAway
		resp = intent.Succeed("You left the game")
		return store.Save(ctx, tx, sessions[idx])
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	c.log.WithField("game", evt.Game).Infof("Player %d left game", evt.Player)
	c.send(GameUpdated{Game: evt.Game})
	return resp, nil
}

// onGameStarted marks the game started and drops sessions of players that
// never showed up.
func (c *Coordinator) onGameStarted(ctx context.Context, subject any, evt GameStartedEvent) (any, error) {
	dropped := 0
	err := c.store.Update(ctx, func(tx store.Tx) error {
		game, err := store.Get[store.Game](ctx, tx, evt.Game)
		if err != nil {
			return err
		}
		if game == nil {
			return fmt.Errorf("game %d not found", evt.Game)
		}
		if game.Status != store.GameNotStarted {
			return nil
		}
		now := c.clock.Now()
		game.Status = store.GameStarted
		game.StartedAt = &now
		if err := store.Save(ctx, tx, game); err != nil {
			return err
		}

		sessions, err := store.PlayerSessions(ctx, tx, game.ID)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if s.State != store.SessionAway {
				continue
			}
			if err := store.Delete(ctx, tx, s); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.WithField("game", evt.Game).Infof("Game started, dropped %d absent sessions", dropped)
	return nil, nil
}

// onPreGameEnd records the result. Ranked games move the rating of every
// player on the two rosters.
func (c *Coordinator) onPreGameEnd(ctx context.Context, subject any, evt PreGameEndEvent) (any, error) {
	var (
		game   *store.Game
		isRank bool
		ended  bool
	)
	err := c.store.Update(ctx, func(tx store.Tx) error {
		var err error
		game, err = store.Get[store.Game](ctx, tx, evt.Game)
		if err != nil {
			return err
		}
		if game == nil {
			return fmt.Errorf("game %d not found", evt.Game)
		}
		if game.Status == store.GameFinished || game.Status == store.GameTerminated {
			return nil
		}

		if evt.Winner != 0 && evt.Looser != 0 {
			game.Winner = evt.Winner
			if game.HasPlugin(RankedPlugin) {
				isRank = true
				if err := c.scoreRanked(ctx, tx, game, evt.Winner, evt.Looser); err != nil {
					return err
				}
			}
		}
		game.Status = store.GameFinished
		ended = true
		return store.Save(ctx, tx, game)
	})
	if err != nil || !ended {
		return nil, err
	}

	c.log.WithField("game", game.ID).Infof("Game finished, winner roster %d", game.Winner)
	c.internal.PublishAsync(ctx, GameEnded{Game: game.ID, Match: game.MatchID, Winner: game.Winner, Ranked: isRank}, game)
	c.send(GameUpdated{Game: game.ID})
	return nil, nil
}

func (c *Coordinator) scoreRanked(ctx context.Context, tx store.Tx, game *store.Game, winnerID, looserID int64) error {
	winners, err := store.RosterPlayers(ctx, tx, game.ID, winnerID)
	if err != nil {
		return err
	}
	losers, err := store.RosterPlayers(ctx, tx, game.ID, looserID)
	if err != nil {
		return err
	}

	win, _ := ranked.Compute(elos(winners), elos(losers))
	_, loss := ranked.Compute(elos(losers), elos(winners))

	for _, p := range winners {
		p.Elo = ranked.Apply(p.Elo, win)
		if err := store.Save(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, p := range losers {
		p.Elo = ranked.Apply(p.Elo, -loss)
		if err := store.Save(ctx, tx, p); err != nil {
			return err
		}
	}
	c.log.WithField("game", game.ID).Infof("Ranked result: +%d for %d winners, -%d for %d losers", win, len(winners), loss, len(losers))
	return nil
}

func elos(players []*store.Player) []int {
	out := make([]int, len(players))
	for i, p := range players {
		out[i] = p.Elo
	}
	return out
}
