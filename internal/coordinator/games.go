package coordinator

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/mappick"
	"github.com/edvart/strike-inhouse/internal/permission"
	"github.com/edvart/strike-inhouse/internal/store"
)

// Game server plugins.
const (
	DefusalPlugin        = "DefusalPlugin"
	DeathmatchPlugin     = "DeathmatchPlugin"
	DuelPlugin           = "DuelPlugin"
	RankedPlugin         = "RankedPlugin"
	WarmUpPlugin         = "WarmUpPlugin"
	TargetPracticePlugin = "TargetPracticePlugin"
	WhitelistPlugin      = "WhitelistPlugin"
	CompetitivePlugin    = "CompetitivePlugin"
	GunGamePlugin        = "GunGamePlugin"
)

// PluginMap lists the plugins a game of each mode runs with.
var PluginMap = map[store.GameMode][]string{
	store.ModePub:         {DefusalPlugin, WarmUpPlugin},
	store.ModeCompetitive: {DefusalPlugin, WarmUpPlugin, WhitelistPlugin, CompetitivePlugin},
	store.ModeDuel:        {DuelPlugin, WarmUpPlugin},
	store.ModeRanked:      {DefusalPlugin, RankedPlugin, WarmUpPlugin, WhitelistPlugin, CompetitivePlugin},
	store.ModePractice:    {TargetPracticePlugin},
	store.ModeDeathmatch:  {DeathmatchPlugin, WarmUpPlugin},
	store.ModeGunGame:     {WarmUpPlugin, GunGamePlugin},
}

// modeTags picks the map pool for games created without an explicit map.
var modeTags = map[store.GameMode]string{
	store.ModePub:        store.TagCompetitive,
	store.ModeDeathmatch: store.TagCompetitive,
	store.ModeGunGame:    store.TagGunGame,
	store.ModeDuel:       store.TagDuel,
}

// onMapPickDone creates one game per picked map, in candidate order, and
// announces them to the game server.
func (c *Coordinator) onMapPickDone(ctx context.Context, subject any, evt mappick.MapPickDone) (any, error) {
	var created []*store.Game
	err := c.store.Update(ctx, func(tx store.Tx) error {
		match, err := store.Get[store.Match](ctx, tx, evt.Match)
		if err != nil {
			return err
		}
		if match == nil {
			return fmt.Errorf("match %d not found", evt.Match)
		}
		if len(match.Games) > 0 {
			return nil
		}

		process, err := store.Get[store.MapPickProcess](ctx, tx, match.MapPickProcess)
		if err != nil {
			return err
		}
		if process == nil || !process.Finished {
			return fmt.Errorf("match %d has no finished map pick process", match.ID)
		}
		teamOne, err := store.Get[store.MatchTeam](ctx, tx, match.TeamOne)
		if err != nil {
			return err
		}
		teamTwo, err := store.Get[store.MatchTeam](ctx, tx, match.TeamTwo)
		if err != nil {
			return err
		}

		mode := match.Mode
		if mode == "" {
			mode = store.ModeCompetitive
		}
		for _, pick := range process.PickedMaps() {
			game, err := c.createGame(ctx, tx, gameSpec{
				mapID:       pick.MapID,
				mode:        mode,
				match:       match,
				teams:       [2]*store.MatchTeam{teamOne, teamTwo},
				whitelisted: true,
			})
			if err != nil {
				return fmt.Errorf("create game for map %d: %w", pick.MapID, err)
			}
			created = append(created, game)
			match.Games = append(match.Games, game.ID)
		}
		return store.Save(ctx, tx, match)
	})
	if err != nil {
		return nil, err
	}

	log := c.log.WithField("match", evt.Match)
	for _, game := range created {
		log.Infof("Created %s game %d on map %d", game.Mode, game.ID, game.MapID)
		c.send(GameCreated{Game: game.ID})
	}
	return nil, nil
}

type gameSpec struct {
	mapID       int64
	mode        store.GameMode
	match       *store.Match
	teams       [2]*store.MatchTeam
	whitelisted bool
}

// createGame stores a game with its two in-game teams. Members of the match
// teams get an AWAY session on their side and are whitelisted.
func (c *Coordinator) createGame(ctx context.Context, tx store.Tx, opts gameSpec) (*store.Game, error) {
	game := &store.Game{
		MapID:         opts.mapID,
		Mode:          opts.mode,
		Status:        store.GameNotStarted,
		Plugins:       slices.Clone(PluginMap[opts.mode]),
		IsWhitelisted: opts.whitelisted,
		Whitelist:     []int64{},
		Blacklist:     []int64{},
		CreatedAt:     c.clock.Now(),
	}
	if opts.match != nil {
		game.MatchID = opts.match.ID
		game.ConfigOverrides = maps.Clone(opts.match.ConfigOverrides)
	}
	if err := store.Save(ctx, tx, game); err != nil {
		return nil, err
	}

	rosters := [2]int64{}
	for i, name := range []string{"Team A", "Team B"} {
		team := &store.InGameTeam{GameID: game.ID, Name: name, StartsAsCT: i == 0, IsCT: i == 0}
		if mt := opts.teams[i]; mt != nil {
			team.Name = mt.Name
			team.MatchTeam = mt.ID
		}
		if err := store.Save(ctx, tx, team); err != nil {
			return nil, err
		}
		rosters[i] = team.ID

		if opts.teams[i] == nil {
			continue
		}
		for _, playerID := range opts.teams[i].Players {
			session := &store.PlayerSession{
				PlayerID: playerID,
				GameID:   game.ID,
				RosterID: team.ID,
				Status:   store.SessionParticipating,
				State:    store.SessionAway,
			}
			if err := store.Save(ctx, tx, session); err != nil {
				return nil, err
			}
			game.Whitelist = append(game.Whitelist, playerID)
		}
	}

	game.TeamA, game.TeamB = rosters[0], rosters[1]
	if err := store.Save(ctx, tx, game); err != nil {
		return nil, err
	}
	return game, nil
}

// onCreateGame creates a standalone game requested from inside the game
// server. Requests without a player come from the server console.
func (c *Coordinator) onCreateGame(ctx context.Context, subject any, evt CreateGameIntentEvent) (intent.Response, error) {
	mode := store.GameMode(strings.ToUpper(evt.Mode))
	if _, ok := PluginMap[mode]; !ok {
		return intent.Fail("Unknown game mode " + evt.Mode), nil
	}

	if evt.Player != 0 {
		required := permission.GamesCreate
		if mode == store.ModeRanked {
			required = permission.GamesRankedCreate
		}
		ok, err := c.perms.HasPermission(ctx, evt.Player, required)
		if err != nil {
			return intent.Response{}, err
		}
		if !ok {
			return intent.Fail("You don't have permission to create games"), nil
		}
	}

	var (
		resp intent.Response
		game *store.Game
	)
	err := c.store.Update(ctx, func(tx store.Tx) error {
		m, err := c.pickMap(ctx, tx, evt.MapName, mode)
		if err != nil {
			return err
		}
		if m == nil && evt.MapName == "" {
			resp = intent.Fail(fmt.Sprintf("No map available for %s", mode))
			return nil
		}
		if m == nil {
			resp = intent.Fail("Unknown map " + evt.MapName)
			return nil
		}

		whitelisted := slices.Contains(PluginMap[mode], WhitelistPlugin)
		game, err = c.createGame(ctx, tx, gameSpec{mapID: m.ID, mode: mode, whitelisted: whitelisted})
		if err != nil {
			return err
		}
		if evt.Player != 0 && whitelisted {
			game.Whitelist = append(game.Whitelist, evt.Player)
			if err := store.Save(ctx, tx, game); err != nil {
				return err
			}
		}
		resp = intent.Succeed(fmt.Sprintf("Game created, it's ID is %d", game.ID)).With("game_id", game.ID)
		return nil
	})
	if err != nil || !resp.Success {
		return resp, err
	}

	c.log.WithField("game", game.ID).Infof("Created %s game on map %d", mode, game.MapID)
	c.send(GameCreated{Game: game.ID})
	return resp, nil
}

// pickMap returns the map called name, or a random map suited to mode when
// name is empty.
func (c *Coordinator) pickMap(ctx context.Context, tx store.Tx, name string, mode store.GameMode) (*store.Map, error) {
	all, err := store.List[store.Map](ctx, tx)
	if err != nil {
		return nil, err
	}
	if name != "" {
		for _, m := range all {
			if m.Name == name {
				return m, nil
			}
		}
		return nil, nil
	}

	candidates := all
	if tag, ok := modeTags[mode]; ok {
		candidates = slices.DeleteFunc(slices.Clone(all), func(m *store.Map) bool { return !m.HasTag(tag) })
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[rand.IntN(len(candidates))], nil
}
