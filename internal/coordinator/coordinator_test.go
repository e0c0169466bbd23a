package coordinator

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/gameserver"
	"github.com/edvart/strike-inhouse/internal/intent"
	"github.com/edvart/strike-inhouse/internal/mappick"
	"github.com/edvart/strike-inhouse/internal/permission"
	"github.com/edvart/strike-inhouse/internal/store"
)

type recordingConn struct {
	mu   sync.Mutex
	sent []gameserver.Message
}

func (c *recordingConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v.(gameserver.Message))
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.Type
	}
	return out
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

type fixture struct {
	st       *store.MemoryStore
	internal *eventbus.Bus
	games    *eventbus.Bus
	ingestor *gameserver.Ingestor
	conn     *recordingConn
	coord    *Coordinator

	players []*store.Player
	manager *store.Player
	match   *store.Match
	maps    []*store.Map
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log, _ := logtest.NewNullLogger()
	mock := clock.NewMock()

	f := &fixture{
		st:       store.NewMemoryStore(),
		internal: eventbus.New("internal", log, mock, eventbus.Inline{}),
		games:    eventbus.New("game", log, mock, eventbus.Inline{}),
		conn:     &recordingConn{},
	}
	channel := gameserver.NewChannel(log)
	channel.Attach(f.conn)
	f.ingestor = gameserver.NewIngestor(f.games, channel, log)

	coord, err := New(f.st, f.internal, f.games, channel, permission.NewStoreChecker(f.st, log), mock, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.coord = coord

	save := func(e store.Entity) {
		t.Helper()
		if err := store.Save(ctx, f.st, e); err != nil {
			t.Fatalf("Save %s: %v", e.Kind(), err)
		}
	}

	role := &store.Role{Name: "manager", Permissions: []string{"bms.games.manager.*", permission.GamesCreate}}
	save(role)
	f.manager = &store.Player{Username: "admin", Elo: 1000, RoleID: role.ID}
	save(f.manager)
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		p := &store.Player{Username: name, Elo: 1000}
		save(p)
		f.players = append(f.players, p)
	}
	for _, name := range []string{"de_dust2", "de_mirage", "de_nuke"} {
		m := &store.Map{Name: name, Tags: []string{store.TagCompetitive}}
		save(m)
		f.maps = append(f.maps, m)
	}

	teamOne := &store.MatchTeam{Name: "Team_alice", Players: []int64{f.players[0].ID, f.players[1].ID}}
	teamTwo := &store.MatchTeam{Name: "Team_carol", Players: []int64{f.players[2].ID, f.players[3].ID}}
	save(teamOne)
	save(teamTwo)

	picked, banned := true, false
	process := &store.MapPickProcess{
		PickerA:  f.players[0].ID,
		PickerB:  f.players[2].ID,
		Finished: true,
		Maps: []store.MapPick{
			{ID: 3, MapID: f.maps[2].ID, Picked: &picked, Action: store.ActionDefault},
			{ID: 1, MapID: f.maps[0].ID, Picked: &banned, Action: store.ActionBan},
			{ID: 2, MapID: f.maps[1].ID, Picked: &picked, Action: store.ActionPick},
		},
	}
	save(process)

	f.match = &store.Match{
		Name:            "Team_alice vs Team_carol",
		TeamOne:         teamOne.ID,
		TeamTwo:         teamTwo.ID,
		MapCount:        3,
		Mode:            store.ModeRanked,
		ConfigOverrides: map[string]any{"block_b_site": 1},
		MapPickProcess:  process.ID,
	}
	save(f.match)
	process.MatchID = f.match.ID
	save(process)
	return f
}

func (f *fixture) ingest(t *testing.T, evt any) intent.Response {
	t.Helper()
	e, err := eventbus.Abstract(evt)
	if err != nil {
		t.Fatalf("Abstract: %v", err)
	}
	return f.ingestor.Ingest(context.Background(), e)
}

func (f *fixture) pickDone(t *testing.T) []*store.Game {
	t.Helper()
	ctx := context.Background()
	f.internal.Publish(ctx, mappick.MapPickDone{Match: f.match.ID, Process: f.match.MapPickProcess}, f.match)

	match, _ := store.Get[store.Match](ctx, f.st, f.match.ID)
	var games []*store.Game
	for _, id := range match.Games {
		g, err := f.coord.Game(ctx, id)
		if err != nil || g == nil {
			t.Fatalf("load game %d: %v", id, err)
		}
		games = append(games, g)
	}
	return games
}

func (f *fixture) game(t *testing.T, id int64) *store.Game {
	t.Helper()
	g, err := f.coord.Game(context.Background(), id)
	if err != nil || g == nil {
		t.Fatalf("load game %d: %v", id, err)
	}
	return g
}

func TestMapPickDoneCreatesGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	games := f.pickDone(t)
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	// Candidate 2 sorts before candidate 3.
	if games[0].MapID != f.maps[1].ID || games[1].MapID != f.maps[2].ID {
		t.Fatalf("unexpected map order %d, %d", games[0].MapID, games[1].MapID)
	}

	for _, g := range games {
		if g.Mode != store.ModeRanked || !g.HasPlugin(RankedPlugin) || !g.IsWhitelisted || g.Status != store.GameNotStarted {
			t.Fatalf("unexpected game %+v", g)
		}
		if g.MatchID != f.match.ID || g.ConfigOverrides["block_b_site"] != float64(1) {
			t.Fatalf("unexpected match link %+v", g)
		}
		for _, p := range f.players {
			if !slices.Contains(g.Whitelist, p.ID) {
				t.Fatalf("player %s not whitelisted on game %d", p.Username, g.ID)
			}
		}

		teamA, _ := store.Get[store.InGameTeam](ctx, f.st, g.TeamA)
		teamB, _ := store.Get[store.InGameTeam](ctx, f.st, g.TeamB)
		if !teamA.StartsAsCT || !teamA.IsCT || teamB.StartsAsCT || teamA.Name != "Team_alice" || teamB.Name != "Team_carol" {
			t.Fatalf("unexpected teams %+v %+v", teamA, teamB)
		}

		sessions, _ := store.PlayerSessions(ctx, f.st, g.ID)
		if len(sessions) != 4 {
			t.Fatalf("expected 4 sessions, got %d", len(sessions))
		}
		for _, s := range sessions {
			if s.State != store.SessionAway || s.Status != store.SessionParticipating {
				t.Fatalf("unexpected session %+v", s)
			}
		}
		alice, _ := store.RosterPlayers(ctx, f.st, g.ID, g.TeamA)
		if len(alice) != 2 || alice[0].ID != f.players[0].ID {
			t.Fatalf("unexpected roster for team A: %v", alice)
		}
	}

	if got := f.conn.types(); !slices.Equal(got, []string{"GameCreated", "GameCreated"}) {
		t.Fatalf("unexpected outbound messages %v", got)
	}

	// A repeated MapPickDone does not create more games.
	if again := f.pickDone(t); len(again) != 2 {
		t.Fatalf("expected games to be created once, got %d", len(again))
	}
}

func TestWhitelistAndBlacklist(t *testing.T) {
	f := newFixture(t)
	game := f.pickDone(t)[0]
	outsider := f.players[0]
	f.conn.reset()

	resp := f.ingest(t, ChangePlayerWhitelistStatusAtGameIntent{Player: outsider.ID, Game: game.ID, Manager: f.players[1].ID, IsWhitelisted: false})
	if resp.Success || resp.Message != "You don't have permission to manage game whitelist" {
		t.Fatalf("expected permission failure, got %+v", resp)
	}

	steps := []struct {
		evt  any
		want string
	}{
		{ChangePlayerWhitelistStatusAtGameIntent{Player: outsider.ID, Game: game.ID, Manager: f.manager.ID, IsWhitelisted: true}, "Player already whitelisted"},
		{ChangePlayerWhitelistStatusAtGameIntent{Player: outsider.ID, Game: game.ID, Manager: f.manager.ID, IsWhitelisted: false}, "Player removed from whitelist"},
		{ChangePlayerWhitelistStatusAtGameIntent{Player: outsider.ID, Game: game.ID, Manager: f.manager.ID, IsWhitelisted: false}, "Player already not on whitelist"},
		{ChangePlayerBlacklistStatusAtGameIntent{Player: outsider.ID, Game: game.ID, Manager: f.manager.ID, IsBlacklisted: true}, "Player blacklisted"},
		{ChangePlayerBlacklistStatusAtGameIntent{Player: outsider.ID, Game: game.ID, Manager: f.manager.ID, IsBlacklisted: true}, "Player already blacklisted"},
	}
	for i, step := range steps {
		resp := f.ingest(t, step.evt)
		if !resp.Success || resp.Message != step.want {
			t.Fatalf("step %d: expected %q, got %+v", i, step.want, resp)
		}
	}

	got := f.game(t, game.ID)
	if slices.Contains(got.Whitelist, outsider.ID) || !slices.Contains(got.Blacklist, outsider.ID) {
		t.Fatalf("unexpected lists %v %v", got.Whitelist, got.Blacklist)
	}
	if n := len(f.conn.types()); n != 2 {
		t.Fatalf("expected GameUpdated for the 2 changes, got %d messages", n)
	}

	resp = f.ingest(t, PlayerJoinGameIntentEvent{Game: game.ID, Player: outsider.ID})
	if resp.Success {
		t.Fatalf("blacklisted player joined: %+v", resp)
	}
	resp = f.ingest(t, ChangePlayerWhitelistStatusAtGameIntent{Player: 999, Game: game.ID, Manager: f.manager.ID, IsWhitelisted: true})
	if resp.Success || resp.Message != "Invalid intent request" {
		t.Fatalf("expected invalid request, got %+v", resp)
	}
}

func TestRankedGameLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	game := f.pickDone(t)[0]
	alice, bob, carol, dave := f.players[0], f.players[1], f.players[2], f.players[3]

	var ended []GameEnded
	eventbus.On(f.internal, func(ctx context.Context, subject any, evt GameEnded) (any, error) {
		ended = append(ended, evt)
		return nil, nil
	})

	for _, p := range []*store.Player{alice, bob, carol} {
		resp := f.ingest(t, PlayerJoinGameIntentEvent{Game: game.ID, Player: p.ID})
		if !resp.Success {
			t.Fatalf("join %s: %+v", p.Username, resp)
		}
	}
	if resp := f.ingest(t, PlayerJoinGameIntentEvent{Game: game.ID, Player: f.manager.ID}); resp.Success {
		t.Fatalf("non-whitelisted player joined: %+v", resp)
	}
	if resp := f.ingest(t, PlayerJoinGameIntentEvent{Game: game.ID, Player: f.manager.ID, Spectate: true}); !resp.Success {
		t.Fatalf("spectator rejected: %+v", resp)
	}

	f.ingest(t, GameStartedEvent{Game: game.ID})
	started := f.game(t, game.ID)
	if started.Status != store.GameStarted || started.StartedAt == nil {
		t.Fatalf("expected started game, got %+v", started)
	}
	sessions, _ := store.PlayerSessions(ctx, f.st, game.ID)
	if len(sessions) != 4 {
		t.Fatalf("expected dave's absent session to be dropped, got %d sessions", len(sessions))
	}

	f.ingest(t, PreGameEndEvent{Game: game.ID, Winner: game.TeamA, Looser: game.TeamB})
	finished := f.game(t, game.ID)
	if finished.Status != store.GameFinished || finished.Winner != game.TeamA {
		t.Fatalf("unexpected result %+v", finished)
	}

	want := map[int64]int{alice.ID: 1016, bob.ID: 1016, carol.ID: 984, dave.ID: 1000}
	for id, elo := range want {
		p, _ := store.Get[store.Player](ctx, f.st, id)
		if p.Elo != elo {
			t.Fatalf("player %s: expected elo %d, got %d", p.Username, elo, p.Elo)
		}
	}
	if len(ended) != 1 || !ended[0].Ranked || ended[0].Match != f.match.ID {
		t.Fatalf("unexpected GameEnded %+v", ended)
	}

	// A second result is ignored.
	f.ingest(t, PreGameEndEvent{Game: game.ID, Winner: game.TeamA, Looser: game.TeamB})
	p, _ := store.Get[store.Player](ctx, f.st, alice.ID)
	if p.Elo != 1016 {
		t.Fatalf("result applied twice, elo %d", p.Elo)
	}
}

func TestLeaveGame(t *testing.T) {
	f := newFixture(t)
	game := f.pickDone(t)[0]
	alice := f.players[0]

	if resp := f.ingest(t, PlayerLeaveGameIntentEvent{Game: game.ID, Player: alice.ID}); resp.Success {
		t.Fatalf("left a game never joined: %+v", resp)
	}
	resp := f.ingest(t, PlayerJoinGameIntentEvent{Game: game.ID, Player: alice.ID})
	if !resp.Success || resp.Payload["roster"] != game.TeamA {
		t.Fatalf("expected alice on team A, got %+v", resp)
	}
	if resp := f.ingest(t, PlayerLeaveGameIntentEvent{Game: game.ID, Player: alice.ID}); !resp.Success {
		t.Fatalf("leave: %+v", resp)
	}
}

func TestDeleteGame(t *testing.T) {
	f := newFixture(t)
	game := f.pickDone(t)[0]
	f.conn.reset()

	if resp := f.ingest(t, GameDeleteIntentEvent{Game: 999}); resp.Success || resp.Message != "Game 999 not found on backend" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp := f.ingest(t, GameDeleteIntentEvent{Game: game.ID}); !resp.Success {
		t.Fatalf("delete: %+v", resp)
	}
	if got := f.game(t, game.ID); got.Status != store.GameTerminated {
		t.Fatalf("expected terminated game, got %s", got.Status)
	}
	if got := f.conn.types(); !slices.Equal(got, []string{"GameTerminatedEvent"}) {
		t.Fatalf("unexpected outbound messages %v", got)
	}
}

func TestCreateGame(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		evt  CreateGameIntentEvent
		ok   bool
		want string
	}{
		{"unknown mode", CreateGameIntentEvent{Mode: "CAPTURE"}, false, "Unknown game mode CAPTURE"},
		{"no permission", CreateGameIntentEvent{Mode: "pub", Player: f.players[0].ID}, false, "You don't have permission to create games"},
		{"ranked needs its own permission", CreateGameIntentEvent{Mode: "ranked", Player: f.manager.ID}, false, "You don't have permission to create games"},
		{"unknown map", CreateGameIntentEvent{Mode: "pub", MapName: "de_cache"}, false, "Unknown map de_cache"},
		{"no duel maps", CreateGameIntentEvent{Mode: "duel"}, false, "No map available for DUEL"},
		{"console", CreateGameIntentEvent{Mode: "pub", MapName: "de_nuke"}, true, ""},
		{"manager", CreateGameIntentEvent{Mode: "competitive", Player: f.manager.ID}, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.ingest(t, tc.evt)
			if resp.Success != tc.ok {
				t.Fatalf("expected success=%v, got %+v", tc.ok, resp)
			}
			if !tc.ok {
				if resp.Message != tc.want {
					t.Fatalf("expected %q, got %q", tc.want, resp.Message)
				}
				return
			}
			id, _ := resp.Payload["game_id"].(int64)
			game := f.game(t, id)
			if tc.evt.MapName != "" && game.MapID != f.maps[2].ID {
				t.Fatalf("expected de_nuke, got map %d", game.MapID)
			}
			if tc.evt.Player != 0 && !slices.Contains(game.Whitelist, tc.evt.Player) {
				t.Fatalf("expected creator to be whitelisted, got %v", game.Whitelist)
			}
		})
	}
}
