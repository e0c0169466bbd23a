package store

import (
	"cmp"
	"slices"
	"time"
)

const (
	KindPlayer           = "player"
	KindRole             = "role"
	KindQueue            = "queue"
	KindMatch            = "match"
	KindMatchTeam        = "match_team"
	KindMapPickProcess   = "map_pick_process"
	KindMap              = "map"
	KindGame             = "game"
	KindInGameTeam       = "in_game_team"
	KindPlayerSession    = "player_session"
	KindSession          = "session"
	KindPushSubscription = "push_subscription"
	KindGameResult       = "game_result"
)

type Player struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Elo              int       `json:"elo"`
	RoleID           int64     `json:"role_id,omitempty"`
	PasswordHash     string    `json:"password_hash,omitempty"`
	VerificationCode int       `json:"verification_code,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Verified reports whether the player registered a password.
func (p *Player) Verified() bool {
	return p.PasswordHash != ""
}

func (p *Player) Kind() string         { return KindPlayer }
func (p *Player) EntityID() int64      { return p.ID }
func (p *Player) SetEntityID(id int64) { p.ID = id }

// Role groups dotted permission paths such as "bms.games.*".
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (r *Role) Kind() string         { return KindRole }
func (r *Role) EntityID() int64      { return r.ID }
func (r *Role) SetEntityID(id int64) { r.ID = id }

type QueueType string

const QueueRanked QueueType = "RANKED"

// Queue is a matchmaking pool. Once drafted it is superseded by a fresh pool
// of the same type and size and is kept for history.
type Queue struct {
	ID               int64      `json:"id"`
	Type             QueueType  `json:"type"`
	Size             int        `json:"size"`
	Players          []int64    `json:"players"`
	Locked           bool       `json:"locked"`
	LockedAt         *time.Time `json:"locked_at,omitempty"`
	ConfirmedPlayers []int64    `json:"confirmed_players"`
	Confirmed        bool       `json:"confirmed"`
	CaptainA         int64      `json:"captain_a,omitempty"`
	CaptainB         int64      `json:"captain_b,omitempty"`
	MatchID          int64      `json:"match_id,omitempty"`
	SupersededBy     int64      `json:"superseded_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (q *Queue) Kind() string         { return KindQueue }
func (q *Queue) EntityID() int64      { return q.ID }
func (q *Queue) SetEntityID(id int64) { q.ID = id }

func (q *Queue) Has(playerID int64) bool {
	return slices.Contains(q.Players, playerID)
}

func (q *Queue) HasConfirmed(playerID int64) bool {
	return slices.Contains(q.ConfirmedPlayers, playerID)
}

func (q *Queue) IsFull() bool {
	return len(q.Players) >= q.Size
}

// IsCaptain reports whether playerID is one of the two drafted captains.
func (q *Queue) IsCaptain(playerID int64) bool {
	return playerID != 0 && (playerID == q.CaptainA || playerID == q.CaptainB)
}

// MatchTeam is the set of players that may join one side of a match.
type MatchTeam struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Players []int64 `json:"players"`
}

func (t *MatchTeam) Kind() string         { return KindMatchTeam }
func (t *MatchTeam) EntityID() int64      { return t.ID }
func (t *MatchTeam) SetEntityID(id int64) { t.ID = id }

func (t *MatchTeam) Has(playerID int64) bool {
	return slices.Contains(t.Players, playerID)
}

type GameMode string

const (
	ModeCompetitive GameMode = "COMPETITIVE"
	ModePub         GameMode = "PUB"
	ModeDeathmatch  GameMode = "DEATHMATCH"
	ModeDuel        GameMode = "DUEL"
	ModePractice    GameMode = "PRACTICE"
	ModeRanked      GameMode = "RANKED"
	ModeGunGame     GameMode = "GUNGAME"
)

type Match struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	TeamOne         int64          `json:"team_one"`
	TeamTwo         int64          `json:"team_two"`
	MapCount        int            `json:"map_count"`
	Mode            GameMode       `json:"mode"`
	ConfigOverrides map[string]any `json:"config_overrides,omitempty"`
	MapPickProcess  int64          `json:"map_pick_process"`
	Games           []int64        `json:"games,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (m *Match) Kind() string         { return KindMatch }
func (m *Match) EntityID() int64      { return m.ID }
func (m *Match) SetEntityID(id int64) { m.ID = id }

// PickAction is what the next selection in a map pick process does.
type PickAction int

const (
	ActionNull    PickAction = 0
	ActionBan     PickAction = 1
	ActionPick    PickAction = 2
	ActionDefault PickAction = 3
)

func (a PickAction) String() string {
	switch a {
	case ActionBan:
		return "BAN"
	case ActionPick:
		return "PICK"
	case ActionDefault:
		return "DEFAULT"
	}
	return "NULL"
}

// MapPick is one candidate map of a process. Picked is nil until the
// candidate is selected; SelectedBy is 0 for the decider.
type MapPick struct {
	ID         int64      `json:"id"`
	MapID      int64      `json:"map_id"`
	SelectedBy int64      `json:"selected_by,omitempty"`
	Picked     *bool      `json:"picked"`
	Action     PickAction `json:"action,omitempty"`
	Order      int        `json:"order,omitempty"`
}

func (p MapPick) Selected() bool {
	return p.Picked != nil
}

type MapPickProcess struct {
	ID         int64      `json:"id"`
	MatchID    int64      `json:"match_id"`
	PickerA    int64      `json:"picker_a"`
	PickerB    int64      `json:"picker_b"`
	Turn       int64      `json:"turn,omitempty"`
	NextAction PickAction `json:"next_action"`
	Finished   bool       `json:"finished"`
	Maps       []MapPick  `json:"maps"`
}

func (p *MapPickProcess) Kind() string         { return KindMapPickProcess }
func (p *MapPickProcess) EntityID() int64      { return p.ID }
func (p *MapPickProcess) SetEntityID(id int64) { p.ID = id }

// Candidate returns the candidate with id, or nil.
func (p *MapPickProcess) Candidate(id int64) *MapPick {
	for i := range p.Maps {
		if p.Maps[i].ID == id {
			return &p.Maps[i]
		}
	}
	return nil
}

// OtherPicker returns the picker that is not playerID.
func (p *MapPickProcess) OtherPicker(playerID int64) int64 {
	if playerID == p.PickerA {
		return p.PickerB
	}
	return p.PickerA
}

// PickedMaps returns the picked candidates ordered by candidate id.
func (p *MapPickProcess) PickedMaps() []MapPick {
	var out []MapPick
	for _, m := range p.Maps {
		if m.Picked != nil && *m.Picked {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b MapPick) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

const (
	TagCompetitive = "competitive"
	TagDuel        = "duel"
	TagGunGame     = "gungame"
)

type Map struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Tags        []string `json:"tags"`
}

func (m *Map) Kind() string         { return KindMap }
func (m *Map) EntityID() int64      { return m.ID }
func (m *Map) SetEntityID(id int64) { m.ID = id }

func (m *Map) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

type GameStatus string

const (
	GameNotStarted GameStatus = "NOT_STARTED"
	GameStarted    GameStatus = "STARTED"
	GameFinished   GameStatus = "FINISHED"
	GameTerminated GameStatus = "TERMINATED"
)

type Game struct {
	ID              int64          `json:"id"`
	MatchID         int64          `json:"match_id,omitempty"`
	MapID           int64          `json:"map_id"`
	Mode            GameMode       `json:"mode"`
	Status          GameStatus     `json:"status"`
	TeamA           int64          `json:"team_a"`
	TeamB           int64          `json:"team_b"`
	Winner          int64          `json:"winner,omitempty"`
	Plugins         []string       `json:"plugins"`
	ConfigOverrides map[string]any `json:"config_overrides,omitempty"`
	IsWhitelisted   bool           `json:"is_whitelisted"`
	Whitelist       []int64        `json:"whitelist,omitempty"`
	Blacklist       []int64        `json:"blacklist,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
}

func (g *Game) Kind() string         { return KindGame }
func (g *Game) EntityID() int64      { return g.ID }
func (g *Game) SetEntityID(id int64) { g.ID = id }

func (g *Game) HasPlugin(plugin string) bool {
	return slices.Contains(g.Plugins, plugin)
}

// InGameTeam is one side of a single game, derived from a match team.
type InGameTeam struct {
	ID         int64  `json:"id"`
	GameID     int64  `json:"game_id,omitempty"`
	Name       string `json:"name"`
	MatchTeam  int64  `json:"match_team,omitempty"`
	StartsAsCT bool   `json:"starts_as_ct"`
	IsCT       bool   `json:"is_ct"`
}

func (t *InGameTeam) Kind() string         { return KindInGameTeam }
func (t *InGameTeam) EntityID() int64      { return t.ID }
func (t *InGameTeam) SetEntityID(id int64) { t.ID = id }

type SessionStatus string

const (
	SessionParticipating SessionStatus = "PARTICIPATING"
	SessionSpectator     SessionStatus = "SPECTATOR"
	SessionCoach         SessionStatus = "COACH"
)

type SessionState string

const (
	SessionInGame SessionState = "IN_GAME"
	SessionAway   SessionState = "AWAY"
)

// PlayerSession ties a player to a game roster.
type PlayerSession struct {
	ID       int64         `json:"id"`
	PlayerID int64         `json:"player_id"`
	GameID   int64         `json:"game_id"`
	RosterID int64         `json:"roster_id,omitempty"`
	Status   SessionStatus `json:"status"`
	State    SessionState  `json:"state"`
}

func (s *PlayerSession) Kind() string         { return KindPlayerSession }
func (s *PlayerSession) EntityID() int64      { return s.ID }
func (s *PlayerSession) SetEntityID(id int64) { s.ID = id }

// Session is a logged-in browser session.
type Session struct {
	ID        int64     `json:"id"`
	PlayerID  int64     `json:"player_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Kind() string         { return KindSession }
func (s *Session) EntityID() int64      { return s.ID }
func (s *Session) SetEntityID(id int64) { s.ID = id }

type PushSubscription struct {
	ID        int64     `json:"id"`
	PlayerID  int64     `json:"player_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *PushSubscription) Kind() string         { return KindPushSubscription }
func (s *PushSubscription) EntityID() int64      { return s.ID }
func (s *PushSubscription) SetEntityID(id int64) { s.ID = id }

// GameResult is the history record of a finished game.
type GameResult struct {
	ID         int64          `json:"id"`
	GameID     int64          `json:"game_id"`
	MatchID    int64          `json:"match_id,omitempty"`
	MapID      int64          `json:"map_id"`
	Mode       GameMode       `json:"mode"`
	Winner     int64          `json:"winner,omitempty"`
	Ranked     bool           `json:"ranked"`
	Players    []ResultPlayer `json:"players"`
	FinishedAt time.Time      `json:"finished_at"`
}

// ResultPlayer is a participant of a finished game with the rating it ended
// the game with.
type ResultPlayer struct {
	PlayerID int64 `json:"player_id"`
	RosterID int64 `json:"roster_id"`
	Elo      int   `json:"elo"`
}

func (r *GameResult) Kind() string         { return KindGameResult }
func (r *GameResult) EntityID() int64      { return r.ID }
func (r *GameResult) SetEntityID(id int64) { r.ID = id }

// Won reports whether playerID was on the winning roster.
func (r *GameResult) Won(playerID int64) bool {
	for _, p := range r.Players {
		if p.PlayerID == playerID {
			return r.Winner != 0 && p.RosterID == r.Winner
		}
	}
	return false
}
