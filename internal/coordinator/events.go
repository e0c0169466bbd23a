package coordinator

import "github.com/edvart/strike-inhouse/internal/eventbus"

// Requests from the game server. Every one of them is published on the game
// bus with the game server channel as subject.

type CreateGameIntentEvent struct {
	eventbus.IntentEvent
	MapName string `json:"mapName,omitempty"`
	Mode    string `json:"mode"`
	Player  int64  `json:"player,omitempty"`
}

type GameDeleteIntentEvent struct {
	eventbus.IntentEvent
	Game int64 `json:"game"`
}

type ChangePlayerWhitelistStatusAtGameIntent struct {
	eventbus.IntentEvent
	Player        int64 `json:"player"`
	Game          int64 `json:"game"`
	Manager       int64 `json:"manager"`
	IsWhitelisted bool  `json:"isWhitelisted"`
}

type ChangePlayerBlacklistStatusAtGameIntent struct {
	eventbus.IntentEvent
	Player        int64  `json:"player"`
	Game          int64  `json:"game"`
	Manager       int64  `json:"manager"`
	IsBlacklisted bool   `json:"isBlacklisted"`
	Reason        string `json:"reason,omitempty"`
}

type PlayerJoinGameIntentEvent struct {
	eventbus.IntentEvent
	Game     int64 `json:"game"`
	Player   int64 `json:"player"`
	Spectate bool  `json:"spectate"`
}

type PlayerLeaveGameIntentEvent struct {
	eventbus.IntentEvent
	Game   int64 `json:"game"`
	Player int64 `json:"player"`
}

type GameStartedEvent struct {
	Game int64 `json:"game"`
}

// PreGameEndEvent reports the result of a game. Winner and Looser are in-game
// team ids and are zero for a draw.
type PreGameEndEvent struct {
	Game   int64 `json:"game"`
	Winner int64 `json:"winner,omitempty"`
	Looser int64 `json:"looser,omitempty"`
}

// Messages sent to the game server.

type GameCreated struct {
	Game int64 `json:"game"`
}

type GameUpdated struct {
	Game int64 `json:"game"`
}

type GameTerminatedEvent struct {
	Game int64 `json:"game"`
}

// GameEnded is published on the internal bus once a game result is recorded.
type GameEnded struct {
	Game   int64 `json:"game"`
	Match  int64 `json:"match,omitempty"`
	Winner int64 `json:"winner,omitempty"`
	Ranked bool  `json:"ranked"`
}
