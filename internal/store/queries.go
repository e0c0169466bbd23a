package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"
)

// MapsWithTag returns every map carrying tag, ordered by id.
func MapsWithTag(ctx context.Context, r Reader, tag string) ([]*Map, error) {
	maps, err := List[Map](ctx, r)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(maps, func(m *Map) bool { return !m.HasTag(tag) }), nil
}

// MapsNamed returns the maps called names, in the order given. Unknown names
// are skipped.
func MapsNamed(ctx context.Context, r Reader, names []string) ([]*Map, error) {
	maps, err := List[Map](ctx, r)
	if err != nil {
		return nil, err
	}
	named := make([]*Map, 0, len(names))
	for _, name := range names {
		if i := slices.IndexFunc(maps, func(m *Map) bool { return m.Name == name }); i >= 0 {
			named = append(named, maps[i])
		}
	}
	return named, nil
}

// OpenQueue returns the newest pool of the given type that has not been
// drafted yet, or nil.
func OpenQueue(ctx context.Context, r Reader, typ QueueType) (*Queue, error) {
	queues, err := List[Queue](ctx, r)
	if err != nil {
		return nil, err
	}
	for i := len(queues) - 1; i >= 0; i-- {
		if q := queues[i]; q.Type == typ && q.SupersededBy == 0 {
			return q, nil
		}
	}
	return nil, nil
}

// PlayerSessions returns the sessions of a game.
func PlayerSessions(ctx context.Context, r Reader, gameID int64) ([]*PlayerSession, error) {
	sessions, err := List[PlayerSession](ctx, r)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(sessions, func(s *PlayerSession) bool { return s.GameID != gameID }), nil
}

// RosterPlayers returns the players with a session on the given in-game team.
func RosterPlayers(ctx context.Context, r Reader, gameID, rosterID int64) ([]*Player, error) {
	sessions, err := PlayerSessions(ctx, r, gameID)
	if err != nil {
		return nil, err
	}
	var players []*Player
	for _, s := range sessions {
		if s.RosterID != rosterID {
			continue
		}
		p, err := Get[Player](ctx, r, s.PlayerID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			players = append(players, p)
		}
	}
	return players, nil
}

// PlayerByUsername returns the player called username, or nil.
func PlayerByUsername(ctx context.Context, r Reader, username string) (*Player, error) {
	players, err := List[Player](ctx, r)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		if strings.EqualFold(p.Username, username) {
			return p, nil
		}
	}
	return nil, nil
}

// SessionByToken returns the unexpired session with id and token, or nil.
func SessionByToken(ctx context.Context, r Reader, id int64, token string, now time.Time) (*Session, error) {
	s, err := Get[Session](ctx, r, id)
	if err != nil || s == nil {
		return nil, err
	}
	if s.Token != token || !s.ExpiresAt.After(now) {
		return nil, nil
	}
	return s, nil
}

// DeleteExpiredSessions removes all sessions that expired before now.
func DeleteExpiredSessions(ctx context.Context, st Store, now time.Time) (int, error) {
	deleted := 0
	err := st.Update(ctx, func(tx Tx) error {
		sessions, err := List[Session](ctx, tx)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if s.ExpiresAt.Before(now) {
				if err := Delete(ctx, tx, s); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

// PushSubscriptions returns the subscriptions of the given players. No
// players means every subscription.
func PushSubscriptions(ctx context.Context, r Reader, playerIDs ...int64) ([]*PushSubscription, error) {
	subs, err := List[PushSubscription](ctx, r)
	if err != nil {
		return nil, err
	}
	if len(playerIDs) == 0 {
		return subs, nil
	}
	return slices.DeleteFunc(subs, func(s *PushSubscription) bool {
		return !slices.Contains(playerIDs, s.PlayerID)
	}), nil
}

// SavePushSubscription stores sub, replacing any subscription with the same
// endpoint.
func SavePushSubscription(ctx context.Context, st Store, sub *PushSubscription) error {
	return st.Update(ctx, func(tx Tx) error {
		subs, err := List[PushSubscription](ctx, tx)
		if err != nil {
			return err
		}
		for _, existing := range subs {
			if existing.Endpoint == sub.Endpoint {
				sub.ID = existing.ID
				sub.CreatedAt = existing.CreatedAt
			}
		}
		return Save(ctx, tx, sub)
	})
}

// DeletePushSubscription removes the subscription with endpoint.
func DeletePushSubscription(ctx context.Context, st Store, endpoint string) error {
	return st.Update(ctx, func(tx Tx) error {
		subs, err := List[PushSubscription](ctx, tx)
		if err != nil {
			return err
		}
		for _, s := range subs {
			if s.Endpoint == endpoint {
				if err := Delete(ctx, tx, s); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Leaderboard returns players ordered by ELO, highest first.
func Leaderboard(ctx context.Context, r Reader, limit int) ([]*Player, error) {
	players, err := List[Player](ctx, r)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(players, func(a, b *Player) int { return cmp.Compare(b.Elo, a.Elo) })
	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	return players, nil
}

// PlayerHistory returns the results of the games playerID took part in,
// newest first.
func PlayerHistory(ctx context.Context, r Reader, playerID int64, limit int) ([]*GameResult, error) {
	results, err := List[GameResult](ctx, r)
	if err != nil {
		return nil, err
	}
	results = slices.DeleteFunc(results, func(res *GameResult) bool {
		return !slices.ContainsFunc(res.Players, func(p ResultPlayer) bool { return p.PlayerID == playerID })
	})
	slices.Reverse(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GameResultFor returns the recorded result of gameID, or nil.
func GameResultFor(ctx context.Context, r Reader, gameID int64) (*GameResult, error) {
	results, err := List[GameResult](ctx, r)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.GameID == gameID {
			return res, nil
		}
	}
	return nil, nil
}
