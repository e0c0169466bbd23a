// Package permission resolves dotted permission paths against player roles.
package permission

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/store"
)

const (
	GamesCreate       = "bms.games.create"
	GamesRankedCreate = "bms.games.ranked.create"
	GamesWhitelist    = "bms.games.manager.whitelist"
	GamesBlacklist    = "bms.games.manager.blacklist"
	PermissionCreate  = "bms.permission.create"
	PermissionGrant   = "bms.permission.grant"
	PermissionRevoke  = "bms.permission.revoke"
	MatchCreate       = "bms.match.create"
	QueueCreate       = "bms.queue.create"
	All               = "*"
)

// Match reports whether any granted path covers required. A granted path
// covers every path it is a prefix of, and a "*" segment covers anything
// from that segment on. Granted paths more specific than required never
// match.
func Match(granted []string, required string) bool {
	req := strings.Split(strings.ToLower(required), ".")

	for _, g := range granted {
		have := strings.Split(strings.ToLower(g), ".")
		if len(have) > len(req) {
			continue
		}
		if covers(have, req) {
			return true
		}
	}
	return false
}

func covers(have, req []string) bool {
	for i, h := range have {
		if h != req[i] {
			return h == "*"
		}
	}
	return true
}

// Checker answers whether a player may do something.
type Checker interface {
	HasPermission(ctx context.Context, playerID int64, path string) (bool, error)
}

// StoreChecker resolves permissions through the player's role.
type StoreChecker struct {
	store store.Reader
	log   logrus.FieldLogger
}

func NewStoreChecker(r store.Reader, log logrus.FieldLogger) *StoreChecker {
	return &StoreChecker{store: r, log: log}
}

func (c *StoreChecker) HasPermission(ctx context.Context, playerID int64, path string) (bool, error) {
	player, err := store.Get[store.Player](ctx, c.store, playerID)
	if err != nil {
		return false, err
	}
	if player == nil || player.RoleID == 0 {
		return false, nil
	}
	role, err := store.Get[store.Role](ctx, c.store, player.RoleID)
	if err != nil {
		return false, err
	}
	if role == nil {
		return false, nil
	}

	ok := Match(role.Permissions, path)
	c.log.WithFields(logrus.Fields{
		"player":     playerID,
		"role":       role.Name,
		"permission": path,
		"granted":    ok,
	}).Debug("Permission check")
	return ok, nil
}
