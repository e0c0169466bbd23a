package main

import (
	"context"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/config"
	"github.com/edvart/strike-inhouse/internal/matchmaking"
	"github.com/edvart/strike-inhouse/internal/permission"
	"github.com/edvart/strike-inhouse/internal/store"
)

const adminRole = "admin"

// seed creates the map pool, the admin role and the open ranked pool.
func seed(ctx context.Context, st store.Store, queues *matchmaking.Service, cfg config.Config, log logrus.FieldLogger) error {
	added, err := seedMaps(ctx, st, cfg.MapPool)
	if err != nil {
		return err
	}
	if added > 0 {
		log.Infof("Added %d maps to the competitive pool", added)
	}

	if err := seedAdmins(ctx, st, cfg.AdminUsernames, log); err != nil {
		return err
	}

	q, err := queues.EnsureQueue(ctx, store.QueueRanked, cfg.QueueSize)
	if err != nil {
		return err
	}
	log.WithField("queue", q.ID).Infof("Ranked queue ready for %d players", q.Size)
	return nil
}

func seedMaps(ctx context.Context, st store.Store, names []string) (int, error) {
	added := 0
	err := st.Update(ctx, func(tx store.Tx) error {
		existing, err := store.List[store.Map](ctx, tx)
		if err != nil {
			return err
		}
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || slices.ContainsFunc(existing, func(m *store.Map) bool { return m.Name == name }) {
				continue
			}
			m := &store.Map{
				Name:        name,
				DisplayName: displayName(name),
				Tags:        []string{store.TagCompetitive},
			}
			if err := store.Save(ctx, tx, m); err != nil {
				return err
			}
			existing = append(existing, m)
			added++
		}
		return nil
	})
	return added, err
}

// seedAdmins grants the admin role to every existing player in usernames.
func seedAdmins(ctx context.Context, st store.Store, usernames []string, log logrus.FieldLogger) error {
	if len(usernames) == 0 {
		return nil
	}
	return st.Update(ctx, func(tx store.Tx) error {
		roles, err := store.List[store.Role](ctx, tx)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(roles, func(r *store.Role) bool { return r.Name == adminRole })
		role := &store.Role{Name: adminRole, Permissions: []string{permission.All}}
		if idx >= 0 {
			role = roles[idx]
		} else if err := store.Save(ctx, tx, role); err != nil {
			return err
		}

		for _, name := range usernames {
			player, err := store.PlayerByUsername(ctx, tx, strings.TrimSpace(name))
			if err != nil {
				return err
			}
			if player == nil {
				log.Warnf("Admin %s has not joined the game server yet", name)
				continue
			}
			if player.RoleID == role.ID {
				continue
			}
			player.RoleID = role.ID
			if err := store.Save(ctx, tx, player); err != nil {
				return err
			}
			log.WithField("player", player.ID).Infof("Granted %s role to %s", adminRole, player.Username)
		}
		return nil
	})
}

// displayName turns de_dust2 into Dust2.
func displayName(name string) string {
	if _, rest, ok := strings.Cut(name, "_"); ok {
		name = rest
	}
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
