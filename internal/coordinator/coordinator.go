// Package coordinator turns finished map selections into games and answers
// the requests the game server sends about them.
package coordinator

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/gameserver"
	"github.com/edvart/strike-inhouse/internal/permission"
	"github.com/edvart/strike-inhouse/internal/store"
)

// Coordinator glues the internal bus to the game server. It owns every game
// mutation.
type Coordinator struct {
	store    store.Store
	internal *eventbus.Bus
	games    *eventbus.Bus
	channel  *gameserver.Channel
	perms    permission.Checker
	clock    clock.Clock
	log      logrus.FieldLogger
}

// New creates the coordinator and registers its handlers: map pick results
// on the internal bus, game server requests on the game bus.
func New(st store.Store, internal, games *eventbus.Bus, channel *gameserver.Channel, perms permission.Checker, clk clock.Clock, log logrus.FieldLogger) (*Coordinator, error) {
	c := &Coordinator{
		store:    st,
		internal: internal,
		games:    games,
		channel:  channel,
		perms:    perms,
		clock:    clk,
		log:      log.WithField("component", "coordinator"),
	}
	if err := c.register(); err != nil {
		return nil, fmt.Errorf("register coordinator handlers: %w", err)
	}
	return c, nil
}

func (c *Coordinator) register() error {
	if err := eventbus.On(c.internal, c.onMapPickDone); err != nil {
		return err
	}

	for _, err := range []error{
		eventbus.OnIntent(c.games, c.onCreateGame),
		eventbus.OnIntent(c.games, c.onGameDelete),
		eventbus.OnIntent(c.games, c.onWhitelistChange),
		eventbus.OnIntent(c.games, c.onBlacklistChange),
		eventbus.OnIntent(c.games, c.onPlayerJoinGame),
		eventbus.OnIntent(c.games, c.onPlayerLeaveGame),
		eventbus.On(c.games, c.onGameStarted),
		eventbus.On(c.games, c.onPreGameEnd),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Game returns the game with id, or nil.
func (c *Coordinator) Game(ctx context.Context, id int64) (*store.Game, error) {
	return store.Get[store.Game](ctx, c.store, id)
}

func (c *Coordinator) send(evt any) {
	res, err := c.channel.Send(evt)
	if err != nil {
		c.log.WithError(err).Error("Failed to send game server event")
		return
	}
	c.log.Debugf("Game server event %T %s", evt, res)
}
