package gameserver

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/intent"
)

// Ingestor forwards events received from the game server to the game bus,
// with the channel as subject, and turns the outcome into a response.
type Ingestor struct {
	bus     *eventbus.Bus
	channel *Channel
	log     logrus.FieldLogger
}

func NewIngestor(bus *eventbus.Bus, channel *Channel, log logrus.FieldLogger) *Ingestor {
	return &Ingestor{bus: bus, channel: channel, log: log.WithField("component", "ingest")}
}

// Ingest publishes evt and blocks until its handlers are done.
func (i *Ingestor) Ingest(ctx context.Context, evt eventbus.Event) intent.Response {
	if evt.Type == "" {
		return intent.Fail("Event type is required")
	}
	if !i.bus.HasHandlers(evt.Type) {
		i.log.Warnf("No handler for game server event %s", evt.Type)
		return intent.Fail("Unknown event " + evt.Type)
	}

	res := i.bus.Publish(ctx, evt, i.channel)
	switch r := res.(type) {
	case intent.Response:
		return r
	case *intent.Response:
		if r != nil {
			return *r
		}
	case nil:
		if i.bus.IsIntent(evt.Type) {
			return intent.Fail("Event handler failed")
		}
		return intent.Succeed("Event processed")
	}
	return intent.Succeed("Event processed").With("result", res)
}
