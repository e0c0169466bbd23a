package push

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/matchmaking"
)

// Notifier turns matchmaking events into push notifications.
type Notifier struct {
	service *Service
	log     logrus.FieldLogger
}

func NewNotifier(service *Service, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		service: service,
		log:     log.WithField("component", "notifier"),
	}
}

// Register subscribes the notifier to bus.
func (n *Notifier) Register(bus *eventbus.Bus) error {
	if err := eventbus.On(bus, n.onQueueLocked); err != nil {
		return err
	}
	if err := eventbus.On(bus, n.onQueueUnlocked); err != nil {
		return err
	}
	return eventbus.On(bus, n.onDraftStarted)
}

func (n *Notifier) onQueueLocked(ctx context.Context, subject any, evt matchmaking.QueueLocked) (any, error) {
	n.log.Infof("Sending match found notification to %d players", len(evt.Players))
	return n.notify(ctx, evt.Players, NotificationPayload{
		Title: "Match Found!",
		Body:  "Click to confirm your match.",
		Icon:  "/static/favicon.ico",
		Badge: "/static/favicon.ico",
		Tag:   "match-found",
		Data: map[string]any{
			"deadline": evt.Deadline,
			"url":      "/",
		},
	})
}

func (n *Notifier) onQueueUnlocked(ctx context.Context, subject any, evt matchmaking.QueueUnlocked) (any, error) {
	return n.notify(ctx, evt.Evicted, NotificationPayload{
		Title: "Match Cancelled",
		Body:  "You did not confirm in time and were removed from the queue.",
		Icon:  "/static/favicon.ico",
		Tag:   "match-cancelled",
		Data:  map[string]any{"url": "/"},
	})
}

func (n *Notifier) onDraftStarted(ctx context.Context, subject any, evt matchmaking.DraftStarted) (any, error) {
	n.log.Infof("Draft started for match %d", evt.Match)
	return n.notify(ctx, []int64{evt.CaptainA, evt.CaptainB}, NotificationPayload{
		Title: "It's Your Turn!",
		Body:  "Time to pick your team!",
		Icon:  "/static/favicon.ico",
		Badge: "/static/favicon.ico",
		Tag:   "draft-started",
		Data: map[string]any{
			"matchID": evt.Match,
			"url":     "/",
		},
	})
}

func (n *Notifier) notify(ctx context.Context, players []int64, payload NotificationPayload) (any, error) {
	sent, err := n.service.SendToPlayers(ctx, players, payload)
	if err != nil {
		return nil, err
	}
	return sent, nil
}
