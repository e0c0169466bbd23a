// Package push sends Web Push notifications to players' browsers.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/store"
)

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string // mailto:your-email@example.com
}

// SendFunc delivers one encrypted notification.
type SendFunc func(message []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)

type Service struct {
	store store.Store
	cfg   Config
	clock clock.Clock
	log   logrus.FieldLogger
	send  SendFunc
}

func NewService(st store.Store, cfg Config, clk clock.Clock, log logrus.FieldLogger) *Service {
	return &Service{
		store: st,
		cfg:   cfg,
		clock: clk,
		log:   log.WithField("component", "push"),
		send:  webpush.SendNotification,
	}
}

// WithSender replaces the Web Push transport.
func (s *Service) WithSender(send SendFunc) *Service {
	s.send = send
	return s
}

type NotificationPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Tag   string         `json:"tag,omitempty"`
}

// Enabled reports whether VAPID keys are configured.
func (s *Service) Enabled() bool {
	return s.cfg.VAPIDPublicKey != "" && s.cfg.VAPIDPrivateKey != ""
}

// PublicKey returns the VAPID public key for frontend use.
func (s *Service) PublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Subscribe stores a browser subscription for player.
func (s *Service) Subscribe(ctx context.Context, playerID int64, endpoint, p256dh, auth string) error {
	if endpoint == "" || p256dh == "" || auth == "" {
		return errors.New("incomplete push subscription")
	}
	return store.SavePushSubscription(ctx, s.store, &store.PushSubscription{
		PlayerID:  playerID,
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		CreatedAt: s.clock.Now(),
	})
}

func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	return store.DeletePushSubscription(ctx, s.store, endpoint)
}

// SendToPlayers notifies every subscription of the given players. Gone or
// invalid subscriptions are removed. It returns the number of deliveries.
func (s *Service) SendToPlayers(ctx context.Context, playerIDs []int64, payload NotificationPayload) (int, error) {
	if !s.Enabled() || len(playerIDs) == 0 {
		return 0, nil
	}

	subs, err := store.PushSubscriptions(ctx, s.store, playerIDs...)
	if err != nil {
		return 0, fmt.Errorf("failed to get subscriptions: %w", err)
	}
	if len(subs) == 0 {
		s.log.Debugf("No push subscriptions found for %d players", len(playerIDs))
		return 0, nil
	}

	message, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var errs []error
	sent := 0
	for _, sub := range subs {
		if err := s.deliver(ctx, message, sub); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		return sent, nil
	}
	return 0, errors.Join(errs...)
}

func (s *Service) deliver(ctx context.Context, message []byte, sub *store.PushSubscription) error {
	log := s.log.WithFields(logrus.Fields{"player": sub.PlayerID, "endpoint": sub.Endpoint})

	resp, err := s.send(message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.cfg.VAPIDSubject,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             60,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to send push")
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		log.Info("Subscription expired/invalid, removing")
		if err := store.DeletePushSubscription(ctx, s.store, sub.Endpoint); err != nil {
			log.WithError(err).Error("Failed to delete subscription")
		}
		return fmt.Errorf("subscription gone (%d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		log.Warnf("Push notification failed with status %d", resp.StatusCode)
		return fmt.Errorf("push failed with status %d", resp.StatusCode)
	}
	log.Debug("Push notification sent")
	return nil
}
