package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/benbjohnson/clock"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/matchmaking"
	"github.com/edvart/strike-inhouse/internal/store"
)

// fakePush answers with a fixed status per endpoint, 201 by default.
type fakePush struct {
	mu       sync.Mutex
	status   map[string]int
	sent     []string
	payloads []NotificationPayload
}

func (f *fakePush) send(message []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var payload NotificationPayload
	json.Unmarshal(message, &payload)
	f.payloads = append(f.payloads, payload)
	f.sent = append(f.sent, sub.Endpoint)

	rec := httptest.NewRecorder()
	code, ok := f.status[sub.Endpoint]
	if !ok {
		code = http.StatusCreated
	}
	rec.WriteHeader(code)
	return rec.Result(), nil
}

func newService(t *testing.T, cfg Config) (*Service, *fakePush, *store.MemoryStore) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	st := store.NewMemoryStore()
	fake := &fakePush{status: map[string]int{}}
	return NewService(st, cfg, clock.NewMock(), log).WithSender(fake.send), fake, st
}

var keys = Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", VAPIDSubject: "mailto:admin@localhost"}

func TestSendToPlayers(t *testing.T) {
	svc, fake, st := newService(t, keys)
	ctx := context.Background()

	for _, sub := range []struct {
		player   int64
		endpoint string
	}{{1, "https://push/a"}, {1, "https://push/b"}, {2, "https://push/gone"}, {3, "https://push/c"}} {
		if err := svc.Subscribe(ctx, sub.player, sub.endpoint, "key", "auth"); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	if err := svc.Subscribe(ctx, 1, "", "key", "auth"); err == nil {
		t.Fatal("expected incomplete subscription to be rejected")
	}
	fake.status["https://push/gone"] = http.StatusGone

	sent, err := svc.SendToPlayers(ctx, []int64{1, 2}, NotificationPayload{Title: "hi"})
	if err != nil {
		t.Fatalf("SendToPlayers: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}
	if !slices.Equal(fake.sent, []string{"https://push/a", "https://push/b", "https://push/gone"}) {
		t.Fatalf("unexpected endpoints %v", fake.sent)
	}

	left, _ := store.PushSubscriptions(ctx, st)
	if len(left) != 3 || slices.ContainsFunc(left, func(s *store.PushSubscription) bool { return s.Endpoint == "https://push/gone" }) {
		t.Fatalf("expected gone subscription to be removed, got %d left", len(left))
	}

	if _, err := svc.SendToPlayers(ctx, []int64{2}, NotificationPayload{}); err != nil {
		t.Fatalf("player without subscriptions: %v", err)
	}
	fake.status["https://push/c"] = http.StatusInternalServerError
	if _, err := svc.SendToPlayers(ctx, []int64{3}, NotificationPayload{}); err == nil {
		t.Fatal("expected an error when every delivery fails")
	}
}

func TestSubscribeReplacesEndpoint(t *testing.T) {
	svc, _, st := newService(t, keys)
	ctx := context.Background()

	svc.Subscribe(ctx, 1, "https://push/a", "k1", "a1")
	svc.Subscribe(ctx, 2, "https://push/a", "k2", "a2")

	subs, _ := store.PushSubscriptions(ctx, st)
	if len(subs) != 1 || subs[0].PlayerID != 2 || subs[0].P256dh != "k2" {
		t.Fatalf("expected one replaced subscription, got %+v", subs)
	}
	if err := svc.Unsubscribe(ctx, "https://push/a"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if subs, _ := store.PushSubscriptions(ctx, st); len(subs) != 0 {
		t.Fatalf("expected no subscriptions, got %d", len(subs))
	}
}

func TestDisabledServiceSendsNothing(t *testing.T) {
	svc, fake, _ := newService(t, Config{})
	ctx := context.Background()
	svc.Subscribe(ctx, 1, "https://push/a", "key", "auth")

	if sent, err := svc.SendToPlayers(ctx, []int64{1}, NotificationPayload{}); sent != 0 || err != nil {
		t.Fatalf("expected nothing sent, got %d %v", sent, err)
	}
	if len(fake.sent) != 0 || svc.Enabled() {
		t.Fatal("disabled service used the transport")
	}
}

func TestNotifierFollowsMatchmaking(t *testing.T) {
	svc, fake, _ := newService(t, keys)
	ctx := context.Background()
	log, _ := logtest.NewNullLogger()
	bus := eventbus.New("internal", log, clock.NewMock(), eventbus.Inline{})

	if err := NewNotifier(svc, log).Register(bus); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for id := int64(1); id <= 4; id++ {
		svc.Subscribe(ctx, id, "https://push/"+string(rune('a'+id)), "key", "auth")
	}

	q := &store.Queue{ID: 1}
	if sent := bus.Publish(ctx, matchmaking.QueueLocked{Players: []int64{1, 2, 3, 4}, Deadline: 60}, q); sent != 4 {
		t.Fatalf("expected 4 match found notifications, got %v", sent)
	}
	if sent := bus.Publish(ctx, matchmaking.DraftStarted{Match: 9, CaptainA: 2, CaptainB: 4}, q); sent != 2 {
		t.Fatalf("expected 2 captain notifications, got %v", sent)
	}
	if sent := bus.Publish(ctx, matchmaking.QueueUnlocked{Evicted: []int64{3}}, q); sent != 1 {
		t.Fatalf("expected 1 eviction notification, got %v", sent)
	}

	titles := map[string]int{}
	for _, p := range fake.payloads {
		titles[p.Title]++
	}
	if titles["Match Found!"] != 4 || titles["It's Your Turn!"] != 2 || titles["Match Cancelled"] != 1 {
		t.Fatalf("unexpected notifications %v", titles)
	}
}
