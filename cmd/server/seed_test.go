package main

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/edvart/strike-inhouse/internal/config"
	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/matchmaking"
	"github.com/edvart/strike-inhouse/internal/store"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log, _ := logtest.NewNullLogger()
	mock := clock.NewMock()
	st := store.NewMemoryStore()
	bus := eventbus.New("internal", log, mock, eventbus.Inline{})
	queues, err := matchmaking.New(st, bus, mock, log, matchmaking.Config{ConfirmTimeout: time.Minute, MapCount: 1})
	if err != nil {
		t.Fatalf("matchmaking.New: %v", err)
	}

	st.Update(ctx, func(tx store.Tx) error {
		return store.Save(ctx, tx, &store.Player{Username: "Root"})
	})

	cfg := config.Config{
		QueueSize:      10,
		MapPool:        []string{"de_dust2", "de_mirage", " de_dust2 ", ""},
		AdminUsernames: []string{"root", "ghost"},
	}
	for range 2 {
		if err := seed(ctx, st, queues, cfg, log); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	maps, _ := store.List[store.Map](ctx, st)
	if len(maps) != 2 || maps[0].DisplayName != "Dust2" || !maps[1].HasTag(store.TagCompetitive) {
		t.Fatalf("unexpected maps %+v", maps)
	}
	roles, _ := store.List[store.Role](ctx, st)
	if len(roles) != 1 {
		t.Fatalf("expected one admin role, got %d", len(roles))
	}
	root, _ := store.PlayerByUsername(ctx, st, "root")
	if root.RoleID != roles[0].ID {
		t.Fatalf("root was not granted the admin role")
	}
	queuesList, _ := store.List[store.Queue](ctx, st)
	if len(queuesList) != 1 || queuesList[0].Size != 10 {
		t.Fatalf("expected one open ranked queue, got %+v", queuesList)
	}
}
