package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		fn(t, st)
	})
}

func TestSaveAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		q := &Queue{Type: QueueRanked, Size: 4, Players: []int64{3, 1}}
		if err := Save(ctx, st, q); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if q.ID == 0 {
			t.Fatal("expected an id to be assigned")
		}

		got, err := Get[Queue](ctx, st, q.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil || got.ID != q.ID || got.Size != 4 || len(got.Players) != 2 || got.Players[0] != 3 {
			t.Fatalf("unexpected queue %+v", got)
		}

		missing, err := Get[Queue](ctx, st, q.ID+100)
		if err != nil || missing != nil {
			t.Fatalf("expected nil, nil for a missing entity, got %v, %v", missing, err)
		}

		// Same id, different kind.
		other, err := Get[Match](ctx, st, q.ID)
		if err != nil || other != nil {
			t.Fatalf("expected kinds to be separate, got %v, %v", other, err)
		}
	})
}

func TestUpdateCommitsOrRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p := &Player{Username: "ana", Elo: 1000}
		if err := Save(ctx, st, p); err != nil {
			t.Fatalf("Save: %v", err)
		}

		boom := errors.New("boom")
		err := st.Update(ctx, func(tx Tx) error {
			p.Elo = 2000
			if err := Save(ctx, tx, p); err != nil {
				return err
			}
			inTx, err := Get[Player](ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if inTx.Elo != 2000 {
				t.Errorf("expected write to be visible inside the transaction, got %d", inTx.Elo)
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		got, _ := Get[Player](ctx, st, p.ID)
		if got.Elo != 1000 {
			t.Fatalf("expected rollback, got elo %d", got.Elo)
		}

		err = st.Update(ctx, func(tx Tx) error {
			got.Elo = 1200
			return Save(ctx, tx, got)
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, _ = Get[Player](ctx, st, p.ID)
		if got.Elo != 1200 {
			t.Fatalf("expected commit, got elo %d", got.Elo)
		}
	})
}

func TestSaveUnknownIDConflicts(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		err := Save(context.Background(), st, &Player{ID: 42, Username: "ghost"})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})
}

func TestListAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		for _, name := range []string{"de_dust2", "de_mirage", "aim_map"} {
			tags := []string{TagCompetitive}
			if name == "aim_map" {
				tags = nil
			}
			if err := Save(ctx, st, &Map{Name: name, Tags: tags}); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}

		maps, err := MapsWithTag(ctx, st, TagCompetitive)
		if err != nil {
			t.Fatalf("MapsWithTag: %v", err)
		}
		if len(maps) != 2 || maps[0].Name != "de_dust2" || maps[1].Name != "de_mirage" {
			t.Fatalf("unexpected maps %+v", maps)
		}

		if err := Delete(ctx, st, maps[0]); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		all, err := List[Map](ctx, st)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 2 || all[0].Name != "de_mirage" {
			t.Fatalf("unexpected maps after delete %+v", all)
		}
	})
}

func TestSessionsAndSubscriptions(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := time.Now()

		live := &Session{PlayerID: 1, Token: "live", ExpiresAt: now.Add(time.Hour)}
		stale := &Session{PlayerID: 2, Token: "stale", ExpiresAt: now.Add(-time.Hour)}
		Save(ctx, st, live)
		Save(ctx, st, stale)

		if s, _ := SessionByToken(ctx, st, live.ID, "live", now); s == nil {
			t.Fatal("expected live session")
		}
		if s, _ := SessionByToken(ctx, st, live.ID, "wrong", now); s != nil {
			t.Fatal("session returned for wrong token")
		}
		if s, _ := SessionByToken(ctx, st, stale.ID, "stale", now); s != nil {
			t.Fatal("expired session returned")
		}
		n, err := DeleteExpiredSessions(ctx, st, now)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 expired session deleted, got %d, %v", n, err)
		}

		SavePushSubscription(ctx, st, &PushSubscription{PlayerID: 1, Endpoint: "https://push/a", Auth: "x"})
		SavePushSubscription(ctx, st, &PushSubscription{PlayerID: 1, Endpoint: "https://push/a", Auth: "y"})
		SavePushSubscription(ctx, st, &PushSubscription{PlayerID: 2, Endpoint: "https://push/b"})

		subs, _ := PushSubscriptions(ctx, st, 1)
		if len(subs) != 1 || subs[0].Auth != "y" {
			t.Fatalf("expected one replaced subscription, got %+v", subs)
		}
		DeletePushSubscription(ctx, st, "https://push/b")
		all, _ := PushSubscriptions(ctx, st)
		if len(all) != 1 {
			t.Fatalf("expected 1 subscription left, got %d", len(all))
		}
	})
}

func TestLeaderboard(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	for _, p := range []*Player{{Username: "a", Elo: 100}, {Username: "b", Elo: 300}, {Username: "c", Elo: 200}} {
		Save(ctx, st, p)
	}
	top, err := Leaderboard(ctx, st, 2)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(top) != 2 || top[0].Username != "b" || top[1].Username != "c" {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestPickedMapsOrder(t *testing.T) {
	yes, no := true, false
	p := &MapPickProcess{Maps: []MapPick{
		{ID: 3, Picked: &yes},
		{ID: 1, Picked: &yes},
		{ID: 2, Picked: &no},
		{ID: 4},
	}}
	picked := p.PickedMaps()
	if len(picked) != 2 || picked[0].ID != 1 || picked[1].ID != 3 {
		t.Fatalf("unexpected picked maps %+v", picked)
	}
}
