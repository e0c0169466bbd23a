package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/auth"
	"github.com/edvart/strike-inhouse/internal/config"
	"github.com/edvart/strike-inhouse/internal/coordinator"
	"github.com/edvart/strike-inhouse/internal/eventbus"
	"github.com/edvart/strike-inhouse/internal/gameserver"
	"github.com/edvart/strike-inhouse/internal/mappick"
	"github.com/edvart/strike-inhouse/internal/matchmaking"
	"github.com/edvart/strike-inhouse/internal/matchrecorder"
	"github.com/edvart/strike-inhouse/internal/permission"
	"github.com/edvart/strike-inhouse/internal/push"
	"github.com/edvart/strike-inhouse/internal/store"
	"github.com/edvart/strike-inhouse/internal/web"
)

const (
	shutdownTimeout = 10 * time.Second
	sessionCleanup  = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	log, err := cfg.Logger()
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal(err)
	}
	log.Info("Server stopped")
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return err
	}
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	clk := clock.New()
	tasks := eventbus.NewTaskGroup(log)
	internal := eventbus.New("internal", log, clk, tasks)
	games := eventbus.New("game", log, clk, tasks)
	perms := permission.NewStoreChecker(db, log)

	queues, err := matchmaking.New(db, internal, clk, log, matchmaking.Config{
		ConfirmTimeout: cfg.QueueConfirmTimeout,
		MapCount:       cfg.MatchMapCount,
		MapPool:        cfg.MapPool,
	})
	if err != nil {
		return err
	}
	maps := mappick.NewService(db, internal, log)

	channel := gameserver.NewChannel(log)
	ingestor := gameserver.NewIngestor(games, channel, log)
	coord, err := coordinator.New(db, internal, games, channel, perms, clk, log)
	if err != nil {
		return err
	}

	recorder := matchrecorder.New(db, internal, clk, log)
	if err := recorder.Register(); err != nil {
		return err
	}

	accounts := auth.NewAccounts(db, clk, log)
	if err := accounts.Register(games); err != nil {
		return err
	}
	sessions := auth.NewSessionManager(db, clk, log)

	pushService := push.NewService(db, push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		VAPIDSubject:    cfg.VAPIDSubject,
	}, clk, log)
	if pushService.Enabled() {
		if err := push.NewNotifier(pushService, log).Register(internal); err != nil {
			return err
		}
	} else {
		log.Warn("VAPID keys not set, push notifications disabled")
	}

	hub := web.NewSSEHub(log)
	if err := hub.Register(internal, web.StreamedEvents...); err != nil {
		return err
	}

	if err := seed(ctx, db, queues, cfg, log); err != nil {
		return err
	}

	if cfg.GameServerToken == "" {
		log.Warn("GAMESERVER_TOKEN not set, game server connections will be refused")
	}
	server := web.NewServer(web.Services{
		Store:       db,
		Queues:      queues,
		Maps:        maps,
		Coordinator: coord,
		Accounts:    accounts,
		Sessions:    sessions,
		Permissions: perms,
		Push:        pushService,
		GameServer:  gameserver.NewServer(channel, ingestor, cfg.GameServerToken, tasks, log),
		Ingestor:    ingestor,
		Recorder:    recorder,
		SSE:         hub,
	}, web.Config{DevMode: cfg.DevMode}, log)

	go cleanupSessions(ctx, clk, sessions)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server,
	}
	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("HTTP server shutdown error")
		}
	}()

	log.Infof("Server running on %s", cfg.BaseURL)
	if cfg.DevMode {
		log.Warnf("Dev mode enabled, dev login: POST %s/dev/login?username=test", cfg.BaseURL)
	}
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	drain(tasks, log)
	return nil
}

func cleanupSessions(ctx context.Context, clk clock.Clock, sessions *auth.SessionManager) {
	ticker := clk.Ticker(sessionCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Cleanup(ctx)
		}
	}
}

// drain waits for detached handlers. Pools waiting for confirmation keep
// their task alive until the window closes, so the wait is bounded.
func drain(tasks *eventbus.TaskGroup, log logrus.FieldLogger) {
	done := make(chan struct{})
	go func() {
		if err := tasks.Wait(); err != nil {
			log.WithError(err).Warn("Detached handlers failed during the run")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("Detached handlers still running at shutdown")
	}
}
