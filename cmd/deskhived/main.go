package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	apiPkg "github.com/deskhive-io/deskhive/internal/api"
	"github.com/deskhive-io/deskhive/internal/config"
	"github.com/deskhive-io/deskhive/internal/confirm"
	"github.com/deskhive-io/deskhive/internal/diff"
	"github.com/deskhive-io/deskhive/internal/engine"
	"github.com/deskhive-io/deskhive/internal/freescout"
	"github.com/deskhive-io/deskhive/internal/janitor"
	"github.com/deskhive-io/deskhive/internal/logbuf"
	"github.com/deskhive-io/deskhive/internal/notify"
	"github.com/deskhive-io/deskhive/internal/poller"
	"github.com/deskhive-io/deskhive/internal/queue"
	"github.com/deskhive-io/deskhive/internal/session"
	"github.com/deskhive-io/deskhive/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logRing := logbuf.NewRing(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logRing))

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("deskhived starting", "freescout", cfg.FreeScout.BaseURL, "user_id", cfg.FreeScout.UserID)

	// 1. Helpdesk client
	client, err := freescout.New(cfg.FreeScout.BaseURL, cfg.FreeScout.APIKey, cfg.FreeScout.UserID, logger.With("component", "freescout"))
	if err != nil {
		logger.Error("failed to init freescout client", "error", err)
		os.Exit(1)
	}

	// 2. Queue store + snapshot persistence
	q := queue.New(logger.With("component", "queue"))

	os.MkdirAll(cfg.DataDir, 0o755)
	snapPath := filepath.Join(cfg.DataDir, "snapshot.db")
	snapStore, err := snapshot.NewSQLiteStore(snapPath)
	if err != nil {
		logger.Error("failed to open snapshot store", "path", snapPath, "error", err)
		os.Exit(1)
	}
	defer snapStore.Close()

	// 3. Notifiers
	var notifiers []notify.Notifier
	if tg := cfg.Notify.Telegram; tg != nil {
		n, err := notify.NewTelegram(tg.Token, tg.ChatID)
		if err != nil {
			logger.Error("failed to init telegram notifier", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, n)
		logger.Info("telegram notifier enabled", "chat_id", tg.ChatID)
	}
	if sl := cfg.Notify.Slack; sl != nil {
		notifiers = append(notifiers, notify.NewSlack(sl.Token, sl.Channel))
		logger.Info("slack notifier enabled", "channel", sl.Channel)
	}
	multi := notify.NewMulti(logger.With("component", "notify"), notifiers...)

	// 4. Poller feeding the queue and the event stream. The engine is
	// constructed after the poller, so the change callback binds late.
	hub := apiPkg.NewHub(logger.With("component", "events"))
	var eng *engine.Engine
	onChange := func(changes diff.Changes) {
		eng.Ingest(changes)
		hub.Broadcast(changes)
	}

	p, err := poller.New(poller.Config{
		Interval:    time.Duration(cfg.Poller.IntervalSeconds) * time.Second,
		AutoProcess: cfg.Poller.AutoProcess,
	}, client.FetchAssigned, onChange, snapStore, logger.With("component", "poller"))
	if err != nil {
		logger.Error("failed to init poller", "error", err)
		os.Exit(1)
	}

	// 5. Engine
	confirmer := confirm.New(q, client, logger.With("component", "confirm"))
	sessions := session.NewManager(q, logger.With("component", "session"))
	eng = engine.New(q, p, confirmer, sessions, client.CustomerText, multi, logger.With("component", "engine"))

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	// 6. Janitor evicting stale done items
	jan, err := janitor.New(q, cfg.Janitor.Schedule, time.Duration(cfg.Janitor.DoneTTLMinutes)*time.Minute, logger.With("component", "janitor"))
	if err != nil {
		logger.Error("failed to init janitor", "error", err)
		os.Exit(1)
	}
	wg.Add(1)
	go safeGo(logger, "janitor", func() {
		defer wg.Done()
		jan.Start(ctx)
	})

	// 7. API server
	apiSrv := apiPkg.NewServer(eng, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logRing, hub)
	wg.Add(1)
	go safeGo(logger, "api-server", func() {
		defer wg.Done()
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server exited", "error", err)
		}
	})
	logger.Info("api server started", "port", cfg.API.Port)

	// 8. Start polling
	p.Start()

	<-ctx.Done()
	logger.Info("received signal, shutting down")
	p.Stop()
	hub.Close()
	wg.Wait()
	logger.Info("deskhived stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
