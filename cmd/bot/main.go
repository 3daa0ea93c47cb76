package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/config"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/ingest"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/notifier"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/report"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/storage"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/telegram"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath, cfg.DefaultRewardPerDep)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize aggregator
	agg := report.NewAggregator(store)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, agg, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start ingest server
	ingestServer := ingest.NewServer(store, cfg.ResolveAlias, log)
	go func() {
		if err := ingestServer.Start(ctx, cfg.IngestHost, cfg.IngestPort); err != nil && err != http.ErrServerClosed {
			log.Error("ingest server", "error", err)
		}
	}()

	// Start report broadcaster
	broadcaster := notifier.New(cfg, store, agg, bot, log)
	go broadcaster.Start(ctx, time.Duration(cfg.BroadcastIntervalMin)*time.Minute)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}
