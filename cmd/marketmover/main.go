package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"marketmover/internal/bots"
	"marketmover/internal/config"
	"marketmover/internal/gamma"
	"marketmover/internal/httpapi"
	"marketmover/internal/insight"
	"marketmover/internal/logger"
	"marketmover/internal/pricewalk"
	"marketmover/internal/storage"
	"marketmover/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxSnapshots, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	gammaClient := gamma.NewClient(
		cfg.Gamma.APIURL,
		cfg.Gamma.Timeout,
		cfg.Gamma.MaxRetries,
		cfg.Gamma.RetryDelayBase,
	)
	analyzer := insight.NewAnalyzer(gammaClient, store)
	engine := pricewalk.NewEngine(pricewalk.NewMemoryStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier bots.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.ListenForCommands(ctx)
		notifier = telegramClient
		logger.Info("Telegram notifications enabled")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	botSvc := bots.NewService(store, engine, notifier)
	server := httpapi.New(cfg.Server, botSvc, gammaClient, analyzer, store)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received (%v), draining...", sig)
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
	cancel()
	logger.Info("Service stopped")
}
