package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/config"
	"go-chi-calculator/internal/observability"
	"go-chi-calculator/internal/powerclient"
	"go-chi-calculator/internal/session"
	"go-chi-calculator/internal/storage"
	"go-chi-calculator/internal/telegram"
)

const shutdownTimeout = 2 * time.Minute

func main() {
	if help, err := config.ParseFlags("calcbot", os.Args[1:], os.Stderr); err != nil {
		os.Exit(2)
	} else if help {
		return
	}

	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := observability.InitLogger(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		panic(err)
	}
	defer observability.SyncLogger()
	logger := observability.Logger.Named("calcbot")

	if cfg.Telegram.Token == "" {
		logger.Fatal("CALC_TELEGRAM_TOKEN is required")
	}

	var store storage.Store = storage.NewMemoryStore()
	if cfg.Storage.Dir != "" {
		if store, err = storage.NewFileStore(cfg.Storage.Dir); err != nil {
			logger.Fatal("opening storage", zap.Error(err))
		}
	}

	var power calculator.PowerService
	if cfg.Power.URL != "" {
		power = powerclient.New(cfg.Power.URL, cfg.Power.Timeout, logger.Named("powerclient"))
	}

	registry := session.NewRegistry(session.Config{
		TTL:             cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		Store:           store,
		Power:           power,
		CreateRate:      cfg.Session.CreateRate,
		CreateBurst:     cfg.Session.CreateBurst,
		Logger:          logger,
	})

	bot, err := telegram.Connect(cfg.Telegram.Token, telegram.Config{
		Offset:     cfg.Telegram.Offset,
		Timeout:    cfg.Telegram.Timeout,
		SessionTTL: cfg.Session.TTL,
	}, registry, logger)
	if err != nil {
		logger.Fatal("failed to connect telegram", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting telegram bot")
		if err := bot.Run(context.Background()); !errors.Is(err, telegram.ErrClosed) {
			logger.Error("telegram bot stopped unexpectedly", zap.Error(err))
		}
		quit <- os.Interrupt
	}()

	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("stopping telegram bot")
	if err := bot.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	logger.Info("telegram bot stopped")
}
