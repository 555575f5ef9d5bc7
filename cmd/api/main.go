package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/config"
	"go-chi-calculator/internal/observability"
	"go-chi-calculator/internal/powerclient"
	"go-chi-calculator/internal/server"
	"go-chi-calculator/internal/session"
	"go-chi-calculator/internal/storage"
)

func main() {
	if help, err := config.ParseFlags("api", os.Args[1:], os.Stderr); err != nil {
		os.Exit(2)
	} else if help {
		return
	}

	ctx := context.Background()

	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Logger
	if err := observability.InitLogger(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		panic(err)
	}
	defer observability.SyncLogger()

	// Tracing, metrics, OTLP logs
	telemetryShutdown, err := initTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		panic(err)
	}
	defer telemetryShutdown(ctx)

	logger := observability.Logger

	store, err := openStore(cfg.Storage)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
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
		Logger:          logger.Named("session"),
	})
	defer registry.Close()

	// Router
	router := server.NewRouter(session.NewHandler(registry, store))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.Server.Addr),
			zap.Bool("remote_power", power != nil),
			zap.Bool("telemetry", cfg.Telemetry.Enabled),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	waitForShutdown(srv, cfg.Server)
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Dir == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewFileStore(cfg.Dir)
}

func waitForShutdown(srv *http.Server, cfg config.ServerConfig) {

	stop := make(chan os.Signal, 1)

	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		observability.Logger.Error("server shutdown", zap.Error(err))
	}
}
