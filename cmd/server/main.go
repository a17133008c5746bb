package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"draqua/backend/internal/config"
	"draqua/backend/internal/httpapi"
	"draqua/backend/internal/logging"
	"draqua/backend/internal/metrics"
	"draqua/backend/internal/persist"
	"draqua/backend/internal/reminder"
	"draqua/backend/internal/service"
	"draqua/backend/internal/store"
	filestore "draqua/backend/internal/store/file"
	"draqua/backend/internal/store/memory"
	mongostore "draqua/backend/internal/store/mongo"
	pgstore "draqua/backend/internal/store/postgres"
	redisstore "draqua/backend/internal/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration not loaded", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration rejected", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	docs, err := openStore(startCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := docs.Close(); err != nil {
			logger.Warn("document store close failed", "error", err)
		}
	}()
	logger.Info("document store ready", "backend", cfg.StorageBackend)

	// A document that does not load is fatal: starting with empty state would
	// overwrite it on the next save.
	snap, err := persist.Load(startCtx, docs, nil)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	logger.Info("state loaded",
		"items", len(snap.Inventory),
		"customers", len(snap.Customers),
		"sales", len(snap.Sales),
	)

	m := metrics.New()

	writerCfg := persist.DefaultWriterConfig()
	writerCfg.RetryInterval = cfg.PersistRetryInterval()
	writer := persist.NewWriter(docs, writerCfg, logging.Component(logger, "persist"), m)

	svc, err := service.New(snap,
		service.WithLogger(logging.Component(logger, "service")),
		service.WithMetrics(m),
		service.WithSaver(writer),
	)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	scheduler := reminder.NewScheduler(svc.Customers, cfg.ReminderInterval(), logging.Component(logger, "reminder"), m)
	svc.OnHistoryChange(scheduler.Refresh)

	writer.Start(context.Background())
	scheduler.Start(ctx)

	api := httpapi.New(svc, scheduler, writer, httpapi.Config{
		AllowedOrigin:     cfg.AllowedOrigin,
		LowStockThreshold: cfg.LowStockThreshold,
		Logger:            logging.Component(logger, "http"),
		Metrics:           m,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	scheduler.Stop()
	if err := writer.Close(shutdownCtx); err != nil {
		logger.Error("state not fully saved at shutdown", "error", err)
	}

	return runErr
}

// openStore connects the configured document backend.
func openStore(ctx context.Context, cfg config.Config) (store.DocumentStore, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return memory.NewSeeded(), nil
	case config.BackendFile:
		docs, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return docs, nil
	case config.BackendRedis:
		docs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "")
		if err := docs.Ping(ctx); err != nil {
			_ = docs.Close()
			return nil, fmt.Errorf("redis unavailable: %w", err)
		}
		return docs, nil
	case config.BackendPostgres:
		docs, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		return docs, nil
	case config.BackendMongo:
		docs, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo unavailable: %w", err)
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
