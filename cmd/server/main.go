/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the creator rewards server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Build the logger
  3. Open the store (SQLite file or in-process)
  4. Wire notification dispatcher, sealer, and services
  5. Optionally load a demo scenario
  6. Start the lifecycle scheduler and HTTP server

COMMAND-LINE FLAGS:
  -config  YAML config file (default: ./config.yaml if present)
  -port    HTTP server port, overrides server.port
  -db      Database path, overrides database.path
           ":memory:" for in-memory SQLite, "memory" for the map store

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and drain notifications
  4. Close the database

ENVIRONMENT:
  REWARDS_* variables override config keys, e.g. REWARDS_SERVER_PORT,
  REWARDS_PAYMENTS_ENCRYPTION_KEY, REWARDS_SEED_SCENARIO.

SEE ALSO:
  - config/config.go: configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/creator-rewards/api"
	"github.com/warp/creator-rewards/catalog"
	"github.com/warp/creator-rewards/claims"
	"github.com/warp/creator-rewards/config"
	"github.com/warp/creator-rewards/logging"
	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/notify"
	"github.com/warp/creator-rewards/ratelimit"
	"github.com/warp/creator-rewards/salesync"
	"github.com/warp/creator-rewards/store/memory"
	"github.com/warp/creator-rewards/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "Database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	store, closeStore, err := openStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeStore.Close()

	sealer, err := claims.NewSealer(cfg.Payments.EncryptionKey)
	if err != nil {
		return err
	}
	if cfg.Payments.EncryptionKey == "" {
		logger.Warn("no payment encryption key configured, using an ephemeral key")
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Sink:       notify.LogSink{Logger: logger.Named("notify")},
		Logger:     logger,
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		MaxRetries: cfg.Notify.MaxRetries,
	})
	defer dispatcher.Close()

	cat := catalog.NewService(store, logger)
	cl := claims.NewService(store, dispatcher, sealer, logger)
	sy := salesync.NewService(store, logger)
	sy.AutoCreateUsers = cfg.Sync.AutoCreateUsers

	handler := api.NewHandler(store, cat, cl, sy, logger)

	if id := cfg.Seed.Scenario; id != "" {
		if _, err := handler.Seed.Load(context.Background(), id); err != nil {
			return fmt.Errorf("failed to load scenario %q: %w", id, err)
		}
		logger.Info("scenario loaded", zap.String("scenario", id))
	}

	scheduler := api.NewLifecycleScheduler(cl, logger)
	scheduler.CheckInterval = cfg.Lifecycle.Interval
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Lockout:        ratelimit.NewLockout(cfg.Login.MaxFailures, cfg.Login.Window),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port), zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore returns the store for path. "memory" selects the map store.
func openStore(path string) (loyalty.TxStore, io.Closer, error) {
	if path == "memory" {
		return memory.New(), nopCloser{}, nil
	}
	s, err := sqlite.New(path)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}
