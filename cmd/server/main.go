/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the deal engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from .env / environment
  2. Set up structured logging (tint console handler)
  3. Open the durable store (SQLite, or in-memory when DB_PATH is empty)
  4. Replay the deal collection and rebuild counters
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION (environment):
  PORT              HTTP server port (default: 8080)
  DB_PATH           SQLite database path; empty = in-memory store
  REVENUE_RATE      Currency per kilowatt (default: 3.50)
  ID_BASE           First deal ID ever issued (default: 1000)
  LEADERBOARD_SIZE  Ranked rows per leaderboard (default: 5)
  ADMIN_IDS         Comma-separated rep IDs allowed to delete/reset
  LOG_LEVEL         debug|info|warn|error (default: info)
  ALLOWED_ORIGINS   Comma-separated CORS origins (default: *)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - config/config.go: Environment parsing
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/warp/deal-engine/api"
	"github.com/warp/deal-engine/config"
	"github.com/warp/deal-engine/ledger"
	memstore "github.com/warp/deal-engine/ledger/store"
	"github.com/warp/deal-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	// Durable store
	var store ledger.Store
	if cfg.DBPath == "" {
		log.Warn("DB_PATH empty, using in-memory store; deals are lost on restart")
		store = memstore.NewMemory()
	} else {
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			log.Error("failed to open database", "path", cfg.DBPath, "err", err)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	// Engine
	admins := make(ledger.AdminList, 0, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins = append(admins, ledger.RepID(id))
	}
	var authorizer ledger.Authorizer
	if len(admins) > 0 {
		authorizer = admins
	}

	eng := ledger.New(store, ledger.Options{
		IDBase:      cfg.IDBase,
		RevenueRate: cfg.RevenueRateDecimal(),
		Authorizer:  authorizer,
	})
	if err := eng.Load(context.Background()); err != nil {
		log.Error("failed to load deal collection", "err", err)
		os.Exit(1)
	}
	log.Info("deal collection loaded",
		"deals", len(eng.ListAll(context.Background())), "next_id", eng.NextID())

	// Router and server
	handler := api.NewHandler(eng, cfg.LeaderboardSize, log)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)
	return log
}
