package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"authsvc/internal/config"
	"authsvc/internal/db"
	"authsvc/internal/db/migrations"
	"authsvc/internal/logging"
	"authsvc/internal/repository"
	"authsvc/internal/routes"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Environment)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := db.CreateDatabaseIfNotExists(cfg.DatabaseURL); err != nil {
		log.Error("failed to ensure database exists", "error", err)
		os.Exit(1)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := migrations.RunMigrations(database.DB); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	router := routes.SetupRoutes(database.DB, cfg, log)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	gcCtx, stopGC := context.WithCancel(context.Background())
	go sweepExpiredSessions(gcCtx, repository.NewSessionRepository(database.DB), log)

	go func() {
		log.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")
	stopGC()

	// Give server 5 seconds to finish current requests
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exiting")
}

// sweepExpiredSessions deletes aged-out session rows so the table does
// not grow without bound; clients only ever see sessions through the
// expiry-checked lookup, so the sweep cadence is not load-bearing.
func sweepExpiredSessions(ctx context.Context, sessions repository.SessionRepository, log *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("swept expired sessions", "deleted", n)
			}
		}
	}
}
