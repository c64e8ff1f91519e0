package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leozw/portfolio-guardian/internal/api"
	"github.com/leozw/portfolio-guardian/internal/api/handlers"
	"github.com/leozw/portfolio-guardian/internal/app"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/db"
	"github.com/leozw/portfolio-guardian/internal/metrics"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"github.com/leozw/portfolio-guardian/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Database connection
	database, err := db.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(database); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	repo := db.NewRepository(database)
	notifier := notify.NewService(repo, notify.NewOpsChannel(cfg.Ops), cfg.Ops.Source, logger)
	collector := metrics.NewCollector(cfg.Mimir, nil)

	// Sweeps and scheduler
	sched := scheduler.NewScheduler(collector, logger)
	if err := app.NewSweeps(cfg.Sweeps, repo, notifier, collector, logger).Register(sched); err != nil {
		logger.Fatal("Failed to register sweeps", zap.Error(err))
	}

	cfg.Watch(logger, func(s config.Sweeps) {
		if err := app.NewSweeps(s, repo, notifier, collector, logger).Register(sched); err != nil {
			logger.Error("Reloaded sweep settings rejected", zap.Error(err))
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()
	go collector.StartRemoteWrite(ctx, logger)

	// API server
	h := handlers.NewHandler(sched, app.SLAReporter{Scheduler: sched}, repo, repo, logger)
	server := api.NewServer(cfg, h, collector.Gatherer(), logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Worker started", zap.String("port", cfg.Server.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	cancel()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Sweeps still running at shutdown deadline")
	}

	logger.Info("Worker exited")
}
