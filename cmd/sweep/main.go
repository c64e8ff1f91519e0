package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/leozw/portfolio-guardian/internal/app"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/leozw/portfolio-guardian/internal/db"
	"github.com/leozw/portfolio-guardian/internal/notify"
	"go.uber.org/zap"
)

// sweep runs a single sweep once and prints its summary as JSON.
func main() {
	name := flag.String("name", "", "sweep to run: health, monitoring, integrations or review")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: sweep -name <sweep>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	database, err := db.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	repo := db.NewRepository(database)
	notifier := notify.NewService(repo, notify.NewOpsChannel(cfg.Ops), cfg.Ops.Source, logger)

	sw, ok := app.NewSweeps(cfg.Sweeps, repo, notifier, nil, logger).Find(*name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown sweep %q\n", *name)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := sw.Run(ctx)
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			logger.Error("Failed to encode summary", zap.Error(err))
		}
	}
	if runErr != nil {
		logger.Error("Sweep failed", zap.String("sweep", *name), zap.Error(runErr))
		os.Exit(1)
	}
}
