package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/deusflow/briefs/internal/app"
	"github.com/deusflow/briefs/internal/config"
	"github.com/deusflow/briefs/internal/engine"
	"github.com/deusflow/briefs/internal/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single pass even when SCHEDULE is set")
	flag.Parse()

	// .env is optional; real deployments pass the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("❌ invalid configuration", "error", err)
		os.Exit(2)
	}
	if *once {
		cfg.Schedule = ""
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("❌ startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		if errors.Is(err, engine.ErrAbort) {
			logger.Error("❌ run aborted", "error", err)
		} else {
			logger.Error("❌ run failed", "error", err)
		}
		a.Close()
		os.Exit(1)
	}
	logger.Info("✅ done")
}
