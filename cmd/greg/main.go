package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/paul-berdier/greg-voice/internal/app"
	"github.com/paul-berdier/greg-voice/internal/config"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

func main() {
	// Bootstrap logger; level is re-read from config below
	log := logger.New(logger.Config{
		Level:  "info",
		Format: "text",
	})

	log.Info("Starting Greg voice-music controller")

	cfg, err := config.Load()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	log = logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	log.Infof("Snapshot dir: %s", cfg.PlaylistDir)
	log.Infof("Bot token: %s", cfg.GetSafeToken())

	application, err := app.New(cfg, log)
	if err != nil {
		log.Errorf("Failed to initialize: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	log.Info("✅ Controller is now running. Press CTRL-C to exit.")
	if err := application.Run(ctx); err != nil {
		log.Errorf("Runtime failure: %v", err)
		os.Exit(1)
	}

	log.Info("Controller stopped successfully")
}
