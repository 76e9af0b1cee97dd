package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"mixtape/internal/auth"
	"mixtape/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}

	var store auth.Store = auth.NewMemoryStore()
	if path, err := auth.DefaultCredentialPath(); err == nil {
		if fs, err := auth.NewFileStore(path); err == nil {
			store = fs
		} else {
			logger.Warn("credential store unavailable, tokens will not persist", "error", err)
		}
	} else {
		logger.Warn("no user config directory, tokens will not persist", "error", err)
	}

	runner := NewRunner(RunnerOpts{
		Config: config,
		Store:  store,
		Logger: logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:     "mixtape",
		Usage:    "Build and save Spotify playlists from the terminal",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
