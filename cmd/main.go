package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/novaplayer/api/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	// Secrets may come from a local .env during development; a missing file
	// is not an error.
	_ = godotenv.Load()

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "nova-api",
		Usage:    "Nova Player backend: auth, sessions and the Spotify proxy",
		Version:  "1.0.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
