// Command migrate copies users, tenants and events from the legacy database
// into the current schema.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Overload so a local .env wins over the shell
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
