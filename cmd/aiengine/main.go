// Command aiengine runs queries against the configured AI environments,
// either one-shot from the command line or as an HTTP service.
//
// Configuration is read from a YAML or TOML file (see --config) with
// AIENGINE_ environment overrides. A .env file in the working directory is
// loaded first when present.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		slog.Error("aiengine failed", "error", err)
		os.Exit(1)
	}
}
