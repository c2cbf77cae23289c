// Command migrates runs the migration orchestrator's command-line front
// end (§6). Wiring a concrete index-store client is the embedding
// program's responsibility (see cmd.SetStoreFactory); this binary's own
// main is deliberately thin, matching the teacher's own entrypoint shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/3leaps/migrates/internal/cmd"
	"github.com/3leaps/migrates/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer observability.Sync()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "migrates:", err)
		os.Exit(1)
	}
}
