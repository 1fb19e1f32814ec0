// Command tripctl runs maintenance tasks against the tripbook stores:
// remote migrations, one-shot sync, orphaned image cleanup and budget export.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkordes/tripbook/backend/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tripctl:", err)
		stop()
		os.Exit(1)
	}
}
