// Command pawprint builds dog photo snapshots and matches photos against
// them.
//
// Usage:
//
//	pawprint [--config file] <command> [args]
//
// Commands:
//
//	build    - embed a dataset into a new snapshot
//	update   - append identities that are not yet indexed
//	match    - identify the dog in one or more photos
//	search   - list the closest identities for a photo
//	inspect  - print snapshot metadata
//	serve    - serve matches over HTTP
//	catalog  - manage the dog catalog (init, add, show)
//
// Configuration is read from --config (YAML), then .env, then PAWPRINT_*
// environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
