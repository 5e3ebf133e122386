package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"alertdash/internal/cli"
	"alertdash/internal/logging"
)

func main() {
	log := logging.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(log).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
