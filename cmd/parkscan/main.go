package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"qr-parking-backend/internal/scanner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scanner.NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
