package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"herald/cmd/herald/cmd"
	"herald/core/logger"

	"go.uber.org/zap"
)

// main is the entry point of the herald application.
func main() {
	ctx := logger.WithComponentName(context.Background(), "main")

	// Flush buffered log entries on exit. Sync fails on terminals; ignore it.
	defer func() { _ = logger.Logger.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info(ctx, "Received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
