package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	configpkg "rdpso/simulator/internal/config"
	"rdpso/simulator/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rdpso:", err)
		os.Exit(1)
	}
}

func run() error {
	//1.- Resolve configuration and logging before anything can fail noisily.
	cfg, err := configpkg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	//2.- Wire the engine and transports, then serve until a signal arrives.
	svc, err := newService(cfg, logger)

	if err != nil {
		logger.Error("service startup failed", logging.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svc.run(ctx); err != nil {
		logger.Error("service stopped with error", logging.Error(err))
		return err
	}
	logger.Info("service stopped")
	return nil
}
