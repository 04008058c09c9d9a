package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"harvest/internal/config"
	"harvest/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := buildDaemon(cfg, logger)
	if err != nil {
		logger.Error("daemon bootstrap failed", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return
	}
	if addr := d.Addr(); addr != "" {
		logger.Info("control api listening", logging.String("addr", addr))
	}

	<-ctx.Done()
	logger.Info("harvestd shutting down")
	d.Stop()
}
