package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/code-sigs/go-naming/pkg/box"
	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/spf13/pflag"
)

func main() {
	configDir := pflag.StringP("config", "c", "./configs", "directory containing agent.yaml")
	registryURL := pflag.StringP("registry", "r", "", "registry url, overrides naming.registry (e.g. consul://127.0.0.1:8500)")
	pflag.Parse()

	cfg, err := box.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if *registryURL != "" {
		cfg.Naming.Registry = *registryURL
	}
	if err := logger.Init(cfg.Log.Dir,
		logger.WithLogLevel(cfg.Log.Level),
		logger.WithMaxAge(cfg.Log.MaxAgeDays),
		logger.WithStdout(cfg.Log.Stdout),
	); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := box.New(cfg)
	if err != nil {
		logger.Errorw(ctx, "create naming agent failed", "registry", cfg.Naming.Registry, "error", err)
		os.Exit(1)
	}
	logger.Infow(ctx, "naming agent starting", "registry", cfg.Naming.Registry, "http", cfg.Http.Addr())
	if err := b.Run(ctx); err != nil {
		logger.Errorw(ctx, "naming agent stopped", "error", err)
		os.Exit(1)
	}
	logger.Infow(ctx, "naming agent stopped")
}
