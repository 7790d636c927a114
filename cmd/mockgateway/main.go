// File: cmd/mockgateway/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"conductor-chat/internal/config"
	httpapi "conductor-chat/internal/infra/http"
	"conductor-chat/internal/infra/logging"
	"conductor-chat/internal/infra/metrics"
	"conductor-chat/internal/infra/worker"
)

var version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.SetBuildInfo(version, "mock")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mc := cfg.MockGateway
	pool := worker.NewPool(mc.Workers, mc.Workers, log)
	srv := httpapi.NewServer(mc, pool, log)

	g, gctx := errgroup.WithContext(ctx)
	pool.Start(gctx)
	g.Go(srv.Start)
	g.Go(func() error {
		srv.RunSweeper(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		pool.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("mock gateway stopped")
		os.Exit(1)
	}
}
