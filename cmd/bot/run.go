package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"SignalSentinel/internal/api"
)

func runBot(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().Msg("SignalSentinel starting...")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.warmUp(ctx, true)

	if err := a.scheduler.RegisterAll(); err != nil {
		return err
	}
	a.scheduler.Start()
	defer a.scheduler.Stop()

	if cfg.Tunables.Watch {
		go func() {
			if err := a.tunables.Watch(ctx); err != nil {
				log.Error().Err(err).Msg("tunables watcher stopped")
			}
		}()
	}

	srv := api.NewServer(cfg.HTTP.Addr, a.scheduler, a.tunables, a.metrics.Handler())
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("http api stopped")
		}
	}()

	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, a.scheduler.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	// Optional: scan every class immediately
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, scanning now")
		go a.scheduler.ScanAll(ctx)
	}

	log.Info().Int("symbols", len(a.universe.Symbols())).Msg("SignalSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http api shutdown")
	}
	log.Info().Msg("SignalSentinel stopped")
	return nil
}
