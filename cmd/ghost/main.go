package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/datastore"

	"github.com/keshon/ghostline/internal/config"
	"github.com/keshon/ghostline/internal/ghost"
	"github.com/keshon/ghostline/internal/logging"
	"github.com/keshon/ghostline/internal/relay"
	"github.com/keshon/ghostline/internal/scheduler"
	"github.com/keshon/ghostline/internal/trigger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fallback := logging.New("info", "")
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	logger.Info().Msg("starting ghostline...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds, err := datastore.New(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("failed to open datastore")
	}
	defer ds.Close()

	store := ghost.NewStore(ds, logger)
	machine := ghost.NewMachine(store, logger)

	table := trigger.DefaultTable()
	if cfg.TriggerTablePath != "" {
		table, err = trigger.Load(cfg.TriggerTablePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.TriggerTablePath).Msg("failed to load trigger table")
		}
	}
	evaluator := trigger.NewEvaluator(machine, table, logger)

	sched := scheduler.New(machine, logger)
	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	if cfg.DiscordToken != "" {
		go func() {
			if err := relay.StartBot(ctx, cfg, machine, evaluator, logger); err != nil {
				errCh <- err
			}
			close(errCh)
		}()
	} else {
		logger.Warn().Msg("no DISCORD_TOKEN set, running headless (scheduler only)")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("received signal, shutting down...")
		cancel()
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("relay error")
		}
		cancel()
	case <-ctx.Done():
	}

	logger.Info().Msg("ghostline exited cleanly")
}
