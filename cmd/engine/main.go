package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/confluence"
	"github.com/quantflux/confluence/internal/engine"
	"github.com/quantflux/confluence/internal/metrics"
	"github.com/quantflux/confluence/internal/shaper"
	sig "github.com/quantflux/confluence/internal/signal"
	"github.com/quantflux/confluence/internal/sink"
	"github.com/quantflux/confluence/internal/supplier"
	"github.com/quantflux/confluence/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	dumpConfig := flag.Bool("dump-config", false, "Print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if *dumpConfig {
		out, err := cfg.Dump()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to render config")
		}
		fmt.Print(out)
		return
	}

	log.Info().
		Str("environment", cfg.App.Environment).
		Strs("symbols", cfg.Supplier.Symbols).
		Msg("Starting confluence engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cooldown store
	var store sig.CooldownStore
	switch cfg.Signal.CooldownStore {
	case "redis":
		retention := 2 * cfg.Signal.Cooldown()
		rs, err := sig.NewRedisCooldownStore(ctx, cfg.Redis, retention)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect cooldown store")
		}
		store = rs
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis cooldown store")
	default:
		store = sig.NewMemoryCooldownStore()
	}
	defer store.Close()

	// Tracker
	track := tracker.New(cfg.Tracker.LogDir, cfg.Tracker.CacheCapacity, log.Logger)
	defer track.Close()

	// Sinks and dispatcher
	sinks, err := sink.FromConfig(cfg.Sinks, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build sinks")
	}
	dispatcher := sig.NewDispatcher(sinks, cfg.Signal.QueueSize, log.Logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Metrics server
	if cfg.Monitoring.EnableMetrics {
		srv := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	// Supplier
	var sup supplier.Supplier
	switch cfg.Supplier.Kind {
	case "binance":
		sup = supplier.NewBinanceSupplier(
			cfg.Supplier,
			cfg.Timeframes,
			os.Getenv("CONFLUENCE_BINANCE_API_KEY"),
			os.Getenv("CONFLUENCE_BINANCE_SECRET_KEY"),
			log.Logger,
		)
	default:
		log.Fatal().Str("kind", cfg.Supplier.Kind).Msg("Unknown supplier kind")
	}
	defer sup.Close()

	// Pipeline
	sh := shaper.New(log.Logger)
	analyzer := confluence.New(sh, cfg, log.Logger)
	generator := sig.NewGenerator(cfg, store, track, dispatcher, log.Logger)
	eng := engine.New(sup, analyzer, generator, cfg.Supplier.Symbols, cfg.Supplier.PollInterval(), log.Logger)

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Engine stopped with error")
	}
	log.Info().Msg("Confluence engine shut down")
}
