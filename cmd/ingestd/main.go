// Command ingestd is a thin example binary wiring the market façade to
// environment configuration, grounded on the teacher's cmd/ingest/main.go:
// zerolog console writer, env-based settings, signal-driven shutdown.
// It is demo wiring, not a deliverable in its own right — real
// deployments are expected to call the market package directly with a
// Config built however the embedding program wants.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mdengine/market"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := market.Config{
		Spot:        parseVenueList(getEnv("SPOT_FEEDS", "binance=BTC-USDT,ETH-USDT;coinbase=BTC-USD,ETH-USD")),
		Perp:        parseVenueList(getEnv("PERP_FEEDS", "binance=BTC-USDT,ETH-USDT;bybit=BTC-USDT,ETH-USDT")),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		Logger:      log.Logger,
	}

	log.Info().
		Int("spot_venues", len(cfg.Spot)).
		Int("perp_venues", len(cfg.Perp)).
		Str("metrics", cfg.MetricsAddr).
		Msg("starting market data ingestion engine")

	engine, err := market.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithCancel(context.Background())
	defer cancelShutdown()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}

// parseVenueList parses "venue1=SYM1,SYM2;venue2=SYM3" into a per-venue
// symbol map, the simplest possible encoding for an env var.
func parseVenueList(raw string) map[string][]string {
	out := make(map[string][]string)
	if strings.TrimSpace(raw) == "" {
		return out
	}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		venue := strings.TrimSpace(kv[0])
		var symbols []string
		for _, s := range strings.Split(kv[1], ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			out[venue] = symbols
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
