// Package market is the engine's façade: it wires a Config into a set
// of running feed supervisors sharing one registry and store, and
// exposes the read API external callers use to query live BBO data.
// Shaped after the teacher's cmd/ingest/main.go wiring (env config,
// zerolog, a metrics server, signal-driven shutdown), pulled into a
// reusable package instead of being inlined in main.
package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mdengine/internal/feed"
	"mdengine/internal/feed/binance"
	"mdengine/internal/feed/bybit"
	"mdengine/internal/feed/coinbase"
	"mdengine/internal/feed/kraken"
	"mdengine/internal/feed/lighter"
	"mdengine/internal/feed/mexc"
	"mdengine/internal/metrics"
	"mdengine/internal/mirror"
	"mdengine/internal/quote"
	"mdengine/internal/registry"
	"mdengine/internal/store"
	"mdengine/internal/supervisor"
)

// Config describes which feeds to run. Spot and Perp map a lowercase
// exchange name to the canonical "BASE-QUOTE" symbols to subscribe on
// that venue. RedisAddr and MetricsAddr are optional; leaving either
// blank disables that component.
type Config struct {
	Spot map[string][]string
	Perp map[string][]string

	RedisAddr   string
	MetricsAddr string

	Logger zerolog.Logger
}

// ConfigErrorKind distinguishes why a Config was rejected.
type ConfigErrorKind int

const (
	UnknownVenue ConfigErrorKind = iota
	UnknownSymbol
)

// ConfigError reports a malformed Config entry.
type ConfigError struct {
	Kind     ConfigErrorKind
	Venue    string
	Symbol   string
	Instrume quote.InstrumentType
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case UnknownVenue:
		return fmt.Sprintf("market: unknown venue %q for %s", e.Venue, e.Instrume)
	case UnknownSymbol:
		return fmt.Sprintf("market: malformed symbol %q for venue %q", e.Symbol, e.Venue)
	default:
		return "market: invalid config"
	}
}

// spotFactories and perpFactories map a venue name to its constructor
// for each instrument type. A venue missing from one of them (e.g.
// coinbase has no Perp) rejects that half of the Config.
var spotFactories = map[string]func() feed.Adapter{
	"binance":  func() feed.Adapter { return binance.NewSpot() },
	"bybit":    func() feed.Adapter { return bybit.NewSpot() },
	"coinbase": func() feed.Adapter { return coinbase.NewSpot() },
	"kraken":   func() feed.Adapter { return kraken.NewSpot() },
	"mexc":     func() feed.Adapter { return mexc.NewSpot() },
}

var perpFactories = map[string]func() feed.Adapter{
	"binance": func() feed.Adapter { return binance.NewPerp() },
	"bybit":   func() feed.Adapter { return bybit.NewPerp() },
	"mexc":    func() feed.Adapter { return mexc.NewPerp() },
	"lighter": func() feed.Adapter { return lighter.NewPerp() },
}

// Engine runs the supervisors for a validated Config and serves reads
// against their shared store.
type Engine struct {
	registry *registry.Registry
	store    *store.Store
	mirror   *mirror.RedisMirror
	metrics  *metrics.Server
	log      zerolog.Logger

	feeds  []feedEntry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and builds an Engine. Feeds are not started until
// Start is called.
func New(cfg Config) (*Engine, error) {
	if err := validate(cfg.Spot, spotFactories, quote.Spot); err != nil {
		return nil, err
	}
	if err := validate(cfg.Perp, perpFactories, quote.Perp); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	e := &Engine{
		registry: registry.New(),
		store:    store.New(),
		log:      logger,
	}

	if cfg.RedisAddr != "" {
		e.mirror = mirror.New(cfg.RedisAddr, 0)
		e.store.SetMirror(e.mirror.Publish)
	}
	if cfg.MetricsAddr != "" {
		e.metrics = metrics.NewServer(cfg.MetricsAddr)
	}

	e.buildSupervisors(cfg)
	return e, nil
}

func validate(byVenue map[string][]string, factories map[string]func() feed.Adapter, itype quote.InstrumentType) error {
	for venue, symbols := range byVenue {
		venue = strings.ToLower(strings.TrimSpace(venue))
		if _, ok := factories[venue]; !ok {
			return &ConfigError{Kind: UnknownVenue, Venue: venue, Instrume: itype}
		}
		for _, sym := range symbols {
			if _, _, ok := splitCanonical(sym); !ok {
				return &ConfigError{Kind: UnknownSymbol, Venue: venue, Symbol: sym, Instrume: itype}
			}
		}
	}
	return nil
}

func splitCanonical(sym string) (base, quote_ string, ok bool) {
	for _, sep := range []string{"-", "/", "_"} {
		if idx := strings.Index(sym, sep); idx > 0 && idx < len(sym)-1 {
			return strings.ToUpper(sym[:idx]), strings.ToUpper(sym[idx+len(sep):]), true
		}
	}
	return "", "", false
}

// feedEntry holds one built-but-not-yet-running supervisor, stashed on
// Engine so Start can launch it and Shutdown can wait for it.
type feedEntry struct {
	sup *supervisor.Supervisor
}

func (e *Engine) buildSupervisors(cfg Config) {
	e.feeds = nil
	e.feeds = append(e.feeds, build(cfg.Spot, spotFactories, e)...)
	e.feeds = append(e.feeds, build(cfg.Perp, perpFactories, e)...)
}

func build(byVenue map[string][]string, factories map[string]func() feed.Adapter, e *Engine) []feedEntry {
	var out []feedEntry
	for venue, symbols := range byVenue {
		venue = strings.ToLower(strings.TrimSpace(venue))
		adapter := factories[venue]()

		pairs := make([][2]string, 0, len(symbols))
		for _, sym := range symbols {
			base, quote_, ok := splitCanonical(sym)
			if !ok {
				continue
			}
			pairs = append(pairs, [2]string{base, quote_})
		}
		if len(pairs) == 0 {
			continue
		}

		sup := supervisor.New(adapter, pairs, e.registry, e.store, e.log)
		out = append(out, feedEntry{sup: sup})
	}
	return out
}

// Start launches every configured supervisor and the optional metrics
// server; it returns once every feed has been asked to run (not once
// they're streaming). Callers typically call Start once at process
// startup and rely on ctx cancellation plus Shutdown to stop.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if e.metrics != nil {
		go func() {
			if err := e.metrics.Start(); err != nil {
				e.log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	for _, f := range e.feeds {
		f := f
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := f.sup.Run(runCtx); err != nil {
				e.log.Error().Err(err).Msg("supervisor exited with error")
			}
		}()
	}
}

// Shutdown cancels every feed and waits up to 5 seconds (or until ctx
// is done, whichever is sooner) for them to stop.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	grace, cancelGrace := context.WithTimeout(ctx, 5*time.Second)
	defer cancelGrace()

	select {
	case <-done:
	case <-grace.Done():
		e.log.Warn().Msg("shutdown grace period elapsed before all feeds stopped")
	}

	if e.mirror != nil {
		e.mirror.Close()
	}
	if e.metrics != nil {
		e.metrics.Stop()
	}
	return nil
}

// GetMarketData returns the underlying Store for callers that want
// direct, lower-level access instead of the canonical-symbol helpers
// below.
func (e *Engine) GetMarketData() *store.Store { return e.store }

// GetSymbol resolves a canonical "BASE-QUOTE" pair to its SymbolId for
// the given instrument type.
func (e *Engine) GetSymbol(canonicalPair string, itype quote.InstrumentType) (quote.SymbolId, bool) {
	return e.registry.Resolve(canonicalPair, itype)
}

// Lookup returns the printable canonical symbol string for id.
func (e *Engine) Lookup(id quote.SymbolId) (string, bool) {
	return e.registry.Canonical(id)
}

func (e *Engine) GetBid(exchange string, id quote.SymbolId) (float64, bool) {
	return e.store.GetBid(exchange, id)
}

func (e *Engine) GetAsk(exchange string, id quote.SymbolId) (float64, bool) {
	return e.store.GetAsk(exchange, id)
}

func (e *Engine) GetBidQty(exchange string, id quote.SymbolId) (float64, bool) {
	return e.store.GetBidQty(exchange, id)
}

func (e *Engine) GetAskQty(exchange string, id quote.SymbolId) (float64, bool) {
	return e.store.GetAskQty(exchange, id)
}

func (e *Engine) GetMidquote(exchange string, id quote.SymbolId) (float64, bool) {
	return e.store.GetMidquote(exchange, id)
}

func (e *Engine) GetSpread(exchange string, id quote.SymbolId) (float64, bool) {
	return e.store.GetSpread(exchange, id)
}

func (e *Engine) GetMidquoteMean(exchange string, id quote.SymbolId, window time.Duration) (float64, bool) {
	return e.store.MidquoteMean(id, window, uint64(time.Now().UnixNano()))
}

// GetAllRegisteredSymbols lists every SymbolId the registry has assigned
// so far, across both instrument types and every exchange, in
// registration order. This is a registry-wide view, not the §4.2
// symbols_of(exchange) read API — see GetAllSymbols for that.
func (e *Engine) GetAllRegisteredSymbols() []quote.SymbolId {
	return e.registry.All()
}

// GetAllSymbols returns the SymbolIds actually written under exchange,
// mirroring store.SymbolsOf through the façade.
func (e *Engine) GetAllSymbols(exchange string) []quote.SymbolId {
	return e.store.SymbolsOf(exchange)
}
