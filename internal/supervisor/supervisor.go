// Package supervisor drives one feed's connection lifecycle: dial,
// subscribe, stream, and reconnect with backoff, exactly the state
// machine spec.md §4.4 describes. One Supervisor owns exactly one
// (exchange, instrument type) feed, mirroring the teacher's one-goroutine-
// per-connector shape in internal/connector/binance, generalized into an
// explicit state machine instead of a bare readLoop.
package supervisor

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"mdengine/internal/feed"
	"mdengine/internal/metrics"
	"mdengine/internal/registry"
	"mdengine/internal/store"
)

// State enumerates the supervisor's connection lifecycle (spec §4.4).
type State int

const (
	Idle State = iota
	Connecting
	Subscribing
	Streaming
	Backoff
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	case Backoff:
		return "backoff"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// streamingResetAfter is the minimum dwell time in Streaming before a
// subsequent disconnect resets the backoff sequence to its initial delay
// (spec §4.4).
const streamingResetAfter = 30 * time.Second

// subscribeRateLimit caps how fast the supervisor writes individual
// subscribe frames, for venues (like mexc's futures market) whose
// adapter emits one frame per symbol rather than one combined frame.
const subscribeRateLimit = 20 // frames/sec

// symbolEntry pairs a venue-native symbol string with the resolved
// store key for frames that decode against it.
type symbolEntry struct {
	venue string
	base  string
	quote string
}

// Supervisor runs one adapter's connection lifecycle until its context
// is cancelled. Callers obtain the current state via State for metrics
// or health checks; Store and Registry are shared across all
// supervisors in a façade.
type Supervisor struct {
	adapter  feed.Adapter
	registry *registry.Registry
	store    *store.Store
	symbols  []symbolEntry
	breaker  *gobreaker.CircuitBreaker
	dialer   *websocket.Dialer
	subLimit *rate.Limiter
	log      zerolog.Logger

	state atomic.Int32
}

// New builds a supervisor for adapter, serving the given canonical
// (base, quote) pairs. Every pair is kept; a pair the registry rejects
// is logged and skipped when the feed connects (see resolveSymbols),
// without stopping the rest of the feed.
func New(adapter feed.Adapter, pairs [][2]string, reg *registry.Registry, st *store.Store, logger zerolog.Logger) *Supervisor {
	s := &Supervisor{
		adapter:  adapter,
		registry: reg,
		store:    st,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		subLimit: rate.NewLimiter(rate.Limit(subscribeRateLimit), subscribeRateLimit),
		log: logger.With().
			Str("exchange", adapter.Exchange()).
			Str("instrument_type", adapter.InstrumentType().String()).
			Logger(),
	}

	for _, p := range pairs {
		s.symbols = append(s.symbols, symbolEntry{
			venue: adapter.VenueSymbol(p[0], p[1]),
			base:  p[0],
			quote: p[1],
		})
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        adapter.Exchange() + "-" + adapter.InstrumentType().String(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	s.setState(Idle)
	return s
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	metrics.RecordFeedState(s.adapter.Exchange(), s.adapter.InstrumentType().String(), int(st))
}

// Run drives the lifecycle until ctx is cancelled, at which point it
// transitions to Stopped and returns nil. It never returns a non-nil
// error for ordinary disconnects: those are handled internally by the
// Backoff state. A non-nil error return means construction-time
// misconfiguration (no symbols configured).
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		return errors.New("supervisor: no symbols to subscribe")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0 // retry forever; the façade owns overall shutdown
	// Full jitter is applied in the loop below.
	bo.RandomizationFactor = 0

	for {
		select {
		case <-ctx.Done():
			s.setState(Stopped)
			return nil
		default:
		}

		s.setState(Connecting)
		streamedAt := time.Time{}
		err := s.connectAndStream(ctx, &streamedAt)
		if ctx.Err() != nil {
			s.setState(Stopped)
			return nil
		}

		if !streamedAt.IsZero() && time.Since(streamedAt) >= streamingResetAfter {
			bo.Reset()
		}

		// Full jitter: wait a uniform random time in [0, interval].
		delay := time.Duration(rand.Int63n(int64(bo.NextBackOff()) + 1))
		s.log.Warn().Err(err).Dur("backoff", delay).Msg("feed disconnected, backing off")
		metrics.RecordBackoff(s.adapter.Exchange(), s.adapter.InstrumentType().String(), delay.Seconds())
		s.setState(Backoff)
		metrics.RecordReconnect(s.adapter.Exchange(), s.adapter.InstrumentType().String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(Stopped)
			return nil
		case <-timer.C:
		}
	}
}

// connectAndStream dials, subscribes, and streams until the connection
// drops or ctx is cancelled. streamedAt is stamped the moment the
// supervisor first enters Streaming, so Run can decide whether to reset
// the backoff sequence.
func (s *Supervisor) connectAndStream(ctx context.Context, streamedAt *time.Time) error {
	connIface, err := s.breaker.Execute(func() (interface{}, error) {
		return s.dial(ctx)
	})
	if err != nil {
		return err
	}
	conn := connIface.(*websocket.Conn)
	defer conn.Close()

	s.resolveSymbols()

	s.setState(Subscribing)
	if err := s.subscribe(ctx, conn); err != nil {
		return err
	}

	s.setState(Streaming)
	*streamedAt = time.Now()
	return s.streamLoop(ctx, conn)
}

func (s *Supervisor) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.adapter.Endpoint(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Supervisor) subscribe(ctx context.Context, conn *websocket.Conn) error {
	venueSymbols := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		venueSymbols[i] = sym.venue
	}

	frames, err := s.adapter.SubscribePayload(venueSymbols)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := s.subLimit.Wait(ctx); err != nil {
			return err
		}
		msgType := websocket.BinaryMessage
		if f.Text {
			msgType = websocket.TextMessage
		}
		if err := conn.WriteMessage(msgType, f.Payload); err != nil {
			return err
		}
	}

	if !s.adapter.HasSubscribeAck() {
		return nil
	}

	// A subscribe request chunked into multiple frames (spec §4.3) gets
	// one ack per frame; wait for all of them before moving to Streaming.
	pending := len(frames)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for pending > 0 {
		textType, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		out := s.adapter.Decode(feed.IncomingFrame{
			Text:        textType == websocket.TextMessage,
			Payload:     payload,
			ArrivalTsNs: uint64(time.Now().UnixNano()),
		})
		if out.Kind == feed.Ack {
			pending--
			continue
		}
		// A quote frame arriving before the ack is still valid data;
		// store it and keep waiting for the remaining acks.
		if out.Kind == feed.Quote {
			s.storeQuote(out)
		}
	}
	return nil
}

// streamLoop reads frames until the connection errs or ctx is
// cancelled, decoding each into the store and servicing the adapter's
// keepalive policy.
func (s *Supervisor) streamLoop(ctx context.Context, conn *websocket.Conn) error {
	policy := s.adapter.KeepalivePolicy()
	exchange := s.adapter.Exchange()
	itype := s.adapter.InstrumentType().String()

	done := make(chan struct{})
	defer close(done)

	if policy.Kind == feed.KeepaliveClientPing && policy.BuildPing != nil {
		go s.runClientPinger(conn, policy, done)
	}

	readTimeout := 0 * time.Second
	if policy.Kind == feed.KeepaliveRespondToServerPing {
		readTimeout = 3 * policy.Interval
	} else {
		// Clear the subscribe-ack deadline set by subscribe.
		conn.SetReadDeadline(time.Time{})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		arrival := uint64(time.Now().UnixNano())
		metrics.RecordLastFrame(exchange, itype, arrival)

		frame := feed.IncomingFrame{
			Text:        msgType == websocket.TextMessage,
			Payload:     payload,
			ArrivalTsNs: arrival,
		}
		out := s.adapter.Decode(frame)

		switch out.Kind {
		case feed.Quote:
			metrics.RecordFrame(exchange, itype, nil)
			s.storeQuote(out)
		case feed.DecodeError:
			metrics.RecordFrame(exchange, itype, out.Err)
			s.log.Debug().Err(out.Err).Msg("decode error")
		case feed.ResetSignal:
			return errors.New("supervisor: adapter requested reset")
		case feed.Heartbeat, feed.Ack, feed.Ignored:
			metrics.RecordFrame(exchange, itype, nil)
		}
	}
}

// resolveSymbols registers every configured (base, quote) pair so the
// store has stable symbol IDs, and the registry's venue-symbol alias
// table is populated, before the first frame arrives. It is a no-op for
// pairs already registered.
func (s *Supervisor) resolveSymbols() {
	for _, sym := range s.symbols {
		if _, err := s.registry.Register(sym.base, sym.quote, s.adapter.InstrumentType()); err != nil {
			s.log.Warn().Err(err).Str("base", sym.base).Str("quote", sym.quote).Msg("failed to register symbol")
		}
	}
}

// storeQuote resolves a decoded quote's venue symbol against the shared
// registry and writes it to the store. A venue symbol the registry
// doesn't recognize is dropped: it is counted as an invariant rejection
// rather than silently ignored, since it signals an adapter/registry
// mismatch worth noticing.
func (s *Supervisor) storeQuote(out feed.Output) {
	id, ok := s.registry.Resolve(out.VenueSymbol, s.adapter.InstrumentType())
	if !ok {
		metrics.RecordInvariantRejected(s.adapter.Exchange(), s.adapter.InstrumentType().String())
		s.log.Warn().Str("venue_symbol", out.VenueSymbol).Msg("quote for unregistered symbol dropped")
		return
	}
	if !s.store.Put(s.adapter.Exchange(), id, out.Record) {
		metrics.RecordInvariantRejected(s.adapter.Exchange(), s.adapter.InstrumentType().String())
	}
}

func (s *Supervisor) runClientPinger(conn *websocket.Conn, policy feed.KeepaliveSpec, done chan struct{}) {
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			f := policy.BuildPing()
			msgType := websocket.BinaryMessage
			if f.Text {
				msgType = websocket.TextMessage
			}
			if err := conn.WriteMessage(msgType, f.Payload); err != nil {
				return
			}
		}
	}
}
