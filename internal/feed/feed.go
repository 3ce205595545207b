// Package feed defines the exchange adapter capability set (spec §4.3):
// the subscribe payload, the frame decoder, the keepalive policy, and
// the venue/canonical symbol mapping every per-venue adapter package
// implements.
package feed

import (
	"time"

	"mdengine/internal/quote"
)

// OutgoingFrame is one message an adapter wants written to the transport
// immediately after it opens (or later, e.g. a ping).
type OutgoingFrame struct {
	// Text is true for a JSON/text frame, false for binary.
	Text    bool
	Payload []byte
}

// IncomingFrame is one message read off the transport.
type IncomingFrame struct {
	Text    bool
	Payload []byte
	// ArrivalTsNs is the host wall clock (Unix nanoseconds, not
	// monotonic) at frame arrival, stamped by the supervisor, never the
	// venue's own timestamp.
	ArrivalTsNs uint64
}

// OutputKind tags the variant carried by an Output value. Adapters return
// a tagged struct rather than exposing a string-keyed dispatch table,
// since decoder state is heterogeneous per venue (spec §9).
type OutputKind int

const (
	Ignored OutputKind = iota
	Quote
	Heartbeat
	Ack
	DecodeError
	ResetSignal
)

// Output is the result of decoding one IncomingFrame.
type Output struct {
	Kind OutputKind

	// Populated when Kind == Quote. VenueSymbol is the native symbol
	// string exactly as it appeared on the wire (adapters don't hold a
	// registry reference, so resolution to a SymbolId happens one layer
	// up, in the supervisor that owns the shared registry).
	VenueSymbol string
	Record      quote.QuoteRecord

	// Populated when Kind == DecodeError.
	Err error
}

// KeepaliveKind tags which keepalive discipline a venue requires.
type KeepaliveKind int

const (
	KeepaliveNone KeepaliveKind = iota
	KeepaliveClientPing
	KeepaliveRespondToServerPing
	KeepaliveApplicationLevel
)

// KeepaliveSpec describes how a supervisor should keep one feed alive.
type KeepaliveSpec struct {
	Kind KeepaliveKind

	// Interval is the client ping interval for KeepaliveClientPing, or
	// the venue's documented server-ping interval for
	// KeepaliveRespondToServerPing (the supervisor then watchdogs on
	// 3*Interval of read silence).
	Interval time.Duration

	// BuildPing constructs the ping frame for KeepaliveClientPing. Nil
	// for the other kinds.
	BuildPing func() OutgoingFrame

	// IsPongFor reports whether frame acknowledges a prior ping. The
	// supervisor does not consult it: a KeepaliveClientPing feed only
	// sends pings, counts no missed pongs and has no read watchdog, so a
	// dead peer is noticed only when the transport itself errors.
	IsPongFor func(frame IncomingFrame) bool
}

// Adapter is the per-(exchange, instrument-type) capability set spec
// §4.3 requires. One adapter instance handles exactly one venue family;
// instances are not shared across instrument types even for venues that
// offer both (binance spot and binance perp are distinct Adapter values).
type Adapter interface {
	// Exchange is the canonical lowercase exchange name (spec §6).
	Exchange() string

	// InstrumentType is Spot or Perp.
	InstrumentType() quote.InstrumentType

	// Endpoint is the secure WebSocket URL to dial.
	Endpoint() string

	// SubscribePayload builds the frames to send immediately after the
	// transport opens, for the given venue-native symbol strings.
	// Exchanges that cap subscription batch size chunk internally.
	SubscribePayload(venueSymbols []string) ([]OutgoingFrame, error)

	// Decode turns one incoming frame into a tagged Output.
	Decode(frame IncomingFrame) Output

	// KeepalivePolicy reports this venue's keepalive discipline.
	KeepalivePolicy() KeepaliveSpec

	// HasSubscribeAck reports whether Subscribing waits for an explicit
	// Ack output (true) or transitions to Streaming immediately upon
	// successful frame write (false).
	HasSubscribeAck() bool

	// VenueSymbol renders the canonical "<BASE>-<QUOTE>" pair in this
	// venue's native symbol format.
	VenueSymbol(base, quote_ string) string

	// CanonicalFromVenue is the inverse of VenueSymbol: given a native
	// symbol string observed on the wire, recover (base, quote).
	CanonicalFromVenue(venueSymbol string) (base, quote_ string, ok bool)
}
