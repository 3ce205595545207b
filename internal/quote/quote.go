// Package quote holds the data types shared by the registry, the store,
// and every feed adapter: the normalized BBO record and the keys used
// to address it.
package quote

import "fmt"

// SymbolId is a dense, process-lifetime-stable numeric handle for a
// canonical symbol. IDs are assigned in registration order starting at 0
// and are never renumbered or reused.
type SymbolId uint32

// InstrumentType partitions the registry into spot and perpetual-futures
// namespaces; the same base/quote pair registers to a different SymbolId
// in each.
type InstrumentType int

const (
	Spot InstrumentType = iota
	Perp
)

// String renders the instrument type the way it appears in a canonical
// symbol string ("SPOT" / "PERP").
func (t InstrumentType) String() string {
	switch t {
	case Spot:
		return "SPOT"
	case Perp:
		return "PERP"
	default:
		return "UNKNOWN"
	}
}

// Canonical formats the registry's printable form: "<TYPE>-<BASE>-<QUOTE>".
func Canonical(t InstrumentType, base, quote string) string {
	return fmt.Sprintf("%s-%s-%s", t, base, quote)
}

// VenueKey addresses one (exchange, symbol) slot in the Quote Store.
type VenueKey struct {
	Exchange string
	SymbolID SymbolId
}

// QuoteRecord is the normalized top-of-book snapshot written by every
// feed adapter. ReceivedTsNs is the host's wall-clock receive time in
// Unix nanoseconds, not the venue's own timestamp (venue clocks skew and
// are sometimes absent). It is not monotonic: a step of the host clock
// moves it.
type QuoteRecord struct {
	BidPrice     float64
	AskPrice     float64
	BidQty       float64
	AskQty       float64
	ReceivedTsNs uint64
}

// Valid reports whether rec satisfies the store's write invariants.
// Violating records are dropped rather than stored.
func (rec QuoteRecord) Valid() bool {
	return rec.BidPrice > 0 &&
		rec.AskPrice > 0 &&
		rec.BidPrice <= rec.AskPrice &&
		rec.BidQty >= 0 &&
		rec.AskQty >= 0
}

// Midquote returns the mean of bid and ask.
func (rec QuoteRecord) Midquote() float64 {
	return (rec.BidPrice + rec.AskPrice) / 2
}

// Spread returns ask minus bid.
func (rec QuoteRecord) Spread() float64 {
	return rec.AskPrice - rec.BidPrice
}
