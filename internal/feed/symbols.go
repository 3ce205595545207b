package feed

import "strings"

// Shared separator/casing helpers for adapters' VenueSymbol /
// CanonicalFromVenue implementations. Per spec §4.3, adapters share only
// this — decode and subscribe logic stay venue-specific.

// JoinSymbol upper-cases base/quote and joins them with sep (sep may be
// the empty string for a no-separator venue format like BTCUSDT).
func JoinSymbol(base, quote_ , sep string) string {
	return strings.ToUpper(base) + sep + strings.ToUpper(quote_)
}

// SplitSymbolBySuffix recovers (base, quote) from a no-separator venue
// symbol by matching against a list of known quote currencies, longest
// first. Returns ok=false if none match.
func SplitSymbolBySuffix(symbol string, quotes []string) (base, quote_ string, ok bool) {
	upper := strings.ToUpper(symbol)
	for _, q := range quotes {
		if len(upper) > len(q) && strings.HasSuffix(upper, q) && len(q) > len(quote_) {
			base, quote_, ok = upper[:len(upper)-len(q)], q, true
		}
	}
	return base, quote_, ok
}

// SplitSymbolBySeparator recovers (base, quote) from a venue symbol that
// uses sep as a separator (e.g. "BTC-USDT", "BTC_USDT").
func SplitSymbolBySeparator(symbol, sep string) (base, quote_ string, ok bool) {
	parts := strings.SplitN(strings.ToUpper(symbol), sep, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
