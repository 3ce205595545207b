package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteRecordValid(t *testing.T) {
	cases := []struct {
		name string
		rec  QuoteRecord
		want bool
	}{
		{"normal book", QuoteRecord{BidPrice: 100, AskPrice: 101, BidQty: 1, AskQty: 2}, true},
		{"crossed book", QuoteRecord{BidPrice: 101, AskPrice: 100, BidQty: 1, AskQty: 1}, false},
		{"locked book allowed", QuoteRecord{BidPrice: 100, AskPrice: 100, BidQty: 1, AskQty: 1}, true},
		{"zero bid", QuoteRecord{BidPrice: 0, AskPrice: 100, BidQty: 1, AskQty: 1}, false},
		{"negative ask", QuoteRecord{BidPrice: 1, AskPrice: -1, BidQty: 1, AskQty: 1}, false},
		{"negative bid qty", QuoteRecord{BidPrice: 1, AskPrice: 2, BidQty: -1, AskQty: 1}, false},
		{"zero qty allowed", QuoteRecord{BidPrice: 1, AskPrice: 2, BidQty: 0, AskQty: 0}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.rec.Valid())
		})
	}
}

func TestQuoteRecordMidquoteAndSpread(t *testing.T) {
	rec := QuoteRecord{BidPrice: 100, AskPrice: 102}
	assert.Equal(t, 101.0, rec.Midquote())
	assert.Equal(t, 2.0, rec.Spread())
}

func TestInstrumentTypeString(t *testing.T) {
	assert.Equal(t, "SPOT", Spot.String())
	assert.Equal(t, "PERP", Perp.String())
	assert.Equal(t, "UNKNOWN", InstrumentType(99).String())
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "SPOT-BTC-USDT", Canonical(Spot, "BTC", "USDT"))
	assert.Equal(t, "PERP-ETH-USD", Canonical(Perp, "ETH", "USD"))
}
