package binance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdengine/internal/feed"
	"mdengine/internal/quote"
)

func TestNewSpotAndPerpEndpoints(t *testing.T) {
	spot := NewSpot()
	assert.Equal(t, quote.Spot, spot.InstrumentType())
	assert.Equal(t, "wss://stream.binance.com:9443/stream", spot.Endpoint())

	perp := NewPerp()
	assert.Equal(t, quote.Perp, perp.InstrumentType())
	assert.Equal(t, "wss://fstream.binance.com/stream", perp.Endpoint())

	assert.Equal(t, "binance", spot.Exchange())
}

func TestSubscribePayloadChunksLargeSymbolLists(t *testing.T) {
	a := NewSpot()
	symbols := make([]string, 250)
	for i := range symbols {
		symbols[i] = "SYM"
	}

	frames, err := a.SubscribePayload(symbols)
	require.NoError(t, err)
	// 250 symbols at 100/frame must produce 3 frames (100, 100, 50).
	require.Len(t, frames, 3)

	var first struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int      `json:"id"`
	}
	require.NoError(t, json.Unmarshal(frames[0].Payload, &first))
	assert.Equal(t, "SUBSCRIBE", first.Method)
	assert.Len(t, first.Params, 100)
	assert.Equal(t, "sym@bookTicker", first.Params[0])
	assert.Equal(t, 1, first.ID)
}

func TestSubscribePayloadRejectsEmptyInput(t *testing.T) {
	_, err := NewSpot().SubscribePayload(nil)
	assert.Error(t, err)
}

func TestHasSubscribeAck(t *testing.T) {
	assert.True(t, NewSpot().HasSubscribeAck())
}

func TestDecodeAck(t *testing.T) {
	out := NewSpot().Decode(feed.IncomingFrame{Text: true, Payload: []byte(`{"result":null,"id":1}`)})
	assert.Equal(t, feed.Ack, out.Kind)
}

func TestDecodeBookTickerEvent(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"100.5","B":"1.2","a":"100.6","A":"3.4"}}`)
	out := NewSpot().Decode(feed.IncomingFrame{Text: true, Payload: payload, ArrivalTsNs: 42})

	require.Equal(t, feed.Quote, out.Kind)
	assert.Equal(t, "BTCUSDT", out.VenueSymbol)
	assert.Equal(t, 100.5, out.Record.BidPrice)
	assert.Equal(t, 100.6, out.Record.AskPrice)
	assert.Equal(t, 1.2, out.Record.BidQty)
	assert.Equal(t, 3.4, out.Record.AskQty)
	assert.Equal(t, uint64(42), out.Record.ReceivedTsNs)
}

func TestDecodeMalformedPriceIsDecodeError(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"not-a-number","B":"1","a":"2","A":"1"}}`)
	out := NewSpot().Decode(feed.IncomingFrame{Text: true, Payload: payload})
	assert.Equal(t, feed.DecodeError, out.Kind)
	assert.Error(t, out.Err)
}

func TestDecodeBinaryFrameIgnored(t *testing.T) {
	out := NewSpot().Decode(feed.IncomingFrame{Text: false, Payload: []byte{0x01}})
	assert.Equal(t, feed.Ignored, out.Kind)
}

func TestKeepalivePolicy(t *testing.T) {
	policy := NewSpot().KeepalivePolicy()
	assert.Equal(t, feed.KeepaliveRespondToServerPing, policy.Kind)
	assert.Equal(t, int64(60_000_000_000), policy.Interval.Nanoseconds())
}

func TestVenueSymbolAndCanonicalFromVenueRoundTrip(t *testing.T) {
	a := NewSpot()
	venue := a.VenueSymbol("btc", "usdt")
	assert.Equal(t, "BTCUSDT", venue)

	base, q, ok := a.CanonicalFromVenue(venue)
	require.True(t, ok)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", q)
}

func TestCanonicalFromVenueUnknownQuote(t *testing.T) {
	_, _, ok := NewSpot().CanonicalFromVenue("BTCJPY")
	assert.False(t, ok)
}
