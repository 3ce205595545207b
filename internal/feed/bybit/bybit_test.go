package bybit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdengine/internal/feed"
	"mdengine/internal/quote"
)

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "wss://stream.bybit.com/v5/public/spot", NewSpot().Endpoint())
	assert.Equal(t, "wss://stream.bybit.com/v5/public/linear", NewPerp().Endpoint())
	assert.Equal(t, quote.Perp, NewPerp().InstrumentType())
}

func TestSubscribePayloadTopicNaming(t *testing.T) {
	frames, err := NewSpot().SubscribePayload([]string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	var msg struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}
	require.NoError(t, json.Unmarshal(frames[0].Payload, &msg))
	assert.Equal(t, "subscribe", msg.Op)
	assert.Equal(t, []string{"tickers.BTCUSDT", "tickers.ETHUSDT"}, msg.Args)
}

func TestDecodeSubscribeAck(t *testing.T) {
	out := NewSpot().Decode(feed.IncomingFrame{Text: true, Payload: []byte(`{"success":true,"op":"subscribe"}`)})
	assert.Equal(t, feed.Ack, out.Kind)
}

func TestDecodePongIsHeartbeat(t *testing.T) {
	out := NewSpot().Decode(feed.IncomingFrame{Text: true, Payload: []byte(`{"success":true,"op":"pong"}`)})
	assert.Equal(t, feed.Heartbeat, out.Kind)
}

func TestDecodeTickerSnapshot(t *testing.T) {
	payload := []byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","bid1Price":"100.1","bid1Size":"1","ask1Price":"100.2","ask1Size":"2"}}`)
	out := NewSpot().Decode(feed.IncomingFrame{Text: true, Payload: payload, ArrivalTsNs: 7})

	require.Equal(t, feed.Quote, out.Kind)
	assert.Equal(t, "BTCUSDT", out.VenueSymbol)
	assert.Equal(t, 100.1, out.Record.BidPrice)
	assert.Equal(t, 100.2, out.Record.AskPrice)
}

func TestDecodeDeltaWithMissingSideIsIgnored(t *testing.T) {
	payload := []byte(`{"topic":"tickers.BTCUSDT","type":"delta","data":{"symbol":"BTCUSDT","bid1Size":"5"}}`)
	out := NewSpot().Decode(feed.IncomingFrame{Text: true, Payload: payload})
	assert.Equal(t, feed.Ignored, out.Kind)
}

func TestDecodeDeltaAfterSnapshotMergesCachedSide(t *testing.T) {
	a := NewSpot()

	snapshot := []byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","bid1Price":"100.1","bid1Size":"1","ask1Price":"100.2","ask1Size":"2"}}`)
	out := a.Decode(feed.IncomingFrame{Text: true, Payload: snapshot})
	require.Equal(t, feed.Quote, out.Kind)

	// A delta only carries the changed field (bid size); the cached ask
	// side and bid price must still produce a complete record.
	delta := []byte(`{"topic":"tickers.BTCUSDT","type":"delta","data":{"symbol":"BTCUSDT","bid1Size":"9"}}`)
	out = a.Decode(feed.IncomingFrame{Text: true, Payload: delta})

	require.Equal(t, feed.Quote, out.Kind)
	assert.Equal(t, 100.1, out.Record.BidPrice)
	assert.Equal(t, 9.0, out.Record.BidQty)
	assert.Equal(t, 100.2, out.Record.AskPrice)
	assert.Equal(t, 2.0, out.Record.AskQty)
}

func TestKeepalivePolicyBuildsPingFrame(t *testing.T) {
	policy := NewSpot().KeepalivePolicy()
	assert.Equal(t, feed.KeepaliveClientPing, policy.Kind)
	require.NotNil(t, policy.BuildPing)

	frame := policy.BuildPing()
	assert.JSONEq(t, `{"op":"ping"}`, string(frame.Payload))
}

func TestVenueSymbolNoSeparator(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NewSpot().VenueSymbol("btc", "usdt"))

	base, q, ok := NewSpot().CanonicalFromVenue("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", q)
}
