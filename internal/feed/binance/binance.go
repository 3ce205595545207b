// Package binance adapts Binance's spot and USDT-margined futures
// bookTicker streams to the feed.Adapter interface. Grounded on the
// teacher's internal/connector/binance package: same combined-stream
// URL shape and gorilla/websocket dialer, narrowed from full depth
// updates to the top-of-book bookTicker stream since this engine only
// needs best bid/ask, not a maintained order book.
package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mdengine/internal/feed"
	"mdengine/internal/quote"
)

const (
	spotWsBase = "wss://stream.binance.com:9443"
	perpWsBase = "wss://fstream.binance.com"
)

var quoteAssets = []string{"USDT", "USDC", "BUSD", "TUSD", "FDUSD", "USD"}

// Adapter implements feed.Adapter for one Binance market (spot or
// USDT-margined perpetual futures). The two markets share everything
// except the base URL and a handful of field names in the bookTicker
// payload.
type Adapter struct {
	itype quote.InstrumentType
}

// NewSpot returns the binance spot adapter.
func NewSpot() *Adapter { return &Adapter{itype: quote.Spot} }

// NewPerp returns the binance USDT-margined perpetual futures adapter.
func NewPerp() *Adapter { return &Adapter{itype: quote.Perp} }

func (a *Adapter) Exchange() string { return "binance" }

func (a *Adapter) InstrumentType() quote.InstrumentType { return a.itype }

func (a *Adapter) Endpoint() string {
	if a.itype == quote.Perp {
		return perpWsBase + "/stream"
	}
	return spotWsBase + "/stream"
}

// SubscribePayload sends SUBSCRIBE frames naming the bookTicker streams,
// at most maxStreamsPerRequest per frame, matching Binance's documented
// subscribe message for the /stream endpoint (as opposed to the
// URL-query stream list the teacher uses for its initial connection).
// maxStreamsPerRequest caps how many streams one SUBSCRIBE frame names,
// per Binance's documented request limits; larger symbol lists are
// split into multiple frames.
const maxStreamsPerRequest = 100

func (a *Adapter) SubscribePayload(venueSymbols []string) ([]feed.OutgoingFrame, error) {
	if len(venueSymbols) == 0 {
		return nil, fmt.Errorf("binance: no symbols to subscribe")
	}

	params := make([]string, len(venueSymbols))
	for i, s := range venueSymbols {
		params[i] = strings.ToLower(s) + "@bookTicker"
	}

	chunks := feed.ChunkStrings(params, maxStreamsPerRequest)
	frames := make([]feed.OutgoingFrame, 0, len(chunks))
	for i, chunk := range chunks {
		msg := struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
			ID     int      `json:"id"`
		}{
			Method: "SUBSCRIBE",
			Params: chunk,
			ID:     i + 1,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		frames = append(frames, feed.OutgoingFrame{Text: true, Payload: payload})
	}
	return frames, nil
}

// HasSubscribeAck reports true: Binance replies to a SUBSCRIBE request
// with {"result":null,"id":1}, which Decode recognizes as feed.Ack.
func (a *Adapter) HasSubscribeAck() bool { return true }

type bookTickerEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol   string `json:"s"`
		BidPrice string `json:"b"`
		BidQty   string `json:"B"`
		AskPrice string `json:"a"`
		AskQty   string `json:"A"`
	} `json:"data"`
}

type subscribeAck struct {
	Result json.RawMessage `json:"result"`
	ID     int             `json:"id"`
}

func (a *Adapter) Decode(frame feed.IncomingFrame) feed.Output {
	if !frame.Text {
		return feed.Output{Kind: feed.Ignored}
	}

	var ack subscribeAck
	if err := json.Unmarshal(frame.Payload, &ack); err == nil && ack.ID != 0 {
		return feed.Output{Kind: feed.Ack}
	}

	var ev bookTickerEvent
	if err := json.Unmarshal(frame.Payload, &ev); err != nil {
		return feed.Output{Kind: feed.DecodeError, Err: err}
	}
	if ev.Data.Symbol == "" {
		return feed.Output{Kind: feed.Ignored}
	}

	bid, err1 := strconv.ParseFloat(ev.Data.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(ev.Data.AskPrice, 64)
	bidQty, err3 := strconv.ParseFloat(ev.Data.BidQty, 64)
	askQty, err4 := strconv.ParseFloat(ev.Data.AskQty, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return feed.Output{Kind: feed.DecodeError, Err: fmt.Errorf("binance: malformed bookTicker payload for %s", ev.Data.Symbol)}
	}

	return feed.Output{
		Kind:        feed.Quote,
		VenueSymbol: ev.Data.Symbol,
		Record: quote.QuoteRecord{
			BidPrice:     bid,
			AskPrice:     ask,
			BidQty:       bidQty,
			AskQty:       askQty,
			ReceivedTsNs: frame.ArrivalTsNs,
		},
	}
}

// KeepalivePolicy reports Binance's server-driven ping discipline: the
// server pings every 20s (spot) / 3min (futures) and expects an
// unsolicited pong, which gorilla/websocket's default PingHandler
// already answers. The supervisor only needs to watchdog read silence.
func (a *Adapter) KeepalivePolicy() feed.KeepaliveSpec {
	return feed.KeepaliveSpec{Kind: feed.KeepaliveRespondToServerPing, Interval: 60 * time.Second}
}

func (a *Adapter) VenueSymbol(base, quote_ string) string {
	return feed.JoinSymbol(base, quote_, "")
}

func (a *Adapter) CanonicalFromVenue(venueSymbol string) (base, quote_ string, ok bool) {
	return feed.SplitSymbolBySuffix(venueSymbol, quoteAssets)
}
