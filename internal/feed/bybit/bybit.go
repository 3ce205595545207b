// Package bybit adapts Bybit's v5 public tickers stream (spot and
// linear USDT perpetual) to feed.Adapter. Grounded on the teacher's
// internal/connector/bybit package: same topic naming and client-ping
// discipline, narrowed to the tickers topic (which already carries
// bid1Price/ask1Price) instead of maintaining a depth-N order book.
package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"mdengine/internal/feed"
	"mdengine/internal/quote"
)

const (
	spotWsURL = "wss://stream.bybit.com/v5/public/spot"
	perpWsURL = "wss://stream.bybit.com/v5/public/linear"
)

var quoteAssets = []string{"USDT", "USDC", "DAI"}

// topOfBook is the last known bid/ask/size for a symbol, merged field by
// field as delta ticker updates arrive.
type topOfBook struct {
	bid, ask, bidQty, askQty float64
}

// Adapter implements feed.Adapter for one Bybit category (spot or linear
// perpetual). It is stateful: the tickers topic sends a full snapshot on
// subscribe but only the changed fields on every subsequent delta, so a
// per-symbol cache of the last known top of book is required to re-derive
// a complete record from a partial delta.
type Adapter struct {
	itype quote.InstrumentType

	mu    sync.Mutex
	cache map[string]topOfBook
}

func NewSpot() *Adapter { return &Adapter{itype: quote.Spot, cache: make(map[string]topOfBook)} }
func NewPerp() *Adapter { return &Adapter{itype: quote.Perp, cache: make(map[string]topOfBook)} }

func (a *Adapter) Exchange() string { return "bybit" }

func (a *Adapter) InstrumentType() quote.InstrumentType { return a.itype }

func (a *Adapter) Endpoint() string {
	if a.itype == quote.Perp {
		return perpWsURL
	}
	return spotWsURL
}

func (a *Adapter) SubscribePayload(venueSymbols []string) ([]feed.OutgoingFrame, error) {
	if len(venueSymbols) == 0 {
		return nil, fmt.Errorf("bybit: no symbols to subscribe")
	}

	args := make([]string, len(venueSymbols))
	for i, s := range venueSymbols {
		args[i] = "tickers." + s
	}

	msg := map[string]any{"op": "subscribe", "args": args}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return []feed.OutgoingFrame{{Text: true, Payload: payload}}, nil
}

// HasSubscribeAck reports true: Bybit replies {"success":true,"op":"subscribe",...}.
func (a *Adapter) HasSubscribeAck() bool { return true }

type tickerEvent struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  struct {
		Symbol    string `json:"symbol"`
		Bid1Price string `json:"bid1Price"`
		Bid1Size  string `json:"bid1Size"`
		Ask1Price string `json:"ask1Price"`
		Ask1Size  string `json:"ask1Size"`
	} `json:"data"`
}

type opReply struct {
	Success bool   `json:"success"`
	Op      string `json:"op"`
}

func (a *Adapter) Decode(frame feed.IncomingFrame) feed.Output {
	if !frame.Text {
		return feed.Output{Kind: feed.Ignored}
	}

	var reply opReply
	if err := json.Unmarshal(frame.Payload, &reply); err == nil && reply.Op != "" {
		if reply.Op == "subscribe" {
			return feed.Output{Kind: feed.Ack}
		}
		if reply.Op == "pong" || reply.Op == "ping" {
			return feed.Output{Kind: feed.Heartbeat}
		}
	}

	var ev tickerEvent
	if err := json.Unmarshal(frame.Payload, &ev); err != nil {
		return feed.Output{Kind: feed.DecodeError, Err: err}
	}
	if !strings.HasPrefix(ev.Topic, "tickers.") || ev.Data.Symbol == "" {
		return feed.Output{Kind: feed.Ignored}
	}

	parsed, err := parseTopOfBook(ev.Data.Bid1Price, ev.Data.Ask1Price, ev.Data.Bid1Size, ev.Data.Ask1Size)
	if err != nil {
		return feed.Output{Kind: feed.DecodeError, Err: fmt.Errorf("bybit: malformed ticker payload for %s: %w", ev.Data.Symbol, err)}
	}

	a.mu.Lock()
	top, known := a.cache[ev.Data.Symbol]
	top = top.merge(parsed)
	a.cache[ev.Data.Symbol] = top
	a.mu.Unlock()

	// A delta arriving before any snapshot has no cached side to fall
	// back on; without both sides the record isn't a usable BBO yet.
	if !known && (ev.Data.Bid1Price == "" || ev.Data.Ask1Price == "") {
		return feed.Output{Kind: feed.Ignored}
	}

	return feed.Output{
		Kind:        feed.Quote,
		VenueSymbol: ev.Data.Symbol,
		Record: quote.QuoteRecord{
			BidPrice:     top.bid,
			AskPrice:     top.ask,
			BidQty:       top.bidQty,
			AskQty:       top.askQty,
			ReceivedTsNs: frame.ArrivalTsNs,
		},
	}
}

// parsedField holds an optionally-present parsed value: present=false
// means the source string was empty (field unchanged in a delta).
type parsedField struct {
	value   float64
	present bool
}

// topOfBookDelta is a ticker update with each side's presence tracked
// independently, since a delta frame only carries the fields that changed.
type topOfBookDelta struct {
	bid, ask, bidQty, askQty parsedField
}

func parseTopOfBook(bidS, askS, bidQtyS, askQtyS string) (topOfBookDelta, error) {
	var out topOfBookDelta
	var err error
	if out.bid, err = parseOptionalFloat(bidS); err != nil {
		return out, err
	}
	if out.ask, err = parseOptionalFloat(askS); err != nil {
		return out, err
	}
	if out.bidQty, err = parseOptionalFloat(bidQtyS); err != nil {
		return out, err
	}
	if out.askQty, err = parseOptionalFloat(askQtyS); err != nil {
		return out, err
	}
	return out, nil
}

func parseOptionalFloat(s string) (parsedField, error) {
	if s == "" {
		return parsedField{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return parsedField{}, err
	}
	return parsedField{value: v, present: true}, nil
}

// merge overlays any present fields from next onto t, leaving fields
// absent in next (an unchanged delta field) at their prior cached value.
func (t topOfBook) merge(next topOfBookDelta) topOfBook {
	if next.bid.present {
		t.bid = next.bid.value
	}
	if next.ask.present {
		t.ask = next.ask.value
	}
	if next.bidQty.present {
		t.bidQty = next.bidQty.value
	}
	if next.askQty.present {
		t.askQty = next.askQty.value
	}
	return t
}

// KeepalivePolicy mirrors the teacher's pingLoop: a {"op":"ping"} client
// frame every 20s.
func (a *Adapter) KeepalivePolicy() feed.KeepaliveSpec {
	return feed.KeepaliveSpec{
		Kind:     feed.KeepaliveClientPing,
		Interval: 20 * time.Second,
		BuildPing: func() feed.OutgoingFrame {
			payload, _ := json.Marshal(map[string]string{"op": "ping"})
			return feed.OutgoingFrame{Text: true, Payload: payload}
		},
	}
}

func (a *Adapter) VenueSymbol(base, quote_ string) string {
	return feed.JoinSymbol(base, quote_, "")
}

func (a *Adapter) CanonicalFromVenue(venueSymbol string) (base, quote_ string, ok bool) {
	return feed.SplitSymbolBySuffix(venueSymbol, quoteAssets)
}
