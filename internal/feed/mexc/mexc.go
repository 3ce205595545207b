// Package mexc adapts MEXC's spot and USDT-margined futures (contract)
// push streams to feed.Adapter. The teacher's internal/connector/mexc
// package hides wire parsing behind an opaque Client abstraction, so
// this adapter is grounded on MEXC's public channel-naming conventions
// instead, in the same gorilla/websocket + JSON-subscribe idiom the
// teacher uses for binance and bybit.
package mexc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"mdengine/internal/feed"
	"mdengine/internal/quote"
)

const (
	spotWsURL = "wss://wbs-api.mexc.com/ws"
	perpWsURL = "wss://contract.mexc.com/ws"
)

var quoteAssets = []string{"USDT", "USDC"}

// Adapter implements feed.Adapter for MEXC spot or USDT-margined
// futures. The two markets use different channel names and payload
// shapes, switched on itype.
type Adapter struct {
	itype quote.InstrumentType
}

func NewSpot() *Adapter { return &Adapter{itype: quote.Spot} }
func NewPerp() *Adapter { return &Adapter{itype: quote.Perp} }

func (a *Adapter) Exchange() string { return "mexc" }

func (a *Adapter) InstrumentType() quote.InstrumentType { return a.itype }

func (a *Adapter) Endpoint() string {
	if a.itype == quote.Perp {
		return perpWsURL
	}
	return spotWsURL
}

func (a *Adapter) SubscribePayload(venueSymbols []string) ([]feed.OutgoingFrame, error) {
	if len(venueSymbols) == 0 {
		return nil, fmt.Errorf("mexc: no symbols to subscribe")
	}

	var frames []feed.OutgoingFrame
	if a.itype == quote.Perp {
		for _, s := range venueSymbols {
			msg := map[string]any{
				"method": "sub.ticker",
				"param":  map[string]string{"symbol": s},
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				return nil, err
			}
			frames = append(frames, feed.OutgoingFrame{Text: true, Payload: payload})
		}
		return frames, nil
	}

	params := make([]string, len(venueSymbols))
	for i, s := range venueSymbols {
		params[i] = "spot@public.bookTicker.v3.api@" + s
	}
	msg := map[string]any{"method": "SUBSCRIPTION", "params": params}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return []feed.OutgoingFrame{{Text: true, Payload: payload}}, nil
}

// HasSubscribeAck reports false: both MEXC markets start streaming
// ticker pushes without a distinguishable per-channel ack frame.
func (a *Adapter) HasSubscribeAck() bool { return false }

type spotBookTickerPush struct {
	Channel string `json:"c"`
	Symbol  string `json:"s"`
	Data    struct {
		BidPrice string `json:"b"`
		BidQty   string `json:"B"`
		AskPrice string `json:"a"`
		AskQty   string `json:"A"`
	} `json:"d"`
}

type perpTickerPush struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Data    struct {
		Bid1 float64 `json:"bid1"`
		Ask1 float64 `json:"ask1"`
	} `json:"data"`
}

func (a *Adapter) Decode(frame feed.IncomingFrame) feed.Output {
	if !frame.Text {
		return feed.Output{Kind: feed.Ignored}
	}

	if a.itype == quote.Perp {
		var push perpTickerPush
		if err := json.Unmarshal(frame.Payload, &push); err != nil {
			return feed.Output{Kind: feed.DecodeError, Err: err}
		}
		if push.Channel != "push.ticker" || push.Symbol == "" {
			return feed.Output{Kind: feed.Ignored}
		}
		if push.Data.Bid1 <= 0 || push.Data.Ask1 <= 0 {
			return feed.Output{Kind: feed.Ignored}
		}
		return feed.Output{
			Kind:        feed.Quote,
			VenueSymbol: push.Symbol,
			Record: quote.QuoteRecord{
				BidPrice:     push.Data.Bid1,
				AskPrice:     push.Data.Ask1,
				ReceivedTsNs: frame.ArrivalTsNs,
			},
		}
	}

	var push spotBookTickerPush
	if err := json.Unmarshal(frame.Payload, &push); err != nil {
		return feed.Output{Kind: feed.DecodeError, Err: err}
	}
	if push.Symbol == "" {
		return feed.Output{Kind: feed.Ignored}
	}

	bid, err1 := strconv.ParseFloat(push.Data.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(push.Data.AskPrice, 64)
	bidQty, err3 := strconv.ParseFloat(push.Data.BidQty, 64)
	askQty, err4 := strconv.ParseFloat(push.Data.AskQty, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return feed.Output{Kind: feed.DecodeError, Err: fmt.Errorf("mexc: malformed bookTicker payload for %s", push.Symbol)}
	}

	return feed.Output{
		Kind:        feed.Quote,
		VenueSymbol: push.Symbol,
		Record: quote.QuoteRecord{
			BidPrice:     bid,
			AskPrice:     ask,
			BidQty:       bidQty,
			AskQty:       askQty,
			ReceivedTsNs: frame.ArrivalTsNs,
		},
	}
}

// KeepalivePolicy: both MEXC markets require a client-originated ping
// every ~20s or the connection is dropped.
func (a *Adapter) KeepalivePolicy() feed.KeepaliveSpec {
	if a.itype == quote.Perp {
		return feed.KeepaliveSpec{
			Kind:     feed.KeepaliveClientPing,
			Interval: 20 * time.Second,
			BuildPing: func() feed.OutgoingFrame {
				payload, _ := json.Marshal(map[string]string{"method": "ping"})
				return feed.OutgoingFrame{Text: true, Payload: payload}
			},
		}
	}
	return feed.KeepaliveSpec{
		Kind:     feed.KeepaliveClientPing,
		Interval: 20 * time.Second,
		BuildPing: func() feed.OutgoingFrame {
			payload, _ := json.Marshal(map[string]string{"method": "PING"})
			return feed.OutgoingFrame{Text: true, Payload: payload}
		},
	}
}

func (a *Adapter) VenueSymbol(base, quote_ string) string {
	if a.itype == quote.Perp {
		return feed.JoinSymbol(base, quote_, "_")
	}
	return feed.JoinSymbol(base, quote_, "")
}

func (a *Adapter) CanonicalFromVenue(venueSymbol string) (base, quote_ string, ok bool) {
	if a.itype == quote.Perp {
		return feed.SplitSymbolBySeparator(venueSymbol, "_")
	}
	return feed.SplitSymbolBySuffix(venueSymbol, quoteAssets)
}
