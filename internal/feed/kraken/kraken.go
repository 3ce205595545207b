// Package kraken adapts Kraken's v2 WebSocket ticker channel to
// feed.Adapter, written fresh from Kraken's public API docs in the same
// gorilla/websocket + JSON-subscribe idiom as the pack's other feeds.
package kraken

import (
	"encoding/json"
	"fmt"

	"mdengine/internal/feed"
	"mdengine/internal/quote"
)

const wsURL = "wss://ws.kraken.com/v2"

// Adapter implements feed.Adapter for Kraken spot markets. Kraken's
// perpetual futures run on an entirely separate venue (futures.kraken.com)
// not in scope here.
type Adapter struct{}

func NewSpot() *Adapter { return &Adapter{} }

func (a *Adapter) Exchange() string { return "kraken" }

func (a *Adapter) InstrumentType() quote.InstrumentType { return quote.Spot }

func (a *Adapter) Endpoint() string { return wsURL }

func (a *Adapter) SubscribePayload(venueSymbols []string) ([]feed.OutgoingFrame, error) {
	if len(venueSymbols) == 0 {
		return nil, fmt.Errorf("kraken: no symbols to subscribe")
	}

	msg := struct {
		Method string `json:"method"`
		Params struct {
			Channel string   `json:"channel"`
			Symbol  []string `json:"symbol"`
		} `json:"params"`
	}{Method: "subscribe"}
	msg.Params.Channel = "ticker"
	msg.Params.Symbol = venueSymbols

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return []feed.OutgoingFrame{{Text: true, Payload: payload}}, nil
}

// HasSubscribeAck reports true: Kraken replies with a
// {"method":"subscribe","success":true,...} frame per symbol.
func (a *Adapter) HasSubscribeAck() bool { return true }

type subscribeReply struct {
	Method  string `json:"method"`
	Success *bool  `json:"success"`
}

type tickerFrame struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Data    []struct {
		Symbol string  `json:"symbol"`
		Bid    float64 `json:"bid"`
		BidQty float64 `json:"bid_qty"`
		Ask    float64 `json:"ask"`
		AskQty float64 `json:"ask_qty"`
	} `json:"data"`
}

func (a *Adapter) Decode(frame feed.IncomingFrame) feed.Output {
	if !frame.Text {
		return feed.Output{Kind: feed.Ignored}
	}

	var reply subscribeReply
	if err := json.Unmarshal(frame.Payload, &reply); err == nil && reply.Method == "subscribe" && reply.Success != nil {
		if !*reply.Success {
			return feed.Output{Kind: feed.DecodeError, Err: fmt.Errorf("kraken: subscribe rejected: %s", frame.Payload)}
		}
		return feed.Output{Kind: feed.Ack}
	}

	var tick tickerFrame
	if err := json.Unmarshal(frame.Payload, &tick); err != nil {
		return feed.Output{Kind: feed.DecodeError, Err: err}
	}
	if tick.Channel != "ticker" || len(tick.Data) == 0 {
		return feed.Output{Kind: feed.Ignored}
	}

	d := tick.Data[0]
	if d.Symbol == "" || d.Bid <= 0 || d.Ask <= 0 {
		return feed.Output{Kind: feed.Ignored}
	}

	return feed.Output{
		Kind:        feed.Quote,
		VenueSymbol: d.Symbol,
		Record: quote.QuoteRecord{
			BidPrice:     d.Bid,
			AskPrice:     d.Ask,
			BidQty:       d.BidQty,
			AskQty:       d.AskQty,
			ReceivedTsNs: frame.ArrivalTsNs,
		},
	}
}

// KeepalivePolicy: Kraken's v2 feed sends a "heartbeat" channel message
// roughly every second on otherwise idle connections; ordinary ticker
// traffic plus that heartbeat is frequent enough that the supervisor
// doesn't need a dedicated client ping.
func (a *Adapter) KeepalivePolicy() feed.KeepaliveSpec {
	return feed.KeepaliveSpec{Kind: feed.KeepaliveNone}
}

func (a *Adapter) VenueSymbol(base, quote_ string) string {
	return feed.JoinSymbol(base, quote_, "/")
}

func (a *Adapter) CanonicalFromVenue(venueSymbol string) (base, quote_ string, ok bool) {
	return feed.SplitSymbolBySeparator(venueSymbol, "/")
}
