// Package lighter adapts Lighter's (zklighter.elliot.ai) perpetual
// market WebSocket stream to feed.Adapter. No pack example nor
// original_source material covers Lighter's wire format; this adapter
// follows the same subscribe/push JSON shape as the pack's other
// venues and is the one place in this module where the wire schema is
// a best-effort placeholder rather than a grounded reproduction.
package lighter

import (
	"encoding/json"
	"fmt"
	"time"

	"mdengine/internal/feed"
	"mdengine/internal/quote"
)

const wsURL = "wss://mainnet.zklighter.elliot.ai/stream"

// Adapter implements feed.Adapter for Lighter perpetual markets.
// Lighter does not offer spot markets.
type Adapter struct{}

func NewPerp() *Adapter { return &Adapter{} }

func (a *Adapter) Exchange() string { return "lighter" }

func (a *Adapter) InstrumentType() quote.InstrumentType { return quote.Perp }

func (a *Adapter) Endpoint() string { return wsURL }

func (a *Adapter) SubscribePayload(venueSymbols []string) ([]feed.OutgoingFrame, error) {
	if len(venueSymbols) == 0 {
		return nil, fmt.Errorf("lighter: no symbols to subscribe")
	}

	var frames []feed.OutgoingFrame
	for _, s := range venueSymbols {
		msg := map[string]string{"type": "subscribe", "channel": "best_bid_offer/" + s}
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		frames = append(frames, feed.OutgoingFrame{Text: true, Payload: payload})
	}
	return frames, nil
}

// HasSubscribeAck reports true: Lighter replies with a
// {"type":"subscribed","channel":...} confirmation per channel.
func (a *Adapter) HasSubscribeAck() bool { return true }

type bboMessage struct {
	Type     string  `json:"type"`
	Channel  string  `json:"channel"`
	Market   string  `json:"market"`
	BidPrice float64 `json:"bid_price"`
	BidSize  float64 `json:"bid_size"`
	AskPrice float64 `json:"ask_price"`
	AskSize  float64 `json:"ask_size"`
}

func (a *Adapter) Decode(frame feed.IncomingFrame) feed.Output {
	if !frame.Text {
		return feed.Output{Kind: feed.Ignored}
	}

	var msg bboMessage
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		return feed.Output{Kind: feed.DecodeError, Err: err}
	}

	switch msg.Type {
	case "subscribed":
		return feed.Output{Kind: feed.Ack}
	case "error":
		return feed.Output{Kind: feed.DecodeError, Err: fmt.Errorf("lighter: error frame: %s", frame.Payload)}
	case "update":
		// fall through
	default:
		return feed.Output{Kind: feed.Ignored}
	}

	if msg.Market == "" || msg.BidPrice <= 0 || msg.AskPrice <= 0 {
		return feed.Output{Kind: feed.Ignored}
	}

	return feed.Output{
		Kind:        feed.Quote,
		VenueSymbol: msg.Market,
		Record: quote.QuoteRecord{
			BidPrice:     msg.BidPrice,
			AskPrice:     msg.AskPrice,
			BidQty:       msg.BidSize,
			AskQty:       msg.AskSize,
			ReceivedTsNs: frame.ArrivalTsNs,
		},
	}
}

// KeepalivePolicy: Lighter expects an application-level {"type":"ping"}
// frame roughly every 15s.
func (a *Adapter) KeepalivePolicy() feed.KeepaliveSpec {
	return feed.KeepaliveSpec{
		Kind:     feed.KeepaliveClientPing,
		Interval: 15 * time.Second,
		BuildPing: func() feed.OutgoingFrame {
			payload, _ := json.Marshal(map[string]string{"type": "ping"})
			return feed.OutgoingFrame{Text: true, Payload: payload}
		},
	}
}

func (a *Adapter) VenueSymbol(base, quote_ string) string {
	return feed.JoinSymbol(base, quote_, "-")
}

func (a *Adapter) CanonicalFromVenue(venueSymbol string) (base, quote_ string, ok bool) {
	return feed.SplitSymbolBySeparator(venueSymbol, "-")
}
