// Package mirror optionally republishes store writes to Redis Pub/Sub so
// external dashboards can tail live quotes without polling the engine's
// in-process store. It is pure addition: nothing in the engine depends
// on the mirror succeeding, and a full buffer just drops an event rather
// than blocking a feed's write.
package mirror

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mdengine/internal/metrics"
	"mdengine/internal/quote"
)

// RedisMirror republishes accepted Quote Store writes to a Redis channel
// named "quotes:<exchange>:<symbol-id>". It never blocks the writer that
// feeds it: events are queued on a bounded channel and a full channel
// silently drops the newest event.
type RedisMirror struct {
	client *redis.Client
	events chan event
	done   chan struct{}
}

type event struct {
	exchange string
	id       quote.SymbolId
	rec      quote.QuoteRecord
}

// New constructs a mirror against a Redis instance at addr. The
// connection is not verified: an unreachable Redis shows up only as
// publish errors counted in metrics.MirrorPublishErrors.
func New(addr string, bufferSize int) *RedisMirror {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	m := &RedisMirror{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		events: make(chan event, bufferSize),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Publish is a store.MirrorFunc: it enqueues the write for best-effort
// republishing and returns immediately regardless of queue pressure.
func (m *RedisMirror) Publish(exchange string, id quote.SymbolId, rec quote.QuoteRecord) {
	select {
	case m.events <- event{exchange: exchange, id: id, rec: rec}:
	default:
		// Queue full: the mirror is lossy by design, drop rather than block.
	}
}

func (m *RedisMirror) run() {
	ctx := context.Background()
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			channel := fmt.Sprintf("quotes:%s:%d", ev.exchange, ev.id)
			payload := fmt.Sprintf(`{"bid":%g,"ask":%g,"bid_qty":%g,"ask_qty":%g,"ts":%d}`,
				ev.rec.BidPrice, ev.rec.AskPrice, ev.rec.BidQty, ev.rec.AskQty, ev.rec.ReceivedTsNs)
			if err := m.client.Publish(ctx, channel, payload).Err(); err != nil {
				metrics.MirrorPublishErrors.WithLabelValues(channel).Inc()
				log.Debug().Err(err).Str("channel", channel).Msg("mirror publish failed")
			}
		}
	}
}

// Close stops the mirror's background publisher and closes the Redis
// client. Events already queued are dropped.
func (m *RedisMirror) Close() error {
	close(m.done)
	return m.client.Close()
}
