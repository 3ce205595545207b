package mirror

import (
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdengine/internal/quote"
)

// newTestMirror builds a RedisMirror around a mocked redis.Client instead
// of New's real redis.NewClient, the same redismock.NewClientMock pattern
// the pack's cache test uses for go-redis, grounded here via its v9
// successor since this module pins go-redis/v9.
func newTestMirror(t *testing.T) (*RedisMirror, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	m := &RedisMirror{
		client: client,
		events: make(chan event, 16),
		done:   make(chan struct{}),
	}
	go m.run()
	t.Cleanup(func() { m.Close() })
	return m, mock
}

func TestPublishRepublishesAcceptedWrite(t *testing.T) {
	m, mock := newTestMirror(t)

	channel := "quotes:binance:1"
	payload := `{"bid":100,"ask":101,"bid_qty":0,"ask_qty":0,"ts":0}`
	mock.ExpectPublish(channel, payload).SetVal(1)

	m.Publish("binance", quote.SymbolId(1), quote.QuoteRecord{BidPrice: 100, AskPrice: 101})

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 5*time.Millisecond)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	client, _ := redismock.NewClientMock()
	m := &RedisMirror{
		client: client,
		events: make(chan event, 1),
		done:   make(chan struct{}),
	}
	// No background run() goroutine: the queue never drains, so the
	// second Publish must drop rather than block this goroutine.
	defer close(m.done)

	m.Publish("binance", 1, quote.QuoteRecord{BidPrice: 1, AskPrice: 2})

	done := make(chan struct{})
	go func() {
		m.Publish("binance", 2, quote.QuoteRecord{BidPrice: 1, AskPrice: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue instead of dropping")
	}
	assert.Len(t, m.events, 1)
}

func TestClose(t *testing.T) {
	client, _ := redismock.NewClientMock()
	m := &RedisMirror{
		client: client,
		events: make(chan event, 1),
		done:   make(chan struct{}),
	}
	go m.run()

	err := m.Close()
	assert.NoError(t, err)
}
