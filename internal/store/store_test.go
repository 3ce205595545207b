package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdengine/internal/quote"
)

func validRecord(bid, ask float64, tsNs uint64) quote.QuoteRecord {
	return quote.QuoteRecord{BidPrice: bid, AskPrice: ask, BidQty: 1, AskQty: 1, ReceivedTsNs: tsNs}
}

func TestPutAndGetRecord(t *testing.T) {
	s := New()
	ok := s.Put("binance", 1, validRecord(100, 101, 1))
	require.True(t, ok)

	rec, ok := s.GetRecord("binance", 1)
	require.True(t, ok)
	assert.Equal(t, 100.0, rec.BidPrice)
	assert.Equal(t, 101.0, rec.AskPrice)
}

func TestPutRejectsInvalidRecord(t *testing.T) {
	s := New()
	ok := s.Put("binance", 1, quote.QuoteRecord{BidPrice: 101, AskPrice: 100})
	assert.False(t, ok)

	_, ok = s.GetRecord("binance", 1)
	assert.False(t, ok)
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.GetBid("binance", 1)
	assert.False(t, ok)

	s.Put("binance", 1, validRecord(100, 101, 1))
	_, ok = s.GetBid("bybit", 1)
	assert.False(t, ok)
	_, ok = s.GetBid("binance", 2)
	assert.False(t, ok)
}

func TestAccessorsDeriveFromLatestRecord(t *testing.T) {
	s := New()
	s.Put("binance", 1, validRecord(100, 102, 5))

	bid, ok := s.GetBid("binance", 1)
	require.True(t, ok)
	assert.Equal(t, 100.0, bid)

	ask, ok := s.GetAsk("binance", 1)
	require.True(t, ok)
	assert.Equal(t, 102.0, ask)

	mid, ok := s.GetMidquote("binance", 1)
	require.True(t, ok)
	assert.Equal(t, 101.0, mid)

	spread, ok := s.GetSpread("binance", 1)
	require.True(t, ok)
	assert.Equal(t, 2.0, spread)

	ts, ok := s.GetTimestamp("binance", 1)
	require.True(t, ok)
	assert.Equal(t, uint64(5), ts)
}

func TestPutOverwritesPriorValue(t *testing.T) {
	s := New()
	s.Put("binance", 1, validRecord(100, 101, 1))
	s.Put("binance", 1, validRecord(200, 201, 2))

	rec, ok := s.GetRecord("binance", 1)
	require.True(t, ok)
	assert.Equal(t, 200.0, rec.BidPrice)
}

func TestMirrorInvokedOnAcceptedWrite(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var calls []string
	s.SetMirror(func(exchange string, id quote.SymbolId, rec quote.QuoteRecord) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, exchange)
	})

	s.Put("binance", 1, validRecord(100, 101, 1))
	s.Put("binance", 1, quote.QuoteRecord{BidPrice: -1})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"binance"}, calls)
}

func TestSymbolsOfAndExchanges(t *testing.T) {
	s := New()
	s.Put("binance", 1, validRecord(100, 101, 1))
	s.Put("binance", 2, validRecord(100, 101, 1))
	s.Put("bybit", 1, validRecord(100, 101, 1))

	assert.ElementsMatch(t, []quote.SymbolId{1, 2}, s.SymbolsOf("binance"))
	assert.ElementsMatch(t, []quote.SymbolId{1}, s.SymbolsOf("bybit"))
	assert.Nil(t, s.SymbolsOf("kraken"))
	assert.ElementsMatch(t, []string{"binance", "bybit"}, s.Exchanges())
}

func TestMidquoteMeanAveragesWithinWindow(t *testing.T) {
	s := New()
	now := uint64(time.Hour.Nanoseconds())

	s.Put("binance", 1, validRecord(100, 102, now))   // mid 101, fresh
	s.Put("bybit", 1, validRecord(200, 202, now-1))   // mid 201, fresh
	s.Put("mexc", 1, validRecord(900, 902, 1))        // ancient, outside window

	mean, ok := s.MidquoteMean(1, 5*time.Second, now)
	require.True(t, ok)
	assert.InDelta(t, 151.0, mean, 0.0001)
}

func TestMidquoteMeanNoRecordsInWindow(t *testing.T) {
	s := New()
	s.Put("binance", 1, validRecord(100, 102, 1))

	_, ok := s.MidquoteMean(1, time.Second, uint64(time.Hour.Nanoseconds()))
	assert.False(t, ok)
}

func TestMidquoteMeanUnknownSymbol(t *testing.T) {
	s := New()
	s.Put("binance", 1, validRecord(100, 102, 1))

	_, ok := s.MidquoteMean(99, time.Hour, uint64(time.Hour.Nanoseconds()))
	assert.False(t, ok)
}

// TestConcurrentPutGetNeverTornRead verifies that concurrent writers to
// a shared key never panic and readers always observe a complete
// (untorn) record, never a mix of old and new fields.
func TestConcurrentPutGetNeverTornRead(t *testing.T) {
	s := New()
	const writers = 8
	const iterations = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base float64) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				bid := base + float64(i)
				s.Put("binance", 1, validRecord(bid, bid+1, uint64(i)))
			}
		}(float64(w * 1000))
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				// Every record this test writes has AskPrice == BidPrice+1;
				// a torn read mixing one writer's bid with another's ask
				// would violate that, so this is the invariant worth
				// checking rather than just "it didn't panic".
				if rec, ok := s.GetRecord("binance", 1); ok {
					assert.Equal(t, rec.BidPrice+1, rec.AskPrice)
				}
			}
		}
	}()

	wg.Wait()
	close(done)
}
