package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarketData(t *testing.T, now *time.Time) *MarketData {
	t.Helper()
	md := NewMarketData(Spec{
		ExchangeID:     "binance",
		InstrumentID:   "BTC/USDT",
		PricePrecision: 0.01,
		SizePrecision:  0.0001,
	}, nil)
	md.SetClock(func() time.Time { return *now })
	return md
}

func TestMarketDataBBOAndMid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	md := newTestMarketData(t, &now)

	_, ok := md.MidPrice()
	assert.False(t, ok, "no tick yet")

	require.NoError(t, md.OnOrderBookTick(BookSnapshot{
		Bids: []Level{{Price: 100, Size: 1}, {Price: 99, Size: 2}},
		Asks: []Level{{Price: 101, Size: 1}},
	}))

	mid, ok := md.MidPrice()
	require.True(t, ok)
	assert.Equal(t, 100.5, mid)

	bbo := md.BBO()
	spread, ok := bbo.Spread()
	require.True(t, ok)
	assert.InDelta(t, 2.0/201.0, spread, 1e-12)
	assert.Equal(t, now, bbo.UpdatedAt)
	assert.Equal(t, "[binance-BTC/USDT]-MD", md.Name())
}

func TestMarketDataOneSidedBook(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	md := newTestMarketData(t, &now)

	require.NoError(t, md.OnOrderBookTick(BookSnapshot{Bids: []Level{{Price: 100, Size: 1}}}))
	bid, ok := md.BestBid()
	assert.True(t, ok)
	assert.Equal(t, 100.0, bid)
	_, ok = md.BestAsk()
	assert.False(t, ok)
	_, ok = md.MidPrice()
	assert.False(t, ok)
}

func TestMarketDataUsesBookTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	md := newTestMarketData(t, &now)

	ts := now.Add(-10 * time.Second)
	require.NoError(t, md.OnOrderBookTick(BookSnapshot{
		Bids:        []Level{{Price: 100, Size: 1}},
		Asks:        []Level{{Price: 101, Size: 1}},
		TimestampMs: ts.UnixMilli(),
	}))
	assert.Equal(t, ts.UnixMilli(), md.LastUpdate().UnixMilli())
}

func TestMarketDataStaleness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	md := newTestMarketData(t, &now)

	assert.True(t, md.IsStale(), "never updated")

	require.NoError(t, md.OnOrderBookTick(BookSnapshot{
		Bids: []Level{{Price: 100, Size: 1}},
		Asks: []Level{{Price: 101, Size: 1}},
	}))
	assert.False(t, md.IsStale())

	now = now.Add(59 * time.Second)
	assert.False(t, md.IsStale())

	now = now.Add(time.Second)
	assert.True(t, md.IsStale(), "elapsed == threshold counts as stale")
}

func TestMarketDataRejectsMalformedBook(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	md := newTestMarketData(t, &now)
	require.NoError(t, md.OnOrderBookTick(BookSnapshot{
		Bids: []Level{{Price: 100, Size: 1}},
		Asks: []Level{{Price: 101, Size: 1}},
	}))

	cases := []struct {
		name string
		book BookSnapshot
	}{
		{"零价格", BookSnapshot{Bids: []Level{{Price: 0, Size: 1}}}},
		{"负数量", BookSnapshot{Asks: []Level{{Price: 101, Size: -1}}}},
		{"买盘升序", BookSnapshot{Bids: []Level{{Price: 99, Size: 1}, {Price: 100, Size: 1}}}},
		{"卖盘降序", BookSnapshot{Asks: []Level{{Price: 102, Size: 1}, {Price: 101, Size: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := md.OnOrderBookTick(tc.book)
			assert.ErrorIs(t, err, ErrMalformedBook)
			mid, ok := md.MidPrice()
			assert.True(t, ok, "snapshot must be untouched")
			assert.Equal(t, 100.5, mid)
		})
	}
}

func TestMarketDataFundingAndFills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	md := newTestMarketData(t, &now)

	_, ok := md.FundingRate()
	assert.False(t, ok)

	rate := 0.0006
	require.NoError(t, md.OnOrderBookTick(BookSnapshot{
		Bids:        []Level{{Price: 100, Size: 1}},
		Asks:        []Level{{Price: 101, Size: 1}},
		FundingRate: &rate,
	}))
	got, ok := md.FundingRate()
	assert.True(t, ok)
	assert.Equal(t, 0.0006, got)

	_, ok = md.LastFillPrice()
	assert.False(t, ok)
	md.OnMarketFill(100.7)
	fill, ok := md.LastFillPrice()
	assert.True(t, ok)
	assert.Equal(t, 100.7, fill)
}
