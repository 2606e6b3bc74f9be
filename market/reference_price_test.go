package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferencePriceComposite(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	ethBtc := NewMarketData(Spec{ExchangeID: "binance", InstrumentID: "ETH/BTC"}, nil)
	ethBtc.SetClock(clock)
	btcUsdt := NewMarketData(Spec{ExchangeID: "binance", InstrumentID: "BTC/USDT"}, nil)
	btcUsdt.SetClock(clock)

	ref := NewReferencePrice(nil,
		ReferenceComponent{Data: ethBtc, Multiplier: 1},
		ReferenceComponent{Data: btcUsdt, Multiplier: 1},
	)
	_, _, ok := ref.BidAsk()
	assert.False(t, ok, "components not ready")

	require.NoError(t, ethBtc.OnOrderBookTick(BookSnapshot{
		Bids: []Level{{Price: 0.05, Size: 1}},
		Asks: []Level{{Price: 0.051, Size: 1}},
	}))
	_, ok = ref.MidPrice()
	assert.False(t, ok, "second component still missing")

	require.NoError(t, btcUsdt.OnOrderBookTick(BookSnapshot{
		Bids: []Level{{Price: 40000, Size: 1}},
		Asks: []Level{{Price: 40010, Size: 1}},
	}))
	bid, ask, ok := ref.BidAsk()
	require.True(t, ok)
	assert.InDelta(t, 2000.0, bid, 1e-9)
	assert.InDelta(t, 0.051*40010, ask, 1e-9)

	now = now.Add(2 * time.Minute)
	_, ok = ref.MidPrice()
	assert.False(t, ok, "stale component")
}

func TestReferencePriceInverse(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	usdtUsd := NewMarketData(Spec{ExchangeID: "kraken", InstrumentID: "USDT/USD"}, nil)
	usdtUsd.SetClock(func() time.Time { return now })
	require.NoError(t, usdtUsd.OnOrderBookTick(BookSnapshot{
		Bids: []Level{{Price: 0.998, Size: 1}},
		Asks: []Level{{Price: 1.002, Size: 1}},
	}))

	ref := NewReferencePrice(nil, ReferenceComponent{Data: usdtUsd, Multiplier: -1})
	bid, ask, ok := ref.BidAsk()
	require.True(t, ok)
	assert.Less(t, bid, ask)
	assert.InDelta(t, 1/1.002, bid, 1e-12)
	assert.InDelta(t, 1/0.998, ask, 1e-12)
}
