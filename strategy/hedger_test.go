package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basis-trader-go/market"
	"basis-trader-go/order"
)

func hedgeBook() market.BookSnapshot {
	return market.BookSnapshot{
		Bids: []market.Level{{Price: 100, Size: 0.5}, {Price: 99.9, Size: 0.5}, {Price: 99, Size: 5}},
		Asks: []market.Level{{Price: 100.1, Size: 0.2}, {Price: 100.2, Size: 0.3}, {Price: 101, Size: 5}},
	}
}

func TestTakerHedgerSellsLongResidual(t *testing.T) {
	h := NewTakerHedger(TakerHedgerConfig{MaxCross: 0.002, MaxLevels: 3, MinOrderDollarSize: 10, MaxOrderDollarSize: 1000, OrderInterval: time.Second}, stubSwitch(true), nil)
	now := time.Unix(1_700_000_000, 0)
	h.OnResidualRisk(2)

	intents := h.Intents(hedgeBook(), now)
	require.Len(t, intents, 1)
	assert.Equal(t, order.SideSell, intents[0].Side)
	assert.Equal(t, order.IOC, intents[0].TimeInForce)
	assert.InDelta(t, 99.8, intents[0].Price, 1e-9)
	assert.InDelta(t, 1.0, intents[0].Quantity, 1e-9, "only levels inside the limit count")
	assert.InDelta(t, 1.0, h.Residual(), 1e-9)

	assert.Empty(t, h.Intents(hedgeBook(), now.Add(500*time.Millisecond)), "one intent per interval")
	assert.Len(t, h.Intents(hedgeBook(), now.Add(time.Second)), 1)
}

func TestTakerHedgerBuysShortResidualCappedByDollarSize(t *testing.T) {
	h := NewTakerHedger(TakerHedgerConfig{MaxCross: 0.01, MaxLevels: 2, MaxOrderDollarSize: 30.03}, nil, nil)
	h.OnResidualRisk(-1)
	intents := h.Intents(hedgeBook(), time.Now())
	require.Len(t, intents, 1)
	assert.Equal(t, order.SideBuy, intents[0].Side)
	assert.InDelta(t, 101.101, intents[0].Price, 1e-9)
	assert.InDelta(t, 0.3, intents[0].Quantity, 1e-9)
}

func TestTakerHedgerNothingBelowMinimum(t *testing.T) {
	h := NewTakerHedger(TakerHedgerConfig{MaxCross: 0.001, MaxLevels: 1, MinOrderDollarSize: 100}, nil, nil)
	h.OnResidualRisk(0.5)
	assert.Empty(t, h.Intents(hedgeBook(), time.Now()))

	h.OnResidualRisk(0)
	assert.Empty(t, h.Intents(hedgeBook(), time.Now()))

	off := NewTakerHedger(TakerHedgerConfig{MaxCross: 0.01}, stubSwitch(false), nil)
	off.OnResidualRisk(5)
	assert.Empty(t, off.Intents(hedgeBook(), time.Now()))
}
