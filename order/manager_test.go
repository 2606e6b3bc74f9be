package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	placed    []Order
	canceled  []string
	errPlace  error
	errCancel error
}

func (m *mockGateway) Place(ctx context.Context, o Order) error {
	m.placed = append(m.placed, o)
	return m.errPlace
}

func (m *mockGateway) Cancel(ctx context.Context, o Order) error {
	m.canceled = append(m.canceled, o.ID)
	return m.errCancel
}

func limitBuy(price, qty float64) NewOrder {
	return NewOrder{
		AccountID:    "acc",
		InstrumentID: "BTC/USDT",
		Type:         TypeLimit,
		Side:         SideBuy,
		Price:        price,
		Quantity:     qty,
		PostOnly:     true,
		TimeInForce:  GTC,
		Context:      Context{MarketMid: 100, QuoteWidth: 0.01, Level: 0.01},
	}
}

func TestManagerSubmitAndCancel(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	m := NewManager(gw, nil, nil)

	id, err := m.NewOrderRequest(ctx, limitBuy(100, 1))
	require.NoError(t, err)
	require.Len(t, gw.placed, 1)
	assert.Equal(t, StatusSubmitted, gw.placed[0].Status)

	st, ok := m.Status(id)
	require.True(t, ok)
	assert.Equal(t, StatusAcknowledged, st)

	active, _ := m.Book().GetActiveOrdersByMarket("acc", "BTC/USDT")
	assert.Len(t, active, 1)
	assert.Equal(t, 0.01, active[id].Context.Level)

	require.NoError(t, m.CancelOrderRequest(ctx, "acc", "BTC/USDT", id))
	st, _ = m.Status(id)
	assert.Equal(t, StatusCancelled, st)
	assert.Equal(t, []string{id}, gw.canceled)

	assert.ErrorIs(t, m.CancelOrderRequest(ctx, "acc", "BTC/USDT", id), ErrNotCancelable)
	assert.ErrorIs(t, m.CancelOrderRequest(ctx, "acc", "BTC/USDT", "missing"), ErrUnknownOrder)
}

func TestManagerGatewayRejects(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{errPlace: errors.New("insufficient margin")}
	m := NewManager(gw, nil, nil)

	id, err := m.NewOrderRequest(ctx, limitBuy(100, 1))
	require.Error(t, err)
	o, ok := m.Book().Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, "insufficient margin", o.LastError)
}

func TestManagerCancelRejected(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{errCancel: errors.New("unknown order on exchange")}
	m := NewManager(gw, nil, nil)

	id, err := m.NewOrderRequest(ctx, limitBuy(100, 1))
	require.NoError(t, err)
	require.Error(t, m.CancelOrderRequest(ctx, "acc", "BTC/USDT", id))
	st, _ := m.Status(id)
	assert.Equal(t, StatusCancelRejected, st)

	// 撤单被拒后可重试
	gw.errCancel = nil
	require.NoError(t, m.CancelOrderRequest(ctx, "acc", "BTC/USDT", id))
}

func TestManagerConstraint(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.SetConstraints(map[string]SymbolConstraints{
		"BTC/USDT": {TickSize: 0.01, StepSize: 0.001, MinQty: 0.001},
	})
	if _, err := m.NewOrderRequest(context.Background(), limitBuy(100.01, 0.002)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := m.NewOrderRequest(context.Background(), limitBuy(100.015, 0.002)); err == nil {
		t.Fatalf("expected tick size error")
	}
}

func TestManagerConstraintPerAccount(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.SetConstraints(map[string]SymbolConstraints{
		"BTC/USDT":                       {TickSize: 0.01},
		ConstraintKey("perp", "BTC/USDT"): {TickSize: 0.1},
	})
	perp := limitBuy(100.05, 1)
	perp.AccountID = "perp"
	_, err := m.NewOrderRequest(context.Background(), perp)
	assert.Error(t, err, "账户约束优先")

	_, err = m.NewOrderRequest(context.Background(), limitBuy(100.05, 1))
	assert.NoError(t, err, "其他账户回退到品种约束")
}

func TestPaperManagerFillsTakerOrders(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, nil, nil)
	require.True(t, m.IsPaper())

	var fills []float64
	m.SetFillListener(func(o Order, qty, price float64) { fills = append(fills, o.Side.Sign()*qty) })

	restingID, err := m.NewOrderRequest(ctx, limitBuy(100, 1))
	require.NoError(t, err)
	st, _ := m.Status(restingID)
	assert.Equal(t, StatusAcknowledged, st, "post-only GTC rests on the book")

	hedgeID, err := m.NewOrderRequest(ctx, NewOrder{
		AccountID:    "acc",
		InstrumentID: "BTC/USDT",
		Type:         TypeMarket,
		Side:         SideSell,
		Quantity:     0.5,
		TimeInForce:  GTC,
		Context:      HedgeContext,
	})
	require.NoError(t, err)
	st, _ = m.Status(hedgeID)
	assert.Equal(t, StatusFilled, st)
	assert.Equal(t, []float64{-0.5}, fills)

	require.NoError(t, m.Fill(restingID, 0.4, 100))
	st, _ = m.Status(restingID)
	assert.Equal(t, StatusPartiallyFilled, st)
	assert.Equal(t, []float64{-0.5, 0.4}, fills)
}

func TestManagerCancelAll(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, nil, nil)
	for i := 0; i < 3; i++ {
		_, err := m.NewOrderRequest(ctx, limitBuy(100-float64(i), 1))
		require.NoError(t, err)
	}
	other := limitBuy(100, 1)
	other.InstrumentID = "ETH/USDT"
	otherID, err := m.NewOrderRequest(ctx, other)
	require.NoError(t, err)

	require.NoError(t, m.CancelAllOrdersRequest(ctx, "acc", "BTC/USDT"))
	active, _ := m.Book().GetActiveOrdersByMarket("acc", "BTC/USDT")
	assert.Empty(t, active)
	st, _ := m.Status(otherID)
	assert.Equal(t, StatusAcknowledged, st)
}
