package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appcfg "basis-trader-go/config"
	"basis-trader-go/order"
)

type countingRequester struct {
	cancelAll int
}

func (r *countingRequester) NewOrderRequest(context.Context, order.NewOrder) (string, error) {
	return "", nil
}

func (r *countingRequester) CancelOrderRequest(context.Context, string, string, string) error {
	return nil
}

func (r *countingRequester) CancelAllOrdersRequest(context.Context, string, string) error {
	r.cancelAll++
	return nil
}

// stoppedEngine 模拟事件循环已退出的引擎组件
func stoppedEngine(orders order.Requester, send bool) *engineComponent {
	done := make(chan struct{})
	close(done)
	return &engineComponent{
		orders:     orders,
		sendOrders: func() bool { return send },
		quoting:    appcfg.MarketConfig{TradingAccountID: "perp-acc", InstrumentID: "BTC/USDT"},
		logger:     zap.NewNop(),
		cancel:     func() {},
		done:       done,
	}
}

func TestEngineStopCancelsWhenSending(t *testing.T) {
	cases := []struct {
		name       string
		send       bool
		wantCancel int
	}{
		{"允许下单时撤全部", true, 1},
		{"关闭下单时不撤单", false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &countingRequester{}
			require.NoError(t, stoppedEngine(req, tc.send).Stop())
			assert.Equal(t, tc.wantCancel, req.cancelAll)
		})
	}
}
