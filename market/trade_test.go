package market

import "testing"

func TestTradeNotional(t *testing.T) {
	tr := Trade{Price: 10, Qty: 2}
	if tr.Notional() != 20 {
		t.Fatalf("unexpected notional %v", tr.Notional())
	}
}
