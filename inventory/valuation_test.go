package inventory

import "testing"

func TestValuation(t *testing.T) {
	var tr Tracker
	tr.Update(1, 100)
	_, pnl := tr.Valuation(110)
	if pnl != 10 {
		t.Fatalf("expected pnl 10, got %f", pnl)
	}
	tr.Update(-1, 120)
	net, pnl := tr.Valuation(50)
	if net != 0 || pnl != 20 {
		t.Fatalf("flat position keeps realized pnl: net=%f pnl=%f", net, pnl)
	}
}
