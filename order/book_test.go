package order

import "testing"

func TestBookSetGetList(t *testing.T) {
	b := NewBook()
	o := Order{ID: "1", AccountID: "acc", InstrumentID: "BTC/USDT", Status: StatusAcknowledged}
	b.Set(o)
	got, ok := b.Get("1")
	if !ok || got.InstrumentID != "BTC/USDT" {
		t.Fatalf("get failed: %+v %v", got, ok)
	}
	list := b.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 order, got %d", len(list))
	}
}

func TestBookActiveOrdersByMarket(t *testing.T) {
	b := NewBook()
	b.Set(Order{ID: "a", AccountID: "acc", InstrumentID: "BTC/USDT", Status: StatusAcknowledged})
	b.Set(Order{ID: "b", AccountID: "acc", InstrumentID: "BTC/USDT", Status: StatusPartiallyFilled})
	b.Set(Order{ID: "c", AccountID: "acc", InstrumentID: "BTC/USDT", Status: StatusCancelled})
	b.Set(Order{ID: "d", AccountID: "acc", InstrumentID: "ETH/USDT", Status: StatusAcknowledged})
	b.Set(Order{ID: "e", AccountID: "other", InstrumentID: "BTC/USDT", Status: StatusAcknowledged})

	active, err := b.GetActiveOrdersByMarket("acc", "BTC/USDT")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active orders, got %d", len(active))
	}
	if _, ok := active["a"]; !ok {
		t.Errorf("missing order a")
	}
	if _, ok := active["b"]; !ok {
		t.Errorf("missing order b")
	}

	if n := b.PruneFinal(); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
}
