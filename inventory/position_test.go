package inventory

import (
	"math"
	"testing"
)

func TestTrackerUpdate(t *testing.T) {
	var tr Tracker
	tr.Update(1, 100)
	if tr.NetExposure() != 1 {
		t.Fatalf("expected net 1")
	}
	if tr.AvgCost() != 100 {
		t.Fatalf("expected cost 100 got %f", tr.AvgCost())
	}
	tr.Update(1, 110) // cost should move toward 105
	if tr.AvgCost() != 105 {
		t.Fatalf("unexpected avg cost %f", tr.AvgCost())
	}
}

func TestTrackerRealizesOnReduce(t *testing.T) {
	var tr Tracker
	tr.Update(2, 100)
	tr.Update(-1, 110)
	if tr.NetExposure() != 1 || tr.AvgCost() != 100 {
		t.Fatalf("partial close keeps cost: net=%f cost=%f", tr.NetExposure(), tr.AvgCost())
	}
	if math.Abs(tr.Realized()-10) > 1e-9 {
		t.Fatalf("expected realized 10, got %f", tr.Realized())
	}

	// 反手：平 1 个，再以 90 开空 2 个
	tr.Update(-3, 90)
	if tr.NetExposure() != -2 || tr.AvgCost() != 90 {
		t.Fatalf("flip should reset cost: net=%f cost=%f", tr.NetExposure(), tr.AvgCost())
	}
	if math.Abs(tr.Realized()-0) > 1e-9 {
		t.Fatalf("expected realized 0 after losing 10, got %f", tr.Realized())
	}
}
