package inventory

import "sync"

// Tracker 维护单个品种的净仓位、加权成本与已实现盈亏。
type Tracker struct {
	mu       sync.RWMutex
	net      float64
	cost     float64
	realized float64
}

// Update 根据有符号成交数量调整仓位。减仓部分按均价结算已实现盈亏。
func (t *Tracker) Update(deltaQty float64, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if deltaQty == 0 {
		return
	}
	// 同向加仓：加权平均成本
	if t.net == 0 || (t.net > 0) == (deltaQty > 0) {
		totalValue := t.cost*t.net + price*deltaQty
		t.net += deltaQty
		t.cost = totalValue / t.net
		return
	}
	closing := min(abs(deltaQty), abs(t.net))
	if t.net > 0 {
		t.realized += (price - t.cost) * closing
	} else {
		t.realized += (t.cost - price) * closing
	}
	t.net += deltaQty
	switch {
	case t.net == 0:
		t.cost = 0
	case (t.net > 0) == (deltaQty > 0):
		// 反手，剩余部分以成交价开仓
		t.cost = price
	}
}

func (t *Tracker) NetExposure() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.net
}

func (t *Tracker) AvgCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cost
}

// Realized 已实现盈亏
func (t *Tracker) Realized() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.realized
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
