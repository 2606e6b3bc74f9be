package inventory

// Valuation 基于当前 mid 价计算净仓位与总盈亏（已实现 + 未实现）。
func (t *Tracker) Valuation(mid float64) (net float64, pnl float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	net = t.net
	pnl = t.realized
	if t.net != 0 {
		pnl += (mid - t.cost) * t.net
	}
	return
}
