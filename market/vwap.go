package market

import (
	"sync"
	"time"
)

// DefaultVWAPPeriod 默认窗口 30 分钟
const DefaultVWAPPeriod = 30 * time.Minute

// VWAP 滑动窗口成交量加权均价。
type VWAP interface {
	AddTrade(price, qty float64, ts time.Time)
	// VWAP 窗口内无成交量时返回 false
	VWAP() (float64, bool)
}

// AddTrades 批量写入
func AddTrades(v VWAP, trades []Trade) {
	for _, tr := range trades {
		v.AddTrade(tr.Price, tr.Qty, tr.Ts)
	}
}

// SimpleVWAP 保存窗口内每一笔成交，写入和查询时裁剪过期成交。
// 内存随窗口内成交笔数线性增长。
type SimpleVWAP struct {
	period time.Duration
	now    func() time.Time

	mu       sync.Mutex
	trades   []Trade // 按时间升序
	totalPV  float64
	totalVol float64
}

// NewSimpleVWAP period<=0 时使用默认窗口
func NewSimpleVWAP(period time.Duration) *SimpleVWAP {
	if period <= 0 {
		period = DefaultVWAPPeriod
	}
	return &SimpleVWAP{period: period, now: time.Now}
}

// SetClock 替换时间源（测试用）
func (v *SimpleVWAP) SetClock(now func() time.Time) { v.now = now }

// AddTrade 写入一笔成交。窗口之外的成交直接忽略。
func (v *SimpleVWAP) AddTrade(price, qty float64, ts time.Time) {
	if qty <= 0 || price <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := v.now().Add(-v.period)
	if ts.Before(cutoff) {
		return
	}
	tr := Trade{Price: price, Qty: qty, Ts: ts}
	// 乱序成交插入到正确位置，通常就是末尾
	i := len(v.trades)
	for i > 0 && v.trades[i-1].Ts.After(ts) {
		i--
	}
	v.trades = append(v.trades, Trade{})
	copy(v.trades[i+1:], v.trades[i:])
	v.trades[i] = tr

	v.totalPV += tr.Notional()
	v.totalVol += qty
	v.prune(cutoff)
}

// VWAP 先裁剪再计算
func (v *SimpleVWAP) VWAP() (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prune(v.now().Add(-v.period))
	if v.totalVol <= 0 {
		return 0, false
	}
	return v.totalPV / v.totalVol, true
}

// Len 窗口内成交笔数
func (v *SimpleVWAP) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.trades)
}

func (v *SimpleVWAP) prune(cutoff time.Time) {
	n := 0
	for n < len(v.trades) && v.trades[n].Ts.Before(cutoff) {
		v.totalPV -= v.trades[n].Notional()
		v.totalVol -= v.trades[n].Qty
		n++
	}
	if n == 0 {
		return
	}
	v.trades = append(v.trades[:0], v.trades[n:]...)
	if len(v.trades) == 0 {
		// 清掉浮点累计误差
		v.totalPV, v.totalVol = 0, 0
	}
}
