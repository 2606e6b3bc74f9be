package market

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultStaleThreshold 默认行情过期阈值
const DefaultStaleThreshold = 60 * time.Second

// Spec 市场静态参数
type Spec struct {
	ExchangeID     string
	InstrumentID   string
	PricePrecision float64       // 报价最小变动，如 0.01
	SizePrecision  float64       // 数量最小变动，如 0.0001
	MinNotional    float64       // 最小名义金额，0 表示不限制
	StaleThreshold time.Duration // 默认 60s
}

// ID 市场标识 "exchange-instrument"
func (s Spec) ID() string {
	return MarketID(s.ExchangeID, s.InstrumentID)
}

// MarketID 拼接市场标识
func MarketID(exchangeID, instrumentID string) string {
	return exchangeID + "-" + instrumentID
}

// MarketData 单个市场的行情缓存：最优价、更新时间、最近成交价与资金费率。
// 快照只由本实例修改。
type MarketData struct {
	spec   Spec
	name   string
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	bbo         BBO
	lastUpdate  time.Time
	lastBook    BookSnapshot
	lastFill    float64
	hasFill     bool
	funding     float64
	hasFunding  bool
}

// NewMarketData 创建行情缓存
func NewMarketData(spec Spec, logger *zap.Logger) *MarketData {
	if spec.StaleThreshold <= 0 {
		spec.StaleThreshold = DefaultStaleThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	md := &MarketData{
		spec:   spec,
		name:   fmt.Sprintf("[%s]-MD", spec.ID()),
		logger: logger,
		now:    time.Now,
	}
	logger.Info("market data initialized",
		zap.String("market", spec.ID()),
		zap.Float64("price_precision", spec.PricePrecision),
		zap.Float64("size_precision", spec.SizePrecision),
		zap.Duration("stale_threshold", spec.StaleThreshold))
	return md
}

// SetClock 替换时间源（测试用）
func (m *MarketData) SetClock(now func() time.Time) { m.now = now }

// Spec 返回市场参数
func (m *MarketData) Spec() Spec { return m.spec }

// Name 日志名称
func (m *MarketData) Name() string { return m.name }

// OnOrderBookTick 处理一份深度快照。非法快照返回错误且不改变状态。
func (m *MarketData) OnOrderBookTick(book BookSnapshot) error {
	if err := book.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	ts := m.now()
	if book.TimestampMs > 0 {
		ts = time.UnixMilli(book.TimestampMs)
	}
	less := m.subtractOwnOrders(book)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUpdate = ts
	m.lastBook = less
	m.bbo = BBO{UpdatedAt: ts}
	if len(less.Bids) > 0 {
		m.bbo.Bid, m.bbo.HasBid = less.Bids[0].Price, true
	}
	if len(less.Asks) > 0 {
		m.bbo.Ask, m.bbo.HasAsk = less.Asks[0].Price, true
	}
	if book.FundingRate != nil {
		m.funding, m.hasFunding = *book.FundingRate, true
	}
	return nil
}

// subtractOwnOrders 应从展示深度中扣除自己的挂单。
//
// 已知缺陷：上游按价位增量推送，未变化的价位不会被补回，若每次都扣减自身挂单，
// 同一价位会被重复扣减直至为负。在深度与挂单对账方案确定之前保持原样透传，
// 目前策略只使用最优价，不依赖深度数量。
func (m *MarketData) subtractOwnOrders(book BookSnapshot) BookSnapshot {
	return book
}

// BBO 返回一致的最优价快照
func (m *MarketData) BBO() BBO {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bbo
}

// Book 返回最近一次快照
func (m *MarketData) Book() BookSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBook
}

// BestBid 最优买价
func (m *MarketData) BestBid() (float64, bool) {
	b := m.BBO()
	return b.Bid, b.HasBid
}

// BestAsk 最优卖价
func (m *MarketData) BestAsk() (float64, bool) {
	b := m.BBO()
	return b.Ask, b.HasAsk
}

// MidPrice 任一侧缺失时返回 false。
func (m *MarketData) MidPrice() (float64, bool) {
	mid, ok := m.BBO().Mid()
	if !ok {
		m.logger.Debug("unable to calculate mid price", zap.String("market", m.name))
	}
	return mid, ok
}

// IsStale 从未收到行情，或距上次更新已达阈值时为 true。
func (m *MarketData) IsStale() bool {
	m.mu.RLock()
	last := m.lastUpdate
	m.mu.RUnlock()
	if last.IsZero() {
		m.logger.Debug("market data stale: no update received yet", zap.String("market", m.name))
		return true
	}
	if elapsed := m.now().Sub(last); elapsed >= m.spec.StaleThreshold {
		m.logger.Debug("market data stale", zap.String("market", m.name), zap.Duration("elapsed", elapsed))
		return true
	}
	return false
}

// LastUpdate 上次更新时间，零值表示从未更新
func (m *MarketData) LastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdate
}

// OnMarketFill 公共成交回报，记录最近成交价。
func (m *MarketData) OnMarketFill(price float64) {
	m.SetLastFillPrice(price)
}

// SetLastFillPrice 设置最近成交价
func (m *MarketData) SetLastFillPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFill, m.hasFill = price, true
}

// LastFillPrice 最近成交价
func (m *MarketData) LastFillPrice() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFill, m.hasFill
}

// SetFundingRate 更新永续合约资金费率
func (m *MarketData) SetFundingRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funding, m.hasFunding = rate, true
}

// FundingRate 资金费率，现货市场或尚未收到时返回 false。
func (m *MarketData) FundingRate() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.funding, m.hasFunding
}

// PricePrecision 报价精度
func (m *MarketData) PricePrecision() float64 { return m.spec.PricePrecision }

// SizePrecision 数量精度
func (m *MarketData) SizePrecision() float64 { return m.spec.SizePrecision }
