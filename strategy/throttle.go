package strategy

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"basis-trader-go/order"
)

// ThrottleConfig 节流阈值
type ThrottleConfig struct {
	PriceThreshold float64       `yaml:"price_threshold"` // mid 相对变动超过该值才替换
	TimeThreshold  time.Duration `yaml:"time_threshold"`  // 同一账户两次发送的最小间隔
}

// OrderThrottle 将意向报价与在挂订单对比，决定发送哪些、撤哪些。
type OrderThrottle struct {
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	cfg      ThrottleConfig
	lastSent map[string]time.Time
}

// NewOrderThrottle 创建节流器
func NewOrderThrottle(cfg ThrottleConfig, logger *zap.Logger) *OrderThrottle {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("order throttle initialized",
		zap.Float64("price_threshold", cfg.PriceThreshold),
		zap.Duration("time_threshold", cfg.TimeThreshold))
	return &OrderThrottle{
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
		lastSent: make(map[string]time.Time),
	}
}

// SetClock 测试注入
func (t *OrderThrottle) SetClock(now func() time.Time) { t.now = now }

// SetConfig 热更新
func (t *OrderThrottle) SetConfig(cfg ThrottleConfig) {
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

// Config 当前参数
func (t *OrderThrottle) Config() ThrottleConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Evaluate 返回待发送报价与待撤订单 ID，不更新发送时间。
// 距上次发送不足 TimeThreshold 时整体休眠；无在挂订单时全部放行；
// 同方向同档位的在挂订单仅在 mid 移动超阈值或新价更保守时被替换。
// 调用方在报价确实发出后调用 MarkSent。
func (t *OrderThrottle) Evaluate(accountID, instrumentID string, intended []Quote, live map[string]order.Order) ([]Quote, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.lastSent[accountID]; ok && now.Sub(last) < t.cfg.TimeThreshold {
		t.logger.Debug("order throttle snoozing", zap.String("account", accountID))
		return nil, nil
	}
	if len(intended) == 0 {
		return nil, nil
	}
	if len(live) == 0 {
		out := make([]Quote, len(intended))
		copy(out, intended)
		t.logger.Debug("no open orders, sending all quotes",
			zap.String("account", accountID),
			zap.String("instrument", instrumentID),
			zap.Int("quotes", len(out)))
		return out, nil
	}

	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var send []Quote
	var cancel []string
	matched := make(map[string]bool)
	for _, q := range intended {
		matchID := ""
		for _, id := range ids {
			o := live[id]
			if matched[id] || o.Side != q.Side || o.Context.Level != q.Context.Level {
				continue
			}
			matchID = id
			break
		}
		if matchID == "" {
			send = append(send, q)
			continue
		}
		matched[matchID] = true
		o := live[matchID]
		if t.midMoved(q, o) || isMoreConservative(q, o) {
			send = append(send, q)
			cancel = append(cancel, matchID)
			t.logger.Debug("replacing live order", zap.Stringer("live", o), zap.Stringer("quote", q))
		}
	}
	if len(send) > 0 {
		t.logger.Info("order throttle decision",
			zap.String("account", accountID),
			zap.String("instrument", instrumentID),
			zap.Int("send", len(send)),
			zap.Strings("cancel", cancel))
	}
	return send, cancel
}

// MarkSent 记录账户的发送时间，时间门槛从此刻起算
func (t *OrderThrottle) MarkSent(accountID string) {
	t.mu.Lock()
	t.lastSent[accountID] = t.now()
	t.mu.Unlock()
}

func (t *OrderThrottle) midMoved(q Quote, o order.Order) bool {
	mid := q.Context.MarketMid
	if mid <= 0 {
		return false
	}
	return math.Abs(mid-o.Context.MarketMid)/mid > t.cfg.PriceThreshold
}

// isMoreConservative 买单新价更低、卖单新价更高
func isMoreConservative(q Quote, o order.Order) bool {
	return isMoreAggressive(o.Price, q.Price, q.Side)
}
