package strategy

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"basis-trader-go/order"
	"basis-trader-go/risk"
)

// RiskView 报价模块读取的风险视图，由 risk.Manager 实现。
type RiskView interface {
	GetTotalRisks() risk.Risk
	MarketMid() (float64, bool)
}

// Switch 策略开关
type Switch interface {
	IsEnabled() bool
}

// FaderConfig 线性偏移参数
type FaderConfig struct {
	Penalty    float64 `yaml:"penalty"`     // 每单位 delta 对公允价的偏移
	LowerBound float64 `yaml:"lower_bound"` // 公允价下限 = LowerBound*mid，默认 0.9
	UpperBound float64 `yaml:"upper_bound"` // 公允价上限 = UpperBound*mid，默认 1.1
}

func (c *FaderConfig) applyDefaults() {
	if c.LowerBound == 0 {
		c.LowerBound = 0.9
	}
	if c.UpperBound == 0 {
		c.UpperBound = 1.1
	}
}

// LinearFader 按持仓偏移公允价，在阶梯的每一档挂双边报价。
type LinearFader struct {
	risk   RiskView
	sw     Switch
	logger *zap.Logger

	mu  sync.RWMutex
	cfg FaderConfig
}

// NewLinearFader 创建 fader
func NewLinearFader(cfg FaderConfig, rv RiskView, sw Switch, logger *zap.Logger) (*LinearFader, error) {
	cfg.applyDefaults()
	if rv == nil {
		return nil, errors.New("linear fader: risk view is required")
	}
	if cfg.Penalty < 0 {
		return nil, errors.New("linear fader: penalty must be non-negative")
	}
	if cfg.LowerBound > cfg.UpperBound {
		return nil, errors.New("linear fader: lower bound above upper bound")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("linear fader initialized",
		zap.Float64("penalty", cfg.Penalty),
		zap.Float64("lower_bound", cfg.LowerBound),
		zap.Float64("upper_bound", cfg.UpperBound))
	return &LinearFader{risk: rv, sw: sw, logger: logger, cfg: cfg}, nil
}

// SetPenalty 热更新
func (f *LinearFader) SetPenalty(p float64) {
	f.mu.Lock()
	f.cfg.Penalty = p
	f.mu.Unlock()
}

// Quotes 生成原始双边报价。阶梯为空、开关关闭或 mid 缺失时返回空。
func (f *LinearFader) Quotes(ladder Ladder) []Quote {
	if len(ladder) == 0 || (f.sw != nil && !f.sw.IsEnabled()) {
		return nil
	}
	mid, ok := f.risk.MarketMid()
	if !ok || mid <= 0 {
		return nil
	}
	f.mu.RLock()
	cfg := f.cfg
	f.mu.RUnlock()

	delta := f.risk.GetTotalRisks().Delta
	fair := mid - delta*cfg.Penalty
	bounded := min(max(fair, mid*cfg.LowerBound), mid*cfg.UpperBound)

	quotes := make([]Quote, 0, 2*len(ladder))
	for _, r := range ladder {
		if r.DollarSize < 1 {
			continue
		}
		qty := r.DollarSize / mid
		ctx := order.Context{MarketMid: mid, QuoteWidth: r.Depth, Level: r.level()}
		quotes = append(quotes,
			Quote{Side: order.SideBuy, Price: bounded * (1 - r.Depth), Quantity: qty, Context: ctx},
			Quote{Side: order.SideSell, Price: bounded * (1 + r.Depth), Quantity: qty, Context: ctx},
		)
	}
	f.logger.Debug("linear fader quotes",
		zap.Float64("mid", mid),
		zap.Float64("fair", fair),
		zap.Float64("bounded_fair", bounded),
		zap.Int("quotes", len(quotes)))
	return quotes
}
