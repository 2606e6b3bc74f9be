package market

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HistoricalVWAP 历史成交的买卖两侧均价，缺失一侧为 nil。
type HistoricalVWAP struct {
	Buy  *float64
	Sell *float64
}

// TradeRepository 历史成交查询
type TradeRepository interface {
	GetVWAPOverPeriod(ctx context.Context, instrumentID string, accountIDs []string, lookbackDays int) (HistoricalVWAP, error)
}

// TradeVWAPConfig 历史成交均价配置
type TradeVWAPConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LookbackDays   int           `yaml:"lookback_days"`
	QueryFrequency time.Duration `yaml:"query_frequency"`
}

// TradeVWAP 定期查询自身历史成交的买卖均价，作为报价的保本参考。
// 由 scheduler 按 QueryFrequency 调度。
type TradeVWAP struct {
	cfg          TradeVWAPConfig
	instrumentID string
	accountIDs   []string
	repo         TradeRepository
	logger       *zap.Logger

	mu      sync.RWMutex
	buy     float64
	sell    float64
	hasBuy  bool
	hasSell bool
}

// NewTradeVWAP 创建历史成交均价模块
func NewTradeVWAP(cfg TradeVWAPConfig, instrumentID string, accountIDs []string, repo TradeRepository, logger *zap.Logger) *TradeVWAP {
	if cfg.QueryFrequency <= 0 {
		cfg.QueryFrequency = 5 * time.Minute
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("trade vwap initialized",
		zap.String("instrument", instrumentID),
		zap.Strings("accounts", accountIDs),
		zap.Int("lookback_days", cfg.LookbackDays),
		zap.Duration("query_frequency", cfg.QueryFrequency))
	return &TradeVWAP{
		cfg:          cfg,
		instrumentID: instrumentID,
		accountIDs:   accountIDs,
		repo:         repo,
		logger:       logger,
	}
}

// Name 任务名
func (t *TradeVWAP) Name() string { return "trade_vwap" }

// Interval 查询周期
func (t *TradeVWAP) Interval() time.Duration { return t.cfg.QueryFrequency }

// Tick 供调度器调用
func (t *TradeVWAP) Tick(ctx context.Context) error {
	t.Refresh(ctx)
	return nil
}

// Refresh 查询一次。查询失败时两侧均视为缺失，不返回错误。
func (t *TradeVWAP) Refresh(ctx context.Context) {
	var res HistoricalVWAP
	if t.repo != nil {
		var err error
		res, err = t.repo.GetVWAPOverPeriod(ctx, t.instrumentID, t.accountIDs, t.cfg.LookbackDays)
		if err != nil {
			t.logger.Warn("trade vwap query failed",
				zap.String("instrument", t.instrumentID),
				zap.Error(err))
			res = HistoricalVWAP{}
		}
	}

	t.mu.Lock()
	t.buy, t.hasBuy = deref(res.Buy)
	t.sell, t.hasSell = deref(res.Sell)
	t.mu.Unlock()

	t.logger.Info("trade vwap refreshed",
		zap.String("instrument", t.instrumentID),
		zap.Any("buy", res.Buy),
		zap.Any("sell", res.Sell))
}

// HistoricalBuySellVWAPs 返回最近一次查询结果
func (t *TradeVWAP) HistoricalBuySellVWAPs() (buy, sell float64, hasBuy, hasSell bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.buy, t.sell, t.hasBuy, t.hasSell
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
