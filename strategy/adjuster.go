package strategy

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"basis-trader-go/market"
	"basis-trader-go/metrics"
	"basis-trader-go/order"
)

// MarketView 报价市场的盘口与精度
type MarketView interface {
	BestBid() (float64, bool)
	BestAsk() (float64, bool)
	Spec() market.Spec
}

// FeeSource 账户 maker 费率
type FeeSource interface {
	MakerFee(accountID string) float64
}

// HistoricalVWAPSource 自身历史成交均价
type HistoricalVWAPSource interface {
	HistoricalBuySellVWAPs() (buy, sell float64, hasBuy, hasSell bool)
}

// AdjusterConfig 报价调整参数
type AdjusterConfig struct {
	ImproveBBO          bool    `yaml:"improve_bbo"`
	RandomizeSize       bool    `yaml:"randomize_size"`
	VolatilityThreshold float64 `yaml:"volatility_threshold"` // 年化波动率，默认 3.0
	SpreadThreshold     float64 `yaml:"spread_threshold"`     // 默认 0.95*2*最窄档深度
}

// AdjusterDeps 可选依赖，均允许为 nil。
type AdjusterDeps struct {
	Fees       FeeSource
	Prices     *metrics.Collector // mid 采样
	Spreads    *metrics.Collector // 相对价差采样
	MarketVWAP market.VWAP
	TradeVWAP  HistoricalVWAPSource
}

// QuoteAdjuster 按盘口微观结构修正原始报价：VWAP 回退、波动加宽、
// BBO 钳制、手续费与精度取整。
type QuoteAdjuster struct {
	deps   AdjusterDeps
	logger *zap.Logger
	rand   func() float64

	mu  sync.RWMutex
	cfg AdjusterConfig
}

// NewQuoteAdjuster 创建调整器。ladder 用于推导默认价差阈值。
func NewQuoteAdjuster(cfg AdjusterConfig, ladder Ladder, deps AdjusterDeps, logger *zap.Logger) *QuoteAdjuster {
	if cfg.VolatilityThreshold <= 0 {
		cfg.VolatilityThreshold = 3.0
	}
	if cfg.SpreadThreshold <= 0 {
		if d, ok := ladder.MinDepth(); ok {
			cfg.SpreadThreshold = 0.95 * 2 * d
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("quote adjuster initialized",
		zap.Bool("improve_bbo", cfg.ImproveBBO),
		zap.Bool("randomize_size", cfg.RandomizeSize),
		zap.Float64("volatility_threshold", cfg.VolatilityThreshold),
		zap.Float64("spread_threshold", cfg.SpreadThreshold))
	return &QuoteAdjuster{deps: deps, logger: logger, rand: rand.Float64, cfg: cfg}
}

// SetRand 注入随机源，返回 [0,1)。
func (a *QuoteAdjuster) SetRand(fn func() float64) { a.rand = fn }

// SetConfig 热更新
func (a *QuoteAdjuster) SetConfig(cfg AdjusterConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.VolatilityThreshold <= 0 {
		cfg.VolatilityThreshold = a.cfg.VolatilityThreshold
	}
	if cfg.SpreadThreshold <= 0 {
		cfg.SpreadThreshold = a.cfg.SpreadThreshold
	}
	a.cfg = cfg
}

// Config 当前参数
func (a *QuoteAdjuster) Config() AdjusterConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Volatility 价格采样的年化波动率
func (a *QuoteAdjuster) Volatility() float64 {
	if a.deps.Prices == nil {
		return 0
	}
	return market.AnnualizedVolatility(a.deps.Prices.Data(), a.deps.Prices.Interval())
}

// MaxSpread 价差采样窗口内最大值
func (a *QuoteAdjuster) MaxSpread() float64 {
	if a.deps.Spreads == nil {
		return 0
	}
	return market.MaxValue(a.deps.Spreads.Data())
}

// Adjust 对每个报价依次执行：
// 历史成交均价回退、市场 VWAP 回退、波动/价差加宽、BBO 钳制、
// 数量随机化、手续费、精度取整。取整后数量为 0 的报价被丢弃。
func (a *QuoteAdjuster) Adjust(md MarketView, accountID string, quotes []Quote) []Quote {
	if len(quotes) == 0 || md == nil {
		return nil
	}
	cfg := a.Config()
	spec := md.Spec()
	bestBid, hasBid := md.BestBid()
	bestAsk, hasAsk := md.BestAsk()

	vol := a.Volatility()
	maxSpread := a.MaxSpread()
	volatile := vol > cfg.VolatilityThreshold
	wide := cfg.SpreadThreshold > 0 && maxSpread > cfg.SpreadThreshold
	if volatile {
		a.logger.Info("market volatile, widening quotes",
			zap.Float64("volatility", vol), zap.Float64("threshold", cfg.VolatilityThreshold))
	}
	if wide {
		a.logger.Info("market spread wide, widening quotes",
			zap.Float64("max_spread", maxSpread), zap.Float64("threshold", cfg.SpreadThreshold))
	}

	var marketVWAP float64
	var hasMarketVWAP bool
	if a.deps.MarketVWAP != nil {
		marketVWAP, hasMarketVWAP = a.deps.MarketVWAP.VWAP()
	}
	var histBuy, histSell float64
	var hasHistBuy, hasHistSell bool
	if a.deps.TradeVWAP != nil {
		histBuy, histSell, hasHistBuy, hasHistSell = a.deps.TradeVWAP.HistoricalBuySellVWAPs()
	}
	var fee float64
	if a.deps.Fees != nil {
		fee = max(a.deps.Fees.MakerFee(accountID), 0)
	}

	out := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		nq := q
		width := nq.Context.QuoteWidth
		away := awaySign(nq.Side)

		// 买单不高于历史卖出均价，卖单不低于历史买入均价
		breakEven, hasBreakEven := histSell, hasHistSell
		if nq.Side == order.SideSell {
			breakEven, hasBreakEven = histBuy, hasHistBuy
		}
		if hasBreakEven && breakEven > 0 && isMoreAggressive(nq.Price, breakEven, nq.Side) {
			nq.Price = breakEven * (1 + away*width)
			a.logger.Debug("quote backed off to historical vwap",
				zap.String("side", string(nq.Side)), zap.Float64("from", q.Price), zap.Float64("to", nq.Price))
		}
		if hasMarketVWAP && marketVWAP > 0 && isMoreAggressive(nq.Price, marketVWAP, nq.Side) {
			nq.Price = marketVWAP * (1 + away*width)
			a.logger.Debug("quote backed off to market vwap",
				zap.String("side", string(nq.Side)), zap.Float64("vwap", marketVWAP), zap.Float64("to", nq.Price))
		}
		if volatile || wide {
			nq.Price += away * nq.Context.MarketMid * width
		}
		if !cfg.ImproveBBO {
			if nq.Side == order.SideBuy && hasBid && nq.Price > bestBid {
				nq.Price = bestBid
			} else if nq.Side == order.SideSell && hasAsk && nq.Price < bestAsk {
				nq.Price = bestAsk
			}
		}
		if cfg.RandomizeSize {
			nq.Quantity *= 0.95 + 0.05*a.rand()
		}
		nq.Price += away * nq.Price * fee

		nq.Price = RoundPrice(nq.Side, nq.Price, spec.PricePrecision)
		if spec.MinNotional > 0 && nq.Price > 0 && nq.Price*nq.Quantity < spec.MinNotional {
			nq.Quantity = 1.25 * spec.MinNotional / nq.Price
		}
		nq.Quantity = RoundSize(nq.Quantity, spec.SizePrecision)
		if nq.Quantity <= 0 || nq.Price <= 0 {
			a.logger.Debug("quote dropped after rounding", zap.Stringer("quote", q))
			continue
		}
		out = append(out, nq)
	}
	return out
}
