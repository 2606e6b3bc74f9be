package strategy

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"basis-trader-go/market"
	"basis-trader-go/order"
)

// TakerHedgerConfig 吃单对冲参数；为 nil 时对冲器关闭。
type TakerHedgerConfig struct {
	MaxCross           float64       `yaml:"max_cross"`  // 相对盘口最优价最多穿越的比例
	MaxLevels          int           `yaml:"max_levels"` // 最多吃几档
	MinOrderDollarSize float64       `yaml:"min_order_dollar_size"`
	MaxOrderDollarSize float64       `yaml:"max_order_dollar_size"`
	OrderInterval      time.Duration `yaml:"order_interval"`
}

// HedgeIntent IOC 限价对冲意向
type HedgeIntent struct {
	Side        order.Side
	Price       float64
	Quantity    float64
	TimeInForce order.TimeInForce
}

// TakerHedger 记录未对冲的残余风险，按间隔发出吃单意向。
type TakerHedger struct {
	cfg    TakerHedgerConfig
	sw     Switch
	logger *zap.Logger

	mu       sync.Mutex
	residual float64
	lastSent time.Time
}

// NewTakerHedger 创建对冲器
func NewTakerHedger(cfg TakerHedgerConfig, sw Switch, logger *zap.Logger) *TakerHedger {
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("taker hedger enabled",
		zap.Float64("max_cross", cfg.MaxCross),
		zap.Int("max_levels", cfg.MaxLevels),
		zap.Float64("min_order_dollar_size", cfg.MinOrderDollarSize),
		zap.Float64("max_order_dollar_size", cfg.MaxOrderDollarSize),
		zap.Duration("order_interval", cfg.OrderInterval))
	return &TakerHedger{cfg: cfg, sw: sw, logger: logger}
}

// OnResidualRisk 覆盖记录当前残余 delta
func (h *TakerHedger) OnResidualRisk(delta float64) {
	h.mu.Lock()
	h.residual = delta
	h.mu.Unlock()
}

// Residual 当前残余 delta
func (h *TakerHedger) Residual() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.residual
}

// Intents 每个间隔至多一笔：方向与残余 delta 相反，限价为对手最优价穿越 MaxCross，
// 数量受限价以内 MaxLevels 档的可成交量及美元规模上下限约束。
func (h *TakerHedger) Intents(book market.BookSnapshot, now time.Time) []HedgeIntent {
	if h.sw != nil && !h.sw.IsEnabled() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.residual == 0 || (!h.lastSent.IsZero() && now.Sub(h.lastSent) < h.cfg.OrderInterval) {
		return nil
	}

	side := order.SideSell
	levels := book.Bids
	if h.residual < 0 {
		side = order.SideBuy
		levels = book.Asks
	}
	if len(levels) == 0 {
		return nil
	}
	touch := levels[0].Price
	limit := touch * (1 + awaySign(side.Opposite())*h.cfg.MaxCross)

	var available float64
	for i, lvl := range levels {
		if i >= h.cfg.MaxLevels || isMoreAggressive(limit, lvl.Price, side.Opposite()) {
			break
		}
		available += lvl.Size
	}
	qty := math.Min(math.Abs(h.residual), available)
	if h.cfg.MaxOrderDollarSize > 0 {
		qty = math.Min(qty, h.cfg.MaxOrderDollarSize/touch)
	}
	if qty <= 0 || qty*touch < h.cfg.MinOrderDollarSize {
		return nil
	}

	h.residual += side.Sign() * qty
	h.lastSent = now
	h.logger.Info("taker hedge intent",
		zap.String("side", string(side)),
		zap.Float64("price", limit),
		zap.Float64("qty", qty),
		zap.Float64("residual", h.residual))
	return []HedgeIntent{{Side: side, Price: limit, Quantity: qty, TimeInForce: order.IOC}}
}
