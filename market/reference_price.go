package market

import (
	"math"

	"go.uber.org/zap"
)

// ReferenceComponent 参考价的一个组成市场。Multiplier 为正表示相乘，为负表示相除。
type ReferenceComponent struct {
	Data       *MarketData
	Multiplier float64
}

// ReferencePrice 由多个市场合成的参考价，例如 ETH/BTC × BTC/USDT。
type ReferencePrice struct {
	components []ReferenceComponent
	logger     *zap.Logger
}

// NewReferencePrice 创建合成参考价
func NewReferencePrice(logger *zap.Logger, components ...ReferenceComponent) *ReferencePrice {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, c := range components {
		if c.Data == nil {
			continue
		}
		logger.Info("reference price component",
			zap.String("market", c.Data.Spec().ID()),
			zap.Float64("multiplier", c.Multiplier))
	}
	return &ReferencePrice{components: components, logger: logger}
}

// BidAsk 合成最优买卖价。任一组成市场缺价或过期时返回 false。
func (r *ReferencePrice) BidAsk() (bid, ask float64, ok bool) {
	if len(r.components) == 0 {
		return 0, 0, false
	}
	bid, ask = 1, 1
	for _, c := range r.components {
		if c.Data == nil || c.Data.IsStale() {
			return 0, 0, false
		}
		bbo := c.Data.BBO()
		if !bbo.HasBid || !bbo.HasAsk {
			r.logger.Debug("reference component has no bbo", zap.String("market", c.Data.Name()))
			return 0, 0, false
		}
		m := math.Abs(c.Multiplier)
		if c.Multiplier >= 0 {
			bid *= bbo.Bid * m
			ask *= bbo.Ask * m
		} else {
			bid /= bbo.Bid * m
			ask /= bbo.Ask * m
		}
	}
	// 相除会使买卖颠倒
	if bid > ask {
		bid, ask = ask, bid
	}
	return bid, ask, true
}

// MidPrice 合成中间价
func (r *ReferencePrice) MidPrice() (float64, bool) {
	bid, ask, ok := r.BidAsk()
	if !ok {
		return 0, false
	}
	return (bid + ask) / 2, true
}
