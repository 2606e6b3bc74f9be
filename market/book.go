package market

import (
	"errors"
	"math"
	"time"
)

// ErrMalformedBook 快照中存在非法价位。
var ErrMalformedBook = errors.New("malformed order book")

// Level 单个价位
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot 已归一化的深度快照。Bids 价格降序，Asks 价格升序。
type BookSnapshot struct {
	Bids        []Level  `json:"bids"`
	Asks        []Level  `json:"asks"`
	TimestampMs int64    `json:"timestamp,omitempty"` // 交易所时间戳（毫秒），0 表示缺失
	FundingRate *float64 `json:"funding_rate,omitempty"`
}

// Validate 检查价位合法性与排序（买盘降序、卖盘升序）。
func (b BookSnapshot) Validate() error {
	for i, side := range [][]Level{b.Bids, b.Asks} {
		for j, lv := range side {
			if math.IsNaN(lv.Price) || math.IsInf(lv.Price, 0) || lv.Price <= 0 {
				return ErrMalformedBook
			}
			if math.IsNaN(lv.Size) || lv.Size < 0 {
				return ErrMalformedBook
			}
			if j == 0 {
				continue
			}
			prev := side[j-1].Price
			if (i == 0 && lv.Price > prev) || (i == 1 && lv.Price < prev) {
				return ErrMalformedBook
			}
		}
	}
	return nil
}

// BBO 某一时刻一致的最优买卖价快照。
type BBO struct {
	Bid       float64
	Ask       float64
	HasBid    bool
	HasAsk    bool
	UpdatedAt time.Time
}

// Mid 双边都存在时返回中间价。
func (b BBO) Mid() (float64, bool) {
	if !b.HasBid || !b.HasAsk {
		return 0, false
	}
	return (b.Bid + b.Ask) / 2, true
}

// Spread 返回相对价差 2(ask-bid)/(bid+ask)。
func (b BBO) Spread() (float64, bool) {
	if !b.HasBid || !b.HasAsk || b.Bid+b.Ask == 0 {
		return 0, false
	}
	return 2 * (b.Ask - b.Bid) / (b.Bid + b.Ask), true
}
