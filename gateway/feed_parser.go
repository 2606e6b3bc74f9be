package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"basis-trader-go/internal/engine"
	"basis-trader-go/market"
)

// ErrUnknownMessage 非行情消息（心跳、回执等）
var ErrUnknownMessage = errors.New("unknown feed message")

// FeedMessage 标准化推送消息，所有交易所适配层输出同一格式。
//
//	{"type":"book","exchange_id":"bybit","instrument_id":"BTC/USDT","ts":1700000000000,
//	 "bids":[[100.1,2]],"asks":[[100.2,1]],"funding_rate":0.0001}
type FeedMessage struct {
	Type         string       `json:"type"` // book / funding / trade / position / fill
	ExchangeID   string       `json:"exchange_id"`
	InstrumentID string       `json:"instrument_id"`
	Ts           int64        `json:"ts"` // 毫秒
	Bids         [][2]float64 `json:"bids,omitempty"`
	Asks         [][2]float64 `json:"asks,omitempty"`
	FundingRate  *float64     `json:"funding_rate,omitempty"`
	Rate         float64      `json:"rate,omitempty"`
	Price        float64      `json:"price,omitempty"`
	Qty          float64      `json:"qty,omitempty"`
	Position     float64      `json:"position,omitempty"`
	OrderID      string       `json:"order_id,omitempty"` // fill 回报
}

func levels(raw [][2]float64) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, l := range raw {
		out = append(out, market.Level{Price: l[0], Size: l[1]})
	}
	return out
}

func decodeFeedMessage(raw []byte) (FeedMessage, error) {
	var msg FeedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode feed message: %w", err)
	}
	return msg, nil
}

// ParseFeedMessage 解析一条推送为引擎事件
func ParseFeedMessage(raw []byte) (engine.Event, error) {
	msg, err := decodeFeedMessage(raw)
	if err != nil {
		return nil, err
	}
	return msg.Event()
}

// Event 转换为引擎事件；自有成交回报不是引擎事件。
func (msg FeedMessage) Event() (engine.Event, error) {
	switch msg.Type {
	case "book":
		if msg.ExchangeID == "" || msg.InstrumentID == "" {
			return nil, errors.New("book message without market")
		}
		return engine.BookTick{
			ExchangeID:   msg.ExchangeID,
			InstrumentID: msg.InstrumentID,
			Book: market.BookSnapshot{
				Bids:        levels(msg.Bids),
				Asks:        levels(msg.Asks),
				TimestampMs: msg.Ts,
				FundingRate: msg.FundingRate,
			},
		}, nil
	case "funding":
		return engine.FundingUpdate{ExchangeID: msg.ExchangeID, InstrumentID: msg.InstrumentID, Rate: msg.Rate}, nil
	case "trade":
		ts := time.Now()
		if msg.Ts > 0 {
			ts = time.UnixMilli(msg.Ts)
		}
		return engine.MarketFill{
			ExchangeID:   msg.ExchangeID,
			InstrumentID: msg.InstrumentID,
			Price:        msg.Price,
			Qty:          msg.Qty,
			Ts:           ts,
		}, nil
	case "position":
		return engine.PositionUpdate{NewPosition: msg.Position}, nil
	default:
		return nil, ErrUnknownMessage
	}
}
