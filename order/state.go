package order

import (
	"fmt"
	"time"
)

// Status 订单生命周期状态
type Status string

const (
	StatusUnsubmitted     Status = "Unsubmitted"      // 已创建未发送
	StatusSubmitted       Status = "Submitted"        // 已发送，等待确认
	StatusAcknowledged    Status = "Acknowledged"     // 交易所已确认
	StatusRejected        Status = "Rejected"         // 被拒绝
	StatusExpired         Status = "Expired"          // 未成交过期
	StatusPendingCancel   Status = "Pending Cancel"   // 撤单中
	StatusPartiallyFilled Status = "Partially Filled" // 部分成交
	StatusFilled          Status = "Filled"           // 完全成交
	StatusCancelled       Status = "Cancelled"        // 已撤销
	StatusCancelRejected  Status = "Cancel Rejected"  // 撤单被拒
)

// Type 订单类型
type Type string

const (
	TypeMarket    Type = "Market"
	TypeLimit     Type = "Limit"
	TypeStop      Type = "Stop"
	TypeStopLimit Type = "Stop Limit"
)

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite 反方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign 买为 +1，卖为 -1
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// TimeInForce 有效期类型
type TimeInForce string

const (
	GTC TimeInForce = "Good Till Cancelled"
	IOC TimeInForce = "Immediate or Cancel"
	FOK TimeInForce = "Fill or Kill"
	DAY TimeInForce = "Day Order"
)

// Context 下单时的报价上下文。
// QuoteWidth 为实际使用的报价深度；Level 为配置阶梯中的档位，作为节流匹配的身份键。
type Context struct {
	MarketMid  float64 `json:"market_mid"`
	QuoteWidth float64 `json:"quote_width"`
	Level      float64 `json:"level"`
	Tag        string  `json:"tag,omitempty"`
}

// HedgeContext 对冲单上下文
var HedgeContext = Context{Tag: "hedge"}

func (c Context) String() string {
	if c.Tag != "" {
		return "Context(" + c.Tag + ")"
	}
	return fmt.Sprintf("Context(mid:%.8g, width:%g, level:%g)", c.MarketMid, c.QuoteWidth, c.Level)
}

// Order 订单快照
type Order struct {
	ID             string
	AccountID      string
	InstrumentID   string
	Type           Type
	Side           Side
	Price          float64
	Quantity       float64
	FilledQuantity float64
	TimeInForce    TimeInForce
	PostOnly       bool
	Context        Context
	Status         Status
	CreatedAt      time.Time
	LastError      string
}

// Remaining 未成交数量
func (o Order) Remaining() float64 {
	r := o.Quantity - o.FilledQuantity
	if r < 0 {
		return 0
	}
	return r
}

func (o Order) String() string {
	return fmt.Sprintf("Order(%s %s/%s %s %s %g@%g filled=%g %s %s %s)",
		o.ID, o.AccountID, o.InstrumentID, o.Type, o.Side, o.Quantity, o.Price,
		o.FilledQuantity, o.TimeInForce, o.Status, o.Context)
}
