package market

import "time"

// Trade 归一化后的公共成交。
type Trade struct {
	Price float64   `json:"price"`
	Qty   float64   `json:"amount"`
	Ts    time.Time `json:"-"`
}

// Notional 成交额
func (t Trade) Notional() float64 { return t.Price * t.Qty }
