package strategy

import (
	"github.com/shopspring/decimal"

	"basis-trader-go/order"
)

// RoundPrice 按最小价格单位向保守方向取整：买单向下，卖单向上。
func RoundPrice(side order.Side, price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	steps := p.Div(t)
	switch side {
	case order.SideBuy:
		steps = steps.Floor()
	case order.SideSell:
		steps = steps.Ceil()
	default:
		return price
	}
	f, _ := steps.Mul(t).Float64()
	return f
}

// RoundSize 数量四舍五入到 step 的整数倍。
func RoundSize(size, step float64) float64 {
	if step <= 0 || size == 0 {
		return size
	}
	s := decimal.NewFromFloat(size)
	t := decimal.NewFromFloat(step)
	f, _ := s.Div(t).Round(0).Mul(t).Float64()
	return f
}
