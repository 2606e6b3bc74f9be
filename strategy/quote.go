package strategy

import (
	"errors"
	"fmt"
	"math"

	"basis-trader-go/order"
)

// Quote 意向报价
type Quote struct {
	Side     order.Side
	Price    float64
	Quantity float64
	Context  order.Context
}

func (q Quote) String() string {
	return fmt.Sprintf("Quote(%s %g@%g %s)", q.Side, q.Quantity, q.Price, q.Context)
}

// Notional 报价名义金额
func (q Quote) Notional() float64 { return q.Price * q.Quantity }

// Rung 报价阶梯中的一档：距公允价的相对深度与美元规模。
// Level 为配置中的原始深度，Depth 被基差平移后 Level 保持不变。
type Rung struct {
	Depth      float64 `yaml:"depth"`
	DollarSize float64 `yaml:"dollar_size"`
	Level      float64 `yaml:"-"`
}

func (r Rung) level() float64 {
	if r.Level != 0 {
		return r.Level
	}
	return r.Depth
}

// Ladder 有序的报价阶梯，按配置顺序保存，不以浮点深度作键。
type Ladder []Rung

// NewLadder 复制 rungs 并固定每档的 Level。
func NewLadder(rungs ...Rung) Ladder {
	l := make(Ladder, len(rungs))
	for i, r := range rungs {
		r.Level = r.level()
		l[i] = r
	}
	return l
}

// Validate 深度必须为非负有限数，规模非负。
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return errors.New("ladder is empty")
	}
	for i, r := range l {
		if math.IsNaN(r.Depth) || math.IsInf(r.Depth, 0) || r.Depth < 0 {
			return fmt.Errorf("rung %d: invalid depth %g", i, r.Depth)
		}
		if math.IsNaN(r.DollarSize) || r.DollarSize < 0 {
			return fmt.Errorf("rung %d: invalid dollar size %g", i, r.DollarSize)
		}
	}
	return nil
}

// Shift 每档深度加上 offset，返回新阶梯。
func (l Ladder) Shift(offset float64) Ladder {
	out := make(Ladder, len(l))
	for i, r := range l {
		out[i] = Rung{Depth: r.Depth + offset, DollarSize: r.DollarSize, Level: r.level()}
	}
	return out
}

// MinDepth 最窄一档的深度
func (l Ladder) MinDepth() (float64, bool) {
	if len(l) == 0 {
		return 0, false
	}
	m := l[0].Depth
	for _, r := range l[1:] {
		m = math.Min(m, r.Depth)
	}
	return m, true
}

// MaxDollarSize 最大一档的美元规模
func (l Ladder) MaxDollarSize() float64 {
	var m float64
	for _, r := range l {
		m = math.Max(m, r.DollarSize)
	}
	return m
}

// isMoreAggressive 买单价格更高、卖单价格更低即更激进。
func isMoreAggressive(price, ref float64, side order.Side) bool {
	switch side {
	case order.SideBuy:
		return price > ref
	case order.SideSell:
		return price < ref
	}
	return false
}

// awaySign 远离市场方向：买为 -1，卖为 +1。
func awaySign(side order.Side) float64 {
	if side == order.SideBuy {
		return -1
	}
	return 1
}
