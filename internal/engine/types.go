package engine

import (
	"errors"
	"fmt"
	"time"

	"basis-trader-go/market"
	"basis-trader-go/strategy"
)

// InstrumentClass 品种类别
type InstrumentClass string

const (
	ClassSpot InstrumentClass = "SPOT"
	ClassPerp InstrumentClass = "PERP"
)

// MarketSpecs 参与基差交易的一个市场
type MarketSpecs struct {
	ExchangeID       string          `yaml:"exchange_id"`
	InstrumentID     string          `yaml:"instrument_id"`
	Class            InstrumentClass `yaml:"instrument_class"`
	TradingAccountID string          `yaml:"trading_account_id"`
}

// MarketID exchange-instrument
func (m MarketSpecs) MarketID() string {
	return market.MarketID(m.ExchangeID, m.InstrumentID)
}

// ConditionsState 交易条件状态
type ConditionsState int

const (
	ConditionsUnknown ConditionsState = iota
	ConditionsMet
	ConditionsNotMet
)

func (s ConditionsState) String() string {
	switch s {
	case ConditionsMet:
		return "ConditionsMet"
	case ConditionsNotMet:
		return "ConditionsNotMet"
	default:
		return "ConditionsUnknown"
	}
}

// Config 编排器参数
type Config struct {
	ReferenceMarket         MarketSpecs
	QuotingMarket           MarketSpecs
	FundingRateThreshold    float64
	BasisRateThreshold      float64
	MarginUsageThreshold    float64
	PositionChangeThreshold float64
	Ladder                  strategy.Ladder

	// 可选门槛，<=0 表示关闭
	UnhedgedRiskThresholdUSD float64
	TargetPositionUSD        float64

	UpdateInterval time.Duration // Run 中定时刷新报价，默认 1s
}

// Validate 检查市场配置与阈值
func (c Config) Validate() error {
	for name, m := range map[string]MarketSpecs{"reference": c.ReferenceMarket, "quoting": c.QuotingMarket} {
		if m.ExchangeID == "" || m.InstrumentID == "" || m.TradingAccountID == "" {
			return fmt.Errorf("%s market: exchange, instrument and account are required", name)
		}
		if m.Class != ClassSpot && m.Class != ClassPerp {
			return fmt.Errorf("%s market: unknown instrument class %q", name, m.Class)
		}
	}
	if c.ReferenceMarket.Class == c.QuotingMarket.Class {
		return errors.New("reference and quoting markets must be one SPOT and one PERP")
	}
	if c.FundingRateThreshold < 0 || c.BasisRateThreshold < 0 || c.MarginUsageThreshold <= 0 {
		return errors.New("funding/basis thresholds must be >= 0 and margin usage threshold > 0")
	}
	if c.PositionChangeThreshold <= 0 {
		return errors.New("position change threshold must be > 0")
	}
	return c.Ladder.Validate()
}

// Tunables 可热更新的参数
type Tunables struct {
	FundingRateThreshold    float64
	BasisRateThreshold      float64
	MarginUsageThreshold    float64
	PositionChangeThreshold float64
	Ladder                  strategy.Ladder
}

// Event 输入事件，每种输入形状一个类型
type Event interface{ isEvent() }

// BookTick 标准化盘口快照
type BookTick struct {
	ExchangeID   string
	InstrumentID string
	Book         market.BookSnapshot
}

// FundingUpdate 资金费率
type FundingUpdate struct {
	ExchangeID   string
	InstrumentID string
	Rate         float64
}

// MarketFill 市场成交
type MarketFill struct {
	ExchangeID   string
	InstrumentID string
	Price        float64
	Qty          float64
	Ts           time.Time
}

// PositionUpdate 外部上报的最新净持仓
type PositionUpdate struct {
	NewPosition float64
}

func (BookTick) isEvent()       {}
func (FundingUpdate) isEvent()  {}
func (MarketFill) isEvent()     {}
func (PositionUpdate) isEvent() {}

// Snapshot 最近一次条件计算的结果，缺失值为 nil
type Snapshot struct {
	State       ConditionsState
	FundingRate *float64
	Basis       *float64
	MarginUsage *float64
	PerpMid     *float64
	SpotMid     *float64
	Direction   string
}
