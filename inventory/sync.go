package inventory

import (
	"context"
	"time"
)

// RiskSink 接收持仓与盈亏快照的一方
type RiskSink interface {
	UpdateNetSpotPositions(positions map[string]float64)
	UpdatePnL(pnl float64)
	MarketMid() (float64, bool)
}

// Sync 周期任务：把账本的净持仓与盈亏推给风控。
type Sync struct {
	Ledger       *Ledger
	Risk         RiskSink
	InstrumentID string
	Every        time.Duration
}

func (s *Sync) Name() string { return "position_sync" }

func (s *Sync) Interval() time.Duration {
	if s.Every <= 0 {
		return 5 * time.Second
	}
	return s.Every
}

// Tick 推送一次快照；mid 缺失时只推持仓。
func (s *Sync) Tick(ctx context.Context) error {
	if s.Ledger == nil || s.Risk == nil {
		return nil
	}
	positions, err := s.Ledger.NetSpotPositions(ctx)
	if err != nil {
		return err
	}
	s.Risk.UpdateNetSpotPositions(positions)
	if mid, ok := s.Risk.MarketMid(); ok {
		s.Risk.UpdatePnL(s.Snapshot(mid))
	}
	return nil
}

// Snapshot 给定 mid 下的总盈亏
func (s *Sync) Snapshot(mid float64) float64 {
	if s.Ledger == nil {
		return 0
	}
	return s.Ledger.PnL(s.InstrumentID, mid)
}
