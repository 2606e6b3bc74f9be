// Package inventory 维护本地账户账本：余额、净持仓、费率、保证金使用率与成交记录。
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"basis-trader-go/market"
	"basis-trader-go/order"
)

var ErrUnknownAccount = errors.New("unknown account")

// Fill 一笔自有成交
type Fill struct {
	AccountID    string
	InstrumentID string
	Side         order.Side
	Qty          float64
	Price        float64
	Ts           time.Time
}

type account struct {
	balances    map[string]float64
	makerFees   map[string]float64
	marginUsage *float64
}

// Ledger 本地账本，满足风控的 AccountManager、编排器的 MarginSource
// 以及 TradeVWAP 的成交仓库接口。
type Ledger struct {
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	accounts  map[string]*account
	positions map[string]float64 // 币种 -> 全账户净持仓
	trackers  map[string]*Tracker
	fills     []Fill
	retention time.Duration
	onChange  func(map[string]float64)
}

// NewLedger 创建账本；成交记录默认保留 30 天。
func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		logger:    logger,
		now:       time.Now,
		accounts:  make(map[string]*account),
		positions: make(map[string]float64),
		trackers:  make(map[string]*Tracker),
		retention: 30 * 24 * time.Hour,
	}
}

// SetClock 测试注入
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// SetPositionListener 持仓变化后回调最新净持仓快照
func (l *Ledger) SetPositionListener(fn func(map[string]float64)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *Ledger) accountLocked(id string) *account {
	a, ok := l.accounts[id]
	if !ok {
		a = &account{balances: make(map[string]float64), makerFees: make(map[string]float64)}
		l.accounts[id] = a
	}
	return a
}

// AddAccount 登记账户
func (l *Ledger) AddAccount(id string) {
	l.mu.Lock()
	l.accountLocked(id)
	l.mu.Unlock()
}

// SetBalance 设置账户某币种余额
func (l *Ledger) SetBalance(accountID, ccy string, amount float64) {
	l.mu.Lock()
	l.accountLocked(accountID).balances[ccy] = amount
	l.mu.Unlock()
}

// Balance 账户某币种余额
func (l *Ledger) Balance(accountID, ccy string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	return a.balances[ccy], nil
}

// SetMakerFee 设置账户在某品种上的挂单费率
func (l *Ledger) SetMakerFee(accountID, instrumentID string, fee float64) {
	l.mu.Lock()
	l.accountLocked(accountID).makerFees[instrumentID] = fee
	l.mu.Unlock()
}

// MakerFee 账户在某品种上的挂单费率
func (l *Ledger) MakerFee(accountID, instrumentID string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return 0, false
	}
	fee, ok := a.makerFees[instrumentID]
	return fee, ok
}

// SetMarginUsage 更新账户保证金使用率
func (l *Ledger) SetMarginUsage(accountID string, usage float64) {
	l.mu.Lock()
	l.accountLocked(accountID).marginUsage = &usage
	l.mu.Unlock()
}

// MarginUsage 账户保证金使用率，未上报时缺失
func (l *Ledger) MarginUsage(accountID string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[accountID]
	if !ok || a.marginUsage == nil {
		return 0, false
	}
	return *a.marginUsage, true
}

// SetPosition 设置某币种净持仓（启动时从交易所同步）
func (l *Ledger) SetPosition(ccy string, qty float64) {
	l.mu.Lock()
	l.positions[ccy] = qty
	snapshot, fn := l.snapshotLocked(), l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

// NetSpotPositions 全账户按币种汇总的净持仓
func (l *Ledger) NetSpotPositions(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked(), nil
}

func (l *Ledger) snapshotLocked() map[string]float64 {
	out := make(map[string]float64, len(l.positions))
	for ccy, qty := range l.positions {
		out[ccy] = qty
	}
	return out
}

// RecordFill 记账一笔成交：更新余额、净持仓、成本与成交记录。
func (l *Ledger) RecordFill(f Fill) error {
	base, quote, ok := strings.Cut(f.InstrumentID, "/")
	if !ok {
		return fmt.Errorf("instrument %q is not BASE/QUOTE", f.InstrumentID)
	}
	if f.Qty <= 0 {
		return fmt.Errorf("fill qty must be positive, got %g", f.Qty)
	}
	if f.Ts.IsZero() {
		f.Ts = l.now()
	}
	signed := f.Side.Sign() * f.Qty

	l.mu.Lock()
	a := l.accountLocked(f.AccountID)
	a.balances[base] += signed
	a.balances[quote] -= signed * f.Price
	l.positions[base] += signed
	tr, ok := l.trackers[f.InstrumentID]
	if !ok {
		tr = &Tracker{}
		l.trackers[f.InstrumentID] = tr
	}
	tr.Update(signed, f.Price)
	l.fills = append(l.fills, f)
	l.pruneLocked(l.now())
	snapshot, fn := l.snapshotLocked(), l.onChange
	l.mu.Unlock()

	l.logger.Info("fill recorded",
		zap.String("account", f.AccountID),
		zap.String("instrument", f.InstrumentID),
		zap.String("side", string(f.Side)),
		zap.Float64("qty", f.Qty),
		zap.Float64("price", f.Price))
	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// OnOrderFill 适配 order.Manager 的成交回调
func (l *Ledger) OnOrderFill(o order.Order, qty, price float64) {
	if err := l.RecordFill(Fill{
		AccountID:    o.AccountID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Qty:          qty,
		Price:        price,
	}); err != nil {
		l.logger.Warn("fill not recorded", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (l *Ledger) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.retention)
	kept := l.fills[:0]
	for _, f := range l.fills {
		if !f.Ts.Before(cutoff) {
			kept = append(kept, f)
		}
	}
	l.fills = kept
}

// Fills 成交记录副本
func (l *Ledger) Fills() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// PnL 品种在给定 mid 下的总盈亏
func (l *Ledger) PnL(instrumentID string, mid float64) float64 {
	l.mu.RLock()
	tr, ok := l.trackers[instrumentID]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	_, pnl := tr.Valuation(mid)
	return pnl
}

// GetVWAPOverPeriod 在回看窗口内按买卖方向分别计算自有成交均价。
func (l *Ledger) GetVWAPOverPeriod(ctx context.Context, instrumentID string, accountIDs []string, lookbackDays int) (market.HistoricalVWAP, error) {
	if err := ctx.Err(); err != nil {
		return market.HistoricalVWAP{}, err
	}
	accounts := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		accounts[id] = true
	}
	cutoff := l.now().Add(-time.Duration(lookbackDays) * 24 * time.Hour)

	var buyPV, buyV, sellPV, sellV float64
	l.mu.RLock()
	for _, f := range l.fills {
		if f.InstrumentID != instrumentID || f.Ts.Before(cutoff) {
			continue
		}
		if len(accounts) > 0 && !accounts[f.AccountID] {
			continue
		}
		if f.Side == order.SideBuy {
			buyPV += f.Price * f.Qty
			buyV += f.Qty
		} else {
			sellPV += f.Price * f.Qty
			sellV += f.Qty
		}
	}
	l.mu.RUnlock()

	var out market.HistoricalVWAP
	if buyV > 0 {
		v := buyPV / buyV
		out.Buy = &v
	}
	if sellV > 0 {
		v := sellPV / sellV
		out.Sell = &v
	}
	return out, nil
}
