package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vwapFactory func(period time.Duration, now func() time.Time) VWAP

func vwapImplementations() map[string]vwapFactory {
	return map[string]vwapFactory{
		"simple": func(period time.Duration, now func() time.Time) VWAP {
			v := NewSimpleVWAP(period)
			v.SetClock(now)
			return v
		},
		"bucketed": func(period time.Duration, now func() time.Time) VWAP {
			v := NewBucketedVWAP(period, time.Second)
			v.SetClock(now)
			return v
		},
	}
}

func TestVWAPWithinWindow(t *testing.T) {
	for name, factory := range vwapImplementations() {
		t.Run(name, func(t *testing.T) {
			now := time.Unix(1_700_000_000, 0)
			v := factory(time.Minute, func() time.Time { return now })

			_, ok := v.VWAP()
			assert.False(t, ok, "empty window")

			AddTrades(v, []Trade{
				{Price: 100, Qty: 1, Ts: now.Add(-30 * time.Second)},
				{Price: 110, Qty: 3, Ts: now.Add(-10 * time.Second)},
				{Price: 105, Qty: 2, Ts: now},
			})
			got, ok := v.VWAP()
			require.True(t, ok)
			assert.InDelta(t, (100*1+110*3+105*2)/6.0, got, 1e-9)
		})
	}
}

func TestVWAPIgnoresTradeOlderThanWindow(t *testing.T) {
	for name, factory := range vwapImplementations() {
		t.Run(name, func(t *testing.T) {
			now := time.Unix(1_700_000_000, 0)
			v := factory(time.Minute, func() time.Time { return now })

			v.AddTrade(100, 1, now.Add(-5*time.Second))
			v.AddTrade(500, 10, now.Add(-2*time.Minute))

			got, ok := v.VWAP()
			require.True(t, ok)
			assert.Equal(t, 100.0, got)
		})
	}
}

func TestVWAPExpiresAsTimePasses(t *testing.T) {
	for name, factory := range vwapImplementations() {
		t.Run(name, func(t *testing.T) {
			now := time.Unix(1_700_000_000, 0)
			v := factory(time.Minute, func() time.Time { return now })

			v.AddTrade(100, 1, now)
			now = now.Add(30 * time.Second)
			v.AddTrade(200, 1, now)

			got, ok := v.VWAP()
			require.True(t, ok)
			assert.InDelta(t, 150.0, got, 1e-9)

			// 第一笔退出窗口（桶实现最多多保留一个分辨率）
			now = now.Add(32 * time.Second)
			got, ok = v.VWAP()
			require.True(t, ok)
			assert.InDelta(t, 200.0, got, 1e-9)

			now = now.Add(2 * time.Minute)
			_, ok = v.VWAP()
			assert.False(t, ok, "window drained")
		})
	}
}

func TestSimpleVWAPOutOfOrderInsert(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewSimpleVWAP(time.Minute)
	v.SetClock(func() time.Time { return now })

	v.AddTrade(100, 1, now)
	v.AddTrade(200, 1, now.Add(-50*time.Second))
	assert.Equal(t, 2, v.Len())

	now = now.Add(15 * time.Second)
	got, ok := v.VWAP()
	require.True(t, ok)
	assert.Equal(t, 100.0, got)
	assert.Equal(t, 1, v.Len())
}

func TestBucketedVWAPAggregatesIntoBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewBucketedVWAP(time.Minute, 10*time.Second)
	v.SetClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		v.AddTrade(100+float64(i), 1, now.Add(-time.Duration(i)*time.Second))
	}
	assert.LessOrEqual(t, v.Buckets(), 2)
	got, ok := v.VWAP()
	require.True(t, ok)
	assert.InDelta(t, 104.5, got, 1e-9)
}

type stubTradeRepo struct {
	res   HistoricalVWAP
	err   error
	calls int
}

func (s *stubTradeRepo) GetVWAPOverPeriod(ctx context.Context, instrumentID string, accountIDs []string, lookbackDays int) (HistoricalVWAP, error) {
	s.calls++
	return s.res, s.err
}

func TestTradeVWAPRefresh(t *testing.T) {
	buy, sell := 100.0, 101.0
	repo := &stubTradeRepo{res: HistoricalVWAP{Buy: &buy, Sell: &sell}}
	tv := NewTradeVWAP(TradeVWAPConfig{Enabled: true}, "BTC/USDT", []string{"acc-1"}, repo, nil)

	_, _, hasBuy, hasSell := tv.HistoricalBuySellVWAPs()
	assert.False(t, hasBuy)
	assert.False(t, hasSell)

	require.NoError(t, tv.Tick(context.Background()))
	b, s, hasBuy, hasSell := tv.HistoricalBuySellVWAPs()
	assert.True(t, hasBuy)
	assert.True(t, hasSell)
	assert.Equal(t, 100.0, b)
	assert.Equal(t, 101.0, s)

	// 查询失败时视为缺失，不报错
	repo.err = errors.New("db down")
	require.NoError(t, tv.Tick(context.Background()))
	_, _, hasBuy, hasSell = tv.HistoricalBuySellVWAPs()
	assert.False(t, hasBuy)
	assert.False(t, hasSell)
	assert.Equal(t, 2, repo.calls)
	assert.Equal(t, 5*time.Minute, tv.Interval())
}
