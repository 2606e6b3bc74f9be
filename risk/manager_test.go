package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basis-trader-go/market"
)

type manualClock struct{ t time.Time }

func (c *manualClock) Now() time.Time { return c.t }

type raisedAlert struct {
	key      string
	critical bool
	limit    time.Duration
}

// recordingAlerter 记录每次 Raise，不做限流
type recordingAlerter struct {
	raised []raisedAlert
}

func (r *recordingAlerter) Raise(key, title, text string, critical bool, limit time.Duration) (bool, error) {
	r.raised = append(r.raised, raisedAlert{key: key, critical: critical, limit: limit})
	return true, nil
}

func (r *recordingAlerter) has(key string) bool {
	for _, a := range r.raised {
		if a.key == key {
			return true
		}
	}
	return false
}

type stubAccounts struct {
	positions map[string]float64
	balances  map[string]float64
	fees      map[string]float64
	err       error
}

func (s *stubAccounts) NetSpotPositions(ctx context.Context) (map[string]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.positions, nil
}

func (s *stubAccounts) Balance(accountID, currency string) (float64, error) {
	return s.balances[accountID+"/"+currency], nil
}

func (s *stubAccounts) MakerFee(accountID, instrumentID string) (float64, bool) {
	fee, ok := s.fees[accountID]
	return fee, ok
}

func bbo(bid, ask float64) market.BBO {
	return market.BBO{Bid: bid, Ask: ask, HasBid: true, HasAsk: true}
}

func newTestManager(t *testing.T, cfg ManagerConfig) (*Manager, *recordingAlerter, *manualClock) {
	t.Helper()
	if cfg.InstrumentID == "" {
		cfg.InstrumentID = "BTC/USDT"
	}
	alerts := &recordingAlerter{}
	clock := &manualClock{t: time.Unix(1_700_000_000, 0)}
	m, err := NewManager(cfg, NewTradingSwitch("test"), alerts, nil)
	require.NoError(t, err)
	m.SetClock(clock)
	return m, alerts, clock
}

func TestNewManagerRejectsBadInstrument(t *testing.T) {
	_, err := NewManager(ManagerConfig{InstrumentID: "BTCUSDT"}, nil, nil, nil)
	assert.Error(t, err)
}

func TestTotalRisksAggregatesComponents(t *testing.T) {
	m, _, _ := newTestManager(t, ManagerConfig{ManualSkew: Risk{Delta: 0.5, Vega: 2}})

	m.UpdateNetSpotPositions(map[string]float64{"BTC": 1.5, "USDT": 1000})
	m.UpdateTwapDelta(-0.25)

	total := m.GetTotalRisks()
	assert.InDelta(t, 1.75, total.Delta, 1e-12)
	assert.Equal(t, 2.0, total.Vega)
	assert.Equal(t, 1.5, m.SpotDelta())
}

func TestRiskChecksOrder(t *testing.T) {
	limit := LimitFromMap(map[string]float64{"min_delta": -10, "max_delta": 10})

	cases := []struct {
		name       string
		spot       float64
		pnl        float64
		wantIssues []string
		wantReduce bool
		wantAlert  string
	}{
		{name: "正常", spot: 1, wantIssues: []string{}, wantReduce: false},
		{name: "最大亏损优先", spot: 20, pnl: -150, wantIssues: []string{IssueMaxLoss}, wantReduce: true, wantAlert: "pnl"},
		{name: "多头接近上限", spot: 9, wantIssues: []string{}, wantReduce: true, wantAlert: "risk-near-limit"},
		{name: "空头接近下限", spot: -8.5, wantIssues: []string{}, wantReduce: true, wantAlert: "risk-near-limit"},
		{name: "恰好等于上限", spot: 10, wantIssues: []string{}, wantReduce: true, wantAlert: "risk-near-limit"},
		{name: "恰好等于下限", spot: -10, wantIssues: []string{}, wantReduce: true, wantAlert: "risk-near-limit"},
		{name: "恰好 80% 不算接近", spot: 8, wantIssues: []string{}, wantReduce: false},
		{name: "超出限额", spot: 12, wantIssues: []string{IssueRiskLimitExceeded}, wantReduce: true, wantAlert: "risk-over-limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, alerts, _ := newTestManager(t, ManagerConfig{Limit: limit, MaxLoss: 100})
			m.UpdateNetSpotPositions(map[string]float64{"BTC": tc.spot})
			m.UpdatePnL(tc.pnl)
			m.OnBBO(bbo(100, 101))

			assert.Equal(t, tc.wantIssues, m.TradingSwitch().Issues())
			assert.Equal(t, tc.wantReduce, m.IsReduceOnly())
			if tc.wantAlert != "" {
				assert.True(t, alerts.has(tc.wantAlert), "expected alert %s, got %+v", tc.wantAlert, alerts.raised)
			}
		})
	}
}

func TestZeroLimitIsUnbounded(t *testing.T) {
	m, _, _ := newTestManager(t, ManagerConfig{})
	assert.Equal(t, Unbounded(), m.Limit())

	m.UpdateNetSpotPositions(map[string]float64{"BTC": 0.1})
	m.OnBBO(bbo(100, 101))
	assert.True(t, m.TradingSwitch().IsEnabled())
	assert.Empty(t, m.TradingSwitch().Issues())
	assert.False(t, m.IsReduceOnly())
}

func TestRiskChecksResolveIssues(t *testing.T) {
	limit := LimitFromMap(map[string]float64{"min_delta": -10, "max_delta": 10})
	m, _, _ := newTestManager(t, ManagerConfig{Limit: limit})

	m.UpdateNetSpotPositions(map[string]float64{"BTC": 12})
	m.OnBBO(bbo(100, 101))
	assert.False(t, m.TradingSwitch().IsEnabled())

	m.UpdateNetSpotPositions(map[string]float64{"BTC": 2})
	m.OnBBO(bbo(100, 101))
	assert.True(t, m.TradingSwitch().IsEnabled())
	assert.False(t, m.IsReduceOnly())
}

func TestReduceOnlySides(t *testing.T) {
	m, _, _ := newTestManager(t, ManagerConfig{ReduceOnly: true})

	m.UpdateNetSpotPositions(map[string]float64{"BTC": 1})
	assert.False(t, m.IsSendingBids(), "long delta: bids increase risk")
	assert.True(t, m.IsSendingAsks())

	m.UpdateNetSpotPositions(map[string]float64{"BTC": -1})
	assert.True(t, m.IsSendingBids())
	assert.False(t, m.IsSendingAsks())

	m.SetReduceOnly(false)
	m.OnBBO(bbo(100, 101))
	assert.True(t, m.IsSendingBids())
	assert.True(t, m.IsSendingAsks())
}

func TestGammaBelowZeroRaisesCriticalAlert(t *testing.T) {
	m, alerts, _ := newTestManager(t, ManagerConfig{ManualSkew: Risk{Gamma: -1}})
	m.GetTotalRisks()
	require.Len(t, alerts.raised, 1)
	assert.Equal(t, "gamma", alerts.raised[0].key)
	assert.True(t, alerts.raised[0].critical)
	assert.Equal(t, 900*time.Second, alerts.raised[0].limit)
}

func TestPositionListener(t *testing.T) {
	m, _, _ := newTestManager(t, ManagerConfig{})
	var changes []float64
	m.SetPositionListener(func(change float64) { changes = append(changes, change) })

	// 尚无价格时不通知
	m.UpdateNetSpotPositions(map[string]float64{"BTC": 0})
	m.UpdateNetSpotPositions(map[string]float64{"BTC": 1})
	assert.Empty(t, changes)

	m.OnBBO(bbo(100, 100))
	m.UpdateNetSpotPositions(map[string]float64{"BTC": 1.01}) // $1，低于阈值
	assert.Empty(t, changes)

	m.UpdateNetSpotPositions(map[string]float64{"BTC": 2})
	require.Len(t, changes, 1)
	assert.InDelta(t, 0.99, changes[0], 1e-9)

	m.UpdateTwapDelta(-0.5)
	require.Len(t, changes, 2)
	assert.Equal(t, -0.5, changes[1])
}

func TestRefreshSpotPositions(t *testing.T) {
	m, _, _ := newTestManager(t, ManagerConfig{})
	assert.ErrorIs(t, m.RefreshSpotPositions(context.Background()), ErrNoAccountManager)

	accounts := &stubAccounts{positions: map[string]float64{"BTC": 3}}
	m.SetAccountManager(accounts)
	require.NoError(t, m.RefreshSpotPositions(context.Background()))
	assert.Equal(t, 3.0, m.SpotDelta())

	accounts.err = errors.New("exchange down")
	assert.Error(t, m.RefreshSpotPositions(context.Background()))
	assert.Equal(t, 3.0, m.SpotDelta(), "keeps last known positions")
}

func TestLargePositionChangeCooldown(t *testing.T) {
	m, alerts, clock := newTestManager(t, ManagerConfig{
		LargeFillLookback:     60,
		LargeFillThresholdUSD: 1000,
		LargeFillCooldown:     5 * time.Minute,
	})
	m.OnBBO(bbo(100, 100))
	sampler := m.PositionSampler()
	assert.Equal(t, 300, sampler.Len())

	assert.False(t, m.ShouldStopTradingOnLargePositionChange())

	// 一分钟内持仓增加 20 BTC = $2000
	m.UpdateNetSpotPositions(map[string]float64{"BTC": 20})
	sampler.Collect()
	assert.True(t, m.ShouldStopTradingOnLargePositionChange())
	assert.True(t, m.TradingSwitch().HasIssue(IssueLargePositionChange))
	assert.True(t, alerts.has("Trading disabled due to large position change"))

	// 变化移出回看窗口，但仍在冷却期
	for i := 0; i < 60; i++ {
		sampler.Collect()
	}
	clock.t = clock.t.Add(time.Minute)
	assert.True(t, m.ShouldStopTradingOnLargePositionChange(), "still cooling down")

	clock.t = clock.t.Add(5 * time.Minute)
	assert.False(t, m.ShouldStopTradingOnLargePositionChange())
	assert.False(t, m.TradingSwitch().HasIssue(IssueLargePositionChange))
	assert.True(t, alerts.has("Trading re-enabled after large position change cool down"))
}

func TestOptionRiskRefreshAndExtrapolation(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	opt := &OptionPosition{Size: 1, Underlying: "BTC", Expiry: now.Add(90 * 24 * time.Hour), Strike: 100, Type: OptionCall}
	m, _, clock := newTestManager(t, ManagerConfig{Option: opt})

	m.OnBBO(bbo(100, 100))
	first := m.GetTotalRisks()
	require.Greater(t, first.Gamma, 0.0)
	full := opt.Greeks(100, 0.5, 0.05, clock.t)
	assert.InDelta(t, full.Delta, first.Delta, 1e-12)

	// 小于 1% 的移动：delta += gamma × Δmid
	clock.t = clock.t.Add(time.Minute)
	m.OnBBO(bbo(100.5, 100.5))
	second := m.GetTotalRisks()
	assert.InDelta(t, first.Delta+first.Gamma*0.5, second.Delta, 1e-12)
	assert.Equal(t, first.Gamma, second.Gamma)

	// 超过 10 分钟：全量重算
	clock.t = clock.t.Add(10 * time.Minute)
	m.OnBBO(bbo(100.5, 100.5))
	third := m.GetTotalRisks()
	want := opt.Greeks(100.5, 0.5, 0.05, clock.t)
	assert.InDelta(t, want.Delta, third.Delta, 1e-12)
}

func TestOptionNearExpiryDisablesTrading(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	opt := &OptionPosition{Size: 1, Expiry: now.Add(12 * time.Hour), Strike: 100, Type: OptionPut}
	m, alerts, _ := newTestManager(t, ManagerConfig{Option: opt})

	m.OnBBO(bbo(100, 100))
	assert.True(t, m.TradingSwitch().HasIssue(IssueOptionExpiry))
	assert.True(t, alerts.has("option expired"))
}

func TestMakerFee(t *testing.T) {
	m, _, _ := newTestManager(t, ManagerConfig{})
	assert.Equal(t, 0.01, m.MakerFee("acc-1"))

	m.SetAccountManager(&stubAccounts{fees: map[string]float64{"acc-1": 0.0002}})
	assert.Equal(t, 0.0002, m.MakerFee("acc-1"))
	assert.Equal(t, 0.01, m.MakerFee("acc-2"))
}

func TestBalanceCheck(t *testing.T) {
	m, alerts, _ := newTestManager(t, ManagerConfig{DollarQuotingSize: 1000})
	m.OnBBO(bbo(100, 100))
	accounts := &stubAccounts{balances: map[string]float64{
		"acc/BTC":  15,   // 需要 10，低于 2 倍
		"acc/USDT": 5000, // 充足
	}}
	m.SetAccountManager(accounts)

	assert.True(t, m.IsBalanceEnoughForQuoting("acc"))
	assert.True(t, alerts.has("low_BTC_balance_on_acc"))

	accounts.balances["acc/USDT"] = 500
	assert.False(t, m.IsBalanceEnoughForQuoting("acc"))
	assert.True(t, alerts.has("insufficient_USDT_balance_on_acc"))
}
