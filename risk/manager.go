package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"basis-trader-go/market"
	"basis-trader-go/metrics"
)

const (
	// 期权风险全量重算的条件
	optionRefreshInterval  = 10 * time.Minute
	optionRefreshPriceMove = 0.01

	// 近限额区间：|delta| 位于限额的 80%~100%
	nearLimitRatio = 0.8

	// 现货持仓变动超过该美元金额时通知监听者
	positionNotifyUSD = 5.0

	riskLogInterval = 60 * time.Second

	positionHistoryLength = 300

	defaultMakerFee   = 0.01
	defaultOptionVol  = 0.5
	defaultOptionRate = 0.05
)

// ManagerConfig 风控参数
type ManagerConfig struct {
	InstrumentID string // BASE/QUOTE，如 BTC/USDT

	Limit      Limit
	MaxLoss    float64 // <=0 表示不启用最大亏损检查
	ManualSkew Risk
	ReduceOnly bool
	SendOrders bool

	// 报价阶梯中最大的美元数量，用于余额检查
	DollarQuotingSize float64

	// 大额持仓变动：回看 LargeFillLookback 个采样点（每秒一个）
	LargeFillLookback     int
	LargeFillThresholdUSD float64
	LargeFillCooldown     time.Duration

	Option           *OptionPosition
	OptionVolatility float64 // 默认 0.5
	OptionRate       float64 // 默认 0.05

	DefaultMakerFee float64 // 默认 0.01
}

// Manager 汇总现货、期权、TWAP 注入与手动偏移风险，执行限额检查并维护 reduce-only 状态。
//
// 对下游（报价、编排器）的通知通过 SetPositionListener 注入的回调完成，
// Manager 不持有其使用者的引用。
type Manager struct {
	cfg    ManagerConfig
	base   string
	quote  string
	sw     *TradingSwitch
	alerts Alerter
	logger *zap.Logger
	clock  Clock

	mu               sync.RWMutex
	accounts         AccountManager
	listener         func(change float64)
	reduceOnly       bool
	configReduceOnly bool
	sendOrders       bool
	limit            Limit
	maxLoss          float64
	manualSkew       Risk

	spot       map[string]float64
	optionRisk Risk
	twapDelta  Risk
	pnl        float64

	bbo              market.BBO
	lastOptionUpdate time.Time
	lastOptionPrice  float64

	lastLoggedDelta float64
	hasLoggedDelta  bool
	lastRiskLog     time.Time

	samplerOnce   sync.Once
	sampler       *metrics.Collector
	cooldownStart time.Time
}

// NewManager 创建风控管理器
func NewManager(cfg ManagerConfig, sw *TradingSwitch, alerts Alerter, logger *zap.Logger) (*Manager, error) {
	base, quote, ok := strings.Cut(cfg.InstrumentID, "/")
	if !ok || base == "" || quote == "" {
		return nil, fmt.Errorf("instrument id %q must be BASE/QUOTE", cfg.InstrumentID)
	}
	if cfg.Option != nil {
		if err := cfg.Option.Validate(); err != nil {
			return nil, fmt.Errorf("invalid option position: %w", err)
		}
	}
	// 未配置限额视为不受限
	if cfg.Limit == (Limit{}) {
		cfg.Limit = Unbounded()
	}
	if cfg.OptionVolatility <= 0 {
		cfg.OptionVolatility = defaultOptionVol
	}
	if cfg.OptionRate == 0 {
		cfg.OptionRate = defaultOptionRate
	}
	if cfg.DefaultMakerFee == 0 {
		cfg.DefaultMakerFee = defaultMakerFee
	}
	if sw == nil {
		sw = NewTradingSwitch("strategy")
	}
	if alerts == nil {
		alerts = nopAlerter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		cfg:              cfg,
		base:             base,
		quote:            quote,
		sw:               sw,
		alerts:           alerts,
		logger:           logger,
		clock:            SystemClock,
		reduceOnly:       true, // 首次风险检查前保持 reduce-only
		configReduceOnly: cfg.ReduceOnly,
		sendOrders:       cfg.SendOrders,
		limit:            cfg.Limit,
		maxLoss:          cfg.MaxLoss,
		manualSkew:       cfg.ManualSkew,
		spot:             make(map[string]float64),
	}
	logger.Warn("risk manager initialized",
		zap.String("instrument", cfg.InstrumentID),
		zap.Float64("max_loss", cfg.MaxLoss),
		zap.Stringer("limit", cfg.Limit),
		zap.Stringer("manual_skew", cfg.ManualSkew),
		zap.Bool("reduce_only", cfg.ReduceOnly),
		zap.Bool("send_orders", cfg.SendOrders))
	return m, nil
}

// Clock 时间源
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 默认时间源
var SystemClock Clock = systemClock{}

// SetClock 替换时间源（测试用）
func (m *Manager) SetClock(c Clock) { m.clock = c }

// SetAccountManager 构造完成后注入账户管理器
func (m *Manager) SetAccountManager(am AccountManager) {
	m.mu.Lock()
	m.accounts = am
	m.mu.Unlock()
	m.logger.Info("risk manager: account manager assigned")
}

// SetPositionListener 注入持仓变动回调，参数为 base 币种持仓变化量。
func (m *Manager) SetPositionListener(fn func(change float64)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

// TradingSwitch 策略交易开关
func (m *Manager) TradingSwitch() *TradingSwitch { return m.sw }

// BaseCurrency 基础币种
func (m *Manager) BaseCurrency() string { return m.base }

// QuoteCurrency 计价币种
func (m *Manager) QuoteCurrency() string { return m.quote }

// GetTotalRisks 现货 + 期权 + TWAP + 手动偏移。每次调用都重新计算。
func (m *Manager) GetTotalRisks() Risk {
	now := m.clock.Now()

	m.mu.Lock()
	spot := Risk{Delta: m.spot[m.base]}
	option, twap, skew := m.optionRisk, m.twapDelta, m.manualSkew
	total := Risk{}.Add(spot).Add(twap).Add(option).Add(skew)
	shouldLog := !m.hasLoggedDelta || total.Delta != m.lastLoggedDelta || now.Sub(m.lastRiskLog) > riskLogInterval
	if shouldLog {
		m.lastLoggedDelta, m.hasLoggedDelta, m.lastRiskLog = total.Delta, true, now
	}
	m.mu.Unlock()

	if shouldLog {
		m.logger.Info("risk update",
			zap.Stringer("total", total),
			zap.Stringer("spot", spot),
			zap.Stringer("option", option),
			zap.Stringer("twap", twap),
			zap.Stringer("skew", skew))
	}
	if total.Gamma < 0 {
		m.raise("gamma", "Risk Manager observes invalid gamma!", "Risk Manager: gamma < 0!", true, 900*time.Second)
	}
	return total
}

// SpotDelta base 币种净现货持仓
func (m *Manager) SpotDelta() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spot[m.base]
}

// OnBBO 参考市场最优价更新：刷新期权风险并执行风险检查。
func (m *Manager) OnBBO(bbo market.BBO) {
	now := m.clock.Now()

	m.mu.Lock()
	lastMid, hadMid := m.bbo.Mid()
	m.bbo = bbo
	newMid, hasMid := bbo.Mid()
	recompute := false
	if m.cfg.Option != nil && hasMid {
		moved := m.lastOptionPrice <= 0 || math.Abs(newMid-m.lastOptionPrice)/m.lastOptionPrice >= optionRefreshPriceMove
		if m.lastOptionUpdate.IsZero() || now.Sub(m.lastOptionUpdate) >= optionRefreshInterval || moved {
			recompute = true
			m.lastOptionUpdate, m.lastOptionPrice = now, newMid
		} else if hadMid {
			// 小幅变动用 gamma 近似 delta 变化
			m.optionRisk.Delta += m.optionRisk.Gamma * (newMid - lastMid)
		}
	}
	m.mu.Unlock()

	if recompute {
		m.refreshOptionRisk(newMid, now)
	}
	m.RunRiskChecks()
}

func (m *Manager) refreshOptionRisk(mid float64, now time.Time) {
	opt := m.cfg.Option
	if opt.Expiry.Sub(now) < 24*time.Hour {
		m.sw.AddIssue(IssueOptionExpiry)
		m.raise("option expired", "Risk Manager: Option expired!",
			fmt.Sprintf("Risk Manager: option expiry %s is less than 24h from now %s", opt.Expiry.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339)),
			true, 900*time.Second)
	}
	greeks := opt.Greeks(mid, m.cfg.OptionVolatility, m.cfg.OptionRate, now)

	m.mu.Lock()
	m.optionRisk = greeks
	m.mu.Unlock()
	m.logger.Info("option risk refreshed", zap.Stringer("option", opt), zap.Stringer("risk", greeks))
}

// RunRiskChecks 按顺序执行：最大亏损、近限额、超限额，否则恢复正常交易。
func (m *Manager) RunRiskChecks() {
	total := m.GetTotalRisks()
	delta := total.Delta

	m.mu.RLock()
	pnl, maxLoss, limit := m.pnl, m.maxLoss, m.limit
	m.mu.RUnlock()

	switch {
	case maxLoss > 0 && pnl < -maxLoss:
		m.sw.AddIssue(IssueMaxLoss)
		m.raise("pnl", "Risk Manager disabled trading!",
			fmt.Sprintf("Risk Manager disabled trading because max loss breached! Current PnL: %g is over max loss limit: %g", pnl, maxLoss),
			true, 900*time.Second)
	case isNearDeltaLimit(delta, limit):
		m.mu.Lock()
		m.reduceOnly = true
		m.mu.Unlock()
		m.raise("risk-near-limit", "Risk Manager: reduce-only mode due to delta risk near limit!",
			fmt.Sprintf("Risk Manager toggled to reduce-only mode! Current delta %g vs. risk limits [%g, %g]!", delta, limit.MinDelta, limit.MaxDelta),
			false, 300*time.Second)
	case !total.IsWithinRiskLimits(limit):
		m.sw.AddIssue(IssueRiskLimitExceeded)
		m.raise("risk-over-limit", "Risk Manager disabled trading!",
			fmt.Sprintf("Risk Manager disabled trading because risk is over limit! Current risks: %s is over risk limit: %s", total, limit),
			false, 900*time.Second)
	default:
		m.sw.ResolveIssue(IssueMaxLoss)
		m.sw.ResolveIssue(IssueRiskLimitExceeded)
		m.mu.Lock()
		m.reduceOnly = false
		m.mu.Unlock()
	}
}

// isNearDeltaLimit delta 落在 (80%, 100%] 限额区间；恰好等于限额仍在限内，按 reduce-only 处理。
func isNearDeltaLimit(delta float64, l Limit) bool {
	return (nearLimitRatio*l.MaxDelta < delta && delta <= l.MaxDelta) ||
		(l.MinDelta <= delta && delta < nearLimitRatio*l.MinDelta)
}

// IsReduceOnly 风险检查或配置任一要求 reduce-only
func (m *Manager) IsReduceOnly() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reduceOnly || m.configReduceOnly
}

// SetReduceOnly 更新配置层的 reduce-only 开关
func (m *Manager) SetReduceOnly(v bool) {
	m.mu.Lock()
	m.configReduceOnly = v
	m.mu.Unlock()
}

// IsSendingBids reduce-only 且已有多头 delta 时不再挂买单
func (m *Manager) IsSendingBids() bool {
	return !(m.IsReduceOnly() && m.GetTotalRisks().Delta > 0)
}

// IsSendingAsks reduce-only 且已有空头 delta 时不再挂卖单
func (m *Manager) IsSendingAsks() bool {
	return !(m.IsReduceOnly() && m.GetTotalRisks().Delta < 0)
}

// SendOrders 全局下单开关
func (m *Manager) SendOrders() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sendOrders
}

// SetSendOrders 更新全局下单开关
func (m *Manager) SetSendOrders(v bool) {
	m.mu.Lock()
	m.sendOrders = v
	m.mu.Unlock()
	m.logger.Warn("send orders updated", zap.Bool("send_orders", v))
}

// SetLimit 更新风险限额
func (m *Manager) SetLimit(l Limit) {
	m.mu.Lock()
	m.limit = l
	m.mu.Unlock()
}

// Limit 当前风险限额
func (m *Manager) Limit() Limit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limit
}

// SetMaxLoss 更新最大亏损
func (m *Manager) SetMaxLoss(v float64) {
	m.mu.Lock()
	m.maxLoss = v
	m.mu.Unlock()
}

// SetManualSkew 更新手动风险偏移
func (m *Manager) SetManualSkew(r Risk) {
	m.mu.Lock()
	m.manualSkew = r
	m.mu.Unlock()
}

// UpdatePnL 更新累计盈亏
func (m *Manager) UpdatePnL(pnl float64) {
	m.mu.Lock()
	m.pnl = pnl
	m.mu.Unlock()
}

// PnL 最近一次推送的盈亏
func (m *Manager) PnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pnl
}

// UpdateTwapDelta TWAP 注入待成交风险
func (m *Manager) UpdateTwapDelta(size float64) {
	m.mu.Lock()
	m.twapDelta = m.twapDelta.Add(Risk{Delta: size})
	twap := m.twapDelta
	m.mu.Unlock()
	m.logger.Info("twap delta updated", zap.Float64("size", size), zap.Stringer("twap", twap))
	m.notifyPositionChange(size)
}

// TwapDelta 当前 TWAP 注入的风险
func (m *Manager) TwapDelta() Risk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.twapDelta
}

// UpdateNetSpotPositions 由账户侧推送最新净持仓。
func (m *Manager) UpdateNetSpotPositions(positions map[string]float64) {
	m.mu.Lock()
	last, had := m.spot[m.base]
	m.spot = make(map[string]float64, len(positions))
	for ccy, qty := range positions {
		m.spot[ccy] = qty
	}
	cur := m.spot[m.base]
	m.mu.Unlock()

	m.logger.Info("net spot positions updated", zap.Any("positions", positions))
	var change float64
	if had {
		change = cur - last
	}
	if change != 0 {
		m.GetTotalRisks()
		m.notifyPositionChange(change)
	}
}

// RefreshSpotPositions 主动从账户管理器拉取净持仓。
func (m *Manager) RefreshSpotPositions(ctx context.Context) error {
	m.mu.RLock()
	am := m.accounts
	m.mu.RUnlock()
	if am == nil {
		return ErrNoAccountManager
	}
	positions, err := am.NetSpotPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch net spot positions: %w", err)
	}
	m.UpdateNetSpotPositions(positions)
	return nil
}

func (m *Manager) notifyPositionChange(change float64) {
	m.mu.RLock()
	fn := m.listener
	mid, ok := m.bbo.Mid()
	m.mu.RUnlock()
	if fn == nil {
		m.logger.Debug("no position listener, skipping position triggered update")
		return
	}
	if !ok {
		return
	}
	if math.Abs(change)*mid > positionNotifyUSD {
		m.logger.Warn("spot position changed", zap.Float64("change", change))
		fn(change)
	}
}

// MarketMid 最近一次参考市场中间价
func (m *Manager) MarketMid() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bbo.Mid()
}

// MarketSpread 最近一次参考市场相对价差
func (m *Manager) MarketSpread() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bbo.Spread()
}

// MakerFee 账户挂单费率，未知时取默认值
func (m *Manager) MakerFee(accountID string) float64 {
	m.mu.RLock()
	am := m.accounts
	m.mu.RUnlock()
	if am == nil {
		return m.cfg.DefaultMakerFee
	}
	fee, ok := am.MakerFee(accountID, m.cfg.InstrumentID)
	if !ok {
		return m.cfg.DefaultMakerFee
	}
	return fee
}

// PositionSampler 持仓采样器（每秒一次，保留 300 点）。首次调用时以当前持仓填满历史。
func (m *Manager) PositionSampler() *metrics.Collector {
	m.samplerOnce.Do(func() {
		c := metrics.NewCollector(metrics.CollectorConfig{
			Name:      "position",
			Interval:  time.Second,
			MaxLength: positionHistoryLength,
		}, func() (float64, bool) { return m.SpotDelta(), true }, m.logger)
		c.Prefill(m.SpotDelta())
		m.sampler = c
	})
	return m.sampler
}

// ShouldStopTradingOnLargePositionChange 回看窗口内持仓变化的美元价值超过阈值时登记问题并开始冷却；
// 冷却结束且变化不再超限后才解除。
func (m *Manager) ShouldStopTradingOnLargePositionChange() bool {
	if m.cfg.LargeFillThresholdUSD <= 0 || m.cfg.LargeFillLookback <= 0 {
		return false
	}
	change, _ := m.PositionSampler().Change(m.cfg.LargeFillLookback)
	mid, ok := m.MarketMid()
	if !ok {
		mid = 0
	}
	usdChange := change * mid
	now := m.clock.Now()

	if math.Abs(usdChange) > math.Abs(m.cfg.LargeFillThresholdUSD) {
		if m.sw.AddIssue(IssueLargePositionChange) {
			m.mu.Lock()
			m.cooldownStart = now
			m.mu.Unlock()
			m.raise("Trading disabled due to "+IssueLargePositionChange,
				"Risk Manager: trading disabled due to "+IssueLargePositionChange+"!",
				fmt.Sprintf("Risk Manager: %s ($%.2f) over past %ds, disabling trading for %s!",
					IssueLargePositionChange, usdChange, m.cfg.LargeFillLookback, m.cfg.LargeFillCooldown),
				false, m.cfg.LargeFillCooldown)
		}
		return true
	}

	if !m.sw.HasIssue(IssueLargePositionChange) {
		return false
	}
	m.mu.RLock()
	inCooldown := now.Sub(m.cooldownStart) < m.cfg.LargeFillCooldown
	m.mu.RUnlock()
	if inCooldown {
		return true
	}
	m.sw.ResolveIssue(IssueLargePositionChange)
	m.logger.Warn("large position change cooldown over, issue resolved", zap.Duration("cooldown", m.cfg.LargeFillCooldown))
	m.raise("Trading re-enabled after "+IssueLargePositionChange+" cool down",
		"Risk Manager: trading re-enabled after "+IssueLargePositionChange+" cool down!",
		fmt.Sprintf("Risk Manager: %s %s cooldown is over, issue removed from trading switch!", IssueLargePositionChange, m.cfg.LargeFillCooldown),
		false, time.Second)
	return false
}

// IsBalanceEnoughForQuoting 检查账户余额能否覆盖一档最大报价，不足或偏低时告警。
// 只检查当前允许发送的一侧。
func (m *Manager) IsBalanceEnoughForQuoting(accountID string) bool {
	m.mu.RLock()
	am := m.accounts
	m.mu.RUnlock()
	if am == nil {
		m.logger.Warn("balance check skipped", zap.Error(ErrNoAccountManager))
		return false
	}
	mid, ok := m.MarketMid()
	if !ok || mid <= 0 {
		return false
	}
	baseBal, err := am.Balance(accountID, m.base)
	if err != nil {
		m.logger.Warn("balance query failed", zap.String("account", accountID), zap.String("currency", m.base), zap.Error(err))
		return false
	}
	quoteBal, err := am.Balance(accountID, m.quote)
	if err != nil {
		m.logger.Warn("balance query failed", zap.String("account", accountID), zap.String("currency", m.quote), zap.Error(err))
		return false
	}

	requiredQuote := m.cfg.DollarQuotingSize
	requiredBase := requiredQuote / mid
	enough := true
	if m.IsSendingAsks() {
		enough = m.checkBalance(accountID, m.base, baseBal, requiredBase) && enough
	}
	if m.IsSendingBids() {
		enough = m.checkBalance(accountID, m.quote, quoteBal, requiredQuote) && enough
	}
	return enough
}

func (m *Manager) checkBalance(accountID, ccy string, balance, required float64) bool {
	switch {
	case balance < required:
		key := fmt.Sprintf("insufficient_%s_balance_on_%s", ccy, accountID)
		m.raise(key, "Risk Manager: "+key+"!",
			fmt.Sprintf("Risk Manager: insufficient %s balance for account %s! Current balance: %g < quoting size: %g", ccy, accountID, balance, required),
			true, 28800*time.Second)
		return false
	case balance < 2*required:
		key := fmt.Sprintf("low_%s_balance_on_%s", ccy, accountID)
		m.raise(key, "Risk Manager: "+key+"!",
			fmt.Sprintf("Risk Manager: low %s balance for account %s! Current balance: %g < 2 * quoting size: %g", ccy, accountID, balance, 2*required),
			false, 86400*time.Second)
	}
	return true
}

func (m *Manager) raise(key, title, text string, critical bool, limit time.Duration) {
	sent, err := m.alerts.Raise(key, title, text, critical, limit)
	if err != nil {
		m.logger.Error("alert delivery failed", zap.String("key", key), zap.Error(err))
		return
	}
	if sent {
		m.logger.Warn(text, zap.String("alert", key))
	}
}
