package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"basis-trader-go/infrastructure/logger"
	"basis-trader-go/infrastructure/monitor"
	"basis-trader-go/market"
	"basis-trader-go/order"
	"basis-trader-go/risk"
	"basis-trader-go/strategy"
)

const (
	defaultUpdateInterval = time.Second
	positionQueueSize     = 64
)

// RiskManager 编排器使用的风控能力，由 risk.Manager 实现。
type RiskManager interface {
	GetTotalRisks() risk.Risk
	OnBBO(bbo market.BBO)
	SendOrders() bool
	IsReduceOnly() bool
	IsSendingBids() bool
	IsSendingAsks() bool
	ShouldStopTradingOnLargePositionChange() bool
	SetPositionListener(fn func(change float64))
	BaseCurrency() string
}

// MarginSource 账户保证金使用率
type MarginSource interface {
	MarginUsage(accountID string) (float64, bool)
}

// BalanceSource 账户余额
type BalanceSource interface {
	Balance(accountID, currency string) (float64, error)
}

// Switch 策略交易开关
type Switch interface {
	IsEnabled() bool
}

// Components 编排器依赖。Hedger、Balances、Monitor、MarketVWAP 可为 nil。
type Components struct {
	Markets    map[string]*market.MarketData // key 为 MarketID
	Risk       RiskManager
	Switch     Switch
	Fader      *strategy.LinearFader
	Adjuster   *strategy.QuoteAdjuster
	Throttle   *strategy.OrderThrottle
	Hedger     *strategy.TakerHedger
	Orders     order.Requester
	Registry   order.Registry
	Margin     MarginSource
	Balances   BalanceSource
	Monitor    *monitor.Monitor
	MarketVWAP market.VWAP // 报价市场公共成交 VWAP
	Logger     *zap.Logger
}

// BasisTrader 在永续与现货之间捕获基差并收取资金费率。
//
// 参考市场每次行情更新时重新计算资金费率、基差与保证金使用率并决定交易方向；
// 条件满足时经 fader→adjuster→throttle 生成报价并暂存，否则锁存撤全部。
// UpdateQuotes 先处理撤全部与对冲锁存，再发送暂存的撤单与报价。
type BasisTrader struct {
	c      Components
	refMD  *market.MarketData
	quoMD  *market.MarketData
	perpMD *market.MarketData
	spotMD *market.MarketData
	logger *zap.Logger
	occ    *logger.Occasional
	now    func() time.Time

	positions chan float64

	mu               sync.Mutex
	cfg              Config
	snap             Snapshot
	direction        order.Side
	stagedQuotes     []strategy.Quote
	stagedCancels    []string
	pendingCancelAll bool
	pendingHedge     bool
}

// New 创建编排器并注册风控持仓监听
func New(cfg Config, c Components) (*BasisTrader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(c); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = defaultUpdateInterval
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	ref, ok := c.Markets[cfg.ReferenceMarket.MarketID()]
	if !ok {
		return nil, fmt.Errorf("missing market data for reference market %s", cfg.ReferenceMarket.MarketID())
	}
	quo, ok := c.Markets[cfg.QuotingMarket.MarketID()]
	if !ok {
		return nil, fmt.Errorf("missing market data for quoting market %s", cfg.QuotingMarket.MarketID())
	}

	e := &BasisTrader{
		c:         c,
		refMD:     ref,
		quoMD:     quo,
		perpMD:    ref,
		spotMD:    quo,
		logger:    c.Logger.Named("basis_trader"),
		now:       time.Now,
		positions: make(chan float64, positionQueueSize),
		cfg:       cfg,
	}
	if cfg.QuotingMarket.Class == ClassPerp {
		e.perpMD, e.spotMD = quo, ref
	}
	e.occ = logger.NewOccasional(e.logger)
	c.Risk.SetPositionListener(e.enqueuePositionChange)

	e.logger.Info("basis trader initialized",
		zap.String("reference", cfg.ReferenceMarket.MarketID()),
		zap.String("quoting", cfg.QuotingMarket.MarketID()),
		zap.Float64("funding_rate_threshold", cfg.FundingRateThreshold),
		zap.Float64("basis_rate_threshold", cfg.BasisRateThreshold),
		zap.Float64("margin_usage_threshold", cfg.MarginUsageThreshold),
		zap.Float64("position_change_threshold", cfg.PositionChangeThreshold),
		zap.Int("ladder_rungs", len(cfg.Ladder)))
	return e, nil
}

func validateComponents(c Components) error {
	switch {
	case c.Risk == nil:
		return errors.New("risk manager is required")
	case c.Fader == nil || c.Adjuster == nil || c.Throttle == nil:
		return errors.New("fader, adjuster and throttle are required")
	case c.Orders == nil || c.Registry == nil:
		return errors.New("order requester and registry are required")
	case len(c.Markets) == 0:
		return errors.New("market data is required")
	}
	return nil
}

// SetClock 替换时间源（测试用）
func (e *BasisTrader) SetClock(now func() time.Time) {
	e.now = now
	e.occ.SetClock(now)
}

// OnOrderBookTick 缓存行情；参考市场的更新触发一次条件评估。
func (e *BasisTrader) OnOrderBookTick(exchangeID, instrumentID string, book market.BookSnapshot) error {
	id := market.MarketID(exchangeID, instrumentID)
	md, ok := e.c.Markets[id]
	if !ok {
		return nil
	}
	if err := md.OnOrderBookTick(book); err != nil {
		e.logger.Warn("order book rejected", zap.String("market", id), zap.Error(err))
		return err
	}
	if md != e.refMD {
		if mid, ok := md.MidPrice(); ok && md == e.quoMD && e.c.Monitor != nil {
			e.c.Monitor.UpdateQuotingMid(mid)
		}
		return nil
	}

	bbo := md.BBO()
	e.c.Risk.OnBBO(bbo)
	if e.c.Monitor != nil {
		if spread, ok := bbo.Spread(); ok {
			e.c.Monitor.UpdateSpread(spread)
		}
	}
	e.evaluate()
	return nil
}

// OnFundingRate 更新永续合约资金费率
func (e *BasisTrader) OnFundingRate(exchangeID, instrumentID string, rate float64) {
	md, ok := e.c.Markets[market.MarketID(exchangeID, instrumentID)]
	if !ok {
		return
	}
	if md != e.perpMD {
		e.logger.Warn("funding rate for non-perp market ignored",
			zap.String("exchange", exchangeID), zap.String("instrument", instrumentID))
		return
	}
	md.SetFundingRate(rate)
}

// OnMarketFill 公共成交：记录最近成交价，报价市场的成交计入市场 VWAP。
func (e *BasisTrader) OnMarketFill(exchangeID, instrumentID string, price, qty float64, ts time.Time) {
	md, ok := e.c.Markets[market.MarketID(exchangeID, instrumentID)]
	if !ok {
		return
	}
	md.OnMarketFill(price)
	if md == e.quoMD && e.c.MarketVWAP != nil && qty > 0 {
		e.c.MarketVWAP.AddTrade(price, qty, ts)
	}
}

// OnNetPositionChange 外部上报的最新净持仓与当前总 delta 相差超过阈值时锁存撤单与对冲。
func (e *BasisTrader) OnNetPositionChange(newPosition float64) {
	last := e.c.Risk.GetTotalRisks().Delta
	e.mu.Lock()
	defer e.mu.Unlock()
	if math.Abs(newPosition-last) <= e.cfg.PositionChangeThreshold {
		return
	}
	e.logger.Warn("net position changed, hedging",
		zap.Float64("new_position", newPosition), zap.Float64("last_delta", last))
	e.pendingCancelAll, e.pendingHedge = true, true
}

// enqueuePositionChange 风控持仓监听，不阻塞调用方。
func (e *BasisTrader) enqueuePositionChange(change float64) {
	select {
	case e.positions <- change:
	default:
		e.logger.Warn("position change queue full, dropping", zap.Float64("change", change))
	}
}

// onPositionChange 处理风控推送的持仓变化量：超过阈值时锁存，
// 否则交给吃单对冲器处理残余风险。
func (e *BasisTrader) onPositionChange(change float64) {
	e.mu.Lock()
	over := math.Abs(change) > e.cfg.PositionChangeThreshold
	if over {
		e.pendingCancelAll, e.pendingHedge = true, true
	}
	e.mu.Unlock()
	if over {
		e.logger.Warn("large position change, hedging", zap.Float64("change", change))
		return
	}
	if e.c.Hedger != nil {
		e.c.Hedger.OnResidualRisk(e.c.Risk.GetTotalRisks().Delta)
	}
}

// evaluate 计算交易条件；计算中的 panic 按条件不满足处理。
func (e *BasisTrader) evaluate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("conditions evaluation panicked", zap.Any("panic", r), zap.Stack("stack"))
			if e.c.Monitor != nil {
				e.c.Monitor.RecordTickError()
			}
			e.onConditionsNotMetLocked("panic")
		}
	}()

	if reason, ok := e.validateLocked(); !ok {
		e.onConditionsNotMetLocked(reason)
		return
	}
	e.onConditionsMetLocked()
}

// validateLocked 返回条件是否满足，不满足时给出原因。
func (e *BasisTrader) validateLocked() (string, bool) {
	e.snap = Snapshot{State: e.snap.State}
	e.direction = ""

	if e.c.Switch != nil && !e.c.Switch.IsEnabled() {
		return "trading switch disabled", false
	}
	if e.c.Risk.ShouldStopTradingOnLargePositionChange() {
		return "large position change", false
	}
	if e.perpMD.IsStale() || e.spotMD.IsStale() {
		return "stale market data", false
	}

	perpMid, okPerp := e.perpMD.MidPrice()
	spotMid, okSpot := e.spotMD.MidPrice()
	funding, okFunding := e.perpMD.FundingRate()
	margin, okMargin := e.marginUsageLocked()
	if okPerp {
		e.snap.PerpMid = &perpMid
	}
	if okSpot {
		e.snap.SpotMid = &spotMid
	}
	if okFunding {
		e.snap.FundingRate = &funding
	}
	if okMargin {
		e.snap.MarginUsage = &margin
	}
	if !okPerp || !okSpot || !okFunding || !okMargin || spotMid <= 0 {
		return "missing market metrics", false
	}
	basis := (perpMid - spotMid) / spotMid
	e.snap.Basis = &basis
	if e.c.Monitor != nil {
		e.c.Monitor.UpdateConditions(int(e.snap.State), basis, funding, margin)
	}

	cfg := e.cfg
	quotingPerp := cfg.QuotingMarket.Class == ClassPerp
	switch {
	case funding > 0 && funding > cfg.FundingRateThreshold && basis > cfg.BasisRateThreshold && margin < cfg.MarginUsageThreshold:
		// 做空永续、做多现货
		e.direction = order.SideBuy
		if quotingPerp {
			e.direction = order.SideSell
		}
	case funding < 0 && -funding > cfg.FundingRateThreshold && -basis > cfg.BasisRateThreshold && margin < cfg.MarginUsageThreshold:
		e.direction = order.SideSell
		if quotingPerp {
			e.direction = order.SideBuy
		}
	default:
		return "thresholds not met", false
	}
	e.snap.Direction = string(e.direction)

	if reason, ok := e.checkExposureLocked(); !ok {
		e.direction = ""
		e.snap.Direction = ""
		return reason, false
	}
	return "", true
}

func (e *BasisTrader) marginUsageLocked() (float64, bool) {
	if e.c.Margin == nil {
		return 0, false
	}
	acc := e.cfg.QuotingMarket.TradingAccountID
	if e.cfg.ReferenceMarket.Class == ClassPerp {
		acc = e.cfg.ReferenceMarket.TradingAccountID
	}
	return e.c.Margin.MarginUsage(acc)
}

// checkExposureLocked 可选的未对冲风险与目标持仓门槛
func (e *BasisTrader) checkExposureLocked() (string, bool) {
	mid, ok := e.refMD.MidPrice()
	if !ok {
		return "missing reference mid", false
	}
	if th := e.cfg.UnhedgedRiskThresholdUSD; th > 0 {
		if delta := e.c.Risk.GetTotalRisks().Delta; math.Abs(delta)*mid > th {
			return "unhedged risk over threshold", false
		}
	}
	if target := e.cfg.TargetPositionUSD; target > 0 && e.c.Balances != nil {
		bal, err := e.c.Balances.Balance(e.cfg.QuotingMarket.TradingAccountID, e.c.Risk.BaseCurrency())
		if err != nil {
			e.logger.Warn("balance query failed", zap.Error(err))
		} else if math.Abs(bal)*mid >= target {
			return "target position reached", false
		}
	}
	return "", true
}

func (e *BasisTrader) onConditionsNotMetLocked(reason string) {
	e.setStateLocked(ConditionsNotMet)
	e.pendingCancelAll = true
	e.stagedQuotes, e.stagedCancels = nil, nil
	e.occ.Info("conditions_not_met", 10*time.Second, "trading conditions not met", zap.String("reason", reason))
}

// onConditionsMetLocked 按基差平移阶梯，生成报价并经节流后暂存。
func (e *BasisTrader) onConditionsMetLocked() {
	e.setStateLocked(ConditionsMet)

	refMid, okRef := e.refMD.MidPrice()
	quoMid, okQuo := e.quoMD.MidPrice()
	if !okRef || !okQuo || refMid <= 0 {
		return
	}
	// 以参考市场 mid 报价，平移到报价市场所在价位
	offset := quoMid/refMid - 1
	if e.direction == order.SideBuy {
		offset = -offset
	}
	ladder := e.cfg.Ladder.Shift(offset)

	// reduce-only 时不挂增加风险一侧
	if !e.sideAllowed(e.direction) {
		e.occ.Info("reduce_only_"+string(e.direction), 10*time.Second, "reduce-only, side suppressed",
			zap.String("side", string(e.direction)))
		return
	}
	var raw []strategy.Quote
	for _, q := range e.c.Fader.Quotes(ladder) {
		if q.Side == e.direction {
			raw = append(raw, q)
		}
	}
	acc := e.cfg.QuotingMarket.TradingAccountID
	inst := e.cfg.QuotingMarket.InstrumentID
	adjusted := e.c.Adjuster.Adjust(e.quoMD, acc, raw)

	live, err := e.c.Registry.GetActiveOrdersByMarket(acc, inst)
	if err != nil {
		e.logger.Warn("order registry unavailable, skipping quote staging", zap.Error(err))
		return
	}
	intended, cancels := e.c.Throttle.Evaluate(acc, inst, adjusted, live)
	if len(intended) == 0 && len(cancels) == 0 {
		return
	}
	e.stagedQuotes, e.stagedCancels = intended, cancels
	if e.c.Monitor != nil {
		e.c.Monitor.RecordQuotesStaged(len(intended))
	}
}

func (e *BasisTrader) sideAllowed(side order.Side) bool {
	switch side {
	case order.SideBuy:
		return e.c.Risk.IsSendingBids()
	case order.SideSell:
		return e.c.Risk.IsSendingAsks()
	}
	return false
}

func (e *BasisTrader) setStateLocked(s ConditionsState) {
	if e.snap.State != s {
		e.logger.Info("conditions state changed",
			zap.Stringer("from", e.snap.State), zap.Stringer("to", s))
	}
	e.snap.State = s
	if e.c.Monitor != nil {
		e.c.Monitor.UpdateConditionsState(int(s))
	}
}

// UpdateQuotes 执行一轮下单：撤全部、对冲各处理一次并清除锁存，
// 两者任一发生时本轮结束；否则发送暂存的撤单、报价与吃单对冲。
func (e *BasisTrader) UpdateQuotes(ctx context.Context) {
	e.mu.Lock()
	cancelAll, hedge := e.pendingCancelAll, e.pendingHedge
	quotes, cancels := e.stagedQuotes, e.stagedCancels
	direction := e.direction
	e.pendingCancelAll, e.pendingHedge = false, false
	e.stagedQuotes, e.stagedCancels = nil, nil
	cfg := e.cfg
	e.mu.Unlock()

	send := e.c.Risk.SendOrders()
	if e.c.Monitor != nil {
		e.c.Monitor.UpdateRisk(e.c.Risk.GetTotalRisks().Delta, e.c.Risk.IsReduceOnly(), e.c.Switch == nil || e.c.Switch.IsEnabled())
	}

	if cancelAll {
		if send {
			e.cancelAll(ctx, cfg.QuotingMarket)
		}
		e.occ.Info("pending_cancel_all", time.Second, "cancelled all orders, trading conditions not met")
	}
	if hedge {
		if send {
			e.hedgeRisk(ctx, cfg.ReferenceMarket)
		}
		e.occ.Info("pending_hedge", time.Second, "hedged risk")
	}
	if cancelAll || hedge || !send {
		return
	}

	acc, inst := cfg.QuotingMarket.TradingAccountID, cfg.QuotingMarket.InstrumentID
	if len(cancels) > 0 {
		for _, id := range cancels {
			if err := e.c.Orders.CancelOrderRequest(ctx, acc, inst, id); err != nil {
				e.logger.Warn("cancel failed", zap.String("order_id", id), zap.Error(err))
			}
		}
		if e.c.Monitor != nil {
			e.c.Monitor.RecordCancelSent(len(cancels))
		}
		e.occ.Info("cancel_"+acc, time.Minute, "cancelled orders", zap.String("account", acc), zap.Int("count", len(cancels)))
	}
	sent := false
	for _, q := range quotes {
		if direction == "" || q.Side != direction || !e.sideAllowed(q.Side) {
			continue
		}
		sent = e.place(ctx, order.NewOrder{
			AccountID:    acc,
			InstrumentID: inst,
			Type:         order.TypeLimit,
			Side:         q.Side,
			Price:        q.Price,
			Quantity:     q.Quantity,
			PostOnly:     true,
			TimeInForce:  order.GTC,
			Context:      q.Context,
		}) || sent
	}
	if sent {
		e.c.Throttle.MarkSent(acc)
	}
	e.takerHedge(ctx, cfg.ReferenceMarket)
}

func (e *BasisTrader) cancelAll(ctx context.Context, m MarketSpecs) {
	if err := e.c.Orders.CancelAllOrdersRequest(ctx, m.TradingAccountID, m.InstrumentID); err != nil {
		e.logger.Warn("cancel all failed", zap.String("market", m.MarketID()), zap.Error(err))
		return
	}
	if e.c.Monitor != nil {
		e.c.Monitor.RecordCancelSent(1)
	}
}

// hedgeRisk 以市价单在参考市场对冲全部 delta，价格填参考 mid 作为提示。
func (e *BasisTrader) hedgeRisk(ctx context.Context, m MarketSpecs) {
	delta := e.c.Risk.GetTotalRisks().Delta
	if delta == 0 {
		return
	}
	side := order.SideSell
	if delta < 0 {
		side = order.SideBuy
	}
	mid, _ := e.refMD.MidPrice()
	if e.place(ctx, order.NewOrder{
		AccountID:    m.TradingAccountID,
		InstrumentID: m.InstrumentID,
		Type:         order.TypeMarket,
		Side:         side,
		Price:        mid,
		Quantity:     math.Abs(delta),
		TimeInForce:  order.GTC,
		Context:      order.HedgeContext,
	}) && e.c.Monitor != nil {
		e.c.Monitor.RecordHedge("market")
	}
}

// takerHedge 发送吃单对冲器的 IOC 意向
func (e *BasisTrader) takerHedge(ctx context.Context, m MarketSpecs) {
	if e.c.Hedger == nil {
		return
	}
	for _, in := range e.c.Hedger.Intents(e.refMD.Book(), e.now()) {
		if e.place(ctx, order.NewOrder{
			AccountID:    m.TradingAccountID,
			InstrumentID: m.InstrumentID,
			Type:         order.TypeLimit,
			Side:         in.Side,
			Price:        in.Price,
			Quantity:     in.Quantity,
			TimeInForce:  in.TimeInForce,
			Context:      order.HedgeContext,
		}) && e.c.Monitor != nil {
			e.c.Monitor.RecordHedge("taker")
		}
	}
}

func (e *BasisTrader) place(ctx context.Context, req order.NewOrder) bool {
	id, err := e.c.Orders.NewOrderRequest(ctx, req)
	if err != nil {
		e.logger.Warn("order request failed",
			zap.String("account", req.AccountID),
			zap.String("side", string(req.Side)),
			zap.Float64("price", req.Price),
			zap.Float64("qty", req.Quantity),
			zap.Error(err))
		if e.c.Monitor != nil {
			e.c.Monitor.RecordOrderRejected()
		}
		return false
	}
	e.logger.Debug("order sent", zap.String("order_id", id), zap.String("account", req.AccountID))
	if e.c.Monitor != nil {
		e.c.Monitor.RecordOrderSent(req.AccountID)
	}
	return true
}

// Run 单 goroutine 处理事件、持仓变化与定时刷新，直到 ctx 取消或事件通道关闭。
func (e *BasisTrader) Run(ctx context.Context, events <-chan Event) error {
	e.mu.Lock()
	interval := e.cfg.UpdateInterval
	e.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("basis trader loop started", zap.Duration("update_interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("basis trader loop stopped")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				e.logger.Info("event stream closed")
				return nil
			}
			e.handle(ctx, ev)
		case change := <-e.positions:
			e.onPositionChange(change)
		case <-ticker.C:
			e.UpdateQuotes(ctx)
		}
	}
}

func (e *BasisTrader) handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case BookTick:
		if err := e.OnOrderBookTick(ev.ExchangeID, ev.InstrumentID, ev.Book); err != nil {
			return
		}
		if e.c.Markets[market.MarketID(ev.ExchangeID, ev.InstrumentID)] == e.refMD {
			e.UpdateQuotes(ctx)
		}
	case FundingUpdate:
		e.OnFundingRate(ev.ExchangeID, ev.InstrumentID, ev.Rate)
	case MarketFill:
		e.OnMarketFill(ev.ExchangeID, ev.InstrumentID, ev.Price, ev.Qty, ev.Ts)
	case PositionUpdate:
		e.OnNetPositionChange(ev.NewPosition)
	default:
		e.logger.Warn("unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

// ApplyTunables 热更新阈值与阶梯
func (e *BasisTrader) ApplyTunables(t Tunables) error {
	if err := t.Ladder.Validate(); err != nil {
		return err
	}
	if t.PositionChangeThreshold <= 0 || t.MarginUsageThreshold <= 0 {
		return errors.New("position change and margin usage thresholds must be > 0")
	}
	e.mu.Lock()
	e.cfg.FundingRateThreshold = t.FundingRateThreshold
	e.cfg.BasisRateThreshold = t.BasisRateThreshold
	e.cfg.MarginUsageThreshold = t.MarginUsageThreshold
	e.cfg.PositionChangeThreshold = t.PositionChangeThreshold
	e.cfg.Ladder = t.Ladder
	e.mu.Unlock()
	e.logger.Info("tunables applied",
		zap.Float64("funding_rate_threshold", t.FundingRateThreshold),
		zap.Float64("basis_rate_threshold", t.BasisRateThreshold),
		zap.Float64("margin_usage_threshold", t.MarginUsageThreshold),
		zap.Float64("position_change_threshold", t.PositionChangeThreshold),
		zap.Int("ladder_rungs", len(t.Ladder)))
	return nil
}

// Config 当前参数
func (e *BasisTrader) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Snapshot 最近一次条件评估
func (e *BasisTrader) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// State 当前条件状态
func (e *BasisTrader) State() ConditionsState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.State
}

// CurrentBasis 最近一次计算的基差
func (e *BasisTrader) CurrentBasis() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap.Basis == nil {
		return 0, false
	}
	return *e.snap.Basis, true
}

// TradingDirection 报价市场的交易方向，条件不满足时为空
func (e *BasisTrader) TradingDirection() (order.Side, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.direction, e.direction != ""
}

func (e *BasisTrader) PendingCancelAll() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingCancelAll
}

func (e *BasisTrader) PendingHedge() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingHedge
}

// StagedQuotes 待发送报价的拷贝
func (e *BasisTrader) StagedQuotes() []strategy.Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]strategy.Quote, len(e.stagedQuotes))
	copy(out, e.stagedQuotes)
	return out
}

// StagedCancels 待撤订单 ID 的拷贝
func (e *BasisTrader) StagedCancels() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.stagedCancels))
	copy(out, e.stagedCancels)
	return out
}
