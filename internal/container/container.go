package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appcfg "basis-trader-go/config"
	"basis-trader-go/gateway"
	"basis-trader-go/infrastructure/alert"
	"basis-trader-go/infrastructure/logger"
	"basis-trader-go/infrastructure/monitor"
	hotreload "basis-trader-go/internal/config"
	"basis-trader-go/internal/engine"
	"basis-trader-go/internal/scheduler"
	"basis-trader-go/inventory"
	"basis-trader-go/market"
	"basis-trader-go/metrics"
	"basis-trader-go/order"
	"basis-trader-go/risk"
	"basis-trader-go/strategy"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        appcfg.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 账户与风控
	ledger *inventory.Ledger
	risk   *risk.Manager

	// 行情
	markets    map[string]*market.MarketData
	priceRatio *market.ReferencePrice
	vwap       market.VWAP
	tradeVWAP  *market.TradeVWAP
	prices     *metrics.Collector
	spreads    *metrics.Collector

	// 策略组件
	fader    *strategy.LinearFader
	adjuster *strategy.QuoteAdjuster
	throttle *strategy.OrderThrottle
	twap     *strategy.TWAP
	hedger   *strategy.TakerHedger

	// 执行与编排
	feed   *gateway.Feed
	orders *order.Manager
	engine *engine.BasisTrader

	supervisor *scheduler.Supervisor
	reloader   *hotreload.HotReloader

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例。configPath 用于热更新，为空时不监听。
func New(cfg appcfg.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildAccounts(); err != nil {
		return fmt.Errorf("build accounts failed: %w", err)
	}
	if err := c.buildMarketData(); err != nil {
		return fmt.Errorf("build market data failed: %w", err)
	}
	if err := c.buildStrategy(); err != nil {
		return fmt.Errorf("build strategy failed: %w", err)
	}
	if err := c.buildExecution(); err != nil {
		return fmt.Errorf("build execution failed: %w", err)
	}
	if err := c.buildScheduler(); err != nil {
		return fmt.Errorf("build scheduler failed: %w", err)
	}
	if err := c.buildHotReload(); err != nil {
		return fmt.Errorf("build hot reload failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.Bool("paper_trading", c.cfg.PaperTrading),
		zap.Bool("send_orders", c.cfg.SendOrders))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Logger)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager(c.cfg.Alert, alert.NewLogChannel("log", c.logger.Named("alert")))

	c.logger.Info("infrastructure built", zap.String("env", c.cfg.Env))
	return nil
}

// buildAccounts 账本按配置初始化，风控从账本读取持仓、余额与费率
func (c *Container) buildAccounts() error {
	c.ledger = inventory.NewLedger(c.logger.Named("ledger"))
	base, _, _ := strings.Cut(c.cfg.Risk.InstrumentID, "/")
	var basePosition float64
	for id, acc := range c.cfg.Accounts {
		c.ledger.AddAccount(id)
		for ccy, amount := range acc.Balances {
			c.ledger.SetBalance(id, ccy, amount)
			if ccy == base {
				basePosition += amount
			}
		}
		for inst, fee := range acc.MakerFees {
			c.ledger.SetMakerFee(id, inst, fee)
		}
		if acc.MarginUsage != nil {
			c.ledger.SetMarginUsage(id, *acc.MarginUsage)
		}
	}
	c.ledger.SetPosition(base, basePosition)

	rc := c.cfg.Risk
	var err error
	c.risk, err = risk.NewManager(risk.ManagerConfig{
		InstrumentID:          rc.InstrumentID,
		Limit:                 risk.LimitFromMap(rc.Limits),
		MaxLoss:               rc.MaxLoss,
		ManualSkew:            rc.ManualSkew,
		ReduceOnly:            rc.ReduceOnly,
		SendOrders:            c.cfg.SendOrders,
		DollarQuotingSize:     c.cfg.Strategy.Ladder().MaxDollarSize(),
		LargeFillLookback:     rc.LargeFillLookback,
		LargeFillThresholdUSD: rc.LargeFillThresholdUSD,
		LargeFillCooldown:     rc.LargeFillCooldown,
		Option:                rc.Option,
		OptionVolatility:      rc.OptionVolatility,
		OptionRate:            rc.OptionRate,
		DefaultMakerFee:       rc.DefaultMakerFee,
	}, risk.NewTradingSwitch(c.cfg.Env), &monitoredAlerter{alerts: c.alerts, monitor: c.monitor}, c.logger.Named("risk"))
	if err != nil {
		return err
	}
	c.risk.SetAccountManager(c.ledger)
	c.ledger.SetPositionListener(c.risk.UpdateNetSpotPositions)
	if err := c.risk.RefreshSpotPositions(context.Background()); err != nil {
		c.logger.Warn("initial position refresh failed", zap.Error(err))
	}
	return nil
}

func (c *Container) buildMarketData() error {
	s := c.cfg.Strategy
	c.markets = make(map[string]*market.MarketData, 2)
	for _, m := range []appcfg.MarketConfig{s.ReferenceMarket, s.QuotingMarket} {
		spec := m.Spec()
		if _, dup := c.markets[spec.ID()]; dup {
			return fmt.Errorf("duplicate market %s", spec.ID())
		}
		c.markets[spec.ID()] = market.NewMarketData(spec, c.logger.Named("market"))
	}

	// 报价市场 / 参考市场
	c.priceRatio = market.NewReferencePrice(c.logger.Named("market"),
		market.ReferenceComponent{Data: c.markets[s.QuotingMarket.Spec().ID()], Multiplier: 1},
		market.ReferenceComponent{Data: c.markets[s.ReferenceMarket.Spec().ID()], Multiplier: -1},
	)

	if c.cfg.VWAP.Resolution > 0 {
		c.vwap = market.NewBucketedVWAP(c.cfg.VWAP.Period, c.cfg.VWAP.Resolution)
	} else {
		c.vwap = market.NewSimpleVWAP(c.cfg.VWAP.Period)
	}

	sampling := func(name string) metrics.CollectorConfig {
		return metrics.CollectorConfig{Name: name, Interval: c.cfg.Sampling.Interval, MaxLength: c.cfg.Sampling.MaxLength}
	}
	c.prices = metrics.NewCollector(sampling("mid"), c.risk.MarketMid, c.logger.Named("metrics"))
	c.spreads = metrics.NewCollector(sampling("spread"), c.risk.MarketSpread, c.logger.Named("metrics"))

	if c.cfg.TradeVWAP.Enabled {
		c.tradeVWAP = market.NewTradeVWAP(c.cfg.TradeVWAP, s.QuotingMarket.InstrumentID,
			[]string{s.QuotingMarket.TradingAccountID}, c.ledger, c.logger.Named("trade_vwap"))
	}
	return nil
}

func (c *Container) buildStrategy() error {
	var err error
	ladder := c.cfg.Strategy.Ladder()
	c.fader, err = strategy.NewLinearFader(c.cfg.Fader, c.risk, c.risk.TradingSwitch(), c.logger.Named("fader"))
	if err != nil {
		return err
	}
	deps := strategy.AdjusterDeps{
		Fees:       c.risk,
		Prices:     c.prices,
		Spreads:    c.spreads,
		MarketVWAP: c.vwap,
	}
	if c.tradeVWAP != nil {
		deps.TradeVWAP = c.tradeVWAP
	}
	c.adjuster = strategy.NewQuoteAdjuster(c.cfg.Adjuster, ladder, deps, c.logger.Named("adjuster"))
	c.throttle = strategy.NewOrderThrottle(c.cfg.Throttle, c.logger.Named("throttle"))
	if c.cfg.TWAP != nil {
		c.twap = strategy.NewTWAP(*c.cfg.TWAP, c.risk, c.logger.Named("twap"))
	}
	if c.cfg.Hedger != nil {
		c.hedger = strategy.NewTakerHedger(*c.cfg.Hedger, c.risk.TradingSwitch(), c.logger.Named("hedger"))
	}
	return nil
}

func (c *Container) buildExecution() error {
	c.feed = gateway.NewFeed(gateway.FeedConfig{
		URL:          c.cfg.Feed.URL,
		ReconnectMin: c.cfg.Feed.ReconnectMin,
		ReconnectMax: c.cfg.Feed.ReconnectMax,
		OrderRate:    c.cfg.Feed.OrderRate,
		OrderBurst:   c.cfg.Feed.OrderBurst,
	}, c.monitor, c.logger.Logger)

	// 纸面交易不接下游；否则经推送连接回写指令
	var gw order.Gateway
	if !c.cfg.PaperTrading {
		gw = c.feed
	}
	c.orders = order.NewManager(gw, nil, c.logger.Named("orders"))
	constraints := make(map[string]order.SymbolConstraints, 2)
	for _, m := range []appcfg.MarketConfig{c.cfg.Strategy.ReferenceMarket, c.cfg.Strategy.QuotingMarket} {
		constraints[order.ConstraintKey(m.TradingAccountID, m.InstrumentID)] = order.SymbolConstraints{
			TickSize:    m.PricePrecision,
			StepSize:    m.SizePrecision,
			MinNotional: m.MinNotional,
		}
	}
	c.orders.SetConstraints(constraints)
	c.orders.SetFillListener(func(o order.Order, qty, price float64) {
		c.logger.LogFill(o.AccountID, o.ID, string(o.Side), qty, price)
		c.ledger.OnOrderFill(o, qty, price)
		c.monitor.RecordFill(qty)
	})
	c.feed.SetFillHandler(func(orderID string, qty, price float64) {
		if err := c.orders.Fill(orderID, qty, price); err != nil {
			c.logger.Warn("fill report not applied", zap.String("order_id", orderID), zap.Error(err))
		}
	})

	var err error
	c.engine, err = engine.New(engineConfig(c.cfg.Strategy), engine.Components{
		Markets:    c.markets,
		Risk:       c.risk,
		Switch:     c.risk.TradingSwitch(),
		Fader:      c.fader,
		Adjuster:   c.adjuster,
		Throttle:   c.throttle,
		Hedger:     c.hedger,
		Orders:     c.orders,
		Registry:   c.orders.Book(),
		Margin:     c.ledger,
		Balances:   c.ledger,
		Monitor:    c.monitor,
		MarketVWAP: c.vwap,
		Logger:     c.logger.Logger,
	})
	return err
}

func (c *Container) buildScheduler() error {
	c.supervisor = scheduler.NewSupervisor(c.logger.Named("scheduler"))
	c.supervisor.SetErrorHook(func(task string, err error) {
		c.monitor.RecordTaskError(task)
	})

	tasks := []scheduler.Task{
		c.prices,
		c.spreads,
		c.risk.PositionSampler(),
		&inventory.Sync{Ledger: c.ledger, Risk: c.risk, InstrumentID: c.cfg.Risk.InstrumentID},
		&monitorSync{
			risk:    c.risk,
			monitor: c.monitor,
			ratio:   c.priceRatio,
			account: c.cfg.Strategy.QuotingMarket.TradingAccountID,
			every:   c.cfg.Sampling.Interval,
		},
	}
	if c.twap != nil {
		tasks = append(tasks, c.twap)
	}
	if c.tradeVWAP != nil {
		tasks = append(tasks, c.tradeVWAP)
	}
	for _, t := range tasks {
		if err := c.supervisor.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) buildHotReload() error {
	if c.configPath == "" {
		return nil
	}
	var err error
	c.reloader, err = hotreload.NewHotReloader(c.configPath, hotreload.DefaultHotReloadConfig(), c.logger.Named("hot_reload"))
	if err != nil {
		return err
	}
	c.reloader.RegisterApplier("logger", hotreload.ApplierFunc(func(cfg appcfg.AppConfig) error {
		return c.logger.SetLevel(cfg.Logger.Level)
	}))
	c.reloader.RegisterApplier("engine", hotreload.ApplierFunc(func(cfg appcfg.AppConfig) error {
		s := cfg.Strategy
		return c.engine.ApplyTunables(engine.Tunables{
			FundingRateThreshold:    s.FundingRateThreshold,
			BasisRateThreshold:      s.BasisRateThreshold,
			MarginUsageThreshold:    s.MarginUsageThreshold,
			PositionChangeThreshold: s.PositionChangeThreshold,
			Ladder:                  s.Ladder(),
		})
	}))
	c.reloader.RegisterApplier("risk", hotreload.ApplierFunc(func(cfg appcfg.AppConfig) error {
		c.risk.SetSendOrders(cfg.SendOrders)
		c.risk.SetReduceOnly(cfg.Risk.ReduceOnly)
		c.risk.SetManualSkew(cfg.Risk.ManualSkew)
		c.risk.SetLimit(risk.LimitFromMap(cfg.Risk.Limits))
		c.risk.SetMaxLoss(cfg.Risk.MaxLoss)
		return nil
	}))
	c.reloader.RegisterApplier("strategy", hotreload.ApplierFunc(func(cfg appcfg.AppConfig) error {
		if cfg.Fader.Penalty < 0 {
			return errors.New("fader penalty must be >= 0")
		}
		c.fader.SetPenalty(cfg.Fader.Penalty)
		c.adjuster.SetConfig(cfg.Adjuster)
		c.throttle.SetConfig(cfg.Throttle)
		return nil
	}))
	return nil
}

func (c *Container) registerLifecycleComponents() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.monitor.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := c.HealthCheck(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	c.lifecycle.Register(&httpServerComponent{
		name:    "metrics_server",
		handler: mux,
		addr:    c.cfg.MetricsAddr,
		logger:  c.logger,
		server:  &c.metricsServer,
	})
	c.lifecycle.Register(c.supervisor)
	c.lifecycle.Register(c.feed)
	// 逆序停止：引擎先于推送停止，撤单指令仍可发出
	c.lifecycle.Register(&engineComponent{
		engine:     c.engine,
		orders:     c.orders,
		sendOrders: c.risk.SendOrders,
		events:     c.feed.Events(),
		quoting:    c.cfg.Strategy.QuotingMarket,
		logger:     c.logger.Named("engine_loop"),
	})
	if c.reloader != nil {
		c.lifecycle.Register(c.reloader)
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, zap.String("action", "stop"))
	}
	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Engine 编排器
func (c *Container) Engine() *engine.BasisTrader { return c.engine }

// Orders 订单管理器
func (c *Container) Orders() *order.Manager { return c.orders }

// Ledger 账本
func (c *Container) Ledger() *inventory.Ledger { return c.ledger }

// Risk 风控
func (c *Container) Risk() *risk.Manager { return c.risk }

// Monitor 指标
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

func engineConfig(s appcfg.StrategyConfig) engine.Config {
	specs := func(m appcfg.MarketConfig) engine.MarketSpecs {
		return engine.MarketSpecs{
			ExchangeID:       m.ExchangeID,
			InstrumentID:     m.InstrumentID,
			Class:            engine.InstrumentClass(m.Class),
			TradingAccountID: m.TradingAccountID,
		}
	}
	return engine.Config{
		ReferenceMarket:          specs(s.ReferenceMarket),
		QuotingMarket:            specs(s.QuotingMarket),
		FundingRateThreshold:     s.FundingRateThreshold,
		BasisRateThreshold:       s.BasisRateThreshold,
		MarginUsageThreshold:     s.MarginUsageThreshold,
		PositionChangeThreshold:  s.PositionChangeThreshold,
		Ladder:                   s.Ladder(),
		UnhedgedRiskThresholdUSD: s.UnhedgedRiskThresholdUSD,
		TargetPositionUSD:        s.TargetPositionUSD,
		UpdateInterval:           s.UpdateInterval,
	}
}

// monitoredAlerter 告警发出时计数
type monitoredAlerter struct {
	alerts  *alert.Manager
	monitor *monitor.Monitor
}

func (a *monitoredAlerter) Raise(key, title, text string, critical bool, limit time.Duration) (bool, error) {
	sent, err := a.alerts.Raise(key, title, text, critical, limit)
	if sent {
		a.monitor.RecordAlert(key)
	}
	return sent, err
}

// monitorSync 周期刷新风控相关指标，并检查报价账户余额（不足时由风控告警）
type monitorSync struct {
	risk    *risk.Manager
	monitor *monitor.Monitor
	ratio   *market.ReferencePrice
	account string
	every   time.Duration
}

func (m *monitorSync) Name() string { return "monitor_sync" }

func (m *monitorSync) Interval() time.Duration {
	if m.every <= 0 {
		return time.Second
	}
	return m.every
}

func (m *monitorSync) Tick(context.Context) error {
	m.monitor.UpdateRisk(m.risk.GetTotalRisks().Delta, m.risk.IsReduceOnly(), m.risk.TradingSwitch().IsEnabled())
	m.monitor.UpdatePnL(m.risk.PnL())
	if v, ok := m.ratio.MidPrice(); ok {
		m.monitor.UpdatePriceRatio(v)
	}
	m.risk.IsBalanceEnoughForQuoting(m.account)
	return nil
}
