package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 交易条件
	basis          prometheus.Gauge
	fundingRate    prometheus.Gauge
	marginUsage    prometheus.Gauge
	conditions     prometheus.Gauge
	quotingMid     prometheus.Gauge
	priceRatio     prometheus.Gauge
	spread         prometheus.Gauge
	totalDelta     prometheus.Gauge
	reduceOnly     prometheus.Gauge
	tradingEnabled prometheus.Gauge
	pnl            prometheus.Gauge

	// 订单指标
	quotesStaged   prometheus.Counter
	ordersSent     *prometheus.CounterVec
	ordersRejected prometheus.Counter
	cancelsSent    prometheus.Counter
	hedgesSent     *prometheus.CounterVec
	fills          prometheus.Counter
	filledVolume   prometheus.Counter

	// 系统指标
	alertsRaised  *prometheus.CounterVec
	tickErrors    prometheus.Counter
	taskErrors    *prometheus.CounterVec
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
	feedMessages  *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "bt",
		Subsystem: "trader",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		basis:          gauge("basis", "当前基差 (perp-spot)/spot"),
		fundingRate:    gauge("funding_rate", "当前资金费率"),
		marginUsage:    gauge("margin_usage", "保证金使用率"),
		conditions:     gauge("conditions_state", "交易条件状态：0未知 1满足 2不满足"),
		quotingMid:     gauge("quoting_mid", "报价市场中间价"),
		priceRatio:     gauge("price_ratio", "报价市场/参考市场 合成中间价"),
		spread:         gauge("reference_spread", "参考市场相对价差"),
		totalDelta:     gauge("total_delta", "总 delta 风险"),
		reduceOnly:     gauge("reduce_only", "是否只减仓"),
		tradingEnabled: gauge("trading_enabled", "交易开关"),
		pnl:            gauge("pnl", "累计盈亏"),

		quotesStaged:   counter("quotes_staged_total", "节流后待发送报价数"),
		ordersSent:     counterVec("orders_sent_total", "已发送订单数", "account"),
		ordersRejected: counter("orders_rejected_total", "下单失败数"),
		cancelsSent:    counter("cancels_sent_total", "已发送撤单数"),
		hedgesSent:     counterVec("hedges_sent_total", "已发送对冲单数", "kind"),
		fills:          counter("fills_total", "成交笔数"),
		filledVolume:   counter("filled_volume_total", "累计成交量"),

		alertsRaised:  counterVec("alerts_raised_total", "已发出告警数", "key"),
		tickErrors:    counter("tick_errors_total", "行情处理异常数"),
		taskErrors:    counterVec("task_errors_total", "周期任务失败数", "task"),
		wsConnections: counter("ws_connections_total", "行情连接建立次数"),
		wsDisconnects: counter("ws_disconnects_total", "行情连接断开次数"),
		feedMessages:  counterVec("feed_messages_total", "行情消息数", "type"),
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// UpdateConditions 记录一次交易条件计算
func (m *Monitor) UpdateConditions(state int, basis, funding, margin float64) {
	m.conditions.Set(float64(state))
	m.basis.Set(basis)
	m.fundingRate.Set(funding)
	m.marginUsage.Set(margin)
}

// UpdateConditionsState 只更新状态
func (m *Monitor) UpdateConditionsState(state int) { m.conditions.Set(float64(state)) }

func (m *Monitor) UpdateQuotingMid(v float64) { m.quotingMid.Set(v) }

func (m *Monitor) UpdateSpread(v float64) { m.spread.Set(v) }

func (m *Monitor) UpdatePriceRatio(v float64) { m.priceRatio.Set(v) }

// UpdateRisk 风控状态
func (m *Monitor) UpdateRisk(delta float64, reduceOnly, enabled bool) {
	m.totalDelta.Set(delta)
	m.reduceOnly.Set(boolGauge(reduceOnly))
	m.tradingEnabled.Set(boolGauge(enabled))
}

func (m *Monitor) UpdatePnL(v float64) { m.pnl.Set(v) }

func (m *Monitor) RecordQuotesStaged(n int) { m.quotesStaged.Add(float64(n)) }

func (m *Monitor) RecordOrderSent(account string) { m.ordersSent.WithLabelValues(account).Inc() }

func (m *Monitor) RecordOrderRejected() { m.ordersRejected.Inc() }

func (m *Monitor) RecordCancelSent(n int) { m.cancelsSent.Add(float64(n)) }

// RecordHedge kind: market / taker
func (m *Monitor) RecordHedge(kind string) { m.hedgesSent.WithLabelValues(kind).Inc() }

// RecordFill 成交
func (m *Monitor) RecordFill(qty float64) {
	m.fills.Inc()
	m.filledVolume.Add(qty)
}

func (m *Monitor) RecordAlert(key string) { m.alertsRaised.WithLabelValues(key).Inc() }

func (m *Monitor) RecordTickError() { m.tickErrors.Inc() }

func (m *Monitor) RecordTaskError(task string) { m.taskErrors.WithLabelValues(task).Inc() }

func (m *Monitor) RecordWSConnection() { m.wsConnections.Inc() }

func (m *Monitor) RecordWSDisconnect() { m.wsDisconnects.Inc() }

func (m *Monitor) RecordFeedMessage(kind string) { m.feedMessages.WithLabelValues(kind).Inc() }

// Handler 返回HTTP handler用于暴露metrics
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
