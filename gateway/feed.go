package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"basis-trader-go/infrastructure/monitor"
	"basis-trader-go/internal/engine"
	"basis-trader-go/order"
)

var ErrNotConnected = errors.New("feed not connected")

// FeedConfig 推送连接参数
type FeedConfig struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	ReadTimeout  time.Duration
	BufferSize   int

	// 下行指令限速，0 表示不限
	OrderRate  float64
	OrderBurst int
}

// Feed 连接标准化行情推送，解析后以引擎事件投递；断线按指数退避重连。
// 同一连接也作为执行通道：Place/Cancel 以 JSON 指令写回对端。
type Feed struct {
	cfg     FeedConfig
	dialer  *websocket.Dialer
	monitor *monitor.Monitor
	logger  *zap.Logger
	events  chan engine.Event
	limiter RateLimiter

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	onFill  func(orderID string, qty, price float64)
}

// NewFeed 创建推送客户端；monitor 可为 nil。
func NewFeed(cfg FeedConfig, mon *monitor.Monitor, logger *zap.Logger) *Feed {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		monitor: mon,
		logger:  logger.Named("feed"),
		events:  make(chan engine.Event, cfg.BufferSize),
	}
	if cfg.OrderRate > 0 {
		f.limiter = NewTokenBucketLimiter(cfg.OrderRate, cfg.OrderBurst)
	}
	return f
}

// SetFillHandler 自有订单成交回报，需在 Start 前设置
func (f *Feed) SetFillHandler(fn func(orderID string, qty, price float64)) {
	f.mu.Lock()
	f.onFill = fn
	f.mu.Unlock()
}

// Events 事件通道，Stop 后关闭。
func (f *Feed) Events() <-chan engine.Event { return f.events }

// Start 后台连接并读取
func (f *Feed) Start(ctx context.Context) error {
	if f.cfg.URL == "" {
		return errors.New("feed url required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(runCtx)
	return nil
}

// Stop 断开连接并等待读循环退出
func (f *Feed) Stop() error {
	f.mu.Lock()
	cancel, done, conn := f.cancel, f.done, f.conn
	f.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
	return nil
}

// Health 未连接时报错
func (f *Feed) Health() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return ErrNotConnected
	}
	return nil
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.events)

	backoff := f.cfg.ReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			f.logger.Warn("feed dial failed", zap.String("url", f.cfg.URL), zap.Duration("retry_in", backoff), zap.Error(err))
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, f.cfg.ReconnectMax)
			continue
		}
		backoff = f.cfg.ReconnectMin

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		if f.monitor != nil {
			f.monitor.RecordWSConnection()
		}
		f.logger.Info("feed connected", zap.String("url", f.cfg.URL))

		f.readLoop(ctx, conn)

		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		if f.monitor != nil {
			f.monitor.RecordWSDisconnect()
		}
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("feed disconnected, reconnecting", zap.Duration("retry_in", backoff))
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Warn("feed read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))

		msg, err := decodeFeedMessage(raw)
		if err != nil {
			f.logger.Warn("bad feed message", zap.ByteString("raw", raw), zap.Error(err))
			continue
		}
		if msg.Type == "fill" {
			f.handleFill(msg)
			continue
		}
		ev, err := msg.Event()
		if err != nil {
			if !errors.Is(err, ErrUnknownMessage) {
				f.logger.Warn("bad feed message", zap.ByteString("raw", raw), zap.Error(err))
			}
			continue
		}
		if f.monitor != nil {
			f.monitor.RecordFeedMessage(eventKind(ev))
		}
		select {
		case f.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Feed) handleFill(msg FeedMessage) {
	f.mu.Lock()
	fn := f.onFill
	f.mu.Unlock()
	if f.monitor != nil {
		f.monitor.RecordFeedMessage("fill")
	}
	if fn == nil || msg.OrderID == "" {
		return
	}
	fn(msg.OrderID, msg.Qty, msg.Price)
}

func eventKind(ev engine.Event) string {
	switch ev.(type) {
	case engine.BookTick:
		return "book"
	case engine.FundingUpdate:
		return "funding"
	case engine.MarketFill:
		return "trade"
	case engine.PositionUpdate:
		return "position"
	}
	return "unknown"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// orderCommand 写回对端的执行指令
type orderCommand struct {
	Type         string  `json:"type"` // place / cancel
	OrderID      string  `json:"order_id"`
	AccountID    string  `json:"account_id"`
	InstrumentID string  `json:"instrument_id"`
	OrderType    string  `json:"order_type,omitempty"`
	Side         string  `json:"side,omitempty"`
	Price        float64 `json:"price,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
	TimeInForce  string  `json:"time_in_force,omitempty"`
	PostOnly     bool    `json:"post_only,omitempty"`
}

// Place 实现 order.Gateway
func (f *Feed) Place(ctx context.Context, o order.Order) error {
	return f.send(ctx, orderCommand{
		Type:         "place",
		OrderID:      o.ID,
		AccountID:    o.AccountID,
		InstrumentID: o.InstrumentID,
		OrderType:    string(o.Type),
		Side:         string(o.Side),
		Price:        o.Price,
		Quantity:     o.Quantity,
		TimeInForce:  string(o.TimeInForce),
		PostOnly:     o.PostOnly,
	})
}

// Cancel 实现 order.Gateway
func (f *Feed) Cancel(ctx context.Context, o order.Order) error {
	return f.send(ctx, orderCommand{
		Type:         "cancel",
		OrderID:      o.ID,
		AccountID:    o.AccountID,
		InstrumentID: o.InstrumentID,
	})
}

func (f *Feed) send(ctx context.Context, cmd orderCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send %s %s: %w", cmd.Type, cmd.OrderID, err)
		}
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s %s: %w", cmd.Type, cmd.OrderID, err)
	}
	return nil
}
