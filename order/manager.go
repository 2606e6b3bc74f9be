package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownOrder = errors.New("unknown order")
	ErrNotCancelable = errors.New("order not cancelable")
)

// NewOrder 下单请求
type NewOrder struct {
	AccountID    string
	InstrumentID string
	Type         Type
	Side         Side
	Price        float64
	Quantity     float64
	PostOnly     bool
	TimeInForce  TimeInForce
	Context      Context
}

// Requester 下单/撤单出口。
type Requester interface {
	NewOrderRequest(ctx context.Context, req NewOrder) (string, error)
	CancelOrderRequest(ctx context.Context, accountID, instrumentID, orderID string) error
	CancelAllOrdersRequest(ctx context.Context, accountID, instrumentID string) error
}

// Gateway 下游执行通道；同步返回即表示交易所已受理。
type Gateway interface {
	Place(ctx context.Context, o Order) error
	Cancel(ctx context.Context, o Order) error
}

// Manager 维护订单状态并通过 Gateway 下发。gw 为 nil 时为纸面交易：
// 限价 GTC 订单本地确认后挂在簿上，市价与 IOC/FOK 订单按请求价即时全部成交。
type Manager struct {
	gw     Gateway
	book   *Book
	sm     *StateMachine
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	constraints map[string]SymbolConstraints
	onFill      func(o Order, qty, price float64)
}

// NewManager 创建订单管理器
func NewManager(gw Gateway, book *Book, logger *zap.Logger) *Manager {
	if book == nil {
		book = NewBook()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		gw:          gw,
		book:        book,
		sm:          NewStateMachine(),
		logger:      logger,
		now:         time.Now,
		constraints: make(map[string]SymbolConstraints),
	}
}

// Book 底层订单簿，同时作为 Registry 使用
func (m *Manager) Book() *Book { return m.book }

// IsPaper 是否纸面交易
func (m *Manager) IsPaper() bool { return m.gw == nil }

// SetFillListener 注入成交回调
func (m *Manager) SetFillListener(fn func(o Order, qty, price float64)) {
	m.mu.Lock()
	m.onFill = fn
	m.mu.Unlock()
}

// ConstraintKey 账户维度的约束键；同一品种在不同交易所精度不同。
func ConstraintKey(accountID, instrumentID string) string {
	return accountID + ":" + instrumentID
}

// SetConstraints 设置各品种的精度/名义限制。键为 ConstraintKey 或裸品种名，前者优先。
func (m *Manager) SetConstraints(c map[string]SymbolConstraints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = make(map[string]SymbolConstraints, len(c))
	for sym, sc := range c {
		m.constraints[sym] = sc
	}
}

// NewOrderRequest 登记并下发订单，返回订单 ID。约束校验失败或下游拒绝时订单记为 Rejected。
func (m *Manager) NewOrderRequest(ctx context.Context, req NewOrder) (string, error) {
	if req.Type == "" {
		req.Type = TypeLimit
	}
	if req.TimeInForce == "" {
		req.TimeInForce = GTC
	}
	o := Order{
		ID:           uuid.NewString(),
		AccountID:    req.AccountID,
		InstrumentID: req.InstrumentID,
		Type:         req.Type,
		Side:         req.Side,
		Price:        req.Price,
		Quantity:     req.Quantity,
		TimeInForce:  req.TimeInForce,
		PostOnly:     req.PostOnly,
		Context:      req.Context,
		Status:       StatusUnsubmitted,
		CreatedAt:    m.now(),
	}
	if o.Quantity <= 0 {
		return "", fmt.Errorf("order quantity must be positive, got %g", o.Quantity)
	}
	if err := m.validateConstraint(o); err != nil {
		o.Status, o.LastError = StatusRejected, err.Error()
		m.book.Set(o)
		return o.ID, err
	}
	o.Status = StatusSubmitted
	m.book.Set(o)

	if m.gw != nil {
		if err := m.gw.Place(ctx, o); err != nil {
			m.transition(o.ID, StatusRejected, err)
			m.logger.Warn("order rejected", zap.String("order_id", o.ID), zap.Error(err))
			return o.ID, err
		}
		m.transition(o.ID, StatusAcknowledged, nil)
		return o.ID, nil
	}

	m.transition(o.ID, StatusAcknowledged, nil)
	if o.Type == TypeMarket || o.TimeInForce == IOC || o.TimeInForce == FOK {
		if err := m.Fill(o.ID, o.Quantity, o.Price); err != nil {
			return o.ID, err
		}
	}
	m.logger.Debug("paper order accepted", zap.Stringer("order", o))
	return o.ID, nil
}

// CancelOrderRequest 撤单
func (m *Manager) CancelOrderRequest(ctx context.Context, accountID, instrumentID, orderID string) error {
	o, ok := m.book.Get(orderID)
	if !ok || o.AccountID != accountID || o.InstrumentID != instrumentID {
		return ErrUnknownOrder
	}
	if !CanCancel(o.Status) {
		return fmt.Errorf("%w: %s is %s", ErrNotCancelable, orderID, o.Status)
	}
	if err := m.transition(orderID, StatusPendingCancel, nil); err != nil {
		return err
	}
	if m.gw != nil {
		if err := m.gw.Cancel(ctx, o); err != nil {
			m.transition(orderID, StatusCancelRejected, err)
			return err
		}
	}
	return m.transition(orderID, StatusCancelled, nil)
}

// CancelAllOrdersRequest 撤销账户在该品种上的全部活跃订单
func (m *Manager) CancelAllOrdersRequest(ctx context.Context, accountID, instrumentID string) error {
	active, _ := m.book.GetActiveOrdersByMarket(accountID, instrumentID)
	var errs []error
	for id, o := range active {
		if !CanCancel(o.Status) {
			continue
		}
		if err := m.CancelOrderRequest(ctx, accountID, instrumentID, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Update 收到回报后更新状态
func (m *Manager) Update(id string, st Status) error {
	return m.transition(id, st, nil)
}

// Fill 记录一笔成交并通知监听者。
func (m *Manager) Fill(id string, qty, price float64) error {
	o, ok := m.book.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	if qty <= 0 {
		return nil
	}
	o.FilledQuantity += qty
	next := StatusPartiallyFilled
	if o.FilledQuantity >= o.Quantity {
		o.FilledQuantity = o.Quantity
		next = StatusFilled
	}
	if err := m.sm.ValidateTransition(o.Status, next); err != nil {
		return err
	}
	o.Status = next
	m.book.Set(o)

	m.mu.RLock()
	fn := m.onFill
	m.mu.RUnlock()
	if fn != nil {
		fn(o, qty, price)
	}
	return nil
}

// Status 返回订单当前状态
func (m *Manager) Status(id string) (Status, bool) {
	o, ok := m.book.Get(id)
	if !ok {
		return "", false
	}
	return o.Status, true
}

func (m *Manager) transition(id string, st Status, cause error) error {
	o, ok := m.book.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	if err := m.sm.ValidateTransition(o.Status, st); err != nil {
		return err
	}
	o.Status = st
	if cause != nil {
		o.LastError = cause.Error()
	}
	m.book.Set(o)
	return nil
}

func (m *Manager) validateConstraint(o Order) error {
	m.mu.RLock()
	c, ok := m.constraints[ConstraintKey(o.AccountID, o.InstrumentID)]
	if !ok {
		c, ok = m.constraints[o.InstrumentID]
	}
	m.mu.RUnlock()
	if !ok || o.Type == TypeMarket {
		return nil
	}
	return c.Validate(o.Price, o.Quantity)
}
