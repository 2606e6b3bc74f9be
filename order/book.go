package order

import "sync"

// Registry 只读的订单登记簿。
type Registry interface {
	// GetActiveOrdersByMarket 返回账户在某品种上所有活跃订单，key 为订单 ID
	GetActiveOrdersByMarket(accountID, instrumentID string) (map[string]Order, error)
}

// Book 内存订单簿，记录订单和状态，实现 Registry。
type Book struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewBook() *Book {
	return &Book{orders: make(map[string]Order)}
}

func (b *Book) Set(o Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = o
}

func (b *Book) Get(id string) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	return o, ok
}

// Delete 移除订单
func (b *Book) Delete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.orders, id)
}

// List 返回全部订单（拷贝）。
func (b *Book) List() []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		res = append(res, o)
	}
	return res
}

// GetActiveOrdersByMarket 实现 Registry
func (b *Book) GetActiveOrdersByMarket(accountID, instrumentID string) (map[string]Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make(map[string]Order)
	for id, o := range b.orders {
		if o.AccountID == accountID && o.InstrumentID == instrumentID && IsActive(o.Status) {
			res[id] = o
		}
	}
	return res, nil
}

// PruneFinal 清理终态订单，返回清理数量。
func (b *Book) PruneFinal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, o := range b.orders {
		if IsFinal(o.Status) {
			delete(b.orders, id)
			n++
		}
	}
	return n
}
