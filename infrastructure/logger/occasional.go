package logger

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Occasional 按 id 限频输出日志：同一 id 在 interval 内只打印一次。
type Occasional struct {
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewOccasional 创建限频日志器
func NewOccasional(l *zap.Logger) *Occasional {
	if l == nil {
		l = zap.NewNop()
	}
	return &Occasional{logger: l, now: time.Now, last: make(map[string]time.Time)}
}

// SetClock 测试注入
func (o *Occasional) SetClock(now func() time.Time) { o.now = now }

// Info 超过 interval 才输出，返回是否输出
func (o *Occasional) Info(id string, interval time.Duration, msg string, fields ...zap.Field) bool {
	now := o.now()
	o.mu.Lock()
	last, seen := o.last[id]
	if seen && now.Sub(last) <= interval {
		o.mu.Unlock()
		return false
	}
	o.last[id] = now
	o.mu.Unlock()
	o.logger.Info(msg, append(fields, zap.String("log_id", id))...)
	return true
}
