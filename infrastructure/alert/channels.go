package alert

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// LogChannel 通过 zap 输出告警
type LogChannel struct {
	logger *zap.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger, name: name}
}

// Send 以 warn/error 级别记录告警
func (c *LogChannel) Send(a Alert) error {
	fields := []zap.Field{
		zap.String("key", a.Key),
		zap.String("title", a.Title),
		zap.String("channel", a.Channel),
		zap.String("severity", string(a.Severity)),
		zap.Any("tags", a.Tags),
		zap.Time("ts", a.Timestamp),
	}
	if a.Severity == SeverityCritical || a.Severity == SeverityError {
		c.logger.Error(a.Text, fields...)
		return nil
	}
	c.logger.Warn(a.Text, fields...)
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string { return c.name }

// MockChannel 记录收到的告警（用于测试）
type MockChannel struct {
	name      string
	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

// Send 记录告警
func (c *MockChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return errors.New("mock error")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string { return c.name }

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// Keys 返回已收到告警的 key 列表
func (c *MockChannel) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.alerts))
	for _, a := range c.alerts {
		keys = append(keys, a.Key)
	}
	return keys
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

// Clear 清空告警记录
func (c *MockChannel) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = nil
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
