package alert

import (
	"fmt"
	"sync"
	"time"
)

// Severity 告警级别
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Alert 告警事件，对应下游 enqueue_event(title, text, channel, severity, tags)。
type Alert struct {
	Key       string
	Title     string
	Text      string
	Channel   string
	Severity  Severity
	Tags      map[string]string
	Timestamp time.Time
}

// Channel 告警投递通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Config 告警配置
type Config struct {
	Project         string `yaml:"project"`
	TradingChannel  string `yaml:"trading_channel"`
	CriticalChannel string `yaml:"critical_channel"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Project:         "basis-trader",
		TradingChannel:  "alerts-trading",
		CriticalChannel: "alerts-critical",
	}
}

// Throttler 按 key 记录上次发送时间的限流器。
// 与上次发送间隔不超过 limit 的告警被丢弃。
type Throttler struct {
	lastSent map[string]time.Time
	now      func() time.Time
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler() *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow 检查 key 是否允许发送；允许时记录发送时间。
func (t *Throttler) Allow(key string, limit time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, exists := t.lastSent[key]
	if exists && now.Sub(last) <= limit {
		return false
	}
	t.lastSent[key] = now
	return true
}

// Reset 重置某个 key
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Manager 告警管理器：按 key 去重后投递到所有通道。
type Manager struct {
	cfg      Config
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// NewManager 创建告警管理器
func NewManager(cfg Config, channels ...Channel) *Manager {
	if cfg.TradingChannel == "" {
		cfg.TradingChannel = DefaultConfig().TradingChannel
	}
	if cfg.CriticalChannel == "" {
		cfg.CriticalChannel = DefaultConfig().CriticalChannel
	}
	return &Manager{
		cfg:      cfg,
		channels: channels,
		throttle: NewThrottler(),
	}
}

// SetClock 替换时间源（测试用）
func (m *Manager) SetClock(now func() time.Time) {
	m.throttle.mu.Lock()
	m.throttle.now = now
	m.throttle.mu.Unlock()
}

// Raise 发送一条按 key 限流的告警。frequencyLimit 内重复的 key 被静默丢弃，
// 返回值表示是否真正投递。
func (m *Manager) Raise(key, title, text string, critical bool, frequencyLimit time.Duration) (bool, error) {
	if !m.throttle.Allow(key, frequencyLimit) {
		return false, nil
	}
	a := Alert{
		Key:      key,
		Title:    title,
		Text:     text,
		Channel:  m.cfg.TradingChannel,
		Severity: SeverityWarning,
		Tags:     map[string]string{"project": m.cfg.Project},
	}
	if critical {
		a.Channel = m.cfg.CriticalChannel
		a.Severity = SeverityCritical
	}
	if m.cfg.Project != "" {
		a.Title = fmt.Sprintf("[%s]%s", m.cfg.Project, title)
	}
	return true, m.SendAlert(a)
}

// SendAlert 不经限流直接投递到所有通道。
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = m.throttle.now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	successCount := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
		} else {
			successCount++
		}
	}

	// 所有通道都失败时返回最后一个错误
	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// GetChannels 获取所有通道名称
func (m *Manager) GetChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 重置限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
