// Package metrics 提供按固定周期采样某个数值并保留有界历史的采集器。
package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollFunc 返回一次采样值；第二个返回值为 false 表示本次无数据。
type PollFunc func() (float64, bool)

// CollectorConfig 采集器配置
type CollectorConfig struct {
	Name      string
	Interval  time.Duration // 采样周期，默认 1s
	MaxLength int           // 保留的采样点数，默认 600
}

// Collector 周期采样器。由 scheduler.Supervisor 调度 Tick，
// 自身不启动 goroutine。
type Collector struct {
	cfg    CollectorConfig
	poll   PollFunc
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	buf     []float64
	head    int // 下一个写入位置
	size    int
	lastLog time.Time
}

// NewCollector 创建采集器
func NewCollector(cfg CollectorConfig, poll PollFunc, logger *zap.Logger) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 600
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("metric collector initialized",
		zap.String("name", cfg.Name),
		zap.Duration("interval", cfg.Interval),
		zap.Int("max_length", cfg.MaxLength))
	return &Collector{
		cfg:    cfg,
		poll:   poll,
		logger: logger,
		now:    time.Now,
		buf:    make([]float64, cfg.MaxLength),
	}
}

// Name 采集器名称
func (c *Collector) Name() string { return c.cfg.Name + "_collector" }

// Interval 采样周期
func (c *Collector) Interval() time.Duration { return c.cfg.Interval }

// Capacity 最大采样点数
func (c *Collector) Capacity() int { return c.cfg.MaxLength }

// Tick 供调度器调用。
func (c *Collector) Tick(ctx context.Context) error {
	c.Collect()
	return nil
}

// Collect 采样一次，返回是否写入了新数据点。
func (c *Collector) Collect() bool {
	if c.poll == nil {
		return false
	}
	v, ok := c.poll()
	if !ok {
		return false
	}
	c.Append(v)

	now := c.now()
	c.mu.Lock()
	shouldLog := now.Sub(c.lastLog) >= 10*time.Second
	if shouldLog {
		c.lastLog = now
	}
	n := c.size
	c.mu.Unlock()
	if shouldLog {
		c.logger.Info("metric collector gathered data point",
			zap.String("name", c.cfg.Name),
			zap.Float64("value", v),
			zap.Int("len", n))
	}
	return true
}

// Append 写入一个数据点，满时覆盖最旧的点。
func (c *Collector) Append(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[c.head] = v
	c.head = (c.head + 1) % len(c.buf)
	if c.size < len(c.buf) {
		c.size++
	}
}

// Prefill 用 v 填满缓冲区。
func (c *Collector) Prefill(v float64) {
	for i := 0; i < c.cfg.MaxLength; i++ {
		c.Append(v)
	}
}

// Len 当前数据点数
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Data 按时间先后返回数据拷贝。
func (c *Collector) Data() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]float64, c.size)
	start := (c.head - c.size + len(c.buf)) % len(c.buf)
	for i := 0; i < c.size; i++ {
		out[i] = c.buf[(start+i)%len(c.buf)]
	}
	return out
}

// Last 最新数据点
func (c *Collector) Last() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.size == 0 {
		return 0, false
	}
	return c.buf[(c.head-1+len(c.buf))%len(c.buf)], true
}

// Change 返回最新点与倒数第 lookback 个点之差（lookback=1 即自身，差为 0）。
// lookback 超过已有数据时按已有数据截断。
func (c *Collector) Change(lookback int) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.size == 0 || lookback <= 0 {
		return 0, false
	}
	if lookback > c.size {
		c.logger.Warn("lookback exceeds collected history, truncating",
			zap.String("name", c.cfg.Name),
			zap.Int("lookback", lookback),
			zap.Int("len", c.size))
		lookback = c.size
	}
	n := len(c.buf)
	last := c.buf[(c.head-1+n)%n]
	past := c.buf[(c.head-lookback+n)%n]
	return last - past, true
}

// Max 返回历史最大值，无数据时为 0,false。
func (c *Collector) Max() (float64, bool) {
	data := c.Data()
	if len(data) == 0 {
		return 0, false
	}
	m := data[0]
	for _, v := range data[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}
