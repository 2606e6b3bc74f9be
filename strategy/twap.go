package strategy

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TWAPConfig 渐进注入参数。Direction 为 buy/sell，TotalSize/StepSize 为无符号基础币数量。
type TWAPConfig struct {
	Direction      string        `yaml:"direction"`
	TotalSize      float64       `yaml:"total_size"`
	StepSize       float64       `yaml:"step_size"`
	Frequency      time.Duration `yaml:"frequency"`
	PriceThreshold float64       `yaml:"price_threshold"` // 买入上限/卖出下限，0 表示不限
}

// TWAPTarget 接收注入风险的一方
type TWAPTarget interface {
	MarketMid() (float64, bool)
	UpdateTwapDelta(size float64)
}

// TWAP 周期性向风控注入待成交风险，由 scheduler 驱动 Tick。
type TWAP struct {
	target TWAPTarget
	logger *zap.Logger

	direction string
	step      float64
	freq      time.Duration
	threshold float64
	enabled   bool

	mu        sync.Mutex
	remaining float64
}

// NewTWAP 方向非法或总量为 0 时返回一个不执行的任务。
func NewTWAP(cfg TWAPConfig, target TWAPTarget, logger *zap.Logger) *TWAP {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := strings.ToLower(strings.TrimSpace(cfg.Direction))
	t := &TWAP{
		target:    target,
		logger:    logger,
		direction: dir,
		step:      cfg.StepSize,
		freq:      cfg.Frequency,
		threshold: cfg.PriceThreshold,
		remaining: cfg.TotalSize,
	}
	if t.freq <= 0 {
		t.freq = time.Minute
	}
	if (dir != "buy" && dir != "sell") || cfg.TotalSize <= 0 || cfg.StepSize <= 0 || target == nil {
		logger.Warn("twap missing key parameters, not enabled",
			zap.String("direction", cfg.Direction),
			zap.Float64("total_size", cfg.TotalSize),
			zap.Float64("step_size", cfg.StepSize))
		t.remaining = 0
		return t
	}
	t.enabled = true
	logger.Info("twap initialized",
		zap.String("direction", dir),
		zap.Float64("total_size", cfg.TotalSize),
		zap.Float64("step_size", cfg.StepSize),
		zap.Duration("frequency", t.freq),
		zap.Float64("price_threshold", cfg.PriceThreshold))
	return t
}

func (t *TWAP) Name() string { return "twap" }

func (t *TWAP) Interval() time.Duration { return t.freq }

// Enabled 是否配置了有效的注入
func (t *TWAP) Enabled() bool { return t.enabled }

// Remaining 剩余待注入数量
func (t *TWAP) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Tick 执行一次注入。mid 缺失或越过价格阈值时跳过且不消耗数量。
func (t *TWAP) Tick(ctx context.Context) error {
	t.Step()
	return nil
}

// Step 返回本次注入的有符号风险，未注入时为 0。
func (t *TWAP) Step() float64 {
	t.mu.Lock()
	if !t.enabled || t.remaining <= 0 {
		t.mu.Unlock()
		return 0
	}
	mid, ok := t.target.MarketMid()
	switch {
	case !ok:
		t.mu.Unlock()
		t.logger.Warn("twap skipped: market mid unavailable")
		return 0
	case t.threshold > 0 && t.direction == "buy" && mid > t.threshold:
		t.mu.Unlock()
		t.logger.Info("twap skipped: mid above buy ceiling", zap.Float64("mid", mid), zap.Float64("ceiling", t.threshold))
		return 0
	case t.threshold > 0 && t.direction == "sell" && mid < t.threshold:
		t.mu.Unlock()
		t.logger.Info("twap skipped: mid below sell floor", zap.Float64("mid", mid), zap.Float64("floor", t.threshold))
		return 0
	}
	size := min(t.remaining, t.step)
	t.remaining -= size
	remaining := t.remaining
	t.mu.Unlock()

	// 买入表现为负向风险，促使报价偏向买方
	delta := size
	if t.direction == "buy" {
		delta = -size
	}
	t.target.UpdateTwapDelta(delta)
	t.logger.Info("twap triggered",
		zap.String("direction", t.direction),
		zap.Float64("size", size),
		zap.Float64("remaining", remaining))
	return delta
}
