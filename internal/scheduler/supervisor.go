// Package scheduler 以单一 Supervisor 驱动所有周期任务（TWAP、历史成交均价刷新、指标采样等）。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task 周期任务
type Task interface {
	Name() string
	Interval() time.Duration
	Tick(ctx context.Context) error
}

// Supervisor 每个任务一个 goroutine，Stop 等待全部退出。
type Supervisor struct {
	logger *zap.Logger

	mu      sync.Mutex
	tasks   []Task
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	onError func(task string, err error)
}

// NewSupervisor 创建调度器
func NewSupervisor(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{logger: logger}
}

// SetErrorHook 任务出错时回调，用于计数
func (s *Supervisor) SetErrorHook(fn func(task string, err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Register 注册任务；启动后注册的任务立即运行。
func (s *Supervisor) Register(t Task) error {
	if t == nil {
		return errors.New("nil task")
	}
	if t.Interval() <= 0 {
		return fmt.Errorf("task %s: interval must be positive", t.Name())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.Name() == t.Name() {
			return fmt.Errorf("task %s already registered", t.Name())
		}
	}
	s.tasks = append(s.tasks, t)
	if s.running {
		s.spawnLocked(t)
	}
	return nil
}

// Tasks 已注册任务名
func (s *Supervisor) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.Name()
	}
	return names
}

// Start 启动全部任务
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, t := range s.tasks {
		s.spawnLocked(t)
	}
	s.logger.Info("supervisor started", zap.Int("tasks", len(s.tasks)))
	return nil
}

var errNotStarted = errors.New("supervisor not started")

// spawnLocked 仅在 running 时调用
func (s *Supervisor) spawnLocked(t Task) {
	ctx := s.runCtx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, t)
	}()
}

func (s *Supervisor) run(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.report(t.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	if err := t.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.report(t.Name(), err)
	}
}

func (s *Supervisor) report(name string, err error) {
	s.logger.Warn("task tick failed", zap.String("task", name), zap.Error(err))
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(name, err)
	}
}

// Stop 取消全部任务并等待退出
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("supervisor stopped")
	return nil
}

// Health 未启动时报错
func (s *Supervisor) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errNotStarted
	}
	return nil
}
