package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appcfg "basis-trader-go/config"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免频繁更新
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: time.Second,
	}
}

// Applier 将新配置中可热更新的部分应用到运行中的组件
type Applier interface {
	Apply(cfg appcfg.AppConfig) error
}

// ApplierFunc 函数适配器
type ApplierFunc func(cfg appcfg.AppConfig) error

func (f ApplierFunc) Apply(cfg appcfg.AppConfig) error { return f(cfg) }

// HotReloader 监听配置文件，变化后重新加载、校验并依次调用各 Applier。
// 加载或校验失败时保留旧参数。
type HotReloader struct {
	config     HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
	load       func(path string) (appcfg.AppConfig, error)
	now        func() time.Time

	mu         sync.RWMutex
	appliers   map[string]Applier
	lastReload time.Time
	reloads    int

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
	started  bool
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig, logger *zap.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HotReloader{
		config:     cfg,
		configPath: filepath.Clean(configPath),
		watcher:    watcher,
		logger:     logger,
		load:       appcfg.LoadWithEnvOverrides,
		now:        time.Now,
		appliers:   make(map[string]Applier),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// SetLoader 替换配置加载函数（测试用）
func (h *HotReloader) SetLoader(fn func(path string) (appcfg.AppConfig, error)) {
	h.mu.Lock()
	h.load = fn
	h.mu.Unlock()
}

// RegisterApplier 注册参数应用器，按名称顺序调用
func (h *HotReloader) RegisterApplier(name string, applier Applier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers[name] = applier
}

// Start 启动热更新监听。监听所在目录，以兼容编辑器的替换式保存。
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	go h.watch(ctx)
	h.logger.Info("config hot reload started", zap.String("path", h.configPath))
	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	h.stopOnce.Do(func() { close(h.stopChan) })
	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()
	if started {
		select {
		case <-h.doneChan:
		case <-time.After(time.Second):
			h.logger.Warn("config watcher did not stop in time")
		}
	}
	return h.watcher.Close()
}

// Health 监听中返回 nil
func (h *HotReloader) Health() error {
	if !h.config.Enabled {
		return nil
	}
	select {
	case <-h.doneChan:
		return errors.New("config watcher stopped")
	default:
		return nil
	}
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.configPath {
				continue
			}
			// 只处理写入和创建事件
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.handleConfigChange()
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (h *HotReloader) handleConfigChange() {
	h.mu.RLock()
	last := h.lastReload
	h.mu.RUnlock()
	if !last.IsZero() && h.now().Sub(last) < h.config.CooldownTime {
		h.logger.Debug("config change within cooldown, skipped")
		return
	}
	if err := h.Reload(); err != nil {
		h.logger.Error("config reload failed", zap.Error(err))
	}
}

// Reload 立即重新加载并应用配置
func (h *HotReloader) Reload() error {
	h.mu.RLock()
	load := h.load
	names := make([]string, 0, len(h.appliers))
	for name := range h.appliers {
		names = append(names, name)
	}
	appliers := make(map[string]Applier, len(h.appliers))
	for k, v := range h.appliers {
		appliers[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	cfg, err := load(h.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var errs []error
	for _, name := range names {
		if err := appliers[name].Apply(cfg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	h.mu.Lock()
	h.lastReload = h.now()
	h.reloads++
	h.mu.Unlock()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	h.logger.Info("config reloaded", zap.Strings("appliers", names))
	return nil
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

// Reloads 成功加载的次数
func (h *HotReloader) Reloads() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reloads
}
