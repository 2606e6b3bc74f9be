package logger

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 封装zap日志器；级别可在运行时调整（热更新）
type Logger struct {
	*zap.Logger
	level  zap.AtomicLevel
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
	MaxSize    int      `yaml:"max_size"`    // 单个日志文件最大MB
	MaxBackups int      `yaml:"max_backups"` // 保留的旧日志文件数
	MaxAge     int      `yaml:"max_age"`     // 保留天数
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Outputs:    []string{"stdout"},
		Format:     "json",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

func (c Config) encoder() zapcore.Encoder {
	if c.Format == "console" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}

func (c Config) rolling(path string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   true,
	})
}

// New 创建Logger。文件输出经 lumberjack 按大小滚动，ErrorFile 只收 error 及以上。
func New(cfg Config) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	level := zap.NewAtomicLevelAt(lvl)

	var cores []zapcore.Core
	if slices.Contains(cfg.Outputs, "stdout") {
		cores = append(cores, zapcore.NewCore(cfg.encoder(), zapcore.AddSync(os.Stdout), level))
	}
	// 文件统一 json，便于采集
	fileCfg := cfg
	fileCfg.Format = "json"
	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		cores = append(cores, zapcore.NewCore(fileCfg.encoder(), cfg.rolling(cfg.OutputFile), level))
	}
	if cfg.ErrorFile != "" {
		cores = append(cores, zapcore.NewCore(fileCfg.encoder(), cfg.rolling(cfg.ErrorFile), zapcore.ErrorLevel))
	}
	if len(cores) == 0 {
		return nil, errors.New("no log outputs configured")
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		level:  level,
		config: cfg,
	}, nil
}

// SetLevel 运行时调整级别，ErrorFile 不受影响
func (l *Logger) SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", level, err)
	}
	if l.level.Level() != lvl {
		l.level.SetLevel(lvl)
		l.Info("log level changed", zap.Stringer("level", lvl))
	}
	return nil
}

// Level 当前级别
func (l *Logger) Level() zapcore.Level { return l.level.Level() }

// With 返回附带字段的 Logger，共享级别
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level, config: l.config}
}

// LogFill 自有订单成交
func (l *Logger) LogFill(accountID, orderID, side string, qty, price float64) {
	l.Info("fill_event",
		zap.String("account", accountID),
		zap.String("order_id", orderID),
		zap.String("side", side),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("notional", qty*price))
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, fields ...zap.Field) {
	l.Error("error_event", append(fields, zap.Error(err))...)
}

// NewNop 测试用
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel(), config: DefaultConfig()}
}

// Close 刷新缓冲
func (l *Logger) Close() error {
	// stdout 上 Sync 可能返回 EINVAL，忽略
	_ = l.Sync()
	return nil
}
