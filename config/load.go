package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"basis-trader-go/infrastructure/alert"
	"basis-trader-go/infrastructure/logger"
	"basis-trader-go/market"
	"basis-trader-go/risk"
	"basis-trader-go/strategy"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env          string `yaml:"env"`
	SendOrders   bool   `yaml:"send_orders"`
	PaperTrading bool   `yaml:"paper_trading"`
	MetricsAddr  string `yaml:"metrics_addr"`

	Logger   logger.Config  `yaml:"logger"`
	Alert    alert.Config   `yaml:"alert"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`

	Fader     strategy.FaderConfig        `yaml:"fader"`
	Adjuster  strategy.AdjusterConfig     `yaml:"adjuster"`
	Throttle  strategy.ThrottleConfig     `yaml:"throttle"`
	TWAP      *strategy.TWAPConfig        `yaml:"twap"`
	Hedger    *strategy.TakerHedgerConfig `yaml:"taker_hedger"`
	VWAP      VWAPConfig                  `yaml:"vwap"`
	TradeVWAP market.TradeVWAPConfig      `yaml:"trade_vwap"`
	Sampling  SamplingConfig              `yaml:"sampling"`
	Feed      FeedConfig                  `yaml:"feed"`

	// 纸面交易时的初始账户状态
	Accounts map[string]AccountConfig `yaml:"accounts"`
}

// MarketConfig 一个交易市场
type MarketConfig struct {
	ExchangeID       string        `yaml:"exchange_id"`
	InstrumentID     string        `yaml:"instrument_id"`
	Class            string        `yaml:"instrument_class"` // SPOT / PERP
	TradingAccountID string        `yaml:"trading_account_id"`
	PricePrecision   float64       `yaml:"price_precision"`
	SizePrecision    float64       `yaml:"size_precision"`
	MinNotional      float64       `yaml:"min_notional"`
	StaleThreshold   time.Duration `yaml:"stale_threshold"`
}

// Spec 转换为行情参数
func (m MarketConfig) Spec() market.Spec {
	return market.Spec{
		ExchangeID:     m.ExchangeID,
		InstrumentID:   m.InstrumentID,
		PricePrecision: m.PricePrecision,
		SizePrecision:  m.SizePrecision,
		MinNotional:    m.MinNotional,
		StaleThreshold: m.StaleThreshold,
	}
}

// StrategyConfig 基差策略参数
type StrategyConfig struct {
	ReferenceMarket          MarketConfig    `yaml:"reference_market"`
	QuotingMarket            MarketConfig    `yaml:"quoting_market"`
	FundingRateThreshold     float64         `yaml:"funding_rate_threshold"`
	BasisRateThreshold       float64         `yaml:"basis_rate_threshold"`
	MarginUsageThreshold     float64         `yaml:"margin_usage_threshold"`
	PositionChangeThreshold  float64         `yaml:"position_change_threshold"`
	QuotingLadder            []strategy.Rung `yaml:"quoting_ladder"`
	UnhedgedRiskThresholdUSD float64         `yaml:"unhedged_risk_threshold_usd"`
	TargetPositionUSD        float64         `yaml:"target_position_usd"`
	UpdateInterval           time.Duration   `yaml:"update_interval"`
}

// Ladder 按配置顺序构造报价阶梯
func (s StrategyConfig) Ladder() strategy.Ladder {
	return strategy.NewLadder(s.QuotingLadder...)
}

// RiskConfig 风控参数
type RiskConfig struct {
	InstrumentID          string               `yaml:"instrument_id"` // BASE/QUOTE
	Limits                map[string]float64   `yaml:"limits"`        // min_delta, max_delta, ...
	ManualSkew            risk.Risk            `yaml:"manual_skew"`
	MaxLoss               float64              `yaml:"max_loss"`
	ReduceOnly            bool                 `yaml:"reduce_only"`
	LargeFillLookback     int                  `yaml:"large_fill_lookback"`
	LargeFillThresholdUSD float64              `yaml:"large_fill_threshold_usd"`
	LargeFillCooldown     time.Duration        `yaml:"large_fill_cooldown"`
	DefaultMakerFee       float64              `yaml:"default_maker_fee"`
	Option                *risk.OptionPosition `yaml:"option"`
	OptionVolatility      float64              `yaml:"option_volatility"`
	OptionRate            float64              `yaml:"option_rate"`
}

// VWAPConfig 报价市场公共成交 VWAP
type VWAPConfig struct {
	Period     time.Duration `yaml:"period"`
	Resolution time.Duration `yaml:"resolution"` // >0 时使用分桶实现
}

// SamplingConfig mid 与价差采样
type SamplingConfig struct {
	Interval  time.Duration `yaml:"interval"`
	MaxLength int           `yaml:"max_length"`
}

// FeedConfig 标准化行情推送
type FeedConfig struct {
	URL          string        `yaml:"url"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
	OrderRate    float64       `yaml:"order_rate"` // 每秒指令数，0 不限
	OrderBurst   int           `yaml:"order_burst"`
}

// AccountConfig 账户初始状态
type AccountConfig struct {
	Balances    map[string]float64 `yaml:"balances"`
	MakerFees   map[string]float64 `yaml:"maker_fees"` // instrument -> fee
	MarginUsage *float64           `yaml:"margin_usage"`
}

const (
	envSendOrders   = "BT_SEND_ORDERS"
	envPaperTrading = "BT_PAPER_TRADING"
	envFeedURL      = "BT_FEED_URL"
	envMetricsAddr  = "BT_METRICS_ADDR"
)

func (c *AppConfig) applyDefaults() {
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9100"
	}
	if len(c.Logger.Outputs) == 0 {
		c.Logger = logger.DefaultConfig()
	}
	if c.Alert.Project == "" {
		c.Alert = alert.DefaultConfig()
	}
	if c.Strategy.UpdateInterval <= 0 {
		c.Strategy.UpdateInterval = time.Second
	}
	if c.VWAP.Period <= 0 {
		c.VWAP.Period = market.DefaultVWAPPeriod
	}
	if c.Sampling.Interval <= 0 {
		c.Sampling.Interval = time.Second
	}
	if c.Sampling.MaxLength <= 0 {
		c.Sampling.MaxLength = 600
	}
	if c.Feed.ReconnectMin <= 0 {
		c.Feed.ReconnectMin = 500 * time.Millisecond
	}
	if c.Feed.ReconnectMax <= 0 {
		c.Feed.ReconnectMax = 30 * time.Second
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

func parse(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadDotEnv 加载 .env 文件；path 为空时尝试当前目录的 .env，文件不存在不算错误。
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) error {
	for _, b := range []struct {
		key string
		dst *bool
	}{{envSendOrders, &cfg.SendOrders}, {envPaperTrading, &cfg.PaperTrading}} {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
		*b.dst = parsed
	}
	if v := os.Getenv(envFeedURL); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv(envMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	return nil
}
