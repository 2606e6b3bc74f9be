package config

import (
	"fmt"
	"strings"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalidf(format string, args ...any) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Feed.URL == "" {
		return ErrInvalid("feed.url is required (or BT_FEED_URL)")
	}
	if cfg.Feed.OrderRate < 0 || cfg.Feed.OrderBurst < 0 {
		return ErrInvalid("feed.order_rate and feed.order_burst must be >= 0")
	}
	if err := validateStrategy(cfg.Strategy); err != nil {
		return err
	}
	if err := validateRisk(cfg.Risk); err != nil {
		return err
	}
	if cfg.Fader.Penalty < 0 {
		return ErrInvalid("fader.penalty must be >= 0")
	}
	if cfg.Throttle.PriceThreshold < 0 || cfg.Throttle.TimeThreshold < 0 {
		return ErrInvalid("throttle thresholds must be >= 0")
	}
	if t := cfg.TWAP; t != nil {
		if d := strings.ToLower(t.Direction); d != "buy" && d != "sell" {
			return invalidf("twap.direction must be buy or sell, got %q", t.Direction)
		}
		if t.TotalSize <= 0 || t.StepSize <= 0 {
			return ErrInvalid("twap.total_size and twap.step_size must be > 0")
		}
	}
	if h := cfg.Hedger; h != nil {
		if h.MaxCross < 0 || h.MinOrderDollarSize < 0 || h.MaxOrderDollarSize < 0 {
			return ErrInvalid("taker_hedger values must be >= 0")
		}
	}
	if cfg.TradeVWAP.Enabled && (cfg.TradeVWAP.LookbackDays <= 0 || cfg.TradeVWAP.QueryFrequency <= 0) {
		return ErrInvalid("trade_vwap.lookback_days and query_frequency must be > 0 when enabled")
	}
	for id, acc := range cfg.Accounts {
		if acc.MarginUsage != nil && *acc.MarginUsage < 0 {
			return invalidf("account %s margin_usage must be >= 0", id)
		}
	}
	return nil
}

func validateMarket(name string, m MarketConfig) error {
	if m.ExchangeID == "" || m.InstrumentID == "" || m.TradingAccountID == "" {
		return invalidf("strategy.%s: exchange_id, instrument_id and trading_account_id are required", name)
	}
	if m.Class != "SPOT" && m.Class != "PERP" {
		return invalidf("strategy.%s.instrument_class must be SPOT or PERP, got %q", name, m.Class)
	}
	if m.PricePrecision < 0 || m.SizePrecision < 0 || m.MinNotional < 0 {
		return invalidf("strategy.%s precision values must be >= 0", name)
	}
	return nil
}

func validateStrategy(s StrategyConfig) error {
	if err := validateMarket("reference_market", s.ReferenceMarket); err != nil {
		return err
	}
	if err := validateMarket("quoting_market", s.QuotingMarket); err != nil {
		return err
	}
	if s.ReferenceMarket.Class == s.QuotingMarket.Class {
		return ErrInvalid("strategy: reference and quoting markets must be one SPOT and one PERP")
	}
	if s.FundingRateThreshold < 0 || s.BasisRateThreshold < 0 {
		return ErrInvalid("strategy funding/basis thresholds must be >= 0")
	}
	if s.MarginUsageThreshold <= 0 {
		return ErrInvalid("strategy.margin_usage_threshold must be > 0")
	}
	if s.PositionChangeThreshold <= 0 {
		return ErrInvalid("strategy.position_change_threshold must be > 0")
	}
	if err := s.Ladder().Validate(); err != nil {
		return invalidf("strategy.quoting_ladder: %v", err)
	}
	return nil
}

func validateRisk(r RiskConfig) error {
	base, quote, ok := strings.Cut(r.InstrumentID, "/")
	if !ok || base == "" || quote == "" {
		return invalidf("risk.instrument_id %q must be BASE/QUOTE", r.InstrumentID)
	}
	for key := range r.Limits {
		if !knownLimitKeys[key] {
			return invalidf("risk.limits: unknown key %q", key)
		}
	}
	if r.LargeFillLookback < 0 || r.LargeFillCooldown < 0 {
		return ErrInvalid("risk large fill lookback/cooldown must be >= 0")
	}
	if r.Option != nil {
		if err := r.Option.Validate(); err != nil {
			return invalidf("risk.option: %v", err)
		}
	}
	return nil
}

var knownLimitKeys = map[string]bool{
	"min_delta": true, "max_delta": true,
	"min_gamma": true, "max_gamma": true,
	"min_theta": true, "max_theta": true,
	"min_vega": true, "max_vega": true,
	"min_rho": true, "max_rho": true,
}
