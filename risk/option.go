package risk

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OptionType 期权类型
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// OptionPosition 欧式期权持仓，Size 为正表示买入。
type OptionPosition struct {
	Size       float64    `yaml:"size"`
	Underlying string     `yaml:"underlying_asset"`
	Expiry     time.Time  `yaml:"expiry"`
	Strike     float64    `yaml:"strike"`
	Type       OptionType `yaml:"type"`
}

// Validate 检查参数
func (o OptionPosition) Validate() error {
	if o.Strike <= 0 {
		return fmt.Errorf("option strike must be positive, got %g", o.Strike)
	}
	if o.Expiry.IsZero() {
		return fmt.Errorf("option expiry is required")
	}
	switch OptionType(strings.ToLower(string(o.Type))) {
	case OptionCall, OptionPut:
	default:
		return fmt.Errorf("unknown option type %q", o.Type)
	}
	return nil
}

func (o OptionPosition) String() string {
	return fmt.Sprintf("Option{%s %g %s K=%g exp=%s}", o.Type, o.Size, o.Underlying, o.Strike, o.Expiry.UTC().Format(time.RFC3339))
}

// Greeks Black-Scholes 希腊值，已乘以持仓数量。
// theta 与 rho 按年计，vega 按波动率变动 1.0 计。到期后只保留内在价值的 delta。
func (o OptionPosition) Greeks(spot, sigma, rate float64, now time.Time) Risk {
	isCall := OptionType(strings.ToLower(string(o.Type))) == OptionCall
	t := o.Expiry.Sub(now).Seconds() / secondsPerYear
	if spot <= 0 || o.Strike <= 0 {
		return Risk{}
	}
	if t <= 0 || sigma <= 0 {
		var delta float64
		switch {
		case isCall && spot > o.Strike:
			delta = 1
		case !isCall && spot < o.Strike:
			delta = -1
		}
		return Risk{Delta: delta * o.Size}
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/o.Strike) + (rate+sigma*sigma/2)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	pdf := normPDF(d1)
	disc := math.Exp(-rate * t)

	r := Risk{
		Gamma: pdf / (spot * sigma * sqrtT),
		Vega:  spot * pdf * sqrtT,
	}
	if isCall {
		r.Delta = normCDF(d1)
		r.Theta = -spot*pdf*sigma/(2*sqrtT) - rate*o.Strike*disc*normCDF(d2)
		r.Rho = o.Strike * t * disc * normCDF(d2)
	} else {
		r.Delta = normCDF(d1) - 1
		r.Theta = -spot*pdf*sigma/(2*sqrtT) + rate*o.Strike*disc*normCDF(-d2)
		r.Rho = -o.Strike * t * disc * normCDF(-d2)
	}
	return r.Multiply(o.Size)
}

const secondsPerYear = 365.25 * 24 * 60 * 60

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
