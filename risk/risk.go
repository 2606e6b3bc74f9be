package risk

import (
	"fmt"
	"math"
)

// Risk 以 Greeks 表示的带符号风险向量。值类型，所有运算返回新值。
type Risk struct {
	Delta float64 `yaml:"delta"`
	Gamma float64 `yaml:"gamma"`
	Theta float64 `yaml:"theta"`
	Vega  float64 `yaml:"vega"`
	Rho   float64 `yaml:"rho"`
}

// Add 逐维相加。
func (r Risk) Add(o Risk) Risk {
	return Risk{
		Delta: r.Delta + o.Delta,
		Gamma: r.Gamma + o.Gamma,
		Theta: r.Theta + o.Theta,
		Vega:  r.Vega + o.Vega,
		Rho:   r.Rho + o.Rho,
	}
}

// Multiply 逐维乘以 factor。
func (r Risk) Multiply(factor float64) Risk {
	return Risk{
		Delta: r.Delta * factor,
		Gamma: r.Gamma * factor,
		Theta: r.Theta * factor,
		Vega:  r.Vega * factor,
		Rho:   r.Rho * factor,
	}
}

// IsWithinRiskLimits 每个维度都落在对应闭区间内时返回 true。
func (r Risk) IsWithinRiskLimits(l Limit) bool {
	return r.IsWithinDeltaLimit(l) &&
		within(r.Gamma, l.MinGamma, l.MaxGamma) &&
		within(r.Theta, l.MinTheta, l.MaxTheta) &&
		within(r.Vega, l.MinVega, l.MaxVega) &&
		within(r.Rho, l.MinRho, l.MaxRho)
}

// IsWithinDeltaLimit 仅检查 delta 维度。
func (r Risk) IsWithinDeltaLimit(l Limit) bool {
	return within(r.Delta, l.MinDelta, l.MaxDelta)
}

func (r Risk) String() string {
	return fmt.Sprintf("Risk{d: %g, g: %g, t: %g, v: %g, r: %g}", r.Delta, r.Gamma, r.Theta, r.Vega, r.Rho)
}

func within(v, lo, hi float64) bool {
	return lo <= v && v <= hi
}

// Limit 每个维度的 [min, max] 区间，未配置的维度为 ±Inf。
type Limit struct {
	MinDelta, MaxDelta float64
	MinGamma, MaxGamma float64
	MinTheta, MaxTheta float64
	MinVega, MaxVega   float64
	MinRho, MaxRho     float64
}

// Unbounded 返回所有维度均不受限的 Limit。
func Unbounded() Limit {
	inf := math.Inf(1)
	return Limit{
		MinDelta: -inf, MaxDelta: inf,
		MinGamma: -inf, MaxGamma: inf,
		MinTheta: -inf, MaxTheta: inf,
		MinVega: -inf, MaxVega: inf,
		MinRho: -inf, MaxRho: inf,
	}
}

// LimitFromMap 按配置键构造 Limit，缺失键取 ±Inf。
// 键名: min_delta, max_delta, min_gamma, ... , max_rho
func LimitFromMap(m map[string]float64) Limit {
	l := Unbounded()
	pick := func(key string, dst *float64) {
		if v, ok := m[key]; ok {
			*dst = v
		}
	}
	pick("min_delta", &l.MinDelta)
	pick("max_delta", &l.MaxDelta)
	pick("min_gamma", &l.MinGamma)
	pick("max_gamma", &l.MaxGamma)
	pick("min_theta", &l.MinTheta)
	pick("max_theta", &l.MaxTheta)
	pick("min_vega", &l.MinVega)
	pick("max_vega", &l.MaxVega)
	pick("min_rho", &l.MinRho)
	pick("max_rho", &l.MaxRho)
	return l
}

func (l Limit) String() string {
	return fmt.Sprintf("Limit{d: [%g, %g], g: [%g, %g], t: [%g, %g], v: [%g, %g], r: [%g, %g]}",
		l.MinDelta, l.MaxDelta, l.MinGamma, l.MaxGamma, l.MinTheta, l.MaxTheta,
		l.MinVega, l.MaxVega, l.MinRho, l.MaxRho)
}
