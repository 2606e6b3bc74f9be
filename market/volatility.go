package market

import (
	"math"
	"time"
)

const secondsPerYear = 60 * 60 * 24 * 365.25

// AnnualizedVolatility 按固定采样间隔的价格序列计算年化波动率：
// 对数收益率的总体标准差 × sqrt(一年秒数 / 采样间隔秒数)。
// 非正价格对应的收益率被跳过；样本不足时返回 0。
func AnnualizedVolatility(prices []float64, interval time.Duration) float64 {
	if len(prices) < 2 || interval <= 0 {
		return 0
	}

	logReturns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			logReturns = append(logReturns, math.Log(prices[i]/prices[i-1]))
		}
	}
	if len(logReturns) == 0 {
		return 0
	}

	sum := 0.0
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(len(logReturns))

	sumSquaredDiff := 0.0
	for _, r := range logReturns {
		diff := r - mean
		sumSquaredDiff += diff * diff
	}
	std := math.Sqrt(sumSquaredDiff / float64(len(logReturns)))
	return std * math.Sqrt(secondsPerYear/interval.Seconds())
}

// MaxValue 序列最大值，空序列返回 0
func MaxValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
