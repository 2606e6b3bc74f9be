package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTWAPBuyInjectsNegativeRisk(t *testing.T) {
	rv := &stubRisk{mid: 100, hasMid: true}
	tw := NewTWAP(TWAPConfig{Direction: "Buy", TotalSize: 2.5, StepSize: 1, Frequency: time.Second, PriceThreshold: 105}, rv, nil)
	require.True(t, tw.Enabled())
	assert.Equal(t, "twap", tw.Name())
	assert.Equal(t, time.Second, tw.Interval())

	for i := 0; i < 4; i++ {
		require.NoError(t, tw.Tick(context.Background()))
	}
	assert.Equal(t, []float64{-1, -1, -0.5}, rv.twap)
	assert.Equal(t, 0.0, tw.Remaining())
}

func TestTWAPSkipsWithoutConsuming(t *testing.T) {
	rv := &stubRisk{mid: 110, hasMid: true}
	tw := NewTWAP(TWAPConfig{Direction: "buy", TotalSize: 2, StepSize: 1, PriceThreshold: 105}, rv, nil)
	assert.Equal(t, 0.0, tw.Step(), "mid above buy ceiling")
	assert.Equal(t, 2.0, tw.Remaining())

	rv.hasMid = false
	assert.Equal(t, 0.0, tw.Step(), "mid absent")
	assert.Equal(t, 2.0, tw.Remaining())

	sell := NewTWAP(TWAPConfig{Direction: "sell", TotalSize: 2, StepSize: 1, PriceThreshold: 120}, &stubRisk{mid: 110, hasMid: true}, nil)
	assert.Equal(t, 0.0, sell.Step(), "mid below sell floor")

	sell = NewTWAP(TWAPConfig{Direction: "sell", TotalSize: 2, StepSize: 1, PriceThreshold: 100}, &stubRisk{mid: 110, hasMid: true}, nil)
	assert.Equal(t, 1.0, sell.Step())
}

func TestTWAPDisabled(t *testing.T) {
	rv := &stubRisk{mid: 100, hasMid: true}
	for _, cfg := range []TWAPConfig{
		{Direction: "hold", TotalSize: 1, StepSize: 1},
		{Direction: "buy", TotalSize: 0, StepSize: 1},
	} {
		tw := NewTWAP(cfg, rv, nil)
		assert.False(t, tw.Enabled())
		assert.Equal(t, 0.0, tw.Step())
	}
	assert.Empty(t, rv.twap)
}
