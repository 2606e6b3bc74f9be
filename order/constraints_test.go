package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolConstraintsValidate(t *testing.T) {
	c := SymbolConstraints{
		TickSize:    0.01,
		StepSize:    0.001,
		MinQty:      0.001,
		MaxQty:      10,
		MinNotional: 5,
	}
	cases := []struct {
		name    string
		price   float64
		qty     float64
		wantErr bool
	}{
		{"合法", 100.01, 0.1, false},
		{"价格未对齐", 100.015, 0.002, true},
		{"数量未对齐", 100.01, 0.0005, true},
		{"超过最大数量", 100.01, 11, true},
		{"名义不足", 10, 0.2, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.Validate(tc.price, tc.qty)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSymbolConstraintsDecimalTick(t *testing.T) {
	// 100.3/0.1 在二进制浮点下不是整数
	c := SymbolConstraints{TickSize: 0.1, StepSize: 0.001}
	assert.NoError(t, c.Validate(100.3, 0.007))
	assert.NoError(t, c.Validate(0.3, 1.001))
	assert.Error(t, c.Validate(100.35, 1))
}
