package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"basis-trader-go/config"
)

func TestApplyDryRunKeepsSendOrders(t *testing.T) {
	cfg := config.AppConfig{SendOrders: true}
	applyDryRun(&cfg)
	assert.True(t, cfg.PaperTrading)
	assert.True(t, cfg.SendOrders, "dry run still routes orders to the paper book")
}
