package risk

import (
	"context"
	"errors"
	"time"
)

// ErrNoAccountManager 尚未注入账户管理器
var ErrNoAccountManager = errors.New("risk manager has no account manager")

// AccountManager 账户侧数据来源：净现货持仓、余额与费率。
type AccountManager interface {
	// NetSpotPositions 各币种的净持仓（所有交易账户合计）
	NetSpotPositions(ctx context.Context) (map[string]float64, error)
	Balance(accountID, currency string) (float64, error)
	// MakerFee 账户在该品种上的挂单费率，未知时返回 false
	MakerFee(accountID, instrumentID string) (float64, bool)
}

// Alerter 按 key 限流的告警出口
type Alerter interface {
	Raise(key, title, text string, critical bool, frequencyLimit time.Duration) (bool, error)
}

type nopAlerter struct{}

func (nopAlerter) Raise(string, string, string, bool, time.Duration) (bool, error) { return false, nil }
