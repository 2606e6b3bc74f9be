package risk

import (
	"sort"
	"sync"
)

// 交易开关上使用的问题名称。
const (
	IssueMaxLoss             = "max_loss_reached"
	IssueRiskLimitExceeded   = "risk_limit_exceeded"
	IssueLargePositionChange = "large position change"
	IssueOptionExpiry        = "option_expiry_less_than_24_hours"
)

// TradingSwitch 以具名问题集合控制策略是否允许交易；无问题即开启。
type TradingSwitch struct {
	name   string
	mu     sync.RWMutex
	issues map[string]struct{}
}

// NewTradingSwitch 创建交易开关
func NewTradingSwitch(name string) *TradingSwitch {
	return &TradingSwitch{
		name:   name,
		issues: make(map[string]struct{}),
	}
}

// Name 返回开关名称
func (s *TradingSwitch) Name() string { return s.name }

// AddIssue 登记问题，重复登记无副作用。返回是否为新问题。
func (s *TradingSwitch) AddIssue(issue string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue]; ok {
		return false
	}
	s.issues[issue] = struct{}{}
	return true
}

// ResolveIssue 移除问题。返回问题此前是否存在。
func (s *TradingSwitch) ResolveIssue(issue string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue]; !ok {
		return false
	}
	delete(s.issues, issue)
	return true
}

// HasIssue 判断问题是否存在
func (s *TradingSwitch) HasIssue(issue string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.issues[issue]
	return ok
}

// Issues 返回排序后的问题列表（拷贝）
func (s *TradingSwitch) Issues() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.issues))
	for k := range s.issues {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsEnabled 无任何问题时为 true
func (s *TradingSwitch) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.issues) == 0
}
