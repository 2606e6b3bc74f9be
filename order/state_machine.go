package order

import (
	"fmt"
)

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 订单状态机
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine 创建状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[StateTransition]bool)}
	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
	return sm
}

var legalTransitions = []StateTransition{
	{StatusUnsubmitted, StatusSubmitted},
	{StatusUnsubmitted, StatusRejected},

	{StatusSubmitted, StatusAcknowledged},
	{StatusSubmitted, StatusRejected},
	{StatusSubmitted, StatusPartiallyFilled},
	{StatusSubmitted, StatusFilled},
	{StatusSubmitted, StatusPendingCancel},
	{StatusSubmitted, StatusCancelled},
	{StatusSubmitted, StatusExpired},

	{StatusAcknowledged, StatusPartiallyFilled},
	{StatusAcknowledged, StatusFilled},
	{StatusAcknowledged, StatusPendingCancel},
	{StatusAcknowledged, StatusCancelled},
	{StatusAcknowledged, StatusExpired},

	{StatusPartiallyFilled, StatusPartiallyFilled}, // 多次部分成交
	{StatusPartiallyFilled, StatusFilled},
	{StatusPartiallyFilled, StatusPendingCancel},
	{StatusPartiallyFilled, StatusCancelled},
	{StatusPartiallyFilled, StatusExpired},

	{StatusPendingCancel, StatusCancelled},
	{StatusPendingCancel, StatusCancelRejected},
	{StatusPendingCancel, StatusFilled},          // 撤单时全部成交
	{StatusPendingCancel, StatusPartiallyFilled}, // 撤单时部分成交

	// 撤单被拒后订单仍在簿上
	{StatusCancelRejected, StatusPendingCancel},
	{StatusCancelRejected, StatusPartiallyFilled},
	{StatusCancelRejected, StatusFilled},
	{StatusCancelRejected, StatusCancelled},
	{StatusCancelRejected, StatusExpired},
}

// ValidateTransition 相同状态视为合法（幂等）。
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// AllowedTransitions 当前状态所有合法的目标状态
func (sm *StateMachine) AllowedTransitions(current Status) []Status {
	allowed := make([]Status, 0)
	for _, t := range legalTransitions {
		if t.From == current && t.To != current {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// IsFinal 终态
func IsFinal(status Status) bool {
	switch status {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// IsActive 订单仍可能在簿上成交
func IsActive(status Status) bool {
	switch status {
	case StatusSubmitted, StatusAcknowledged, StatusPartiallyFilled, StatusPendingCancel, StatusCancelRejected:
		return true
	default:
		return false
	}
}

// CanCancel 当前状态下是否可以撤单
func CanCancel(status Status) bool {
	switch status {
	case StatusSubmitted, StatusAcknowledged, StatusPartiallyFilled, StatusCancelRejected:
		return true
	default:
		return false
	}
}

// Description 状态描述
func Description(status Status) string {
	descriptions := map[Status]string{
		StatusUnsubmitted:     "订单已创建未发送",
		StatusSubmitted:       "订单已发送",
		StatusAcknowledged:    "订单已确认",
		StatusPartiallyFilled: "订单部分成交",
		StatusFilled:          "订单完全成交",
		StatusPendingCancel:   "订单撤销中",
		StatusCancelled:       "订单已撤销",
		StatusCancelRejected:  "撤单被拒绝",
		StatusRejected:        "订单被拒绝",
		StatusExpired:         "订单已过期",
	}
	if desc, ok := descriptions[status]; ok {
		return desc
	}
	return "未知状态"
}
