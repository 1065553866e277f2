// Package strategy turns the analysed market view into trade signals.
//
// The Policy evaluates an ordered list of rules against the current price,
// levels, technical state and sentiment; the first matching rule produces a
// Signal with stop-loss and take-profit derived from a fixed risk model.
package strategy

import (
	"time"

	"github.com/google/uuid"
)

// Action represents a trading direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Signal is an immutable trade recommendation. Once created it is never
// mutated; consumers receive copies.
type Signal struct {
	ID           string    `json:"id"`
	Type         Action    `json:"type"`
	Entry        float64   `json:"entry"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	Timestamp    time.Time `json:"timestamp"`
	StrategyName string    `json:"strategy_name"`
	Reason       string    `json:"reason"`
}

// Fixed absolute price offsets (1:2 risk:reward).
const (
	StopLossOffset   = 4.0
	TakeProfitOffset = 8.0
)

// NewSignal builds a signal for entry at price, attaching the fixed
// stop-loss/take-profit brackets.
func NewSignal(action Action, entry float64, ts time.Time, strategyName, reason string) Signal {
	sl, tp := Brackets(action, entry)
	return Signal{
		ID:           uuid.New().String(),
		Type:         action,
		Entry:        entry,
		StopLoss:     sl,
		TakeProfit:   tp,
		Timestamp:    ts,
		StrategyName: strategyName,
		Reason:       reason,
	}
}

// Brackets returns (stopLoss, takeProfit) for an entry.
// BUY: entry-4 / entry+8. SELL: entry+4 / entry-8.
func Brackets(action Action, entry float64) (stopLoss, takeProfit float64) {
	if action == ActionSell {
		return entry + StopLossOffset, entry - TakeProfitOffset
	}
	return entry - StopLossOffset, entry + TakeProfitOffset
}
