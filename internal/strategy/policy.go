package strategy

import (
	"time"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/sentiment"
)

// MinSamples is the window size below which no rule is evaluated.
const MinSamples = 5

// RSI thresholds for the trend pullback/rejection rules.
const (
	PullbackRSI  = 40.0
	RejectionRSI = 60.0
)

// Input is everything a rule may look at for one update.
type Input struct {
	Price     float64
	Samples   int // samples currently in the price window
	Levels    indicator.Levels
	Technical indicator.TechnicalState
	Sentiment sentiment.Sentiment
	Timestamp time.Time
}

// Rule is a single named entry condition.
type Rule struct {
	Strategy string
	Reason   string
	Action   Action
	Match    func(in Input) bool
}

// DefaultRules are evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{
		Strategy: "Breakout Strategy",
		Reason:   "Resistance Broken",
		Action:   ActionBuy,
		Match: func(in Input) bool {
			return in.Price > in.Levels.Resistance &&
				in.Technical.Trend == indicator.TrendUp &&
				in.Sentiment.Status == sentiment.Bullish
		},
	},
	{
		Strategy: "Trend Pullback",
		Reason:   "RSI Oversold in Uptrend",
		Action:   ActionBuy,
		Match: func(in Input) bool {
			return in.Technical.Trend == indicator.TrendUp && in.Technical.RSI < PullbackRSI
		},
	},
	{
		Strategy: "Breakdown Strategy",
		Reason:   "Support Broken",
		Action:   ActionSell,
		Match: func(in Input) bool {
			return in.Price < in.Levels.Support &&
				in.Technical.Trend == indicator.TrendDown &&
				in.Sentiment.Status == sentiment.Bearish
		},
	},
	{
		Strategy: "Trend Rejection",
		Reason:   "RSI Overbought in Downtrend",
		Action:   ActionSell,
		Match: func(in Input) bool {
			return in.Technical.Trend == indicator.TrendDown && in.Technical.RSI > RejectionRSI
		},
	},
}

// Policy is a first-match-wins rule evaluator.
type Policy struct {
	rules []Rule
}

// NewPolicy creates a policy over DefaultRules.
func NewPolicy() *Policy {
	return &Policy{rules: DefaultRules}
}

// Name returns the policy identifier for logging.
func (p *Policy) Name() string { return "RuleBook" }

// Evaluate returns the signal for the first matching rule, or nil when no
// rule matches or the window holds fewer than MinSamples samples.
func (p *Policy) Evaluate(in Input) *Signal {
	if in.Samples < MinSamples {
		return nil
	}
	for _, r := range p.rules {
		if r.Match(in) {
			sig := NewSignal(r.Action, in.Price, in.Timestamp, r.Strategy, r.Reason)
			return &sig
		}
	}
	return nil
}
