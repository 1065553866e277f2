// Package sentiment derives a coarse market mood from the technical state.
// It is a deterministic proxy standing in for a fundamentals feed, not an
// independent data source.
package sentiment

import "trading-signalsv1/internal/indicator"

// Status is the sentiment label.
type Status string

const (
	Bullish Status = "Bullish"
	Bearish Status = "Bearish"
	Neutral Status = "Neutral"
)

// Score bounds. Given rsi in [0,100] the formulas stay inside [20,80]; the
// clamp only guards out-of-range inputs.
const (
	MinScore = 0
	MaxScore = 100
)

// Sentiment is the derived label and confidence score.
type Sentiment struct {
	Status Status  `json:"status"`
	Score  float64 `json:"score"`
}

// Estimate maps trend and RSI to a sentiment:
//
//	Uptrend   → Bullish, 70 + rsi/10
//	Downtrend → Bearish, 30 - rsi/10
//	Flat      → Neutral, 50
func Estimate(trend indicator.Trend, rsi float64) Sentiment {
	switch trend {
	case indicator.TrendUp:
		return Sentiment{Status: Bullish, Score: clamp(70 + rsi/10)}
	case indicator.TrendDown:
		return Sentiment{Status: Bearish, Score: clamp(30 - rsi/10)}
	default:
		return Sentiment{Status: Neutral, Score: 50}
	}
}

func clamp(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
