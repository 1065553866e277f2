// Package indicator provides the technical indicator calculations that feed
// the signal policy.
//
// Every function here is pure: it takes the ordered price window (oldest
// first) and recomputes from scratch. There is no state carried between
// updates other than the window itself. Insufficient data is never an error;
// each indicator has a defined fallback value instead.
package indicator

// Default periods and thresholds used by the engine.
const (
	RSIPeriod = 14
	EMAPeriod = 20

	// LevelsLookback is the number of trailing samples scanned for
	// support/resistance.
	LevelsLookback = 20
	// LevelsMinSamples is the floor below which levels degenerate to a
	// single point.
	LevelsMinSamples = 10

	// TrendDeadzone is the absolute band around the EMA inside which the
	// trend is Flat.
	TrendDeadzone = 0.5
)

// TechnicalState is the momentum/trend view of the current window.
type TechnicalState struct {
	RSI   float64 `json:"rsi"`
	EMA   float64 `json:"ema"`
	Trend Trend   `json:"trend"`
}

// Analyze computes RSI(14), EMA(20) and the trend of the newest sample
// against that EMA. An empty window yields the neutral state.
func Analyze(prices []float64) TechnicalState {
	if len(prices) == 0 {
		return TechnicalState{RSI: 50, Trend: TrendFlat}
	}
	ema := EMA(prices, EMAPeriod)
	return TechnicalState{
		RSI:   RSI(prices, RSIPeriod),
		EMA:   ema,
		Trend: ClassifyTrend(prices[len(prices)-1], ema),
	}
}
