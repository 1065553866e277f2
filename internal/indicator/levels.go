package indicator

// Levels holds the local floor and ceiling of recent prices.
// Support <= Resistance always holds.
type Levels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// SupportResistance returns the min/max of the trailing LevelsLookback
// samples. Below LevelsMinSamples both levels collapse to the oldest sample.
// No smoothing or outlier rejection is applied.
func SupportResistance(prices []float64) Levels {
	n := len(prices)
	if n == 0 {
		return Levels{}
	}
	if n < LevelsMinSamples {
		return Levels{Support: prices[0], Resistance: prices[0]}
	}

	start := n - LevelsLookback
	if start < 0 {
		start = 0
	}
	lv := Levels{Support: prices[start], Resistance: prices[start]}
	for _, p := range prices[start+1:] {
		if p < lv.Support {
			lv.Support = p
		}
		if p > lv.Resistance {
			lv.Resistance = p
		}
	}
	return lv
}
