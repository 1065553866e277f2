package indicator

// RSI calculates the Relative Strength Index from the last period
// price-to-price differences using simple (not Wilder-smoothed) averages.
//
// Returns 50 when fewer than period+1 samples exist, and exactly 100 when the
// lookback contains no losses.
func RSI(prices []float64, period int) float64 {
	n := len(prices)
	if period <= 0 || n < period+1 {
		return 50
	}

	var gains, losses float64
	for i := n - period; i < n; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	p := float64(period)
	avgGain := gains / p
	avgLoss := losses / p
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
