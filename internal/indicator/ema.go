package indicator

// EMA calculates the Exponential Moving Average over the full price slice.
//
// With fewer than period samples it returns the last price unchanged. The
// average is seeded with the oldest sample of the slice (not an SMA of the
// first period) and then smoothed forward with k = 2/(period+1).
func EMA(prices []float64, period int) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	if n < period {
		return prices[n-1]
	}

	k := 2.0 / float64(period+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		// EMA = (Price * k) + (EMA_prev * (1 - k))
		ema = p*k + ema*(1-k)
	}
	return ema
}
