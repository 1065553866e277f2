package indicator

// Trend classifies price relative to its EMA.
type Trend string

const (
	TrendUp   Trend = "Uptrend"
	TrendDown Trend = "Downtrend"
	TrendFlat Trend = "Flat"
)

// ClassifyTrend compares price against ema with a fixed TrendDeadzone band.
func ClassifyTrend(price, ema float64) Trend {
	switch {
	case price > ema+TrendDeadzone:
		return TrendUp
	case price < ema-TrendDeadzone:
		return TrendDown
	default:
		return TrendFlat
	}
}
