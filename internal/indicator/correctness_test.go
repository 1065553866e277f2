package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_InsufficientData_Is50(t *testing.T) {
	for n := 0; n < RSIPeriod+1; n++ {
		if got := RSI(rising(n, 100, 1), RSIPeriod); got != 50 {
			t.Errorf("n=%d: RSI=%v, want exactly 50", n, got)
		}
	}
}

func TestRSI_AllUp_Is100(t *testing.T) {
	for _, n := range []int{15, 20, 50} {
		if got := RSI(rising(n, 1900, 0.25), RSIPeriod); got != 100 {
			t.Errorf("n=%d: RSI=%v, want exactly 100", n, got)
		}
	}
}

func TestRSI_AllDown_Is0(t *testing.T) {
	got := RSI(rising(20, 2000, -1), RSIPeriod)
	assertClose(t, "RSI falling", got, 0, 1e-9)
}

func TestRSI_Flat_Is100(t *testing.T) {
	// No losses in the lookback → the zero-loss guard returns 100.
	if got := RSI(constant(30, 1900), RSIPeriod); got != 100 {
		t.Errorf("RSI flat = %v, want 100", got)
	}
}

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 45, 44, 46, 47, 46
	// Diffs:  +1, -1, +2, +1, -1 → gains=4 losses=2
	// avgGain=0.8 avgLoss=0.4 rs=2 → RSI = 100 - 100/3 = 66.6667
	got := RSI([]float64{44, 45, 44, 46, 47, 46}, 5)
	assertClose(t, "RSI(5)", got, 100-100.0/3, 1e-9)
}

func TestRSI_OnlyLastPeriodDiffsCount(t *testing.T) {
	// The crash 100→50 sits outside the last 5 differences.
	got := RSI([]float64{100, 50, 51, 52, 53, 54, 55}, 5)
	if got != 100 {
		t.Errorf("RSI = %v, want 100 (older diffs must be ignored)", got)
	}
}

func TestRSI_Range(t *testing.T) {
	prices := []float64{10, 12, 11, 15, 9, 14, 13, 18, 7, 11, 16, 12, 10, 19, 8, 13, 17}
	got := RSI(prices, RSIPeriod)
	if got < 0 || got > 100 {
		t.Fatalf("RSI out of range: %v", got)
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_InsufficientData_IsLastPrice(t *testing.T) {
	prices := []float64{1900, 1905, 1899.5}
	if got := EMA(prices, EMAPeriod); got != 1899.5 {
		t.Errorf("EMA = %v, want last price 1899.5", got)
	}
	if got := EMA(rising(19, 100, 1), EMAPeriod); got != 118 {
		t.Errorf("EMA(19 samples) = %v, want 118", got)
	}
	if got := EMA(nil, EMAPeriod); got != 0 {
		t.Errorf("EMA(empty) = %v, want 0", got)
	}
}

func TestEMA_Constant(t *testing.T) {
	for _, n := range []int{20, 21, 50} {
		assertClose(t, "EMA constant", EMA(constant(n, 1912.5), EMAPeriod), 1912.5, 1e-9)
	}
}

func TestEMA_Correctness_Period3_SeedsWithOldest(t *testing.T) {
	// k = 2/(3+1) = 0.5, seed = 10
	// 11 → 10.5, 12 → 11.25, 13 → 12.125
	got := EMA([]float64{10, 11, 12, 13}, 3)
	assertClose(t, "EMA(3)", got, 12.125, 1e-9)
}

func TestEMA_NotSMASeeded(t *testing.T) {
	// An SMA seed over the first 3 samples would give 11 → 12.0 → 12.5.
	got := EMA([]float64{10, 11, 12, 13}, 3)
	if math.Abs(got-12.5) < 1e-9 {
		t.Fatal("EMA appears to be SMA-seeded; expected oldest-sample seed")
	}
}

func TestEMA_LagsRisingPrice(t *testing.T) {
	prices := rising(20, 1900, 20.0/19.0)
	ema := EMA(prices, EMAPeriod)
	if ema >= prices[len(prices)-1] || ema <= prices[0] {
		t.Errorf("EMA %.4f should sit between first %.2f and last %.2f", ema, prices[0], prices[len(prices)-1])
	}
}

// ────────────────────────────────────────────────────────────
// Support / Resistance
// ────────────────────────────────────────────────────────────

func TestLevels_BelowFloor_DegenerateToOldest(t *testing.T) {
	lv := SupportResistance([]float64{7, 3, 9, 1})
	if lv.Support != 7 || lv.Resistance != 7 {
		t.Errorf("levels = %+v, want support=resistance=7", lv)
	}
}

func TestLevels_TenSamples_UsesAll(t *testing.T) {
	lv := SupportResistance([]float64{1, 5, 3, 9, 2, 7, 4, 8, 6, 10})
	if lv.Support != 1 || lv.Resistance != 10 {
		t.Errorf("levels = %+v, want support=1 resistance=10", lv)
	}
}

func TestLevels_TrailingLookback(t *testing.T) {
	// 1..25 → last 20 are 6..25
	lv := SupportResistance(rising(25, 1, 1))
	if lv.Support != 6 || lv.Resistance != 25 {
		t.Errorf("levels = %+v, want support=6 resistance=25", lv)
	}
}

func TestLevels_Empty(t *testing.T) {
	if lv := SupportResistance(nil); lv != (Levels{}) {
		t.Errorf("levels(empty) = %+v, want zero", lv)
	}
}

// ────────────────────────────────────────────────────────────
// Trend
// ────────────────────────────────────────────────────────────

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		price, ema float64
		want       Trend
	}{
		{100.6, 100, TrendUp},
		{99.4, 100, TrendDown},
		{100, 100, TrendFlat},
		{100.5, 100, TrendFlat},
		{99.5, 100, TrendFlat},
	}
	for _, tc := range cases {
		if got := ClassifyTrend(tc.price, tc.ema); got != tc.want {
			t.Errorf("ClassifyTrend(%v, %v) = %s, want %s", tc.price, tc.ema, got, tc.want)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Analyze
// ────────────────────────────────────────────────────────────

func TestAnalyze_RisingWindow(t *testing.T) {
	prices := append(rising(20, 1900, 20.0/19.0), 1921)
	st := Analyze(prices)

	if st.RSI != 100 {
		t.Errorf("RSI = %v, want 100", st.RSI)
	}
	if st.Trend != TrendUp {
		t.Errorf("trend = %s, want %s (ema=%.4f)", st.Trend, TrendUp, st.EMA)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	st := Analyze(nil)
	if st.RSI != 50 || st.Trend != TrendFlat {
		t.Errorf("Analyze(empty) = %+v, want neutral", st)
	}
}
