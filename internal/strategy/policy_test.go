package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/sentiment"
)

var testTS = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func input(price float64, lv indicator.Levels, trend indicator.Trend, rsi float64) Input {
	return Input{
		Price:     price,
		Samples:   20,
		Levels:    lv,
		Technical: indicator.TechnicalState{RSI: rsi, EMA: price, Trend: trend},
		Sentiment: sentiment.Estimate(trend, rsi),
		Timestamp: testTS,
	}
}

func TestPolicy_Rules(t *testing.T) {
	lv := indicator.Levels{Support: 1900, Resistance: 1920}

	cases := []struct {
		name     string
		in       Input
		action   Action
		strategy string
		reason   string
	}{
		{"breakout buy", input(1921, lv, indicator.TrendUp, 70), ActionBuy, "Breakout Strategy", "Resistance Broken"},
		{"pullback buy", input(1910, lv, indicator.TrendUp, 35), ActionBuy, "Trend Pullback", "RSI Oversold in Uptrend"},
		{"breakdown sell", input(1899, lv, indicator.TrendDown, 30), ActionSell, "Breakdown Strategy", "Support Broken"},
		{"rejection sell", input(1910, lv, indicator.TrendDown, 65), ActionSell, "Trend Rejection", "RSI Overbought in Downtrend"},
	}

	p := NewPolicy()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := p.Evaluate(tc.in)
			require.NotNil(t, sig)
			assert.Equal(t, tc.action, sig.Type)
			assert.Equal(t, tc.strategy, sig.StrategyName)
			assert.Equal(t, tc.reason, sig.Reason)
			assert.Equal(t, tc.in.Price, sig.Entry)
			assert.Equal(t, testTS, sig.Timestamp)
			assert.NotEmpty(t, sig.ID)
		})
	}
}

func TestPolicy_NoMatch(t *testing.T) {
	lv := indicator.Levels{Support: 1900, Resistance: 1920}
	p := NewPolicy()

	assert.Nil(t, p.Evaluate(input(1910, lv, indicator.TrendFlat, 20)), "flat trend never signals")
	assert.Nil(t, p.Evaluate(input(1910, lv, indicator.TrendUp, 55)), "uptrend inside range with rsi >= 40")
	assert.Nil(t, p.Evaluate(input(1910, lv, indicator.TrendDown, 45)), "downtrend inside range with rsi <= 60")
}

func TestPolicy_FirstMatchWins(t *testing.T) {
	// Satisfies both breakout (rule 1) and pullback (rule 2).
	in := input(1925, indicator.Levels{Support: 1900, Resistance: 1920}, indicator.TrendUp, 30)
	require.Equal(t, sentiment.Bullish, in.Sentiment.Status)

	sig := NewPolicy().Evaluate(in)
	require.NotNil(t, sig)
	assert.Equal(t, "Breakout Strategy", sig.StrategyName)
}

func TestPolicy_BreakdownBeforeRejection(t *testing.T) {
	in := input(1890, indicator.Levels{Support: 1900, Resistance: 1920}, indicator.TrendDown, 80)
	sig := NewPolicy().Evaluate(in)
	require.NotNil(t, sig)
	assert.Equal(t, "Breakdown Strategy", sig.StrategyName)
}

func TestPolicy_RequiresMinSamples(t *testing.T) {
	in := input(1921, indicator.Levels{Support: 1900, Resistance: 1920}, indicator.TrendUp, 70)
	in.Samples = MinSamples - 1
	assert.Nil(t, NewPolicy().Evaluate(in))

	in.Samples = MinSamples
	assert.NotNil(t, NewPolicy().Evaluate(in))
}

func TestBrackets(t *testing.T) {
	sl, tp := Brackets(ActionBuy, 1921)
	assert.Equal(t, 1917.0, sl)
	assert.Equal(t, 1929.0, tp)

	sl, tp = Brackets(ActionSell, 1899)
	assert.Equal(t, 1903.0, sl)
	assert.Equal(t, 1891.0, tp)
}

func TestNewSignal_UniqueIDs(t *testing.T) {
	a := NewSignal(ActionBuy, 1, testTS, "s", "r")
	b := NewSignal(ActionBuy, 1, testTS, "s", "r")
	assert.NotEqual(t, a.ID, b.ID)
}
