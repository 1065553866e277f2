package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/strategy"
)

func TestReadCSV(t *testing.T) {
	in := `timestamp,price
# comment rows are ignored
1705312802000,1902.5
2024-01-15T10:00:00Z,1900
1705312801000, 1901.25
`
	samples, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, 1900.0, samples[0].Price)
	assert.Equal(t, 1901.25, samples[1].Price)
	assert.Equal(t, 1902.5, samples[2].Price)
	assert.Equal(t, int64(1705312800000), samples[0].TS.UnixMilli())
}

func TestReadCSV_Errors(t *testing.T) {
	cases := map[string]string{
		"bad price":     "1705312800000,1900\n1705312801000,abc\n",
		"bad timestamp": "yesterday,1900\n",
		"one column":    "1705312800000\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(t.TempDir() + "/nope.csv")
	assert.Error(t, err)
}

func TestReplayer_Gap(t *testing.T) {
	base := time.UnixMilli(1705312800000)
	r := New(10)

	assert.Zero(t, r.gap(time.Time{}, base), "first sample never waits")
	assert.Equal(t, 100*time.Millisecond, r.gap(base, base.Add(time.Second)))
	assert.Equal(t, MaxGap, r.gap(base, base.Add(time.Hour)))
	assert.Zero(t, r.gap(base, base.Add(-time.Second)))

	assert.Zero(t, New(0).gap(base, base.Add(time.Minute)))
}

func TestReplayer_Run(t *testing.T) {
	base := time.UnixMilli(1705312800000)
	samples := []Sample{
		{TS: base, Price: 1900},
		{TS: base.Add(2 * time.Second), Price: -1},
		{TS: base.Add(3 * time.Second), Price: 1902},
	}

	r := New(2)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	var progress []int
	r.OnProgress = func(done int) { progress = append(progress, done) }

	var got []float64
	res, err := r.Run(context.Background(), samples, func(price float64, ts time.Time) error {
		if price <= 0 {
			return errors.New("invalid")
		}
		got = append(got, price)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Result{Submitted: 2, Rejected: 1}, res)
	assert.Equal(t, []float64{1900, 1902}, got)
	assert.Equal(t, []time.Duration{time.Second, 500 * time.Millisecond}, slept)
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestReplayer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := New(0).Run(ctx, []Sample{{TS: time.Now(), Price: 1}}, func(float64, time.Time) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestReplayer_Empty(t *testing.T) {
	res, err := New(1).Run(context.Background(), nil, func(float64, time.Time) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, res.Submitted)
}

func TestReplayer_DrivesEngine(t *testing.T) {
	var b strings.Builder
	b.WriteString("timestamp,price\n")
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "%d,%.6f\n", base.Add(time.Duration(i)*time.Second).UnixMilli(), 1900+float64(i)*20.0/19.0)
	}
	fmt.Fprintf(&b, "%s,1921\n", base.Add(20*time.Second).Format(time.RFC3339))

	samples, err := ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	require.Len(t, samples, 21)

	eng := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	var signals []strategy.Signal
	eng.OnSignal(func(s strategy.Signal) { signals = append(signals, s) })

	res, err := New(0).Run(context.Background(), samples, eng.SubmitSampleAt)
	require.NoError(t, err)
	assert.Equal(t, 21, res.Submitted)

	require.NotEmpty(t, signals)
	last := signals[len(signals)-1]
	assert.Equal(t, strategy.ActionBuy, last.Type)
	assert.Equal(t, 1921.0, last.Entry)
	assert.Equal(t, 1917.0, last.StopLoss)
	assert.Equal(t, 1929.0, last.TakeProfit)
	assert.True(t, last.Timestamp.Equal(base.Add(20*time.Second)))
}
