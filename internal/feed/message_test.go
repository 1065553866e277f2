package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriceMessage(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		price   float64
		ts      time.Time
		wantErr bool
	}{
		{name: "bare number", payload: "1921.5", price: 1921.5},
		{name: "padded number", payload: " 1900\n", price: 1900},
		{name: "json", payload: `{"price":1921.25}`, price: 1921.25},
		{name: "json with ts", payload: `{"price":1921,"ts":1700000000000}`, price: 1921, ts: time.UnixMilli(1700000000000)},
		{name: "missing price", payload: `{"ts":1}`, wantErr: true},
		{name: "garbage", payload: "abc", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ParsePriceMessage(tc.payload)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.price, msg.Price)
			assert.True(t, msg.Time.Equal(tc.ts), "ts = %v, want %v", msg.Time, tc.ts)
		})
	}
}
