package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrice(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		field   string
		want    float64
		wantErr bool
	}{
		{name: "bare number", body: `1921.5`, want: 1921.5},
		{name: "top level", body: `{"price":1921.5}`, field: "price", want: 1921.5},
		{name: "nested", body: `{"data":{"last":"1900.25"}}`, field: "data.last", want: 1900.25},
		{name: "missing", body: `{"data":{}}`, field: "data.last", wantErr: true},
		{name: "not object", body: `{"data":5}`, field: "data.last", wantErr: true},
		{name: "not numeric", body: `{"price":"abc"}`, field: "price", wantErr: true},
		{name: "bool", body: `{"price":true}`, field: "price", wantErr: true},
		{name: "bad json", body: `{`, field: "price", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractPrice([]byte(tc.body), tc.field)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ExtractPrice([]byte(`{}`), "price")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(20*time.Second, 30*time.Second))
}

func TestHTTPPoller_PollSubmits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quote":{"price":1921}}`))
	}))
	defer srv.Close()

	var got float64
	p := NewHTTPPoller(Config{URL: srv.URL, Field: "quote.price"}, func(price float64, ts time.Time) error {
		got = price
		return nil
	})
	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, 1921.0, got)
}

func TestHTTPPoller_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPPoller(Config{URL: srv.URL}, func(float64, time.Time) error { return nil })
	err := p.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPPoller_SubmitErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`-1`))
	}))
	defer srv.Close()

	errInvalid := errors.New("invalid input")
	p := NewHTTPPoller(Config{URL: srv.URL}, func(float64, time.Time) error { return errInvalid })
	assert.ErrorIs(t, p.Poll(context.Background()), errInvalid)
}

func TestHTTPPoller_RunRecoversAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"price":1921}`))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var prices []float64
	var errCount atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewHTTPPoller(Config{
		URL:        srv.URL,
		Field:      "price",
		Interval:   5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	}, func(price float64, ts time.Time) error {
		mu.Lock()
		prices = append(prices, price)
		mu.Unlock()
		return nil
	})
	p.OnError = func(error) { errCount.Add(1) }

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(prices) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(2), errCount.Load())
}
