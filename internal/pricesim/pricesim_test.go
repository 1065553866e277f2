package pricesim

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/feed"
)

func TestWalker_BoundedSteps(t *testing.T) {
	w := NewWalker(1900, 0.001, 42)
	prev := w.Price()
	for i := 0; i < 1000; i++ {
		p := w.Next()
		// rounding to cents can add half a cent on top of the step
		assert.LessOrEqual(t, math.Abs(p-prev), prev*0.001+0.005+1e-9, "step %d", i)
		assert.Equal(t, p, math.Round(p*100)/100)
		prev = p
	}
	assert.Equal(t, prev, w.Price())
}

func TestWalker_Deterministic(t *testing.T) {
	a, b := NewWalker(1900, 0.001, 7), NewWalker(1900, 0.001, 7)
	for i := 0; i < 20; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestWalker_Floor(t *testing.T) {
	w := NewWalker(0.01, 0.9, 1)
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, w.Next(), 0.01)
	}
}

func TestServer_PriceEndpoint(t *testing.T) {
	s := NewServer("XAUUSD", NewWalker(1900, 0.001, 1))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	q := s.Tick(time.UnixMilli(1705312800000))

	resp, err := http.Get(srv.URL + "/price")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got Quote
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, q, got)
	assert.Equal(t, "XAUUSD", got.Instrument)

	// The HTTP poller reads the same endpoint.
	var polled float64
	poller := feed.NewHTTPPoller(feed.Config{URL: srv.URL + "/price", Field: "price"}, func(p float64, _ time.Time) error {
		polled = p
		return nil
	})
	require.NoError(t, poller.Poll(context.Background()))
	assert.Equal(t, q.Price, polled)
}

func TestServer_WebsocketBroadcast(t *testing.T) {
	s := NewServer("XAUUSD", NewWalker(1900, 0.001, 1))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	q := s.Tick(time.UnixMilli(1705312800000))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := feed.ParsePriceMessage(string(raw))
	require.NoError(t, err)
	assert.Equal(t, q.Price, msg.Price)
	assert.Equal(t, int64(1705312800000), msg.Time.UnixMilli())

	conn.Close()
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_Health(t *testing.T) {
	s := NewServer("XAUUSD", NewWalker(1900, 0.001, 1))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pricesim")
}
