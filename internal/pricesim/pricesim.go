// Package pricesim serves a simulated single-instrument price for local
// runs without a real market feed. Prices are published as
// {"instrument":"XAUUSD","price":1921.5,"ts":<unix millis>} over both a
// websocket stream and a polling endpoint.
package pricesim

import (
	"encoding/json"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Quote is one simulated price.
type Quote struct {
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
	TS         int64   `json:"ts"`
}

// Walker applies a bounded random walk to a starting price.
type Walker struct {
	mu    sync.Mutex
	price float64
	step  float64 // max move per tick as a fraction of price
	rng   *rand.Rand
}

// NewWalker starts at price; each Next moves at most step (e.g. 0.001 = 0.1%).
func NewWalker(price, step float64, seed int64) *Walker {
	return &Walker{price: price, step: step, rng: rand.New(rand.NewSource(seed))}
}

// Next advances the walk and returns the new price, rounded to cents and
// never below 0.01.
func (w *Walker) Next() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	pct := (w.rng.Float64()*2 - 1) * w.step
	p := math.Round(w.price*(1+pct)*100) / 100
	if p < 0.01 {
		p = 0.01
	}
	w.price = p
	return p
}

// Price returns the current price without moving it.
func (w *Walker) Price() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.price
}

// Server broadcasts walker ticks to websocket clients and answers polls.
type Server struct {
	instrument string
	walker     *Walker

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	last    Quote
}

// NewServer creates a simulator for instrument.
func NewServer(instrument string, walker *Walker) *Server {
	return &Server{
		instrument: instrument,
		walker:     walker,
		clients:    make(map[*websocket.Conn]chan []byte),
		last:       Quote{Instrument: instrument, Price: walker.Price(), TS: time.Now().UnixMilli()},
	}
}

// Tick advances the walk and broadcasts the new quote.
func (s *Server) Tick(now time.Time) Quote {
	q := Quote{Instrument: s.instrument, Price: s.walker.Next(), TS: now.UnixMilli()}
	b, err := json.Marshal(q)
	if err != nil {
		return q
	}

	s.mu.Lock()
	s.last = q
	for _, ch := range s.clients {
		select {
		case ch <- b:
		default: // slow client, drop tick
		}
	}
	s.mu.Unlock()
	return q
}

// Run ticks every interval until stop is closed.
func (s *Server) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Last returns the most recent quote.
func (s *Server) Last() Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Handler routes /ws, /price and /health.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS)
	r.HandleFunc("/price", s.servePrice).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"pricesim"}`))
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) servePrice(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Last())
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[pricesim] upgrade error: %v", err)
		return
	}
	log.Printf("[pricesim] client connected: %s", r.RemoteAddr)

	ch := s.register(conn)
	defer func() {
		s.unregister(conn)
		conn.Close()
		log.Printf("[pricesim] client disconnected: %s", r.RemoteAddr)
	}()

	// Detect client hangups.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.unregister(conn)
				return
			}
		}
	}()

	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()
	return ch
}

func (s *Server) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	if ch, ok := s.clients[conn]; ok {
		close(ch)
		delete(s.clients, conn)
	}
	s.mu.Unlock()
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
