// Package gateway pushes accepted signals and engine state to websocket
// clients. Every broadcast is wrapped in an envelope carrying a global seq
// and a per-channel seq so reconnecting clients can ask for what they
// missed.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"trading-signalsv1/internal/strategy"

	"github.com/gorilla/websocket"
)

// Channel names carried in envelopes.
const (
	ChannelSignal = "signal"
	ChannelState  = "state"
)

const (
	defaultReplaySize = 100
	clientSendBuffer  = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub tracks connected websocket clients and the latest envelope per channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replaySize  int

	broadcaster *Broadcaster

	// OnClientCount is called with the new count on connect/disconnect (optional).
	OnClientCount func(n int)
}

type latestEntry struct {
	Envelope []byte
	TS       time.Time
	Seq      int64
}

// NewHub creates a hub keeping replaySize envelopes per channel.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replaySize:  replaySize,
	}
	h.broadcaster = NewBroadcaster(h)
	return h
}

// PublishSignal broadcasts an accepted signal on the signal channel.
func (h *Hub) PublishSignal(sig strategy.Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		log.Printf("[gateway] marshal signal: %v", err)
		return
	}
	h.broadcaster.Broadcast(ChannelSignal, data)
}

// PublishState broadcasts an engine snapshot on the state channel.
func (h *Hub) PublishState(state any) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("[gateway] marshal state: %v", err)
		return
	}
	h.broadcaster.Broadcast(ChannelState, data)
}

// Run broadcasts each signal from sigCh until ctx is cancelled or sigCh
// is closed.
func (h *Hub) Run(ctx context.Context, sigCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			h.PublishSignal(sig)
		}
	}
}

// ServeWS upgrades the request and registers the client. A last_seq query
// parameter replays buffered signal envelopes newer than that seq.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}

	var lastSeq int64 = -1
	if v := r.URL.Query().Get("last_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastSeq = n
		}
	}
	h.register(conn, lastSeq)
}

func (h *Hub) register(conn *websocket.Conn, lastSeq int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	// Replay and registration happen under one lock so no broadcast can
	// land between the snapshot and the client becoming visible.
	h.mu.Lock()
	client.queueInitialState(lastSeq)
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters c and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.RemoveClient(c)
	}
}
