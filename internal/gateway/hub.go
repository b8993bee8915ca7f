package gateway

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tradelab/internal/metrics"
	"tradelab/internal/model"
	"tradelab/internal/ringbuf"
)

// replayDepth bounds how many recent bars per series are kept for the
// snapshot sent to fresh subscribers.
const replayDepth = 512

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

type seriesKey struct {
	Symbol   string
	Interval model.Interval
}

type barEvent struct {
	key  seriesKey
	bars []model.Bar
}

// Hub fans freshly fetched bars out to WebSocket subscribers. The
// reconciler's OnBars callback feeds Publish; a lock-free SPSC ring
// decouples that hot path from the broadcast loop, which runs on a
// single goroutine (the ring's consumer).
type Hub struct {
	ring    *ringbuf.Ring[barEvent]
	notify  chan struct{}
	metrics *metrics.Metrics
	log     *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	recent  map[seriesKey][]model.Bar
}

// NewHub creates a Hub; metrics may be nil.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		ring:    ringbuf.New[barEvent](1024),
		notify:  make(chan struct{}, 1),
		metrics: m,
		log:     logger,
		clients: make(map[*Client]bool),
		recent:  make(map[seriesKey][]model.Bar),
	}
}

// Publish queues a freshly fetched bar batch for broadcast. Safe to call
// from the reconciler goroutine; drops the batch if the ring is full.
func (h *Hub) Publish(symbol string, iv model.Interval, bars []model.Bar) {
	if len(bars) == 0 {
		return
	}
	if !h.ring.Push(barEvent{key: seriesKey{Symbol: symbol, Interval: iv}, bars: bars}) {
		h.log.Warn("hub ring full, dropping bar batch", "symbol", symbol, "interval", iv, "bars", len(bars))
		return
	}
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Run drains the ring and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.notify:
			for {
				ev, ok := h.ring.Pop()
				if !ok {
					break
				}
				h.dispatch(ev)
			}
		}
	}
}

func (h *Hub) dispatch(ev barEvent) {
	envelope, err := json.Marshal(barsEnvelope{
		Type:     "bars",
		Symbol:   ev.key.Symbol,
		Interval: string(ev.key.Interval),
		Bars:     ev.bars,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	h.recent[ev.key] = appendBounded(h.recent[ev.key], ev.bars)
	for client := range h.clients {
		if !client.subscribed(ev.key) {
			continue
		}
		select {
		case client.send <- envelope:
		default:
			// Slow client, drop the frame rather than block the loop.
		}
	}
	h.mu.Unlock()
}

// appendBounded merges bars into the replay buffer, keeping ascending
// order, unique times and at most replayDepth entries.
func appendBounded(recent, bars []model.Bar) []model.Bar {
	merged := append(recent, bars...)
	model.SortBarsAscending(merged)
	merged = model.DedupBarsByTime(merged)
	if len(merged) > replayDepth {
		merged = merged[len(merged)-replayDepth:]
	}
	return merged
}

// replaySnapshot returns a copy of the buffered bars for a series.
func (h *Hub) replaySnapshot(key seriesKey) []model.Bar {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bars := h.recent[key]
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	return out
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client connected (%d total)", count)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client disconnected (%d total)", count)
}

// handleWS upgrades the connection and starts the client pumps.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  g.hub,
		subs: make(map[seriesKey]bool),
	}
	g.hub.addClient(client)

	go client.writePump()
	go client.readPump()
}
