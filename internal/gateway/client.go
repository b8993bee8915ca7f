package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradelab/internal/model"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[seriesKey]bool
}

func (c *Client) subscribed(key seriesKey) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subs[key]
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: use NextWriter to batch queued messages
			// into a single WebSocket frame with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			// Drain any queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var m subscribeMsg
		if json.Unmarshal(msg, &m) != nil {
			continue
		}

		switch m.Type {
		case "SUBSCRIBE":
			c.handleSubscribe(m)
		case "UNSUBSCRIBE":
			c.handleUnsubscribe(m)
		default:
			if m.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      m.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

// handleSubscribe registers the subscription and replies with a snapshot
// of the buffered bars so the client can render immediately.
func (c *Client) handleSubscribe(msg subscribeMsg) {
	symbol := strings.ToUpper(strings.TrimSpace(msg.Symbol))
	iv, err := model.ParseInterval(msg.Interval)
	if symbol == "" || err != nil {
		c.sendError(msg.ReqID, "symbol and a valid interval are required")
		return
	}
	key := seriesKey{Symbol: symbol, Interval: iv}

	c.subMu.Lock()
	c.subs[key] = true
	c.subMu.Unlock()

	log.Printf("[gateway] ws subscribed: %s %s", symbol, iv)

	snapshot, _ := json.Marshal(barsEnvelope{
		Type:     "snapshot",
		Symbol:   symbol,
		Interval: string(iv),
		Bars:     c.hub.replaySnapshot(key),
		ReqID:    msg.ReqID,
	})
	select {
	case c.send <- snapshot:
	default:
	}
}

func (c *Client) handleUnsubscribe(msg subscribeMsg) {
	iv := model.Interval(msg.Interval)
	key := seriesKey{Symbol: strings.ToUpper(strings.TrimSpace(msg.Symbol)), Interval: iv}
	c.subMu.Lock()
	delete(c.subs, key)
	c.subMu.Unlock()
	log.Printf("[gateway] ws unsubscribed: %s %s", key.Symbol, iv)
}

func (c *Client) sendError(reqID, msg string) {
	payload, _ := json.Marshal(wsError{Type: "error", ReqID: reqID, Error: msg})
	select {
	case c.send <- payload:
	default:
	}
}
