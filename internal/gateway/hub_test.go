package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"tradelab/internal/model"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one frame, splitting coalesced newline-separated
// messages and returning the first.
func readEnvelope(t *testing.T, conn *websocket.Conn) barsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	first, _, _ := strings.Cut(string(raw), "\n")
	var env barsEnvelope
	require.NoError(t, json.Unmarshal([]byte(first), &env))
	return env
}

func TestWSSubscribeSnapshotAndLiveBars(t *testing.T) {
	gw := New(Config{Fetcher: &fakeFetcher{}})
	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Hub().Run(ctx)

	// Seed the replay buffer before the client connects.
	seed := barsWithCloses(100, 101)
	gw.Hub().Publish("BTCUSDT", model.Interval1h, seed)
	require.Eventually(t, func() bool {
		return len(gw.Hub().replaySnapshot(seriesKey{Symbol: "BTCUSDT", Interval: model.Interval1h})) == 2
	}, time.Second, 10*time.Millisecond)

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(subscribeMsg{Type: "SUBSCRIBE", Symbol: "btcusdt", Interval: "1h", ReqID: "r1"}))

	snap := readEnvelope(t, conn)
	require.Equal(t, "snapshot", snap.Type)
	require.Equal(t, "r1", snap.ReqID)
	require.Equal(t, "BTCUSDT", snap.Symbol)
	require.Len(t, snap.Bars, 2)

	// A live publish reaches the subscriber.
	live := []model.Bar{{Time: 3000, Close: 102}}
	gw.Hub().Publish("BTCUSDT", model.Interval1h, live)

	env := readEnvelope(t, conn)
	require.Equal(t, "bars", env.Type)
	require.Equal(t, live, env.Bars)
}

func TestWSSubscriptionFiltering(t *testing.T) {
	gw := New(Config{Fetcher: &fakeFetcher{}})
	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Hub().Run(ctx)

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(subscribeMsg{Type: "SUBSCRIBE", Symbol: "ETHUSDT", Interval: "1m"}))
	readEnvelope(t, conn) // snapshot

	// Bars for another series must not be delivered.
	gw.Hub().Publish("BTCUSDT", model.Interval1m, barsWithCloses(1))
	gw.Hub().Publish("ETHUSDT", model.Interval1m, []model.Bar{{Time: 9000, Close: 42}})

	env := readEnvelope(t, conn)
	require.Equal(t, "ETHUSDT", env.Symbol)
	require.Equal(t, 42.0, env.Bars[0].Close)
}

func TestWSInvalidSubscribe(t *testing.T) {
	gw := New(Config{Fetcher: &fakeFetcher{}})
	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(subscribeMsg{Type: "SUBSCRIBE", Symbol: "BTCUSDT", Interval: "7m", ReqID: "bad"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var e wsError
	require.NoError(t, json.Unmarshal(raw, &e))
	require.Equal(t, "error", e.Type)
	require.Equal(t, "bad", e.ReqID)
}

func TestAppendBounded(t *testing.T) {
	// Overlapping batches dedup by time, newest wins.
	recent := appendBounded(nil, []model.Bar{{Time: 1000, Close: 1}, {Time: 2000, Close: 2}})
	recent = appendBounded(recent, []model.Bar{{Time: 2000, Close: 2.5}, {Time: 3000, Close: 3}})
	require.Len(t, recent, 3)
	require.Equal(t, 2.5, recent[1].Close)

	// Depth is bounded, keeping the newest bars.
	var big []model.Bar
	for i := 0; i < replayDepth+100; i++ {
		big = append(big, model.Bar{Time: int64(i) * 1000})
	}
	recent = appendBounded(recent, big)
	require.Len(t, recent, replayDepth)
	require.Equal(t, big[len(big)-1].Time, recent[len(recent)-1].Time)
}
