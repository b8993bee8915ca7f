package gateway

import (
	"encoding/json"
	"net/http"

	"tradelab/internal/model"
)

type authRequest struct {
	Code string `json:"code"`
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // seconds
}

type openRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Time     int64   `json:"time"`
	Quantity float64 `json:"quantity"`
	Leverage int     `json:"leverage"`
}

type addRequest struct {
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Time    int64   `json:"time"`
	Percent float64 `json:"percent"`
}

type reduceRequest struct {
	Price    float64 `json:"price"`
	Time     int64   `json:"time"`
	Quantity float64 `json:"quantity"`
	Percent  float64 `json:"percent"`
}

type closeRequest struct {
	Price float64 `json:"price"`
	Time  int64   `json:"time"`
}

type priceRequest struct {
	Price float64 `json:"price"`
}

type leverageRequest struct {
	Leverage int `json:"leverage"`
}

// positionResponse is returned by every ledger mutation and by
// GET /api/position.
type positionResponse struct {
	Position    *model.Position `json:"position"` // null when flat
	Leverage    int             `json:"leverage"`
	ClosedCount int             `json:"closedCount"`

	// Unrealized PnL at the price passed via ?price=; omitted otherwise.
	UnrealizedPnL        *float64 `json:"unrealizedPnl,omitempty"`
	UnrealizedPnLPercent *float64 `json:"unrealizedPnlPercent,omitempty"`
}

// subscribeMsg is the client -> server WS control message.
type subscribeMsg struct {
	Type     string `json:"type"` // "SUBSCRIBE" or "UNSUBSCRIBE"
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	ReqID    string `json:"reqId,omitempty"`
	Ping     int64  `json:"ping,omitempty"`
}

// barsEnvelope is the server -> client WS push for a bar batch.
type barsEnvelope struct {
	Type     string      `json:"type"` // "bars" or "snapshot"
	Symbol   string      `json:"symbol"`
	Interval string      `json:"interval"`
	Bars     []model.Bar `json:"bars"`
	ReqID    string      `json:"reqId,omitempty"`
}

type wsError struct {
	Type  string `json:"type"` // "error"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
