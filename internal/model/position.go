package model

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == Long || s == Short }

// Leverage bounds for simulated margin trading.
const (
	MinLeverage = 1
	MaxLeverage = 125
)

// Entry is a single fill contributing to an open position.
type Entry struct {
	Price    float64 `json:"price"`
	Time     int64   `json:"time"` // epoch ms
	Quantity float64 `json:"quantity"`
}

// Position is the single live position of a ledger session.
// AvgPrice is always the quantity-weighted mean of all entries' prices;
// Quantity is the sum of entry quantities minus quantity removed by partial
// closes. Quantity reaching exactly 0 destroys the position.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Entries    []Entry `json:"entries"`
	AvgPrice   float64 `json:"avg_price"`
	Quantity   float64 `json:"quantity"`
	Leverage   int     `json:"leverage"`
	StopLoss   float64 `json:"stop_loss,omitempty"`   // 0 = unset
	TakeProfit float64 `json:"take_profit,omitempty"` // 0 = unset
	OpenTime   int64   `json:"open_time"`             // epoch ms of first entry
}

// BasePnL returns the unleveraged profit for closing qty at price.
func (p *Position) BasePnL(price, qty float64) float64 {
	if p.Side == Long {
		return (price - p.AvgPrice) * qty
	}
	return (p.AvgPrice - price) * qty
}

// ClosedTrade is an immutable realized-trade record. A full close and every
// partial reduction each produce one ClosedTrade; records are append-only.
type ClosedTrade struct {
	ID          string  `json:"id"` // ULID, assigned by the ledger
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	EntryPrice  float64 `json:"entry_price"` // position AvgPrice at close time
	ClosePrice  float64 `json:"close_price"`
	Quantity    float64 `json:"quantity"`
	Leverage    int     `json:"leverage"`
	OpenTime    int64   `json:"open_time"`  // epoch ms
	CloseTime   int64   `json:"close_time"` // epoch ms
	Partial     bool    `json:"partial"`
	RealizedPnL float64 `json:"realized_pnl"`
	Entries     []Entry `json:"entries,omitempty"` // full entry list for audit, full closes only
}
