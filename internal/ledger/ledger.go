// Package ledger implements the position state machine of the trade
// simulator: zero-or-one live position per session, mutated by open/add/
// reduce/close operations fed from user-selected (price, time) points, and
// an append-only list of realized trades.
//
// A Ledger is a single-session, single-actor value. It is NOT safe for
// concurrent mutation; callers sharing one instance must serialize access
// (one logical session per ledger instance).
package ledger

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"tradelab/internal/model"
)

// Ledger tracks one live position and the realized-trade history of a
// session. The zero value is not usable; use New.
type Ledger struct {
	position *model.Position
	closed   []model.ClosedTrade
	leverage int // default applied to opens that do not specify one

	entropy *rand.Rand // ULID entropy for trade IDs
}

// New creates an empty ledger with default leverage 1.
func New() *Ledger {
	return &Ledger{
		leverage: model.MinLeverage,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Position returns the live position, or nil when flat. The returned pointer
// is the ledger's own state; callers must not mutate it.
func (l *Ledger) Position() *model.Position { return l.position }

// Leverage returns the ledger's current default leverage.
func (l *Ledger) Leverage() int { return l.leverage }

// ClosedTrades returns a copy of the realized-trade history, oldest first.
func (l *Ledger) ClosedTrades() []model.ClosedTrade {
	out := make([]model.ClosedTrade, len(l.closed))
	copy(out, l.closed)
	return out
}

// Open creates a new position when flat, or appends an entry to an existing
// same-side position, recomputing the weighted average price. Opening against
// an opposite-side position fails with ErrOppositePosition.
// leverage <= 0 means "use the ledger default".
func (l *Ledger) Open(side model.Side, price float64, timeMs int64, quantity float64, leverage int, symbol string) error {
	if !side.Valid() {
		return ErrInvalidSide
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if leverage <= 0 {
		leverage = l.leverage
	}
	if leverage < model.MinLeverage || leverage > model.MaxLeverage {
		return ErrInvalidLeverage
	}

	if l.position == nil {
		l.position = &model.Position{
			Symbol:   symbol,
			Side:     side,
			Entries:  []model.Entry{{Price: price, Time: timeMs, Quantity: quantity}},
			AvgPrice: price,
			Quantity: quantity,
			Leverage: leverage,
			OpenTime: timeMs,
		}
		return nil
	}

	if l.position.Side != side {
		return ErrOppositePosition
	}

	// Same-side add: weighted average over all entries including the new one.
	pos := l.position
	totalValue := pos.AvgPrice*pos.Quantity + price*quantity
	totalQty := pos.Quantity + quantity
	pos.Entries = append(pos.Entries, model.Entry{Price: price, Time: timeMs, Quantity: quantity})
	pos.AvgPrice = totalValue / totalQty
	pos.Quantity = totalQty
	return nil
}

// Reduce realizes PnL on part of the open position at the given price.
// A reduce of the full quantity (or more) delegates to Close so no
// zero-quantity position is left behind. AvgPrice is unchanged by a reduce;
// only adds change it.
func (l *Ledger) Reduce(price float64, timeMs int64, quantity float64) error {
	if l.position == nil {
		return ErrNoPosition
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity >= l.position.Quantity {
		return l.Close(price, timeMs)
	}

	pos := l.position
	base := pos.BasePnL(price, quantity)
	l.closed = append(l.closed, model.ClosedTrade{
		ID:          l.newTradeID(),
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.AvgPrice,
		ClosePrice:  price,
		Quantity:    quantity,
		Leverage:    pos.Leverage,
		OpenTime:    pos.OpenTime,
		CloseTime:   timeMs,
		Partial:     true,
		RealizedPnL: base * float64(pos.Leverage),
	})
	pos.Quantity -= quantity
	return nil
}

// ReduceByPercent reduces by percent of the current position quantity,
// percent in (0, 100]. 100 is a full close.
func (l *Ledger) ReduceByPercent(price float64, timeMs int64, percent float64) error {
	if l.position == nil {
		return ErrNoPosition
	}
	if percent <= 0 || percent > 100 {
		return ErrInvalidPercent
	}
	return l.Reduce(price, timeMs, l.position.Quantity*percent/100)
}

// AddByPercent adds to the open position, sizing the new entry as a percent
// of the current position value (quantity * avgPrice) converted to quantity
// at the given price. Percent-based sizing has no reference value without an
// existing position, so a flat ledger fails with ErrNoPosition.
func (l *Ledger) AddByPercent(side model.Side, price float64, timeMs int64, percent float64, symbol string) error {
	if l.position == nil {
		return ErrNoPosition
	}
	if percent <= 0 {
		return ErrInvalidPercent
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	addValue := l.position.Quantity * l.position.AvgPrice * percent / 100
	return l.Open(side, price, timeMs, addValue/price, 0, symbol)
}

// Close realizes PnL on the full position quantity and transitions to flat.
// The resulting record carries the complete entry list for audit.
func (l *Ledger) Close(price float64, timeMs int64) error {
	if l.position == nil {
		return ErrNoPosition
	}
	if price <= 0 {
		return ErrInvalidPrice
	}

	pos := l.position
	base := pos.BasePnL(price, pos.Quantity)
	entries := make([]model.Entry, len(pos.Entries))
	copy(entries, pos.Entries)
	l.closed = append(l.closed, model.ClosedTrade{
		ID:          l.newTradeID(),
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.AvgPrice,
		ClosePrice:  price,
		Quantity:    pos.Quantity,
		Leverage:    pos.Leverage,
		OpenTime:    pos.OpenTime,
		CloseTime:   timeMs,
		Partial:     false,
		RealizedPnL: base * float64(pos.Leverage),
		Entries:     entries,
	})
	l.position = nil
	return nil
}

// SetStopLoss annotates the open position with a stop-loss price. The ledger
// never triggers it — it is consumed by the presentation layer.
func (l *Ledger) SetStopLoss(price float64) error {
	if l.position == nil {
		return ErrNoPosition
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	l.position.StopLoss = price
	return nil
}

// SetTakeProfit annotates the open position with a take-profit price.
// Like SetStopLoss, it is never triggered by the ledger itself.
func (l *Ledger) SetTakeProfit(price float64) error {
	if l.position == nil {
		return ErrNoPosition
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	l.position.TakeProfit = price
	return nil
}

// SetLeverage updates the ledger's default leverage, n in [1, 125]. If a
// position is open its leverage is updated retroactively, affecting PnL on
// subsequent reduces/closes of that position but never past records.
func (l *Ledger) SetLeverage(n int) error {
	if n < model.MinLeverage || n > model.MaxLeverage {
		return ErrInvalidLeverage
	}
	l.leverage = n
	if l.position != nil {
		l.position.Leverage = n
	}
	return nil
}

// UnrealizedPnL is a pure query: the PnL a close at currentPrice would
// realize, plus that PnL as a percent of position cost value. Returns
// (0, 0) when flat.
func (l *Ledger) UnrealizedPnL(currentPrice float64) (pnl, pnlPercent float64) {
	if l.position == nil {
		return 0, 0
	}
	pos := l.position
	pnl = pos.BasePnL(currentPrice, pos.Quantity) * float64(pos.Leverage)
	cost := pos.Quantity * pos.AvgPrice
	if cost != 0 {
		pnlPercent = pnl / cost * 100
	}
	return pnl, pnlPercent
}

// Reset clears the entire ledger to empty: live position, trade history and
// default leverage. Used for session reset, not for correcting a record.
func (l *Ledger) Reset() {
	l.position = nil
	l.closed = nil
	l.leverage = model.MinLeverage
}

func (l *Ledger) newTradeID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
}
