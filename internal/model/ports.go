package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the reconciler and ledger from concrete storage
// implementations (Redis, SQLite). Each implementation satisfies one or more
// of these interfaces.

// BarCache is a local key-value bar store addressable by composite key
// (symbol, interval, barTime). It is assumed available before reconciler
// calls and treated as empty when unreachable — it is not a hard dependency.
type BarCache interface {
	// GetBars returns cached bars with startMs <= Time < endMs,
	// sorted ascending by time.
	GetBars(ctx context.Context, symbol string, iv Interval, startMs, endMs int64) ([]Bar, error)

	// PutBars upserts bars under (symbol, interval, barTime). Bar data for a
	// fixed key is immutable once closed, so last-write-wins is acceptable.
	PutBars(ctx context.Context, symbol string, iv Interval, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// TradeJournal persists realized-trade records append-only.
type TradeJournal interface {
	// AppendTrade stores one closed trade record.
	AppendTrade(ctx context.Context, trade ClosedTrade) error

	// Trades returns all stored records ordered by close time ascending.
	Trades(ctx context.Context) ([]ClosedTrade, error)

	// ClearTrades removes every record (session reset only).
	ClearTrades(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
