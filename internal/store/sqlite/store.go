// Package sqlite provides durable storage for bars and closed trades.
//
// A single Store implements both model.BarCache and model.TradeJournal
// on one database file. The connection is opened in WAL mode and capped
// to a single writer, which is the sweet spot for this write pattern
// (batched upserts from the reconciler, occasional journal appends).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"tradelab/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS klines (
	symbol    TEXT NOT NULL,
	interval  TEXT NOT NULL,
	open_time INTEGER NOT NULL,
	open      REAL NOT NULL,
	high      REAL NOT NULL,
	low       REAL NOT NULL,
	close     REAL NOT NULL,
	volume    REAL NOT NULL,
	PRIMARY KEY (symbol, interval, open_time)
);

CREATE TABLE IF NOT EXISTS closed_trades (
	id           TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	entry_price  REAL NOT NULL,
	close_price  REAL NOT NULL,
	quantity     REAL NOT NULL,
	leverage     INTEGER NOT NULL,
	open_time    INTEGER NOT NULL,
	close_time   INTEGER NOT NULL,
	partial      INTEGER NOT NULL,
	realized_pnl REAL NOT NULL,
	entries      TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_closed_trades_close_time
	ON closed_trades (close_time);
`

// Store is a SQLite-backed bar cache and trade journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	// churn between the reconciler and the journal.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[sqlite] opened %s", path)
	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// GetBars returns bars with open_time in [startMs, endMs), ascending.
func (s *Store) GetBars(ctx context.Context, symbol string, iv model.Interval, startMs, endMs int64) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume
		FROM klines
		WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time < ?
		ORDER BY open_time ASC`,
		symbol, string(iv), startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite get bars %s %s: %w", symbol, iv, err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite get bars %s %s: %w", symbol, iv, err)
	}
	return bars, nil
}

// PutBars upserts bars in a single transaction.
func (s *Store) PutBars(ctx context.Context, symbol string, iv model.Interval, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO klines
			(symbol, interval, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, string(iv), b.Time, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %s %s @%d: %w", symbol, iv, b.Time, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit bars: %w", err)
	}
	return nil
}

// AppendTrade persists one closed trade record.
func (s *Store) AppendTrade(ctx context.Context, t model.ClosedTrade) error {
	entries, err := json.Marshal(t.Entries)
	if err != nil {
		return fmt.Errorf("sqlite marshal entries: %w", err)
	}
	partial := 0
	if t.Partial {
		partial = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO closed_trades
			(id, symbol, side, entry_price, close_price, quantity,
			 leverage, open_time, close_time, partial, realized_pnl, entries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, string(t.Side), t.EntryPrice, t.ClosePrice, t.Quantity,
		t.Leverage, t.OpenTime, t.CloseTime, partial, t.RealizedPnL, string(entries))
	if err != nil {
		return fmt.Errorf("sqlite append trade %s: %w", t.ID, err)
	}
	return nil
}

// Trades returns all closed trades ordered by close time.
func (s *Store) Trades(ctx context.Context) ([]model.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, entry_price, close_price, quantity,
		       leverage, open_time, close_time, partial, realized_pnl, entries
		FROM closed_trades
		ORDER BY close_time ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite trades: %w", err)
	}
	defer rows.Close()

	var trades []model.ClosedTrade
	for rows.Next() {
		var (
			t       model.ClosedTrade
			side    string
			partial int
			entries string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.EntryPrice, &t.ClosePrice,
			&t.Quantity, &t.Leverage, &t.OpenTime, &t.CloseTime, &partial,
			&t.RealizedPnL, &entries); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Side = model.Side(side)
		t.Partial = partial != 0
		if err := json.Unmarshal([]byte(entries), &t.Entries); err != nil {
			return nil, fmt.Errorf("sqlite unmarshal entries %s: %w", t.ID, err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite trades: %w", err)
	}
	return trades, nil
}

// ClearTrades wipes the journal, used on ledger reset.
func (s *Store) ClearTrades(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM closed_trades`); err != nil {
		return fmt.Errorf("sqlite clear trades: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	log.Printf("[sqlite] closing %s", s.path)
	return s.db.Close()
}
