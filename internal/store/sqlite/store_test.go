package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tradelab/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetBarsRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bars := []model.Bar{
		{Time: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: 2000, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 20},
		{Time: 3000, Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: 30},
	}
	require.NoError(t, s.PutBars(ctx, "BTCUSDT", model.Interval1h, bars))

	// Range is half-open: the bar at 3000 is excluded.
	got, err := s.GetBars(ctx, "BTCUSDT", model.Interval1h, 1000, 3000)
	require.NoError(t, err)
	require.Equal(t, bars[:2], got)

	// Out-of-range and wrong-series lookups come back empty.
	got, err = s.GetBars(ctx, "BTCUSDT", model.Interval1h, 4000, 5000)
	require.NoError(t, err)
	require.Empty(t, got)
	got, err = s.GetBars(ctx, "ETHUSDT", model.Interval1h, 0, 5000)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPutBarsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutBars(ctx, "BTCUSDT", model.Interval1m, []model.Bar{
		{Time: 1000, Close: 1},
	}))
	require.NoError(t, s.PutBars(ctx, "BTCUSDT", model.Interval1m, []model.Bar{
		{Time: 1000, Close: 2},
		{Time: 2000, Close: 3},
	}))

	got, err := s.GetBars(ctx, "BTCUSDT", model.Interval1m, 0, 5000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 2.0, got[0].Close)
}

func TestTradeJournalRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	trade := model.ClosedTrade{
		ID:          "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Symbol:      "BTCUSDT",
		Side:        model.Long,
		EntryPrice:  110,
		ClosePrice:  140,
		Quantity:    1,
		Leverage:    1,
		OpenTime:    1000,
		CloseTime:   4000,
		RealizedPnL: 30,
		Entries: []model.Entry{
			{Price: 100, Time: 1000, Quantity: 1},
		},
	}
	require.NoError(t, s.AppendTrade(ctx, trade))

	partial := trade
	partial.ID = "01ARZ3NDEKTSV4RRFFQ69G5FB0"
	partial.Partial = true
	partial.CloseTime = 3000
	partial.Entries = nil
	require.NoError(t, s.AppendTrade(ctx, partial))

	trades, err := s.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	// Ordered by close time.
	require.Equal(t, partial.ID, trades[0].ID)
	require.True(t, trades[0].Partial)
	require.Equal(t, trade, trades[1])

	require.NoError(t, s.ClearTrades(ctx))
	trades, err = s.Trades(ctx)
	require.NoError(t, err)
	require.Empty(t, trades)
}
