package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/model"
)

func TestOpen_CreatesPosition(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 1000, 1.5, 0, "BTCUSDT"))

	pos := l.Position()
	require.NotNil(t, pos)
	assert.Equal(t, model.Long, pos.Side)
	assert.Equal(t, 100.0, pos.AvgPrice)
	assert.Equal(t, 1.5, pos.Quantity)
	assert.Equal(t, 1, pos.Leverage) // ledger default
	assert.Equal(t, int64(1000), pos.OpenTime)
	assert.Len(t, pos.Entries, 1)
}

func TestOpen_WeightedAverageOverPrefixes(t *testing.T) {
	// avgPrice must equal sum(p*q)/sum(q) after every add.
	l := New()
	adds := []struct {
		price, qty  float64
		wantAvg     float64
		wantQty     float64
		wantEntries int
	}{
		{100, 1, 100, 1, 1},
		{120, 1, 110, 2, 2},
		{130, 2, 120, 4, 3},
		{90, 4, 105, 8, 4},
	}
	for _, a := range adds {
		require.NoError(t, l.Open(model.Long, a.price, 0, a.qty, 0, "BTCUSDT"))
		pos := l.Position()
		assert.InDelta(t, a.wantAvg, pos.AvgPrice, 1e-9)
		assert.InDelta(t, a.wantQty, pos.Quantity, 1e-9)
		assert.Len(t, pos.Entries, a.wantEntries)
	}
}

func TestOpen_OppositeSideRejected(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 0, 1, 0, "BTCUSDT"))

	err := l.Open(model.Short, 110, 0, 1, 0, "BTCUSDT")
	assert.ErrorIs(t, err, ErrOppositePosition)
	// Prior state untouched.
	assert.Equal(t, model.Long, l.Position().Side)
	assert.Equal(t, 1.0, l.Position().Quantity)
}

func TestOpen_Validation(t *testing.T) {
	tests := []struct {
		name     string
		side     model.Side
		price    float64
		qty      float64
		leverage int
		wantErr  error
	}{
		{"bad side", "sideways", 100, 1, 0, ErrInvalidSide},
		{"zero price", model.Long, 0, 1, 0, ErrInvalidPrice},
		{"zero qty", model.Long, 100, 0, 0, ErrInvalidQuantity},
		{"leverage too high", model.Long, 100, 1, 126, ErrInvalidLeverage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			err := l.Open(tt.side, tt.price, 0, tt.qty, tt.leverage, "BTCUSDT")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, l.Position())
		})
	}
}

func TestReduce_PartialKeepsAvgPrice(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 0, 2, 0, "BTCUSDT"))
	require.NoError(t, l.Reduce(130, 10, 0.5))

	pos := l.Position()
	require.NotNil(t, pos)
	assert.InDelta(t, 1.5, pos.Quantity, 1e-9)
	assert.Equal(t, 100.0, pos.AvgPrice) // only adds change avgPrice

	trades := l.ClosedTrades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Partial)
	assert.InDelta(t, 15.0, trades[0].RealizedPnL, 1e-9) // (130-100)*0.5
	assert.NotEmpty(t, trades[0].ID)
}

func TestReduce_FullQuantityDelegatesToClose(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Short, 100, 0, 1, 0, "ETHUSDT"))
	require.NoError(t, l.Reduce(90, 10, 5)) // more than held

	assert.Nil(t, l.Position())
	trades := l.ClosedTrades()
	require.Len(t, trades, 1)
	assert.False(t, trades[0].Partial)
	assert.Equal(t, 1.0, trades[0].Quantity)
	assert.InDelta(t, 10.0, trades[0].RealizedPnL, 1e-9) // short: (100-90)*1
}

func TestReduce_RequiresPosition(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Reduce(100, 0, 1), ErrNoPosition)
	assert.ErrorIs(t, l.Close(100, 0), ErrNoPosition)
	assert.ErrorIs(t, l.SetStopLoss(100), ErrNoPosition)
	assert.ErrorIs(t, l.SetTakeProfit(100), ErrNoPosition)
	assert.ErrorIs(t, l.AddByPercent(model.Long, 100, 0, 50, "BTCUSDT"), ErrNoPosition)
}

func TestReduceByPercent(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 0, 4, 0, "BTCUSDT"))

	require.NoError(t, l.ReduceByPercent(110, 10, 25))
	assert.InDelta(t, 3.0, l.Position().Quantity, 1e-9)

	// 100% closes the rest.
	require.NoError(t, l.ReduceByPercent(110, 20, 100))
	assert.Nil(t, l.Position())

	assert.ErrorIs(t, l.ReduceByPercent(110, 30, 50), ErrNoPosition)
}

func TestReduceByPercent_RangeValidation(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 0, 1, 0, "BTCUSDT"))
	assert.ErrorIs(t, l.ReduceByPercent(110, 0, 0), ErrInvalidPercent)
	assert.ErrorIs(t, l.ReduceByPercent(110, 0, -10), ErrInvalidPercent)
	assert.ErrorIs(t, l.ReduceByPercent(110, 0, 100.01), ErrInvalidPercent)
	assert.InDelta(t, 1.0, l.Position().Quantity, 1e-9)
}

func TestAddByPercent_SizesByPositionValue(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 0, 2, 0, "BTCUSDT"))

	// Position value = 200; 50% = 100 value; at price 200 that is qty 0.5.
	require.NoError(t, l.AddByPercent(model.Long, 200, 10, 50, "BTCUSDT"))
	pos := l.Position()
	assert.InDelta(t, 2.5, pos.Quantity, 1e-9)
	assert.InDelta(t, 120.0, pos.AvgPrice, 1e-9) // (100*2 + 200*0.5) / 2.5
}

func TestClose_CarriesEntriesAndClearsPosition(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 1, 1, 0, "BTCUSDT"))
	require.NoError(t, l.Open(model.Long, 120, 2, 1, 0, "BTCUSDT"))
	require.NoError(t, l.Close(140, 3))

	assert.Nil(t, l.Position())
	trades := l.ClosedTrades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.False(t, tr.Partial)
	assert.Equal(t, 110.0, tr.EntryPrice)
	assert.Equal(t, int64(1), tr.OpenTime)
	assert.Equal(t, int64(3), tr.CloseTime)
	assert.Len(t, tr.Entries, 2)
	assert.InDelta(t, 60.0, tr.RealizedPnL, 1e-9) // (140-110)*2
}

func TestQuantityConservation(t *testing.T) {
	l := New()
	opened := []float64{1, 2, 0.5}
	reduced := []float64{0.25, 1}
	for _, q := range opened {
		require.NoError(t, l.Open(model.Long, 100, 0, q, 0, "BTCUSDT"))
	}
	for _, q := range reduced {
		require.NoError(t, l.Reduce(100, 0, q))
	}
	assert.InDelta(t, 1+2+0.5-0.25-1, l.Position().Quantity, 1e-9)
}

func TestPnLSignCorrectness(t *testing.T) {
	tests := []struct {
		name       string
		side       model.Side
		entry      float64
		exit       float64
		wantProfit bool
	}{
		{"long up", model.Long, 100, 120, true},
		{"long down", model.Long, 100, 80, false},
		{"short down", model.Short, 100, 80, true},
		{"short up", model.Short, 100, 120, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			require.NoError(t, l.Open(tt.side, tt.entry, 0, 1, 1, "BTCUSDT"))
			require.NoError(t, l.Close(tt.exit, 10))
			pnl := l.ClosedTrades()[0].RealizedPnL
			if tt.wantProfit {
				assert.Positive(t, pnl)
			} else {
				assert.Negative(t, pnl)
			}
		})
	}
}

func TestLeverage_ScalesRealizedPnL(t *testing.T) {
	base := func(leverage int) float64 {
		l := New()
		require.NoError(t, l.Open(model.Long, 100, 0, 1, leverage, "BTCUSDT"))
		require.NoError(t, l.Close(110, 10))
		return l.ClosedTrades()[0].RealizedPnL
	}
	assert.InDelta(t, 10.0, base(1), 1e-9)
	assert.InDelta(t, 10.0*25, base(25), 1e-9)
	assert.InDelta(t, 10.0*125, base(125), 1e-9)
}

func TestSetLeverage_RetroactiveOnOpenPosition(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 0, 1, 1, "BTCUSDT"))
	require.NoError(t, l.Reduce(110, 5, 0.5)) // leverage 1 -> pnl 5

	// Changing leverage mid-position applies to later closes, not past records.
	require.NoError(t, l.SetLeverage(10))
	require.NoError(t, l.Close(110, 10))

	trades := l.ClosedTrades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 5.0, trades[0].RealizedPnL, 1e-9)
	assert.InDelta(t, 50.0, trades[1].RealizedPnL, 1e-9) // (110-100)*0.5*10

	assert.ErrorIs(t, l.SetLeverage(0), ErrInvalidLeverage)
	assert.ErrorIs(t, l.SetLeverage(126), ErrInvalidLeverage)
}

func TestStopLossTakeProfit_AnnotationsOnly(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 0, 1, 0, "BTCUSDT"))
	require.NoError(t, l.SetStopLoss(90))
	require.NoError(t, l.SetTakeProfit(130))

	pos := l.Position()
	assert.Equal(t, 90.0, pos.StopLoss)
	assert.Equal(t, 130.0, pos.TakeProfit)

	// Price crossing the stop changes nothing — the ledger never triggers.
	pnl, _ := l.UnrealizedPnL(80)
	assert.InDelta(t, -20.0, pnl, 1e-9)
	assert.NotNil(t, l.Position())
}

func TestUnrealizedPnL(t *testing.T) {
	l := New()
	pnl, pct := l.UnrealizedPnL(100)
	assert.Zero(t, pnl)
	assert.Zero(t, pct)

	require.NoError(t, l.Open(model.Long, 100, 0, 2, 5, "BTCUSDT"))
	pnl, pct = l.UnrealizedPnL(110)
	assert.InDelta(t, 100.0, pnl, 1e-9) // (110-100)*2*5
	assert.InDelta(t, 50.0, pct, 1e-9)  // 100 / (2*100) * 100

	// Pure query: state unchanged.
	assert.InDelta(t, 2.0, l.Position().Quantity, 1e-9)
	assert.Empty(t, l.ClosedTrades())
}

func TestReset_ClearsEverything(t *testing.T) {
	l := New()
	require.NoError(t, l.SetLeverage(20))
	require.NoError(t, l.Open(model.Long, 100, 0, 1, 0, "BTCUSDT"))
	require.NoError(t, l.Close(110, 10))
	require.NoError(t, l.Open(model.Short, 100, 20, 1, 0, "BTCUSDT"))

	l.Reset()
	assert.Nil(t, l.Position())
	assert.Empty(t, l.ClosedTrades())
	assert.Equal(t, 1, l.Leverage())
}

// Full scenario from the journaling workflow: open, add, partial reduce,
// close, then aggregate.
func TestScenario_OpenAddReduceClose(t *testing.T) {
	l := New()
	require.NoError(t, l.Open(model.Long, 100, 1, 1.0, 1, "BTCUSDT"))
	require.NoError(t, l.Open(model.Long, 120, 2, 1.0, 0, "BTCUSDT"))

	pos := l.Position()
	assert.InDelta(t, 110.0, pos.AvgPrice, 1e-9)
	assert.InDelta(t, 2.0, pos.Quantity, 1e-9)

	require.NoError(t, l.Reduce(130, 3, 1.0))
	assert.InDelta(t, 1.0, l.Position().Quantity, 1e-9)

	require.NoError(t, l.Close(140, 4))
	trades := l.ClosedTrades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 20.0, trades[0].RealizedPnL, 1e-9)
	assert.InDelta(t, 30.0, trades[1].RealizedPnL, 1e-9)

	stats := ComputeStats(trades)
	assert.InDelta(t, 50.0, stats.TotalPnL, 1e-9)
	assert.Equal(t, 2, stats.WinTrades)
	assert.InDelta(t, 100.0, stats.WinRate, 1e-9)
}
