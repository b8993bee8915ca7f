package ledger

import (
	"encoding/json"
	"math"

	"tradelab/internal/model"
)

// Stats aggregates a realized-trade history. It is derived on demand and
// never stored; recomputing over the same trade list yields the same result.
type Stats struct {
	TotalPnL     float64 `json:"total_pnl"`
	TotalTrades  int     `json:"total_trades"`
	WinTrades    int     `json:"win_trades"`
	LossTrades   int     `json:"loss_trades"`
	WinRate      float64 `json:"win_rate"` // percent of trades with positive PnL
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"` // absolute value
	ProfitFactor float64 `json:"profit_factor"`
}

// MarshalJSON encodes the ProfitFactor sentinels in forms encoding/json
// accepts: NaN (no trades) becomes null, +Inf (wins without losses) becomes
// the string "inf". Finite values pass through as numbers.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	out := struct {
		plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: plain(s)}
	switch {
	case math.IsNaN(s.ProfitFactor):
		out.ProfitFactor = nil
	case math.IsInf(s.ProfitFactor, 1):
		out.ProfitFactor = "inf"
	default:
		out.ProfitFactor = s.ProfitFactor
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses the sentinel encoding produced by MarshalJSON.
func (s *Stats) UnmarshalJSON(data []byte) error {
	type plain Stats
	aux := struct {
		*plain
		ProfitFactor json.RawMessage `json:"profit_factor"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch string(aux.ProfitFactor) {
	case "", "null":
		s.ProfitFactor = math.NaN()
	case `"inf"`:
		s.ProfitFactor = math.Inf(1)
	default:
		return json.Unmarshal(aux.ProfitFactor, &s.ProfitFactor)
	}
	return nil
}

// ComputeStats derives aggregate statistics from a closed-trade list.
// ProfitFactor is totalWinSum / |totalLossSum|: +Inf when there are wins and
// no losses, NaN when there are no trades at all. Break-even trades count
// toward the total but toward neither wins nor losses.
func ComputeStats(trades []model.ClosedTrade) Stats {
	s := Stats{TotalTrades: len(trades)}
	if len(trades) == 0 {
		s.ProfitFactor = math.NaN()
		return s
	}

	var winSum, lossSum float64
	for _, t := range trades {
		s.TotalPnL += t.RealizedPnL
		switch {
		case t.RealizedPnL > 0:
			s.WinTrades++
			winSum += t.RealizedPnL
		case t.RealizedPnL < 0:
			s.LossTrades++
			lossSum += t.RealizedPnL
		}
	}

	s.WinRate = float64(s.WinTrades) / float64(s.TotalTrades) * 100
	if s.WinTrades > 0 {
		s.AvgWin = winSum / float64(s.WinTrades)
	}
	if s.LossTrades > 0 {
		s.AvgLoss = math.Abs(lossSum) / float64(s.LossTrades)
	}

	switch {
	case lossSum != 0:
		s.ProfitFactor = winSum / math.Abs(lossSum)
	case winSum > 0:
		s.ProfitFactor = math.Inf(1)
	default:
		s.ProfitFactor = 0
	}
	return s
}
