package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tradelab/internal/ledger"
	"tradelab/internal/model"
)

// scenario is a scripted trade sequence replayed through the ledger.
type scenario struct {
	Symbol   string   `yaml:"symbol"`
	Leverage int      `yaml:"leverage"`
	Actions  []action `yaml:"actions"`
}

type action struct {
	Op       string  `yaml:"op"` // open, add, reduce, close, stoploss, takeprofit, leverage, mark
	Side     string  `yaml:"side"`
	Price    float64 `yaml:"price"`
	Time     int64   `yaml:"time"`
	Quantity float64 `yaml:"quantity"`
	Percent  float64 `yaml:"percent"`
	Leverage int     `yaml:"leverage"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.yaml>",
	Short: "Replay a scripted trade scenario and print the resulting stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var sc scenario
		if err := yaml.Unmarshal(raw, &sc); err != nil {
			return fmt.Errorf("parse scenario: %w", err)
		}

		l := ledger.New()
		if err := runScenario(l, sc, cmd.OutOrStdout()); err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), l)
		return nil
	},
}

// runScenario applies each action in order, failing fast on the first
// rejected operation.
func runScenario(l *ledger.Ledger, sc scenario, out io.Writer) error {
	if sc.Leverage != 0 {
		if err := l.SetLeverage(sc.Leverage); err != nil {
			return fmt.Errorf("scenario leverage: %w", err)
		}
	}
	for i, a := range sc.Actions {
		var err error
		switch strings.ToLower(a.Op) {
		case "open":
			err = l.Open(model.Side(strings.ToLower(a.Side)), a.Price, a.Time, a.Quantity, a.Leverage, sc.Symbol)
		case "add":
			err = l.AddByPercent(model.Side(strings.ToLower(a.Side)), a.Price, a.Time, a.Percent, sc.Symbol)
		case "reduce":
			if a.Percent != 0 {
				err = l.ReduceByPercent(a.Price, a.Time, a.Percent)
			} else {
				err = l.Reduce(a.Price, a.Time, a.Quantity)
			}
		case "close":
			err = l.Close(a.Price, a.Time)
		case "stoploss":
			err = l.SetStopLoss(a.Price)
		case "takeprofit":
			err = l.SetTakeProfit(a.Price)
		case "leverage":
			err = l.SetLeverage(a.Leverage)
		case "mark":
			if l.Position() != nil {
				pnl, pct := l.UnrealizedPnL(a.Price)
				fmt.Fprintf(out, "mark @%g: unrealized %.4f (%.2f%%)\n", a.Price, pnl, pct)
			} else {
				fmt.Fprintf(out, "mark @%g: flat\n", a.Price)
			}
		default:
			err = fmt.Errorf("unknown op %q", a.Op)
		}
		if err != nil {
			return fmt.Errorf("action %d (%s): %w", i+1, a.Op, err)
		}
	}
	return nil
}

func printReport(out io.Writer, l *ledger.Ledger) {
	trades := l.ClosedTrades()
	fmt.Fprintf(out, "\nclosed trades: %d\n", len(trades))
	for _, t := range trades {
		kind := "full"
		if t.Partial {
			kind = "partial"
		}
		fmt.Fprintf(out, "  %s %-5s %-7s qty=%g entry=%g exit=%g lev=%dx pnl=%.4f\n",
			t.ID, t.Side, kind, t.Quantity, t.EntryPrice, t.ClosePrice, t.Leverage, t.RealizedPnL)
	}

	stats := ledger.ComputeStats(trades)
	fmt.Fprintf(out, "\ntotal pnl:     %.4f\n", stats.TotalPnL)
	fmt.Fprintf(out, "trades:        %d (%d win / %d loss)\n", stats.TotalTrades, stats.WinTrades, stats.LossTrades)
	fmt.Fprintf(out, "win rate:      %.2f%%\n", stats.WinRate)
	fmt.Fprintf(out, "avg win/loss:  %.4f / %.4f\n", stats.AvgWin, stats.AvgLoss)
	fmt.Fprintf(out, "profit factor: %.4f\n", stats.ProfitFactor)

	if pos := l.Position(); pos != nil {
		fmt.Fprintf(out, "\nopen position: %s %s qty=%g avg=%g lev=%dx\n",
			pos.Symbol, pos.Side, pos.Quantity, pos.AvgPrice, pos.Leverage)
	}
}
