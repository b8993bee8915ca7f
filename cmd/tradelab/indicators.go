package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tradelab/internal/indicator"
)

var (
	flagIndName string
	flagPeriod  int
	flagMult    float64
	flagFast    int
	flagSlow    int
	flagSignal  int
)

var indicatorsCmd = &cobra.Command{
	Use:   "indicators",
	Short: "Compute an indicator series over fetched bars",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, iv, start, end, err := resolveRange()
		if err != nil {
			return err
		}
		recon, store, err := newReconciler()
		if err != nil {
			return err
		}
		defer store.Close()

		bars, err := recon.FetchBars(cmd.Context(), symbol, iv, start, end)
		if err != nil {
			return err
		}

		var out any
		switch strings.ToLower(flagIndName) {
		case "sma":
			out = indicator.SMA(bars, flagPeriod)
		case "ema":
			out = indicator.EMA(bars, flagPeriod)
		case "bollinger":
			out = indicator.Bollinger(bars, flagPeriod, flagMult)
		case "macd":
			out = indicator.MACD(bars, flagFast, flagSlow, flagSignal)
		case "fractals":
			out = indicator.Fractals(bars)
		default:
			return fmt.Errorf("unknown indicator %q (sma, ema, bollinger, macd, fractals)", flagIndName)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	addRangeFlags(indicatorsCmd)
	indicatorsCmd.Flags().StringVar(&flagIndName, "name", "sma", "indicator: sma, ema, bollinger, macd, fractals")
	indicatorsCmd.Flags().IntVar(&flagPeriod, "period", 20, "lookback period (sma, ema, bollinger)")
	indicatorsCmd.Flags().Float64Var(&flagMult, "mult", 2, "band width in standard deviations (bollinger)")
	indicatorsCmd.Flags().IntVar(&flagFast, "fast", 12, "fast EMA period (macd)")
	indicatorsCmd.Flags().IntVar(&flagSlow, "slow", 26, "slow EMA period (macd)")
	indicatorsCmd.Flags().IntVar(&flagSignal, "signal", 9, "signal EMA period (macd)")
}
