package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradelab/internal/marketdata"
	"tradelab/internal/model"
	sqlitestore "tradelab/internal/store/sqlite"
)

var (
	flagSQLitePath  string
	flagBinanceURL  string
	flagOKXURL      string
	flagHTTPTimeout time.Duration

	flagSymbol   string
	flagInterval string
	flagStart    int64
	flagEnd      int64
	flagLimit    int
)

var rootCmd = &cobra.Command{
	Use:           "tradelab",
	Short:         "Fetch market data, compute indicators and replay trade scenarios",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSQLitePath, "db", "data/tradelab.db", "sqlite database path used as the bar cache")
	rootCmd.PersistentFlags().StringVar(&flagBinanceURL, "binance-url", "", "override the Binance futures API base URL")
	rootCmd.PersistentFlags().StringVar(&flagOKXURL, "okx-url", "", "override the OKX API base URL")
	rootCmd.PersistentFlags().DurationVar(&flagHTTPTimeout, "timeout", 10*time.Second, "per-request provider timeout")

	rootCmd.AddCommand(fetchCmd, indicatorsCmd, simulateCmd)
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagSymbol, "symbol", "BTCUSDT", "canonical symbol")
	cmd.Flags().StringVar(&flagInterval, "interval", "1h", "bar interval (1m, 5m, 1h, 1d, ...)")
	cmd.Flags().Int64Var(&flagStart, "start", 0, "range start, epoch ms (default: end minus limit bars)")
	cmd.Flags().Int64Var(&flagEnd, "end", 0, "range end, epoch ms (default: now)")
	cmd.Flags().IntVar(&flagLimit, "limit", 500, "bar count when --start is not given")
}

// newReconciler builds the same cache-first pipeline the server runs,
// backed by the sqlite cache only.
func newReconciler() (*marketdata.Reconciler, *sqlitestore.Store, error) {
	store, err := sqlitestore.Open(flagSQLitePath)
	if err != nil {
		return nil, nil, err
	}
	recon, err := marketdata.New(marketdata.Config{
		Cache: store,
		Providers: []marketdata.Provider{
			marketdata.NewBinanceProvider(flagBinanceURL, flagHTTPTimeout),
			marketdata.NewOKXProvider(flagOKXURL, flagHTTPTimeout),
		},
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return recon, store, nil
}

// resolveRange turns the flags into a concrete [start, end] window.
func resolveRange() (string, model.Interval, int64, int64, error) {
	iv, err := model.ParseInterval(flagInterval)
	if err != nil {
		return "", "", 0, 0, err
	}
	end := flagEnd
	if end == 0 {
		end = time.Now().UnixMilli()
	}
	start := flagStart
	if start == 0 {
		if flagLimit <= 0 {
			return "", "", 0, 0, fmt.Errorf("limit must be positive")
		}
		start = end - int64(flagLimit)*iv.Ms()
	}
	if end <= start {
		return "", "", 0, 0, fmt.Errorf("end must be after start")
	}
	return flagSymbol, iv, start, end, nil
}
