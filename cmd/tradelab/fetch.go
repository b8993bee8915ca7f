package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var flagFormat string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch bars for a symbol and interval, cache-first",
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

		switch strings.ToLower(flagFormat) {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(bars)
		case "csv":
			fmt.Println("time,open,high,low,close,volume")
			for _, b := range bars {
				fmt.Printf("%d,%g,%g,%g,%g,%g\n", b.Time, b.Open, b.High, b.Low, b.Close, b.Volume)
			}
			return nil
		default:
			return fmt.Errorf("unknown format %q (json or csv)", flagFormat)
		}
	},
}

func init() {
	addRangeFlags(fetchCmd)
	fetchCmd.Flags().StringVar(&flagFormat, "format", "csv", "output format: csv or json")
}
