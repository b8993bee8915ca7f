// Command tradelab is the CLI companion to the server: it fetches
// historical bars, computes indicators over them, and replays scripted
// trade scenarios through the position ledger.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
