package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"stonks-go/src/alpaca"
	"stonks-go/src/config"
	"stonks-go/src/tickers"
)

// gentickers builds a watchlist file from the ARK ETF holdings API,
// optionally dropping symbols the broker cannot trade.
func main() {
	outFlag := flag.String("o", "tickers.txt", "output file")
	validateFlag := flag.Bool("validate", true, "drop symbols not tradable at the broker")
	flag.Parse()

	if err := config.LoadEnvFile(); err != nil {
		log.Printf("warning: load .env file: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	cfg.Tickers.Source = config.TickerSourceArkAPI

	ctx := context.Background()

	log.Printf("fetching holdings for %d ARK funds...", len(cfg.Tickers.ArkFunds))
	list, err := tickers.NewLoader(cfg.Tickers).Load(ctx)
	if err != nil {
		log.Fatalf("fetch holdings: %v", err)
	}
	log.Printf("fetched %d unique symbols", len(list))

	if *validateFlag {
		client, err := alpaca.NewClientFromEnv()
		if err != nil {
			log.Fatalf("create alpaca client: %v", err)
		}
		before := len(list)
		list = tickers.Validate(ctx, list, client)
		log.Printf("validated: %d of %d symbols tradable", len(list), before)
	}

	out := strings.Join(list, "\n") + "\n"
	if err := os.WriteFile(*outFlag, []byte(out), 0o644); err != nil {
		log.Fatalf("write %s: %v", *outFlag, err)
	}
	fmt.Printf("wrote %d tickers to %s\n", len(list), *outFlag)
}
