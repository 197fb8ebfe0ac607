package tickers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"stonks-go/src/config"
)

// Validator answers whether a symbol is tradable at the broker
type Validator interface {
	IsTradable(ctx context.Context, symbol string) (bool, error)
}

// Loader acquires the watchlist from the configured source
type Loader struct {
	cfg        config.TickerConfig
	httpClient *http.Client
}

// NewLoader creates a loader bound to the given ticker configuration
func NewLoader(cfg config.TickerConfig) *Loader {
	return &Loader{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Load returns the watchlist from the configured source, cleaned and
// deduplicated
func (l *Loader) Load(ctx context.Context) ([]string, error) {
	switch l.cfg.Source {
	case config.TickerSourceArkAPI:
		return l.loadFromArkAPI(ctx)
	default:
		return l.loadFromFile()
	}
}

// loadFromFile reads a newline-separated ticker list
func (l *Loader) loadFromFile() ([]string, error) {
	f, err := os.Open(l.cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open ticker file: %w", err)
	}
	defer f.Close()

	var raw []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw = append(raw, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ticker file: %w", err)
	}

	return Clean(raw), nil
}

type arkHoldingsResponse struct {
	Symbol   string `json:"symbol"`
	Holdings []struct {
		Ticker string `json:"ticker"`
	} `json:"holdings"`
}

// loadFromArkAPI fetches the combined holdings of the configured ARK funds
func (l *Loader) loadFromArkAPI(ctx context.Context) ([]string, error) {
	var raw []string
	for _, fund := range l.cfg.ArkFunds {
		holdings, err := l.fetchFundHoldings(ctx, fund)
		if err != nil {
			// One broken fund must not empty the whole watchlist.
			log.Printf("warning: fetch %s holdings: %v", fund, err)
			continue
		}
		raw = append(raw, holdings...)
	}

	cleaned := Clean(raw)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no tickers returned by the ARK holdings API")
	}
	return cleaned, nil
}

func (l *Loader) fetchFundHoldings(ctx context.Context, fund string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.ArkAPIURL+fund, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var holdings arkHoldingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&holdings); err != nil {
		return nil, fmt.Errorf("decode holdings: %w", err)
	}

	symbols := make([]string, 0, len(holdings.Holdings))
	for _, h := range holdings.Holdings {
		symbols = append(symbols, h.Ticker)
	}
	return symbols, nil
}

// Clean normalizes raw symbols: trims, uppercases, drops empties and
// anything that is not a plain US equity symbol (foreign listings and
// money-market placeholders show up in ETF holdings), then dedupes and
// sorts for a deterministic watchlist.
func Clean(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var cleaned []string

	for _, s := range raw {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		if symbol == "" || seen[symbol] {
			continue
		}
		if !validSymbol(symbol) {
			continue
		}
		seen[symbol] = true
		cleaned = append(cleaned, symbol)
	}

	sort.Strings(cleaned)
	return cleaned
}

// validSymbol accepts 1-5 uppercase letters, optionally a dot-separated
// share class (BRK.B)
func validSymbol(symbol string) bool {
	parts := strings.Split(symbol, ".")
	if len(parts) > 2 {
		return false
	}
	if len(parts) == 2 && len(parts[1]) != 1 {
		return false
	}
	base := parts[0]
	if len(base) == 0 || len(base) > 5 {
		return false
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && r != '.' {
			return false
		}
	}
	return true
}

// Validate filters the list down to symbols the broker can trade
func Validate(ctx context.Context, symbols []string, v Validator) []string {
	valid := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		ok, err := v.IsTradable(ctx, symbol)
		if err != nil {
			log.Printf("warning: validate %s: %v", symbol, err)
			continue
		}
		if !ok {
			log.Printf("dropping %s: not tradable", symbol)
			continue
		}
		valid = append(valid, symbol)
	}
	return valid
}
