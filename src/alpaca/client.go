package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stonks-go/src/models"
)

const (
	// LiveBaseURL is the live trading API base address
	LiveBaseURL = "https://api.alpaca.markets"
	// PaperBaseURL is the paper trading API base address
	PaperBaseURL = "https://paper-api.alpaca.markets"
	// DataBaseURL is the market data API base address
	DataBaseURL = "https://data.alpaca.markets"
)

// Client is an Alpaca trading and market-data API client
type Client struct {
	apiKey     string
	secretKey  string
	httpClient *http.Client
	baseURL    string
	dataURL    string
}

// NewClient creates a new Alpaca client. paper selects the paper trading
// endpoint; market data always goes through the shared data host.
func NewClient(apiKey, secretKey string, paper bool) (*Client, error) {
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("alpaca api key and secret key are required")
	}

	baseURL := LiveBaseURL
	if paper {
		baseURL = PaperBaseURL
	}

	return &Client{
		apiKey:    apiKey,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		dataURL: DataBaseURL,
	}, nil
}

// NewClientFromEnv creates a client from ALPACA_API_KEY, ALPACA_SECRET_KEY
// and ALPACA_PAPER environment variables
func NewClientFromEnv() (*Client, error) {
	return NewClient(
		os.Getenv("ALPACA_API_KEY"),
		os.Getenv("ALPACA_SECRET_KEY"),
		strings.EqualFold(os.Getenv("ALPACA_PAPER"), "true"),
	)
}

// do executes one authenticated HTTP request and returns the raw body
func (c *Client) do(ctx context.Context, method, rawURL string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, rawURL, resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

type accountResponse struct {
	Equity      string `json:"equity"`
	BuyingPower string `json:"buying_power"`
	Status      string `json:"status"`
}

// GetAccount fetches the account equity and buying power
func (c *Client) GetAccount(ctx context.Context) (models.Account, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/account", nil)
	if err != nil {
		return models.Account{}, err
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Account{}, fmt.Errorf("decode account: %w", err)
	}

	equity, err := strconv.ParseFloat(resp.Equity, 64)
	if err != nil {
		return models.Account{}, fmt.Errorf("parse equity %q: %w", resp.Equity, err)
	}
	buyingPower, err := strconv.ParseFloat(resp.BuyingPower, 64)
	if err != nil {
		return models.Account{}, fmt.Errorf("parse buying power %q: %w", resp.BuyingPower, err)
	}

	return models.Account{Equity: equity, BuyingPower: buyingPower}, nil
}

type positionResponse struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	Side           string `json:"side"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
}

// GetPositions fetches all open positions. Entry timestamps are not part
// of the positions payload; they are resolved separately from order fills.
func (c *Client) GetPositions(ctx context.Context) ([]models.Position, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/positions", nil)
	if err != nil {
		return nil, err
	}

	var resp []positionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]models.Position, 0, len(resp))
	for _, p := range resp {
		qty, _ := strconv.ParseFloat(p.Qty, 64)
		entry, _ := strconv.ParseFloat(p.AvgEntryPrice, 64)
		current, _ := strconv.ParseFloat(p.CurrentPrice, 64)
		plpc, _ := strconv.ParseFloat(p.UnrealizedPLPC, 64)

		side := models.SideLong
		if p.Side == "short" {
			side = models.SideShort
			qty = -qty // Alpaca reports short qty negative
		}

		positions = append(positions, models.Position{
			Ticker:            p.Symbol,
			Side:              side,
			Quantity:          qty,
			EntryPrice:        entry,
			CurrentPrice:      current,
			UnrealizedGainPct: plpc * 100,
		})
	}
	return positions, nil
}

type orderResponse struct {
	ID       string     `json:"id"`
	Symbol   string     `json:"symbol"`
	Side     string     `json:"side"`
	FilledAt *time.Time `json:"filled_at"`
	Status   string     `json:"status"`
}

// GetPositionEntryTime resolves when a position was opened by finding the
// earliest filled entry order for the symbol
func (c *Client) GetPositionEntryTime(ctx context.Context, symbol string, side models.Side) (time.Time, error) {
	q := url.Values{}
	q.Set("status", "closed")
	q.Set("symbols", symbol)
	q.Set("limit", "100")

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/orders?"+q.Encode(), nil)
	if err != nil {
		return time.Time{}, err
	}

	var orders []orderResponse
	if err := json.Unmarshal(body, &orders); err != nil {
		return time.Time{}, fmt.Errorf("decode orders: %w", err)
	}

	entrySide := "buy"
	if side == models.SideShort {
		entrySide = "sell"
	}

	var fills []time.Time
	for _, o := range orders {
		if o.Side == entrySide && o.FilledAt != nil {
			fills = append(fills, *o.FilledAt)
		}
	}
	if len(fills) == 0 {
		return time.Time{}, fmt.Errorf("no filled %s orders for %s", entrySide, symbol)
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Before(fills[j]) })
	return fills[0], nil
}

type bracketOrderRequest struct {
	Symbol      string        `json:"symbol"`
	Qty         string        `json:"qty"`
	Side        string        `json:"side"`
	Type        string        `json:"type"`
	LimitPrice  string        `json:"limit_price"`
	TimeInForce string        `json:"time_in_force"`
	OrderClass  string        `json:"order_class"`
	TakeProfit  takeProfitLeg `json:"take_profit"`
	StopLoss    stopLossLeg   `json:"stop_loss"`
}

type takeProfitLeg struct {
	LimitPrice string `json:"limit_price"`
}

type stopLossLeg struct {
	StopPrice string `json:"stop_price"`
}

// roundPrice formats a price to the cent, the tick size equities accept
func roundPrice(p float64) string {
	return decimal.NewFromFloat(p).Round(2).String()
}

// SubmitBracketOrder places a GTC limit entry with linked stop-loss and
// take-profit legs and returns the broker order ID
func (c *Client) SubmitBracketOrder(ctx context.Context, idea models.SizedIdea) (string, error) {
	side := "buy"
	if idea.Side == models.SideShort {
		side = "sell"
	}

	req := bracketOrderRequest{
		Symbol:      idea.Ticker,
		Qty:         strconv.Itoa(idea.Quantity),
		Side:        side,
		Type:        "limit",
		LimitPrice:  roundPrice(idea.EntryPrice),
		TimeInForce: "gtc",
		OrderClass:  "bracket",
		TakeProfit:  takeProfitLeg{LimitPrice: roundPrice(idea.TargetPrice)},
		StopLoss:    stopLossLeg{StopPrice: roundPrice(idea.StopLoss)},
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", req)
	if err != nil {
		return "", err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	return resp.ID, nil
}

type trailingStopOrderRequest struct {
	Symbol       string `json:"symbol"`
	Qty          string `json:"qty"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	TrailPercent string `json:"trail_percent"`
	TimeInForce  string `json:"time_in_force"`
}

// SubmitTrailingStopOrder replaces a fixed bracket with a broker-side
// trailing stop that exits the position when price retraces trailPct from
// its best level
func (c *Client) SubmitTrailingStopOrder(ctx context.Context, pos models.Position, trailPct float64) (string, error) {
	// Closing side is the opposite of the position side.
	side := "sell"
	if pos.Side == models.SideShort {
		side = "buy"
	}

	req := trailingStopOrderRequest{
		Symbol:       pos.Ticker,
		Qty:          strconv.FormatFloat(pos.Quantity, 'f', -1, 64),
		Side:         side,
		Type:         "trailing_stop",
		TrailPercent: decimal.NewFromFloat(trailPct).String(),
		TimeInForce:  "gtc",
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", req)
	if err != nil {
		return "", err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	return resp.ID, nil
}

// CancelOpenOrders cancels every open order for a symbol. Bracket legs must
// be cancelled before a position can be closed or its stop replaced.
func (c *Client) CancelOpenOrders(ctx context.Context, symbol string) error {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("symbols", symbol)

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/orders?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	var orders []orderResponse
	if err := json.Unmarshal(body, &orders); err != nil {
		return fmt.Errorf("decode orders: %w", err)
	}

	for _, o := range orders {
		if _, err := c.do(ctx, http.MethodDelete, c.baseURL+"/v2/orders/"+o.ID, nil); err != nil {
			return fmt.Errorf("cancel order %s: %w", o.ID, err)
		}
	}
	return nil
}

// ClosePosition liquidates a position at market
func (c *Client) ClosePosition(ctx context.Context, symbol string) error {
	_, err := c.do(ctx, http.MethodDelete, c.baseURL+"/v2/positions/"+symbol, nil)
	return err
}

type calendarDay struct {
	Date  string `json:"date"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// GetMarketSchedule returns the session open and close for a date, or
// ok=false when the market is closed that day
func (c *Client) GetMarketSchedule(ctx context.Context, date time.Time, loc *time.Location) (open, close_ time.Time, ok bool, err error) {
	day := date.Format("2006-01-02")
	q := url.Values{}
	q.Set("start", day)
	q.Set("end", day)

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/calendar?"+q.Encode(), nil)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}

	var days []calendarDay
	if err := json.Unmarshal(body, &days); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("decode calendar: %w", err)
	}
	if len(days) == 0 || days[0].Date != day {
		return time.Time{}, time.Time{}, false, nil
	}

	open, err = time.ParseInLocation("2006-01-02 15:04", days[0].Date+" "+days[0].Open, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse session open: %w", err)
	}
	close_, err = time.ParseInLocation("2006-01-02 15:04", days[0].Date+" "+days[0].Close, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parse session close: %w", err)
	}
	return open, close_, true, nil
}

type assetResponse struct {
	Symbol   string `json:"symbol"`
	Status   string `json:"status"`
	Tradable bool   `json:"tradable"`
}

// IsTradable reports whether a symbol exists in the broker's asset catalog
// and is open for trading
func (c *Client) IsTradable(ctx context.Context, symbol string) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/assets/"+url.PathEscape(symbol), nil)
	if err != nil {
		// The assets endpoint answers 404 for unknown symbols.
		if strings.Contains(err.Error(), "status 404") {
			return false, nil
		}
		return false, err
	}

	var resp assetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode asset: %w", err)
	}
	return resp.Tradable && resp.Status == "active", nil
}
