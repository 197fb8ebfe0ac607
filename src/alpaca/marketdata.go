package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stonks-go/src/models"
)

type barResponse struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

type barsResponse struct {
	Bars          []barResponse `json:"bars"`
	Symbol        string        `json:"symbol"`
	NextPageToken *string       `json:"next_page_token"`
}

// GetDailyBars fetches up to limit daily bars for a symbol, oldest first.
// Split-adjusted prices so moving averages stay continuous across splits.
func (c *Client) GetDailyBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	// Daily bars are published with a delay on free data plans; asking for
	// history up to "now" would be rejected, so end yesterday.
	end := time.Now().UTC().AddDate(0, 0, -1)
	// Calendar span generously covers weekends and holidays.
	start := end.AddDate(0, 0, -(limit*7/4 + 14))

	q := url.Values{}
	q.Set("timeframe", "1Day")
	q.Set("adjustment", "split")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("start", start.Format("2006-01-02"))
	q.Set("end", end.Format("2006-01-02"))

	bars := make([]models.Bar, 0, limit)
	pageToken := ""

	for {
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		rawURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.dataURL, url.PathEscape(symbol), q.Encode())
		body, err := c.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}

		var resp barsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode bars for %s: %w", symbol, err)
		}

		for _, b := range resp.Bars {
			bars = append(bars, models.Bar{
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		pageToken = *resp.NextPageToken
	}

	// Keep only the most recent window when pagination overshoots.
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}
