package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"stonks-go/src/models"
)

// Telegram pushes trade events to a Telegram chat. With empty credentials
// every call is a silent no-op, so the engine can notify unconditionally.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
	enabled  bool
}

// NewTelegram creates a notifier; empty botToken or chatID disables it
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		enabled: botToken != "" && chatID != "",
	}
}

// SendMessage sends a raw HTML-formatted message
func (t *Telegram) SendMessage(text string) error {
	if !t.enabled {
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram api: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// NotifyEntry reports a newly placed bracket order
func (t *Telegram) NotifyEntry(idea models.SizedIdea, orderID string) {
	emoji := "📈"
	if idea.Side == models.SideShort {
		emoji = "📉"
	}

	msg := fmt.Sprintf(
		"%s <b>%s %s</b>\n\n"+
			"Quantity: <code>%d</code>\n"+
			"Entry: <code>$%.2f</code>\n"+
			"Stop: <code>$%.2f</code>\n"+
			"Target: <code>$%.2f</code>\n"+
			"Risk: <code>$%.2f (%.2f%%)</code>\n"+
			"Order: <code>%s</code>",
		emoji, idea.Side, idea.Ticker,
		idea.Quantity, idea.EntryPrice, idea.StopLoss, idea.TargetPrice,
		idea.DollarRisk, idea.EffectiveRiskPct, orderID,
	)
	t.trySend(msg)
}

// NotifyExit reports a closed position and the rule that closed it
func (t *Telegram) NotifyExit(pos models.Position, reason string) {
	emoji := "✅"
	if pos.UnrealizedGainPct < 0 {
		emoji = "❌"
	}

	msg := fmt.Sprintf(
		"%s <b>Closed %s %s</b>\n\n"+
			"Quantity: <code>%.0f</code>\n"+
			"Entry: <code>$%.2f</code>\n"+
			"Exit: <code>$%.2f</code>\n"+
			"P/L: <code>%.2f%%</code>\n"+
			"Reason: <code>%s</code>",
		emoji, pos.Side, pos.Ticker,
		pos.Quantity, pos.EntryPrice, pos.CurrentPrice,
		pos.UnrealizedGainPct, reason,
	)
	t.trySend(msg)
}

// NotifyError reports an operational failure
func (t *Telegram) NotifyError(title string, err error) {
	t.trySend(fmt.Sprintf("⚠️ <b>%s</b>\n\n%v", title, err))
}

func (t *Telegram) trySend(msg string) {
	if err := t.SendMessage(msg); err != nil {
		log.Printf("warning: telegram notification failed: %v", err)
	}
}
