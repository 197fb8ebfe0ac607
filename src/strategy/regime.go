package strategy

import (
	"fmt"

	"stonks-go/src/indicators"
	"stonks-go/src/models"
)

// ClassifyRegime determines the broad-market regime from a reference index:
// BULL when the last close sits above its long-window SMA, BEAR otherwise.
// The regime only scales position sizing, it never gates signal generation.
func ClassifyRegime(bars []models.Bar, trendWindow int) (models.Regime, error) {
	closes := models.Closes(bars)
	sma, err := indicators.LastSMA(closes, trendWindow)
	if err != nil {
		return models.RegimeBull, fmt.Errorf("classify regime: %w", err)
	}

	if closes[len(closes)-1] > sma {
		return models.RegimeBull, nil
	}
	return models.RegimeBear, nil
}
