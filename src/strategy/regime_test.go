package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stonks-go/src/models"
)

func flatBars(n int, close float64) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{Close: close, Volume: 100}
	}
	return bars
}

func TestClassifyRegime_Bull(t *testing.T) {
	bars := flatBars(200, 100)
	bars[199].Close = 110 // last close above the long SMA

	regime, err := ClassifyRegime(bars, 200)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeBull, regime)
}

func TestClassifyRegime_Bear(t *testing.T) {
	bars := flatBars(200, 100)
	bars[199].Close = 90

	regime, err := ClassifyRegime(bars, 200)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeBear, regime)
}

func TestClassifyRegime_FlatIsBear(t *testing.T) {
	// Exactly on the SMA is not above it.
	regime, err := ClassifyRegime(flatBars(200, 100), 200)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeBear, regime)
}

func TestClassifyRegime_InsufficientHistory(t *testing.T) {
	_, err := ClassifyRegime(flatBars(50, 100), 200)
	require.Error(t, err)
}
