package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stonks-go/src/config"
	"stonks-go/src/indicators"
	"stonks-go/src/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Entry: config.EntryConfig{
			LongPullbackMinPct:     0,
			LongPullbackMaxPct:     5,
			LongStopLossPct:        2,
			ShortRallyMinPct:       0,
			ShortRallyMaxPct:       5,
			ShortStopLossPct:       2,
			RiskRewardRatio:        1.5,
			VolumeFilterMultiplier: 1.2,
		},
		Analysis: config.AnalysisConfig{
			SMATrendPeriod:  200,
			SMAEntryPeriod:  50,
			VolumeAvgPeriod: 20,
		},
	}
}

// barsFromCloses builds a daily series where every bar has volume 100
// except the last, which gets lastVolume.
func barsFromCloses(closes []float64, lastVolume float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: day.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
		}
	}
	bars[len(bars)-1].Volume = lastVolume
	return bars
}

// longSetupCloses yields a 200-bar series with SMA50=100, SMA200=90 and a
// last close of 102: price above trend, 2% above the pullback reference.
func longSetupCloses() []float64 {
	closes := make([]float64, 0, 200)
	for i := 0; i < 150; i++ {
		closes = append(closes, 13000.0/150)
	}
	for i := 0; i < 49; i++ {
		closes = append(closes, 4898.0/49)
	}
	return append(closes, 102)
}

// shortSetupCloses mirrors longSetupCloses: SMA50=100, SMA200=115, last
// close 98, price below trend and 2% below the pullback reference.
func shortSetupCloses() []float64 {
	closes := make([]float64, 0, 200)
	for i := 0; i < 150; i++ {
		closes = append(closes, 120)
	}
	for i := 0; i < 49; i++ {
		closes = append(closes, 4902.0/49)
	}
	return append(closes, 98)
}

func TestAnalyze_LongSetup(t *testing.T) {
	p := NewPullback(testConfig())
	bars := barsFromCloses(longSetupCloses(), 200)

	idea, err := p.Analyze("AAPL", bars)
	require.NoError(t, err)
	require.NotNil(t, idea)

	assert.Equal(t, "AAPL", idea.Ticker)
	assert.Equal(t, models.SideLong, idea.Side)
	assert.InDelta(t, 102, idea.EntryPrice, 1e-6)
	assert.InDelta(t, 100, idea.SMA50, 1e-6)
	assert.InDelta(t, 90, idea.SMA200, 1e-6)

	// Stop 2% below the SMA50, target risk*1.5 above entry.
	assert.InDelta(t, 98, idea.StopLoss, 1e-6)
	assert.InDelta(t, 4, idea.RiskPerShare, 1e-6)
	assert.InDelta(t, 6, idea.RewardPerShare, 1e-6)
	assert.InDelta(t, 108, idea.TargetPrice, 1e-6)
	assert.InDelta(t, 6.0/102*100, idea.PotentialGainPct, 1e-6)
}

func TestAnalyze_ShortSetup(t *testing.T) {
	p := NewPullback(testConfig())
	bars := barsFromCloses(shortSetupCloses(), 200)

	idea, err := p.Analyze("TSLA", bars)
	require.NoError(t, err)
	require.NotNil(t, idea)

	assert.Equal(t, models.SideShort, idea.Side)
	assert.InDelta(t, 98, idea.EntryPrice, 1e-6)
	assert.InDelta(t, 100, idea.SMA50, 1e-6)
	assert.InDelta(t, 115, idea.SMA200, 1e-6)

	// Stop 2% above the SMA50, target risk*1.5 below entry.
	assert.InDelta(t, 102, idea.StopLoss, 1e-6)
	assert.InDelta(t, 4, idea.RiskPerShare, 1e-6)
	assert.InDelta(t, 92, idea.TargetPrice, 1e-6)
	assert.InDelta(t, 6.0/98*100, idea.PotentialGainPct, 1e-6)
}

func TestAnalyze_RejectsPriceOutsideBand(t *testing.T) {
	p := NewPullback(testConfig())

	// Same trend structure, but the last close sits far above the SMA50
	// band on the long side and above the SMA200 on the short side.
	closes := longSetupCloses()
	closes[len(closes)-1] = 112

	idea, err := p.Analyze("NVDA", barsFromCloses(closes, 200))
	require.NoError(t, err)
	assert.Nil(t, idea)
}

func TestAnalyze_RejectsLowVolume(t *testing.T) {
	p := NewPullback(testConfig())

	// Price qualifies, but the last bar's volume equals the average so it
	// cannot clear the 1.2x filter.
	idea, err := p.Analyze("AAPL", barsFromCloses(longSetupCloses(), 100))
	require.NoError(t, err)
	assert.Nil(t, idea)
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	p := NewPullback(testConfig())
	bars := barsFromCloses(longSetupCloses()[:100], 200)

	idea, err := p.Analyze("IPO", bars)
	require.Error(t, err)
	assert.Nil(t, idea)
	assert.True(t, errors.Is(err, indicators.ErrInsufficientData))
}

func TestAnalyze_DegenerateLevels(t *testing.T) {
	cfg := testConfig()
	// A negative stop distance places the stop above a long entry.
	cfg.Entry.LongStopLossPct = -3

	p := NewPullback(cfg)
	idea, err := p.Analyze("AAPL", barsFromCloses(longSetupCloses(), 200))
	require.Error(t, err)
	assert.Nil(t, idea)
	assert.True(t, errors.Is(err, ErrInvalidLevels))
}

func TestAnalyze_Deterministic(t *testing.T) {
	p := NewPullback(testConfig())
	bars := barsFromCloses(longSetupCloses(), 200)

	first, err := p.Analyze("AAPL", bars)
	require.NoError(t, err)
	second, err := p.Analyze("AAPL", bars)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
