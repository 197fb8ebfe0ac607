package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stonks-go/src/config"
	"stonks-go/src/models"
)

func sizerConfig() *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			BaseRiskPercent:     0.5,
			BullLongMultiplier:  1.0,
			BullShortMultiplier: 0.5,
			BearLongMultiplier:  0.5,
			BearShortMultiplier: 1.0,
		},
	}
}

func longIdea() models.TradeIdea {
	return models.TradeIdea{
		Ticker:         "AAPL",
		Side:           models.SideLong,
		EntryPrice:     102,
		StopLoss:       98,
		TargetPrice:    108,
		RiskPerShare:   4,
		RewardPerShare: 6,
	}
}

func TestSize_AlignedTrade(t *testing.T) {
	s := NewPositionSizer(sizerConfig())

	// 0.5% of $100k = $500 at risk; $4 risk per share floors to 125 shares.
	sized, err := s.Size(100_000, models.RegimeBull, longIdea())
	require.NoError(t, err)
	require.NotNil(t, sized)

	assert.Equal(t, 125, sized.Quantity)
	assert.InDelta(t, 500, sized.DollarRisk, 1e-9)
	assert.InDelta(t, 0.5, sized.EffectiveRiskPct, 1e-9)
	assert.InDelta(t, 125*102.0, sized.CapitalRequired, 1e-9)
	assert.InDelta(t, 125*6.0, sized.PotentialProfit, 1e-9)
}

func TestSize_OpposedTradeHalvesRisk(t *testing.T) {
	s := NewPositionSizer(sizerConfig())

	idea := longIdea()
	idea.Side = models.SideShort

	sized, err := s.Size(100_000, models.RegimeBull, idea)
	require.NoError(t, err)
	require.NotNil(t, sized)

	assert.InDelta(t, 0.25, sized.EffectiveRiskPct, 1e-9)
	assert.InDelta(t, 250, sized.DollarRisk, 1e-9)
	assert.Equal(t, 62, sized.Quantity)
}

func TestSize_BearMirror(t *testing.T) {
	s := NewPositionSizer(sizerConfig())

	short := longIdea()
	short.Side = models.SideShort

	sizedShort, err := s.Size(100_000, models.RegimeBear, short)
	require.NoError(t, err)
	require.NotNil(t, sizedShort)
	assert.Equal(t, 125, sizedShort.Quantity, "short in a bear market carries full risk")

	sizedLong, err := s.Size(100_000, models.RegimeBear, longIdea())
	require.NoError(t, err)
	require.NotNil(t, sizedLong)
	assert.Equal(t, 62, sizedLong.Quantity, "long in a bear market carries half risk")
}

func TestSize_ScalesLinearlyWithEquity(t *testing.T) {
	s := NewPositionSizer(sizerConfig())

	small, err := s.Size(100_000, models.RegimeBull, longIdea())
	require.NoError(t, err)
	large, err := s.Size(200_000, models.RegimeBull, longIdea())
	require.NoError(t, err)

	assert.Equal(t, small.Quantity*2, large.Quantity)
}

func TestSize_InfeasibleBelowOneShare(t *testing.T) {
	s := NewPositionSizer(sizerConfig())

	// $500 equity risks $2.50, below one share at $4 risk each.
	sized, err := s.Size(500, models.RegimeBull, longIdea())
	require.NoError(t, err)
	assert.Nil(t, sized)
}

func TestSize_RejectsNonPositiveRisk(t *testing.T) {
	s := NewPositionSizer(sizerConfig())

	idea := longIdea()
	idea.RiskPerShare = 0

	_, err := s.Size(100_000, models.RegimeBull, idea)
	require.Error(t, err)
}
