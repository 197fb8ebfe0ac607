package trading

import (
	"fmt"
	"math"

	"stonks-go/src/config"
	"stonks-go/src/models"
)

// PositionSizer turns a trade idea into a share quantity using fixed
// fractional risk: a configured percentage of account equity is put at risk
// per trade, scaled down when the trade fights the market regime.
type PositionSizer struct {
	analysis config.AnalysisConfig
}

// NewPositionSizer creates a sizer bound to the given configuration
func NewPositionSizer(cfg *config.Config) *PositionSizer {
	return &PositionSizer{analysis: cfg.Analysis}
}

// riskMultiplier selects the regime/side cell of the multiplier table.
// With the default table, trades opposed to the regime (short in a bull
// market, long in a bear market) carry half the base risk.
func (s *PositionSizer) riskMultiplier(regime models.Regime, side models.Side) float64 {
	switch {
	case regime == models.RegimeBull && side == models.SideLong:
		return s.analysis.BullLongMultiplier
	case regime == models.RegimeBull && side == models.SideShort:
		return s.analysis.BullShortMultiplier
	case regime == models.RegimeBear && side == models.SideLong:
		return s.analysis.BearLongMultiplier
	default:
		return s.analysis.BearShortMultiplier
	}
}

// Size computes the share quantity for an idea. A nil result with a nil
// error means the account cannot afford a single share at this risk
// budget; that filters the idea out, it is not an error.
func (s *PositionSizer) Size(equity float64, regime models.Regime, idea models.TradeIdea) (*models.SizedIdea, error) {
	if idea.RiskPerShare <= 0 {
		return nil, fmt.Errorf("%s: non-positive risk per share %.4f", idea.Ticker, idea.RiskPerShare)
	}

	effectiveRiskPct := s.analysis.BaseRiskPercent * s.riskMultiplier(regime, idea.Side)
	dollarRisk := equity * effectiveRiskPct / 100
	quantity := int(math.Floor(dollarRisk / idea.RiskPerShare))

	if quantity < 1 {
		return nil, nil
	}

	return &models.SizedIdea{
		TradeIdea:        idea,
		Quantity:         quantity,
		DollarRisk:       dollarRisk,
		EffectiveRiskPct: effectiveRiskPct,
		CapitalRequired:  float64(quantity) * idea.EntryPrice,
		PotentialProfit:  float64(quantity) * idea.RewardPerShare,
	}, nil
}
