package strategy

import (
	"errors"
	"fmt"

	"stonks-go/src/config"
	"stonks-go/src/indicators"
	"stonks-go/src/models"
)

// ErrInvalidLevels marks a candidate whose stop/target geometry is
// degenerate (zero or negative risk). Such ideas are rejected silently and
// counted by the caller, never surfaced as trade setups.
var ErrInvalidLevels = errors.New("degenerate stop/target levels")

// Pullback is the trend-pullback signal generator. Long setups buy a dip
// toward the 50-bar SMA inside a rising 200-bar trend; short setups mirror
// it, selling a rally toward the 50-bar SMA inside a falling trend. Both
// sides run through the same parameterized path so the mirrors cannot
// drift apart. The generator is stateless: identical inputs always yield
// an identical result.
type Pullback struct {
	entry    config.EntryConfig
	analysis config.AnalysisConfig
}

// NewPullback creates a signal generator bound to the given configuration
func NewPullback(cfg *config.Config) *Pullback {
	return &Pullback{
		entry:    cfg.Entry,
		analysis: cfg.Analysis,
	}
}

// sideParams collects the per-side knobs for one evaluation pass
type sideParams struct {
	side       models.Side
	bandMinPct float64
	bandMaxPct float64
	stopPct    float64
}

// Analyze evaluates one ticker's price history and returns at most one
// trade idea. When both sides qualify, long takes precedence. A nil idea
// with a nil error means no setup; ErrInsufficientData and ErrInvalidLevels
// are the two skippable failure modes.
func (p *Pullback) Analyze(ticker string, bars []models.Bar) (*models.TradeIdea, error) {
	closes := models.Closes(bars)

	sma200, err := indicators.LastSMA(closes, p.analysis.SMATrendPeriod)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	sma50, err := indicators.LastSMA(closes, p.analysis.SMAEntryPeriod)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}

	lastClose := closes[len(closes)-1]

	sides := []sideParams{
		{
			side:       models.SideLong,
			bandMinPct: p.entry.LongPullbackMinPct,
			bandMaxPct: p.entry.LongPullbackMaxPct,
			stopPct:    p.entry.LongStopLossPct,
		},
		{
			side:       models.SideShort,
			bandMinPct: p.entry.ShortRallyMinPct,
			bandMaxPct: p.entry.ShortRallyMaxPct,
			stopPct:    p.entry.ShortStopLossPct,
		},
	}

	for _, sp := range sides {
		if !p.trendOK(sp.side, lastClose, sma200) {
			continue
		}
		if !p.pullbackOK(sp, lastClose, sma50) {
			continue
		}
		ok, err := p.volumeOK(bars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ticker, err)
		}
		if !ok {
			continue
		}
		return p.buildIdea(ticker, sp, lastClose, sma50, sma200)
	}

	return nil, nil
}

// trendOK requires price on the trend side of the 200-bar SMA
func (p *Pullback) trendOK(side models.Side, lastClose, sma200 float64) bool {
	if side == models.SideShort {
		return lastClose < sma200
	}
	return lastClose > sma200
}

// pullbackOK requires price inside the entry band around the 50-bar SMA:
// above it for longs, below it for shorts, both bounds inclusive.
func (p *Pullback) pullbackOK(sp sideParams, lastClose, sma50 float64) bool {
	if sma50 <= 0 {
		return false
	}
	distancePct := sp.side.Sign() * (lastClose - sma50) / sma50 * 100
	return distancePct >= sp.bandMinPct && distancePct <= sp.bandMaxPct
}

// volumeOK requires the current bar's volume to exceed the average volume
// of the lookback window by the configured multiplier
func (p *Pullback) volumeOK(bars []models.Bar) (bool, error) {
	volumes := models.Volumes(bars)
	avg, err := indicators.AvgVolume(volumes, p.analysis.VolumeAvgPeriod)
	if err != nil {
		return false, err
	}
	return volumes[len(volumes)-1] > avg*p.entry.VolumeFilterMultiplier, nil
}

// buildIdea derives entry/stop/target from the 50-bar SMA. The sign folds
// the long/short mirror into one expression: stop sits stopPct beyond the
// SMA against the trade, target sits risk*RR along it.
func (p *Pullback) buildIdea(ticker string, sp sideParams, entry, sma50, sma200 float64) (*models.TradeIdea, error) {
	sign := sp.side.Sign()

	stop := sma50 * (1 - sign*sp.stopPct/100)
	risk := sign * (entry - stop)
	if risk <= 0 {
		return nil, fmt.Errorf("%s %s entry %.4f stop %.4f: %w",
			ticker, sp.side, entry, stop, ErrInvalidLevels)
	}

	reward := risk * p.entry.RiskRewardRatio
	target := entry + sign*reward

	return &models.TradeIdea{
		Ticker:           ticker,
		Side:             sp.side,
		EntryPrice:       entry,
		StopLoss:         stop,
		TargetPrice:      target,
		RiskPerShare:     risk,
		RewardPerShare:   reward,
		RiskRewardRatio:  p.entry.RiskRewardRatio,
		PotentialGainPct: sign * (target - entry) / entry * 100,
		SMA50:            sma50,
		SMA200:           sma200,
	}, nil
}
