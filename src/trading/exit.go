package trading

import (
	"fmt"
	"time"

	"stonks-go/src/config"
	"stonks-go/src/indicators"
	"stonks-go/src/models"
)

// Exit reasons reported with close decisions
const (
	ReasonMaxHold      = "max_hold_days"
	ReasonEMATrend     = "ema_trend"
	ReasonTrailingStop = "trailing_stop"
)

// ExitEvaluator decides, once per cycle per open position, whether the
// position should be closed or its trailing stop armed. All enabled rules
// are evaluated every cycle and any single true condition is enough (OR
// semantics); a close always wins over a trailing-stop activation.
//
// The evaluator holds no per-position state. Trailing-stop state (armed
// flag, peak price) belongs to the position and is threaded through as
// explicit input and output so cycles stay independently repeatable.
type ExitEvaluator struct {
	exit config.ExitConfig
}

// NewExitEvaluator creates an evaluator bound to the given configuration
func NewExitEvaluator(cfg *config.Config) *ExitEvaluator {
	return &ExitEvaluator{exit: cfg.Exit}
}

// Evaluate runs every enabled exit rule against one position snapshot.
// bars is the position's price history, required only when the EMA exit is
// enabled. The returned decision always carries the post-cycle trailing
// state; callers must persist it even on NO_ACTION so the peak survives to
// the next cycle.
func (e *ExitEvaluator) Evaluate(pos models.Position, trail models.TrailState, bars []models.Bar, now time.Time) (models.ExitDecision, error) {
	sign := pos.Side.Sign()

	// Monotonic peak update: best price seen since activation.
	if trail.Activated {
		if sign*(pos.CurrentPrice-trail.PeakPrice) > 0 {
			trail.PeakPrice = pos.CurrentPrice
		}
	}

	if e.exit.CalendarExitEnabled() {
		heldDays := int(now.Sub(pos.EntryTime).Hours() / 24)
		if heldDays >= e.exit.MaxHoldDays {
			return models.ExitDecision{Action: models.ExitClose, Reason: ReasonMaxHold, Trail: trail}, nil
		}
	}

	if e.exit.EMAExitEnabled {
		closed, err := e.emaBreached(pos, bars)
		if err != nil {
			// Never close on a data problem; the orchestrator logs the
			// skip and retries the position next cycle.
			return models.ExitDecision{Trail: trail}, err
		}
		if closed {
			return models.ExitDecision{Action: models.ExitClose, Reason: ReasonEMATrend, Trail: trail}, nil
		}
	}

	if e.exit.TrailingStopEnabled {
		activationPct, trailPct := e.trailParams(pos.Side)

		if trail.Activated {
			// Stop rides the peak: trailPct beyond it against the trade.
			stopPrice := trail.PeakPrice * (1 - sign*trailPct/100)
			if sign*(pos.CurrentPrice-stopPrice) <= 0 {
				return models.ExitDecision{Action: models.ExitClose, Reason: ReasonTrailingStop, Trail: trail}, nil
			}
		} else {
			gainPct := sign * (pos.CurrentPrice - pos.EntryPrice) / pos.EntryPrice * 100
			if gainPct >= activationPct {
				trail = models.TrailState{Activated: true, PeakPrice: pos.CurrentPrice}
				return models.ExitDecision{Action: models.ExitActivateTrailing, Trail: trail}, nil
			}
		}
	}

	return models.ExitDecision{Action: models.ExitNoAction, Trail: trail}, nil
}

// emaBreached reports whether price has fallen through the trend EMA for a
// long, or risen through it for a short
func (e *ExitEvaluator) emaBreached(pos models.Position, bars []models.Bar) (bool, error) {
	ema, err := indicators.LastEMA(models.Closes(bars), e.exit.EMAPeriod)
	if err != nil {
		return false, fmt.Errorf("%s: %w", pos.Ticker, err)
	}
	return pos.Side.Sign()*(pos.CurrentPrice-ema) < 0, nil
}

// trailParams returns the side-specific activation and trail percentages.
// Shorts run tighter than longs on both.
func (e *ExitEvaluator) trailParams(side models.Side) (activationPct, trailPct float64) {
	if side == models.SideShort {
		return e.exit.ShortActivationPct, e.exit.ShortTrailPct
	}
	return e.exit.ActivationPct, e.exit.TrailPct
}
