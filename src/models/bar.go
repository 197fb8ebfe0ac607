package models

import (
	"time"
)

// Bar represents a single daily price bar
type Bar struct {
	Timestamp time.Time // Bar date (session close for daily bars)
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closes extracts the close series from a bar sequence
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Volumes extracts the volume series from a bar sequence
func Volumes(bars []Bar) []float64 {
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	return volumes
}

// Side represents the direction of a trade
type Side int

const (
	SideLong Side = iota
	SideShort
)

// String returns the side name
func (s Side) String() string {
	if s == SideShort {
		return "SHORT"
	}
	return "LONG"
}

// Sign returns +1 for long and -1 for short, used to fold the mirrored
// long/short arithmetic into a single code path
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Regime represents the broad-market trend classification
type Regime int

const (
	RegimeBull Regime = iota
	RegimeBear
)

// String returns the regime name
func (r Regime) String() string {
	if r == RegimeBear {
		return "BEAR"
	}
	return "BULL"
}

// TradeIdea is a fully specified candidate entry produced by one scan pass.
// Immutable once created; discarded after the cycle's orders are placed.
type TradeIdea struct {
	Ticker           string
	Side             Side
	EntryPrice       float64
	StopLoss         float64
	TargetPrice      float64
	RiskPerShare     float64 // |entry - stop|
	RewardPerShare   float64 // |target - entry|
	RiskRewardRatio  float64
	PotentialGainPct float64
	SMA50            float64
	SMA200           float64
}

// SizedIdea is a TradeIdea with a position size attached
type SizedIdea struct {
	TradeIdea
	Quantity         int
	DollarRisk       float64
	EffectiveRiskPct float64
	CapitalRequired  float64 // quantity * entry price
	PotentialProfit  float64 // reward per share * quantity
}

// Position is a read-only snapshot of broker-side state. The engine never
// mutates it; exit decisions are applied by the order layer.
type Position struct {
	Ticker            string
	Side              Side
	Quantity          float64
	EntryPrice        float64
	EntryTime         time.Time
	CurrentPrice      float64
	UnrealizedGainPct float64
}

// TrailState is the trailing-stop state a position carries across cycles.
// It is persisted externally and threaded through evaluate-exits explicitly.
type TrailState struct {
	Activated bool
	PeakPrice float64 // highest price since activation for longs, lowest for shorts
}

// ExitAction is the outcome of evaluating one position
type ExitAction int

const (
	ExitNoAction ExitAction = iota
	ExitClose
	ExitActivateTrailing
)

// String returns the action name
func (a ExitAction) String() string {
	switch a {
	case ExitClose:
		return "CLOSE"
	case ExitActivateTrailing:
		return "ACTIVATE_TRAILING"
	default:
		return "NO_ACTION"
	}
}

// ExitDecision is the per-position result of one exit-evaluation cycle.
// Trail always carries the post-cycle trailing state so the caller can
// persist the updated peak even when no action is taken.
type ExitDecision struct {
	Action ExitAction
	Reason string
	Trail  TrailState
}

// Account is a snapshot of broker account balances
type Account struct {
	Equity      float64
	BuyingPower float64
}
