package trading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"stonks-go/src/config"
	"stonks-go/src/indicators"
	"stonks-go/src/models"
	"stonks-go/src/strategy"
)

// Broker is the order/account surface the engine drives. Implemented by
// the Alpaca client; the engine never talks HTTP itself.
type Broker interface {
	GetAccount(ctx context.Context) (models.Account, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetPositionEntryTime(ctx context.Context, symbol string, side models.Side) (time.Time, error)
	SubmitBracketOrder(ctx context.Context, idea models.SizedIdea) (string, error)
	SubmitTrailingStopOrder(ctx context.Context, pos models.Position, trailPct float64) (string, error)
	CancelOpenOrders(ctx context.Context, symbol string) error
	ClosePosition(ctx context.Context, symbol string) error
}

// MarketData supplies already-fetched price history
type MarketData interface {
	GetDailyBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error)
}

// TrailStore persists per-position trailing-stop state across cycles and
// keeps the closed-trade log
type TrailStore interface {
	Get(ctx context.Context, symbol string) (models.TrailState, bool, error)
	Put(ctx context.Context, symbol string, state models.TrailState) error
	Delete(ctx context.Context, symbol string) error
	LogClosedTrade(ctx context.Context, pos models.Position, reason string, closedAt time.Time) error
}

// Notifier pushes trade events to the outside world; implementations must
// tolerate being a no-op
type Notifier interface {
	NotifyEntry(idea models.SizedIdea, orderID string)
	NotifyExit(pos models.Position, reason string)
	NotifyError(title string, err error)
}

// ScanStats counts per-cycle signal outcomes
type ScanStats struct {
	Analyzed      int
	Skipped       int // insufficient history
	InvalidLevels int // degenerate stop/target geometry
	Infeasible    int // sized below one share
	Candidates    int // sized ideas handed to the allocator
}

// Engine wires the decision core (signals, sizing, ranking, exits) to the
// broker, market data, state store and notifier. Per-ticker and
// per-position work fans out over a bounded worker pool; ranking and order
// placement run single-threaded after the pool drains.
type Engine struct {
	broker   Broker
	data     MarketData
	store    TrailStore
	notifier Notifier

	signal    *strategy.Pullback
	sizer     *PositionSizer
	evaluator *ExitEvaluator
	cfg       *config.Config
}

// NewEngine creates an engine from its collaborators and configuration
func NewEngine(broker Broker, data MarketData, store TrailStore, notifier Notifier, cfg *config.Config) *Engine {
	return &Engine{
		broker:    broker,
		data:      data,
		store:     store,
		notifier:  notifier,
		signal:    strategy.NewPullback(cfg),
		sizer:     NewPositionSizer(cfg),
		evaluator: NewExitEvaluator(cfg),
		cfg:       cfg,
	}
}

// barLookback is how much history a scan fetches: the trend window plus
// slack so the volume average and EMA never run short
func (e *Engine) barLookback() int {
	return e.cfg.Analysis.SMATrendPeriod + 60
}

// ClassifyRegime fetches the reference index history and classifies the
// broad market
func (e *Engine) ClassifyRegime(ctx context.Context) (models.Regime, error) {
	bars, err := e.data.GetDailyBars(ctx, e.cfg.Analysis.RegimeSymbol, e.barLookback())
	if err != nil {
		return models.RegimeBull, fmt.Errorf("fetch %s bars: %w", e.cfg.Analysis.RegimeSymbol, err)
	}
	return strategy.ClassifyRegime(bars, e.cfg.Analysis.SMATrendPeriod)
}

// Scan analyzes every ticker concurrently, sizes the survivors against the
// account and regime, then ranks and allocates them against buying power.
// The worker pool only affects throughput: the ranked output is identical
// for any execution order.
func (e *Engine) Scan(ctx context.Context, tickers []string, regime models.Regime, account models.Account) ([]models.SizedIdea, ScanStats) {
	var (
		mu    sync.Mutex
		stats ScanStats
		sized []models.SizedIdea
	)

	sem := make(chan struct{}, e.cfg.Analysis.MaxConcurrency)
	var wg sync.WaitGroup

	for _, ticker := range tickers {
		wg.Add(1)
		sem <- struct{}{}
		go func(ticker string) {
			defer wg.Done()
			defer func() { <-sem }()

			idea, outcome := e.analyzeOne(ctx, ticker, regime, account)

			mu.Lock()
			defer mu.Unlock()
			stats.Analyzed++
			switch outcome {
			case outcomeSkipped:
				stats.Skipped++
			case outcomeInvalid:
				stats.InvalidLevels++
			case outcomeInfeasible:
				stats.Infeasible++
			case outcomeCandidate:
				stats.Candidates++
				sized = append(sized, *idea)
			}
		}(ticker)
	}
	wg.Wait()

	// Barrier reached: ranking is a global reduction over all candidates.
	selected, committed := RankAndAllocate(sized, account.BuyingPower)
	log.Printf("scan: %d analyzed, %d candidates, %d selected, $%.2f committed (skipped=%d invalid=%d infeasible=%d)",
		stats.Analyzed, stats.Candidates, len(selected), committed,
		stats.Skipped, stats.InvalidLevels, stats.Infeasible)

	return selected, stats
}

type scanOutcome int

const (
	outcomeNone scanOutcome = iota
	outcomeSkipped
	outcomeInvalid
	outcomeInfeasible
	outcomeCandidate
)

func (e *Engine) analyzeOne(ctx context.Context, ticker string, regime models.Regime, account models.Account) (*models.SizedIdea, scanOutcome) {
	bars, err := e.data.GetDailyBars(ctx, ticker, e.barLookback())
	if err != nil {
		log.Printf("warning: %s: fetch bars: %v", ticker, err)
		return nil, outcomeSkipped
	}

	idea, err := e.signal.Analyze(ticker, bars)
	if err != nil {
		switch {
		case errors.Is(err, indicators.ErrInsufficientData):
			log.Printf("warning: %s: %v", ticker, err)
			return nil, outcomeSkipped
		case errors.Is(err, strategy.ErrInvalidLevels):
			return nil, outcomeInvalid
		default:
			log.Printf("warning: %s: analyze: %v", ticker, err)
			return nil, outcomeSkipped
		}
	}
	if idea == nil {
		return nil, outcomeNone
	}

	sizedIdea, err := e.sizer.Size(account.Equity, regime, *idea)
	if err != nil {
		log.Printf("warning: %s: size: %v", ticker, err)
		return nil, outcomeSkipped
	}
	if sizedIdea == nil {
		return nil, outcomeInfeasible
	}
	return sizedIdea, outcomeCandidate
}

// EvaluateExits runs the exit evaluator over every open position and
// returns the decision per ticker. Trailing state is read from and written
// back to the store; positions with data problems are skipped, never
// closed.
func (e *Engine) EvaluateExits(ctx context.Context, positions []models.Position) map[string]models.ExitDecision {
	decisions := make(map[string]models.ExitDecision, len(positions))
	var mu sync.Mutex

	sem := make(chan struct{}, e.cfg.Analysis.MaxConcurrency)
	var wg sync.WaitGroup
	now := time.Now()

	for _, pos := range positions {
		wg.Add(1)
		sem <- struct{}{}
		go func(pos models.Position) {
			defer wg.Done()
			defer func() { <-sem }()

			decision, err := e.evaluateOne(ctx, pos, now)
			if err != nil {
				log.Printf("warning: %s: exit evaluation skipped: %v", pos.Ticker, err)
				return
			}

			mu.Lock()
			decisions[pos.Ticker] = decision
			mu.Unlock()
		}(pos)
	}
	wg.Wait()

	return decisions
}

func (e *Engine) evaluateOne(ctx context.Context, pos models.Position, now time.Time) (models.ExitDecision, error) {
	if pos.EntryTime.IsZero() && e.cfg.Exit.CalendarExitEnabled() {
		entryTime, err := e.broker.GetPositionEntryTime(ctx, pos.Ticker, pos.Side)
		if err != nil {
			return models.ExitDecision{}, fmt.Errorf("resolve entry time: %w", err)
		}
		pos.EntryTime = entryTime
	}

	var bars []models.Bar
	if e.cfg.Exit.EMAExitEnabled {
		var err error
		bars, err = e.data.GetDailyBars(ctx, pos.Ticker, e.cfg.Exit.EMAPeriod*3)
		if err != nil {
			return models.ExitDecision{}, fmt.Errorf("fetch bars: %w", err)
		}
	}

	trail, _, err := e.store.Get(ctx, pos.Ticker)
	if err != nil {
		return models.ExitDecision{}, fmt.Errorf("load trail state: %w", err)
	}

	decision, err := e.evaluator.Evaluate(pos, trail, bars, now)
	if err != nil {
		return models.ExitDecision{}, err
	}

	// Persist the updated peak even on NO_ACTION; the evaluator cannot
	// re-derive it from a single snapshot next cycle.
	if decision.Trail.Activated && decision.Action != models.ExitClose {
		if err := e.store.Put(ctx, pos.Ticker, decision.Trail); err != nil {
			log.Printf("warning: %s: persist trail state: %v", pos.Ticker, err)
		}
	}

	return decision, nil
}

// RunCycle executes one full trading cycle: evaluate and apply exits, then
// classify the regime, scan the watchlist and place bracket orders for the
// selected ideas, skipping tickers already held.
func (e *Engine) RunCycle(ctx context.Context, tickers []string) error {
	log.Printf("=== trading cycle started (%d tickers) ===", len(tickers))

	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}
	log.Printf("open positions: %d", len(positions))

	decisions := e.EvaluateExits(ctx, positions)
	e.applyExitDecisions(ctx, positions, decisions)

	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	log.Printf("account: equity=$%.2f buying_power=$%.2f", account.Equity, account.BuyingPower)

	regime, err := e.ClassifyRegime(ctx)
	if err != nil {
		return fmt.Errorf("classify regime: %w", err)
	}
	log.Printf("market regime: %s (%s vs SMA%d)", regime, e.cfg.Analysis.RegimeSymbol, e.cfg.Analysis.SMATrendPeriod)

	selected, _ := e.Scan(ctx, tickers, regime, account)

	held := e.heldTickers(positions, decisions)
	placed := 0
	for _, idea := range selected {
		if held[idea.Ticker] {
			log.Printf("skipping %s: already holding a position", idea.Ticker)
			continue
		}
		orderID, err := e.broker.SubmitBracketOrder(ctx, idea)
		if err != nil {
			log.Printf("warning: %s: place bracket order: %v", idea.Ticker, err)
			e.notifier.NotifyError("order placement failed", err)
			continue
		}
		log.Printf("order placed: %s %s x%d entry=$%.2f stop=$%.2f target=$%.2f (order %s)",
			idea.Side, idea.Ticker, idea.Quantity, idea.EntryPrice, idea.StopLoss, idea.TargetPrice, orderID)
		e.notifier.NotifyEntry(idea, orderID)
		held[idea.Ticker] = true
		placed++
	}

	log.Printf("=== trading cycle complete: %d orders placed ===", placed)
	return nil
}

// applyExitDecisions turns decisions into broker actions in a stable order
func (e *Engine) applyExitDecisions(ctx context.Context, positions []models.Position, decisions map[string]models.ExitDecision) {
	posByTicker := make(map[string]models.Position, len(positions))
	tickers := make([]string, 0, len(decisions))
	for _, pos := range positions {
		posByTicker[pos.Ticker] = pos
	}
	for ticker := range decisions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		decision := decisions[ticker]
		pos := posByTicker[ticker]

		switch decision.Action {
		case models.ExitClose:
			log.Printf("exit triggered for %s: %s", ticker, decision.Reason)
			if err := e.broker.CancelOpenOrders(ctx, ticker); err != nil {
				log.Printf("warning: %s: cancel open orders: %v", ticker, err)
			}
			if err := e.broker.ClosePosition(ctx, ticker); err != nil {
				log.Printf("warning: %s: close position: %v", ticker, err)
				e.notifier.NotifyError("position close failed", err)
				continue
			}
			if err := e.store.Delete(ctx, ticker); err != nil {
				log.Printf("warning: %s: clear trail state: %v", ticker, err)
			}
			if err := e.store.LogClosedTrade(ctx, pos, decision.Reason, time.Now()); err != nil {
				log.Printf("warning: %s: log closed trade: %v", ticker, err)
			}
			e.notifier.NotifyExit(pos, decision.Reason)

		case models.ExitActivateTrailing:
			_, trailPct := e.evaluator.trailParams(pos.Side)
			log.Printf("trailing stop activated for %s at $%.2f (trail %.1f%%)",
				ticker, decision.Trail.PeakPrice, trailPct)
			// Replace the fixed bracket with a broker-side trailing stop.
			if err := e.broker.CancelOpenOrders(ctx, ticker); err != nil {
				log.Printf("warning: %s: cancel bracket legs: %v", ticker, err)
				continue
			}
			if _, err := e.broker.SubmitTrailingStopOrder(ctx, pos, trailPct); err != nil {
				log.Printf("warning: %s: submit trailing stop: %v", ticker, err)
				e.notifier.NotifyError("trailing stop placement failed", err)
				continue
			}
			if err := e.store.Put(ctx, ticker, decision.Trail); err != nil {
				log.Printf("warning: %s: persist trail state: %v", ticker, err)
			}
		}
	}
}

// heldTickers is the set of tickers still occupied after exits were applied
func (e *Engine) heldTickers(positions []models.Position, decisions map[string]models.ExitDecision) map[string]bool {
	held := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if d, ok := decisions[pos.Ticker]; ok && d.Action == models.ExitClose {
			continue
		}
		held[pos.Ticker] = true
	}
	return held
}
