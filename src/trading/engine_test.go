package trading

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stonks-go/src/config"
	"stonks-go/src/models"
	"stonks-go/src/store"
)

// engineConfig is a full configuration covering signals, sizing and exits
func engineConfig() *config.Config {
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
		Exit: config.ExitConfig{
			EMAExitEnabled:      false,
			EMAPeriod:           10,
			MaxHoldDays:         14,
			TrailingStopEnabled: true,
			ActivationPct:       5,
			TrailPct:            2,
			ShortActivationPct:  2,
			ShortTrailPct:       3,
		},
		Analysis: config.AnalysisConfig{
			SMATrendPeriod:      200,
			SMAEntryPeriod:      50,
			VolumeAvgPeriod:     20,
			BaseRiskPercent:     0.5,
			BullLongMultiplier:  1.0,
			BullShortMultiplier: 0.5,
			BearLongMultiplier:  0.5,
			BearShortMultiplier: 1.0,
			RegimeSymbol:        "SPY",
			MaxConcurrency:      4,
		},
	}
}

type fakeBroker struct {
	mu        sync.Mutex
	account   models.Account
	positions []models.Position

	placed    []models.SizedIdea
	trailing  []string
	cancelled []string
	closed    []string
}

func (b *fakeBroker) GetAccount(context.Context) (models.Account, error) {
	return b.account, nil
}

func (b *fakeBroker) GetPositions(context.Context) ([]models.Position, error) {
	return b.positions, nil
}

func (b *fakeBroker) GetPositionEntryTime(_ context.Context, symbol string, _ models.Side) (time.Time, error) {
	for _, pos := range b.positions {
		if pos.Ticker == symbol {
			return pos.EntryTime, nil
		}
	}
	return time.Time{}, fmt.Errorf("no position for %s", symbol)
}

func (b *fakeBroker) SubmitBracketOrder(_ context.Context, idea models.SizedIdea) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placed = append(b.placed, idea)
	return fmt.Sprintf("order-%d", len(b.placed)), nil
}

func (b *fakeBroker) SubmitTrailingStopOrder(_ context.Context, pos models.Position, _ float64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trailing = append(b.trailing, pos.Ticker)
	return "trail-1", nil
}

func (b *fakeBroker) CancelOpenOrders(_ context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, symbol)
	return nil
}

func (b *fakeBroker) ClosePosition(_ context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, symbol)
	return nil
}

// fakeData serves canned bar histories; unknown symbols error like the
// data API does for delisted tickers
type fakeData struct {
	bars map[string][]models.Bar
}

func (d *fakeData) GetDailyBars(_ context.Context, symbol string, _ int) ([]models.Bar, error) {
	bars, ok := d.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for %s", symbol)
	}
	return bars, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	entries int
	exits   int
	errors  int
}

func (n *fakeNotifier) NotifyEntry(models.SizedIdea, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries++
}

func (n *fakeNotifier) NotifyExit(models.Position, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.exits++
}

func (n *fakeNotifier) NotifyError(string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors++
}

// setupBars builds a 200-bar history with SMA50 near 100, SMA200 at 90 and
// the given last close; the final bar carries double the average volume.
func setupBars(lastClose float64) []models.Bar {
	bars := make([]models.Bar, 0, 200)
	add := func(c, v float64) {
		bars = append(bars, models.Bar{Close: c, Volume: v})
	}
	for i := 0; i < 150; i++ {
		add((18000.0-4898.0-lastClose)/150, 100)
	}
	for i := 0; i < 49; i++ {
		add(4898.0/49, 100)
	}
	add(lastClose, 200)
	return bars
}

func flatSetup(n int, close float64) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{Close: close, Volume: 100}
	}
	return bars
}

func TestEngineScan_RanksCandidatesDeterministically(t *testing.T) {
	data := &fakeData{bars: map[string][]models.Bar{
		"GOOD":   setupBars(102), // gain 5.88%
		"BETTER": setupBars(104), // gain 8.94%
		"FLAT":   flatSetup(260, 100),
	}}
	engine := NewEngine(&fakeBroker{}, data, store.NewMemoryStore(), &fakeNotifier{}, engineConfig())

	account := models.Account{Equity: 1_000_000, BuyingPower: 2_000_000}
	tickers := []string{"FLAT", "GOOD", "MISSING", "BETTER"}

	selected, stats := engine.Scan(context.Background(), tickers, models.RegimeBull, account)

	assert.Equal(t, 4, stats.Analyzed)
	assert.Equal(t, 1, stats.Skipped, "missing data counts as a skip")
	assert.Equal(t, 2, stats.Candidates)

	require.Len(t, selected, 2)
	assert.Equal(t, "BETTER", selected[0].Ticker)
	assert.Equal(t, "GOOD", selected[1].Ticker)
	assert.Greater(t, selected[0].PotentialGainPct, selected[1].PotentialGainPct)
}

func TestEngineScan_ExecutionOrderDoesNotMatter(t *testing.T) {
	data := &fakeData{bars: map[string][]models.Bar{
		"GOOD":   setupBars(102),
		"BETTER": setupBars(104),
	}}
	engine := NewEngine(&fakeBroker{}, data, store.NewMemoryStore(), &fakeNotifier{}, engineConfig())
	account := models.Account{Equity: 1_000_000, BuyingPower: 2_000_000}

	forward, _ := engine.Scan(context.Background(), []string{"GOOD", "BETTER"}, models.RegimeBull, account)
	reverse, _ := engine.Scan(context.Background(), []string{"BETTER", "GOOD"}, models.RegimeBull, account)

	assert.Equal(t, forward, reverse)
}

func TestEngineEvaluateExits_PersistsAdvancedPeak(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Put(ctx, "AAPL", models.TrailState{Activated: true, PeakPrice: 110}))

	engine := NewEngine(&fakeBroker{}, &fakeData{}, st, &fakeNotifier{}, engineConfig())

	pos := models.Position{
		Ticker:       "AAPL",
		Side:         models.SideLong,
		EntryPrice:   100,
		EntryTime:    time.Now().AddDate(0, 0, -3),
		CurrentPrice: 112,
	}
	decisions := engine.EvaluateExits(ctx, []models.Position{pos})

	require.Contains(t, decisions, "AAPL")
	assert.Equal(t, models.ExitNoAction, decisions["AAPL"].Action)

	state, found, err := st.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 112, state.PeakPrice, 1e-9, "new peak survives to the next cycle")
}

func TestEngineRunCycle_ClosesExpiredThenPlacesNew(t *testing.T) {
	ctx := context.Background()

	broker := &fakeBroker{
		account: models.Account{Equity: 1_000_000, BuyingPower: 2_000_000},
		positions: []models.Position{
			{
				Ticker:       "OLD",
				Side:         models.SideLong,
				Quantity:     50,
				EntryPrice:   100,
				EntryTime:    time.Now().AddDate(0, 0, -20),
				CurrentPrice: 101,
			},
			{
				Ticker:       "GOOD",
				Side:         models.SideLong,
				Quantity:     50,
				EntryPrice:   100,
				EntryTime:    time.Now().AddDate(0, 0, -2),
				CurrentPrice: 101,
			},
		},
	}

	spy := flatSetup(260, 100)
	spy[len(spy)-1].Close = 110
	data := &fakeData{bars: map[string][]models.Bar{
		"SPY":    spy,
		"GOOD":   setupBars(102),
		"BETTER": setupBars(104),
	}}

	st := store.NewMemoryStore()
	require.NoError(t, st.Put(ctx, "OLD", models.TrailState{Activated: true, PeakPrice: 105}))

	notifier := &fakeNotifier{}
	engine := NewEngine(broker, data, st, notifier, engineConfig())

	require.NoError(t, engine.RunCycle(ctx, []string{"GOOD", "BETTER"}))

	// OLD exceeded the hold limit: orders cancelled, position closed,
	// trail state cleared, trade logged.
	assert.Equal(t, []string{"OLD"}, broker.closed)
	assert.Contains(t, broker.cancelled, "OLD")
	_, found, err := st.Get(ctx, "OLD")
	require.NoError(t, err)
	assert.False(t, found)
	trades := st.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, "OLD", trades[0].Symbol)
	assert.Equal(t, ReasonMaxHold, trades[0].Reason)
	assert.Equal(t, 1, notifier.exits)

	// GOOD is still held, so only BETTER gets a new bracket order.
	require.Len(t, broker.placed, 1)
	assert.Equal(t, "BETTER", broker.placed[0].Ticker)
	assert.Equal(t, 1, notifier.entries)
}

func TestEngineRunCycle_ActivatesBrokerSideTrailingStop(t *testing.T) {
	ctx := context.Background()

	broker := &fakeBroker{
		account: models.Account{Equity: 1_000_000, BuyingPower: 2_000_000},
		positions: []models.Position{
			{
				Ticker:       "WIN",
				Side:         models.SideLong,
				Quantity:     50,
				EntryPrice:   100,
				EntryTime:    time.Now().AddDate(0, 0, -3),
				CurrentPrice: 106, // past the 5% activation threshold
			},
		},
	}

	spy := flatSetup(260, 100)
	spy[len(spy)-1].Close = 110
	data := &fakeData{bars: map[string][]models.Bar{"SPY": spy}}

	st := store.NewMemoryStore()
	engine := NewEngine(broker, data, st, &fakeNotifier{}, engineConfig())

	require.NoError(t, engine.RunCycle(ctx, nil))

	assert.Equal(t, []string{"WIN"}, broker.trailing)
	assert.Contains(t, broker.cancelled, "WIN")

	state, found, err := st.Get(ctx, "WIN")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, state.Activated)
	assert.InDelta(t, 106, state.PeakPrice, 1e-9)
}
