package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"stonks-go/src/alpaca"
	"stonks-go/src/config"
	"stonks-go/src/models"
	"stonks-go/src/strategy"
	"stonks-go/src/tickers"
	"stonks-go/src/trading"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// scan messages delivered into the bubbletea loop
type (
	tickerScannedMsg struct {
		ticker string
		found  bool
	}
	scanDoneMsg struct {
		selected []models.SizedIdea
		stats    trading.ScanStats
	}
	spinnerTickMsg struct{}
)

type model struct {
	msgs    chan tea.Msg
	total   int
	done    int
	found   int
	current string
	frame   int

	selected []models.SizedIdea
	stats    trading.ScanStats
	finished bool
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForMsg(), spinnerTick())
}

func (m model) waitForMsg() tea.Cmd {
	return func() tea.Msg { return <-m.msgs }
}

func spinnerTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case spinnerTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, spinnerTick()
	case tickerScannedMsg:
		m.done++
		m.current = msg.ticker
		if msg.found {
			m.found++
		}
		return m, m.waitForMsg()
	case scanDoneMsg:
		m.selected = msg.selected
		m.stats = msg.stats
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.finished {
		return ""
	}
	return fmt.Sprintf("%s %s %s\n",
		spinnerStyle.Render(spinnerFrames[m.frame]),
		titleStyle.Render("Scanning market data..."),
		dimStyle.Render(fmt.Sprintf("(%d/%d, %d setups, last: %s)", m.done, m.total, m.found, m.current)),
	)
}

func main() {
	accountFlag := flag.Float64("account", 0, "account value in dollars (default: fetched from the broker)")
	fileFlag := flag.String("file", "", "ticker file (default: TICKER_FILE from the environment)")
	flag.Parse()

	if err := config.LoadEnvFile(); err != nil {
		log.Printf("warning: load .env file: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if *fileFlag != "" {
		cfg.Tickers.Source = config.TickerSourceFile
		cfg.Tickers.FilePath = *fileFlag
	}

	ctx := context.Background()

	client, err := alpaca.NewClientFromEnv()
	if err != nil {
		log.Fatalf("create alpaca client: %v", err)
	}

	watchlist, err := tickers.NewLoader(cfg.Tickers).Load(ctx)
	if err != nil {
		log.Fatalf("load watchlist: %v", err)
	}

	account := models.Account{Equity: *accountFlag, BuyingPower: *accountFlag}
	if *accountFlag <= 0 {
		account, err = client.GetAccount(ctx)
		if err != nil {
			log.Fatalf("get account: %v", err)
		}
	}

	regimeBars, err := client.GetDailyBars(ctx, cfg.Analysis.RegimeSymbol, cfg.Analysis.SMATrendPeriod+60)
	if err != nil {
		log.Fatalf("fetch %s bars: %v", cfg.Analysis.RegimeSymbol, err)
	}
	regime, err := strategy.ClassifyRegime(regimeBars, cfg.Analysis.SMATrendPeriod)
	if err != nil {
		log.Fatalf("classify regime: %v", err)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf(
		"Scanning %d tickers | account $%.2f | regime %s", len(watchlist), account.Equity, regime)))

	m := model{msgs: make(chan tea.Msg, len(watchlist)+1), total: len(watchlist)}
	go runScan(ctx, client, cfg, watchlist, regime, account, m.msgs)

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		log.Fatalf("ui error: %v", err)
	}

	result := final.(model)
	if !result.finished {
		return // interrupted
	}
	printResults(result.selected, result.stats, account)
}

// runScan analyzes every ticker sequentially (the data API is the
// bottleneck, not the CPU) and reports progress into the UI channel
func runScan(ctx context.Context, client *alpaca.Client, cfg *config.Config, watchlist []string,
	regime models.Regime, account models.Account, msgs chan<- tea.Msg) {

	signal := strategy.NewPullback(cfg)
	sizer := trading.NewPositionSizer(cfg)
	var sized []models.SizedIdea
	var stats trading.ScanStats

	for _, ticker := range watchlist {
		found := false
		stats.Analyzed++

		bars, err := client.GetDailyBars(ctx, ticker, cfg.Analysis.SMATrendPeriod+60)
		if err != nil {
			stats.Skipped++
			msgs <- tickerScannedMsg{ticker: ticker}
			continue
		}

		idea, err := signal.Analyze(ticker, bars)
		switch {
		case err != nil:
			stats.Skipped++
		case idea != nil:
			s, err := sizer.Size(account.Equity, regime, *idea)
			if err == nil && s != nil {
				stats.Candidates++
				sized = append(sized, *s)
				found = true
			} else {
				stats.Infeasible++
			}
		}
		msgs <- tickerScannedMsg{ticker: ticker, found: found}
	}

	selected, _ := trading.RankAndAllocate(sized, account.BuyingPower)
	msgs <- scanDoneMsg{selected: selected, stats: stats}
}

// printResults renders the execution summary table for the selected ideas
func printResults(selected []models.SizedIdea, stats trading.ScanStats, account models.Account) {
	fmt.Println()
	if len(selected) == 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf(
			"No setups found (%d analyzed, %d skipped).", stats.Analyzed, stats.Skipped)))
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers("TICKER", "SIDE", "QTY", "ENTRY", "STOP", "TARGET", "GAIN %", "CAPITAL", "MAX LOSS")

	committed := 0.0
	for _, idea := range selected {
		committed += idea.CapitalRequired
		t.Row(
			idea.Ticker,
			idea.Side.String(),
			fmt.Sprintf("%d", idea.Quantity),
			fmt.Sprintf("$%.2f", idea.EntryPrice),
			fmt.Sprintf("$%.2f", idea.StopLoss),
			fmt.Sprintf("$%.2f", idea.TargetPrice),
			fmt.Sprintf("%.2f%%", idea.PotentialGainPct),
			fmt.Sprintf("$%.2f", idea.CapitalRequired),
			fmt.Sprintf("$%.2f", idea.DollarRisk),
		)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("🚀 %d trade setups", len(selected))))
	fmt.Println(t.Render())
	fmt.Println(dimStyle.Render(fmt.Sprintf(
		"%d analyzed | %d candidates | $%.2f of $%.2f buying power committed (%.1f%%)",
		stats.Analyzed, stats.Candidates, committed, account.BuyingPower,
		committed/account.BuyingPower*100)))

	top := selected
	if len(top) > 5 {
		top = top[:5]
	}
	names := make([]string, len(top))
	for i, idea := range top {
		names[i] = fmt.Sprintf("%s (+%.2f%%)", idea.Ticker, idea.PotentialGainPct)
	}
	fmt.Println(dimStyle.Render("top picks: " + strings.Join(names, ", ")))
}
