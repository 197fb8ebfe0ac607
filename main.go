package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stonks-go/src/alpaca"
	"stonks-go/src/config"
	"stonks-go/src/notify"
	"stonks-go/src/store"
	"stonks-go/src/tickers"
	"stonks-go/src/trading"
)

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Printf("warning: load .env file: %v (falling back to system environment)", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received, stopping...")
		cancel()
	}()

	client, err := alpaca.NewClient(cfg.Alpaca.APIKey, cfg.Alpaca.SecretKey, cfg.Alpaca.PaperTrading)
	if err != nil {
		log.Fatalf("create alpaca client: %v", err)
	}
	log.Printf("alpaca client ready (paper=%v)", cfg.Alpaca.PaperTrading)

	trailStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open state store: %v", err)
	}
	defer closeStore()

	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	engine := trading.NewEngine(client, client, trailStore, notifier, cfg)

	// Order fills arrive asynchronously on the trade-updates stream; the
	// bot only logs them, the next cycle picks positions up via REST.
	streamBase := alpaca.LiveBaseURL
	if cfg.Alpaca.PaperTrading {
		streamBase = alpaca.PaperBaseURL
	}
	stream := alpaca.NewStream(cfg.Alpaca.APIKey, cfg.Alpaca.SecretKey, streamBase)
	stream.OnTradeUpdate(func(u alpaca.TradeUpdate) {
		log.Printf("trade update: %s %s %s qty=%s avg=%s",
			u.Event, u.Order.Side, u.Order.Symbol, u.Order.FilledQty, u.Order.FilledAvgPrice)
	})
	go func() {
		if err := stream.Run(ctx); err != nil {
			log.Printf("warning: trade-updates stream stopped: %v", err)
		}
	}()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("load timezone %s: %v", cfg.Timezone, err)
	}

	log.Println("swing trading bot started")
	log.Printf("exit modes: calendar=%v (max %d days), ema=%v (period %d), trailing=%v",
		cfg.Exit.CalendarExitEnabled(), cfg.Exit.MaxHoldDays,
		cfg.Exit.EMAExitEnabled, cfg.Exit.EMAPeriod, cfg.Exit.TrailingStopEnabled)

	runScheduler(ctx, client, engine, cfg, loc)
	log.Println("swing trading bot stopped")
}

// openStore picks postgres when DATABASE_URL is set, otherwise keeps
// trailing-stop state in memory (it then survives cycles, not restarts)
func openStore(ctx context.Context, cfg *config.Config) (trading.TrailStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL not set, trailing-stop state is in-memory only")
		return store.NewMemoryStore(), func() {}, nil
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		return nil, nil, err
	}
	pg, err := store.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// runScheduler runs trading cycles at three points of each session: the
// open, midday, and 30 minutes before the close. Outside market days it
// sleeps until early next morning.
func runScheduler(ctx context.Context, client *alpaca.Client, engine *trading.Engine, cfg *config.Config, loc *time.Location) {
	for {
		if ctx.Err() != nil {
			return
		}

		now := time.Now().In(loc)
		open, close_, ok, err := client.GetMarketSchedule(ctx, now, loc)
		if err != nil {
			log.Printf("warning: get market schedule: %v (retrying in 5m)", err)
			if !sleepCtx(ctx, 5*time.Minute) {
				return
			}
			continue
		}
		if !ok {
			log.Printf("%s: market closed today, sleeping until tomorrow", now.Format("2006-01-02"))
			if !sleepUntilTomorrow(ctx, now) {
				return
			}
			continue
		}

		runTimes := cycleTimes(open, close_)
		next, found := nextRun(now, runTimes)
		if !found {
			log.Println("all trading cycles complete for today")
			if !sleepUntilTomorrow(ctx, now) {
				return
			}
			continue
		}

		if wait := next.Sub(now); wait > 0 {
			log.Printf("next cycle at %s (in %s)", next.Format("15:04:05"), wait.Round(time.Second))
			if !sleepCtx(ctx, wait) {
				return
			}
		}

		watchlist, err := loadWatchlist(ctx, client, cfg)
		if err != nil {
			log.Printf("warning: load watchlist: %v (skipping cycle)", err)
			continue
		}

		if err := engine.RunCycle(ctx, watchlist); err != nil {
			log.Printf("warning: trading cycle failed: %v", err)
		}
	}
}

// cycleTimes returns the three run times for a session
func cycleTimes(open, close_ time.Time) []time.Time {
	midday := open.Add(close_.Sub(open) / 2)
	beforeClose := close_.Add(-30 * time.Minute)
	return []time.Time{open, midday, beforeClose}
}

// nextRun finds the first run time still in the future
func nextRun(now time.Time, runTimes []time.Time) (time.Time, bool) {
	for _, rt := range runTimes {
		if now.Before(rt) {
			return rt, true
		}
	}
	return time.Time{}, false
}

// loadWatchlist acquires the ticker list for this cycle. The file is
// re-read every cycle so edits take effect without a restart.
func loadWatchlist(ctx context.Context, client *alpaca.Client, cfg *config.Config) ([]string, error) {
	loader := tickers.NewLoader(cfg.Tickers)
	list, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("watchlist: %d tickers from %s", len(list), cfg.Tickers.Source)
	return list, nil
}

// sleepUntilTomorrow sleeps until 04:00 local time the next day
func sleepUntilTomorrow(ctx context.Context, now time.Time) bool {
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 4, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	wait := tomorrow.Sub(now)
	if wait < time.Minute {
		wait = time.Minute
	}
	log.Printf("sleeping until %s", tomorrow.Format("2006-01-02 15:04"))
	return sleepCtx(ctx, wait)
}

// sleepCtx waits d or until the context is cancelled; false means cancelled
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
