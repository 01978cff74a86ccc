package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"voltalpha/internal/config"
	"voltalpha/internal/pricedata"
	"voltalpha/internal/store"
	"voltalpha/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated tickers (default: backtest.symbol plus batch.symbols)")
	start := flag.String("start", "", "start date YYYY-MM-DD (default backtest.start_date)")
	end := flag.String("end", "", "end date YYYY-MM-DD (default: latest finished trading day)")
	workers := flag.Int("workers", 4, "parallel fetches")
	force := flag.Bool("force", false, "refetch symbols the cache already covers")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *start != "" {
		cfg.Backtest.StartDate = *start
	}

	logOut, closeLog, err := util.OpenLogOutput(cfg.Logging.File)
	if err != nil {
		log.Fatalf("failed to open log output: %v", err)
	}
	defer closeLog()
	util.SetDefault(util.NewLogger(logOut, cfg.Logging.Level, cfg.Logging.Format))

	if !cfg.HasAlpacaCredentials() {
		log.Fatal("alpaca credentials missing: set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}

	if *end == "" {
		day, err := pricedata.LatestFinishedTradingDay(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		if err != nil {
			slog.Warn("trading calendar unavailable, using today", "err", err)
			day = time.Now().UTC()
		}
		cfg.Backtest.EndDate = day.Format("2006-01-02")
	} else {
		cfg.Backtest.EndDate = *end
	}
	from, to, err := cfg.Range(time.Now())
	if err != nil {
		log.Fatalf("invalid range: %v", err)
	}
	market, err := cfg.Market()
	if err != nil {
		log.Fatalf("invalid market: %v", err)
	}

	list := fetchList(cfg, *symbols)
	if len(list) == 0 {
		log.Fatal("no symbols: set backtest.symbol, batch.symbols or -symbols")
	}

	cache := pricedata.NewCache(store.NewParquetStore(cfg.Storage.DataDir), market,
		pricedata.NewAlpacaProvider(cfg.AlpacaOptions()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting sd-fetch", "symbols", len(list),
		"start", from.Format("2006-01-02"), "end", to.Format("2006-01-02"), "force", *force)
	res, err := pricedata.Prefetch(ctx, cache, list, from, to, *workers, *force)
	if err != nil {
		log.Fatalf("fetch interrupted: %v", err)
	}

	fmt.Printf("fetched %d, already cached %d, failed %d\n", len(res.Fetched), len(res.Skipped), len(res.Failed))
	if len(res.Failed) > 0 {
		failed := make([]string, 0, len(res.Failed))
		for sym, err := range res.Failed {
			failed = append(failed, fmt.Sprintf("%s (%v)", sym, err))
		}
		sort.Strings(failed)
		fmt.Printf("failed: %s\n", strings.Join(failed, ", "))
		os.Exit(2)
	}
}

// fetchList returns the -symbols flag, or the configured backtest and batch
// symbols, upper-cased and de-duplicated.
func fetchList(cfg *config.Config, flagValue string) []string {
	var raw []string
	if flagValue != "" {
		raw = strings.Split(flagValue, ",")
	} else {
		raw = append([]string{cfg.Backtest.Symbol}, cfg.Batch.Symbols...)
	}

	seen := make(map[string]bool)
	var out []string
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
