package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voltalpha/internal/backtest"
	"voltalpha/internal/config"
	"voltalpha/internal/dashboard"
	"voltalpha/internal/pricedata"
	"voltalpha/internal/store"
	"voltalpha/internal/strategy"
	"voltalpha/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated tickers (overrides batch.symbols)")
	algorithms := flag.String("algorithms", "", `space-separated algorithm ids or "all" (overrides batch.algorithms)`)
	workers := flag.Int("workers", 0, "parallel runs (overrides batch.max_workers)")
	save := flag.Bool("save", true, "save every successful run to the sqlite store")
	offline := flag.Bool("offline", false, "use cached bars only, never call Alpaca")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *symbols != "" {
		cfg.Batch.Symbols = splitList(*symbols)
	}
	if *algorithms != "" {
		cfg.Batch.Algorithms = strings.Fields(*algorithms)
	}
	if *workers > 0 {
		cfg.Batch.MaxWorkers = *workers
	}

	logOut, closeLog, err := util.OpenLogOutput(cfg.Logging.File)
	if err != nil {
		log.Fatalf("failed to open log output: %v", err)
	}
	defer closeLog()
	util.SetDefault(util.NewLogger(logOut, cfg.Logging.Level, cfg.Logging.Format))

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if len(cfg.Batch.Symbols) == 0 {
		log.Fatal("no symbols: set batch.symbols or -symbols")
	}
	if len(cfg.Batch.Algorithms) == 0 {
		cfg.Batch.Algorithms = []string{cfg.Backtest.Algorithm}
	}
	params, err := backtest.ResolveAlgorithms(cfg.Batch.Algorithms, strategy.Builtin(), cfg.AlgorithmParams)
	if err != nil {
		log.Fatalf("invalid algorithms: %v", err)
	}
	market, _ := cfg.Market()
	from, to, _ := cfg.Range(time.Now())

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	var upstream pricedata.Provider
	if !*offline && cfg.HasAlpacaCredentials() {
		upstream = pricedata.NewAlpacaProvider(cfg.AlpacaOptions())
	}
	bt := backtest.New(pricedata.NewCache(pstore, market, upstream), slog.Default()).
		WithSeries(cfg.Series())
	if *save {
		runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer runs.Close()
		bt.WithRunStore(runs)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	jobs := backtest.Jobs(cfg.Batch.Symbols, params)
	slog.Info("starting batch", "symbols", len(cfg.Batch.Symbols), "algorithms", len(params), "jobs", len(jobs))

	results, stats, err := bt.Batch(ctx, jobs, from, to, cfg.EngineOptions(), cfg.Batch.MaxWorkers)
	if err := dashboard.RenderBatch(os.Stdout, results); err != nil {
		log.Fatalf("rendering results: %v", err)
	}
	if err != nil {
		log.Fatalf("batch interrupted: %v", err)
	}

	fmt.Printf("\n%d succeeded, %d failed in %s\n", stats.Succeeded, stats.Failed, stats.Elapsed)
	if failed := backtest.FailedSymbols(results); len(failed) > 0 {
		fmt.Printf("failed symbols: %s\n", strings.Join(failed, ", "))
		os.Exit(2)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
