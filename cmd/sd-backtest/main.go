package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"voltalpha/internal/backtest"
	"voltalpha/internal/config"
	"voltalpha/internal/dashboard"
	"voltalpha/internal/domain"
	"voltalpha/internal/pricedata"
	"voltalpha/internal/store"
	"voltalpha/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "ticker to backtest (overrides backtest.symbol)")
	start := flag.String("start", "", "start date YYYY-MM-DD (overrides backtest.start_date)")
	end := flag.String("end", "", "end date YYYY-MM-DD (overrides backtest.end_date)")
	algorithm := flag.String("algorithm", "", `algorithm id or variant, e.g. "sd-8,50" (overrides backtest.algorithm)`)
	save := flag.Bool("save", false, "save the run to the sqlite store")
	trajectory := flag.Bool("trajectory", false, "write the daily trajectory parquet under storage.trajectory_dir")
	showTx := flag.Int("tx", 20, "print the last N transactions (0 for none, -1 for all)")
	offline := flag.Bool("offline", false, "use cached bars only, never call Alpaca")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *symbol != "" {
		cfg.Backtest.Symbol = *symbol
	}
	if *start != "" {
		cfg.Backtest.StartDate = *start
	}
	if *end != "" {
		cfg.Backtest.EndDate = *end
	}
	if *algorithm != "" {
		cfg.Backtest.Algorithm = *algorithm
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
	params, _ := cfg.Params()
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
	if *trajectory {
		dir := cfg.Storage.TrajectoryDir
		if dir == "" {
			dir = filepath.Join(cfg.Storage.DataDir, "trajectories")
		}
		bt.WithTrajectories(pstore, dir)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rep, err := bt.Run(ctx, backtest.Request{
		Symbol:  cfg.Backtest.Symbol,
		Start:   from,
		End:     to,
		Params:  params,
		Options: cfg.EngineOptions(),
	})
	if err != nil {
		var de *domain.DataError
		if errors.As(err, &de) {
			log.Fatalf("bad price data for %s: %v", cfg.Backtest.Symbol, err)
		}
		log.Fatalf("backtest failed: %v", err)
	}

	title := fmt.Sprintf("%s %s  %s..%s", rep.Symbol, rep.Result.Algorithm,
		rep.Result.Daily[0].Date.Format("2006-01-02"), rep.Result.Final().Date.Format("2006-01-02"))
	if err := dashboard.RenderSummary(os.Stdout, title, rep.Summary); err != nil {
		log.Fatalf("rendering summary: %v", err)
	}
	if *showTx != 0 && len(rep.Result.Transactions) > 0 {
		fmt.Println()
		limit := *showTx
		if limit < 0 {
			limit = 0
		}
		if err := dashboard.RenderTransactions(os.Stdout, rep.Result.Transactions, limit); err != nil {
			log.Fatalf("rendering transactions: %v", err)
		}
	}
	if rep.RunID != 0 {
		fmt.Printf("\nsaved run %d\n", rep.RunID)
	}
	if rep.TrajectoryPath != "" {
		fmt.Printf("trajectory written to %s\n", rep.TrajectoryPath)
	}
}
