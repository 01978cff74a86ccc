// Package backtest drives complete runs: it loads bars from a price
// provider, attaches rate and CPI series, runs the algorithm next to a
// Buy-and-Hold baseline and summarises, persists and exports the result.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"voltalpha/internal/domain"
	"voltalpha/internal/engine"
	"voltalpha/internal/metrics"
	"voltalpha/internal/pricedata"
	"voltalpha/internal/store"
	"voltalpha/internal/strategy"
)

// seriesLookback is how far before the run start rate and CPI series are
// loaded, so the first day has a value to step from.
const seriesLookback = 45 * 24 * time.Hour

// SeriesSymbols name stored series that feed a run. Rate series carry an
// annual percentage yield in their close; the CPI series carries an index
// level. Empty names leave the corresponding option untouched.
type SeriesSymbols struct {
	RiskFree string
	Borrow   string
	CPI      string
}

// Request describes one run.
type Request struct {
	Symbol  string
	Start   time.Time
	End     time.Time
	Params  strategy.Params
	Options engine.Options
}

// Report is a finished run.
type Report struct {
	Request
	Result         *engine.Result
	Baseline       *engine.Result
	Summary        metrics.Summary
	RunID          int64  // zero unless saved
	TrajectoryPath string // empty unless exported
}

// Backtester runs requests against a price provider. Run persistence and
// trajectory export are enabled with WithRunStore and WithTrajectories.
type Backtester struct {
	prices        pricedata.Provider
	series        SeriesSymbols
	runs          store.RunStore
	trajectories  store.TrajectoryStore
	trajectoryDir string
	log           *slog.Logger
}

// New creates a Backtester reading bars from prices. A nil logger falls
// back to slog.Default().
func New(prices pricedata.Provider, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{prices: prices, log: log.With("component", "backtest")}
}

// WithSeries sets the stored series attached to every run.
func (b *Backtester) WithSeries(s SeriesSymbols) *Backtester {
	b.series = s
	return b
}

// WithRunStore saves every finished run to rs.
func (b *Backtester) WithRunStore(rs store.RunStore) *Backtester {
	b.runs = rs
	return b
}

// WithTrajectories writes every run's daily states under dir.
func (b *Backtester) WithTrajectories(ts store.TrajectoryStore, dir string) *Backtester {
	b.trajectories = ts
	b.trajectoryDir = dir
	return b
}

// Run executes req. Configuration and data errors are returned before any
// simulation; nothing is saved for a failed run.
func (b *Backtester) Run(ctx context.Context, req Request) (*Report, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return nil, &domain.ConfigError{Field: "symbol", Reason: "must not be empty"}
	}
	if !req.End.After(req.Start) {
		return nil, &domain.ConfigError{Field: "end_date", Reason: "must be after start_date"}
	}

	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	bars, opts, err := b.load(ctx, req)
	if err != nil {
		return nil, err
	}
	strat, err := engine.New(req.Params, opts, b.log)
	if err != nil {
		return nil, err
	}
	baseline, err := engine.New(strategy.Params{Variant: strategy.BuyAndHold}, opts, b.log)
	if err != nil {
		return nil, err
	}

	res, err := strat.Run(bars)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Symbol, req.Params.ID(), err)
	}
	base := res
	if req.Params.Variant != strategy.BuyAndHold {
		if base, err = baseline.Run(bars); err != nil {
			return nil, fmt.Errorf("%s baseline: %w", req.Symbol, err)
		}
	}

	rep := &Report{
		Request:  req,
		Result:   res,
		Baseline: base,
		Summary:  metrics.Summarize(res, base),
	}
	rep.Options = opts

	if err := b.export(ctx, rep); err != nil {
		return nil, err
	}

	b.log.Info("run complete",
		"symbol", req.Symbol,
		"algorithm", res.Algorithm,
		"days", rep.Summary.Days,
		"transactions", rep.Summary.TransactionCount,
		"total_return", rep.Summary.TotalReturn,
		"alpha", rep.Summary.VolatilityAlpha,
		"run_id", rep.RunID,
	)
	return rep, nil
}

// load fetches the run's bars and, concurrently, the configured stored
// series, returning req.Options with the series attached. Any failed load
// fails the run.
func (b *Backtester) load(ctx context.Context, req Request) ([]domain.Bar, engine.Options, error) {
	opts := req.Options
	g, gctx := errgroup.WithContext(ctx)

	var bars []domain.Bar
	g.Go(func() error {
		var err error
		bars, err = b.prices.Bars(gctx, req.Symbol, req.Start, req.End)
		if err != nil {
			return fmt.Errorf("loading %s: %w", req.Symbol, err)
		}
		return nil
	})

	series := func(symbol string, scale float64, dst *engine.Series) {
		g.Go(func() error {
			sb, err := b.prices.Bars(gctx, symbol, req.Start.Add(-seriesLookback), req.End)
			if err != nil {
				return fmt.Errorf("loading series %s: %w", symbol, err)
			}
			*dst = engine.SeriesFromBars(sb, scale)
			return nil
		})
	}
	if b.series.RiskFree != "" {
		series(b.series.RiskFree, 0.01, &opts.RiskFreeRate)
	}
	if b.series.Borrow != "" {
		series(b.series.Borrow, 0.01, &opts.BorrowRate)
	}
	if b.series.CPI != "" && opts.Withdrawal.Enabled() && !opts.Withdrawal.SimpleMode {
		series(b.series.CPI, 1, &opts.Withdrawal.CPI)
	}

	if err := g.Wait(); err != nil {
		return nil, opts, err
	}
	return bars, opts, nil
}

// export saves the run and writes its trajectory when enabled.
func (b *Backtester) export(ctx context.Context, rep *Report) error {
	res := rep.Result
	if b.runs != nil {
		run := &store.Run{
			Symbol:       rep.Symbol,
			Algorithm:    res.Algorithm,
			Start:        res.Daily[0].Date,
			End:          res.Final().Date,
			Summary:      rep.Summary,
			Transactions: res.Transactions,
			Withdrawals:  res.Withdrawals,
		}
		id, err := b.runs.SaveRun(ctx, run)
		if err != nil {
			return fmt.Errorf("saving %s run: %w", rep.Symbol, err)
		}
		rep.RunID = id
	}

	if b.trajectories != nil {
		path := filepath.Join(b.trajectoryDir, TrajectoryFileName(rep.Symbol, res.Algorithm, rep.Start, rep.End))
		if err := b.trajectories.WriteTrajectory(ctx, path, res.Daily); err != nil {
			return err
		}
		rep.TrajectoryPath = path
	}
	return nil
}

// TrajectoryFileName names the parquet file holding one run's daily states,
// e.g. "NVDA_sd-8.00_50_20200101_20241231.parquet".
func TrajectoryFileName(symbol, algorithm string, start, end time.Time) string {
	algo := strings.NewReplacer(",", "_", "/", "_", " ", "").Replace(algorithm)
	return fmt.Sprintf("%s_%s_%s_%s.parquet", strings.ToUpper(symbol), algo,
		start.Format("20060102"), end.Format("20060102"))
}
