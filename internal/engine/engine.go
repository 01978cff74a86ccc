// Package engine replays a daily price series through a rebalancing
// algorithm: it resolves pending orders with gap-aware pricing, applies
// fills and withdrawals to a simulated account and records the per-day
// trajectory.
package engine

import (
	"fmt"
	"log/slog"
	"math"

	"voltalpha/internal/broker"
	"voltalpha/internal/domain"
	"voltalpha/internal/strategy"
)

// tradingDaysPerYear converts annual rates into per-bar rates.
const tradingDaysPerYear = 252

// maxFillsPerDay caps executions on a single bar.
const maxFillsPerDay = 1

// Options configures a run beyond the algorithm parameters.
type Options struct {
	InitialShares int64
	AllowMargin   bool
	Withdrawal    WithdrawalConfig

	// Annual rates as fractions (0.05 = 5%). Nil means zero.
	RiskFreeRate Series
	BorrowRate   Series

	// CreditDividends adds holdings*dividend to the bank on ex-dates.
	CreditDividends bool

	// Normalize rescales prices so the first close sits on the bracket grid.
	Normalize bool
}

// Validate checks the options independently of any price data.
func (o Options) Validate() error {
	if o.InitialShares <= 0 {
		return &domain.ConfigError{Field: "initial_shares", Reason: fmt.Sprintf("%d must be > 0", o.InitialShares)}
	}
	return o.Withdrawal.Validate()
}

// Result is everything a run produced.
type Result struct {
	Algorithm     string
	Params        strategy.Params
	InitialShares int64
	InitialPrice  float64
	InitialValue  float64
	Scale         float64 // normalisation factor applied to prices, 1 if none

	Transactions []domain.Transaction
	Withdrawals  []domain.Withdrawal
	Daily        []domain.DailyState

	OpportunityCost float64
	RiskFreeGains   float64
	DividendIncome  float64

	FinalStack []strategy.Lot
}

// Final returns the last recorded day.
func (r *Result) Final() domain.DailyState {
	if len(r.Daily) == 0 {
		return domain.DailyState{}
	}
	return r.Daily[len(r.Daily)-1]
}

// ExecutedCount returns the number of transactions that were filled.
func (r *Result) ExecutedCount() int {
	n := 0
	for _, tx := range r.Transactions {
		if !tx.Skipped {
			n++
		}
	}
	return n
}

// SkippedCount returns the number of buys dropped for lack of funds.
func (r *Result) SkippedCount() int {
	return len(r.Transactions) - r.ExecutedCount()
}

// Engine runs simulations for one parameter set. It holds no per-run state,
// so a single Engine may run several series, one at a time or concurrently.
type Engine struct {
	params strategy.Params
	opts   Options
	margin *MarginPolicy
	log    *slog.Logger
}

// New validates the configuration and returns an Engine. A nil logger
// falls back to slog.Default().
func New(params strategy.Params, opts Options, log *slog.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		params: params,
		opts:   opts,
		margin: NewMarginPolicy(opts.AllowMargin),
		log:    log.With("algorithm", params.ID()),
	}, nil
}

// run is the state of one simulation.
type run struct {
	e    *Engine
	algo *strategy.Algorithm
	acct *broker.SimulatorBroker
	wd   *WithdrawalPolicy
	res  *Result

	withdrawn  float64
	fillDay    int
	fillsToday int

	// skippedAt is the trigger of the last recorded skipped buy since the
	// previous fill. A buy re-detected at the same level is retried but not
	// recorded again.
	skippedAt float64
}

// Run replays bars and returns the full trajectory. Malformed bars abort
// the run before any simulation with a *domain.DataError.
func (e *Engine) Run(bars []domain.Bar) (*Result, error) {
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}

	scale := 1.0
	if e.opts.Normalize && e.params.Variant != strategy.BuyAndHold {
		bars, scale = NormalizeBars(bars, e.params.Trigger)
	}

	algo, err := strategy.NewAlgorithm(e.params)
	if err != nil {
		return nil, err
	}

	first := bars[0]
	r := &run{
		e:    e,
		algo: algo,
		acct: broker.NewSimulatorBroker(broker.Position{Holdings: e.opts.InitialShares}),
		res: &Result{
			Algorithm:     e.params.ID(),
			Params:        e.params,
			InitialShares: e.opts.InitialShares,
			InitialPrice:  first.Close,
			InitialValue:  float64(e.opts.InitialShares) * first.Close,
			Scale:         scale,
			Daily:         make([]domain.DailyState, 0, len(bars)),
		},
	}

	// The initial purchase is funded externally: it establishes the
	// position and anchor but is not a transaction.
	algo.Start(first)
	r.wd = NewWithdrawalPolicy(e.opts.Withdrawal, first.Timestamp, r.res.InitialValue)

	e.log.Debug("run started",
		"bars", len(bars),
		"start", first.Timestamp.Format("2006-01-02"),
		"price", first.Close,
		"shares", e.opts.InitialShares,
	)

	for day, bar := range bars {
		r.step(day, bar)
	}

	r.res.FinalStack = algo.Stack().Lots()
	final := r.res.Final()
	e.log.Debug("run finished",
		"transactions", r.res.ExecutedCount(),
		"skipped", r.res.SkippedCount(),
		"withdrawals", len(r.res.Withdrawals),
		"holdings", final.Holdings,
		"bank", final.Bank,
	)
	return r.res, nil
}

// step runs the per-day state machine for one bar.
func (r *run) step(day int, bar domain.Bar) {
	// The first bar is the purchase bar; trading starts on the next one.
	if day > 0 {
		r.algo.ObserveHigh(bar.High)

		if r.e.opts.CreditDividends && bar.Dividend > 0 {
			income := float64(r.acct.Position().Holdings) * bar.Dividend
			r.acct.Credit(income)
			r.res.DividendIncome += income
		}

		if r.fillDay != day {
			r.fillDay, r.fillsToday = day, 0
		}
		if p := r.algo.Pending(); p != nil && p.EligibleOn(day) && r.fillsToday < maxFillsPerDay {
			if r.execute(p, bar) {
				r.fillsToday++
			}
		}

		r.algo.OnBar(day, bar, r.acct.Position().Holdings)
	}

	if w := r.wd.Apply(bar.Timestamp, bar.Close, r.acct); w != nil {
		r.withdrawn += w.Amount
		r.res.Withdrawals = append(r.res.Withdrawals, *w)
		r.algo.ClampStack(w.Holdings)
		if w.Source == domain.WithdrawalForceSale {
			r.e.log.Debug("forced sale for withdrawal",
				"date", bar.Timestamp.Format("2006-01-02"),
				"amount", w.Amount,
				"shares", w.SharesSold,
				"price", w.Price,
			)
		}
	}

	r.accrue(bar)
	r.record(bar)
}

// execute tries to fill p on bar. It returns true when shares changed
// hands; an unreachable trigger leaves the order pending.
func (r *run) execute(p *domain.PendingOrder, bar domain.Bar) bool {
	price, gap, ok := fillPrice(p, bar, r.e.params.FillMode)
	if !ok {
		return false
	}

	pos := r.acct.Position()
	qty := p.Qty
	tx := domain.Transaction{
		Date:      bar.Timestamp,
		Side:      p.Side,
		Reason:    p.Reason,
		Trigger:   p.Trigger,
		FillPrice: price,
		Gap:       gap,
	}

	switch p.Side {
	case domain.OrderSideBuy:
		if err := r.e.margin.CheckBuy(pos, qty, price); err != nil {
			r.algo.OnSkip()
			if r.skippedAt == p.Trigger {
				return false
			}
			r.skippedAt = p.Trigger
			tx.Qty, tx.Skipped = qty, true
			tx.Holdings, tx.Bank = pos.Holdings, pos.Bank
			r.res.Transactions = append(r.res.Transactions, tx)
			r.e.log.Debug("buy skipped",
				"date", bar.Timestamp.Format("2006-01-02"),
				"qty", qty,
				"price", price,
				"bank", pos.Bank,
				"reason", err,
			)
			return false
		}
		pos = r.acct.Buy(qty, price)

	case domain.OrderSideSell:
		qty = min(qty, pos.Holdings)
		if qty <= 0 {
			r.algo.OnSkip()
			return false
		}
		pos = r.acct.Sell(qty, price)
	}

	tx.Qty = qty
	tx.Holdings, tx.Bank = pos.Holdings, pos.Bank
	r.skippedAt = 0
	r.algo.OnFill(&tx)
	r.res.Transactions = append(r.res.Transactions, tx)

	r.e.log.Debug("order filled",
		"date", bar.Timestamp.Format("2006-01-02"),
		"side", tx.Side,
		"reason", tx.Reason,
		"qty", tx.Qty,
		"price", tx.FillPrice,
		"gap", tx.Gap,
		"holdings", tx.Holdings,
		"bank", tx.Bank,
	)
	return true
}

// accrue books the day's cost of margin debt or interest on idle cash.
// The amounts are tracked separately and never move the bank.
func (r *run) accrue(bar domain.Bar) {
	if r.e.opts.Withdrawal.SimpleMode {
		return
	}
	bank := r.acct.Position().Bank
	switch {
	case bank < 0 && r.e.opts.BorrowRate != nil:
		r.res.OpportunityCost += math.Abs(bank) * r.e.opts.BorrowRate.At(bar.Timestamp) / tradingDaysPerYear
	case bank > 0 && r.e.opts.RiskFreeRate != nil:
		r.res.RiskFreeGains += bank * r.e.opts.RiskFreeRate.At(bar.Timestamp) / tradingDaysPerYear
	}
}

func (r *run) record(bar domain.Bar) {
	pos := r.acct.Position()
	r.res.Daily = append(r.res.Daily, domain.DailyState{
		Date:        bar.Timestamp,
		Close:       bar.Close,
		Holdings:    pos.Holdings,
		Bank:        pos.Bank,
		ATH:         r.algo.ATH(),
		StackShares: r.algo.Stack().Total(),
		Equity:      pos.Equity(bar.Close),
		Withdrawn:   r.withdrawn,
	})
}
