package engine

import (
	"fmt"
	"math"
	"time"

	"voltalpha/internal/broker"
	"voltalpha/internal/domain"
)

// WithdrawalConfig describes a periodic withdrawal. RatePct is the annual
// withdrawal as a percentage of the initial portfolio value; zero disables
// withdrawals.
type WithdrawalConfig struct {
	RatePct       float64
	FrequencyDays int
	// SimpleMode disables CPI scaling here and interest accrual in the
	// engine, leaving only trading-driven returns.
	SimpleMode bool
	// CPI, when set, scales each withdrawal by CPI(date)/CPI(start).
	CPI Series
}

// Enabled reports whether any withdrawal will be made.
func (c WithdrawalConfig) Enabled() bool { return c.RatePct > 0 }

// Validate rejects a negative rate and a non-positive frequency on an
// enabled schedule.
func (c WithdrawalConfig) Validate() error {
	if math.IsNaN(c.RatePct) || c.RatePct < 0 {
		return &domain.ConfigError{Field: "withdrawal.rate_pct", Reason: fmt.Sprintf("%v must be >= 0", c.RatePct)}
	}
	if c.Enabled() && c.FrequencyDays <= 0 {
		return &domain.ConfigError{Field: "withdrawal.frequency_days", Reason: fmt.Sprintf("%d must be > 0", c.FrequencyDays)}
	}
	return nil
}

// WithdrawalPolicy fires every FrequencyDays calendar days, taking cash
// from the bank first and selling shares for any shortfall.
type WithdrawalPolicy struct {
	cfg          WithdrawalConfig
	initialValue float64
	last         time.Time
	cpiBase      float64
}

// NewWithdrawalPolicy starts the schedule at start. The first withdrawal is
// due FrequencyDays after it.
func NewWithdrawalPolicy(cfg WithdrawalConfig, start time.Time, initialValue float64) *WithdrawalPolicy {
	w := &WithdrawalPolicy{cfg: cfg, initialValue: initialValue, last: start}
	if cfg.CPI != nil && !cfg.SimpleMode {
		w.cpiBase = cfg.CPI.At(start)
	}
	return w
}

// Due reports whether a withdrawal should be made on date.
func (w *WithdrawalPolicy) Due(date time.Time) bool {
	if !w.cfg.Enabled() {
		return false
	}
	return daysBetween(w.last, date) >= w.cfg.FrequencyDays
}

// Amount is the withdrawal for date: the nominal per-period amount, scaled
// by CPI growth since the start unless in simple mode.
func (w *WithdrawalPolicy) Amount(date time.Time) float64 {
	nominal := w.initialValue * w.cfg.RatePct / 100 * float64(w.cfg.FrequencyDays) / 365
	if w.cpiBase <= 0 {
		return nominal
	}
	if cpi := w.cfg.CPI.At(date); cpi > 0 {
		return nominal * cpi / w.cpiBase
	}
	return nominal
}

// Apply makes the withdrawal for date if one is due, valuing forced sales
// at price. It returns nil when nothing was withdrawn.
//
// A positive bank is spent first. The remaining shortfall is raised by
// selling ceil(shortfall/price) shares, capped at the shares held; the
// account is always debited the full amount, so equity falls by exactly
// the withdrawal.
func (w *WithdrawalPolicy) Apply(date time.Time, price float64, acct broker.Broker) *domain.Withdrawal {
	if !w.Due(date) {
		return nil
	}
	w.last = date

	amount := w.Amount(date)
	if amount <= 0 {
		return nil
	}

	wd := &domain.Withdrawal{Date: date, Amount: amount, Source: domain.WithdrawalFromBank, Price: price}
	pos := acct.Position()
	if pos.Bank < amount {
		shortfall := amount - max(pos.Bank, 0)
		shares := int64(math.Ceil(shortfall/price - shareTolerance))
		shares = min(shares, pos.Holdings)
		if shares > 0 {
			acct.Sell(shares, price)
			wd.Source = domain.WithdrawalForceSale
			wd.SharesSold = shares
		}
	}
	pos = acct.Debit(amount)
	wd.Bank = pos.Bank
	wd.Holdings = pos.Holdings
	return wd
}

// shareTolerance keeps an exact multiple of the price from rounding up to
// an extra share.
const shareTolerance = 1e-9

// daysBetween counts calendar days from a to b, rounding so a DST shift
// does not lose a day.
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}
