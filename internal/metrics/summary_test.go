package metrics

import (
	"math"
	"testing"
	"time"

	"voltalpha/internal/domain"
	"voltalpha/internal/engine"
	"voltalpha/internal/strategy"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func day(i int, close float64, holdings int64, bank float64) domain.DailyState {
	return domain.DailyState{
		Date:     start.AddDate(0, 0, i),
		Close:    close,
		Holdings: holdings,
		Bank:     bank,
		Equity:   float64(holdings)*close + bank,
	}
}

func pathBars(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      prev,
			High:      max(prev, c),
			Low:       min(prev, c),
			Close:     c,
		}
		prev = c
	}
	return bars
}

func TestSummarize_Empty(t *testing.T) {
	if s := Summarize(nil, nil); s != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v, want zero", s)
	}
	if s := Summarize(&engine.Result{}, nil); s != (Summary{}) {
		t.Errorf("Summarize(empty) = %+v, want zero", s)
	}
}

func TestSummarize_BankStatistics(t *testing.T) {
	res := &engine.Result{
		InitialValue: 1000,
		Daily: []domain.DailyState{
			day(0, 10, 100, 0),
			day(1, 9, 110, -90),
			day(2, 10, 100, 10),
			day(3, 11, 100, 30),
		},
	}
	s := Summarize(res, nil)

	if s.BankMin != -90 || s.BankMax != 30 {
		t.Errorf("bank range = [%v, %v], want [-90, 30]", s.BankMin, s.BankMax)
	}
	if !near(s.BankAvg, -12.5, 1e-12) {
		t.Errorf("BankAvg = %v, want -12.5", s.BankAvg)
	}
	if s.NegativeBankCount != 1 || s.PositiveBankCount != 2 {
		t.Errorf("bank counts = %d negative, %d positive, want 1, 2", s.NegativeBankCount, s.PositiveBankCount)
	}
	if s.Holdings != 100 || s.Bank != 30 || s.EndValue != 1130 {
		t.Errorf("final = %d, %v, %v, want 100, 30, 1130", s.Holdings, s.Bank, s.EndValue)
	}
	if !near(s.TotalReturn, 0.13, 1e-12) {
		t.Errorf("TotalReturn = %v, want 0.13", s.TotalReturn)
	}
	if s.Days != 3 {
		t.Errorf("Days = %d, want 3", s.Days)
	}
}

func TestSummarize_Utilization(t *testing.T) {
	res := &engine.Result{
		InitialValue: 1000,
		Daily: []domain.DailyState{
			day(0, 10, 100, 0),    // fully deployed
			day(1, 10, 50, 500),   // half
			day(2, 10, 150, -500), // margin counts as deployed
		},
	}
	s := Summarize(res, nil)
	if !near(s.CapitalUtilization, (1+0.5+1)/3, 1e-12) {
		t.Errorf("CapitalUtilization = %v, want %v", s.CapitalUtilization, 2.5/3)
	}
	if !near(s.AvgDeployedCapital, 1000, 1e-9) {
		t.Errorf("AvgDeployedCapital = %v, want 1000", s.AvgDeployedCapital)
	}
}

func TestMaxDrawdownPct(t *testing.T) {
	days := []domain.DailyState{
		{Equity: 100}, {Equity: 120}, {Equity: 90}, {Equity: 130}, {Equity: 117},
	}
	if got := MaxDrawdownPct(days); !near(got, 25, 1e-9) {
		t.Errorf("MaxDrawdownPct = %v, want 25", got)
	}
	if got := MaxDrawdownPct([]domain.DailyState{{Equity: 1}, {Equity: 2}}); got != 0 {
		t.Errorf("MaxDrawdownPct rising = %v, want 0", got)
	}
}

func TestSharpeRatio(t *testing.T) {
	flat := []domain.DailyState{{Equity: 100}, {Equity: 100}, {Equity: 100}}
	if got := SharpeRatio(flat); got != 0 {
		t.Errorf("SharpeRatio flat = %v, want 0", got)
	}

	// Returns +10% and -10%: mean 0.
	swing := []domain.DailyState{{Equity: 100}, {Equity: 110}, {Equity: 99}}
	if got := SharpeRatio(swing); !near(got, 0, 1e-12) {
		t.Errorf("SharpeRatio swing = %v, want 0", got)
	}

	// Returns 1% and 3%: mean 2%, sample std sqrt(2)%.
	up := []domain.DailyState{{Equity: 100}, {Equity: 101}, {Equity: 104.03}}
	want := 0.02 / (math.Sqrt(2) * 0.01) * math.Sqrt(252)
	if got := SharpeRatio(up); !near(got, want, 1e-6) {
		t.Errorf("SharpeRatio = %v, want %v", got, want)
	}
}

func TestSharpeRatio_WithdrawalsAddedBack(t *testing.T) {
	days := []domain.DailyState{
		{Equity: 100},
		{Equity: 90, Withdrawn: 10},
		{Equity: 80, Withdrawn: 20},
	}
	if got := SharpeRatio(days); got != 0 {
		t.Errorf("SharpeRatio = %v, want 0 for withdrawals on flat prices", got)
	}
}

func TestAnnualize(t *testing.T) {
	if got := Annualize(0.21, 730); !near(got, 0.1, 1e-9) {
		t.Errorf("Annualize(0.21, 730) = %v, want 0.1", got)
	}
	if got := Annualize(0.05, 0); got != 0.05 {
		t.Errorf("Annualize(0.05, 0) = %v, want 0.05", got)
	}
	if got := Annualize(-1.5, 365); got != -1 {
		t.Errorf("Annualize(-1.5, 365) = %v, want -1", got)
	}
}

func TestSummarize_AlphaAgainstBaseline(t *testing.T) {
	p := strategy.Params{Variant: strategy.Standard, Trigger: 0.1, ProfitSharing: 1, FillMode: strategy.FillLimit}
	bars := pathBars(100, 95, 90, 85, 90, 95, 100, 100)
	opts := engine.Options{InitialShares: 1000, AllowMargin: true}

	run := func(p strategy.Params) *engine.Result {
		e, err := engine.New(p, opts, nil)
		if err != nil {
			t.Fatalf("engine.New: %v", err)
		}
		res, err := e.Run(bars)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res
	}
	res := run(p)
	base := run(strategy.Params{Variant: strategy.BuyAndHold})

	s := Summarize(res, base)
	if s.BaselineTotalReturn != 0 {
		t.Errorf("BaselineTotalReturn = %v, want 0", s.BaselineTotalReturn)
	}
	// Bought 100 at 90, sold 100 at 99.
	if !near(s.VolatilityAlpha, 0.009, 1e-9) {
		t.Errorf("VolatilityAlpha = %v, want 0.009", s.VolatilityAlpha)
	}
	if s.TransactionCount != 2 || s.SkippedCount != 0 {
		t.Errorf("counts = %d executed, %d skipped, want 2, 0", s.TransactionCount, s.SkippedCount)
	}
	if !near(s.RebalanceTriggerPct, 10, 1e-12) {
		t.Errorf("RebalanceTriggerPct = %v, want 10", s.RebalanceTriggerPct)
	}
	if s.FinalStackShares != 0 {
		t.Errorf("FinalStackShares = %d, want 0", s.FinalStackShares)
	}
	if s.NegativeBankCount == 0 {
		t.Error("NegativeBankCount = 0, want margin days counted")
	}

	baseSummary := Summarize(base, base)
	if baseSummary.VolatilityAlpha != 0 || baseSummary.TransactionCount != 0 {
		t.Errorf("baseline against itself = alpha %v, %d tx", baseSummary.VolatilityAlpha, baseSummary.TransactionCount)
	}
}

func TestSummarize_Withdrawals(t *testing.T) {
	res := &engine.Result{
		InitialValue: 1000,
		Daily:        []domain.DailyState{day(0, 10, 100, 0), day(30, 10, 98, 5)},
		Withdrawals: []domain.Withdrawal{
			{Amount: 15, Source: domain.WithdrawalForceSale, SharesSold: 2},
		},
		FinalStack: []strategy.Lot{{Shares: 3}, {Shares: 4}},
	}
	s := Summarize(res, nil)
	if s.WithdrawalTotal != 15 || s.WithdrawalCount != 1 || s.ForcedSaleShares != 2 {
		t.Errorf("withdrawals = %v, %d, %d, want 15, 1, 2", s.WithdrawalTotal, s.WithdrawalCount, s.ForcedSaleShares)
	}
	if s.FinalStackShares != 7 {
		t.Errorf("FinalStackShares = %d, want 7", s.FinalStackShares)
	}
}
