// Package metrics reduces a simulation trajectory into summary statistics:
// returns, volatility alpha against a Buy-and-Hold baseline, bank
// statistics, drawdown, capital utilisation and Sharpe ratio.
package metrics

import (
	"math"

	"voltalpha/internal/domain"
	"voltalpha/internal/engine"
)

// tradingDaysPerYear annualises the daily Sharpe ratio.
const tradingDaysPerYear = 252

// Summary is the read-only result of Summarize.
type Summary struct {
	Holdings            int64   `json:"holdings"`
	Bank                float64 `json:"bank"`
	EndValue            float64 `json:"end_value"`
	TotalReturn         float64 `json:"total_return"`
	Annualized          float64 `json:"annualized"`
	VolatilityAlpha     float64 `json:"volatility_alpha"`
	BaselineTotalReturn float64 `json:"baseline_total_return"`

	BankMin           float64 `json:"bank_min"`
	BankMax           float64 `json:"bank_max"`
	BankAvg           float64 `json:"bank_avg"`
	NegativeBankCount int     `json:"negative_bank_count"`
	PositiveBankCount int     `json:"positive_bank_count"`

	OpportunityCost float64 `json:"opportunity_cost"`
	RiskFreeGains   float64 `json:"risk_free_gains"`
	DividendIncome  float64 `json:"dividend_income"`

	AvgDeployedCapital float64 `json:"avg_deployed_capital"`
	CapitalUtilization float64 `json:"capital_utilization"`

	TransactionCount    int     `json:"transaction_count"`
	SkippedCount        int     `json:"skipped_count"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	RebalanceTriggerPct float64 `json:"rebalance_trigger_pct"`

	WithdrawalTotal  float64 `json:"withdrawal_total"`
	WithdrawalCount  int     `json:"withdrawal_count"`
	ForcedSaleShares int64   `json:"forced_sale_shares"`
	FinalStackShares int64   `json:"final_stack_shares"`

	Days int `json:"days"`
}

// Summarize computes the summary of res. baseline is a Buy-and-Hold run
// over the same bars; when nil, alpha and the baseline return are zero.
//
// Returns are measured on equity alone: opportunity cost and risk-free
// gains are reported but not folded into total return or alpha, so alpha
// reflects trading only.
func Summarize(res *engine.Result, baseline *engine.Result) Summary {
	var s Summary
	if res == nil || len(res.Daily) == 0 {
		return s
	}

	final := res.Final()
	s.Holdings = final.Holdings
	s.Bank = final.Bank
	s.EndValue = final.Equity
	s.TotalReturn = TotalReturn(res)
	s.Days = calendarDays(res.Daily)
	s.Annualized = Annualize(s.TotalReturn, s.Days)
	if baseline != nil && len(baseline.Daily) > 0 {
		s.BaselineTotalReturn = TotalReturn(baseline)
		s.VolatilityAlpha = s.TotalReturn - s.BaselineTotalReturn
	}

	s.OpportunityCost = res.OpportunityCost
	s.RiskFreeGains = res.RiskFreeGains
	s.DividendIncome = res.DividendIncome

	s.TransactionCount = res.ExecutedCount()
	s.SkippedCount = res.SkippedCount()
	s.RebalanceTriggerPct = res.Params.Trigger * 100

	for _, w := range res.Withdrawals {
		s.WithdrawalTotal += w.Amount
		s.ForcedSaleShares += w.SharesSold
	}
	s.WithdrawalCount = len(res.Withdrawals)
	for _, lot := range res.FinalStack {
		s.FinalStackShares += lot.Shares
	}

	s.bankStats(res.Daily)
	s.utilization(res.Daily)
	s.MaxDrawdownPct = MaxDrawdownPct(res.Daily)
	s.SharpeRatio = SharpeRatio(res.Daily)
	return s
}

// TotalReturn is final equity over initial value, minus one.
func TotalReturn(res *engine.Result) float64 {
	if res.InitialValue <= 0 || len(res.Daily) == 0 {
		return 0
	}
	return res.Final().Equity/res.InitialValue - 1
}

// Annualize converts a total return over days calendar days into a
// compound annual rate. A run shorter than a day returns r unchanged and a
// total loss stays at -1.
func Annualize(r float64, days int) float64 {
	if days <= 0 {
		return r
	}
	if 1+r <= 0 {
		return -1
	}
	return math.Pow(1+r, 365/float64(days)) - 1
}

func (s *Summary) bankStats(days []domain.DailyState) {
	s.BankMin = math.Inf(1)
	s.BankMax = math.Inf(-1)
	var sum float64
	for _, d := range days {
		s.BankMin = min(s.BankMin, d.Bank)
		s.BankMax = max(s.BankMax, d.Bank)
		sum += d.Bank
		switch {
		case d.Bank < 0:
			s.NegativeBankCount++
		case d.Bank > 0:
			s.PositiveBankCount++
		}
	}
	s.BankAvg = sum / float64(len(days))
}

// utilization averages the share of value held in stock. Margin debt is
// not idle cash, so only a positive bank counts against deployment.
func (s *Summary) utilization(days []domain.DailyState) {
	var deployedSum, utilSum float64
	var utilDays int
	for _, d := range days {
		deployed := float64(d.Holdings) * d.Close
		deployedSum += deployed
		if total := deployed + max(d.Bank, 0); total > 0 {
			utilSum += deployed / total
			utilDays++
		}
	}
	s.AvgDeployedCapital = deployedSum / float64(len(days))
	if utilDays > 0 {
		s.CapitalUtilization = utilSum / float64(utilDays)
	}
}

// MaxDrawdownPct is the largest fall of equity from its running peak, in
// percent of that peak.
func MaxDrawdownPct(days []domain.DailyState) float64 {
	var peak, worst float64
	for _, d := range days {
		if d.Equity > peak {
			peak = d.Equity
		}
		if peak > 0 {
			if dd := (peak - d.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst * 100
}

// SharpeRatio annualises the mean over the sample standard deviation of
// daily equity returns. Withdrawals are added back to the day they were
// taken so cash leaving the account is not counted as a loss. Zero
// volatility yields zero.
func SharpeRatio(days []domain.DailyState) float64 {
	if len(days) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(days)-1)
	for i := 1; i < len(days); i++ {
		prev := days[i-1].Equity
		if prev <= 0 {
			continue
		}
		withdrawn := days[i].Withdrawn - days[i-1].Withdrawn
		rets = append(rets, (days[i].Equity+withdrawn)/prev-1)
	}
	if len(rets) < 2 {
		return 0
	}

	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(rets)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

func calendarDays(days []domain.DailyState) int {
	first, last := days[0].Date, days[len(days)-1].Date
	return int(math.Round(last.Sub(first).Hours() / 24))
}
