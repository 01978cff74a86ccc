package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"voltalpha/internal/backtest"
	"voltalpha/internal/domain"
	"voltalpha/internal/metrics"
	"voltalpha/internal/store"
)

// Styles. Colour is dropped when the writer is not a terminal.
type palette struct {
	title  lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	plain  lipgloss.Style
	dim    lipgloss.Style
	gain   lipgloss.Style
	loss   lipgloss.Style
	price  lipgloss.Style
	symbol lipgloss.Style
	errMsg lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		header: r.NewStyle().Foreground(lipgloss.Color("245")),
		label:  r.NewStyle().Foreground(lipgloss.Color("245")),
		plain:  r.NewStyle(),
		dim:    r.NewStyle().Foreground(lipgloss.Color("240")),
		gain:   r.NewStyle().Foreground(lipgloss.Color("10")),
		loss:   r.NewStyle().Foreground(lipgloss.Color("9")),
		price:  r.NewStyle().Foreground(lipgloss.Color("15")),
		symbol: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		errMsg: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// signed picks the gain or loss style by the sign of v.
func (p palette) signed(v float64) lipgloss.Style {
	switch {
	case v > 0:
		return p.gain
	case v < 0:
		return p.loss
	default:
		return p.plain
	}
}

// ---------------------------------------------------------------------------
// Fixed-width table
// ---------------------------------------------------------------------------

type cell struct {
	text  string
	style lipgloss.Style
}

type column struct {
	name  string
	right bool
}

// table pads every cell to its column width before styling it, so escape
// sequences never count toward alignment.
type table struct {
	cols   []column
	rows   [][]cell
	header lipgloss.Style
}

func (t *table) add(cells ...cell) { t.rows = append(t.rows, cells) }

func (t *table) render(w io.Writer) error {
	widths := make([]int, len(t.cols))
	for i, c := range t.cols {
		widths[i] = lipgloss.Width(c.name)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i < len(widths) && lipgloss.Width(c.text) > widths[i] {
				widths[i] = lipgloss.Width(c.text)
			}
		}
	}

	var b strings.Builder
	for i, c := range t.cols {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(t.header.Render(pad(c.name, widths[i], c.right)))
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		for i, c := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			right := i < len(t.cols) && t.cols[i].right
			width := 0
			if i < len(widths) {
				width = widths[i]
			}
			b.WriteString(c.style.Render(pad(c.text, width, right)))
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func pad(s string, width int, right bool) string {
	n := width - lipgloss.Width(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// RenderSummary writes a two-column summary of one run.
func RenderSummary(w io.Writer, title string, s metrics.Summary) error {
	p := newPalette(w)
	if _, err := fmt.Fprintf(w, "%s\n%s\n", p.title.Render(title),
		p.dim.Render(strings.Repeat("─", lipgloss.Width(title)))); err != nil {
		return err
	}

	type row struct {
		label string
		value cell
	}
	plain := func(v string) cell { return cell{v, p.plain} }
	pct := func(v float64) cell { return cell{FormatPct(v), p.signed(v)} }
	money := func(v float64) cell { return cell{FormatMoney(v), p.signed(v)} }

	rows := []row{
		{"Days", plain(FormatInt(int64(s.Days)))},
		{"Rebalance trigger", plain(fmt.Sprintf("%.2f%%", s.RebalanceTriggerPct))},
		{"Holdings", plain(FormatInt(s.Holdings))},
		{"Bank", money(s.Bank)},
		{"End value", cell{FormatMoney(s.EndValue), p.price}},
		{"Total return", pct(s.TotalReturn)},
		{"Annualized", pct(s.Annualized)},
		{"Buy-and-hold return", pct(s.BaselineTotalReturn)},
		{"Volatility alpha", pct(s.VolatilityAlpha)},
		{"Transactions", plain(fmt.Sprintf("%d (%d skipped)", s.TransactionCount, s.SkippedCount))},
		{"Bank min / max / avg", plain(fmt.Sprintf("%s / %s / %s", FormatMoney(s.BankMin), FormatMoney(s.BankMax), FormatMoney(s.BankAvg)))},
		{"Days bank < 0 / > 0", plain(fmt.Sprintf("%d / %d", s.NegativeBankCount, s.PositiveBankCount))},
		{"Opportunity cost", cell{FormatMoney(s.OpportunityCost), p.signed(-s.OpportunityCost)}},
		{"Risk-free gains", money(s.RiskFreeGains)},
		{"Dividend income", money(s.DividendIncome)},
		{"Avg deployed capital", plain(FormatCompact(s.AvgDeployedCapital))},
		{"Capital utilization", plain(fmt.Sprintf("%.1f%%", s.CapitalUtilization*100))},
		{"Max drawdown", cell{fmt.Sprintf("%.2f%%", s.MaxDrawdownPct), p.signed(-s.MaxDrawdownPct)}},
		{"Sharpe ratio", cell{fmt.Sprintf("%.2f", s.SharpeRatio), p.signed(s.SharpeRatio)}},
		{"Stacked shares", plain(FormatInt(s.FinalStackShares))},
	}
	if s.WithdrawalCount > 0 {
		rows = append(rows,
			row{"Withdrawals", plain(fmt.Sprintf("%d totalling %s", s.WithdrawalCount, FormatMoney(s.WithdrawalTotal)))},
			row{"Shares sold for withdrawals", plain(FormatInt(s.ForcedSaleShares))},
		)
	}

	width := 0
	for _, r := range rows {
		if n := lipgloss.Width(r.label); n > width {
			width = n
		}
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(p.label.Render(pad(r.label, width, false)))
		b.WriteString("  ")
		b.WriteString(r.value.style.Render(r.value.text))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderTransactions writes the ledger, or its last limit entries when
// limit > 0. Skipped buys are dimmed.
func RenderTransactions(w io.Writer, txs []domain.Transaction, limit int) error {
	p := newPalette(w)
	if limit > 0 && len(txs) > limit {
		if _, err := fmt.Fprintln(w, p.dim.Render(fmt.Sprintf("... %d earlier transactions omitted", len(txs)-limit))); err != nil {
			return err
		}
		txs = txs[len(txs)-limit:]
	}

	t := &table{header: p.header, cols: []column{
		{name: "date"}, {name: "side"}, {name: "reason"},
		{name: "qty", right: true}, {name: "trigger", right: true}, {name: "fill", right: true},
		{name: "holdings", right: true}, {name: "bank", right: true},
	}}
	for _, tx := range txs {
		side := string(tx.Side)
		sideStyle := p.gain
		if tx.Side == domain.OrderSideSell {
			sideStyle = p.loss
		}
		switch {
		case tx.Skipped:
			side += " (skipped)"
		case tx.Gap:
			side += " (gap)"
		}
		if tx.Skipped {
			d := p.dim
			t.add(
				cell{tx.Date.Format("2006-01-02"), d}, cell{side, d}, cell{string(tx.Reason), d},
				cell{FormatInt(tx.Qty), d}, cell{FormatPrice(tx.Trigger), d}, cell{FormatPrice(tx.FillPrice), d},
				cell{FormatInt(tx.Holdings), d}, cell{FormatMoney(tx.Bank), d},
			)
			continue
		}
		t.add(
			cell{tx.Date.Format("2006-01-02"), p.plain}, cell{side, sideStyle}, cell{string(tx.Reason), p.plain},
			cell{FormatInt(tx.Qty), p.plain}, cell{FormatPrice(tx.Trigger), p.price}, cell{FormatPrice(tx.FillPrice), p.price},
			cell{FormatInt(tx.Holdings), p.plain}, cell{FormatMoney(tx.Bank), p.signed(tx.Bank)},
		)
	}
	return t.render(w)
}

// RenderBatch writes one row per job: the summary for a success, the error
// for a failure.
func RenderBatch(w io.Writer, results []backtest.JobResult) error {
	p := newPalette(w)
	t := &table{header: p.header, cols: []column{
		{name: "symbol"}, {name: "algorithm"},
		{name: "return", right: true}, {name: "baseline", right: true}, {name: "alpha", right: true},
		{name: "tx", right: true}, {name: "max dd", right: true}, {name: "sharpe", right: true},
		{name: "run", right: true},
	}}
	for _, r := range results {
		if r.Err != nil {
			t.add(cell{r.Symbol, p.symbol}, cell{r.Params.ID(), p.plain},
				cell{fmt.Sprintf("error: %v", r.Err), p.errMsg})
			continue
		}
		s := r.Report.Summary
		t.add(
			cell{r.Symbol, p.symbol}, cell{r.Params.ID(), p.plain},
			cell{FormatPct(s.TotalReturn), p.signed(s.TotalReturn)},
			cell{FormatPct(s.BaselineTotalReturn), p.signed(s.BaselineTotalReturn)},
			cell{FormatPct(s.VolatilityAlpha), p.signed(s.VolatilityAlpha)},
			cell{fmt.Sprintf("%d", s.TransactionCount), p.plain},
			cell{fmt.Sprintf("%.2f%%", s.MaxDrawdownPct), p.plain},
			cell{fmt.Sprintf("%.2f", s.SharpeRatio), p.signed(s.SharpeRatio)},
			cell{runID(r.Report.RunID), p.dim},
		)
	}
	return t.render(w)
}

// RenderRuns writes stored runs, newest first as returned by the store.
func RenderRuns(w io.Writer, runs []store.Run) error {
	p := newPalette(w)
	t := &table{header: p.header, cols: []column{
		{name: "id", right: true}, {name: "symbol"}, {name: "algorithm"}, {name: "period"},
		{name: "end value", right: true}, {name: "return", right: true}, {name: "alpha", right: true},
		{name: "created"},
	}}
	for _, r := range runs {
		t.add(
			cell{fmt.Sprintf("%d", r.ID), p.dim}, cell{r.Symbol, p.symbol}, cell{r.Algorithm, p.plain},
			cell{r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02"), p.plain},
			cell{FormatMoney(r.Summary.EndValue), p.price},
			cell{FormatPct(r.Summary.TotalReturn), p.signed(r.Summary.TotalReturn)},
			cell{FormatPct(r.Summary.VolatilityAlpha), p.signed(r.Summary.VolatilityAlpha)},
			cell{r.CreatedAt.Format("2006-01-02 15:04"), p.dim},
		)
	}
	return t.render(w)
}

func runID(id int64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}
