package dashboard

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"voltalpha/internal/backtest"
	"voltalpha/internal/domain"
	"voltalpha/internal/metrics"
	"voltalpha/internal/store"
	"voltalpha/internal/strategy"
)

func TestFormatInt(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-45000, "-45,000"},
	}
	for _, tt := range tests {
		if got := FormatInt(tt.in); got != tt.want {
			t.Errorf("FormatInt(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{1234.5, "$1,234.50"},
		{1234.565, "$1,234.57"},
		{-2673.085, "-$2,673.09"},
		{0.004, "$0.00"},
		{1e6, "$1,000,000.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.in); got != tt.want {
			t.Errorf("FormatMoney(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCompactAndPct(t *testing.T) {
	if got := FormatCompact(2_500_000); got != "$2.5M" {
		t.Errorf("FormatCompact = %q, want $2.5M", got)
	}
	if got := FormatCompact(-1500); got != "-$1.5K" {
		t.Errorf("FormatCompact = %q, want -$1.5K", got)
	}
	if got := FormatPct(0.1234); got != "+12.34%" {
		t.Errorf("FormatPct = %q, want +12.34%%", got)
	}
	if got := FormatPct(-0.05); got != "-5.00%" {
		t.Errorf("FormatPct = %q, want -5.00%%", got)
	}
	if got := FormatPrice(0); got != "-" {
		t.Errorf("FormatPrice(0) = %q, want -", got)
	}
	if got := FormatPrice(90.5); got != "90.50" {
		t.Errorf("FormatPrice(90.5) = %q, want 90.50", got)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	s := metrics.Summary{
		Holdings:        1000,
		Bank:            900,
		EndValue:        100900,
		TotalReturn:     0.009,
		VolatilityAlpha: 0.009,
		Days:            7,
	}
	if err := RenderSummary(&buf, "VOL sd-7.27,100", s); err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"VOL sd-7.27,100", "$100,900.00", "+0.90%", "1,000"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Withdrawals") {
		t.Errorf("summary without withdrawals mentions them:\n%s", out)
	}
}

func TestRenderTransactions(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{Date: day, Side: domain.OrderSideBuy, Reason: domain.ReasonBracket, Qty: 100, Trigger: 90, FillPrice: 90},
		{Date: day.AddDate(0, 0, 1), Side: domain.OrderSideBuy, Qty: 110, Trigger: 81, Skipped: true},
		{Date: day.AddDate(0, 0, 2), Side: domain.OrderSideSell, Reason: domain.ReasonATH, Qty: 90, Trigger: 99, FillPrice: 101, Gap: true},
	}
	var buf bytes.Buffer
	if err := RenderTransactions(&buf, txs, 2); err != nil {
		t.Fatalf("RenderTransactions: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "1 earlier transactions omitted") {
		t.Errorf("missing omission line:\n%s", out)
	}
	if strings.Contains(out, "2024-01-02") {
		t.Errorf("omitted transaction rendered:\n%s", out)
	}
	if !strings.Contains(out, "buy (skipped)") || !strings.Contains(out, "sell (gap)") {
		t.Errorf("missing flags:\n%s", out)
	}
}

func TestRenderBatch(t *testing.T) {
	p := strategy.Params{Variant: strategy.Standard, Trigger: strategy.TriggerFromSDN(8), ProfitSharing: 0.5}
	results := []backtest.JobResult{
		{Job: backtest.Job{Symbol: "VOL", Params: p}, Report: &backtest.Report{
			Summary: metrics.Summary{TotalReturn: 0.2, VolatilityAlpha: 0.05}, RunID: 7,
		}},
		{Job: backtest.Job{Symbol: "BAD", Params: p}, Err: errors.New("no price data")},
	}
	var buf bytes.Buffer
	if err := RenderBatch(&buf, results); err != nil {
		t.Fatalf("RenderBatch: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"sd-8.00,50", "+20.00%", "+5.00%", "error: no price data"} {
		if !strings.Contains(out, want) {
			t.Errorf("batch table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRuns(t *testing.T) {
	runs := []store.Run{{
		ID: 3, Symbol: "NVDA", Algorithm: "sd-8.00,50",
		Start:     time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2025, 1, 5, 9, 30, 0, 0, time.UTC),
		Summary:   metrics.Summary{EndValue: 1234567.891},
	}}
	var buf bytes.Buffer
	if err := RenderRuns(&buf, runs); err != nil {
		t.Fatalf("RenderRuns: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"NVDA", "2020-01-02..2024-12-31", "$1,234,567.89", "2025-01-05 09:30"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTransactions_AlignedPlainOutput(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{Date: day, Side: domain.OrderSideBuy, Reason: domain.ReasonBracket, Qty: 50, Trigger: 90, FillPrice: 90, Holdings: 1050, Bank: -4500},
		{Date: day.AddDate(0, 0, 1), Side: domain.OrderSideBuy, Qty: 52, Trigger: 81, Skipped: true, Holdings: 1050, Bank: -4500},
		{Date: day.AddDate(0, 0, 9), Side: domain.OrderSideSell, Reason: domain.ReasonATH, Qty: 1234, Trigger: 1099.5, FillPrice: 1101, Holdings: 12345, Bank: 1358634},
	}
	var buf bytes.Buffer
	if err := RenderTransactions(&buf, txs, 0); err != nil {
		t.Fatalf("RenderTransactions: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("non-terminal output contains escape sequences: %q", out)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 rows:\n%s", len(lines), out)
	}
	for i, l := range lines {
		if len(l) != len(lines[0]) {
			t.Errorf("line %d width %d, want %d:\n%s", i, len(l), len(lines[0]), out)
		}
	}
	if !strings.HasSuffix(lines[0], "bank") || !strings.HasSuffix(lines[3], "$1,358,634.00") {
		t.Errorf("bank column not right-aligned:\n%s", out)
	}
}

func TestPad(t *testing.T) {
	tests := []struct {
		s     string
		width int
		right bool
		want  string
	}{
		{"ab", 4, false, "ab  "},
		{"ab", 4, true, "  ab"},
		{"abcdef", 4, true, "abcdef"},
		{"─", 3, false, "─  "},
	}
	for _, tt := range tests {
		if got := pad(tt.s, tt.width, tt.right); got != tt.want {
			t.Errorf("pad(%q, %d, %v) = %q, want %q", tt.s, tt.width, tt.right, got, tt.want)
		}
	}
}
