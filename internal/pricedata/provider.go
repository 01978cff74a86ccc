// Package pricedata supplies daily bars to the backtester: an Alpaca
// upstream, and a parquet-backed cache that serves what it already holds and
// writes through whatever it has to fetch.
package pricedata

import (
	"context"
	"errors"
	"sort"
	"time"

	"voltalpha/internal/domain"
)

// ErrNoData is returned when a provider has no bars for the requested range.
var ErrNoData = errors.New("no price data")

// Provider returns daily bars for symbol within [start, end], ordered by
// date.
type Provider interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

// Bars calls f.
func (f ProviderFunc) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return f(ctx, symbol, start, end)
}

// dayStart truncates t to midnight UTC.
func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayEnd returns the last instant of t's UTC date.
func dayEnd(t time.Time) time.Time {
	return dayStart(t).Add(24*time.Hour - time.Nanosecond)
}

// clip keeps the bars dated within [start, end] and sorts them by date.
func clip(bars []domain.Bar, start, end time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
