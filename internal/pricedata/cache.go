package pricedata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"voltalpha/internal/domain"
	"voltalpha/internal/store"
)

// Compile-time interface check.
var _ Provider = (*Cache)(nil)

// coverageSlack is how far the first and last cached bars may sit inside
// the requested range and still count as covering it: a long weekend plus
// a holiday.
const coverageSlack = 5 * 24 * time.Hour

// Cache serves bars from a BarStore and falls back to an upstream provider
// for ranges the store does not cover, writing fetched bars through.
type Cache struct {
	bars     store.BarStore
	market   domain.Market
	upstream Provider
	log      *slog.Logger

	// inflight collapses concurrent upstream fetches of the same range.
	inflight singleflight.Group
}

// NewCache creates a cache over bars for market. upstream may be nil, in
// which case the cache serves stored data only.
func NewCache(bars store.BarStore, market domain.Market, upstream Provider) *Cache {
	return &Cache{
		bars:     bars,
		market:   market,
		upstream: upstream,
		log:      slog.Default().With("component", "pricecache", "market", string(market)),
	}
}

// Covers reports whether the store already holds bars spanning [start, end]
// for symbol.
func (c *Cache) Covers(ctx context.Context, symbol string, start, end time.Time) (bool, error) {
	_, ok, err := c.cached(ctx, symbol, start, end)
	return ok, err
}

// Bars returns stored bars when they cover the range, otherwise fetches the
// whole range upstream and stores it.
func (c *Cache) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	bars, ok, err := c.cached(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if ok {
		c.log.Debug("cache hit", "symbol", symbol, "count", len(bars))
		return bars, nil
	}
	if c.upstream == nil {
		return nil, fmt.Errorf("%s %s..%s not cached: %w", strings.ToUpper(symbol),
			start.Format("2006-01-02"), end.Format("2006-01-02"), ErrNoData)
	}

	fetched, err := c.fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	return clip(fetched, dayStart(start), dayEnd(end)), nil
}

// Refresh fetches [start, end] upstream regardless of what is stored and
// returns the number of bars written.
func (c *Cache) Refresh(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	if c.upstream == nil {
		return 0, fmt.Errorf("refreshing %s: no upstream provider", symbol)
	}
	bars, err := c.fetch(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	return len(bars), nil
}

func (c *Cache) fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	key := strings.ToUpper(symbol) + "|" + start.Format(time.RFC3339) + "|" + end.Format(time.RFC3339)
	v, err, shared := c.inflight.Do(key, func() (any, error) {
		return c.fetchOnce(ctx, symbol, start, end)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("shared upstream fetch", "symbol", symbol)
	}
	return v.([]domain.Bar), nil
}

func (c *Cache) fetchOnce(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	c.log.Info("fetching upstream", "symbol", symbol,
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))

	bars, err := c.upstream.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	for i := range bars {
		if bars[i].Symbol == "" {
			bars[i].Symbol = strings.ToUpper(symbol)
		}
	}
	if err := c.bars.WriteBars(ctx, c.market, bars); err != nil {
		return nil, fmt.Errorf("caching %s bars: %w", symbol, err)
	}
	return bars, nil
}

// cached reads the stored bars for the range and reports whether they
// reach both ends of it within coverageSlack.
func (c *Cache) cached(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, bool, error) {
	from, to := dayStart(start), dayEnd(end)
	if to.Before(from) {
		return nil, false, fmt.Errorf("invalid range %s..%s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	bars, err := c.bars.ReadBars(ctx, symbol, c.market, from, to)
	if err != nil {
		return nil, false, fmt.Errorf("reading cached %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, false, nil
	}
	bars = clip(bars, from, to)

	first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
	ok := !first.After(from.Add(coverageSlack)) && !last.Before(dayStart(end).Add(-coverageSlack))
	return bars, ok, nil
}
