package pricedata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"voltalpha/internal/domain"
	"voltalpha/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaOptions configures an AlpacaProvider.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	DataURL   string

	// Feed is the bar source ("sip" or "iex"); default "sip".
	Feed string
	// Adjustment is the corporate-action adjustment ("raw", "split",
	// "dividend" or "all"); default "split". Under "raw" and "split" the
	// cash dividends for the range are fetched and set on their ex-date
	// bars; the other modes already fold dividends into the prices.
	Adjustment string

	// RateLimitPerMin bounds requests per minute; zero means unlimited.
	RateLimitPerMin int
	MaxRetries      int
}

// AlpacaProvider fetches daily bars from the Alpaca market data API.
type AlpacaProvider struct {
	client     *marketdata.Client
	feed       string
	adjustment string
	limiter    *util.RateLimiter
	retries    int
	log        *slog.Logger
}

// NewAlpacaProvider creates a provider from opts.
func NewAlpacaProvider(opts AlpacaOptions) *AlpacaProvider {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	feed := opts.Feed
	if feed == "" {
		feed = "sip"
	}
	adjustment := opts.Adjustment
	if adjustment == "" {
		adjustment = "split"
	}
	retries := opts.MaxRetries
	if retries < 1 {
		retries = 3
	}
	return &AlpacaProvider{
		client:     marketdata.NewClient(clientOpts),
		feed:       feed,
		adjustment: adjustment,
		limiter:    util.NewRateLimiter(opts.RateLimitPerMin, 1),
		retries:    retries,
		log:        slog.Default().With("provider", "alpaca"),
	}
}

// Bars fetches daily bars for symbol between the start and end dates,
// inclusive. Returns ErrNoData when Alpaca has nothing for the range.
func (p *AlpacaProvider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	start, end = dayStart(start), dayEnd(end)

	var raw []marketdata.Bar
	err := util.Retry(ctx, p.retries, 2*time.Second, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		raw, err = p.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      start,
			End:        end,
			Feed:       p.feed,
			Adjustment: marketdata.Adjustment(p.adjustment),
		})
		if err != nil {
			p.log.Warn("GetBars failed", "symbol", symbol, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s %s..%s: %w", symbol,
			start.Format("2006-01-02"), end.Format("2006-01-02"), ErrNoData)
	}

	bars := make([]domain.Bar, len(raw))
	for i, ab := range raw {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: dayStart(ab.Timestamp),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		}
	}
	bars = clip(bars, start, end)

	if p.creditsDividends() {
		divs, err := p.cashDividends(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		applied := mergeDividends(bars, divs)
		p.log.Debug("merged dividends", "symbol", symbol, "actions", len(divs), "applied", applied)
	}
	p.log.Debug("fetched bars", "symbol", symbol, "count", len(bars))
	return bars, nil
}

func (p *AlpacaProvider) creditsDividends() bool {
	return p.adjustment == string(marketdata.AdjustmentRaw) || p.adjustment == string(marketdata.AdjustmentSplit)
}

// cashDividends fetches the cash dividends of symbol with an ex-date in
// [start, end].
func (p *AlpacaProvider) cashDividends(ctx context.Context, symbol string, start, end time.Time) ([]marketdata.CashDividend, error) {
	var actions marketdata.CorporateActions
	err := util.Retry(ctx, p.retries, 2*time.Second, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		actions, err = p.client.GetCorporateActions(marketdata.GetCorporateActionsRequest{
			Symbols: []string{symbol},
			Types:   []string{"cash_dividend"},
			Start:   civil.DateOf(start),
			End:     civil.DateOf(end),
		})
		if err != nil {
			p.log.Warn("GetCorporateActions failed", "symbol", symbol, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s dividends: %w", symbol, err)
	}
	var divs []marketdata.CashDividend
	for _, d := range actions.CashDividends {
		if strings.EqualFold(d.Symbol, symbol) {
			divs = append(divs, d)
		}
	}
	return divs, nil
}

// mergeDividends adds each per-share amount to the bar on its ex-date, or
// to the first bar after it when the ex-date is not a trading day. bars
// must be sorted by date. It returns the number of dividends applied;
// those past the last bar are dropped.
func mergeDividends(bars []domain.Bar, divs []marketdata.CashDividend) int {
	applied := 0
	for _, d := range divs {
		if d.Rate <= 0 {
			continue
		}
		ex := d.ExDate.In(time.UTC)
		i := sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(ex) })
		if i == len(bars) {
			continue
		}
		bars[i].Dividend += d.Rate
		applied++
	}
	return applied
}
