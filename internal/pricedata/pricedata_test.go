package pricedata

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"voltalpha/internal/domain"
	"voltalpha/internal/store"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// weekdayProvider returns one bar per weekday with a rising close and counts
// its calls.
type weekdayProvider struct {
	calls atomic.Int64
}

func (p *weekdayProvider) Bars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	p.calls.Add(1)
	var bars []domain.Bar
	price := 100.0
	for d := dayStart(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		bars = append(bars, domain.Bar{
			Timestamp: d, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000,
		})
		price++
	}
	return bars, nil
}

func TestCache_FetchesOnceThenServesStored(t *testing.T) {
	ctx := context.Background()
	up := &weekdayProvider{}
	c := NewCache(store.NewParquetStore(t.TempDir()), domain.MarketUS, up)

	start, end := date("2024-01-01"), date("2024-01-31")
	ok, err := c.Covers(ctx, "spy", start, end)
	if err != nil {
		t.Fatalf("Covers: %v", err)
	}
	if ok {
		t.Fatal("empty cache should not cover the range")
	}

	first, err := c.Bars(ctx, "spy", start, end)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(first) != 23 {
		t.Fatalf("len(bars) = %d, want 23 weekdays", len(first))
	}
	if first[0].Symbol != "SPY" {
		t.Errorf("Symbol = %q, want SPY", first[0].Symbol)
	}

	second, err := c.Bars(ctx, "SPY", start, end)
	if err != nil {
		t.Fatalf("Bars (cached): %v", err)
	}
	if n := up.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if len(second) != len(first) || second[22].Close != first[22].Close {
		t.Errorf("cached bars differ: %d bars, last close %v", len(second), second[len(second)-1].Close)
	}
}

func TestCache_WeekendEdgesStillCovered(t *testing.T) {
	ctx := context.Background()
	up := &weekdayProvider{}
	c := NewCache(store.NewParquetStore(t.TempDir()), domain.MarketUS, up)

	if _, err := c.Refresh(ctx, "QQQ", date("2024-03-01"), date("2024-03-29")); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	// 2024-03-02 is a Saturday and 2024-03-31 a Sunday.
	ok, err := c.Covers(ctx, "QQQ", date("2024-03-02"), date("2024-03-31"))
	if err != nil {
		t.Fatalf("Covers: %v", err)
	}
	if !ok {
		t.Error("range with weekend edges should be covered")
	}

	ok, err = c.Covers(ctx, "QQQ", date("2024-02-01"), date("2024-03-29"))
	if err != nil {
		t.Fatalf("Covers: %v", err)
	}
	if ok {
		t.Error("range starting a month early should not be covered")
	}
}

func TestCache_ExtendsAcrossYears(t *testing.T) {
	ctx := context.Background()
	up := &weekdayProvider{}
	c := NewCache(store.NewParquetStore(t.TempDir()), domain.MarketUS, up)

	if _, err := c.Bars(ctx, "IWM", date("2023-12-01"), date("2023-12-29")); err != nil {
		t.Fatalf("Bars: %v", err)
	}
	bars, err := c.Bars(ctx, "IWM", date("2023-12-01"), date("2024-01-31"))
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if n := up.calls.Load(); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
	if bars[0].Timestamp.Year() != 2023 || bars[len(bars)-1].Timestamp.Year() != 2024 {
		t.Errorf("range = %v..%v, want 2023..2024", bars[0].Timestamp, bars[len(bars)-1].Timestamp)
	}
}

func TestCache_NoUpstream(t *testing.T) {
	c := NewCache(store.NewParquetStore(t.TempDir()), domain.MarketUS, nil)
	_, err := c.Bars(context.Background(), "SPY", date("2024-01-01"), date("2024-01-31"))
	if !errors.Is(err, ErrNoData) {
		t.Errorf("Bars error = %v, want ErrNoData", err)
	}
	if _, err := c.Refresh(context.Background(), "SPY", date("2024-01-01"), date("2024-01-31")); err == nil {
		t.Error("Refresh without upstream should fail")
	}
}

func TestCache_UpstreamError(t *testing.T) {
	boom := errors.New("boom")
	up := ProviderFunc(func(context.Context, string, time.Time, time.Time) ([]domain.Bar, error) {
		return nil, boom
	})
	c := NewCache(store.NewParquetStore(t.TempDir()), domain.MarketUS, up)
	if _, err := c.Bars(context.Background(), "SPY", date("2024-01-01"), date("2024-01-31")); !errors.Is(err, boom) {
		t.Errorf("Bars error = %v, want %v", err, boom)
	}
}

func TestCache_InvalidRange(t *testing.T) {
	c := NewCache(store.NewParquetStore(t.TempDir()), domain.MarketUS, nil)
	if _, err := c.Covers(context.Background(), "SPY", date("2024-02-01"), date("2024-01-01")); err == nil {
		t.Error("Covers with end before start should fail")
	}
}

func TestLatestFinished(t *testing.T) {
	et := time.FixedZone("EST", -5*3600)
	dates := []string{"2024-03-11", "2024-03-12", "2024-03-13"}

	midday := time.Date(2024, 3, 13, 12, 0, 0, 0, et)
	got, err := latestFinished(dates, midday)
	if err != nil {
		t.Fatalf("latestFinished: %v", err)
	}
	if want := date("2024-03-12"); !got.Equal(want) {
		t.Errorf("latestFinished(midday) = %v, want %v", got, want)
	}

	evening := time.Date(2024, 3, 13, 21, 0, 0, 0, et)
	got, err = latestFinished(dates, evening)
	if err != nil {
		t.Fatalf("latestFinished: %v", err)
	}
	if want := date("2024-03-13"); !got.Equal(want) {
		t.Errorf("latestFinished(evening) = %v, want %v", got, want)
	}

	if _, err := latestFinished(nil, evening); err == nil {
		t.Error("latestFinished(nil) should fail")
	}
}

func TestClip(t *testing.T) {
	bars := []domain.Bar{
		{Timestamp: date("2024-01-03")},
		{Timestamp: date("2024-01-01")},
		{Timestamp: date("2024-01-05")},
	}
	got := clip(bars, date("2024-01-01"), dayEnd(date("2024-01-03")))
	if len(got) != 2 || !got[0].Timestamp.Equal(date("2024-01-01")) {
		t.Errorf("clip = %v, want 01-01 and 01-03", got)
	}
}

func TestCache_ConcurrentMissesSameSymbol(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	c := NewCache(ps, domain.MarketUS, &weekdayProvider{})

	ranges := [][2]string{
		{"2024-01-01", "2024-01-31"},
		{"2024-02-01", "2024-02-29"},
		{"2024-01-01", "2024-01-31"},
		{"2024-02-01", "2024-02-29"},
	}
	var wg sync.WaitGroup
	errs := make([]error, 8*len(ranges))
	for round := range 8 {
		for i, r := range ranges {
			wg.Add(1)
			go func(slot int, from, to time.Time) {
				defer wg.Done()
				_, errs[slot] = c.Bars(ctx, "SPY", from, to)
			}(round*len(ranges)+i, date(r[0]), date(r[1]))
		}
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Bars #%d: %v", i, err)
		}
	}

	// Both months must survive the interleaved merges of the 2024 file.
	bars, err := ps.ReadBars(ctx, "SPY", domain.MarketUS, date("2024-01-01"), date("2024-02-29"))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 44 {
		t.Errorf("len(bars) = %d, want 44 weekdays in Jan and Feb 2024", len(bars))
	}

	entries, err := os.ReadDir(filepath.Join(dir, string(domain.MarketUS), "daily", "SPY"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestPrefetch(t *testing.T) {
	ctx := context.Background()
	up := &weekdayProvider{}
	bad := errors.New("unknown symbol")
	provider := ProviderFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
		if symbol == "BAD" {
			return nil, bad
		}
		return up.Bars(ctx, symbol, start, end)
	})
	c := NewCache(store.NewParquetStore(t.TempDir()), domain.MarketUS, provider)
	start, end := date("2024-01-01"), date("2024-01-31")

	if _, err := c.Refresh(ctx, "SPY", start, end); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	res, err := Prefetch(ctx, c, []string{"spy", "qqq", "bad"}, start, end, 2, false)
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "SPY" {
		t.Errorf("Skipped = %v, want [SPY]", res.Skipped)
	}
	if res.Fetched["QQQ"] != 23 {
		t.Errorf("Fetched[QQQ] = %d, want 23", res.Fetched["QQQ"])
	}
	if !errors.Is(res.Failed["BAD"], bad) {
		t.Errorf("Failed[BAD] = %v, want %v", res.Failed["BAD"], bad)
	}

	forced, err := Prefetch(ctx, c, []string{"SPY"}, start, end, 1, true)
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if forced.Fetched["SPY"] != 23 || len(forced.Skipped) != 0 {
		t.Errorf("forced = %+v, want SPY refetched", forced)
	}
}

func TestMergeDividends(t *testing.T) {
	var bars []domain.Bar
	for _, d := range []string{"2024-02-08", "2024-02-09", "2024-02-12", "2024-02-13"} {
		bars = append(bars, domain.Bar{Symbol: "KO", Timestamp: date(d), Close: 60})
	}
	divs := []marketdata.CashDividend{
		{Symbol: "KO", Rate: 0.485, ExDate: civil.Date{Year: 2024, Month: time.February, Day: 9}},
		// Saturday ex-date lands on the following Monday.
		{Symbol: "KO", Rate: 0.10, ExDate: civil.Date{Year: 2024, Month: time.February, Day: 10}},
		{Symbol: "KO", Rate: 0.05, Special: true, ExDate: civil.Date{Year: 2024, Month: time.February, Day: 12}},
		{Symbol: "KO", Rate: 0, ExDate: civil.Date{Year: 2024, Month: time.February, Day: 13}},
		{Symbol: "KO", Rate: 0.485, ExDate: civil.Date{Year: 2024, Month: time.May, Day: 31}},
	}

	if n := mergeDividends(bars, divs); n != 3 {
		t.Errorf("applied = %d, want 3", n)
	}
	want := []float64{0, 0.485, 0.15, 0}
	for i, b := range bars {
		if math.Abs(b.Dividend-want[i]) > 1e-12 {
			t.Errorf("%s dividend = %v, want %v", b.Timestamp.Format("2006-01-02"), b.Dividend, want[i])
		}
	}
}

func TestMergeDividends_WrittenThroughCache(t *testing.T) {
	ctx := context.Background()
	ps := store.NewParquetStore(t.TempDir())
	up := ProviderFunc(func(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
		bars := []domain.Bar{
			{Symbol: symbol, Timestamp: date("2024-02-08"), Open: 60, High: 61, Low: 59, Close: 60},
			{Symbol: symbol, Timestamp: date("2024-02-09"), Open: 60, High: 61, Low: 59, Close: 60},
		}
		mergeDividends(bars, []marketdata.CashDividend{
			{Symbol: symbol, Rate: 0.485, ExDate: civil.Date{Year: 2024, Month: time.February, Day: 9}},
		})
		return bars, nil
	})
	c := NewCache(ps, domain.MarketUS, up)
	if _, err := c.Bars(ctx, "KO", date("2024-02-08"), date("2024-02-09")); err != nil {
		t.Fatalf("Bars: %v", err)
	}

	stored, err := ps.ReadBars(ctx, "KO", domain.MarketUS, date("2024-02-08"), date("2024-02-09"))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(stored) != 2 || stored[1].Dividend != 0.485 || stored[0].Dividend != 0 {
		t.Errorf("stored = %+v, want 0.485 dividend on 2024-02-09 only", stored)
	}
}
