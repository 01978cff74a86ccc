package pricedata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PrefetchResult reports which symbols a Prefetch stored and which failed.
type PrefetchResult struct {
	Fetched map[string]int // symbol -> bars written
	Failed  map[string]error
	Skipped []string // already covered
}

// Prefetch fills the cache for symbols over [start, end] on up to
// maxWorkers goroutines. Symbols the cache already covers are skipped unless
// force is set. Per-symbol failures are collected, not returned; the error
// is non-nil only when ctx was cancelled.
func Prefetch(ctx context.Context, c *Cache, symbols []string, start, end time.Time, maxWorkers int, force bool) (*PrefetchResult, error) {
	res := &PrefetchResult{
		Fetched: make(map[string]int),
		Failed:  make(map[string]error),
	}
	if len(symbols) == 0 {
		return res, nil
	}

	symCh := make(chan string, len(symbols))
	for _, s := range symbols {
		symCh <- strings.ToUpper(s)
	}
	close(symCh)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		written  atomic.Int64
		runStart = time.Now()
	)

	workers := min(max(maxWorkers, 1), len(symbols))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}

				if !force {
					ok, err := c.Covers(ctx, sym, start, end)
					if err == nil && ok {
						mu.Lock()
						res.Skipped = append(res.Skipped, sym)
						mu.Unlock()
						continue
					}
				}

				n, err := c.Refresh(ctx, sym, start, end)
				mu.Lock()
				if err != nil {
					res.Failed[sym] = err
					c.log.Error("prefetch failed", "symbol", sym, "err", err)
				} else {
					res.Fetched[sym] = n
				}
				mu.Unlock()
				written.Add(int64(n))
			}
		}()
	}

	wg.Wait()
	sort.Strings(res.Skipped)

	c.log.Info("prefetch complete",
		"fetched", len(res.Fetched),
		"skipped", len(res.Skipped),
		"failed", len(res.Failed),
		"bars", written.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return res, ctx.Err()
}
