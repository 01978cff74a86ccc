package backtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voltalpha/internal/engine"
	"voltalpha/internal/strategy"
)

// Job is one symbol and algorithm pair of a batch.
type Job struct {
	Symbol string
	Params strategy.Params
}

// JobResult is the outcome of a Job. Exactly one of Report and Err is set.
type JobResult struct {
	Job
	Report *Report
	Err    error
}

// BatchStats counts batch outcomes.
type BatchStats struct {
	Succeeded int64
	Failed    int64
	Elapsed   time.Duration
}

// Jobs returns the cross product of symbols and parameter sets, symbol-major.
func Jobs(symbols []string, params []strategy.Params) []Job {
	jobs := make([]Job, 0, len(symbols)*len(params))
	for _, sym := range symbols {
		for _, p := range params {
			jobs = append(jobs, Job{Symbol: strings.ToUpper(sym), Params: p})
		}
	}
	return jobs
}

// ResolveAlgorithms maps batch algorithm entries to parameter sets through
// parse. "all" expands to every identifier registered in reg. Duplicates
// are dropped, first occurrence wins.
func ResolveAlgorithms(ids []string, reg *strategy.Registry, parse func(string) (strategy.Params, error)) ([]strategy.Params, error) {
	var out []strategy.Params
	seen := make(map[string]bool)
	add := func(p strategy.Params) {
		if id := p.ID(); !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}

	var expanded []string
	for _, id := range ids {
		if strings.EqualFold(strings.TrimSpace(id), "all") {
			expanded = append(expanded, reg.List()...)
			continue
		}
		expanded = append(expanded, id)
	}
	for _, id := range expanded {
		p, err := parse(id)
		if err != nil {
			return nil, err
		}
		add(p)
	}
	return out, nil
}

// Batch runs jobs over [start, end] on up to maxWorkers goroutines. Each job
// gets its own copy of opts. A failed job is logged and reported in its
// JobResult while the others continue. Results are returned in job order;
// the error is non-nil only when ctx was cancelled.
func (b *Backtester) Batch(ctx context.Context, jobs []Job, start, end time.Time, opts engine.Options, maxWorkers int) ([]JobResult, BatchStats, error) {
	results := make([]JobResult, len(jobs))
	if len(jobs) == 0 {
		return results, BatchStats{}, nil
	}

	jobCh := make(chan int, len(jobs))
	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(max(maxWorkers, 1), len(jobs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				job := jobs[idx]
				results[idx].Job = job
				if err := ctx.Err(); err != nil {
					results[idx].Err = err
					continue
				}

				rep, err := b.Run(ctx, Request{
					Symbol:  job.Symbol,
					Start:   start,
					End:     end,
					Params:  job.Params,
					Options: opts,
				})
				if err != nil {
					failed.Add(1)
					results[idx].Err = err
					b.log.Error("job failed",
						"job", fmt.Sprintf("%d/%d", idx+1, len(jobs)),
						"symbol", job.Symbol,
						"algorithm", job.Params.ID(),
						"err", err,
					)
					continue
				}
				succeeded.Add(1)
				results[idx].Report = rep
			}
		}()
	}

	wg.Wait()

	stats := BatchStats{
		Succeeded: succeeded.Load(),
		Failed:    failed.Load(),
		Elapsed:   time.Since(runStart).Round(time.Millisecond),
	}
	b.log.Info("batch complete",
		"jobs", len(jobs),
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed,
	)
	if err := ctx.Err(); err != nil {
		return results, stats, err
	}
	return results, stats, nil
}

// FailedSymbols returns the distinct symbols with at least one failed job,
// in job order.
func FailedSymbols(results []JobResult) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Err != nil && !seen[r.Symbol] {
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	return out
}
