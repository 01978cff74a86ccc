// Package store defines storage interfaces for persisting and retrieving
// price bars, simulation trajectories and finished backtest runs.
package store

import (
	"context"
	"errors"
	"time"

	"voltalpha/internal/domain"
	"voltalpha/internal/metrics"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// BarStore persists and retrieves daily bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end],
	// ordered by date.
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// TrajectoryStore exports the per-day output of a run.
type TrajectoryStore interface {
	// WriteTrajectory writes the daily states of a run to path.
	WriteTrajectory(ctx context.Context, path string, days []domain.DailyState) error

	// ReadTrajectory reads back a file written by WriteTrajectory.
	ReadTrajectory(ctx context.Context, path string) ([]domain.DailyState, error)
}

// Run is a finished backtest as persisted by a RunStore.
type Run struct {
	ID        int64
	Symbol    string
	Algorithm string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time

	Summary      metrics.Summary
	Transactions []domain.Transaction
	Withdrawals  []domain.Withdrawal
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Symbol    string
	Algorithm string
	Limit     int
}

// RunStore persists and retrieves backtest runs.
type RunStore interface {
	// SaveRun inserts run with its ledgers and returns the assigned id.
	SaveRun(ctx context.Context, run *Run) (int64, error)

	// GetRun loads a run with its ledgers. It returns ErrRunNotFound for an
	// unknown id.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// ListRuns returns runs without ledgers, newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// DeleteRun removes a run and its ledgers.
	DeleteRun(ctx context.Context, id int64) error
}
