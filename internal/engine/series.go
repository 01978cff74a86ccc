package engine

import (
	"sort"
	"time"

	"voltalpha/internal/domain"
)

// Series is a date-indexed value such as an annual interest rate or a CPI
// level.
type Series interface {
	At(date time.Time) float64
}

// ConstantSeries returns the same value for every date.
type ConstantSeries float64

// At returns the constant.
func (c ConstantSeries) At(time.Time) float64 { return float64(c) }

// StepSeries holds observations and answers with the latest one at or
// before the requested date. Dates before the first observation get the
// first value.
type StepSeries struct {
	dates  []time.Time
	values []float64
}

// NewStepSeries builds a StepSeries from parallel slices. Observations are
// sorted by date.
func NewStepSeries(dates []time.Time, values []float64) *StepSeries {
	n := min(len(dates), len(values))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dates[idx[a]].Before(dates[idx[b]]) })

	s := &StepSeries{dates: make([]time.Time, n), values: make([]float64, n)}
	for i, j := range idx {
		s.dates[i] = dates[j]
		s.values[i] = values[j]
	}
	return s
}

// SeriesFromBars builds a StepSeries from bar closes multiplied by scale.
// A yield index quoted in percent (e.g. 13-week T-bill) uses scale 0.01.
func SeriesFromBars(bars []domain.Bar, scale float64) *StepSeries {
	dates := make([]time.Time, len(bars))
	values := make([]float64, len(bars))
	for i, b := range bars {
		dates[i] = b.Timestamp
		values[i] = b.Close * scale
	}
	return NewStepSeries(dates, values)
}

// At returns the value in effect on date.
func (s *StepSeries) At(date time.Time) float64 {
	if len(s.dates) == 0 {
		return 0
	}
	i := sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(date) })
	if i == 0 {
		return s.values[0]
	}
	return s.values[i-1]
}

// Len returns the number of observations.
func (s *StepSeries) Len() int { return len(s.dates) }
