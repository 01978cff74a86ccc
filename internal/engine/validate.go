package engine

import (
	"fmt"
	"math"

	"voltalpha/internal/domain"
)

// ValidateBars checks that a series can be replayed: at least one bar,
// strictly increasing dates, finite positive prices and a consistent
// high/low range.
func ValidateBars(bars []domain.Bar) error {
	if len(bars) == 0 {
		return &domain.DataError{Index: -1, Reason: "empty price series"}
	}
	for i, b := range bars {
		bad := func(format string, args ...any) error {
			return &domain.DataError{Index: i, Date: b.Timestamp, Reason: fmt.Sprintf(format, args...)}
		}
		if b.Timestamp.IsZero() {
			return bad("missing date")
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return bad("date not after previous bar %s", bars[i-1].Timestamp.Format("2006-01-02"))
		}
		for _, f := range []struct {
			name string
			v    float64
		}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
			if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
				return bad("%s is not a finite number", f.name)
			}
			if f.v <= 0 {
				return bad("%s %v is not positive", f.name, f.v)
			}
		}
		if b.High < b.Low {
			return bad("high %v below low %v", b.High, b.Low)
		}
		if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
			return bad("open/close outside [low, high]")
		}
		if math.IsNaN(b.Dividend) || b.Dividend < 0 {
			return bad("dividend %v is invalid", b.Dividend)
		}
	}
	return nil
}
