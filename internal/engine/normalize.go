package engine

import (
	"math"

	"voltalpha/internal/domain"
)

// NormalizeBars rescales a series so the first close lands exactly on an
// integer power of (1+t). Bracket levels then fall on the same price grid
// for every asset and start date. It returns a new slice and the factor
// applied; the input is not modified. Dividends are scaled with prices so
// the yield is unchanged.
func NormalizeBars(bars []domain.Bar, t float64) ([]domain.Bar, float64) {
	if len(bars) == 0 || t <= 0 {
		return bars, 1
	}
	start := bars[0].Close
	n := math.Round(math.Log(start) / math.Log1p(t))
	scale := math.Pow(1+t, n) / start

	out := make([]domain.Bar, len(bars))
	for i, b := range bars {
		b.Open *= scale
		b.High *= scale
		b.Low *= scale
		b.Close *= scale
		b.Dividend *= scale
		out[i] = b
	}
	// Land the anchor exactly on the grid despite rounding in the product.
	out[0].Close = math.Pow(1+t, n)
	out[0].High = max(out[0].High, out[0].Close)
	out[0].Low = min(out[0].Low, out[0].Close)
	return out, scale
}
