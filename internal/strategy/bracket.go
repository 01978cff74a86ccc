package strategy

import "math"

// shareEpsilon absorbs float noise in share quantities so that a product
// such as 1100*0.1/1.1 floors to 100 rather than 99.
const shareEpsilon = 1e-9

// Brackets are the trigger prices and order sizes derived from an anchor.
type Brackets struct {
	Anchor      float64
	BuyTrigger  float64
	SellTrigger float64
	BuyQty      int64
	SellQty     int64
}

// ComputeBrackets returns the bracket pair around anchor for rebalance
// fraction t and profit-sharing ratio s at the given holdings.
//
// The sell quantity is the buy quantity scaled by 1/(1+t), so buying at the
// lower bracket and selling at the anchor's upper bracket is a symmetric
// round trip. A zero profit-sharing ratio yields zero quantities; callers
// treat zero as "no order".
func ComputeBrackets(anchor, t, s float64, holdings int64) Brackets {
	b := Brackets{
		Anchor:      anchor,
		BuyTrigger:  anchor * (1 - t),
		SellTrigger: anchor * (1 + t),
	}
	if holdings <= 0 || s <= 0 {
		return b
	}
	h := float64(holdings)
	b.BuyQty = floorShares(h * t * s)
	b.SellQty = floorShares(h * t * s / (1 + t))
	return b
}

// TriggerFromSDN converts the "SD-N" convention, N brackets per doubling,
// into a rebalance fraction: 2^(1/N) - 1.
func TriggerFromSDN(n float64) float64 {
	return math.Pow(2, 1/n) - 1
}

func floorShares(x float64) int64 {
	if x <= 0 {
		return 0
	}
	return int64(math.Floor(x + shareEpsilon))
}
