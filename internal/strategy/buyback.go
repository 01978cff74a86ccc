package strategy

import "time"

// Lot is a block of shares bought below the anchor.
type Lot struct {
	Shares    int64
	CostBasis float64
	Acquired  time.Time
}

// BuybackStack is a FIFO ledger of lots. Despite the name it is consumed
// front to back: the oldest lot is unwound first.
type BuybackStack struct {
	lots  []Lot
	head  int
	total int64
}

// NewBuybackStack returns an empty stack.
func NewBuybackStack() *BuybackStack {
	return &BuybackStack{}
}

// Push appends a lot to the back. Non-positive quantities are ignored.
func (s *BuybackStack) Push(shares int64, costBasis float64, acquired time.Time) {
	if shares <= 0 {
		return
	}
	s.lots = append(s.lots, Lot{Shares: shares, CostBasis: costBasis, Acquired: acquired})
	s.total += shares
}

// PopFIFO removes up to qty shares starting from the oldest lot. A lot that
// is only partly consumed keeps its place at the front with its remaining
// shares. It returns the shares actually removed and their weighted average
// cost basis (zero when nothing was removed).
func (s *BuybackStack) PopFIFO(qty int64) (consumed int64, avgCost float64) {
	var cost float64
	for qty > 0 && s.head < len(s.lots) {
		lot := &s.lots[s.head]
		take := min(qty, lot.Shares)
		lot.Shares -= take
		qty -= take
		consumed += take
		cost += float64(take) * lot.CostBasis
		if lot.Shares == 0 {
			s.head++
		}
	}
	s.total -= consumed
	s.compact()
	if consumed > 0 {
		avgCost = cost / float64(consumed)
	}
	return consumed, avgCost
}

// Total returns the number of stacked shares.
func (s *BuybackStack) Total() int64 { return s.total }

// Len returns the number of lots still holding shares.
func (s *BuybackStack) Len() int { return len(s.lots) - s.head }

// Lots returns a copy of the remaining lots, oldest first.
func (s *BuybackStack) Lots() []Lot {
	out := make([]Lot, s.Len())
	copy(out, s.lots[s.head:])
	return out
}

// compact drops consumed lots once they make up half the backing slice.
func (s *BuybackStack) compact() {
	if s.head == 0 || s.head < len(s.lots)/2 {
		return
	}
	n := copy(s.lots, s.lots[s.head:])
	s.lots = s.lots[:n]
	s.head = 0
}
