package strategy

import (
	"voltalpha/internal/domain"
)

// Algorithm holds the state shared by every variant: anchor, all-time high,
// buyback stack and the single pending-order slot. Variant-specific
// behaviour is confined to the detection predicates.
type Algorithm struct {
	params Params

	anchor   float64
	ath      float64
	priorATH float64

	stack   *BuybackStack
	pending *domain.PendingOrder
}

// NewAlgorithm validates p and returns an algorithm ready for Start.
func NewAlgorithm(p Params) (*Algorithm, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Algorithm{
		params: p,
		stack:  NewBuybackStack(),
	}, nil
}

// Name returns the algorithm identifier.
func (a *Algorithm) Name() string { return a.params.ID() }

// Params returns the parameters the algorithm was built with.
func (a *Algorithm) Params() Params { return a.params }

// Anchor returns the price the current brackets are computed from.
func (a *Algorithm) Anchor() float64 { return a.anchor }

// ATH returns the all-time high observed so far.
func (a *Algorithm) ATH() float64 { return a.ath }

// Stack exposes the buyback stack for inspection.
func (a *Algorithm) Stack() *BuybackStack { return a.stack }

// Pending returns the order waiting for execution, or nil.
func (a *Algorithm) Pending() *domain.PendingOrder { return a.pending }

// Brackets returns the current bracket pair at the given holdings.
func (a *Algorithm) Brackets(holdings int64) Brackets {
	return ComputeBrackets(a.anchor, a.params.Trigger, a.params.ProfitSharing, holdings)
}

// Start records the initial purchase on the first bar: the anchor is the
// purchase price (the close) and the high seeds the all-time high.
func (a *Algorithm) Start(bar domain.Bar) {
	a.anchor = bar.Close
	a.ath = max(bar.High, bar.Close)
	a.priorATH = a.ath
	a.pending = nil
}

// ObserveHigh remembers the all-time high as it stood before this bar and
// raises it to high if exceeded. It reports whether a new high was made.
func (a *Algorithm) ObserveHigh(high float64) bool {
	a.priorATH = a.ath
	if high > a.ath {
		a.ath = high
		return true
	}
	return false
}

// OnBar inspects the full range of bar (index day) and returns a newly
// created pending order, or nil. An existing pending order is only replaced
// by an order on the opposite side; a same-side detection keeps the older
// order so its earlier eligibility is preserved.
func (a *Algorithm) OnBar(day int, bar domain.Bar, holdings int64) *domain.PendingOrder {
	if a.params.Variant == BuyAndHold || holdings <= 0 {
		return nil
	}

	b := a.Brackets(holdings)
	newATH := bar.High > a.priorATH
	buy := a.detectBuy(bar, b)
	sell := a.detectSell(bar, b, holdings, newATH)

	var order *domain.PendingOrder
	switch {
	case buy != nil && sell != nil:
		// Both brackets inside one bar: an up bar is assumed to have
		// visited its low first.
		if bar.Close >= bar.Open {
			order = buy
		} else {
			order = sell
		}
	case buy != nil:
		order = buy
	case sell != nil:
		order = sell
	default:
		return nil
	}

	if a.pending != nil && a.pending.Side == order.Side {
		return nil
	}
	order.ScheduledDay = day
	order.ScheduledOn = bar.Timestamp
	a.pending = order
	return order
}

func (a *Algorithm) detectBuy(bar domain.Bar, b Brackets) *domain.PendingOrder {
	if !a.params.Variant.usesStack() || b.BuyQty <= 0 {
		return nil
	}
	if bar.Low > b.BuyTrigger {
		return nil
	}
	return &domain.PendingOrder{
		Side:    domain.OrderSideBuy,
		Trigger: b.BuyTrigger,
		Qty:     b.BuyQty,
		Reason:  domain.ReasonBracket,
	}
}

func (a *Algorithm) detectSell(bar domain.Bar, b Brackets, holdings int64, newATH bool) *domain.PendingOrder {
	if bar.High < b.SellTrigger {
		return nil
	}

	var qty int64
	reason := domain.ReasonBracket
	switch a.params.Variant {
	case ATHOnly:
		if !newATH {
			return nil
		}
		qty, reason = b.SellQty, domain.ReasonATH

	case Standard:
		qty = b.SellQty
		if newATH {
			reason = domain.ReasonATH
		}

	case ATHGatedSell:
		stacked := a.stack.Total()
		if newATH {
			t, s := a.params.Trigger, a.params.ProfitSharing
			base := holdings - stacked
			qty, reason = stacked, domain.ReasonATH
			if base > 0 && s > 0 {
				qty += floorShares(float64(base) * t * s / (1 + t))
			}
		} else if a.params.GatedUnwind == UnwindAtBracket {
			qty, reason = min(b.SellQty, stacked), domain.ReasonUnwind
		}
	}

	qty = min(qty, holdings)
	if qty <= 0 {
		return nil
	}
	return &domain.PendingOrder{
		Side:    domain.OrderSideSell,
		Trigger: b.SellTrigger,
		Qty:     qty,
		Reason:  reason,
	}
}

// OnFill applies an executed transaction: the anchor moves to the fill
// price, the stack records the buy or releases lots for the sell, and the
// pending slot is cleared. For sells it fills in tx's stack accounting.
func (a *Algorithm) OnFill(tx *domain.Transaction) {
	a.anchor = tx.FillPrice
	a.pending = nil
	if !a.params.Variant.usesStack() {
		return
	}
	switch tx.Side {
	case domain.OrderSideBuy:
		a.stack.Push(tx.Qty, tx.FillPrice, tx.Date)
	case domain.OrderSideSell:
		tx.StackShares, tx.StackCostBasis = a.stack.PopFIFO(tx.Qty)
	}
}

// OnSkip clears the pending slot after an order was dropped without
// executing. The anchor is unchanged.
func (a *Algorithm) OnSkip() {
	a.pending = nil
}

// ClampStack releases the oldest stacked shares so the stack never claims
// more shares than are held, e.g. after a forced sale for a withdrawal.
func (a *Algorithm) ClampStack(holdings int64) {
	if excess := a.stack.Total() - max(holdings, 0); excess > 0 {
		a.stack.PopFIFO(excess)
	}
}
