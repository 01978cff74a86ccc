package engine

import (
	"voltalpha/internal/domain"
	"voltalpha/internal/strategy"
)

// fillPrice resolves a pending order against a bar. A buy is reachable when
// the bar's low is at or below the trigger, a sell when the high is at or
// above it. In gap mode an open that has already crossed the trigger is the
// fill price; otherwise the order fills at its trigger.
func fillPrice(o *domain.PendingOrder, bar domain.Bar, mode strategy.FillMode) (price float64, gap, ok bool) {
	switch o.Side {
	case domain.OrderSideBuy:
		if bar.Low > o.Trigger {
			return 0, false, false
		}
		if mode == strategy.FillGap && bar.Open < o.Trigger {
			return bar.Open, true, true
		}
	case domain.OrderSideSell:
		if bar.High < o.Trigger {
			return 0, false, false
		}
		if mode == strategy.FillGap && bar.Open > o.Trigger {
			return bar.Open, true, true
		}
	default:
		return 0, false, false
	}
	return o.Trigger, false, true
}
