package engine

import (
	"errors"

	"voltalpha/internal/broker"
)

// ErrInsufficientFunds marks a buy the bank cannot cover while margin is
// disallowed. The engine records it as a skipped transaction; it never
// aborts a run.
var ErrInsufficientFunds = errors.New("insufficient funds")

// MarginPolicy decides whether a buy may drive the bank negative.
type MarginPolicy struct {
	allowMargin bool
}

// NewMarginPolicy creates a MarginPolicy.
//
//   - allowMargin: when true every buy is accepted and the bank may go
//     negative; when false a buy that would overdraw is rejected whole,
//     never partially filled.
func NewMarginPolicy(allowMargin bool) *MarginPolicy {
	return &MarginPolicy{allowMargin: allowMargin}
}

// CheckBuy returns ErrInsufficientFunds when buying qty shares at price
// would leave the bank below zero and margin is not allowed.
func (m *MarginPolicy) CheckBuy(pos broker.Position, qty int64, price float64) error {
	if m.allowMargin {
		return nil
	}
	if pos.Bank-float64(qty)*price < 0 {
		return ErrInsufficientFunds
	}
	return nil
}
