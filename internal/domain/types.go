// Package domain defines the core value types shared across voltalpha: price
// bars, orders, fills, withdrawals and the per-day state trajectory.
package domain

import "time"

// Market identifies the exchange group a symbol trades on. It selects the
// directory a bar store reads from.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Bar is a single daily OHLC bar. Dividend is the cash dividend per share
// going ex on this date, zero on most days.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Dividend  float64
}

// OrderSide is the direction of an order or fill.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderReason records why an order was created.
type OrderReason string

const (
	// ReasonBracket is a buy or sell at the anchor's bracket level.
	ReasonBracket OrderReason = "bracket"
	// ReasonATH is a sell detected on a bar that made a new all-time high.
	ReasonATH OrderReason = "ath"
	// ReasonUnwind is a sell of stacked shares below the all-time high.
	ReasonUnwind OrderReason = "unwind"
)

// PendingOrder is an order detected on one bar and eligible for execution
// on a strictly later bar.
type PendingOrder struct {
	Side         OrderSide
	Trigger      float64
	Qty          int64
	ScheduledDay int // index of the bar the order was detected on
	ScheduledOn  time.Time
	Reason       OrderReason
}

// EligibleOn reports whether the order may execute on bar index day.
func (o *PendingOrder) EligibleOn(day int) bool {
	return day > o.ScheduledDay
}

// Transaction is a resolved order. Skipped transactions are buys that were
// not executed because margin is disallowed and the bank could not cover
// them; they leave holdings and bank unchanged.
type Transaction struct {
	Date      time.Time
	Side      OrderSide
	Reason    OrderReason
	Trigger   float64
	FillPrice float64
	Qty       int64
	Holdings  int64   // holdings after the fill
	Bank      float64 // bank after the fill
	Gap       bool    // filled at the session open rather than the trigger
	Skipped   bool

	// Stack accounting for sells that consumed buyback lots.
	StackShares    int64
	StackCostBasis float64
}

// Notional returns fill price times quantity.
func (t Transaction) Notional() float64 {
	return t.FillPrice * float64(t.Qty)
}

// WithdrawalSource tells whether a withdrawal was covered by cash alone or
// required selling shares.
type WithdrawalSource string

const (
	WithdrawalFromBank  WithdrawalSource = "bank"
	WithdrawalForceSale WithdrawalSource = "forced_sale"
)

// Withdrawal is a periodic cash withdrawal.
type Withdrawal struct {
	Date       time.Time
	Amount     float64
	Source     WithdrawalSource
	SharesSold int64
	Price      float64
	Bank       float64 // bank after the withdrawal
	Holdings   int64   // holdings after the withdrawal
}

// DailyState is one point of the simulation trajectory, recorded after all
// of the day's activity.
type DailyState struct {
	Date        time.Time
	Close       float64
	Holdings    int64
	Bank        float64
	ATH         float64
	StackShares int64
	Equity      float64
	Withdrawn   float64 // cumulative
}
