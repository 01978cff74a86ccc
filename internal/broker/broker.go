// Package broker defines the Broker interface and the simulated account
// that executes fills and cash movements for a backtest.
package broker

// Position is the account state: an integer share count and a signed cash
// balance. A negative bank is margin debt.
type Position struct {
	Holdings int64
	Bank     float64
}

// Equity values the position at price.
func (p Position) Equity(price float64) float64 {
	return float64(p.Holdings)*price + p.Bank
}

// Broker abstracts the account a simulation trades against.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// Position returns a snapshot of holdings and bank.
	Position() Position

	// Buy adds qty shares paid for at price.
	Buy(qty int64, price float64) Position

	// Sell removes qty shares at price, crediting the proceeds.
	Sell(qty int64, price float64) Position

	// Credit adds cash, e.g. dividends.
	Credit(amount float64) Position

	// Debit removes cash, e.g. withdrawals. The bank may go negative.
	Debit(amount float64) Position
}
