package broker

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for backtesting. It keeps
// the position in memory and executes every request immediately at the
// given price; policy checks such as margin limits belong to the caller.
type SimulatorBroker struct {
	pos Position
}

// NewSimulatorBroker creates a SimulatorBroker holding the given position.
func NewSimulatorBroker(initial Position) *SimulatorBroker {
	return &SimulatorBroker{pos: initial}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Position returns the current position.
func (b *SimulatorBroker) Position() Position {
	return b.pos
}

// Buy increases holdings by qty and pays qty*price from the bank.
func (b *SimulatorBroker) Buy(qty int64, price float64) Position {
	if qty <= 0 {
		return b.pos
	}
	b.pos.Holdings += qty
	b.pos.Bank -= float64(qty) * price
	return b.pos
}

// Sell decreases holdings by qty, capped at the shares held, and credits
// the proceeds.
func (b *SimulatorBroker) Sell(qty int64, price float64) Position {
	qty = min(qty, b.pos.Holdings)
	if qty <= 0 {
		return b.pos
	}
	b.pos.Holdings -= qty
	b.pos.Bank += float64(qty) * price
	return b.pos
}

// Credit adds amount to the bank.
func (b *SimulatorBroker) Credit(amount float64) Position {
	b.pos.Bank += amount
	return b.pos
}

// Debit subtracts amount from the bank.
func (b *SimulatorBroker) Debit(amount float64) Position {
	b.pos.Bank -= amount
	return b.pos
}
