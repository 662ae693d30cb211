package domain

// Position is the authoritative open position for one instrument.
// Size is signed: positive long, negative short.
type Position struct {
	Instrument    string
	Size          float64
	AveragePrice  float64
	UnrealizedPnL float64
}

// Balance is the account summary for one currency.
type Balance struct {
	Currency string
	Equity   float64
	Balance  float64
}

// InventorySnapshot is a point-in-time copy of the inventory state.
// InitialEquity is nil until the first successful balance fetch.
type InventorySnapshot struct {
	Inventory     float64
	UnrealizedPnL float64
	CumulativePnL float64
	InitialEquity *float64
	Fills         int
	Reconciles    int
}

// HasInitialEquity returns true once initial equity has been latched.
func (s InventorySnapshot) HasInitialEquity() bool {
	return s.InitialEquity != nil
}
