package domain

// OrderRequest is a limit order sent to the exchange gateway.
type OrderRequest struct {
	Instrument string
	Side       Side
	Amount     float64
	Price      float64
	PostOnly   bool
	Label      string
}

// PlacedOrder is the gateway's acknowledgement of a placed order.
type PlacedOrder struct {
	OrderID string
	State   string
	Side    Side
	Price   float64
	Amount  float64
	Label   string
}

// Quote is the target bid/ask pair for one decision cycle. Never persisted.
type Quote struct {
	Bid  float64
	Ask  float64
	Skew float64
	Mid  float64
}
