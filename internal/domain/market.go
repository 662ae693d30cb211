package domain

import "time"

// Ticker is a top-of-book update for one instrument.
type Ticker struct {
	Instrument string
	BestBid    float64
	BestAsk    float64
	BidAmount  float64
	AskAmount  float64
	Timestamp  time.Time
}

// Valid returns true when both sides of the book are populated.
func (t Ticker) Valid() bool {
	return t.BestBid > 0 && t.BestAsk > 0
}

// Mid returns the average of best bid and best ask.
func (t Ticker) Mid() float64 {
	return (t.BestBid + t.BestAsk) / 2
}

// Spread returns best ask minus best bid.
func (t Ticker) Spread() float64 {
	return t.BestAsk - t.BestBid
}
