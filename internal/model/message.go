package model

import "github.com/shopspring/decimal"

// MarketMessage is the decoded unit the stream adapter emits and the
// orchestrator dispatches on. Exactly one of Trades, Book or Control is set.
type MarketMessage struct {
	Exchange string
	Category string
	Symbol   string

	Trades  []Trade
	Book    *BookUpdate
	Control *ControlMessage
}

// ControlMessage carries transport status signals (heartbeats, errors).
type ControlMessage struct {
	OK   bool
	Text string
}

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookUpdate is one order-book snapshot or incremental diff. FirstID/LastID
// are the exchange sequence range the update covers; a snapshot carries only
// LastID.
type BookUpdate struct {
	Time     MicroSec
	FirstID  int64
	LastID   int64
	Snapshot bool
	Bids     []BookLevel
	Asks     []BookLevel
}
