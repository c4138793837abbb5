package enum

import "strings"

// OrderSide is the taker side of a trade.
type OrderSide string

const (
	OrderSideBuy     OrderSide = "Buy"
	OrderSideSell    OrderSide = "Sell"
	OrderSideUnknown OrderSide = "Unknown"
)

// ParseOrderSide accepts the common exchange spellings ("buy", "BUY", "b", ...).
func ParseOrderSide(s string) OrderSide {
	switch strings.ToUpper(s) {
	case "BUY", "B", "BID":
		return OrderSideBuy
	case "SELL", "S", "ASK":
		return OrderSideSell
	default:
		return OrderSideUnknown
	}
}

func (s OrderSide) String() string {
	return string(s)
}

func (s OrderSide) IsAvailable() bool {
	return s == OrderSideBuy || s == OrderSideSell
}
