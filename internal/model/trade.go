package model

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tickdb/internal/model/enum"
)

// Trade is one execution observed on an exchange. ID is the dedup key:
// re-ingesting a trade with the same ID upserts rather than duplicates.
type Trade struct {
	Time   MicroSec
	Side   enum.OrderSide
	Price  decimal.Decimal
	Size   decimal.Decimal
	Status enum.LogStatus
	ID     string
}

func NewTrade(t MicroSec, side enum.OrderSide, price, size decimal.Decimal, status enum.LogStatus, id string) Trade {
	return Trade{
		Time:   t,
		Side:   side,
		Price:  price,
		Size:   size,
		Status: status,
		ID:     id,
	}
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s %s@%s [%s] %s",
		TimeString(t.Time), t.Side, t.Size, t.Price, t.Status, t.ID)
}

// TimeChunk is a half-open [Start, End) range of missing or unreconciled data.
type TimeChunk struct {
	Start MicroSec
	End   MicroSec
}

func (c TimeChunk) String() string {
	return fmt.Sprintf("[%s, %s)", TimeString(c.Start), TimeString(c.End))
}

// Days expands the chunk into the calendar days it touches.
func (c TimeChunk) Days() []MicroSec {
	var days []MicroSec
	for d := FloorDay(c.Start); d < c.End; d += Day {
		days = append(days, d)
	}
	return days
}
