package binance

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
)

// restTrade is one row of /api/v3/trades and /api/v3/historicalTrades.
type restTrade struct {
	ID           int64           `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	QuoteQty     decimal.Decimal `json:"quoteQty"`
	Time         int64           `json:"time"` // milliseconds
	IsBuyerMaker bool            `json:"isBuyerMaker"`
}

func (t restTrade) trade() model.Trade {
	return model.Trade{
		Time:   t.Time * model.MilliSecond,
		Side:   takerSide(t.IsBuyerMaker),
		Price:  t.Price,
		Size:   t.Qty,
		Status: enum.LogStatusUnfixed,
		ID:     strconv.FormatInt(t.ID, 10),
	}
}

// takerSide derives the trade side from the maker flag: when the buyer is
// the maker, the aggressor sold.
func takerSide(isBuyerMaker bool) enum.OrderSide {
	if isBuyerMaker {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
}

// restDepth is the /api/v3/depth response.
type restDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"` // [0]price [1]quantity
	Asks         [][2]string `json:"asks"` // [0]price [1]quantity
}

func (d restDepth) update(now model.MicroSec) (*model.BookUpdate, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return nil, err
	}
	return &model.BookUpdate{
		Time:     now,
		LastID:   d.LastUpdateID,
		Snapshot: true,
		Bids:     bids,
		Asks:     asks,
	}, nil
}

func parseLevels(raw [][2]string) ([]model.BookLevel, error) {
	levels := make([]model.BookLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, errors.Wrap(err, "parse level price").With("price", pair[0])
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, errors.Wrap(err, "parse level size").With("size", pair[1])
		}
		levels = append(levels, model.BookLevel{Price: price, Size: size})
	}
	return levels, nil
}

// wsEnvelope carries just enough to dispatch a stream message.
type wsEnvelope struct {
	EventType string `json:"e"`
}

// wsTrade is one 'trade' stream event.
type wsTrade struct {
	EventType    string          `json:"e"`
	EventTime    int64           `json:"E"`
	Symbol       string          `json:"s"`
	TradeID      int64           `json:"t"`
	Price        decimal.Decimal `json:"p"`
	Qty          decimal.Decimal `json:"q"`
	TradeTime    int64           `json:"T"` // milliseconds
	IsBuyerMaker bool            `json:"m"`
}

func (t wsTrade) trade() model.Trade {
	return model.Trade{
		Time:   t.TradeTime * model.MilliSecond,
		Side:   takerSide(t.IsBuyerMaker),
		Price:  t.Price,
		Size:   t.Qty,
		Status: enum.LogStatusUnfixed,
		ID:     strconv.FormatInt(t.TradeID, 10),
	}
}

// wsDepth is one 'depthUpdate' stream event (diff depth stream).
type wsDepth struct {
	EventType     string      `json:"e"`
	EventTime     int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"` // [0]price [1]quantity
	Asks          [][2]string `json:"a"` // [0]price [1]quantity
}

func (d wsDepth) update() (*model.BookUpdate, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return nil, err
	}
	return &model.BookUpdate{
		Time:    d.EventTime * model.MilliSecond,
		FirstID: d.FirstUpdateID,
		LastID:  d.FinalUpdateID,
		Bids:    bids,
		Asks:    asks,
	}, nil
}
