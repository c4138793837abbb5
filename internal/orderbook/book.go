package orderbook

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickdb/internal/model"
	"tickdb/pkg/exception"
)

// board is one side of the book: price level -> size. Levels with size zero
// are removed. Not safe for concurrent use; Book serializes access.
type board struct {
	asc      bool
	maxDepth int
	levels   map[string]model.BookLevel
}

func newBoard(maxDepth int, asc bool) *board {
	return &board{asc: asc, maxDepth: maxDepth, levels: make(map[string]model.BookLevel)}
}

func (b *board) set(price, size decimal.Decimal) {
	key := price.String()
	if size.IsZero() {
		delete(b.levels, key)
		return
	}
	b.levels[key] = model.BookLevel{Price: price, Size: size}
}

func (b *board) clear() {
	b.levels = make(map[string]model.BookLevel)
}

// items returns the side sorted best-first: descending for bids, ascending
// for asks.
func (b *board) items() []model.BookLevel {
	out := make([]model.BookLevel, 0, len(b.levels))
	for _, lv := range b.levels {
		out = append(out, lv)
	}
	sort.Slice(out, func(i, j int) bool {
		if b.asc {
			return out[i].Price.LessThan(out[j].Price)
		}
		return out[j].Price.LessThan(out[i].Price)
	})
	return out
}

// clipDepth drops levels beyond maxDepth, keeping the best ones.
func (b *board) clipDepth() {
	if b.maxDepth <= 0 || len(b.levels) <= b.maxDepth {
		return
	}
	items := b.items()
	for _, lv := range items[b.maxDepth:] {
		delete(b.levels, lv.Price.String())
	}
}

// Book is the live order book for one market. One writer (the stream task)
// mutates it through Apply; any number of readers query it concurrently.
// The lock is held only across the update or read itself, never across I/O.
type Book struct {
	mu             sync.RWMutex
	lastUpdateTime model.MicroSec
	lastUpdateID   int64
	synced         bool
	bids           *board
	asks           *board
}

func NewBook(maxDepth int) *Book {
	return &Book{
		bids: newBoard(maxDepth, false),
		asks: newBoard(maxDepth, true),
	}
}

// Apply merges one snapshot or diff into the book.
//
// A snapshot resets the book unconditionally. A diff is dropped when its
// LastID is not past the book's (already applied or pre-snapshot); a
// sequence discontinuity is logged as a warning but the diff is still
// applied and the book keeps advancing.
func (b *Book) Apply(u *model.BookUpdate) error {
	if u == nil {
		return errors.Wrap(exception.ErrNilInstance, "book update")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if u.Snapshot {
		if b.synced && u.LastID < b.lastUpdateID {
			logs.Warnf("orderbook: %v: book last=%d, snapshot last=%d",
				exception.ErrStaleSnapshot, b.lastUpdateID, u.LastID)
		}
		b.bids.clear()
		b.asks.clear()
		b.applyLevels(u)
		b.lastUpdateID = u.LastID
		b.lastUpdateTime = u.Time
		b.synced = true
		return nil
	}

	if u.LastID <= b.lastUpdateID {
		return nil
	}
	if b.synced && b.lastUpdateID != 0 && b.lastUpdateID+1 != u.FirstID {
		logs.Warnf("orderbook: %v: book last=%d, update first=%d (data loss assumed)",
			exception.ErrSequenceGap, b.lastUpdateID, u.FirstID)
	}

	b.applyLevels(u)
	b.lastUpdateID = u.LastID
	b.lastUpdateTime = u.Time
	return nil
}

func (b *Book) applyLevels(u *model.BookUpdate) {
	for _, lv := range u.Bids {
		b.bids.set(lv.Price, lv.Size)
	}
	for _, lv := range u.Asks {
		b.asks.set(lv.Price, lv.Size)
	}
	b.bids.clipDepth()
	b.asks.clipDepth()
}

// Invalidate clears the book and drops the synced flag, forcing the next
// diff to trigger a fresh snapshot.
func (b *Book) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids.clear()
	b.asks.clear()
	b.lastUpdateID = 0
	b.lastUpdateTime = 0
	b.synced = false
}

// Synced reports whether a full snapshot has been applied. Before that the
// book must not be reported as live.
func (b *Book) Synced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}

func (b *Book) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

func (b *Book) LastUpdateTime() model.MicroSec {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateTime
}

// BidsAsks returns both sides sorted best-first.
func (b *Book) BidsAsks() ([]model.BookLevel, []model.BookLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.items(), b.asks.items()
}

// EdgePrice returns the best bid and best ask.
func (b *Book) EdgePrice() (bid, ask decimal.Decimal, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.synced {
		return decimal.Zero, decimal.Zero, exception.ErrNoSnapshot
	}
	bids := b.bids.items()
	asks := b.asks.items()
	if len(bids) == 0 || len(asks) == 0 {
		return decimal.Zero, decimal.Zero, exception.ErrBookEmpty
	}
	return bids[0].Price, asks[0].Price, nil
}

// JSON renders the top size levels of both sides.
func (b *Book) JSON(size int) (string, error) {
	bids, asks := b.BidsAsks()
	if size > 0 {
		if size < len(bids) {
			bids = bids[:size]
		}
		if size < len(asks) {
			asks = asks[:size]
		}
	}

	type jsonLevel struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	}
	payload := struct {
		Bids []jsonLevel `json:"bids"`
		Asks []jsonLevel `json:"asks"`
	}{}
	for _, lv := range bids {
		payload.Bids = append(payload.Bids, jsonLevel{Price: lv.Price.String(), Size: lv.Size.String()})
	}
	for _, lv := range asks {
		payload.Asks = append(payload.Asks, jsonLevel{Price: lv.Price.String(), Size: lv.Size.String()})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal book")
	}
	return string(raw), nil
}
