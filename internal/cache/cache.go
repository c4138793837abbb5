package cache

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tickdb/internal/archive"
	"tickdb/internal/model"
	"tickdb/internal/store"
	"tickdb/pkg/exception"
)

// Config tunes the in-memory cache window.
type Config struct {
	BaseWindowSec        int64 // granularity of the cached OHLCV table
	ReadAheadDays        int64 // extra days loaded past a query's end
	ExpireSpanMultiplier int64 // history kept behind the oldest query point, in max-span units
}

func (c Config) withDefaults() Config {
	if c.BaseWindowSec <= 0 {
		c.BaseWindowSec = 60
	}
	if c.ReadAheadDays <= 0 {
		c.ReadAheadDays = 4
	}
	if c.ExpireSpanMultiplier <= 0 {
		c.ExpireSpanMultiplier = 2
	}
	return c
}

// Cache is the merged in-memory view over the archive and the durable
// store: a raw-trade table and a base-granularity OHLCV table covering
// [cacheStart, cacheEnd). It grows incrementally as queries move and trims
// itself once history falls far enough behind the queried range.
//
// A Cache is owned by a single query-driving goroutine; the market facade
// serializes access for concurrent hosts.
type Cache struct {
	cfg   Config
	store *store.Store
	arch  *archive.Store

	trades     []model.Trade
	bars       []Bar
	cacheStart model.MicroSec
	cacheEnd   model.MicroSec
	maxSpan    model.MicroSec
}

func New(cfg Config, st *store.Store, arch *archive.Store) *Cache {
	return &Cache{cfg: cfg.withDefaults(), store: st, arch: arch}
}

// loadRange pulls [start, end) merged from both persisted sources: the
// archive serves everything before its end, the durable store serves the
// rest. The archive wins inside its range.
func (c *Cache) loadRange(start, end model.MicroSec) ([]model.Trade, error) {
	archEnd := c.arch.EndTime()

	var trades []model.Trade
	if start < archEnd {
		archTo := end
		if archEnd < archTo || archTo == 0 {
			archTo = archEnd
		}
		fromArchive, err := c.arch.Select(start, archTo)
		if err != nil {
			return nil, err
		}
		trades = fromArchive
	}

	dbStart := start
	if dbStart < archEnd {
		dbStart = archEnd
	}
	if end == 0 || dbStart < end {
		fromStore, err := c.store.SelectTrades(dbStart, end)
		if err != nil {
			return nil, err
		}
		trades = append(trades, fromStore...)
	}
	return trades, nil
}

// resolveRange fills zero bounds: start=0 falls back to the earliest
// persisted point, end=0 to now.
func (c *Cache) resolveRange(start, end model.MicroSec) (model.MicroSec, model.MicroSec) {
	if start == 0 {
		if s := c.arch.StartTime(); s != 0 {
			start = s
		} else {
			start = c.store.StartTime(0)
		}
	}
	if end == 0 {
		end = model.Now()
	}
	return start, end
}

// ensureRange makes the cache window cover [start, end), loading only the
// missing sub-ranges and expiring stale history at the front.
func (c *Cache) ensureRange(start, end model.MicroSec) error {
	start, end = c.resolveRange(start, end)
	if end <= start {
		return errors.Wrap(exception.ErrEmptyRange, "cache range").
			With("start", model.TimeString(start)).
			With("end", model.TimeString(end))
	}

	if span := end - start; c.maxSpan < span {
		c.maxSpan = span
	}

	loadEnd := model.FloorDay(end) + model.Days(c.cfg.ReadAheadDays)
	if now := model.Now(); now < loadEnd {
		loadEnd = now
	}
	if loadEnd < end {
		loadEnd = end
	}
	loadStart := model.FloorDay(start - model.Day)
	if loadStart < 0 {
		loadStart = 0
	}

	if c.cacheEnd == 0 { // no cache yet, full load
		trades, err := c.loadRange(loadStart, loadEnd)
		if err != nil {
			return err
		}
		c.trades = trades
		c.bars = BarsFromTrades(trades, c.cfg.BaseWindowSec)
		c.cacheStart, c.cacheEnd = loadStart, loadEnd
		return nil
	}

	if start < c.cacheStart {
		if err := c.prepend(loadStart); err != nil {
			return err
		}
	}
	if c.cacheEnd < end {
		if err := c.append(loadEnd); err != nil {
			return err
		}
	}

	c.expire(start)
	return nil
}

// prepend loads [loadStart, cacheStart) and recomputes OHLCV only for the
// newly loaded sub-range.
func (c *Cache) prepend(loadStart model.MicroSec) error {
	trades, err := c.loadRange(loadStart, c.cacheStart)
	if err != nil {
		return err
	}
	if len(trades) != 0 {
		fresh := BarsFromTrades(trades, c.cfg.BaseWindowSec)
		c.trades = append(trades, c.trades...)
		c.bars = MergeBars(c.bars, fresh)
	}
	c.cacheStart = loadStart
	return nil
}

// append loads from the start of the last (possibly partial) base bucket to
// loadEnd, replacing the overlap so the tail bucket is recomputed complete.
func (c *Cache) append(loadEnd model.MicroSec) error {
	reloadFrom := model.FloorWindow(c.cacheEnd, c.cfg.BaseWindowSec)
	trades, err := c.loadRange(reloadFrom, loadEnd)
	if err != nil {
		return err
	}
	if len(trades) != 0 {
		cut := sort.Search(len(c.trades), func(i int) bool { return reloadFrom <= c.trades[i].Time })
		c.trades = append(c.trades[:cut], trades...)
		fresh := BarsFromTrades(trades, c.cfg.BaseWindowSec)
		c.bars = MergeBars(c.bars, fresh)
	}
	c.cacheEnd = loadEnd
	return nil
}

// expire trims the cache front once the retained history exceeds the
// configured multiple of the largest observed query span.
func (c *Cache) expire(oldestRequested model.MicroSec) {
	keep := c.maxSpan * c.cfg.ExpireSpanMultiplier
	if keep <= 0 || c.cacheStart == 0 {
		return
	}
	trimAt := model.FloorDay(oldestRequested - keep)
	if trimAt <= c.cacheStart {
		return
	}

	cut := sort.Search(len(c.trades), func(i int) bool { return trimAt <= c.trades[i].Time })
	c.trades = c.trades[cut:]
	barCut := sort.Search(len(c.bars), func(i int) bool { return trimAt <= c.bars[i].Timestamp })
	c.bars = c.bars[barCut:]
	c.cacheStart = trimAt
}

// SelectTrades returns the cached trades in [start, end).
func (c *Cache) SelectTrades(start, end model.MicroSec) ([]model.Trade, error) {
	if err := c.ensureRange(start, end); err != nil {
		return nil, err
	}
	start, end = c.resolveRange(start, end)

	lo := sort.Search(len(c.trades), func(i int) bool { return start <= c.trades[i].Time })
	hi := sort.Search(len(c.trades), func(i int) bool { return end <= c.trades[i].Time })
	out := make([]model.Trade, hi-lo)
	copy(out, c.trades[lo:hi])
	return out, nil
}

// Ohlcv returns cross-side OHLCV buckets of windowSec over [start, end).
// Windows that are a multiple of the base granularity are derived from the
// cached base table instead of re-scanning raw trades.
func (c *Cache) Ohlcv(start, end model.MicroSec, windowSec int64) ([]FlatBar, error) {
	if windowSec <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "window must be positive").With("window_sec", windowSec)
	}
	if err := c.ensureRange(start, end); err != nil {
		return nil, err
	}
	start, end = c.resolveRange(start, end)

	if windowSec%c.cfg.BaseWindowSec == 0 {
		return Rebin(c.barsIn(start, end), windowSec), nil
	}

	trades, err := c.SelectTrades(start, end)
	if err != nil {
		return nil, err
	}
	return FlatBarsFromTrades(trades, windowSec), nil
}

// Ohlcvv returns side-partitioned OHLCV buckets of windowSec over [start, end).
func (c *Cache) Ohlcvv(start, end model.MicroSec, windowSec int64) ([]Bar, error) {
	if windowSec <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "window must be positive").With("window_sec", windowSec)
	}
	if err := c.ensureRange(start, end); err != nil {
		return nil, err
	}
	start, end = c.resolveRange(start, end)

	if windowSec%c.cfg.BaseWindowSec == 0 {
		return RebinSide(c.barsIn(start, end), windowSec), nil
	}

	trades, err := c.SelectTrades(start, end)
	if err != nil {
		return nil, err
	}
	return BarsFromTrades(trades, windowSec), nil
}

// ValueAtPrice buckets traded volume by price over [start, end).
func (c *Cache) ValueAtPrice(start, end model.MicroSec, priceUnit decimal.Decimal) ([]VapRow, error) {
	trades, err := c.SelectTrades(start, end)
	if err != nil {
		return nil, err
	}
	return Vap(trades, priceUnit), nil
}

func (c *Cache) barsIn(start, end model.MicroSec) []Bar {
	lo := sort.Search(len(c.bars), func(i int) bool { return start <= c.bars[i].Timestamp })
	hi := sort.Search(len(c.bars), func(i int) bool { return end <= c.bars[i].Timestamp })
	return c.bars[lo:hi]
}

// Window reports the currently cached [start, end) range.
func (c *Cache) Window() (model.MicroSec, model.MicroSec) {
	return c.cacheStart, c.cacheEnd
}

// Info returns a one-line human readable summary.
func (c *Cache) Info() string {
	return fmt.Sprintf("cache: %d trades, %d base bars in [%s, %s)",
		len(c.trades), len(c.bars), model.TimeString(c.cacheStart), model.TimeString(c.cacheEnd))
}
