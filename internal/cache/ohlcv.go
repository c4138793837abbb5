package cache

import (
	"sort"

	"github.com/shopspring/decimal"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
)

// Bar is one side-partitioned aggregation bucket over the half-open
// [Timestamp, Timestamp+window) interval. StartTime/EndTime are the actual
// first/last trade times inside the bucket; they drive open/close selection
// when buckets are re-aggregated after a merge.
type Bar struct {
	Timestamp model.MicroSec
	Side      enum.OrderSide
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Vol       float64
	Count     int64
	StartTime model.MicroSec
	EndTime   model.MicroSec
}

// FlatBar is one cross-side OHLCV bucket.
type FlatBar struct {
	Timestamp model.MicroSec
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Vol       float64
	Count     int64
}

// BarsFromTrades buckets trades into [t, t+window) intervals per side.
// Trades must be time-sorted; the result is sorted by bucket then side.
func BarsFromTrades(trades []model.Trade, windowSec int64) []Bar {
	type key struct {
		ts   model.MicroSec
		side enum.OrderSide
	}

	bars := make(map[key]*Bar)
	var order []key
	for _, t := range trades {
		k := key{ts: model.FloorWindow(t.Time, windowSec), side: t.Side}
		price := t.Price.InexactFloat64()
		size := t.Size.InexactFloat64()

		b, ok := bars[k]
		if !ok {
			bars[k] = &Bar{
				Timestamp: k.ts,
				Side:      t.Side,
				Open:      price,
				High:      price,
				Low:       price,
				Close:     price,
				Vol:       size,
				Count:     1,
				StartTime: t.Time,
				EndTime:   t.Time,
			}
			order = append(order, k)
			continue
		}

		if b.High < price {
			b.High = price
		}
		if price < b.Low {
			b.Low = price
		}
		if t.Time < b.StartTime {
			b.StartTime = t.Time
			b.Open = price
		}
		if b.EndTime <= t.Time {
			b.EndTime = t.Time
			b.Close = price
		}
		b.Vol += size
		b.Count++
	}

	out := make([]Bar, 0, len(order))
	for _, k := range order {
		out = append(out, *bars[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// MergeBars overlays fresh bars onto old ones: every old bar inside the
// fresh bars' bucket range is replaced. Both inputs and the result are
// sorted by bucket timestamp.
func MergeBars(old, fresh []Bar) []Bar {
	if len(fresh) == 0 {
		return old
	}
	if len(old) == 0 {
		return fresh
	}

	freshStart := fresh[0].Timestamp
	freshEnd := fresh[len(fresh)-1].Timestamp

	out := make([]Bar, 0, len(old)+len(fresh))
	for _, b := range old {
		if b.Timestamp < freshStart {
			out = append(out, b)
		}
	}
	out = append(out, fresh...)
	for _, b := range old {
		if freshEnd < b.Timestamp {
			out = append(out, b)
		}
	}
	return out
}

// Rebin re-aggregates side-partitioned base bars into cross-side OHLCV
// buckets of a coarser window. Open is taken from the sub-bar with the
// earliest StartTime and close from the sub-bar with the latest EndTime:
// bucket order inside the input is not trusted after merges.
func Rebin(bars []Bar, windowSec int64) []FlatBar {
	out := make(map[model.MicroSec]*FlatBar)
	openAt := make(map[model.MicroSec]model.MicroSec)
	closeAt := make(map[model.MicroSec]model.MicroSec)
	var order []model.MicroSec

	for _, b := range bars {
		ts := model.FloorWindow(b.Timestamp, windowSec)
		f, ok := out[ts]
		if !ok {
			out[ts] = &FlatBar{
				Timestamp: ts,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Vol:       b.Vol,
				Count:     b.Count,
			}
			openAt[ts] = b.StartTime
			closeAt[ts] = b.EndTime
			order = append(order, ts)
			continue
		}

		if b.StartTime < openAt[ts] {
			openAt[ts] = b.StartTime
			f.Open = b.Open
		}
		if closeAt[ts] <= b.EndTime {
			closeAt[ts] = b.EndTime
			f.Close = b.Close
		}
		if f.High < b.High {
			f.High = b.High
		}
		if b.Low < f.Low {
			f.Low = b.Low
		}
		f.Vol += b.Vol
		f.Count += b.Count
	}

	flat := make([]FlatBar, 0, len(order))
	for _, ts := range order {
		flat = append(flat, *out[ts])
	}
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Timestamp < flat[j].Timestamp })
	return flat
}

// RebinSide re-aggregates base bars into coarser side-partitioned buckets.
func RebinSide(bars []Bar, windowSec int64) []Bar {
	type key struct {
		ts   model.MicroSec
		side enum.OrderSide
	}

	out := make(map[key]*Bar)
	var order []key
	for _, b := range bars {
		k := key{ts: model.FloorWindow(b.Timestamp, windowSec), side: b.Side}
		g, ok := out[k]
		if !ok {
			nb := b
			nb.Timestamp = k.ts
			out[k] = &nb
			order = append(order, k)
			continue
		}

		if b.StartTime < g.StartTime {
			g.StartTime = b.StartTime
			g.Open = b.Open
		}
		if g.EndTime <= b.EndTime {
			g.EndTime = b.EndTime
			g.Close = b.Close
		}
		if g.High < b.High {
			g.High = b.High
		}
		if b.Low < g.Low {
			g.Low = b.Low
		}
		g.Vol += b.Vol
		g.Count += b.Count
	}

	merged := make([]Bar, 0, len(order))
	for _, k := range order {
		merged = append(merged, *out[k])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].Side < merged[j].Side
	})
	return merged
}

// FlatBarsFromTrades aggregates raw trades directly into cross-side OHLCV
// buckets. Used when the requested window is not a multiple of the cached
// base granularity.
func FlatBarsFromTrades(trades []model.Trade, windowSec int64) []FlatBar {
	return Rebin(BarsFromTrades(trades, windowSec), windowSec)
}

// VapRow is the traded volume accumulated at one price bucket.
type VapRow struct {
	Price   decimal.Decimal
	BuyVol  decimal.Decimal
	SellVol decimal.Decimal
	Total   decimal.Decimal
}

// Vap buckets trades by floor(price/unit)*unit and side, ascending by price.
func Vap(trades []model.Trade, priceUnit decimal.Decimal) []VapRow {
	if priceUnit.Sign() <= 0 {
		priceUnit = decimal.New(1, 0)
	}

	rows := make(map[string]*VapRow)
	var keys []decimal.Decimal
	for _, t := range trades {
		bucket := t.Price.Div(priceUnit).Floor().Mul(priceUnit)
		k := bucket.String()
		r, ok := rows[k]
		if !ok {
			r = &VapRow{Price: bucket}
			rows[k] = r
			keys = append(keys, bucket)
		}
		switch t.Side {
		case enum.OrderSideBuy:
			r.BuyVol = r.BuyVol.Add(t.Size)
		case enum.OrderSideSell:
			r.SellVol = r.SellVol.Add(t.Size)
		}
		r.Total = r.Total.Add(t.Size)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].LessThan(keys[j]) })
	out := make([]VapRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, *rows[k.String()])
	}
	return out
}
