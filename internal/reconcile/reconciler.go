// Package reconcile closes the boundary between confirmed history and
// volatile live data: it finds the newest fix point, the oldest live record
// after it, and REST-backfills whatever lies between.
package reconcile

import (
	"context"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickdb/internal/exchange"
	"tickdb/internal/model"
	"tickdb/internal/model/enum"
	"tickdb/internal/store"
	"tickdb/pkg/exception"
)

const (
	defaultLookback  = 2 * model.Day
	defaultPageLimit = 1000
	maxPageFailures  = 3
)

// Reconciler drives gap detection and REST backfill for one market.
type Reconciler struct {
	store  *store.Store
	rest   exchange.RestClient
	symbol string

	lookback  model.MicroSec
	pageLimit int
}

func New(st *store.Store, rest exchange.RestClient, symbol string) *Reconciler {
	return &Reconciler{
		store:     st,
		rest:      rest,
		symbol:    symbol,
		lookback:  defaultLookback,
		pageLimit: defaultPageLimit,
	}
}

// FindLatestGap locates the reconciliation boundary.
//
// The fix point is the newest confirmed record inside the lookback window;
// nil when the store holds none (too stale or empty). The unfix point is
// the first live record after it with a different id; nil when the store
// is fully reconciled — no gap.
func (r *Reconciler) FindLatestGap(force bool) (fix, unfix *model.Trade, err error) {
	since := model.Now() - r.lookback

	fix, err = r.store.LatestFixTrade(since, force)
	if err != nil {
		return nil, nil, err
	}

	var (
		after     model.MicroSec
		excludeID string
	)
	if fix != nil {
		after = fix.Time
		excludeID = fix.ID
	}

	unfix, err = r.store.FirstUnfixedTrade(after, excludeID)
	if err != nil {
		return nil, nil, err
	}
	return fix, unfix, nil
}

// DownloadGap backfills trades between the fix point and the unfix point by
// id, tags the filled range as a REST block, and inserts it through the
// normal idempotent store path. Returns the number of backfilled records.
//
// No unfix point means no gap: a no-op, not an error. A gap with no fix
// point inside the lookback window cannot be reconciled and fails.
func (r *Reconciler) DownloadGap(ctx context.Context, force, verbose bool) (int64, error) {
	fix, unfix, err := r.FindLatestGap(force)
	if err != nil {
		return 0, err
	}
	if unfix == nil {
		if verbose {
			logs.Infof("reconcile %s: no gap, store fully reconciled", r.symbol)
		}
		return 0, nil
	}
	if fix == nil {
		return 0, errors.Wrap(exception.ErrNoFixPoint, "cannot reconcile").
			With("symbol", r.symbol).
			With("unfix_id", unfix.ID)
	}

	startedAt := model.Now()
	filled, err := r.page(ctx, fix, unfix, startedAt, verbose)
	if err != nil {
		return 0, err
	}
	if len(filled) == 0 {
		if verbose {
			logs.Infof("reconcile %s: nothing to backfill between %s and %s", r.symbol, fix.ID, unfix.ID)
		}
		return 0, nil
	}

	for i := range filled {
		filled[i].Status = enum.LogStatusFixRestBlock
	}
	filled[0].Status = enum.LogStatusFixRestStart
	filled[len(filled)-1].Status = enum.LogStatusFixRestEnd

	n, err := r.store.InsertRecords(filled)
	if err != nil {
		return 0, err
	}
	logs.Infof("reconcile %s: backfilled %d trade(s) in [%s, %s]",
		r.symbol, n, filled[0].ID, filled[len(filled)-1].ID)
	return n, nil
}

// page walks the REST history forward from the fix point until the unfix
// point or the reconciliation start time. Pages are trimmed so the backfill
// never passes either boundary; a failed page is retried a bounded number
// of times before the loop gives up with what it has.
func (r *Reconciler) page(ctx context.Context, fix, unfix *model.Trade, startedAt model.MicroSec, verbose bool) ([]model.Trade, error) {
	var filled []model.Trade
	fromID := fix.ID
	failures := 0

	for {
		page, err := r.rest.HistoricalTrades(ctx, r.symbol, fromID, r.pageLimit)
		if err != nil {
			failures++
			logs.Errorf("reconcile %s: page from %s failed (%d/%d): %v", r.symbol, fromID, failures, maxPageFailures, err)
			if maxPageFailures <= failures {
				return filled, nil
			}
			continue
		}
		failures = 0
		if len(page) == 0 {
			return filled, nil
		}

		reached := false
		for _, t := range page {
			if compareID(unfix.ID, t.ID) < 0 || startedAt < t.Time {
				reached = true
				break
			}
			if t.ID == fix.ID {
				continue
			}
			filled = append(filled, t)
			if t.ID == unfix.ID {
				reached = true
				break
			}
		}
		if verbose {
			logs.Infof("reconcile %s: fetched page of %d from id %s", r.symbol, len(page), fromID)
		}
		if reached {
			return filled, nil
		}
		fromID = page[len(page)-1].ID
	}
}

// compareID orders trade ids numerically when both parse as integers,
// lexicographically otherwise.
func compareID(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case nb < na:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
