package orderbook

import (
	"context"

	"github.com/gammazero/deque"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickdb/internal/model"
)

// SnapshotFunc fetches a full REST snapshot of the book.
type SnapshotFunc func(ctx context.Context) (*model.BookUpdate, error)

// Maintainer drives the snapshot+diff protocol for one Book. Diffs that
// arrive before the first snapshot are buffered; once the snapshot is
// applied the buffer is drained, with pre-snapshot diffs dropped by the
// book's stale-update rule.
//
// Maintainer is called from the single stream goroutine only.
type Maintainer struct {
	book     *Book
	snapshot SnapshotFunc
	pending  deque.Deque[*model.BookUpdate]
}

func NewMaintainer(book *Book, snapshot SnapshotFunc) *Maintainer {
	return &Maintainer{book: book, snapshot: snapshot}
}

func (m *Maintainer) Book() *Book {
	return m.book
}

// OnUpdate feeds one inbound snapshot or diff through the protocol.
func (m *Maintainer) OnUpdate(ctx context.Context, u *model.BookUpdate) error {
	if u != nil && u.Snapshot {
		if err := m.book.Apply(u); err != nil {
			return err
		}
		m.drain()
		return nil
	}

	if m.book.Synced() {
		return m.book.Apply(u)
	}

	m.pending.PushBack(u)

	snap, err := m.snapshot(ctx)
	if err != nil {
		// Keep the buffered diffs: the next update retries the snapshot.
		return errors.Wrap(err, "fetch book snapshot")
	}
	snap.Snapshot = true
	if err := m.book.Apply(snap); err != nil {
		return err
	}
	logs.Infof("orderbook: snapshot applied, last_update_id=%d, draining %d buffered diff(s)",
		snap.LastID, m.pending.Len())
	m.drain()
	return nil
}

// Resync invalidates the book so the next diff triggers a fresh snapshot.
// Never called automatically: a detected discontinuity only warns.
func (m *Maintainer) Resync() {
	m.book.Invalidate()
}

func (m *Maintainer) drain() {
	for m.pending.Len() > 0 {
		d := m.pending.PopFront()
		if err := m.book.Apply(d); err != nil {
			logs.Errorf("orderbook: apply buffered diff: %v", err)
		}
	}
}
