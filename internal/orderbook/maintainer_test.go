package orderbook

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"tickdb/internal/model"
)

func TestMaintainerFetchesSnapshotOnFirstDiff(t *testing.T) {
	calls := 0
	m := NewMaintainer(NewBook(0), func(ctx context.Context) (*model.BookUpdate, error) {
		calls++
		return &model.BookUpdate{
			Time:   1,
			LastID: 100,
			Bids:   []model.BookLevel{level(99, 1)},
			Asks:   []model.BookLevel{level(101, 1)},
		}, nil
	})

	// pre-snapshot diff triggers the fetch; its id precedes the snapshot so
	// the drain drops it
	require.NoError(t, m.OnUpdate(context.Background(), diff(99, 100, []model.BookLevel{level(99, 7)}, nil)))
	assert.Equal(t, 1, calls)
	assert.True(t, m.Book().Synced())

	bids, _ := m.Book().BidsAsks()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Size.Equal(decimal.NewFromInt(1)), "stale buffered diff must not apply")

	// subsequent diffs go straight to the book without another snapshot
	require.NoError(t, m.OnUpdate(context.Background(), diff(101, 102, []model.BookLevel{level(99, 7)}, nil)))
	assert.Equal(t, 1, calls)
	bids, _ = m.Book().BidsAsks()
	assert.True(t, bids[0].Size.Equal(decimal.NewFromInt(7)))
}

func TestMaintainerDrainsPostSnapshotDiffs(t *testing.T) {
	m := NewMaintainer(NewBook(0), func(ctx context.Context) (*model.BookUpdate, error) {
		return &model.BookUpdate{
			Time:   1,
			LastID: 100,
			Bids:   []model.BookLevel{level(99, 1)},
			Asks:   []model.BookLevel{level(101, 1)},
		}, nil
	})

	// the buffered diff is newer than the snapshot and survives the drain
	require.NoError(t, m.OnUpdate(context.Background(), diff(101, 105, []model.BookLevel{level(98, 3)}, nil)))

	bids, _ := m.Book().BidsAsks()
	require.Len(t, bids, 2)
	assert.Equal(t, int64(105), m.Book().LastUpdateID())
}

func TestMaintainerKeepsBufferOnSnapshotFailure(t *testing.T) {
	calls := 0
	m := NewMaintainer(NewBook(0), func(ctx context.Context) (*model.BookUpdate, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("snapshot unavailable")
		}
		return &model.BookUpdate{
			Time:   1,
			LastID: 100,
			Bids:   []model.BookLevel{level(99, 1)},
			Asks:   []model.BookLevel{level(101, 1)},
		}, nil
	})

	err := m.OnUpdate(context.Background(), diff(101, 105, []model.BookLevel{level(98, 3)}, nil))
	assert.Error(t, err)
	assert.False(t, m.Book().Synced())

	// the retry succeeds and both buffered diffs drain in order
	require.NoError(t, m.OnUpdate(context.Background(), diff(106, 110, []model.BookLevel{level(97, 2)}, nil)))
	assert.True(t, m.Book().Synced())
	bids, _ := m.Book().BidsAsks()
	assert.Len(t, bids, 3)
	assert.Equal(t, int64(110), m.Book().LastUpdateID())
}

func TestMaintainerResyncForcesNewSnapshot(t *testing.T) {
	calls := 0
	m := NewMaintainer(NewBook(0), func(ctx context.Context) (*model.BookUpdate, error) {
		calls++
		return &model.BookUpdate{
			Time:   1,
			LastID: int64(100 * calls),
			Bids:   []model.BookLevel{level(99, 1)},
			Asks:   []model.BookLevel{level(101, 1)},
		}, nil
	})

	require.NoError(t, m.OnUpdate(context.Background(), diff(99, 100, nil, nil)))
	require.Equal(t, 1, calls)

	m.Resync()
	assert.False(t, m.Book().Synced())

	require.NoError(t, m.OnUpdate(context.Background(), diff(201, 205, nil, nil)))
	assert.Equal(t, 2, calls)
	assert.True(t, m.Book().Synced())
}
