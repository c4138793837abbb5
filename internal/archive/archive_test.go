package archive

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
)

var testDay = model.FloorDay(model.FromTime(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)))

func newTestArchive(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		DataDir:  t.TempDir(),
		Exchange: "binance",
		Category: "spot",
		Symbol:   "BTCUSDT",
	})
	require.NoError(t, err)
	return s
}

func dayTrades(day model.MicroSec, n int) []model.Trade {
	trades := make([]model.Trade, n)
	for i := range trades {
		trades[i] = model.Trade{
			Time:   day + model.MicroSec(i)*model.Minute,
			Side:   enum.OrderSideBuy,
			Price:  decimal.NewFromInt(100 + int64(i)),
			Size:   decimal.NewFromInt(1),
			Status: enum.LogStatusFixArchive,
			ID:     model.TimeString(day + model.MicroSec(i)*model.Minute),
		}
	}
	return trades
}

func TestWriteDayRoundTrip(t *testing.T) {
	s := newTestArchive(t)

	require.NoError(t, s.WriteDay(testDay, dayTrades(testDay, 3)))
	assert.True(t, s.HasLocal(testDay))

	_, _, err := s.Analyze()
	require.NoError(t, err)
	assert.Equal(t, testDay, s.StartTime())
	assert.Equal(t, testDay+model.Day, s.EndTime())

	trades, err := s.Select(testDay, testDay+model.Day)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, enum.LogStatusFixBlockStart, trades[0].Status)
	assert.Equal(t, enum.LogStatusFixArchive, trades[1].Status)
	assert.Equal(t, enum.LogStatusFixBlockEnd, trades[2].Status)
	assert.Equal(t, testDay, trades[0].Time)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestWriteDayFiltersOutOfDayRows(t *testing.T) {
	s := newTestArchive(t)

	trades := dayTrades(testDay, 2)
	trades = append(trades, model.Trade{
		Time:   testDay + model.Day + model.Hour, // next day, must not land in this file
		Side:   enum.OrderSideSell,
		Price:  decimal.NewFromInt(1),
		Size:   decimal.NewFromInt(1),
		Status: enum.LogStatusFixArchive,
		ID:     "stray",
	})
	require.NoError(t, s.WriteDay(testDay, trades))

	got, err := s.readDay(testDay)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAnalyzePrunesBehindGap(t *testing.T) {
	s := newTestArchive(t)

	// D-3, D-1, D: the hole at D-2 strands D-3
	require.NoError(t, s.WriteDay(testDay-3*model.Day, dayTrades(testDay-3*model.Day, 1)))
	require.NoError(t, s.WriteDay(testDay-model.Day, dayTrades(testDay-model.Day, 1)))
	require.NoError(t, s.WriteDay(testDay, dayTrades(testDay, 1)))

	start, end, err := s.Analyze()
	require.NoError(t, err)
	assert.Equal(t, testDay-model.Day, start)
	assert.Equal(t, testDay+model.Day, end)

	assert.False(t, s.HasLocal(testDay-3*model.Day), "stranded day file should be pruned")
	assert.True(t, s.HasLocal(testDay-model.Day))
	assert.True(t, s.HasLocal(testDay))
}

func TestAnalyzeEmptyDir(t *testing.T) {
	s := newTestArchive(t)
	start, end, err := s.Analyze()
	require.NoError(t, err)
	assert.Equal(t, model.MicroSec(0), start)
	assert.Equal(t, model.MicroSec(0), end)
}

func TestSelectClampsToContiguousRange(t *testing.T) {
	s := newTestArchive(t)

	require.NoError(t, s.WriteDay(testDay, dayTrades(testDay, 4)))
	_, _, err := s.Analyze()
	require.NoError(t, err)

	// sub-day bounds are honored
	trades, err := s.Select(testDay+model.Minute, testDay+3*model.Minute)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// bounds outside the range clamp instead of failing
	trades, err = s.Select(0, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 4)
}

func TestSingleRowDayKeepsEndMarker(t *testing.T) {
	s := newTestArchive(t)
	require.NoError(t, s.WriteDay(testDay, dayTrades(testDay, 1)))
	_, _, err := s.Analyze()
	require.NoError(t, err)

	// reconciliation anchors on block ends, so a lone row carries the end
	// marker rather than the start one
	trades, err := s.Select(testDay, testDay+model.Day)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, enum.LogStatusFixBlockEnd, trades[0].Status)
}

func TestWriteDayLeavesNoTempFileBehind(t *testing.T) {
	s := newTestArchive(t)
	require.NoError(t, s.WriteDay(testDay, dayTrades(testDay, 1)))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
