package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
	"tickdb/pkg/exception"
)

// Config describes one market's archive directory.
type Config struct {
	DataDir  string
	Exchange string
	Category string
	Symbol   string

	ProbeRetries int           // latest-day probe attempts, stepping back a day each time
	ProbeTTL     time.Duration // how long a probe result is trusted
}

func (c Config) withDefaults() Config {
	if c.ProbeRetries <= 0 {
		c.ProbeRetries = 5
	}
	if c.ProbeTTL <= 0 {
		c.ProbeTTL = 60 * time.Minute
	}
	return c
}

// archiveRow is the canonical columnar day-file layout.
type archiveRow struct {
	Timestamp int64   `parquet:"timestamp"`
	OrderSide string  `parquet:"order_side"`
	Price     float64 `parquet:"price"`
	Size      float64 `parquet:"size"`
	ID        string  `parquet:"id,dict"`
}

// Store holds immutable day-partitioned trade blocks. Day files are created
// once by download and never mutated; Analyze prunes fragments stranded
// behind a gap.
type Store struct {
	cfg Config
	dir string

	mu        sync.Mutex
	startTime model.MicroSec
	endTime   model.MicroSec

	latestDay    model.MicroSec
	latestProbed time.Time
}

// New opens (and creates if needed) the archive directory and analyzes the
// locally present day files.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.Symbol == "" {
		return nil, errors.Wrap(exception.ErrConfigValidate, "archive symbol is empty")
	}

	dir := filepath.Join(cfg.DataDir, "ARCHIVE", cfg.Exchange, cfg.Category, cfg.Symbol)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create archive dir").With("dir", dir)
	}

	s := &Store{cfg: cfg, dir: dir}
	if _, _, err := s.Analyze(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) dayPath(day model.MicroSec) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.parquet", strings.ToUpper(s.cfg.Symbol), model.DateString(day)))
}

// HasLocal reports whether the day-partition file for day exists.
func (s *Store) HasLocal(day model.MicroSec) bool {
	_, err := os.Stat(s.dayPath(model.FloorDay(day)))
	return err == nil
}

// StartTime returns the inclusive start of the contiguous archive range,
// 0 when empty.
func (s *Store) StartTime() model.MicroSec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// EndTime returns the exclusive end of the contiguous archive range,
// 0 when empty.
func (s *Store) EndTime() model.MicroSec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

// listDays returns the locally present day-partitions, ascending.
func (s *Store) listDays() ([]model.MicroSec, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("%s-*.parquet", strings.ToUpper(s.cfg.Symbol)))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "glob archive days")
	}

	prefix := strings.ToUpper(s.cfg.Symbol) + "-"
	var days []model.MicroSec
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".parquet")
		dateStr := strings.TrimPrefix(name, prefix)
		t, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			logs.Warnf("archive %s: unparsable day file ignored: %s", s.cfg.Symbol, m)
			continue
		}
		days = append(days, model.FromTime(t))
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// Analyze walks the local day files from newest to oldest. The newest file
// sets the end of the range; each file exactly one day older extends the
// start. The first hole ends the walk, and every file at or behind the hole
// is deleted: the archive never serves from behind a gap.
func (s *Store) Analyze() (start, end model.MicroSec, err error) {
	days, err := s.listDays()
	if err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(days) == 0 {
		s.startTime, s.endTime = 0, 0
		return 0, 0, nil
	}

	end = days[len(days)-1] + model.Day
	start = days[len(days)-1]
	gapAt := -1
	for i := len(days) - 2; 0 <= i; i-- {
		if days[i] == start-model.Day {
			start = days[i]
			continue
		}
		gapAt = i
		break
	}

	if gapAt >= 0 {
		logs.Warnf("archive %s: gap detected after %s, pruning %d stale day file(s)",
			s.cfg.Symbol, model.DateString(days[gapAt]), gapAt+1)
		for i := 0; i <= gapAt; i++ {
			path := s.dayPath(days[i])
			if rmErr := os.Remove(path); rmErr != nil {
				logs.Errorf("archive %s: prune %s: %v", s.cfg.Symbol, path, rmErr)
			}
		}
	}

	s.startTime, s.endTime = start, end
	return start, end, nil
}

// WriteDay creates the immutable day-partition for day. The write goes to a
// temp file first so a failed download never leaves a truncated block.
func (s *Store) WriteDay(day model.MicroSec, trades []model.Trade) error {
	day = model.FloorDay(day)
	rows := make([]archiveRow, 0, len(trades))
	for _, t := range trades {
		if t.Time < day || day+model.Day <= t.Time {
			continue
		}
		rows = append(rows, archiveRow{
			Timestamp: t.Time,
			OrderSide: t.Side.String(),
			Price:     t.Price.InexactFloat64(),
			Size:      t.Size.InexactFloat64(),
			ID:        t.ID,
		})
	}

	path := s.dayPath(day)
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "write day file").With("path", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename day file").With("path", path)
	}
	return nil
}

// readDay loads one day block, tagging rows with the archive statuses:
// first row FixBlockStart, last row FixBlockEnd, the rest FixArchiveBlock.
// A one-row block keeps only the end marker: reconciliation anchors on
// block ends, and a block without one is never treated as complete.
func (s *Store) readDay(day model.MicroSec) ([]model.Trade, error) {
	path := s.dayPath(day)
	rows, err := parquet.ReadFile[archiveRow](path)
	if err != nil {
		return nil, errors.Wrap(err, "read day file").With("path", path)
	}

	trades := make([]model.Trade, len(rows))
	for i, r := range rows {
		status := enum.LogStatusFixArchive
		switch i {
		case len(rows) - 1:
			status = enum.LogStatusFixBlockEnd
		case 0:
			status = enum.LogStatusFixBlockStart
		}
		trades[i] = model.Trade{
			Time:   r.Timestamp,
			Side:   enum.ParseOrderSide(r.OrderSide),
			Price:  decimal.NewFromFloat(r.Price),
			Size:   decimal.NewFromFloat(r.Size),
			Status: status,
			ID:     r.ID,
		}
	}
	return trades, nil
}

// clamp restricts [start, end) to the contiguous archive range. end=0 means
// "to the archive end".
func (s *Store) clamp(start, end model.MicroSec) (model.MicroSec, model.MicroSec) {
	s.mu.Lock()
	archStart, archEnd := s.startTime, s.endTime
	s.mu.Unlock()

	if archStart == 0 && archEnd == 0 {
		return 0, 0
	}
	if start < archStart {
		start = archStart
	}
	if end == 0 || archEnd < end {
		end = archEnd
	}
	return start, end
}

// ForEach streams archived trades in [start, end) to fn in time order,
// one day block at a time. fn returning false stops the scan.
func (s *Store) ForEach(start, end model.MicroSec, fn func(model.Trade) bool) error {
	start, end = s.clamp(start, end)
	if end <= start {
		return nil
	}

	for day := model.FloorDay(start); day < end; day += model.Day {
		if !s.HasLocal(day) {
			continue
		}
		trades, err := s.readDay(day)
		if err != nil {
			return err
		}
		for _, t := range trades {
			if t.Time < start || end <= t.Time {
				continue
			}
			if !fn(t) {
				return nil
			}
		}
	}
	return nil
}

// Select returns archived trades in [start, end), clamped to the local
// contiguous range.
func (s *Store) Select(start, end model.MicroSec) ([]model.Trade, error) {
	var trades []model.Trade
	err := s.ForEach(start, end, func(t model.Trade) bool {
		trades = append(trades, t)
		return true
	})
	return trades, err
}
