package store

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
	"tickdb/pkg/conn"
	"tickdb/pkg/exception"
)

// Config describes one market's durable store.
type Config struct {
	Exchange string
	Category string
	Symbol   string
	Env      string // "production" or "test"

	Conn      conn.Option
	QueueSize int // writer queue capacity
}

func (c Config) withDefaults() Config {
	if c.Env == "" {
		c.Env = "production"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

func (c Config) Validate() error {
	if c.Exchange == "" {
		return errors.Wrap(exception.ErrConfigValidate, "exchange is empty")
	}
	if c.Category == "" {
		return errors.Wrap(exception.ErrConfigValidate, "category is empty")
	}
	if c.Symbol == "" {
		return errors.Wrap(exception.ErrConfigValidate, "symbol is empty")
	}
	if c.Env != "production" && c.Env != "test" {
		return errors.Wrap(exception.ErrConfigValidate, "env must be production or test").With("env", c.Env)
	}
	return nil
}

// tradeRow is the persisted layout: one trades table per market store,
// upserted by id, indexed on time_stamp.
type tradeRow struct {
	TimeStamp int64   `gorm:"column:time_stamp;index:idx_trades_time_stamp"`
	Action    string  `gorm:"column:action"`
	Price     float64 `gorm:"column:price"`
	Size      float64 `gorm:"column:size"`
	Status    string  `gorm:"column:status"`
	ID        string  `gorm:"column:id;primaryKey"`
}

func (tradeRow) TableName() string {
	return "trades"
}

func rowFromTrade(t model.Trade) tradeRow {
	return tradeRow{
		TimeStamp: t.Time,
		Action:    t.Side.String(),
		Price:     t.Price.InexactFloat64(),
		Size:      t.Size.InexactFloat64(),
		Status:    t.Status.String(),
		ID:        t.ID,
	}
}

func (r tradeRow) trade() model.Trade {
	return model.Trade{
		Time:   r.TimeStamp,
		Side:   enum.ParseOrderSide(r.Action),
		Price:  decimal.NewFromFloat(r.Price),
		Size:   decimal.NewFromFloat(r.Size),
		Status: enum.ParseLogStatus(r.Status),
		ID:     r.ID,
	}
}

// Store is the durable per-market trade store. One instance per
// (exchange, category, symbol, env); writes go through InsertRecords or the
// background writer obtained from OpenWriter.
type Store struct {
	cfg    Config
	client *conn.Client
	db     *gorm.DB

	writerMu sync.Mutex // guards create-if-absent of the writer
	writer   *Writer
}

// Open connects the store and ensures its schema.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := conn.New(cfg.Conn)
	if err != nil {
		return nil, errors.Wrap(exception.ErrStoreOpen, err.Error()).With("symbol", cfg.Symbol)
	}

	if err := client.DB().AutoMigrate(&tradeRow{}); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(exception.ErrStoreOpen, err.Error()).With("step", "migrate")
	}

	return &Store{cfg: cfg, client: client, db: client.DB()}, nil
}

// Close shuts down the writer (if any) and the connection pool.
func (s *Store) Close() error {
	s.writerMu.Lock()
	w := s.writer
	s.writer = nil
	s.writerMu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			logs.Errorf("store %s: writer close: %v", s.cfg.Symbol, err)
		}
	}
	return s.client.Close()
}

// ExpireControlMessage builds the two-record delete directive over
// [start, end). Force also deletes fixed rows.
func ExpireControlMessage(start, end model.MicroSec, force bool, message string) []model.Trade {
	status := enum.LogStatusExpire
	if force {
		status = enum.LogStatusExpireForce
	}
	if start < 0 {
		logs.Warnf("expire control message with negative start %d", start)
		start = 0
	}
	return []model.Trade{
		model.NewTrade(start, enum.OrderSideUnknown, decimal.Zero, decimal.Zero, status, message+" start"),
		model.NewTrade(end, enum.OrderSideUnknown, decimal.Zero, decimal.Zero, status, message+" end"),
	}
}

// InsertRecords idempotently upserts a batch by id. A two-record batch with
// an expire status is interpreted as a delete directive instead of data.
// Records with unknown side or status are skipped and logged, never stored.
func (s *Store) InsertRecords(trades []model.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	if trades[0].Time > trades[len(trades)-1].Time {
		logs.Errorf("store %s: insert batch out of order: %s > %s",
			s.cfg.Symbol, model.TimeString(trades[0].Time), model.TimeString(trades[len(trades)-1].Time))
	}

	if trades[0].Status.IsExpire() && len(trades) == 2 {
		return s.expire(trades[0].Time, trades[1].Time, trades[0].Status == enum.LogStatusExpireForce)
	}

	rows := make([]tradeRow, 0, len(trades))
	for _, t := range trades {
		if t.Status == enum.LogStatusUnknown || t.Side == enum.OrderSideUnknown {
			logs.Errorf("store %s: invalid record ignored: %s", s.cfg.Symbol, t)
			continue
		}
		rows = append(rows, rowFromTrade(t))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, errors.Wrap(exception.ErrStoreWrite, err.Error()).With("count", len(rows))
	}
	return int64(len(rows)), nil
}

// expire deletes rows in [start, end). Non-force removes only unfixed rows.
func (s *Store) expire(start, end model.MicroSec, force bool) (int64, error) {
	q := s.db.Where("? <= time_stamp AND time_stamp < ?", start, end)
	if !force {
		q = q.Where("status IN ?", []string{
			enum.LogStatusUnfixed.String(),
			enum.LogStatusUnfixedStart.String(),
		})
	}
	res := q.Delete(&tradeRow{})
	if res.Error != nil {
		return 0, errors.Wrap(exception.ErrStoreWrite, res.Error.Error()).
			With("start", model.TimeString(start)).
			With("end", model.TimeString(end)).
			With("force", force)
	}
	logs.Infof("store %s: expired %d rows in [%s, %s) force=%v",
		s.cfg.Symbol, res.RowsAffected, model.TimeString(start), model.TimeString(end), force)
	return res.RowsAffected, nil
}

// SelectTrades returns trades in [start, end) ordered by time.
// start=0 and end=0 selects everything; end=0 leaves the range open.
func (s *Store) SelectTrades(start, end model.MicroSec) ([]model.Trade, error) {
	var rows []tradeRow
	q := s.db.Order("time_stamp ASC")
	if start != 0 || end != 0 {
		if end == 0 {
			q = q.Where("? <= time_stamp", start)
		} else {
			q = q.Where("? <= time_stamp AND time_stamp < ?", start, end)
		}
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(exception.ErrStoreQuery, err.Error()).With("query", "select trades")
	}

	trades := make([]model.Trade, len(rows))
	for i, r := range rows {
		trades[i] = r.trade()
	}
	return trades, nil
}

// ForEach streams trades in [start, end) to fn in time order, batched to
// bound memory. fn returning false stops the scan.
func (s *Store) ForEach(start, end model.MicroSec, fn func(model.Trade) bool) error {
	q := s.db.Order("time_stamp ASC")
	if start != 0 || end != 0 {
		if end == 0 {
			q = q.Where("? <= time_stamp", start)
		} else {
			q = q.Where("? <= time_stamp AND time_stamp < ?", start, end)
		}
	}

	stop := false
	var batch []tradeRow
	err := q.FindInBatches(&batch, 1000, func(_ *gorm.DB, _ int) error {
		for _, r := range batch {
			if !fn(r.trade()) {
				stop = true
				return errStopIteration
			}
		}
		return nil
	}).Error
	if err != nil && !stop {
		return errors.Wrap(exception.ErrStoreQuery, err.Error()).With("query", "foreach trades")
	}
	return nil
}

var errStopIteration = errors.New("stop iteration")

// StartTime returns the earliest time_stamp after since, 0 when empty.
func (s *Store) StartTime(since model.MicroSec) model.MicroSec {
	var ts int64
	err := s.db.Model(&tradeRow{}).
		Select("time_stamp").
		Where("? <= time_stamp", since).
		Order("time_stamp ASC").
		Limit(1).
		Scan(&ts).Error
	if err != nil {
		logs.Errorf("store %s: start time: %v", s.cfg.Symbol, err)
		return 0
	}
	return ts
}

// EndTime returns the latest time_stamp after searchFrom, 0 when empty.
func (s *Store) EndTime(searchFrom model.MicroSec) model.MicroSec {
	var ts int64
	err := s.db.Model(&tradeRow{}).
		Select("time_stamp").
		Where("? <= time_stamp", searchFrom).
		Order("time_stamp DESC").
		Limit(1).
		Scan(&ts).Error
	if err != nil {
		logs.Errorf("store %s: end time: %v", s.cfg.Symbol, err)
		return 0
	}
	return ts
}

var fixEndStatuses = []string{
	enum.LogStatusFixBlockEnd.String(),
	enum.LogStatusFixRestEnd.String(),
}

var fixAllStatuses = []string{
	enum.LogStatusFixBlockStart.String(),
	enum.LogStatusFixArchive.String(),
	enum.LogStatusFixBlockEnd.String(),
	enum.LogStatusFixRestStart.String(),
	enum.LogStatusFixRestBlock.String(),
	enum.LogStatusFixRestEnd.String(),
}

// LatestFixTrade returns the newest confirmed record at or after since.
// Normally only block-end markers qualify (a block end guarantees the block
// before it is complete); force accepts any fixed record. Returns nil when
// none exists in the window.
func (s *Store) LatestFixTrade(since model.MicroSec, force bool) (*model.Trade, error) {
	statuses := fixEndStatuses
	if force {
		statuses = fixAllStatuses
	}

	var rows []tradeRow
	err := s.db.
		Where("? <= time_stamp AND status IN ?", since, statuses).
		Order("time_stamp DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(exception.ErrStoreQuery, err.Error()).With("query", "latest fix trade")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[0].trade()
	return &t, nil
}

// FirstUnfixedTrade returns the oldest live record at or after `after`,
// excluding excludeID. Returns nil when none exists.
func (s *Store) FirstUnfixedTrade(after model.MicroSec, excludeID string) (*model.Trade, error) {
	q := s.db.
		Where("? <= time_stamp AND status IN ?", after, []string{
			enum.LogStatusUnfixed.String(),
			enum.LogStatusUnfixedStart.String(),
		}).
		Order("time_stamp ASC").
		Limit(1)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var rows []tradeRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(exception.ErrStoreQuery, err.Error()).With("query", "first unfixed trade")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[0].trade()
	return &t, nil
}

// LastStreamStart returns the newest stream (re)start marker, nil when none.
func (s *Store) LastStreamStart() (*model.Trade, error) {
	var rows []tradeRow
	err := s.db.
		Where("status = ?", enum.LogStatusUnfixedStart.String()).
		Order("time_stamp DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(exception.ErrStoreQuery, err.Error()).With("query", "last stream start")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[0].trade()
	return &t, nil
}

// Count returns the number of stored rows.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&tradeRow{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(exception.ErrStoreQuery, err.Error()).With("query", "count trades")
	}
	return n, nil
}

// Vacuum reclaims storage after large expirations.
func (s *Store) Vacuum() error {
	if err := s.db.Exec("VACUUM").Error; err != nil {
		return errors.Wrap(err, "vacuum")
	}
	return nil
}

// Info returns a one-line human readable summary.
func (s *Store) Info() string {
	count, err := s.Count()
	if err != nil {
		return fmt.Sprintf("%s/%s/%s: unavailable (%v)", s.cfg.Exchange, s.cfg.Category, s.cfg.Symbol, err)
	}
	return fmt.Sprintf("%s/%s/%s: %d rows in [%s, %s]",
		s.cfg.Exchange, s.cfg.Category, s.cfg.Symbol, count,
		model.TimeString(s.StartTime(0)), model.TimeString(s.EndTime(0)))
}
