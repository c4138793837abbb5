// Package market ties one market's store, archive, cache, reconciler and
// stream together behind a single facade, and owns the registry mapping
// markets to their store handles.
package market

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickdb/internal/archive"
	"tickdb/internal/bus"
	"tickdb/internal/cache"
	"tickdb/internal/exchange"
	"tickdb/internal/model"
	"tickdb/internal/model/enum"
	"tickdb/internal/orderbook"
	"tickdb/internal/reconcile"
	"tickdb/internal/store"
	"tickdb/internal/stream"
	"tickdb/pkg/conn"
	"tickdb/pkg/exception"
)

// Config describes one market instance.
type Config struct {
	Exchange  string
	Category  string
	Symbol    string
	Env       string // "production" or "test"
	DataDir   string
	PriceUnit decimal.Decimal
	BookDepth int

	Store   store.Config
	Cache   cache.Config
	Archive archive.Config
}

func (c Config) withDefaults() Config {
	if c.Env == "" {
		c.Env = "production"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.PriceUnit.Sign() <= 0 {
		c.PriceUnit = decimal.New(1, 0)
	}
	if c.BookDepth <= 0 {
		c.BookDepth = 1000
	}
	return c
}

// Market is the per-market facade. Cache-backed queries are serialized by
// an internal mutex so hosts may call them from multiple goroutines.
type Market struct {
	cfg  Config
	rest exchange.RestClient

	st         *store.Store
	arch       *archive.Store
	downloader *archive.Downloader
	rec        *reconcile.Reconciler
	book       *orderbook.Book
	hub        *bus.Hub
	orch       *stream.Orchestrator

	cacheMu sync.Mutex
	cache   *cache.Cache
}

// Open builds a market from its collaborators. The durable store lands
// under {dataDir}/DB, the archive under {dataDir}/ARCHIVE.
func Open(cfg Config, rest exchange.RestClient, streamer exchange.StreamClient, hub *bus.Hub) (*Market, error) {
	cfg = cfg.withDefaults()
	if cfg.Exchange == "" || cfg.Symbol == "" {
		return nil, errors.Wrap(exception.ErrConfigValidate, "market exchange/symbol is empty")
	}

	storeCfg := cfg.Store
	storeCfg.Exchange = cfg.Exchange
	storeCfg.Category = cfg.Category
	storeCfg.Symbol = cfg.Symbol
	storeCfg.Env = cfg.Env
	if storeCfg.Conn.Driver == "" || storeCfg.Conn.Driver == conn.DriverSQLite {
		if storeCfg.Conn.Path == "" {
			storeCfg.Conn.Path = filepath.Join(cfg.DataDir, "DB", cfg.Exchange, cfg.Category,
				fmt.Sprintf("%s-%s.db", cfg.Symbol, cfg.Env))
		}
	}

	st, err := store.Open(storeCfg)
	if err != nil {
		return nil, err
	}

	archCfg := cfg.Archive
	archCfg.DataDir = cfg.DataDir
	archCfg.Exchange = cfg.Exchange
	archCfg.Category = cfg.Category
	archCfg.Symbol = cfg.Symbol
	arch, err := archive.New(archCfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	m := &Market{
		cfg:        cfg,
		rest:       rest,
		st:         st,
		arch:       arch,
		downloader: archive.NewDownloader(arch, rest),
		cache:      cache.New(cfg.Cache, st, arch),
		rec:        reconcile.New(st, rest, cfg.Symbol),
		book:       orderbook.NewBook(cfg.BookDepth),
		hub:        hub,
	}
	m.orch = stream.New(stream.Config{
		Exchange:  cfg.Exchange,
		Category:  cfg.Category,
		Symbol:    cfg.Symbol,
		BookDepth: cfg.BookDepth,
	}, st, rest, streamer, hub, m.book)

	return m, nil
}

// Path is the registry key for this market.
func (m *Market) Path() string {
	return Path(m.cfg.Exchange, m.cfg.Category, m.cfg.Symbol, m.cfg.Env)
}

// Download fetches up to ndays of archive day files, then issues a forced
// expire so the durable store drops everything the archive now supersedes.
func (m *Market) Download(ctx context.Context, ndays int, force, verbose bool) (int64, error) {
	n, err := m.downloader.Download(ctx, ndays, force, verbose)
	if err != nil {
		return n, err
	}

	if archEnd := m.arch.EndTime(); archEnd != 0 {
		expire := store.ExpireControlMessage(0, archEnd, true, "archive supersedes")
		if _, err := m.st.InsertRecords(expire); err != nil {
			return n, err
		}
	}
	return n, nil
}

// DownloadLatest snapshots the most recent public trades over REST, expires
// the volatile rows they cover and stores them as a fresh live block.
func (m *Market) DownloadLatest(ctx context.Context, verbose bool) (int64, error) {
	trades, err := m.rest.RecentTrades(ctx, m.cfg.Symbol)
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, nil
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Time < trades[j].Time })
	return m.storeLatest(trades, verbose)
}

// storeLatest marks the batch as a fresh live block: first record is the
// stream-start marker, and a non-force expire clears the rows it replaces.
func (m *Market) storeLatest(trades []model.Trade, verbose bool) (int64, error) {
	for i := range trades {
		trades[i].Status = enum.LogStatusUnfixed
	}
	trades[0].Status = enum.LogStatusUnfixedStart
	expire := store.ExpireControlMessage(trades[0].Time, trades[len(trades)-1].Time+1, false, "download latest")
	if _, err := m.st.InsertRecords(expire); err != nil {
		return 0, err
	}
	n, err := m.st.InsertRecords(trades)
	if err != nil {
		return 0, err
	}
	if verbose {
		logs.Infof("market %s: stored %d latest trade(s)", m.cfg.Symbol, n)
	}
	return n, nil
}

// DownloadGap backfills the range between the newest confirmed record and
// the first live record after it.
func (m *Market) DownloadGap(ctx context.Context, force, verbose bool) (int64, error) {
	return m.rec.DownloadGap(ctx, force, verbose)
}

// FindLatestGap exposes the reconciliation boundary.
func (m *Market) FindLatestGap(force bool) (fix, unfix *model.Trade, err error) {
	return m.rec.FindLatestGap(force)
}

// FindGaps lists missing time ranges inside the durable store.
func (m *Market) FindGaps(since, allowSlack model.MicroSec) ([]model.TimeChunk, error) {
	return m.st.SelectGapChunks(since, 0, allowSlack)
}

func (m *Market) Ohlcv(start, end model.MicroSec, windowSec int64) ([]cache.FlatBar, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cache.Ohlcv(start, end, windowSec)
}

func (m *Market) Ohlcvv(start, end model.MicroSec, windowSec int64) ([]cache.Bar, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cache.Ohlcvv(start, end, windowSec)
}

func (m *Market) ValueAtPrice(start, end model.MicroSec, priceUnit decimal.Decimal) ([]cache.VapRow, error) {
	if priceUnit.Sign() <= 0 {
		priceUnit = m.cfg.PriceUnit
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cache.ValueAtPrice(start, end, priceUnit)
}

func (m *Market) SelectTrades(start, end model.MicroSec) ([]model.Trade, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cache.SelectTrades(start, end)
}

// ExpireData removes volatile rows older than before.
func (m *Market) ExpireData(before model.MicroSec) error {
	_, err := m.st.InsertRecords(store.ExpireControlMessage(0, before, false, "manual expire"))
	return err
}

func (m *Market) Vacuum() error {
	return m.st.Vacuum()
}

// Info summarizes the market's persisted and cached state.
func (m *Market) Info() string {
	m.cacheMu.Lock()
	cacheInfo := m.cache.Info()
	m.cacheMu.Unlock()
	return fmt.Sprintf("%s | archive [%s, %s) | %s",
		m.st.Info(),
		model.DateString(m.arch.StartTime()), model.DateString(m.arch.EndTime()),
		cacheInfo)
}

// StartMarketStream starts the background ingestion task. Idempotent.
func (m *Market) StartMarketStream(ctx context.Context) error {
	return m.orch.Start(ctx)
}

// StopMarketStream detaches from the live feed.
func (m *Market) StopMarketStream() {
	m.orch.Stop()
}

// StreamRunning reports whether the ingestion task is active.
func (m *Market) StreamRunning() bool {
	return m.orch.Running()
}

// Channel subscribes to this market's live messages on the broadcast hub.
func (m *Market) Channel() (uuid.UUID, <-chan model.MarketMessage, func()) {
	return m.hub.Subscribe(m.cfg.Exchange, m.cfg.Category, m.cfg.Symbol)
}

// Book returns the live order book for concurrent readers.
func (m *Market) Book() *orderbook.Book {
	return m.book
}

// Store exposes the durable store for direct maintenance paths.
func (m *Market) Store() *store.Store {
	return m.st
}

// Archive exposes the archive store.
func (m *Market) Archive() *archive.Store {
	return m.arch
}

// Close stops the stream task and shuts down the store.
func (m *Market) Close() error {
	m.orch.Stop()
	return m.st.Close()
}
