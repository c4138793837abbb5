// Package exchange defines the capability interfaces the engine depends on.
// The core never touches a concrete exchange type: every venue plugs in one
// REST client and one stream client.
package exchange

import (
	"context"

	"tickdb/internal/model"
)

// RestClient is the per-exchange REST capability.
type RestClient interface {
	// ServerTime returns the exchange clock in microseconds.
	ServerTime(ctx context.Context) (model.MicroSec, error)

	// RecentTrades returns the newest public trades, ascending by time.
	RecentTrades(ctx context.Context, symbol string) ([]model.Trade, error)

	// HistoricalTrades pages older public trades starting at fromID
	// (exclusive when fromID is a known trade), ascending by id.
	HistoricalTrades(ctx context.Context, symbol, fromID string, limit int) ([]model.Trade, error)

	// BookSnapshot returns a full order-book snapshot.
	BookSnapshot(ctx context.Context, symbol string, depth int) (*model.BookUpdate, error)

	// ArchiveDayURL resolves the remote day-file location.
	ArchiveDayURL(symbol string, day model.MicroSec) string
	// ArchiveHasHeader reports whether day files start with a header row.
	ArchiveHasHeader() bool
	// ParseArchiveRow normalizes one exchange-specific csv row to the
	// canonical trade layout.
	ParseArchiveRow(record []string) (model.Trade, error)
}

// StreamClient is the per-exchange streaming capability. Observe emits the
// decoded message union; transport reconnect mechanics live behind it.
type StreamClient interface {
	Start(ctx context.Context) error
	Subscribe(ctx context.Context, symbol string) error
	Observe(ctx context.Context, handler func(model.MarketMessage)) (unsubscribe func())
	Close()
}
