package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
	"tickdb/pkg/exception"
)

const (
	defaultBaseURL        = "https://api.binance.com"
	defaultTestnetBaseURL = "https://testnet.binance.vision"
	defaultArchiveBaseURL = "https://data.binance.vision"

	recentTradesLimit = 1000
)

// RestConfig configures the public REST adapter.
type RestConfig struct {
	BaseURL        string
	ArchiveBaseURL string
	APIKey         string // only needed for /historicalTrades
	Testnet        bool
}

func (c RestConfig) withDefaults() RestConfig {
	if c.BaseURL == "" {
		if c.Testnet {
			c.BaseURL = defaultTestnetBaseURL
		} else {
			c.BaseURL = defaultBaseURL
		}
	}
	if c.ArchiveBaseURL == "" {
		c.ArchiveBaseURL = defaultArchiveBaseURL
	}
	return c
}

// Rest implements the exchange REST capability for binance spot.
type Rest struct {
	cfg    RestConfig
	client *resty.Client
}

func NewRest(cfg RestConfig) *Rest {
	cfg = cfg.withDefaults()
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2)
	if cfg.APIKey != "" {
		client.SetHeader("X-MBX-APIKEY", cfg.APIKey)
	}
	return &Rest{cfg: cfg, client: client}
}

func (r *Rest) ServerTime(ctx context.Context) (model.MicroSec, error) {
	var body struct {
		ServerTime int64 `json:"serverTime"`
	}
	resp, err := r.client.R().SetContext(ctx).SetResult(&body).Get("/api/v3/time")
	if err != nil {
		return 0, errors.Wrap(err, "server time")
	}
	if !resp.IsSuccess() {
		return 0, errors.Wrap(exception.ErrRestRequest, resp.Status()).With("endpoint", "/api/v3/time")
	}
	return body.ServerTime * model.MilliSecond, nil
}

func (r *Rest) RecentTrades(ctx context.Context, symbol string) ([]model.Trade, error) {
	var body []restTrade
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": strings.ToUpper(symbol),
			"limit":  strconv.Itoa(recentTradesLimit),
		}).
		SetResult(&body).
		Get("/api/v3/trades")
	if err != nil {
		return nil, errors.Wrap(err, "recent trades").With("symbol", symbol)
	}
	if !resp.IsSuccess() {
		return nil, errors.Wrap(exception.ErrRestRequest, resp.Status()).With("endpoint", "/api/v3/trades")
	}
	return convertTrades(body), nil
}

func (r *Rest) HistoricalTrades(ctx context.Context, symbol, fromID string, limit int) ([]model.Trade, error) {
	if limit <= 0 || recentTradesLimit < limit {
		limit = recentTradesLimit
	}
	params := map[string]string{
		"symbol": strings.ToUpper(symbol),
		"limit":  strconv.Itoa(limit),
	}
	if fromID != "" {
		from, err := strconv.ParseInt(fromID, 10, 64)
		if err != nil {
			return nil, errors.Wrap(exception.ErrInvalidArgument, "non-numeric trade id").With("from_id", fromID)
		}
		// fromID is the last known trade: page from the next one.
		params["fromId"] = strconv.FormatInt(from+1, 10)
	}

	var body []restTrade
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get("/api/v3/historicalTrades")
	if err != nil {
		return nil, errors.Wrap(err, "historical trades").With("symbol", symbol).With("from_id", fromID)
	}
	if !resp.IsSuccess() {
		return nil, errors.Wrap(exception.ErrRestRequest, resp.Status()).With("endpoint", "/api/v3/historicalTrades")
	}
	return convertTrades(body), nil
}

func (r *Rest) BookSnapshot(ctx context.Context, symbol string, depth int) (*model.BookUpdate, error) {
	if depth <= 0 {
		depth = 1000
	}
	var body restDepth
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": strings.ToUpper(symbol),
			"limit":  strconv.Itoa(depth),
		}).
		SetResult(&body).
		Get("/api/v3/depth")
	if err != nil {
		return nil, errors.Wrap(err, "book snapshot").With("symbol", symbol)
	}
	if !resp.IsSuccess() {
		return nil, errors.Wrap(exception.ErrRestRequest, resp.Status()).With("endpoint", "/api/v3/depth")
	}
	return body.update(model.Now())
}

// ArchiveDayURL resolves the public daily trades dump for one day.
func (r *Rest) ArchiveDayURL(symbol string, day model.MicroSec) string {
	sym := strings.ToUpper(symbol)
	return fmt.Sprintf("%s/data/spot/daily/trades/%s/%s-trades-%s.zip",
		r.cfg.ArchiveBaseURL, sym, sym, model.DateString(day))
}

func (r *Rest) ArchiveHasHeader() bool {
	return false
}

// ParseArchiveRow normalizes one dump row:
// id, price, qty, quote_qty, time, is_buyer_maker, is_best_match
func (r *Rest) ParseArchiveRow(record []string) (model.Trade, error) {
	if len(record) < 6 {
		return model.Trade{}, errors.Wrap(exception.ErrRecordRejected, "short archive row").With("fields", len(record))
	}

	price, err := decimal.NewFromString(record[1])
	if err != nil {
		return model.Trade{}, errors.Wrap(exception.ErrRecordRejected, err.Error()).With("raw", record[1])
	}
	size, err := decimal.NewFromString(record[2])
	if err != nil {
		return model.Trade{}, errors.Wrap(exception.ErrRecordRejected, err.Error()).With("raw", record[2])
	}
	ts, err := strconv.ParseInt(record[4], 10, 64)
	if err != nil {
		return model.Trade{}, errors.Wrap(exception.ErrRecordRejected, err.Error()).With("raw", record[4])
	}
	// Older dumps carry milliseconds, newer ones microseconds.
	if ts < 1e14 {
		ts *= 1000
	}
	isBuyerMaker := record[5] == "true" || record[5] == "True"

	return model.Trade{
		Time:   ts,
		Side:   takerSide(isBuyerMaker),
		Price:  price,
		Size:   size,
		Status: enum.LogStatusFixArchive,
		ID:     record[0],
	}, nil
}

func convertTrades(rows []restTrade) []model.Trade {
	trades := make([]model.Trade, len(rows))
	for i, row := range rows {
		trades[i] = row.trade()
	}
	return trades
}
