// Package ops loads and validates the JSON runtime configuration and
// resolves it into the concrete component configs.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tickdb/internal/archive"
	"tickdb/internal/cache"
	"tickdb/internal/exchange/binance"
	"tickdb/internal/market"
	"tickdb/internal/store"
	"tickdb/pkg/conn"
	"tickdb/pkg/exception"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	DataDir string         `json:"dataDir"`
	Env     string         `json:"env"`
	Store   StoreConfig    `json:"store"`
	Markets []MarketConfig `json:"markets"`
	Cache   CacheConfig    `json:"cache"`
	Archive ArchiveConfig  `json:"archive"`
	Profile *ProfileConfig `json:"profile"`
}

// StoreConfig selects the durable store backend.
type StoreConfig struct {
	Driver    string          `json:"driver"` // "sqlite" (default) or "postgres"
	QueueSize int             `json:"queueSize"`
	Postgres  *PostgresConfig `json:"postgres"`
}

// PostgresConfig holds the postgres connection parameters.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// MarketConfig describes one market entry.
type MarketConfig struct {
	Exchange         string `json:"exchange"`
	Category         string `json:"category"`
	Symbol           string `json:"symbol"`
	PriceUnit        string `json:"priceUnit"`
	BookDepth        int    `json:"bookDepth"`
	Testnet          bool   `json:"testnet"`
	APIKey           string `json:"apiKey"`
	MarketOnlyStream bool   `json:"marketOnlyStream"`
}

// CacheConfig tunes the in-memory cache layer.
type CacheConfig struct {
	BaseWindowSec        int64 `json:"baseWindowSec"`
	ReadAheadDays        int64 `json:"readAheadDays"`
	ExpireSpanMultiplier int64 `json:"expireSpanMultiplier"`
}

// ArchiveConfig tunes the archive probe behavior.
type ArchiveConfig struct {
	ProbeRetries    int `json:"probeRetries"`
	ProbeTTLMinutes int `json:"probeTTLMinutes"`
}

// ProfileConfig captures optional continuous-profiling settings.
type ProfileConfig struct {
	PyroscopeAddr string `json:"pyroscopeAddr"`
}

// MarketSpec is one resolved market: the facade config plus the exchange
// client settings needed to build its REST and stream adapters.
type MarketSpec struct {
	Market market.Config
	Rest   binance.RestConfig
	Stream binance.StreamConfig
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	DataDir       string
	Env           string
	Markets       []MarketSpec
	PyroscopeAddr string
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(exception.ErrConfigRead, err.Error()).With("path", path)
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(exception.ErrConfigParse, err.Error()).With("path", path)
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Env == "" {
		cfg.Env = "production"
	}
	if len(cfg.Markets) == 0 {
		return Loaded{}, errors.Wrap(exception.ErrConfigValidate, "no markets configured")
	}

	connOpt, err := resolveConn(cfg.Store)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		DataDir: cfg.DataDir,
		Env:     cfg.Env,
		Markets: make([]MarketSpec, 0, len(cfg.Markets)),
	}
	if cfg.Profile != nil {
		loaded.PyroscopeAddr = cfg.Profile.PyroscopeAddr
	}

	for _, mc := range cfg.Markets {
		spec, err := resolveMarket(cfg, mc, connOpt)
		if err != nil {
			return Loaded{}, err
		}
		loaded.Markets = append(loaded.Markets, spec)
	}
	return loaded, nil
}

func resolveConn(cfg StoreConfig) (conn.Option, error) {
	switch cfg.Driver {
	case "", conn.DriverSQLite:
		return conn.Option{Driver: conn.DriverSQLite}, nil
	case conn.DriverPostgres:
		pg := cfg.Postgres
		if pg == nil {
			return conn.Option{}, errors.Wrap(exception.ErrConfigValidate, "postgres driver needs a postgres block")
		}
		return conn.Option{
			Driver:   conn.DriverPostgres,
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			SSLMode:  pg.SSLMode,
		}, nil
	default:
		return conn.Option{}, errors.Wrap(exception.ErrConfigValidate, "unknown store driver").With("driver", cfg.Driver)
	}
}

func resolveMarket(cfg FileConfig, mc MarketConfig, connOpt conn.Option) (MarketSpec, error) {
	if mc.Exchange == "" || mc.Symbol == "" {
		return MarketSpec{}, errors.Wrap(exception.ErrConfigValidate, "market exchange/symbol is empty")
	}
	if mc.Category == "" {
		mc.Category = "spot"
	}

	priceUnit := decimal.New(1, 0)
	if mc.PriceUnit != "" {
		unit, err := decimal.NewFromString(mc.PriceUnit)
		if err != nil || unit.Sign() <= 0 {
			return MarketSpec{}, errors.Wrap(exception.ErrConfigValidate, "invalid price unit").
				With("symbol", mc.Symbol).
				With("priceUnit", mc.PriceUnit)
		}
		priceUnit = unit
	}

	spec := MarketSpec{
		Market: market.Config{
			Exchange:  mc.Exchange,
			Category:  mc.Category,
			Symbol:    mc.Symbol,
			Env:       cfg.Env,
			DataDir:   cfg.DataDir,
			PriceUnit: priceUnit,
			BookDepth: mc.BookDepth,
			Store: store.Config{
				Conn:      connOpt,
				QueueSize: cfg.Store.QueueSize,
			},
			Cache: cache.Config{
				BaseWindowSec:        cfg.Cache.BaseWindowSec,
				ReadAheadDays:        cfg.Cache.ReadAheadDays,
				ExpireSpanMultiplier: cfg.Cache.ExpireSpanMultiplier,
			},
			Archive: archive.Config{
				ProbeRetries: cfg.Archive.ProbeRetries,
				ProbeTTL:     time.Duration(cfg.Archive.ProbeTTLMinutes) * time.Minute,
			},
		},
		Rest: binance.RestConfig{
			APIKey:  mc.APIKey,
			Testnet: mc.Testnet,
		},
		Stream: binance.StreamConfig{
			MarketOnly: mc.MarketOnlyStream,
		},
	}
	return spec, nil
}
