package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickdb/pkg/conn"
	"tickdb/pkg/exception"
)

func writeConfig(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	return path
}

func TestLoadResolvesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"markets": [
			{"exchange": "binance", "symbol": "BTCUSDT"}
		]
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data", loaded.DataDir)
	assert.Equal(t, "production", loaded.Env)
	assert.Empty(t, loaded.PyroscopeAddr)

	require.Len(t, loaded.Markets, 1)
	m := loaded.Markets[0].Market
	assert.Equal(t, "binance", m.Exchange)
	assert.Equal(t, "spot", m.Category)
	assert.Equal(t, "BTCUSDT", m.Symbol)
	assert.Equal(t, "production", m.Env)
	assert.True(t, m.PriceUnit.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, conn.DriverSQLite, m.Store.Conn.Driver)
}

func TestLoadResolvesFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"dataDir": "/var/lib/tickdb",
		"env": "test",
		"store": {
			"driver": "postgres",
			"queueSize": 512,
			"postgres": {
				"host": "db.local",
				"port": 5433,
				"user": "tick",
				"password": "secret",
				"database": "trades",
				"sslMode": "disable"
			}
		},
		"markets": [
			{
				"exchange": "binance",
				"category": "spot",
				"symbol": "ETHUSDT",
				"priceUnit": "0.5",
				"bookDepth": 500,
				"testnet": true,
				"apiKey": "k",
				"marketOnlyStream": true
			}
		],
		"cache": {"baseWindowSec": 30, "readAheadDays": 2, "expireSpanMultiplier": 3},
		"archive": {"probeRetries": 7, "probeTTLMinutes": 15},
		"profile": {"pyroscopeAddr": "http://localhost:4040"}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4040", loaded.PyroscopeAddr)

	spec := loaded.Markets[0]
	assert.Equal(t, "test", spec.Market.Env)
	assert.Equal(t, "/var/lib/tickdb", spec.Market.DataDir)
	assert.True(t, spec.Market.PriceUnit.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 500, spec.Market.BookDepth)

	assert.Equal(t, conn.DriverPostgres, spec.Market.Store.Conn.Driver)
	assert.Equal(t, "db.local", spec.Market.Store.Conn.Host)
	assert.Equal(t, 5433, spec.Market.Store.Conn.Port)
	assert.Equal(t, 512, spec.Market.Store.QueueSize)

	assert.Equal(t, int64(30), spec.Market.Cache.BaseWindowSec)
	assert.Equal(t, int64(2), spec.Market.Cache.ReadAheadDays)
	assert.Equal(t, 7, spec.Market.Archive.ProbeRetries)
	assert.Equal(t, 15*time.Minute, spec.Market.Archive.ProbeTTL)

	assert.True(t, spec.Rest.Testnet)
	assert.Equal(t, "k", spec.Rest.APIKey)
	assert.True(t, spec.Stream.MarketOnly)
}

func TestLoadFailures(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, exception.ErrConfigRead)

	_, err = Load(writeConfig(t, `{not json`))
	assert.ErrorIs(t, err, exception.ErrConfigParse)

	_, err = Load(writeConfig(t, `{"markets": []}`))
	assert.ErrorIs(t, err, exception.ErrConfigValidate)

	_, err = Load(writeConfig(t, `{"markets": [{"exchange": "binance"}]}`))
	assert.ErrorIs(t, err, exception.ErrConfigValidate)

	_, err = Load(writeConfig(t, `{
		"store": {"driver": "oracle"},
		"markets": [{"exchange": "binance", "symbol": "BTCUSDT"}]
	}`))
	assert.ErrorIs(t, err, exception.ErrConfigValidate)

	_, err = Load(writeConfig(t, `{
		"store": {"driver": "postgres"},
		"markets": [{"exchange": "binance", "symbol": "BTCUSDT"}]
	}`))
	assert.ErrorIs(t, err, exception.ErrConfigValidate)

	_, err = Load(writeConfig(t, `{
		"markets": [{"exchange": "binance", "symbol": "BTCUSDT", "priceUnit": "-1"}]
	}`))
	assert.ErrorIs(t, err, exception.ErrConfigValidate)
}
