package binance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
	"tickdb/pkg/exception"
)

func TestRestTradeDecode(t *testing.T) {
	raw := `{
		"id": 28457,
		"price": "4.00000100",
		"qty": "12.00000000",
		"quoteQty": "48.000012",
		"time": 1499865549590,
		"isBuyerMaker": true,
		"isBestMatch": true
	}`

	var rt restTrade
	require.NoError(t, json.Unmarshal([]byte(raw), &rt))

	tr := rt.trade()
	assert.Equal(t, model.MicroSec(1499865549590000), tr.Time)
	assert.Equal(t, enum.OrderSideSell, tr.Side, "buyer-maker means the taker sold")
	assert.True(t, tr.Price.Equal(decimal.RequireFromString("4.000001")))
	assert.True(t, tr.Size.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, enum.LogStatusUnfixed, tr.Status)
	assert.Equal(t, "28457", tr.ID)
}

func TestTakerSide(t *testing.T) {
	assert.Equal(t, enum.OrderSideSell, takerSide(true))
	assert.Equal(t, enum.OrderSideBuy, takerSide(false))
}

func TestWsTradeDecode(t *testing.T) {
	raw := `{
		"e": "trade",
		"E": 1672515782136,
		"s": "BNBBTC",
		"t": 12345,
		"p": "0.001",
		"q": "100",
		"T": 1672515782136,
		"m": false,
		"M": true
	}`

	var wt wsTrade
	require.NoError(t, json.Unmarshal([]byte(raw), &wt))

	tr := wt.trade()
	assert.Equal(t, model.MicroSec(1672515782136000), tr.Time)
	assert.Equal(t, enum.OrderSideBuy, tr.Side)
	assert.True(t, tr.Price.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, "12345", tr.ID)
}

func TestWsDepthDecode(t *testing.T) {
	raw := `{
		"e": "depthUpdate",
		"E": 1672515782136,
		"s": "BNBBTC",
		"U": 157,
		"u": 160,
		"b": [["0.0024", "10"]],
		"a": [["0.0026", "100"], ["0.0027", "0"]]
	}`

	var wd wsDepth
	require.NoError(t, json.Unmarshal([]byte(raw), &wd))

	u, err := wd.update()
	require.NoError(t, err)
	assert.Equal(t, int64(157), u.FirstID)
	assert.Equal(t, int64(160), u.LastID)
	assert.False(t, u.Snapshot)
	require.Len(t, u.Bids, 1)
	require.Len(t, u.Asks, 2)
	assert.True(t, u.Asks[1].Size.IsZero(), "zero size levels pass through for removal")
}

func TestRestDepthDecode(t *testing.T) {
	raw := `{
		"lastUpdateId": 1027024,
		"bids": [["4.00000000", "431.00000000"]],
		"asks": [["4.00000200", "12.00000000"]]
	}`

	var rd restDepth
	require.NoError(t, json.Unmarshal([]byte(raw), &rd))

	now := model.Now()
	u, err := rd.update(now)
	require.NoError(t, err)
	assert.True(t, u.Snapshot)
	assert.Equal(t, int64(1027024), u.LastID)
	assert.Equal(t, now, u.Time)
	require.Len(t, u.Bids, 1)
	assert.True(t, u.Bids[0].Price.Equal(decimal.NewFromInt(4)))
}

func TestWsDepthBadLevelRejected(t *testing.T) {
	wd := wsDepth{Bids: [][2]string{{"not-a-price", "1"}}}
	_, err := wd.update()
	assert.Error(t, err)
}

func TestParseArchiveRow(t *testing.T) {
	r := NewRest(RestConfig{})

	// millisecond dump row
	tr, err := r.ParseArchiveRow([]string{"55", "100.5", "0.25", "1499865549590", "true", "true"})
	require.NoError(t, err)
	assert.Equal(t, model.MicroSec(1499865549590000), tr.Time)
	assert.Equal(t, enum.OrderSideSell, tr.Side)
	assert.Equal(t, enum.LogStatusFixArchive, tr.Status)
	assert.Equal(t, "55", tr.ID)

	// microsecond dump row stays as-is
	tr, err = r.ParseArchiveRow([]string{"56", "100.5", "0.25", "1499865549590000", "false", "true"})
	require.NoError(t, err)
	assert.Equal(t, model.MicroSec(1499865549590000), tr.Time)
	assert.Equal(t, enum.OrderSideBuy, tr.Side)

	_, err = r.ParseArchiveRow([]string{"57", "100.5"})
	assert.ErrorIs(t, err, exception.ErrRecordRejected)

	_, err = r.ParseArchiveRow([]string{"58", "bad", "0.25", "1499865549590", "true", "true"})
	assert.ErrorIs(t, err, exception.ErrRecordRejected)
}

func TestArchiveDayURL(t *testing.T) {
	r := NewRest(RestConfig{})
	day := model.FromTime(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t,
		"https://data.binance.vision/data/spot/daily/trades/BTCUSDT/BTCUSDT-trades-2024-05-01.zip",
		r.ArchiveDayURL("btcusdt", day))
}
