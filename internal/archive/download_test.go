package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
)

// csvSource parses "id,price,size,time,side" rows, optionally with a header.
type csvSource struct {
	header bool
}

func (csvSource) ArchiveDayURL(symbol string, day model.MicroSec) string {
	return "https://example.invalid/" + symbol + "-" + model.DateString(day) + ".zip"
}

func (s csvSource) ArchiveHasHeader() bool {
	return s.header
}

func (csvSource) ParseArchiveRow(record []string) (model.Trade, error) {
	price, err := decimal.NewFromString(record[1])
	if err != nil {
		return model.Trade{}, err
	}
	size, err := decimal.NewFromString(record[2])
	if err != nil {
		return model.Trade{}, err
	}
	ts, err := strconv.ParseInt(record[3], 10, 64)
	if err != nil {
		return model.Trade{}, err
	}
	return model.Trade{
		Time:   ts,
		Side:   enum.ParseOrderSide(record[4]),
		Price:  price,
		Size:   size,
		Status: enum.LogStatusFixArchive,
		ID:     record[0],
	}, nil
}

const testCSV = "1,100,0.5,1714521600000000,buy\n2,101,0.25,1714521660000000,sell\n"

func TestDecodePlainCSV(t *testing.T) {
	d := NewDownloader(newTestArchive(t), csvSource{})

	trades, err := d.decode("day.csv", []byte(testCSV))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "1", trades[0].ID)
	assert.Equal(t, enum.OrderSideBuy, trades[0].Side)
	assert.Equal(t, enum.OrderSideSell, trades[1].Side)
}

func TestDecodeZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("day.csv")
	require.NoError(t, err)
	_, err = f.Write([]byte(testCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	d := NewDownloader(newTestArchive(t), csvSource{})
	trades, err := d.decode("day.zip", buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestDecodeGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testCSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	d := NewDownloader(newTestArchive(t), csvSource{})
	trades, err := d.decode("day.gz", buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestDecodeSkipsHeaderAndBadRows(t *testing.T) {
	d := NewDownloader(newTestArchive(t), csvSource{header: true})

	raw := "id,price,size,time,side\n" + testCSV + "3,not-a-price,1,1714521720000000,buy\n"
	trades, err := d.decode("day.csv", []byte(raw))
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}
