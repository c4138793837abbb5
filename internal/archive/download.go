package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickdb/internal/model"
	"tickdb/pkg/exception"
)

// Source resolves remote day files and their exchange-specific row layout.
// Implemented by the per-exchange REST adapter.
type Source interface {
	ArchiveDayURL(symbol string, day model.MicroSec) string
	ArchiveHasHeader() bool
	ParseArchiveRow(record []string) (model.Trade, error)
}

// Downloader fetches remote day files into the archive store.
type Downloader struct {
	store  *Store
	src    Source
	client *resty.Client
}

func NewDownloader(store *Store, src Source) *Downloader {
	return &Downloader{
		store: store,
		src:   src,
		client: resty.New().
			SetRetryCount(2).
			SetTimeout(5 * time.Minute),
	}
}

// LatestDay probes for the newest remotely available day-partition. Remote
// publication lags real time, so the probe starts at yesterday and steps
// back one day per failed attempt, up to the configured retry count. The
// result is cached for the probe TTL to bound request rate.
func (d *Downloader) LatestDay(ctx context.Context) (model.MicroSec, error) {
	s := d.store

	s.mu.Lock()
	if s.latestDay != 0 && time.Since(s.latestProbed) < s.cfg.ProbeTTL {
		day := s.latestDay
		s.mu.Unlock()
		return day, nil
	}
	s.mu.Unlock()

	day := model.FloorDay(model.Now()) - model.Day
	for attempt := 0; attempt < s.cfg.ProbeRetries; attempt++ {
		url := d.src.ArchiveDayURL(s.cfg.Symbol, day)
		resp, err := d.client.R().SetContext(ctx).Head(url)
		if err == nil && resp.IsSuccess() {
			s.mu.Lock()
			s.latestDay = day
			s.latestProbed = time.Now()
			s.mu.Unlock()
			return day, nil
		}
		if err != nil {
			logs.Warnf("archive %s: probe %s: %v", s.cfg.Symbol, model.DateString(day), err)
		}
		day -= model.Day
	}
	return 0, errors.Wrap(exception.ErrArchiveProbe, "no day available").
		With("retries", s.cfg.ProbeRetries)
}

// Download fetches up to maxDays of the most recent day files that are not
// yet present locally (all of them when force), converts each to the
// columnar layout, and re-analyzes the archive. A failure on one day is
// logged and skipped; the remaining days still download.
func (d *Downloader) Download(ctx context.Context, maxDays int, force, verbose bool) (int64, error) {
	s := d.store

	latest, err := d.LatestDay(ctx)
	if err != nil {
		return 0, err
	}

	if maxDays <= 0 {
		maxDays = 1
	}

	var inserted int64
	for i := maxDays - 1; 0 <= i; i-- {
		day := latest - model.Days(int64(i))
		if day < 0 {
			continue
		}
		if !force && s.HasLocal(day) {
			if verbose {
				logs.Infof("archive %s: %s already present, skipped", s.cfg.Symbol, model.DateString(day))
			}
			continue
		}

		n, err := d.downloadDay(ctx, day)
		if err != nil {
			logs.Errorf("archive %s: download %s skipped: %v", s.cfg.Symbol, model.DateString(day), err)
			continue
		}
		if verbose {
			logs.Infof("archive %s: downloaded %s (%d trades)", s.cfg.Symbol, model.DateString(day), n)
		}
		inserted += n
	}

	if _, _, err := s.Analyze(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (d *Downloader) downloadDay(ctx context.Context, day model.MicroSec) (int64, error) {
	s := d.store
	url := d.src.ArchiveDayURL(s.cfg.Symbol, day)

	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, errors.Wrap(err, "fetch day file").With("url", url)
	}
	if !resp.IsSuccess() {
		return 0, errors.Wrap(exception.ErrArchiveDownload, resp.Status()).With("url", url)
	}

	trades, err := d.decode(url, resp.Body())
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, errors.Wrap(exception.ErrArchiveDownload, "empty day file").With("url", url)
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Time < trades[j].Time })

	if err := s.WriteDay(day, trades); err != nil {
		return 0, err
	}
	return int64(len(trades)), nil
}

// decode converts a raw downloaded day file (csv, gzip or zip wrapped) into
// canonical trades using the source's row parser.
func (d *Downloader) decode(url string, body []byte) ([]model.Trade, error) {
	var reader io.Reader

	switch {
	case strings.HasSuffix(url, ".zip"):
		zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		if err != nil {
			return nil, errors.Wrap(err, "open zip").With("url", url)
		}
		if len(zr.File) == 0 {
			return nil, errors.Wrap(exception.ErrArchiveDownload, "empty zip").With("url", url)
		}
		f, err := zr.File[0].Open()
		if err != nil {
			return nil, errors.Wrap(err, "open zip entry").With("url", url)
		}
		defer f.Close()
		reader = f
	case strings.HasSuffix(url, ".gz"):
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "open gzip").With("url", url)
		}
		defer gz.Close()
		reader = gz
	default:
		reader = bytes.NewReader(body)
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1

	var trades []model.Trade
	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read csv").With("url", url)
		}
		if first {
			first = false
			if d.src.ArchiveHasHeader() {
				continue
			}
		}
		t, err := d.src.ParseArchiveRow(record)
		if err != nil {
			logs.Warnf("archive %s: bad row skipped: %v", d.store.cfg.Symbol, err)
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}
