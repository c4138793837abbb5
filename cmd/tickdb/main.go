package main

import (
	"context"
	"flag"
	"log"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/pkg/sys"

	"tickdb/internal/bus"
	"tickdb/internal/exchange/binance"
	"tickdb/internal/market"
	"tickdb/internal/model"
	"tickdb/internal/ops"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	downloadDays := flag.Int("download-days", 0, "Download up to N archive day files")
	force := flag.Bool("force", false, "Force re-download / force fix-point search")
	verbose := flag.Bool("verbose", false, "Verbose progress logging")
	latest := flag.Bool("latest", false, "Snapshot the most recent trades over REST")
	gap := flag.Bool("gap", false, "Backfill the gap between fixed and live data")
	streaming := flag.Bool("stream", false, "Run the live ingestion stream until interrupted")
	info := flag.Bool("info", false, "Print per-market storage summary")
	vacuum := flag.Bool("vacuum", false, "Compact the durable store after maintenance")
	flag.Parse()

	ctx := context.Background()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if loaded.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "tickdb",
			ServerAddress:   loaded.PyroscopeAddr,
			Tags: map[string]string{
				"env": loaded.Env,
			},
			Logger: noopLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	registry := market.NewRegistry(bus.NewHub())
	defer func() {
		if err := registry.CloseAll(); err != nil {
			log.Printf("close markets: %v", err)
		}
	}()

	markets := make([]*market.Market, 0, len(loaded.Markets))
	for _, spec := range loaded.Markets {
		rest := binance.NewRest(spec.Rest)
		streamer := binance.NewStream(ctx, spec.Stream)
		m, err := registry.Open(spec.Market, rest, streamer)
		if err != nil {
			log.Fatalf("open market %s failed: %v", spec.Market.Symbol, err)
		}
		markets = append(markets, m)
	}

	for _, m := range markets {
		if err := maintain(ctx, m, *downloadDays, *force, *verbose, *latest, *gap, *vacuum); err != nil {
			log.Fatalf("maintenance for %s failed: %v", m.Path(), err)
		}
		if *info {
			log.Printf("%s: %s", m.Path(), m.Info())
		}
	}

	if *streaming {
		runStream(ctx, markets, *verbose)
	}
}

func maintain(ctx context.Context, m *market.Market, downloadDays int, force, verbose, latest, gap, vacuum bool) error {
	if downloadDays > 0 {
		n, err := m.Download(ctx, downloadDays, force, verbose)
		if err != nil {
			return err
		}
		log.Printf("%s: downloaded %d archived trade(s)", m.Path(), n)
	}
	if latest {
		n, err := m.DownloadLatest(ctx, verbose)
		if err != nil {
			return err
		}
		log.Printf("%s: stored %d latest trade(s)", m.Path(), n)
	}
	if gap {
		n, err := m.DownloadGap(ctx, force, verbose)
		if err != nil {
			return err
		}
		log.Printf("%s: backfilled %d trade(s)", m.Path(), n)
	}
	if vacuum {
		if err := m.Vacuum(); err != nil {
			return err
		}
	}
	return nil
}

// runStream starts the ingestion task for every market and blocks until
// shutdown, draining each market's broadcast channel so slow-subscriber
// drops never hide a wiring problem in the default deployment.
func runStream(ctx context.Context, markets []*market.Market, verbose bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, m := range markets {
		if err := m.StartMarketStream(ctx); err != nil {
			log.Fatalf("start stream for %s failed: %v", m.Path(), err)
		}

		_, ch, unsubscribe := m.Channel()
		defer unsubscribe()
		go drain(ctx, ch, verbose)
	}

	log.Printf("streaming %d market(s), interrupt to stop", len(markets))
	select {
	case <-sys.Shutdown():
	case <-ctx.Done():
	}

	for _, m := range markets {
		m.StopMarketStream()
	}
}

func drain(ctx context.Context, ch <-chan model.MarketMessage, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if verbose && len(msg.Trades) != 0 {
				t := msg.Trades[len(msg.Trades)-1]
				log.Printf("%s/%s/%s trade %s", msg.Exchange, msg.Category, msg.Symbol, t.String())
			}
		}
	}
}

// noopLogger silences the profiler's internal logging.
type noopLogger struct{}

func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Errorf(string, ...any) {}
