// Package stream owns the single background ingestion task per market: it
// consumes the live feed, fans trades into the durable writer and the
// broadcast hub, and keeps the order book synchronized.
package stream

import (
	"context"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickdb/internal/bus"
	"tickdb/internal/exchange"
	"tickdb/internal/model"
	"tickdb/internal/orderbook"
	"tickdb/internal/store"
	"tickdb/pkg/exception"
)

// Config identifies the market the orchestrator serves.
type Config struct {
	Exchange  string
	Category  string
	Symbol    string
	BookDepth int
}

// Orchestrator wires one market's live feed into the rest of the engine.
// Start is idempotent: at most one ingestion task runs per orchestrator.
type Orchestrator struct {
	cfg        Config
	st         *store.Store
	rest       exchange.RestClient
	streamer   exchange.StreamClient
	hub        *bus.Hub
	maintainer *orderbook.Maintainer

	started     uint32
	ctx         context.Context
	writer      *store.Writer
	unsubscribe func()
}

func New(cfg Config, st *store.Store, rest exchange.RestClient, streamer exchange.StreamClient, hub *bus.Hub, book *orderbook.Book) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		st:       st,
		rest:     rest,
		streamer: streamer,
		hub:      hub,
	}
	o.maintainer = orderbook.NewMaintainer(book, func(ctx context.Context) (*model.BookUpdate, error) {
		return rest.BookSnapshot(ctx, cfg.Symbol, cfg.BookDepth)
	})
	return o
}

// Start spins up the ingestion task. Calling it while a task is already
// running logs and returns success: starting twice is a no-op.
//
// A fresh order-book snapshot is taken before the diff stream is consumed,
// so early diffs always have a baseline to land on.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&o.started, 0, 1) {
		logs.Infof("stream %s/%s/%s: %v", o.cfg.Exchange, o.cfg.Category, o.cfg.Symbol, exception.ErrAlreadyRunning)
		return nil
	}

	writer, err := o.st.OpenWriter(ctx)
	if err != nil {
		atomic.StoreUint32(&o.started, 0)
		return errors.Wrap(err, "open store writer")
	}
	o.writer = writer
	o.ctx = ctx

	snap, err := o.rest.BookSnapshot(ctx, o.cfg.Symbol, o.cfg.BookDepth)
	if err != nil {
		// The maintainer re-snapshots on the first diff; not fatal here.
		logs.Errorf("stream %s: initial book snapshot: %v", o.cfg.Symbol, err)
	} else if err := o.maintainer.OnUpdate(ctx, snap); err != nil {
		logs.Errorf("stream %s: apply initial snapshot: %v", o.cfg.Symbol, err)
	}

	if err := o.streamer.Start(ctx); err != nil {
		atomic.StoreUint32(&o.started, 0)
		return errors.Wrap(err, "start stream transport")
	}
	if err := o.streamer.Subscribe(ctx, o.cfg.Symbol); err != nil {
		atomic.StoreUint32(&o.started, 0)
		return errors.Wrap(err, "subscribe market channels")
	}

	o.unsubscribe = o.streamer.Observe(ctx, o.dispatch)
	logs.Infof("stream %s/%s/%s: started", o.cfg.Exchange, o.cfg.Category, o.cfg.Symbol)
	return nil
}

// Running reports whether the ingestion task is active.
func (o *Orchestrator) Running() bool {
	return atomic.LoadUint32(&o.started) != 0
}

// Stop detaches from the transport. The store writer stays open; it belongs
// to the store's lifetime, not the stream's.
func (o *Orchestrator) Stop() {
	if !atomic.CompareAndSwapUint32(&o.started, 1, 0) {
		return
	}
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.streamer.Close()
	logs.Infof("stream %s/%s/%s: stopped", o.cfg.Exchange, o.cfg.Category, o.cfg.Symbol)
}

// dispatch routes one decoded message. Trades go to the writer queue and
// the broadcast hub; book updates go to the maintainer; failing control
// signals are logged. A bad message never terminates the task.
func (o *Orchestrator) dispatch(msg model.MarketMessage) {
	msg.Exchange = o.cfg.Exchange
	msg.Category = o.cfg.Category
	msg.Symbol = o.cfg.Symbol

	switch {
	case len(msg.Trades) != 0:
		if err := o.writer.TrySend(msg.Trades); err != nil {
			logs.Errorf("stream %s: writer send: %v", o.cfg.Symbol, err)
		}
		o.hub.Publish(msg)

	case msg.Book != nil:
		if err := o.maintainer.OnUpdate(o.ctx, msg.Book); err != nil {
			logs.Errorf("stream %s: book update: %v", o.cfg.Symbol, err)
		}

	case msg.Control != nil:
		if !msg.Control.OK {
			logs.Warnf("stream %s: control failure: %s", o.cfg.Symbol, msg.Control.Text)
		}
	}
}
