package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tickdb/internal/bus"
	"tickdb/internal/model"
	"tickdb/internal/model/enum"
)

const (
	writerRetries    = 3
	writerRetryDelay = 200 * time.Millisecond
)

// Writer is the single background consumer draining trade batches into the
// store. Producers feed it through a bounded queue and never block on the
// actual write.
type Writer struct {
	store *Store
	queue *bus.Queue[[]model.Trade]
	wg    sync.WaitGroup
	err   atomic.Value

	started    uint32
	closed     uint32
	firstBatch uint32
}

// OpenWriter returns the store's writer, creating and starting it on first
// call. Subsequent calls return the same instance (at most one writer task
// per store).
func (s *Store) OpenWriter(ctx context.Context) (*Writer, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if s.writer != nil && atomic.LoadUint32(&s.writer.closed) == 0 {
		return s.writer, nil
	}

	w := &Writer{
		store: s,
		queue: bus.NewQueue[[]model.Trade](s.cfg.QueueSize),
	}
	if err := w.start(ctx); err != nil {
		return nil, err
	}
	s.writer = w
	return w, nil
}

func (w *Writer) start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return nil
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.queue.Run(ctx, w.write)
		logs.Infof("store %s: writer stopped", w.store.cfg.Symbol)
	}()
	return nil
}

// TrySend enqueues a batch without blocking.
func (w *Writer) TrySend(trades []model.Trade) error {
	if err := w.Err(); err != nil {
		return err
	}
	return w.queue.TryPublish(trades)
}

// Send enqueues a batch, blocking on backpressure until ctx is done.
func (w *Writer) Send(ctx context.Context, trades []model.Trade) error {
	if err := w.Err(); err != nil {
		return err
	}
	return w.queue.Publish(ctx, trades)
}

// Close stops the writer after draining buffered batches.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		w.queue.Close()
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first persistent write error observed, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// write persists one batch, retrying transient failures. The first live
// batch after the writer starts has its leading record re-tagged as the
// stream-start marker so later reconciliation can find the boundary.
func (w *Writer) write(trades []model.Trade) {
	if len(trades) == 0 {
		return
	}

	if trades[0].Status.IsUnfixed() && atomic.CompareAndSwapUint32(&w.firstBatch, 0, 1) {
		// the batch is shared with broadcast subscribers; the start marker
		// goes on a copy, never the caller's backing array
		retagged := make([]model.Trade, len(trades))
		copy(retagged, trades)
		retagged[0].Status = enum.LogStatusUnfixedStart
		trades = retagged
	}

	var lastErr error
	for attempt := 0; attempt < writerRetries; attempt++ {
		if _, err := w.store.InsertRecords(trades); err != nil {
			lastErr = err
			logs.Errorf("store %s: writer insert attempt %d: %v", w.store.cfg.Symbol, attempt+1, err)
			time.Sleep(writerRetryDelay)
			continue
		}
		return
	}
	w.setErr(lastErr)
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}
