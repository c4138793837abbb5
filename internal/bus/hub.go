package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"tickdb/internal/model"
)

const defaultSubscriberBuffer = 1024

// Hub is the process-wide fan-out point for market messages. The stream
// orchestrator publishes every decoded trade batch; any number of external
// consumers (live trading, relays) subscribe.
//
// Publish never blocks: a subscriber whose buffer is full misses the message
// and the drop is counted and logged.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*subscriber
	closed  bool
	dropped atomic.Uint64
}

type subscriber struct {
	ch       chan model.MarketMessage
	exchange string
	category string
	symbol   string
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]*subscriber)}
}

// Subscribe registers a consumer for one market. An empty exchange, category
// or symbol matches everything. The returned cancel func is idempotent.
func (h *Hub) Subscribe(exchange, category, symbol string) (uuid.UUID, <-chan model.MarketMessage, func()) {
	id := uuid.New()
	sub := &subscriber{
		ch:       make(chan model.MarketMessage, defaultSubscriberBuffer),
		exchange: exchange,
		category: category,
		symbol:   symbol,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return id, sub.ch, func() {}
	}
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
			h.mu.Unlock()
		})
	}
	return id, sub.ch, cancel
}

// Publish fans the message out to every matching subscriber without blocking.
func (h *Hub) Publish(m model.MarketMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for id, sub := range h.subs {
		if !sub.matches(m) {
			continue
		}
		select {
		case sub.ch <- m:
		default:
			dropped := h.dropped.Add(1)
			logs.Warnf("hub: subscriber %s buffer full, message dropped (total dropped %d)", id, dropped)
		}
	}
}

// Close unregisters and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Len reports the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *subscriber) matches(m model.MarketMessage) bool {
	if s.exchange != "" && s.exchange != m.Exchange {
		return false
	}
	if s.category != "" && s.category != m.Category {
		return false
	}
	if s.symbol != "" && s.symbol != m.Symbol {
		return false
	}
	return true
}
