package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yanun0323/errors"

	"tickdb/internal/bus"
	"tickdb/internal/exchange"
	"tickdb/pkg/exception"
)

// Path builds the registry key for a market.
func Path(exchangeName, category, symbol, env string) string {
	return fmt.Sprintf("%s/%s/%s/%s", exchangeName, category, symbol, env)
}

// Registry maps (exchange, category, symbol, env) to its single Market
// instance. Entries are created lazily; one lock guards the map, never the
// entries, so markets stay independently usable while another is opening.
type Registry struct {
	mu      sync.Mutex
	markets map[string]*Market
	hub     *bus.Hub
}

func NewRegistry(hub *bus.Hub) *Registry {
	if hub == nil {
		hub = bus.NewHub()
	}
	return &Registry{markets: make(map[string]*Market), hub: hub}
}

// Hub returns the shared broadcast hub all registered markets publish to.
func (r *Registry) Hub() *bus.Hub {
	return r.hub
}

// Open returns the existing market for cfg's key or creates it. At most one
// store instance exists per market.
func (r *Registry) Open(cfg Config, rest exchange.RestClient, streamer exchange.StreamClient) (*Market, error) {
	cfg = cfg.withDefaults()
	key := Path(cfg.Exchange, cfg.Category, cfg.Symbol, cfg.Env)

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.markets[key]; ok {
		return m, nil
	}

	m, err := Open(cfg, rest, streamer, r.hub)
	if err != nil {
		return nil, errors.Wrap(err, "open market").With("path", key)
	}
	r.markets[key] = m
	return m, nil
}

// Get returns a registered market.
func (r *Registry) Get(exchangeName, category, symbol, env string) (*Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[Path(exchangeName, category, symbol, env)]
	if !ok {
		return nil, exception.ErrNotFound
	}
	return m, nil
}

// List returns the registered market paths, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.markets))
	for key := range r.markets {
		paths = append(paths, key)
	}
	sort.Strings(paths)
	return paths
}

// Close shuts down one market and removes it from the registry.
func (r *Registry) Close(exchangeName, category, symbol, env string) error {
	key := Path(exchangeName, category, symbol, env)

	r.mu.Lock()
	m, ok := r.markets[key]
	delete(r.markets, key)
	r.mu.Unlock()

	if !ok {
		return exception.ErrNotFound
	}
	return m.Close()
}

// CloseAll shuts down every market and the hub.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	markets := make([]*Market, 0, len(r.markets))
	for key, m := range r.markets {
		markets = append(markets, m)
		delete(r.markets, key)
	}
	r.mu.Unlock()

	var firstErr error
	for _, m := range markets {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.hub.Close()
	return firstErr
}
