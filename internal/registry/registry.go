// Package registry is the process-wide map from venue adapter id to the
// factory function that constructs it. Grounded on agents/src/registry.rs's
// Lazy<DashMap<&'static str, AdapterFactory>>: here the map is a
// package-level var initialized at its declaration and guarded by a
// sync.RWMutex.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
)

// Factory constructs and starts a venue adapter for one ExchangeConfig
// entry, returning the aggregated output channels it registered with
// chans (one per (venue,symbol) key the adapter subscribes to).
type Factory func(ctx context.Context, cfg *core.Config, exch core.ExchangeConfig, chans *channels.ChannelRegistry) ([]<-chan core.StreamMessage, error)

var (
	mu       sync.RWMutex
	adapters = make(map[string]Factory)
)

// Register installs factory under id. Safe to call more than once for the
// same id from concurrent init()s; the first registration wins, matching
// the teacher's idempotent-registration pattern used for metrics/HTTP route
// setup (registration is a one-time side effect, not something later
// callers should be able to silently override).
func Register(id string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := adapters[id]; exists {
		return
	}
	adapters[id] = factory
}

// Get looks up the factory registered under id.
func Get(id string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := adapters[id]
	return f, ok
}

// SpawnAll instantiates and starts an adapter for every entry in
// cfg.Exchanges, collecting their output channels. Missing factories are
// reported as an error rather than silently skipped, since a misconfigured
// exchange id should fail startup, not run with fewer venues than
// requested.
func SpawnAll(ctx context.Context, cfg *core.Config, chans *channels.ChannelRegistry) ([]<-chan core.StreamMessage, error) {
	var out []<-chan core.StreamMessage
	for _, exch := range cfg.Exchanges {
		factory, ok := Get(exch.ID)
		if !ok {
			return nil, fmt.Errorf("no adapter factory registered for exchange id %q", exch.ID)
		}
		receivers, err := factory(ctx, cfg, exch, chans)
		if err != nil {
			return nil, fmt.Errorf("starting adapter %q (%s): %w", exch.ID, exch.Name, err)
		}
		out = append(out, receivers...)
	}
	return out, nil
}
