// Package ingestor composes every other package into the running process:
// load config, build the channel fan-out fabric and metrics registry, spawn
// every configured venue adapter through the registry, serve operational
// HTTP endpoints, and drain the aggregated stream into a sink until the
// context is cancelled. Grounded on agents/src/lib.rs's top-level run loop
// and the teacher's cmd/cryptorun/main.go composition-root style.
package ingestor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
	"github.com/sawpanic/mdingest/internal/httpapi"
	"github.com/sawpanic/mdingest/internal/metrics"
	"github.com/sawpanic/mdingest/internal/registry"
	"github.com/sawpanic/mdingest/internal/sink"
	"github.com/sawpanic/mdingest/internal/venues/binance"
	"github.com/sawpanic/mdingest/internal/venues/kraken"
)

// Driver holds every long-lived collaborator the ingestor process needs for
// its lifetime.
type Driver struct {
	cfg     *core.Config
	log     zerolog.Logger
	metrics *metrics.Registry
	chans   *channels.ChannelRegistry
	sink    sink.Sink
	http    *httpapi.Server

	activeVenues int64 // atomic: aggregated receivers returned by SpawnAll
}

// New assembles a Driver from cfg. It registers the Binance and Kraken
// adapter factories, builds the Prometheus registry, the fan-out fabric, the
// configured sink, and the operational HTTP server, but starts nothing —
// call Run to begin ingestion.
func New(cfg *core.Config, log zerolog.Logger) (*Driver, error) {
	reg := metrics.New(prometheus.NewRegistry())

	binance.Register(reg, log)
	kraken.Register(reg, log)

	chans := channels.NewChannelRegistry(cfg.EventBufferSize, reg)

	var out sink.Sink
	if cfg.DeadLetterPath != "" {
		fileSink, err := sink.NewFileSink(cfg.DeadLetterPath)
		if err != nil {
			return nil, fmt.Errorf("opening dead letter sink: %w", err)
		}
		out = fileSink
	} else {
		out = sink.NewLogSink(log)
	}

	d := &Driver{cfg: cfg, log: log, metrics: reg, chans: chans, sink: out}

	if cfg.EnableMetrics {
		d.http = httpapi.NewServer(cfg.MetricsAddr, d, log)
	}

	return d, nil
}

// Ready implements httpapi.ReadinessChecker: the process is ready once at
// least one venue adapter has registered a channel.
func (d *Driver) Ready() (bool, string) {
	if atomic.LoadInt64(&d.activeVenues) == 0 {
		return false, "no venue adapters have produced a channel yet"
	}
	return true, ""
}

// Run spawns every configured venue adapter, serves the operational HTTP
// endpoints, and drains all adapter output into the sink until ctx is
// cancelled. It returns once every spawned goroutine has wound down.
func (d *Driver) Run(ctx context.Context) error {
	receivers, err := registry.SpawnAll(ctx, d.cfg, d.chans)
	if err != nil {
		return fmt.Errorf("spawning adapters: %w", err)
	}
	atomic.StoreInt64(&d.activeVenues, int64(len(receivers)))

	var wg sync.WaitGroup

	if d.http != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.http.Start(); err != nil {
				d.log.Error().Err(err).Msg("http server stopped with error")
			}
		}()
	}

	for i, rx := range receivers {
		wg.Add(1)
		go d.drain(ctx, &wg, i, rx)
	}

	<-ctx.Done()

	if d.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.http.Shutdown(shutdownCtx)
	}

	d.chans.Close()
	wg.Wait()
	return d.sink.Close()
}

func (d *Driver) drain(ctx context.Context, wg *sync.WaitGroup, idx int, rx <-chan core.StreamMessage) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-rx:
			if !ok {
				return
			}
			if err := d.sink.Publish(msg); err != nil {
				d.log.Warn().Err(err).Int("receiver", idx).Msg("sink publish failed")
			}
		}
	}
}
