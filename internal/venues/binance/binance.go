// Package binance implements the venue adapter for Binance's tagged
// "e"-discriminated WebSocket dialect: spot, futures (USDⓈ-M), and options
// endpoints, each sharing the same combined-stream URL shape and
// snapshot/diff order-book protocol. Grounded on
// agents/src/adapter/binance.rs (BinanceAdapter, BINANCE_EXCHANGES,
// reconnect_loop, run_ws, process_text_message).
package binance

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
	"github.com/sawpanic/mdingest/internal/metrics"
	"github.com/sawpanic/mdingest/internal/registry"
)

// sharedHostLimiter paces REST calls per target host across every variant
// Adapter in the process, independent of each Adapter's own TokenBucket —
// spot/futures/options sit behind distinct hosts today, but a future
// variant sharing a host with an existing one must not be able to exceed
// that host's own budget just because its bucket has room.
var (
	hostLimiterOnce sync.Once
	hostLimiter     *core.HostLimiter
)

func sharedHostLimiter() *core.HostLimiter {
	hostLimiterOnce.Do(func() {
		hostLimiter = core.NewHostLimiter(5, 10)
	})
	return hostLimiter
}

// Variant describes one Binance endpoint family: its REST base for symbol
// discovery and depth snapshots, and its combined-stream WebSocket base.
type Variant struct {
	ID      string
	Name    string
	InfoURL string
	WSBase  string
}

// Variants enumerates every Binance endpoint this adapter serves. Matches
// BINANCE_EXCHANGES, trimmed to the spot/futures/options family
// (delivery/coin-margined futures are omitted). core.Config's exchange
// table emits entries only for binance_spot (SpotSymbols) and
// binance_futures (FuturesSymbols); binance_options is registered, but no
// configuration entry selects it.
var Variants = []Variant{
	{ID: "binance_spot", Name: "Binance Spot", InfoURL: "https://api.binance.com/api/v3/exchangeInfo", WSBase: "wss://stream.binance.com:9443/stream?streams="},
	{ID: "binance_futures", Name: "Binance Futures", InfoURL: "https://fapi.binance.com/fapi/v1/exchangeInfo", WSBase: "wss://fstream.binance.com/stream?streams="},
	{ID: "binance_options", Name: "Binance Options", InfoURL: "https://vapi.binance.com/vapi/v1/exchangeInfo", WSBase: "wss://voptions.binance.com/stream?streams="},
}

// Adapter runs one Binance variant's full lifecycle: discover symbols,
// backfill order books, open chunked WebSocket connections, and keep books
// in sync against resnapshot-on-gap.
type Adapter struct {
	variant Variant
	client  *resty.Client
	chans   *channels.ChannelRegistry
	metrics *metrics.Registry
	log     zerolog.Logger

	chunkSize int

	httpBucket  *core.TokenBucket
	wsBucket    *core.TokenBucket
	hostLimiter *core.HostLimiter

	tlsConfig   *tls.Config
	dialContext core.DialContextFunc

	resnapshotBreaker *core.Breaker

	maxBackoff          time.Duration
	maxFailures         int
	bookRefreshInterval time.Duration

	booksMu sync.RWMutex
	books   map[string]*core.OrderBook

	now func() time.Time
}

// New builds an Adapter for variant, wiring the shared HTTP client, TLS
// config, and per-class token buckets a Factory constructs once per
// process and passes to every variant. tlsConfig and dialContext (built
// once from cfg.CABundle/CertPins/ProxyURL) are shared by the REST client
// passed in and this Adapter's own WebSocket dialer, so both transports
// honor the same pinning and SOCKS5 tunnel policy.
func New(variant Variant, cfg *core.Config, client *resty.Client, tlsConfig *tls.Config, dialContext core.DialContextFunc, chans *channels.ChannelRegistry, reg *metrics.Registry, log zerolog.Logger) *Adapter {
	return &Adapter{
		variant:             variant,
		client:              client,
		chans:               chans,
		metrics:             reg,
		log:                 log.With().Str("venue", variant.Name).Logger(),
		chunkSize:           cfg.ChunkSize,
		httpBucket:          core.NewTokenBucket(uint32(cfg.HTTPBurst), uint32(cfg.HTTPRefillPerSec), time.Second),
		wsBucket:            core.NewTokenBucket(uint32(cfg.WSBurst), uint32(cfg.WSRefillPerSec), time.Second),
		hostLimiter:         sharedHostLimiter(),
		tlsConfig:           tlsConfig,
		dialContext:         dialContext,
		resnapshotBreaker:   core.NewBreaker(variant.ID + "-resnapshot"),
		maxBackoff:          time.Duration(cfg.MaxBackoffSecs) * time.Second,
		maxFailures:         cfg.MaxFailures,
		bookRefreshInterval: time.Duration(cfg.BookRefreshSecs) * time.Second,
		books:               make(map[string]*core.OrderBook),
		now:                 time.Now,
	}
}

// depthBase strips the trailing "exchangeInfo" path segment, matching the
// original's string-trim approach for deriving the sibling depth/ticker
// endpoints from the same host.
func (a *Adapter) depthBase() string {
	return strings.TrimSuffix(a.variant.InfoURL, "exchangeInfo")
}

// Run executes auth (a no-op for Binance, which needs no handshake
// credentials for public market data), backfill, then subscribe, matching
// the original ExchangeAdapter::run ordering.
func (a *Adapter) Run(ctx context.Context, symbols []string) error {
	if err := a.backfill(ctx, symbols); err != nil {
		return fmt.Errorf("%s: backfill: %w", a.variant.Name, err)
	}
	return a.subscribe(ctx, symbols)
}

// backfill fetches an initial depth snapshot per symbol before any
// WebSocket diff is applied, so the first diff received has somewhere
// known-good to land.
func (a *Adapter) backfill(ctx context.Context, symbols []string) error {
	a.booksMu.Lock()
	defer a.booksMu.Unlock()

	for _, sym := range symbols {
		book, err := a.fetchDepthSnapshot(ctx, sym)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", sym).Msg("depth snapshot backfill failed")
			continue
		}
		a.books[sym] = book
	}
	return nil
}

// subscribe chunks symbols per the venue's stream-suffix table, opens one
// reconnecting WebSocket connection per chunk, and starts a periodic
// resnapshot refresh so books never drift indefinitely even without a
// detected gap.
func (a *Adapter) subscribe(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		key := a.channelKey(sym)
		a.chans.GetOrCreate(key)
	}

	streamCfg := core.StreamConfigForExchange(a.variant.Name)
	chunks := core.ChunkStreamsWithConfig(symbols, streamCfg, a.chunkSize)

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	a.log.Info().Int("streams", total).Int("chunks", len(chunks)).Msg("subscribing")

	for _, chunk := range chunks {
		chunk := chunk
		go a.runChunk(ctx, chunk)
	}

	go a.refreshBooksPeriodically(ctx, symbols, a.bookRefreshInterval)
	return nil
}

func (a *Adapter) channelKey(symbol string) string {
	return fmt.Sprintf("%s:%s", a.variant.Name, symbol)
}

func (a *Adapter) refreshBooksPeriodically(ctx context.Context, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range symbols {
				book, err := a.fetchDepthSnapshot(ctx, sym)
				if err != nil {
					a.log.Warn().Err(err).Str("symbol", sym).Msg("periodic resnapshot failed")
					continue
				}
				a.booksMu.Lock()
				a.books[sym] = book
				a.booksMu.Unlock()
				if a.metrics != nil {
					a.metrics.ObserveResnapshot(a.variant.Name, sym)
				}
			}
		}
	}
}

// Factory returns a registry.Factory that constructs and runs one
// Adapter for the given variant, discovering symbols from
// ExchangeConfig.Symbols when non-empty or from the exchangeInfo endpoint
// otherwise.
func Factory(variant Variant, reg *metrics.Registry, log zerolog.Logger) registry.Factory {
	return func(ctx context.Context, cfg *core.Config, exch core.ExchangeConfig, chans *channels.ChannelRegistry) ([]<-chan core.StreamMessage, error) {
		tlsConfig, err := core.BuildTLSConfig(cfg.CABundle, cfg.CertPins)
		if err != nil {
			return nil, fmt.Errorf("building tls config: %w", err)
		}

		dialContext, err := core.SOCKS5DialContext(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("building socks5 dialer: %w", err)
		}

		transport := &http.Transport{TLSClientConfig: tlsConfig}
		if dialContext != nil {
			transport.DialContext = dialContext
		}
		client := resty.New().SetTimeout(10 * time.Second).SetTransport(transport)

		a := New(variant, cfg, client, tlsConfig, dialContext, chans, reg, log)

		symbols := exch.Symbols
		if len(symbols) == 0 {
			discovered, err := a.fetchSymbols(ctx)
			if err != nil {
				return nil, fmt.Errorf("discovering %s symbols: %w", variant.Name, err)
			}
			symbols = discovered
		}

		var out []<-chan core.StreamMessage
		for _, sym := range symbols {
			_, ch, created := chans.GetOrCreate(a.channelKey(sym))
			if created {
				out = append(out, ch)
			}
		}

		go func() {
			if err := a.Run(ctx, symbols); err != nil {
				a.log.Error().Err(err).Msg("adapter run failed")
			}
		}()

		return out, nil
	}
}

// Register installs a Factory for every entry in Variants under the
// process-wide adapter registry. Safe to call more than once; Register
// itself is idempotent.
func Register(reg *metrics.Registry, log zerolog.Logger) {
	for _, v := range Variants {
		registry.Register(v.ID, Factory(v, reg, log))
	}
}
