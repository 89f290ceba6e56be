// Package channels implements the fan-out fabric between venue adapters and
// the ingestor driver: three priority classes (book > trade > ticker) per
// (venue, symbol) key, drained into one aggregated output channel by a
// biased dispatcher that sheds the lowest-priority class first when a
// downstream consumer falls behind.
package channels

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sawpanic/mdingest/internal/core"
)

// Metrics is the observability hook ChannelRegistry reports through. It is
// a small local interface rather than a direct dependency on
// internal/metrics, so this package never needs to import the Prometheus
// registry to be testable.
type Metrics interface {
	// SetAdapterQueueDepth reports a class buffer's occupancy as observed
	// by the producing adapter at Send time (adapter_queue_depth).
	SetAdapterQueueDepth(channel string, depth int)
	// SetQueueDepth reports a class buffer's occupancy as observed by the
	// dispatcher after draining one message (md_queue_depth).
	SetQueueDepth(channel string, depth int)
	IncBackpressureDrop(channel string)
}

type noopMetrics struct{}

func (noopMetrics) SetAdapterQueueDepth(string, int) {}
func (noopMetrics) SetQueueDepth(string, int)        {}
func (noopMetrics) IncBackpressureDrop(string)       {}

// class identifies which of the three priority buffers a message belongs
// to.
type class string

const (
	classBook   class = "book"
	classTrade  class = "trade"
	classTicker class = "ticker"
)

func classify(evt core.CanonicalEvent) class {
	switch evt.Type {
	case core.EventDepthUpdate, core.EventBookTicker:
		return classBook
	case core.EventTrade, core.EventAggTrade:
		return classTrade
	case core.EventTicker, core.EventMiniTicker:
		return classTicker
	default:
		return classTrade
	}
}

// StreamSender is the per-key handle venue adapters use to publish events.
// It is safe to share across goroutines and cheap to clone (all fields are
// reference types).
type StreamSender struct {
	book   chan core.StreamMessage
	trade  chan core.StreamMessage
	ticker chan core.StreamMessage

	metrics Metrics
}

// ErrChannelFull is returned when a message was dropped because its class's
// buffer was saturated.
type ErrChannelFull struct {
	Channel string
}

func (e *ErrChannelFull) Error() string {
	return fmt.Sprintf("channel %q is full, message dropped", e.Channel)
}

// Send classifies msg by its event type and attempts a non-blocking
// delivery into the matching class buffer. A full buffer drops the message
// and reports ErrChannelFull rather than blocking the adapter's read loop —
// a slow consumer must never stall a venue's WebSocket reader.
func (s *StreamSender) Send(msg core.StreamMessage) error {
	c := classify(msg.Data)
	var ch chan core.StreamMessage
	switch c {
	case classBook:
		ch = s.book
	case classTrade:
		ch = s.trade
	case classTicker:
		ch = s.ticker
	}

	select {
	case ch <- msg:
		s.reportDepth(c, ch)
		return nil
	default:
		s.metrics.IncBackpressureDrop(string(c))
		return &ErrChannelFull{Channel: string(c)}
	}
}

func (s *StreamSender) reportDepth(c class, ch chan core.StreamMessage) {
	s.metrics.SetAdapterQueueDepth(string(c), len(ch))
}

// ChannelRegistry lazily creates one (book, trade, ticker) channel triple
// plus an aggregated output channel per key, and spawns a dispatcher
// goroutine to drain them. Grounded on agents/src/lib.rs's ChannelRegistry
// and StreamSender: a DashMap-of-senders there becomes a mutex-guarded Go
// map here, matching the sync.RWMutex-guarded maps already used throughout
// the teacher's providers code.
type ChannelRegistry struct {
	mu      sync.RWMutex
	senders map[string]*StreamSender
	outs    map[string]chan core.StreamMessage

	seqMu   sync.Mutex
	seqNo   map[string]*uint64

	bookBuffer   int
	tradeBuffer  int
	tickerBuffer int

	metrics Metrics

	closeOnce sync.Once
	done      chan struct{}
}

// NewChannelRegistry creates a registry whose book channel has capacity
// buffer, trade buffer/2, and ticker buffer/4 (each floored at 1), matching
// the original's ChannelRegistry::new.
func NewChannelRegistry(buffer int, metrics Metrics) *ChannelRegistry {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ChannelRegistry{
		senders:      make(map[string]*StreamSender),
		outs:         make(map[string]chan core.StreamMessage),
		seqNo:        make(map[string]*uint64),
		bookBuffer:   buffer,
		tradeBuffer:  maxInt(1, buffer/2),
		tickerBuffer: maxInt(1, buffer/4),
		metrics:      metrics,
		done:         make(chan struct{}),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GetOrCreate returns the sender for key, creating the channel triple, the
// aggregated output channel, and its dispatcher goroutine on first use.
// created is true only the first time a given key is seen; out is non-nil
// only alongside created==true.
func (r *ChannelRegistry) GetOrCreate(key string) (sender *StreamSender, out <-chan core.StreamMessage, created bool) {
	r.mu.RLock()
	if s, ok := r.senders[key]; ok {
		r.mu.RUnlock()
		return s, nil, false
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.senders[key]; ok {
		return s, nil, false
	}

	book := make(chan core.StreamMessage, r.bookBuffer)
	trade := make(chan core.StreamMessage, r.tradeBuffer)
	ticker := make(chan core.StreamMessage, r.tickerBuffer)
	outCh := make(chan core.StreamMessage, r.bookBuffer+r.tradeBuffer+r.tickerBuffer)

	sender = &StreamSender{book: book, trade: trade, ticker: ticker, metrics: r.metrics}
	r.senders[key] = sender
	r.outs[key] = outCh

	go dispatch(r.done, book, trade, ticker, outCh, r.bookBuffer, r.tradeBuffer, r.tickerBuffer, r.metrics)

	return sender, outCh, true
}

// Get returns the sender for an existing key without creating one.
func (r *ChannelRegistry) Get(key string) (*StreamSender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[key]
	return s, ok
}

// Len reports how many keys are currently registered.
func (r *ChannelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.senders)
}

// IsEmpty reports whether no keys have been registered yet.
func (r *ChannelRegistry) IsEmpty() bool { return r.Len() == 0 }

// NextSeqNo returns a per-key monotonic sequence number starting at 0,
// incrementing on every call. Used to tag dead-letter entries and
// correlate logs for a given stream.
func (r *ChannelRegistry) NextSeqNo(key string) uint64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	counter, ok := r.seqNo[key]
	if !ok {
		counter = new(uint64)
		r.seqNo[key] = counter
		return 0
	}
	return atomic.AddUint64(counter, 1)
}

// Close stops every dispatcher goroutine. Safe to call more than once.
func (r *ChannelRegistry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// dispatch drains book/trade/ticker with strict priority (book first, then
// trade, then ticker) into out, then sheds from the lowest-priority
// non-empty class first whenever a class is at or over its capacity.
// Ported from agents/src/lib.rs's dispatcher, which uses tokio::select!
// biased! for the same priority ordering; Go's select has no bias mode, so
// priority is achieved with nested non-blocking receives instead.
func dispatch(
	done <-chan struct{},
	book, trade, ticker chan core.StreamMessage,
	out chan<- core.StreamMessage,
	bookCap, tradeCap, tickerCap int,
	metrics Metrics,
) {
	for {
		msg, ok := recvBiased(done, book, trade, ticker)
		if !ok {
			return
		}

		select {
		case out <- msg:
		case <-done:
			return
		}

		metrics.SetQueueDepth("book", len(book))
		metrics.SetQueueDepth("trade", len(trade))
		metrics.SetQueueDepth("ticker", len(ticker))

		// Shed lowest priority first. A class with backlog remaining
		// after its own shed check blocks the next class up from being
		// shed too — thinning ticker takes precedence over thinning
		// trade, which takes precedence over thinning book.
		shed(ticker, tickerCap, "ticker", metrics)
		tickerHasBacklog := len(ticker) > 0

		if len(trade) >= tradeCap && !tickerHasBacklog {
			shed(trade, tradeCap, "trade", metrics)
		}
		tradeHasBacklog := len(trade) > 0

		if len(book) >= bookCap && !tickerHasBacklog && !tradeHasBacklog {
			shed(book, bookCap, "book", metrics)
		}
	}
}

func recvBiased(done <-chan struct{}, book, trade, ticker chan core.StreamMessage) (core.StreamMessage, bool) {
	select {
	case msg := <-book:
		return msg, true
	default:
	}
	select {
	case msg := <-trade:
		return msg, true
	default:
	}
	select {
	case msg := <-ticker:
		return msg, true
	default:
	}

	select {
	case msg := <-book:
		return msg, true
	case msg := <-trade:
		return msg, true
	case msg := <-ticker:
		return msg, true
	case <-done:
		return core.StreamMessage{}, false
	}
}

// shed drops one queued message from ch when it is at or over cap,
// incrementing the drop counter for channel name.
func shed(ch chan core.StreamMessage, capLimit int, name string, metrics Metrics) {
	if len(ch) < capLimit {
		return
	}
	select {
	case <-ch:
		metrics.IncBackpressureDrop(name)
	default:
	}
}

