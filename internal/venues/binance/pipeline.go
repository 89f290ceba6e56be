package binance

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sawpanic/mdingest/internal/core"
)

// handleMessage decodes one raw WebSocket frame, updates the relevant order
// book when it is a depth diff, and forwards the canonical event to the
// channel registry. Grounded on process_text_message/log_and_metric_event:
// a malformed frame is logged and dropped rather than tearing down the
// connection, since one bad frame should never cost an entire chunk's
// subscriptions.
func (a *Adapter) handleMessage(data []byte) {
	pipelineStart := time.Now()

	var msg core.StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		a.log.Error().Err(err).Msg("failed to parse websocket message")
		return
	}

	symbol, _ := msg.Data.Symbol()
	if symbol == "" {
		symbol = strings.SplitN(msg.Stream, "@", 2)[0]
	}

	if a.metrics != nil {
		a.metrics.ObserveEvent(a.variant.Name, string(msg.Data.Type))
		if evTime, ok := msg.Data.EventTime(); ok {
			a.metrics.SetLagNs(a.variant.Name, lagNs(evTime, a.now()))
		}
	}

	if msg.Data.Type == core.EventDepthUpdate && msg.Data.DepthUpdate != nil {
		a.applyDepthUpdate(context.Background(), msg.Data.DepthUpdate)
	}

	sender, _, created := a.chans.GetOrCreate(a.channelKey(symbol))
	if created {
		a.log.Debug().Str("symbol", symbol).Msg("created channel on first event for symbol")
	}
	if err := sender.Send(msg); err != nil {
		a.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to forward event")
	}

	if a.metrics != nil {
		a.metrics.SetPipelineP99Us(float64(time.Since(pipelineStart).Microseconds()))
	}
}

// lagNs computes receipt-time-minus-event-time in nanoseconds, saturating
// to zero rather than going negative when the venue's clock runs ahead of
// ours (clock skew, not a real negative lag).
func lagNs(eventTimeMs uint64, now time.Time) int64 {
	eventNs := int64(eventTimeMs) * int64(time.Millisecond)
	nowNs := now.UnixNano()
	lag := nowNs - eventNs
	if lag < 0 {
		return 0
	}
	return lag
}

// applyDepthUpdate merges update into the book for its symbol. A detected
// gap triggers an immediate resnapshot-and-fast-forward, matching
// update_order_book: a single buffered diff is replayed against the fresh
// snapshot, and if that diff still doesn't chain, one more snapshot is
// fetched and installed as is, without replaying the diff (the next
// periodic refresh or next diff will eventually resync).
func (a *Adapter) applyDepthUpdate(ctx context.Context, update *core.DepthUpdateEvent) {
	a.booksMu.RLock()
	book, ok := a.books[update.Symbol]
	a.booksMu.RUnlock()
	if !ok {
		return
	}

	result := book.ApplyDepthUpdate(update)
	if result != core.Gap {
		return
	}

	fresh, err := a.fetchDepthSnapshot(ctx, update.Symbol)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", update.Symbol).Msg("resnapshot after gap failed")
		return
	}
	if a.metrics != nil {
		a.metrics.ObserveResnapshot(a.variant.Name, update.Symbol)
	}

	if fresh.FastForward([]*core.DepthUpdateEvent{update}) != core.Applied {
		retry, err := a.fetchDepthSnapshot(ctx, update.Symbol)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", update.Symbol).Msg("second resnapshot after gap failed")
			return
		}
		if a.metrics != nil {
			a.metrics.ObserveResnapshot(a.variant.Name, update.Symbol)
		}
		fresh = retry
	}

	a.booksMu.Lock()
	a.books[update.Symbol] = fresh
	a.booksMu.Unlock()
}
