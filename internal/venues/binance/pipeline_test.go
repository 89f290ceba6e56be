package binance

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
)

func TestLagNs_ComputesNanosecondDelta(t *testing.T) {
	now := time.Unix(100, 0)
	eventTimeMs := uint64(99_000) // 99s in ms
	assert.Equal(t, int64(time.Second), lagNs(eventTimeMs, now))
}

func TestLagNs_SaturatesToZeroOnClockSkew(t *testing.T) {
	now := time.Unix(100, 0)
	eventTimeMs := uint64(200_000) // event "from the future"
	assert.Equal(t, int64(0), lagNs(eventTimeMs, now))
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	cfg := &core.Config{
		HTTPBurst: 10, HTTPRefillPerSec: 10, WSBurst: 10, WSRefillPerSec: 10,
		MaxBackoffSecs: 1, MaxFailures: 10, BookRefreshSecs: 21600,
	}
	a := New(Variants[0], cfg, nil, nil, nil, channels.NewChannelRegistry(8, nil), nil, zerolog.Nop())
	return a
}

func TestApplyDepthUpdate_AppliesInSequenceDiff(t *testing.T) {
	a := newTestAdapter(t)
	book := core.NewOrderBookFromSnapshot("BTCUSDT", 100, nil, nil)
	a.books["BTCUSDT"] = book

	update := &core.DepthUpdateEvent{
		Symbol:                "BTCUSDT",
		FirstUpdateID:         101,
		FinalUpdateID:         105,
		PreviousFinalUpdateID: 100,
		Bids:                  []core.PriceLevel{{Price: "10000", Quantity: "1"}},
	}

	a.applyDepthUpdate(context.Background(), update)

	bids := a.books["BTCUSDT"].Bids()
	require.Len(t, bids, 1)
	assert.Equal(t, "10000", bids[0].Price)
}

func TestApplyDepthUpdate_UnknownSymbolIsIgnored(t *testing.T) {
	a := newTestAdapter(t)
	update := &core.DepthUpdateEvent{Symbol: "UNKNOWN", FirstUpdateID: 1, FinalUpdateID: 2}
	a.applyDepthUpdate(context.Background(), update)
	_, ok := a.books["UNKNOWN"]
	assert.False(t, ok)
}

func TestHandleMessage_TradeEventRoutesToTradeChannel(t *testing.T) {
	a := newTestAdapter(t)

	_, out, created := a.chans.GetOrCreate(a.channelKey("BTCUSDT"))
	require.True(t, created, "the aggregated receiver is only handed out on first creation")

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1,"s":"BTCUSDT","t":1,"p":"1","q":"1","b":1,"a":1,"T":1,"m":false,"M":false}}`)
	a.handleMessage(raw)

	select {
	case msg := <-out:
		assert.Equal(t, core.EventTrade, msg.Data.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a trade message on the aggregated output channel")
	}
}

func TestHandleMessage_MalformedJSONIsDroppedNotPanicked(t *testing.T) {
	a := newTestAdapter(t)
	assert.NotPanics(t, func() {
		a.handleMessage([]byte(`not json`))
	})
}
