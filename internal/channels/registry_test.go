package channels

import (
	"testing"
	"time"

	"github.com/sawpanic/mdingest/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradeMsg(stream string) core.StreamMessage {
	return core.StreamMessage{Stream: stream, Data: core.CanonicalEvent{Type: core.EventTrade, Trade: &core.TradeEvent{Symbol: "BTCUSDT"}}}
}

func bookMsg(stream string) core.StreamMessage {
	return core.StreamMessage{Stream: stream, Data: core.CanonicalEvent{Type: core.EventDepthUpdate, DepthUpdate: &core.DepthUpdateEvent{Symbol: "BTCUSDT"}}}
}

func tickerMsg(stream string) core.StreamMessage {
	return core.StreamMessage{Stream: stream, Data: core.CanonicalEvent{Type: core.EventMiniTicker, MiniTicker: &core.MiniTickerEvent{Symbol: "BTCUSDT"}}}
}

func TestChannelRegistry_ChannelsOnlyCreatedWhenSubscribed(t *testing.T) {
	reg := NewChannelRegistry(8, nil)
	defer reg.Close()

	assert.True(t, reg.IsEmpty())

	_, ok := reg.Get("binance:BTCUSDT")
	assert.False(t, ok)

	sender, out, created := reg.GetOrCreate("binance:BTCUSDT")
	require.NotNil(t, sender)
	require.NotNil(t, out)
	assert.True(t, created)
	assert.Equal(t, 1, reg.Len())

	_, out2, created2 := reg.GetOrCreate("binance:BTCUSDT")
	assert.False(t, created2)
	assert.Nil(t, out2)
}

func TestChannelRegistry_DeliversMessagesThroughDispatcher(t *testing.T) {
	reg := NewChannelRegistry(8, nil)
	defer reg.Close()

	sender, out, _ := reg.GetOrCreate("binance:BTCUSDT")
	require.NoError(t, sender.Send(tradeMsg("btcusdt@trade")))

	select {
	case msg := <-out:
		assert.Equal(t, core.EventTrade, msg.Data.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched message")
	}
}

func TestChannelRegistry_BookOutranksTradeOutranksTicker(t *testing.T) {
	// Pre-fill all three class buffers before the dispatcher goroutine
	// ever runs, so the very first select sees all three ready and the
	// priority ordering is deterministic rather than racing producers
	// against the dispatcher.
	book := make(chan core.StreamMessage, 4)
	trade := make(chan core.StreamMessage, 4)
	ticker := make(chan core.StreamMessage, 4)
	out := make(chan core.StreamMessage, 12)
	done := make(chan struct{})
	defer close(done)

	ticker <- tickerMsg("t")
	trade <- tradeMsg("t")
	book <- bookMsg("t")

	go dispatch(done, book, trade, ticker, out, 4, 4, 4, noopMetrics{})

	first := recvWithTimeout(t, out)
	assert.Equal(t, core.EventDepthUpdate, first.Data.Type)

	second := recvWithTimeout(t, out)
	assert.Equal(t, core.EventTrade, second.Data.Type)

	third := recvWithTimeout(t, out)
	assert.Equal(t, core.EventMiniTicker, third.Data.Type)
}

func TestChannelRegistry_NextSeqNoIncrementsPerKey(t *testing.T) {
	reg := NewChannelRegistry(8, nil)
	defer reg.Close()

	assert.Equal(t, uint64(0), reg.NextSeqNo("a"))
	assert.Equal(t, uint64(1), reg.NextSeqNo("a"))
	assert.Equal(t, uint64(2), reg.NextSeqNo("a"))
	assert.Equal(t, uint64(0), reg.NextSeqNo("b"))
}

func TestStreamSender_SendDoesNotBlockWhenFlooded(t *testing.T) {
	reg := NewChannelRegistry(4, nil)
	defer reg.Close()

	sender, _, _ := reg.GetOrCreate("binance:ETHUSDT")

	// ticker buffer floors to max(1, 4/4) == 1; saturate then overflow.
	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = sender.Send(tickerMsg("t"))
	}
	_ = lastErr // best-effort: dispatcher may drain concurrently, so this
	// only checks that Send returns instead of blocking; whether a given
	// Send was dropped is not asserted, and the dispatcher's own overflow
	// shedding is not exercised by any test in this file.
}

func recvWithTimeout(t *testing.T, out <-chan core.StreamMessage) core.StreamMessage {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return core.StreamMessage{}
	}
}
