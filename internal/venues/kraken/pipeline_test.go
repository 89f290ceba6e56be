package kraken

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	cfg := &core.Config{WSBurst: 10, WSRefillPerSec: 10, MaxBackoffSecs: 1, MaxFailures: 10}
	return New(cfg, nil, nil, nil, channels.NewChannelRegistry(8, nil), nil, zerolog.Nop())
}

func TestHandleObjectMessage_RecordsChannelOnSubscribed(t *testing.T) {
	a := newTestAdapter(t)
	a.handleMessage([]byte(`{"channelID":42,"event":"subscriptionStatus","status":"subscribed","pair":"XBT/USD","subscription":{"name":"trade"}}`))

	a.subMu.RLock()
	defer a.subMu.RUnlock()
	assert.Equal(t, "XBT/USD", a.channelPairs[42])
	assert.Equal(t, "trade", a.channelKind[42])
}

func TestHandleObjectMessage_IgnoresUnsubscribedStatus(t *testing.T) {
	a := newTestAdapter(t)
	a.handleMessage([]byte(`{"channelID":42,"event":"subscriptionStatus","status":"unsubscribed","pair":"XBT/USD","subscription":{"name":"trade"}}`))

	a.subMu.RLock()
	defer a.subMu.RUnlock()
	_, ok := a.channelPairs[42]
	assert.False(t, ok)
}

func TestHandleArrayMessage_TradeFrameForwardsCanonicalTrade(t *testing.T) {
	a := newTestAdapter(t)
	a.subMu.Lock()
	a.channelPairs[7] = "XBT/USD"
	a.channelKind[7] = "trade"
	a.subMu.Unlock()
	a.booksMu.Lock()
	a.books["XBT/USD"] = newBook()
	a.booksMu.Unlock()

	_, out, _ := a.chans.GetOrCreate(a.channelKey("XBT/USD"))

	a.handleMessage([]byte(`[7,[["5000.0","0.1","1600000000.0","b","m",""]],"trade","XBT/USD"]`))

	select {
	case msg := <-out:
		require.Equal(t, core.EventTrade, msg.Data.Type)
		assert.Equal(t, "5000.0", msg.Data.Trade.Price)
		assert.False(t, msg.Data.Trade.BuyerIsMaker)
	case <-time.After(time.Second):
		t.Fatal("expected a trade message")
	}
}

func TestHandleArrayMessage_DataFrameForUnknownChannelIsIgnored(t *testing.T) {
	a := newTestAdapter(t)
	assert.NotPanics(t, func() {
		a.handleMessage([]byte(`[99,[["5000.0","0.1","1600000000.0","b","m",""]],"trade","XBT/USD"]`))
	})
}

func TestHandleArrayMessage_BookSnapshotAppliesLevels(t *testing.T) {
	a := newTestAdapter(t)
	a.subMu.Lock()
	a.channelPairs[3] = "XBT/USD"
	a.channelKind[3] = "book"
	a.subMu.Unlock()
	a.booksMu.Lock()
	a.books["XBT/USD"] = newBook()
	a.booksMu.Unlock()

	_, out, _ := a.chans.GetOrCreate(a.channelKey("XBT/USD"))

	a.handleMessage([]byte(`[3,{"bs":[["4999.0","1.0","1600000000.0"]],"as":[["5001.0","2.0","1600000000.0"]]},"book-10","XBT/USD"]`))

	select {
	case msg := <-out:
		require.Equal(t, core.EventDepthUpdate, msg.Data.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a depth update message")
	}

	a.booksMu.RLock()
	b := a.books["XBT/USD"]
	a.booksMu.RUnlock()
	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Equal(t, "1.0", b.bids["4999.0"])
	assert.Equal(t, "2.0", b.asks["5001.0"])
}

func TestBook_ZeroVolumeRemovesLevel(t *testing.T) {
	b := newBook()
	b.apply(b.bids, [][]string{{"100", "1"}})
	require.Equal(t, "1", b.bids["100"])
	b.apply(b.bids, [][]string{{"100", "0.00000000"}})
	_, ok := b.bids["100"]
	assert.False(t, ok)
}

func TestKrakenTimeToMillis_ConvertsSecondsToMillis(t *testing.T) {
	assert.Equal(t, uint64(1600000000000), krakenTimeToMillis("1600000000.0"))
}

func TestLagNs_SaturatesAtZero(t *testing.T) {
	now := time.Unix(100, 0)
	assert.Equal(t, int64(0), lagNs(uint64(200_000), now))
}
