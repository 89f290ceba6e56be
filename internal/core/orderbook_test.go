package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lvl(price, qty string) PriceLevel { return PriceLevel{Price: price, Quantity: qty} }

func TestOrderBook_AppliesFirstDiffStraddlingSnapshot(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 100,
		[]PriceLevel{lvl("100.00", "1")}, []PriceLevel{lvl("101.00", "1")})

	result := ob.ApplyDepthUpdate(&DepthUpdateEvent{
		FirstUpdateID: 95, FinalUpdateID: 105,
		Bids: []PriceLevel{lvl("100.00", "2")},
	})
	require.Equal(t, Applied, result)
	assert.Equal(t, uint64(105), ob.LastUpdateID)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100.00", bid.Price)
}

func TestOrderBook_DropsOutdatedDiff(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 100, nil, nil)
	result := ob.ApplyDepthUpdate(&DepthUpdateEvent{FirstUpdateID: 50, FinalUpdateID: 100})
	assert.Equal(t, Outdated, result)
}

func TestOrderBook_DetectsGapOnFirstDiff(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 100, nil, nil)
	result := ob.ApplyDepthUpdate(&DepthUpdateEvent{FirstUpdateID: 150, FinalUpdateID: 160})
	assert.Equal(t, Gap, result)
}

func TestOrderBook_DetectsGapOnLaterDiff(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 100, nil, nil)
	require.Equal(t, Applied, ob.ApplyDepthUpdate(&DepthUpdateEvent{
		FirstUpdateID: 95, FinalUpdateID: 105,
	}))

	// pu should equal 105 to chain; 200 does not.
	result := ob.ApplyDepthUpdate(&DepthUpdateEvent{
		FirstUpdateID: 106, FinalUpdateID: 110, PreviousFinalUpdateID: 200,
	})
	assert.Equal(t, Gap, result)
}

func TestOrderBook_ZeroQuantityRemovesLevel(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 100,
		[]PriceLevel{lvl("100.00", "1")}, nil)

	require.Equal(t, Applied, ob.ApplyDepthUpdate(&DepthUpdateEvent{
		FirstUpdateID: 95, FinalUpdateID: 105,
		Bids: []PriceLevel{lvl("100.00", "0")},
	}))

	_, ok := ob.BestBid()
	assert.False(t, ok)
}

func TestOrderBook_FastForwardReplaysBufferedDiffs(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 200, []PriceLevel{lvl("100.00", "1")}, nil)

	buffered := []*DepthUpdateEvent{
		{FirstUpdateID: 180, FinalUpdateID: 190}, // fully covered by snapshot, skipped
		{FirstUpdateID: 195, FinalUpdateID: 210, Bids: []PriceLevel{lvl("100.50", "3")}},
		{FirstUpdateID: 211, FinalUpdateID: 220, PreviousFinalUpdateID: 210, Bids: []PriceLevel{lvl("100.75", "1")}},
	}

	result := ob.FastForward(buffered)
	require.Equal(t, Applied, result)
	assert.Equal(t, uint64(220), ob.LastUpdateID)

	bids, _ := ob.Depth()
	assert.Equal(t, 3, bids)
}

func TestOrderBook_FastForwardStopsOnGap(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 200, nil, nil)

	buffered := []*DepthUpdateEvent{
		{FirstUpdateID: 195, FinalUpdateID: 210},
		{FirstUpdateID: 300, FinalUpdateID: 310, PreviousFinalUpdateID: 299},
	}

	result := ob.FastForward(buffered)
	assert.Equal(t, Gap, result)
}

func TestOrderBook_BidsSortedDescendingAsksAscending(t *testing.T) {
	ob := NewOrderBookFromSnapshot("BTCUSDT", 1,
		[]PriceLevel{lvl("99.00", "1"), lvl("101.00", "1"), lvl("100.00", "1")},
		[]PriceLevel{lvl("103.00", "1"), lvl("102.00", "1")},
	)

	bids := ob.Bids()
	require.Len(t, bids, 3)
	assert.Equal(t, []string{"101.00", "100.00", "99.00"}, []string{bids[0].Price, bids[1].Price, bids[2].Price})

	asks := ob.Asks()
	require.Len(t, asks, 2)
	assert.Equal(t, []string{"102.00", "103.00"}, []string{asks[0].Price, asks[1].Price})
}
