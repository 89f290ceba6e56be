package binance

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
)

func TestAdapter_DepthBaseStripsExchangeInfoSuffix(t *testing.T) {
	a := New(Variants[0], &core.Config{HTTPBurst: 1, HTTPRefillPerSec: 1, WSBurst: 1, WSRefillPerSec: 1, MaxBackoffSecs: 1, MaxFailures: 10, BookRefreshSecs: 21600}, nil, nil, nil, channels.NewChannelRegistry(4, nil), nil, zerolog.Nop())
	assert.Equal(t, "https://api.binance.com/api/v3/", a.depthBase())
}

func TestAdapter_ChannelKeyIncludesVariantName(t *testing.T) {
	a := New(Variants[1], &core.Config{HTTPBurst: 1, HTTPRefillPerSec: 1, WSBurst: 1, WSRefillPerSec: 1, MaxBackoffSecs: 1, MaxFailures: 10, BookRefreshSecs: 21600}, nil, nil, nil, channels.NewChannelRegistry(4, nil), nil, zerolog.Nop())
	assert.Equal(t, "Binance Futures:BTCUSDT", a.channelKey("BTCUSDT"))
}

func TestVariants_EachHasDistinctID(t *testing.T) {
	seen := map[string]bool{}
	for _, v := range Variants {
		assert.False(t, seen[v.ID], "duplicate variant id %s", v.ID)
		seen[v.ID] = true
	}
}
