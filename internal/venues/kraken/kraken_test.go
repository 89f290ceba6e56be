package kraken

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
)

func TestAdapter_ChannelKeyIncludesVenueName(t *testing.T) {
	cfg := &core.Config{WSBurst: 1, WSRefillPerSec: 1, MaxBackoffSecs: 1, MaxFailures: 10}
	a := New(cfg, nil, nil, nil, channels.NewChannelRegistry(4, nil), nil, zerolog.Nop())
	assert.Equal(t, "Kraken:XBT/USD", a.channelKey("XBT/USD"))
}

func TestFirstNonSpace_SkipsLeadingWhitespace(t *testing.T) {
	assert.Equal(t, byte('['), firstNonSpace([]byte("  \n\t[1,2]")))
	assert.Equal(t, byte('{'), firstNonSpace([]byte("{}")))
	assert.Equal(t, byte(0), firstNonSpace([]byte("   ")))
}
