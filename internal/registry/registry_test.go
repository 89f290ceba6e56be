package registry

import (
	"context"
	"testing"

	"github.com/sawpanic/mdingest/internal/channels"
	"github.com/sawpanic/mdingest/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_IdempotentFirstWins(t *testing.T) {
	calls := 0
	Register("test-venue-idempotent", func(ctx context.Context, cfg *core.Config, exch core.ExchangeConfig, chans *channels.ChannelRegistry) ([]<-chan core.StreamMessage, error) {
		calls++
		return nil, nil
	})
	Register("test-venue-idempotent", func(ctx context.Context, cfg *core.Config, exch core.ExchangeConfig, chans *channels.ChannelRegistry) ([]<-chan core.StreamMessage, error) {
		calls += 100
		return nil, nil
	})

	factory, ok := Get("test-venue-idempotent")
	require.True(t, ok)
	_, _ = factory(context.Background(), nil, core.ExchangeConfig{}, nil)
	assert.Equal(t, 1, calls, "second Register call must not override the first")
}

func TestGet_UnknownIDNotFound(t *testing.T) {
	_, ok := Get("no-such-venue")
	assert.False(t, ok)
}

func TestSpawnAll_ErrorsOnMissingFactory(t *testing.T) {
	cfg := &core.Config{Exchanges: []core.ExchangeConfig{{ID: "missing-venue", Name: "Missing"}}}
	_, err := SpawnAll(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestSpawnAll_AggregatesReceivers(t *testing.T) {
	ch := make(chan core.StreamMessage)
	Register("test-venue-spawn", func(ctx context.Context, cfg *core.Config, exch core.ExchangeConfig, chans *channels.ChannelRegistry) ([]<-chan core.StreamMessage, error) {
		return []<-chan core.StreamMessage{ch}, nil
	})

	cfg := &core.Config{Exchanges: []core.ExchangeConfig{{ID: "test-venue-spawn", Name: "Test"}}}
	receivers, err := SpawnAll(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Len(t, receivers, 1)
}
