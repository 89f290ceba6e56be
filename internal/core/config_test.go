package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		SpotSymbols:      []string{"BTCUSDT"},
		FuturesSymbols:   []string{"BTCUSDT"},
		ChunkSize:        100,
		EventBufferSize:  1024,
		EnableSpot:       true,
		EnableFutures:    true,
		Credentials:      Credentials{APIKey: "k", APISecret: "s"},
		HTTPBurst:        10,
		WSBurst:          5,
		BookRefreshSecs:  21600,
		MaxBackoffSecs:   64,
		MaxFailures:      10,
	}
}

func TestConfig_EmptySpotSymbolsFails(t *testing.T) {
	cfg := validConfig()
	cfg.SpotSymbols = nil
	assert.Error(t, cfg.Validate())
}

func TestConfig_EmptyFuturesSymbolsFails(t *testing.T) {
	cfg := validConfig()
	cfg.FuturesSymbols = nil
	assert.Error(t, cfg.Validate())
}

func TestConfig_InvalidChunkSizeFails(t *testing.T) {
	cfg := validConfig()
	cfg.ChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ChunkSize = 2000
	assert.Error(t, cfg.Validate())
}

func TestConfig_InvalidEventBufferSizeFails(t *testing.T) {
	cfg := validConfig()
	cfg.EventBufferSize = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.EventBufferSize = 1 << 20
	assert.Error(t, cfg.Validate())
}

func TestConfig_MissingCredentialsFails(t *testing.T) {
	cfg := validConfig()
	cfg.Credentials = Credentials{}
	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidConfigPasses(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_EnableKrakenWithoutSymbolsFails(t *testing.T) {
	cfg := validConfig()
	cfg.EnableKraken = true
	assert.Error(t, cfg.Validate())

	cfg.KrakenSymbols = []string{"XBT/USD"}
	assert.NoError(t, cfg.Validate())
}

func TestBuildExchangeTable_IncludesKrakenWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.EnableKraken = true
	cfg.KrakenSymbols = []string{"XBT/USD"}

	exchanges := buildExchangeTable(cfg)

	var found bool
	for _, e := range exchanges {
		if e.ID == "kraken" {
			found = true
			assert.Equal(t, []string{"XBT/USD"}, e.Symbols)
		}
	}
	assert.True(t, found, "expected a kraken entry in the exchange table")
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, splitCSV("BTCUSDT, ETHUSDT"))
	assert.Nil(t, splitCSV(""))
	assert.Nil(t, splitCSV("  "))
}
