package core

import "strings"

// StreamConfig describes which subscription channels a given exchange
// variant needs: a handful of global (non-symbol-scoped) streams, plus a
// set of per-symbol stream suffixes combined with every configured symbol.
// Grounded on core/tests/chunking.rs and core/tests/exchange_configs.rs,
// which show the set of streams differs by exchange variant (spot vs
// futures vs options) rather than being fixed.
type StreamConfig struct {
	Global    []string
	PerSymbol []string
}

// DefaultStreamConfig is the config exercised by the chunking test suite:
// two global arrays plus four per-symbol channels.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Global:    []string{"!miniTicker@arr", "!markPrice@arr"},
		PerSymbol: []string{"bookTicker", "markPrice", "markPrice@1s", "forceOrder"},
	}
}

// binanceSpotConfig drops futures/derivatives-only channels.
func binanceSpotConfig() StreamConfig {
	return StreamConfig{
		Global:    []string{"!miniTicker@arr"},
		PerSymbol: []string{"bookTicker", "trade", "depth@100ms"},
	}
}

// binanceFuturesConfig carries every derivatives channel: mark/index price,
// forced liquidations, continuous klines, open interest, and partial depth.
func binanceFuturesConfig() StreamConfig {
	return StreamConfig{
		Global: []string{"!miniTicker@arr", "!markPrice@arr"},
		PerSymbol: []string{
			"bookTicker", "trade", "markPrice", "markPrice@1s",
			"forceOrder", "continuousKline_1m", "openInterest", "depth20@100ms",
		},
	}
}

// binanceOptionsConfig subscribes to the options-only greeks/IV channels
// and excludes every futures-only stream.
func binanceOptionsConfig() StreamConfig {
	return StreamConfig{
		Global:    nil,
		PerSymbol: []string{"trade", "greeks", "openInterest", "impliedVolatility"},
	}
}

func gateioConfig() StreamConfig {
	return StreamConfig{
		PerSymbol: []string{"order_book_update", "trades", "tickers"},
	}
}

// StreamConfigForExchange returns the channel set for a named exchange
// variant, matching core/tests/exchange_configs.rs's per-variant table.
// Unrecognized names fall back to DefaultStreamConfig.
func StreamConfigForExchange(name string) StreamConfig {
	switch name {
	case "Binance.US Spot", "Binance Spot":
		return binanceSpotConfig()
	case "Binance Futures":
		return binanceFuturesConfig()
	case "Binance Options":
		return binanceOptionsConfig()
	case "Gate.io Spot", "Gate.io Futures":
		return gateioConfig()
	default:
		return DefaultStreamConfig()
	}
}

// ChunkStreams builds the de-duplicated stream list for symbols under the
// default StreamConfig and splits it into chunks of at most 100 entries,
// matching the venue's per-connection subscription limit.
func ChunkStreams(symbols []string) [][]string {
	return ChunkStreamsWithConfig(symbols, DefaultStreamConfig(), 100)
}

// ChunkStreamsWithConfig builds and chunks the stream list for an arbitrary
// StreamConfig and chunk size. A non-positive chunkSize yields no chunks.
func ChunkStreamsWithConfig(symbols []string, cfg StreamConfig, chunkSize int) [][]string {
	if chunkSize <= 0 {
		return nil
	}

	streams := buildStreamList(symbols, cfg)
	chunks := make([][]string, 0, (len(streams)+chunkSize-1)/chunkSize)
	for start := 0; start < len(streams); start += chunkSize {
		end := start + chunkSize
		if end > len(streams) {
			end = len(streams)
		}
		chunk := make([]string, end-start)
		copy(chunk, streams[start:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}

func buildStreamList(symbols []string, cfg StreamConfig) []string {
	seen := make(map[string]struct{})
	streams := make([]string, 0, len(cfg.Global)+len(symbols)*len(cfg.PerSymbol))

	add := func(s string) {
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		streams = append(streams, s)
	}

	for _, g := range cfg.Global {
		add(g)
	}
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		for _, suffix := range cfg.PerSymbol {
			add(lower + "@" + suffix)
		}
	}
	return streams
}
