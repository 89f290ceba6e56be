package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sawpanic/mdingest/internal/core"
)

// depthSnapshot is the REST /depth response shape, shared (modulo field
// casing, which Binance keeps consistent across spot/futures/options) by
// every variant.
type depthSnapshot struct {
	LastUpdateID uint64            `json:"lastUpdateId"`
	Bids         []core.PriceLevel `json:"bids"`
	Asks         []core.PriceLevel `json:"asks"`
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// fetchSymbols retrieves every actively trading symbol from the variant's
// exchangeInfo endpoint, matching fetch_symbols's TRADING-status filter.
func (a *Adapter) fetchSymbols(ctx context.Context) ([]string, error) {
	resp, err := core.RateLimitedGet(ctx, a.client, a.httpBucket, a.hostLimiter, a.variant.InfoURL, a.maxBackoff)
	if err != nil {
		return nil, fmt.Errorf("fetching exchange info: %w", err)
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("parsing exchange info: %w", err)
	}

	var symbols []string
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			symbols = append(symbols, s.Symbol)
		}
	}
	sort.Strings(symbols)
	return dedupSorted(symbols), nil
}

func dedupSorted(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}

// fetchDepthSnapshot retrieves a fresh order-book snapshot for symbol,
// seeding a new *core.OrderBook from it. The fetch runs through
// resnapshotBreaker so a venue REST endpoint that starts failing stops
// being hit at full rate by backfill, the periodic refresh, and
// gap-triggered resnapshots alike — all three route through this method.
func (a *Adapter) fetchDepthSnapshot(ctx context.Context, symbol string) (*core.OrderBook, error) {
	url := fmt.Sprintf("%sdepth?symbol=%s", a.depthBase(), symbol)

	result, err := a.resnapshotBreaker.Execute(func() (any, error) {
		resp, err := core.RateLimitedGet(ctx, a.client, a.httpBucket, a.hostLimiter, url, a.maxBackoff)
		if err != nil {
			return nil, err
		}

		var snap depthSnapshot
		if err := json.Unmarshal(resp.Body(), &snap); err != nil {
			return nil, fmt.Errorf("parsing depth snapshot: %w", err)
		}

		return core.NewOrderBookFromSnapshot(symbol, snap.LastUpdateID, snap.Bids, snap.Asks), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*core.OrderBook), nil
}
