package core

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// ApplyResult is the outcome of applying a single depth-update diff to a
// local order book.
type ApplyResult int

const (
	// Applied means the diff was in sequence and has been merged.
	Applied ApplyResult = iota
	// Outdated means the diff is older than (or equal to) the book's
	// current last_update_id and was ignored.
	Outdated
	// Gap means the diff does not chain from the book's current
	// last_update_id; the caller must resnapshot and fast-forward.
	Gap
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Outdated:
		return "outdated"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

// OrderBook is a local replica of one symbol's depth, synchronized from an
// initial REST snapshot and kept current by sequential WebSocket diffs.
// Bids/asks are keyed by price string (the wire's own decimal text) rather
// than a float, so levels compare and dedupe exactly as the venue intends.
//
// Grounded on the gap-detection/fast-forward protocol exercised in
// core/tests/order_book_prop.rs and agents/src/adapter/binance.rs's
// update_order_book.
type OrderBook struct {
	mu sync.RWMutex

	Symbol       string
	LastUpdateID uint64

	// synced is false until the first diff has been merged onto a
	// snapshot; the contiguity rule differs for that first diff (it must
	// straddle the snapshot's last_update_id) versus every diff after
	// (which must chain via pu).
	synced bool

	bids map[string]decimal.Decimal
	asks map[string]decimal.Decimal
}

// NewOrderBookFromSnapshot seeds a book from a REST depth snapshot.
func NewOrderBookFromSnapshot(symbol string, lastUpdateID uint64, bids, asks []PriceLevel) *OrderBook {
	ob := &OrderBook{
		Symbol:       symbol,
		LastUpdateID: lastUpdateID,
		bids:         make(map[string]decimal.Decimal, len(bids)),
		asks:         make(map[string]decimal.Decimal, len(asks)),
	}
	for _, l := range bids {
		ob.bids[l.Price] = l.QuantityDecimal()
	}
	for _, l := range asks {
		ob.asks[l.Price] = l.QuantityDecimal()
	}
	return ob
}

// Reset replaces the book's contents wholesale with a fresh snapshot,
// discarding any partially-applied state. Used after a resnapshot.
func (ob *OrderBook) Reset(lastUpdateID uint64, bids, asks []PriceLevel) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.LastUpdateID = lastUpdateID
	ob.synced = false
	ob.bids = make(map[string]decimal.Decimal, len(bids))
	ob.asks = make(map[string]decimal.Decimal, len(asks))
	for _, l := range bids {
		ob.bids[l.Price] = l.QuantityDecimal()
	}
	for _, l := range asks {
		ob.asks[l.Price] = l.QuantityDecimal()
	}
}

// ApplyDepthUpdate merges one diff into the book, per the Binance-style
// U/u/pu contiguity rule: the very first diff applied after a snapshot must
// straddle the snapshot's last_update_id (U <= lastUpdateID+1 <= u); every
// diff after that must chain directly from the previous one (pu ==
// lastUpdateID).
func (ob *OrderBook) ApplyDepthUpdate(u *DepthUpdateEvent) ApplyResult {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.applyLocked(u)
}

func (ob *OrderBook) applyLocked(u *DepthUpdateEvent) ApplyResult {
	if u.FinalUpdateID <= ob.LastUpdateID {
		return Outdated
	}

	if ob.synced {
		if u.PreviousFinalUpdateID != ob.LastUpdateID {
			return Gap
		}
	} else if u.FirstUpdateID > ob.LastUpdateID+1 {
		return Gap
	}

	for _, l := range u.Bids {
		ob.upsertLocked(ob.bids, l)
	}
	for _, l := range u.Asks {
		ob.upsertLocked(ob.asks, l)
	}
	ob.LastUpdateID = u.FinalUpdateID
	ob.synced = true
	return Applied
}

func (ob *OrderBook) upsertLocked(side map[string]decimal.Decimal, l PriceLevel) {
	qty := l.QuantityDecimal()
	if qty.IsZero() {
		delete(side, l.Price)
		return
	}
	side[l.Price] = qty
}

// FastForward replays buffered diffs collected while a resnapshot was in
// flight, discarding anything already covered by the new snapshot and
// stopping (returning Gap) the moment a diff no longer chains. This mirrors
// the original adapter's recovery path: buffer during the gap, resnapshot,
// then fast_forward the buffer into the fresh book.
func (ob *OrderBook) FastForward(buffered []*DepthUpdateEvent) ApplyResult {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	result := Applied
	for _, u := range buffered {
		if u.FinalUpdateID <= ob.LastUpdateID {
			continue
		}
		result = ob.applyLocked(u)
		if result == Gap {
			return Gap
		}
	}
	return result
}

// BestBid returns the highest bid price level, if any.
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return bestOf(ob.bids, true)
}

// BestAsk returns the lowest ask price level, if any.
func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return bestOf(ob.asks, false)
}

func bestOf(side map[string]decimal.Decimal, highest bool) (PriceLevel, bool) {
	if len(side) == 0 {
		return PriceLevel{}, false
	}
	var bestPrice string
	var bestQty decimal.Decimal
	first := true
	for price, qty := range side {
		p := decimal.RequireFromString(price)
		if first {
			bestPrice, bestQty, first = price, qty, false
			continue
		}
		current := decimal.RequireFromString(bestPrice)
		if (highest && p.GreaterThan(current)) || (!highest && p.LessThan(current)) {
			bestPrice, bestQty = price, qty
		}
	}
	return PriceLevel{Price: bestPrice, Quantity: bestQty.String()}, true
}

// Bids returns all bid levels sorted from highest to lowest price.
func (ob *OrderBook) Bids() []PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return sortedLevels(ob.bids, true)
}

// Asks returns all ask levels sorted from lowest to highest price.
func (ob *OrderBook) Asks() []PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return sortedLevels(ob.asks, false)
}

func sortedLevels(side map[string]decimal.Decimal, descending bool) []PriceLevel {
	levels := make([]PriceLevel, 0, len(side))
	for price, qty := range side {
		levels = append(levels, PriceLevel{Price: price, Quantity: qty.String()})
	}
	sort.Slice(levels, func(i, j int) bool {
		pi := decimal.RequireFromString(levels[i].Price)
		pj := decimal.RequireFromString(levels[j].Price)
		if descending {
			return pi.GreaterThan(pj)
		}
		return pi.LessThan(pj)
	})
	return levels
}

// Depth returns the number of non-zero levels on each side.
func (ob *OrderBook) Depth() (bids, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.bids), len(ob.asks)
}
