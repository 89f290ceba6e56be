package kraken

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/mdingest/internal/core"
)

// subscriptionStatusMessage is the object-form frame Kraken sends once per
// channel to confirm (or reject) a subscription, carrying the channel ID
// this adapter must remember to decode later array-form frames.
type subscriptionStatusMessage struct {
	ChannelID    int    `json:"channelID"`
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

// handleMessage decodes one raw WebSocket frame. Kraken multiplexes two
// wire shapes on the same connection: JSON objects (subscription acks,
// heartbeats, system status) and bare JSON arrays (channel data, keyed by
// the channel ID learned from a prior subscriptionStatus object) — so the
// first byte decides how the frame is parsed, mirroring
// processMessage/handleChannelMessage's object-vs-array branch.
func (a *Adapter) handleMessage(data []byte) {
	trimmed := firstNonSpace(data)
	if trimmed == '{' {
		a.handleObjectMessage(data)
		return
	}
	if trimmed == '[' {
		a.handleArrayMessage(data)
		return
	}
	a.log.Debug().Bytes("frame", data).Msg("unrecognized websocket frame")
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		return b
	}
	return 0
}

func (a *Adapter) handleObjectMessage(data []byte) {
	var status subscriptionStatusMessage
	if err := json.Unmarshal(data, &status); err != nil {
		a.log.Error().Err(err).Msg("failed to parse object frame")
		return
	}
	if status.Event != "subscriptionStatus" || status.Status != "subscribed" {
		return
	}

	a.subMu.Lock()
	a.channelPairs[status.ChannelID] = status.Pair
	a.channelKind[status.ChannelID] = status.Subscription.Name
	a.subMu.Unlock()

	a.log.Info().Int("channel_id", status.ChannelID).Str("pair", status.Pair).Str("kind", status.Subscription.Name).Msg("subscription confirmed")
}

func (a *Adapter) handleArrayMessage(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		a.log.Error().Err(err).Msg("failed to parse array frame")
		return
	}
	if len(frame) < 3 {
		return
	}

	var channelID int
	if err := json.Unmarshal(frame[0], &channelID); err != nil {
		return
	}

	a.subMu.RLock()
	pair, pairOK := a.channelPairs[channelID]
	kind, kindOK := a.channelKind[channelID]
	a.subMu.RUnlock()
	if !pairOK || !kindOK {
		a.log.Debug().Int("channel_id", channelID).Msg("data frame for unknown channel")
		return
	}

	switch kind {
	case "trade":
		a.handleTradeFrame(frame[1], pair)
	case "book":
		for _, payload := range frame[1 : len(frame)-2] {
			a.handleBookFrame(payload, pair)
		}
	}
}

// handleTradeFrame decodes Kraken's [[price,volume,time,side,orderType,misc],...]
// trade batch into one canonical trade event per entry.
func (a *Adapter) handleTradeFrame(payload json.RawMessage, pair string) {
	var rows [][]string
	if err := json.Unmarshal(payload, &rows); err != nil {
		a.log.Error().Err(err).Msg("failed to parse trade frame")
		return
	}

	key := a.channelKey(pair)
	sender, _, _ := a.chans.GetOrCreate(key)

	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		price, volume, tradeTime, side := row[0], row[1], row[2], row[3]

		evt := core.CanonicalEvent{
			Type: core.EventTrade,
			Trade: &core.TradeEvent{
				EventTime:    krakenTimeToMillis(tradeTime),
				Symbol:       pair,
				Price:        price,
				Quantity:     volume,
				TradeTime:    krakenTimeToMillis(tradeTime),
				BuyerIsMaker: side == "s",
			},
		}

		if a.metrics != nil {
			a.metrics.ObserveEvent(VariantName, string(core.EventTrade))
			a.metrics.SetLagNs(VariantName, lagNs(evt.Trade.EventTime, a.now()))
		}

		if err := sender.Send(core.StreamMessage{Stream: key, Data: evt}); err != nil {
			a.log.Warn().Err(err).Str("pair", pair).Msg("failed to forward trade event")
		}
	}
}

// handleBookFrame decodes one side-or-snapshot object from a book frame:
// "as"/"bs" carry the initial snapshot, "a"/"b" carry incremental updates.
// Kraken's feed has no update-id to gap-check, so levels are applied
// directly; forwarding a depth-update canonical event lets downstream
// consumers treat it like any other book class message even though this
// adapter does not run the Binance sequencing state machine.
func (a *Adapter) handleBookFrame(payload json.RawMessage, pair string) {
	var sides map[string][][]string
	if err := json.Unmarshal(payload, &sides); err != nil {
		a.log.Error().Err(err).Msg("failed to parse book frame")
		return
	}

	a.booksMu.RLock()
	b, ok := a.books[pair]
	a.booksMu.RUnlock()
	if !ok {
		return
	}

	var bids, asks []core.PriceLevel
	if levels, ok := sides["bs"]; ok {
		b.apply(b.bids, levels)
		bids = toPriceLevels(levels)
	}
	if levels, ok := sides["as"]; ok {
		b.apply(b.asks, levels)
		asks = toPriceLevels(levels)
	}
	if levels, ok := sides["b"]; ok {
		b.apply(b.bids, levels)
		bids = toPriceLevels(levels)
	}
	if levels, ok := sides["a"]; ok {
		b.apply(b.asks, levels)
		asks = toPriceLevels(levels)
	}
	if len(bids) == 0 && len(asks) == 0 {
		return
	}

	key := a.channelKey(pair)
	sender, _, _ := a.chans.GetOrCreate(key)
	evt := core.CanonicalEvent{
		Type: core.EventDepthUpdate,
		DepthUpdate: &core.DepthUpdateEvent{
			Symbol: pair,
			Bids:   bids,
			Asks:   asks,
		},
	}
	if err := sender.Send(core.StreamMessage{Stream: key, Data: evt}); err != nil {
		a.log.Warn().Err(err).Str("pair", pair).Msg("failed to forward book update")
	}
}

func toPriceLevels(rows [][]string) []core.PriceLevel {
	out := make([]core.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, core.PriceLevel{Price: row[0], Quantity: row[1]})
	}
	return out
}

// krakenTimeToMillis converts Kraken's decimal-seconds-since-epoch trade
// timestamp string to milliseconds, matching the millisecond unit every
// other canonical event's EventTime/TradeTime field uses.
func krakenTimeToMillis(s string) uint64 {
	seconds, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	millis := seconds.Mul(decimal.NewFromInt(1000)).IntPart()
	if millis < 0 {
		return 0
	}
	return uint64(millis)
}

func lagNs(eventTimeMs uint64, now time.Time) int64 {
	eventNs := int64(eventTimeMs) * int64(time.Millisecond)
	lag := now.UnixNano() - eventNs
	if lag < 0 {
		return 0
	}
	return lag
}
