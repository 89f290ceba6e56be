// Package core holds the venue-agnostic building blocks of the ingestor:
// the canonical event model, the order-book synchronization protocol, the
// token-bucket rate limiter, the stream chunker, and the TLS/config
// plumbing shared by every venue adapter.
package core

import (
	"encoding/json"
	"fmt"
)

// EventType is the wire discriminator carried by Binance-family payloads in
// the "e" field. Other venues project their own wire shape into the same
// set of variants (see the venue adapter's parse step).
type EventType string

const (
	EventTrade             EventType = "trade"
	EventAggTrade          EventType = "aggTrade"
	EventDepthUpdate       EventType = "depthUpdate"
	EventKline             EventType = "kline"
	EventMiniTicker        EventType = "24hrMiniTicker"
	EventTicker            EventType = "24hrTicker"
	EventBookTicker        EventType = "bookTicker"
	EventIndexPrice        EventType = "indexPriceUpdate"
	EventMarkPrice         EventType = "markPriceUpdate"
	EventMarkPriceKline    EventType = "markPriceKline"
	EventIndexPriceKline   EventType = "indexPriceKline"
	EventContinuousKline   EventType = "continuous_kline"
	EventForceOrder        EventType = "forceOrder"
	EventGreeks            EventType = "greeks"
	EventOpenInterest      EventType = "openInterest"
	EventImpliedVolatility EventType = "impliedVolatility"
	EventUnknown           EventType = ""
)

// StreamMessage is the envelope every subscription frame is wrapped in:
// the venue-specific stream name plus the decoded canonical event.
type StreamMessage struct {
	Stream string        `json:"stream"`
	Data   CanonicalEvent `json:"data"`
}

// CanonicalEvent is the tagged union all adapters emit. Exactly one of the
// typed fields is populated, selected by Type; Raw carries the original
// bytes for variants this parser does not recognize so they are never
// silently dropped. Go has no sum types, so the union is represented as a
// discriminated struct of pointers rather than a deep interface hierarchy,
// matching the "avoid deep hierarchies" guidance with the idiomatic local
// equivalent of a tagged enum.
type CanonicalEvent struct {
	Type EventType

	Trade             *TradeEvent
	AggTrade          *AggTradeEvent
	DepthUpdate       *DepthUpdateEvent
	Kline             *KlineEvent
	MarkPriceKline    *KlineEvent
	IndexPriceKline   *KlineEvent
	ContinuousKline   *ContinuousKlineEvent
	MiniTicker        *MiniTickerEvent
	Ticker            *TickerEvent
	BookTicker        *BookTickerEvent
	IndexPrice        *IndexPriceEvent
	MarkPrice         *MarkPriceEvent
	ForceOrder        *ForceOrderEvent
	Greeks            *GreeksEvent
	OpenInterest      *OpenInterestEvent
	ImpliedVolatility *ImpliedVolatilityEvent

	Raw json.RawMessage
}

// EventTime returns the event's millisecond timestamp when the variant
// carries one. BookTicker and Unknown have none.
func (e CanonicalEvent) EventTime() (uint64, bool) {
	switch e.Type {
	case EventTrade:
		return e.Trade.EventTime, true
	case EventAggTrade:
		return e.AggTrade.EventTime, true
	case EventDepthUpdate:
		return e.DepthUpdate.EventTime, true
	case EventKline:
		return e.Kline.EventTime, true
	case EventMiniTicker:
		return e.MiniTicker.EventTime, true
	case EventTicker:
		return e.Ticker.EventTime, true
	case EventIndexPrice:
		return e.IndexPrice.EventTime, true
	case EventMarkPrice:
		return e.MarkPrice.EventTime, true
	case EventMarkPriceKline:
		return e.MarkPriceKline.EventTime, true
	case EventIndexPriceKline:
		return e.IndexPriceKline.EventTime, true
	case EventContinuousKline:
		return e.ContinuousKline.EventTime, true
	case EventForceOrder:
		return e.ForceOrder.EventTime, true
	case EventGreeks:
		return e.Greeks.EventTime, true
	case EventOpenInterest:
		return e.OpenInterest.EventTime, true
	case EventImpliedVolatility:
		return e.ImpliedVolatility.EventTime, true
	default:
		return 0, false
	}
}

// Symbol returns the instrument identifier when the variant carries one.
func (e CanonicalEvent) Symbol() (string, bool) {
	switch e.Type {
	case EventTrade:
		return e.Trade.Symbol, true
	case EventAggTrade:
		return e.AggTrade.Symbol, true
	case EventDepthUpdate:
		return e.DepthUpdate.Symbol, true
	case EventKline:
		return e.Kline.Symbol, true
	case EventMiniTicker:
		return e.MiniTicker.Symbol, true
	case EventTicker:
		return e.Ticker.Symbol, true
	case EventBookTicker:
		return e.BookTicker.Symbol, true
	case EventIndexPrice:
		return e.IndexPrice.Symbol, true
	case EventMarkPrice:
		return e.MarkPrice.Symbol, true
	case EventMarkPriceKline:
		return e.MarkPriceKline.Symbol, true
	case EventIndexPriceKline:
		return e.IndexPriceKline.Symbol, true
	case EventContinuousKline:
		return e.ContinuousKline.Pair, true
	case EventForceOrder:
		return e.ForceOrder.Order.Symbol, true
	case EventGreeks:
		return e.Greeks.Symbol, true
	case EventOpenInterest:
		return e.OpenInterest.Symbol, true
	case EventImpliedVolatility:
		return e.ImpliedVolatility.Symbol, true
	default:
		return "", false
	}
}

type eventTag struct {
	E EventType `json:"e"`
}

// UnmarshalJSON dispatches on the "e" discriminator and decodes into the
// matching typed variant. A payload with no "e" is decoded as BookTicker
// when it has exactly the spot bookTicker field set (u, s, b, B, a, A);
// any other payload without a recognized "e" falls back to EventUnknown
// with Raw set to the original bytes so the caller can still forward or
// log them.
func (e *CanonicalEvent) UnmarshalJSON(b []byte) error {
	var tag eventTag
	if err := json.Unmarshal(b, &tag); err != nil {
		return fmt.Errorf("canonical event: %w", err)
	}

	switch tag.E {
	case EventTrade:
		e.Trade = new(TradeEvent)
		return e.decodeInto(b, tag.E, e.Trade)
	case EventAggTrade:
		e.AggTrade = new(AggTradeEvent)
		return e.decodeInto(b, tag.E, e.AggTrade)
	case EventDepthUpdate:
		e.DepthUpdate = new(DepthUpdateEvent)
		return e.decodeInto(b, tag.E, e.DepthUpdate)
	case EventKline:
		e.Kline = new(KlineEvent)
		return e.decodeInto(b, tag.E, e.Kline)
	case EventMiniTicker:
		e.MiniTicker = new(MiniTickerEvent)
		return e.decodeInto(b, tag.E, e.MiniTicker)
	case EventTicker:
		e.Ticker = new(TickerEvent)
		return e.decodeInto(b, tag.E, e.Ticker)
	case EventBookTicker:
		e.BookTicker = new(BookTickerEvent)
		return e.decodeInto(b, tag.E, e.BookTicker)
	case EventIndexPrice:
		e.IndexPrice = new(IndexPriceEvent)
		return e.decodeInto(b, tag.E, e.IndexPrice)
	case EventMarkPrice:
		e.MarkPrice = new(MarkPriceEvent)
		return e.decodeInto(b, tag.E, e.MarkPrice)
	case EventMarkPriceKline:
		e.MarkPriceKline = new(KlineEvent)
		return e.decodeInto(b, tag.E, e.MarkPriceKline)
	case EventIndexPriceKline:
		e.IndexPriceKline = new(KlineEvent)
		return e.decodeInto(b, tag.E, e.IndexPriceKline)
	case EventContinuousKline:
		e.ContinuousKline = new(ContinuousKlineEvent)
		return e.decodeInto(b, tag.E, e.ContinuousKline)
	case EventForceOrder:
		e.ForceOrder = new(ForceOrderEvent)
		return e.decodeInto(b, tag.E, e.ForceOrder)
	case EventGreeks:
		e.Greeks = new(GreeksEvent)
		return e.decodeInto(b, tag.E, e.Greeks)
	case EventOpenInterest:
		e.OpenInterest = new(OpenInterestEvent)
		return e.decodeInto(b, tag.E, e.OpenInterest)
	case EventImpliedVolatility:
		e.ImpliedVolatility = new(ImpliedVolatilityEvent)
		return e.decodeInto(b, tag.E, e.ImpliedVolatility)
	case EventUnknown:
		var probe map[string]json.RawMessage
		if json.Unmarshal(b, &probe) == nil && len(probe) == 6 && probe["u"] != nil && probe["s"] != nil &&
			probe["b"] != nil && probe["B"] != nil && probe["a"] != nil && probe["A"] != nil {
			e.BookTicker = new(BookTickerEvent)
			return e.decodeInto(b, EventBookTicker, e.BookTicker)
		}
		fallthrough
	default:
		raw := make(json.RawMessage, len(b))
		copy(raw, b)
		e.Type = EventUnknown
		e.Raw = raw
		return nil
	}
}

func (e *CanonicalEvent) decodeInto(b []byte, t EventType, target any) error {
	// The variant structs have no "e" field and encoding/json matches keys
	// case-insensitively, so the discriminator is removed first; otherwise
	// its string value would be decoded into the numeric "E" field.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("canonical event %q: %w", t, err)
	}
	delete(fields, "e")
	stripped, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("canonical event %q: %w", t, err)
	}
	if err := json.Unmarshal(stripped, target); err != nil {
		return fmt.Errorf("canonical event %q: %w", t, err)
	}
	e.Type = t
	return nil
}

// MarshalJSON re-emits whichever typed variant is populated with its "e"
// discriminator put back in front, so the output parses back into the same
// variant, or Raw for EventUnknown.
func (e CanonicalEvent) MarshalJSON() ([]byte, error) {
	body, err := e.marshalVariant()
	if err != nil || e.Type == EventUnknown || len(body) < 2 || body[0] != '{' {
		return body, err
	}
	tag, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	out := append([]byte(`{"e":`), tag...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}

func (e CanonicalEvent) marshalVariant() ([]byte, error) {
	switch e.Type {
	case EventTrade:
		return json.Marshal(e.Trade)
	case EventAggTrade:
		return json.Marshal(e.AggTrade)
	case EventDepthUpdate:
		return json.Marshal(e.DepthUpdate)
	case EventKline:
		return json.Marshal(e.Kline)
	case EventMiniTicker:
		return json.Marshal(e.MiniTicker)
	case EventTicker:
		return json.Marshal(e.Ticker)
	case EventBookTicker:
		return json.Marshal(e.BookTicker)
	case EventIndexPrice:
		return json.Marshal(e.IndexPrice)
	case EventMarkPrice:
		return json.Marshal(e.MarkPrice)
	case EventMarkPriceKline:
		return json.Marshal(e.MarkPriceKline)
	case EventIndexPriceKline:
		return json.Marshal(e.IndexPriceKline)
	case EventContinuousKline:
		return json.Marshal(e.ContinuousKline)
	case EventForceOrder:
		return json.Marshal(e.ForceOrder)
	case EventGreeks:
		return json.Marshal(e.Greeks)
	case EventOpenInterest:
		return json.Marshal(e.OpenInterest)
	case EventImpliedVolatility:
		return json.Marshal(e.ImpliedVolatility)
	default:
		if e.Raw == nil {
			return []byte("null"), nil
		}
		return e.Raw, nil
	}
}

type TradeEvent struct {
	EventTime      uint64 `json:"E"`
	Symbol         string `json:"s"`
	TradeID        uint64 `json:"t"`
	Price          string `json:"p"`
	Quantity       string `json:"q"`
	BuyerOrderID   uint64 `json:"b"`
	SellerOrderID  uint64 `json:"a"`
	TradeTime      uint64 `json:"T"`
	BuyerIsMaker   bool   `json:"m"`
	BestMatch      bool   `json:"M"`
}

type AggTradeEvent struct {
	EventTime     uint64 `json:"E"`
	Symbol        string `json:"s"`
	AggTradeID    uint64 `json:"a"`
	Price         string `json:"p"`
	Quantity      string `json:"q"`
	FirstTradeID  uint64 `json:"f"`
	LastTradeID   uint64 `json:"l"`
	TradeTime     uint64 `json:"T"`
	BuyerIsMaker  bool   `json:"m"`
	BestMatch     bool   `json:"M"`
}

// PriceLevel is a single [price, quantity] pair from a depth payload.
type PriceLevel struct {
	Price    string
	Quantity string
}

// UnmarshalJSON accepts the wire's ["price","qty"] tuple form.
func (l *PriceLevel) UnmarshalJSON(b []byte) error {
	var pair [2]string
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("price level: %w", err)
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}

// MarshalJSON re-emits the ["price","qty"] tuple form.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.Price, l.Quantity})
}

type DepthUpdateEvent struct {
	EventTime              uint64       `json:"E"`
	Symbol                 string       `json:"s"`
	FirstUpdateID          uint64       `json:"U"`
	FinalUpdateID          uint64       `json:"u"`
	PreviousFinalUpdateID  uint64       `json:"pu"`
	Bids                   []PriceLevel `json:"b"`
	Asks                   []PriceLevel `json:"a"`
}

type Kline struct {
	StartTime            uint64 `json:"t"`
	CloseTime            uint64 `json:"T"`
	Interval             string `json:"i"`
	Open                 string `json:"o"`
	Close                string `json:"c"`
	High                 string `json:"h"`
	Low                  string `json:"l"`
	Volume               string `json:"v"`
	Trades               uint64 `json:"n"`
	IsClosed             bool   `json:"x"`
	QuoteVolume          string `json:"q"`
	TakerBuyBaseVolume   string `json:"V"`
	TakerBuyQuoteVolume  string `json:"Q"`
}

type KlineEvent struct {
	EventTime uint64 `json:"E"`
	Symbol    string `json:"s"`
	Kline     Kline  `json:"k"`
}

type MiniTickerEvent struct {
	EventTime   uint64 `json:"E"`
	Symbol      string `json:"s"`
	ClosePrice  string `json:"c"`
	OpenPrice   string `json:"o"`
	HighPrice   string `json:"h"`
	LowPrice    string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

type TickerEvent struct {
	EventTime          uint64 `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	WeightedAvgPrice   string `json:"w"`
	PrevClosePrice     string `json:"x"`
	LastPrice          string `json:"c"`
	LastQty            string `json:"Q"`
	BestBidPrice       string `json:"b"`
	BestBidQty         string `json:"B"`
	BestAskPrice       string `json:"a"`
	BestAskQty         string `json:"A"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	OpenTime           uint64 `json:"O"`
	CloseTime          uint64 `json:"C"`
	FirstTradeID       uint64 `json:"F"`
	LastTradeID        uint64 `json:"L"`
	Count              uint64 `json:"n"`
}

// BookTicker carries no event_time field per the wire contract (§3 invariants).
type BookTickerEvent struct {
	UpdateID     uint64 `json:"u"`
	Symbol       string `json:"s"`
	BestBidPrice string `json:"b"`
	BestBidQty   string `json:"B"`
	BestAskPrice string `json:"a"`
	BestAskQty   string `json:"A"`
}

type IndexPriceEvent struct {
	EventTime  uint64 `json:"E"`
	Symbol     string `json:"s"`
	IndexPrice string `json:"p"`
}

type MarkPriceEvent struct {
	EventTime             uint64  `json:"E"`
	Symbol                string  `json:"s"`
	MarkPrice             string  `json:"p"`
	IndexPrice            string  `json:"i"`
	FundingRate           string  `json:"r"`
	NextFundingTime       uint64  `json:"T"`
	EstimatedSettlePrice  *string `json:"P,omitempty"`
}

type ContinuousKlineEvent struct {
	EventTime    uint64 `json:"E"`
	Pair         string `json:"ps"`
	ContractType string `json:"ct"`
	Kline        Kline  `json:"k"`
}

type ForceOrder struct {
	Symbol                   string `json:"s"`
	Side                     string `json:"S"`
	OrderType                string `json:"o"`
	TimeInForce              string `json:"f"`
	OriginalQuantity         string `json:"q"`
	Price                    string `json:"p"`
	AveragePrice             string `json:"ap"`
	Status                   string `json:"X"`
	LastFilledQuantity       string `json:"l"`
	FilledAccumulatedQuantity string `json:"z"`
	TradeTime                uint64 `json:"T"`
	LastFilledPrice          string `json:"L"`
	TradeID                  uint64 `json:"t"`
	BidsNotional             string `json:"b"`
	AskNotional              string `json:"a"`
	IsMaker                  bool   `json:"m"`
	ReduceOnly               bool   `json:"R"`
}

type ForceOrderEvent struct {
	EventTime uint64     `json:"E"`
	Order     ForceOrder `json:"o"`
}

type GreeksEvent struct {
	EventTime uint64  `json:"E"`
	Symbol    string  `json:"s"`
	Delta     string  `json:"d"`
	Gamma     string  `json:"g"`
	Vega      string  `json:"v"`
	Theta     string  `json:"t"`
	Rho       *string `json:"r,omitempty"`
}

type OpenInterestEvent struct {
	EventTime    uint64 `json:"E"`
	Symbol       string `json:"s"`
	OpenInterest string `json:"o"`
}

type ImpliedVolatilityEvent struct {
	EventTime         uint64 `json:"E"`
	Symbol            string `json:"s"`
	ImpliedVolatility string `json:"v"`
}
