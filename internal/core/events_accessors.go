package core

import "github.com/shopspring/decimal"

// parseDecimal mirrors the original adapter's parse_decimal: malformed or
// empty numeric strings decode to zero rather than erroring, since a single
// bad field must never drop an otherwise-valid event.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PriceDecimal returns the level's price as a full-precision decimal.
func (l PriceLevel) PriceDecimal() decimal.Decimal { return parseDecimal(l.Price) }

// QuantityDecimal returns the level's quantity as a full-precision decimal.
func (l PriceLevel) QuantityDecimal() decimal.Decimal { return parseDecimal(l.Quantity) }

func (t *TradeEvent) PriceDecimal() decimal.Decimal    { return parseDecimal(t.Price) }
func (t *TradeEvent) QuantityDecimal() decimal.Decimal { return parseDecimal(t.Quantity) }

func (t *AggTradeEvent) PriceDecimal() decimal.Decimal    { return parseDecimal(t.Price) }
func (t *AggTradeEvent) QuantityDecimal() decimal.Decimal { return parseDecimal(t.Quantity) }

func (k *Kline) OpenDecimal() decimal.Decimal        { return parseDecimal(k.Open) }
func (k *Kline) CloseDecimal() decimal.Decimal       { return parseDecimal(k.Close) }
func (k *Kline) HighDecimal() decimal.Decimal        { return parseDecimal(k.High) }
func (k *Kline) LowDecimal() decimal.Decimal         { return parseDecimal(k.Low) }
func (k *Kline) VolumeDecimal() decimal.Decimal      { return parseDecimal(k.Volume) }
func (k *Kline) QuoteVolumeDecimal() decimal.Decimal { return parseDecimal(k.QuoteVolume) }

func (m *MiniTickerEvent) ClosePriceDecimal() decimal.Decimal { return parseDecimal(m.ClosePrice) }
func (m *MiniTickerEvent) OpenPriceDecimal() decimal.Decimal  { return parseDecimal(m.OpenPrice) }
func (m *MiniTickerEvent) VolumeDecimal() decimal.Decimal     { return parseDecimal(m.Volume) }

func (t *TickerEvent) LastPriceDecimal() decimal.Decimal     { return parseDecimal(t.LastPrice) }
func (t *TickerEvent) BestBidPriceDecimal() decimal.Decimal  { return parseDecimal(t.BestBidPrice) }
func (t *TickerEvent) BestAskPriceDecimal() decimal.Decimal  { return parseDecimal(t.BestAskPrice) }
func (t *TickerEvent) VolumeDecimal() decimal.Decimal        { return parseDecimal(t.Volume) }
func (t *TickerEvent) WeightedAvgPriceDecimal() decimal.Decimal {
	return parseDecimal(t.WeightedAvgPrice)
}

func (b *BookTickerEvent) BestBidPriceDecimal() decimal.Decimal { return parseDecimal(b.BestBidPrice) }
func (b *BookTickerEvent) BestBidQtyDecimal() decimal.Decimal   { return parseDecimal(b.BestBidQty) }
func (b *BookTickerEvent) BestAskPriceDecimal() decimal.Decimal { return parseDecimal(b.BestAskPrice) }
func (b *BookTickerEvent) BestAskQtyDecimal() decimal.Decimal   { return parseDecimal(b.BestAskQty) }

func (p *IndexPriceEvent) IndexPriceDecimal() decimal.Decimal { return parseDecimal(p.IndexPrice) }

func (m *MarkPriceEvent) MarkPriceDecimal() decimal.Decimal   { return parseDecimal(m.MarkPrice) }
func (m *MarkPriceEvent) IndexPriceDecimal() decimal.Decimal  { return parseDecimal(m.IndexPrice) }
func (m *MarkPriceEvent) FundingRateDecimal() decimal.Decimal { return parseDecimal(m.FundingRate) }

// EstimatedSettlePriceDecimal returns the optional estimated settlement
// price. It is only present on delivery contracts' mark-price stream.
func (m *MarkPriceEvent) EstimatedSettlePriceDecimal() (decimal.Decimal, bool) {
	if m.EstimatedSettlePrice == nil {
		return decimal.Zero, false
	}
	return parseDecimal(*m.EstimatedSettlePrice), true
}

func (f *ForceOrder) PriceDecimal() decimal.Decimal            { return parseDecimal(f.Price) }
func (f *ForceOrder) OriginalQuantityDecimal() decimal.Decimal { return parseDecimal(f.OriginalQuantity) }
func (f *ForceOrder) AveragePriceDecimal() decimal.Decimal     { return parseDecimal(f.AveragePrice) }
func (f *ForceOrder) LastFilledPriceDecimal() decimal.Decimal  { return parseDecimal(f.LastFilledPrice) }

func (g *GreeksEvent) DeltaDecimal() decimal.Decimal { return parseDecimal(g.Delta) }
func (g *GreeksEvent) GammaDecimal() decimal.Decimal { return parseDecimal(g.Gamma) }
func (g *GreeksEvent) VegaDecimal() decimal.Decimal  { return parseDecimal(g.Vega) }
func (g *GreeksEvent) ThetaDecimal() decimal.Decimal { return parseDecimal(g.Theta) }

func (o *OpenInterestEvent) OpenInterestDecimal() decimal.Decimal {
	return parseDecimal(o.OpenInterest)
}

func (v *ImpliedVolatilityEvent) ImpliedVolatilityDecimal() decimal.Decimal {
	return parseDecimal(v.ImpliedVolatility)
}
