package consolidate

import (
	"time"

	"fundforge/internal/data"
)

// candleStick is the time-driven consolidator. When sub.BaseDataType is
// TypeQuoteBar it aggregates bid/ask sides independently (the "QuoteBar
// path" of §4.1); otherwise it aggregates a plain Candle.
type candleStick struct {
	sub        data.DataSubscription
	tickSize   float64
	history    *data.RollingWindow[data.BaseData]
	openCandle *data.Candle
	openBar    *data.QuoteBar
}

func newCandleStick(sub data.DataSubscription, windowSize int, tickSize float64) *candleStick {
	return &candleStick{
		sub:      sub,
		tickSize: tickSize,
		history:  data.NewRollingWindow[data.BaseData](windowSize),
	}
}

func (c *candleStick) Subscription() data.DataSubscription { return c.sub }

func (c *candleStick) openTime(t time.Time) time.Time { return c.sub.Resolution.OpenTime(t) }
func (c *candleStick) closeTime(open time.Time) time.Time {
	return open.Add(c.sub.Resolution.Duration())
}

func (c *candleStick) Update(d data.BaseData) []data.BaseData {
	if c.sub.BaseDataType == data.TypeQuoteBar {
		return c.updateQuoteBar(d)
	}
	return c.updateCandle(d)
}

func (c *candleStick) updateCandle(d data.BaseData) []data.BaseData {
	t := d.TimeUTC()
	var price, volume, hi, lo float64
	switch v := d.(type) {
	case data.Tick:
		price, volume = v.Price, v.Volume
		hi, lo = price, price
	case data.Price:
		price, volume = v.Price, 0
		hi, lo = price, price
	case data.Candle:
		// a finer-resolution closed candle feeding a coarser consolidator:
		// fold its own high/low range in, not just its close.
		price, volume = v.Close, v.Volume
		hi, lo = v.High, v.Low
	default:
		return nil
	}

	if c.openCandle != nil && t.Before(c.openCandle.Time) {
		return nil // input precedes current bar's open time: dropped silently
	}

	var out []data.BaseData
	if c.openCandle == nil {
		c.openCandle = c.freshCandle(c.openTime(t), price, volume, hi, lo)
		return nil
	}

	close := c.closeTime(c.openCandle.Time)
	if !t.Before(close) {
		finished := *c.openCandle
		finished.IsClosed = true
		finished.Range = roundToTick(finished.High-finished.Low, c.tickSize)
		c.history.Add(finished)
		out = append(out, finished)
		c.openCandle = c.freshCandle(c.openTime(t), price, volume, hi, lo)
		return out
	}

	c.openCandle.High = max(c.openCandle.High, hi)
	c.openCandle.Low = min(c.openCandle.Low, lo)
	c.openCandle.Close = price
	c.openCandle.Volume += volume
	return nil
}

func (c *candleStick) freshCandle(openTime time.Time, price, volume, hi, lo float64) *data.Candle {
	return &data.Candle{
		Sym:        c.sub.Symbol,
		Open:       price,
		High:       hi,
		Low:        lo,
		Close:      price,
		Volume:     volume,
		Resolution: c.sub.Resolution,
		CandleType: c.sub.CandleType,
		Time:       openTime,
	}
}

func (c *candleStick) updateQuoteBar(d data.BaseData) []data.BaseData {
	t := d.TimeUTC()
	var bid, ask float64
	switch v := d.(type) {
	case data.Quote:
		bid, ask = v.Bid, v.Ask
	case data.QuoteBar:
		bid, ask = v.BidClose, v.AskClose
	default:
		return nil
	}

	if c.openBar != nil && t.Before(c.openBar.Time) {
		return nil
	}

	var out []data.BaseData
	if c.openBar == nil {
		c.openBar = c.freshBar(c.openTime(t), bid, ask)
		return nil
	}

	close := c.closeTime(c.openBar.Time)
	if !t.Before(close) {
		finished := *c.openBar
		finished.IsClosed = true
		finished.Range = roundToTick(finished.AskHigh-finished.BidLow, c.tickSize)
		c.history.Add(finished)
		out = append(out, finished)
		c.openBar = c.freshBar(c.openTime(t), bid, ask)
		return out
	}

	c.openBar.BidHigh = max(c.openBar.BidHigh, bid)
	c.openBar.BidLow = min(c.openBar.BidLow, bid)
	c.openBar.BidClose = bid
	c.openBar.AskHigh = max(c.openBar.AskHigh, ask)
	c.openBar.AskLow = min(c.openBar.AskLow, ask)
	c.openBar.AskClose = ask
	return nil
}

func (c *candleStick) freshBar(openTime time.Time, bid, ask float64) *data.QuoteBar {
	return &data.QuoteBar{
		Sym:        c.sub.Symbol,
		BidOpen:    bid, BidHigh: bid, BidLow: bid, BidClose: bid,
		AskOpen: ask, AskHigh: ask, AskLow: ask, AskClose: ask,
		Resolution: c.sub.Resolution,
		Time:       openTime,
	}
}

func (c *candleStick) UpdateTime(t time.Time) []data.BaseData {
	if c.sub.BaseDataType == data.TypeQuoteBar {
		if c.openBar == nil || t.Before(c.closeTime(c.openBar.Time)) {
			return nil
		}
		finished := *c.openBar
		finished.IsClosed = true
		finished.Range = roundToTick(finished.AskHigh-finished.BidLow, c.tickSize)
		c.history.Add(finished)
		c.openBar = nil
		return []data.BaseData{finished}
	}
	if c.openCandle == nil || t.Before(c.closeTime(c.openCandle.Time)) {
		return nil
	}
	finished := *c.openCandle
	finished.IsClosed = true
	finished.Range = roundToTick(finished.High-finished.Low, c.tickSize)
	c.history.Add(finished)
	c.openCandle = nil
	return []data.BaseData{finished}
}

func (c *candleStick) History() []data.BaseData { return c.history.History() }

func (c *candleStick) Current() (data.BaseData, bool) {
	if c.sub.BaseDataType == data.TypeQuoteBar {
		if c.openBar == nil {
			return nil, false
		}
		return *c.openBar, true
	}
	if c.openCandle == nil {
		return nil, false
	}
	return *c.openCandle, true
}

func (c *candleStick) IsReady() bool { return c.history.Len() > 0 }

func (c *candleStick) Reset() {
	c.history.Clear()
	c.openCandle = nil
	c.openBar = nil
}
