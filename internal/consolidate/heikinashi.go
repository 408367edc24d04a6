package consolidate

import (
	"time"

	"fundforge/internal/data"
)

// heikinAshi emits Heikin-Ashi candles: ha_close = (o+h+l+c)/4,
// ha_open = (prev_ha_open + prev_ha_close)/2, seeded at the first bar by
// ha_open0 = (o0+c0)/2. Unlike the plain CandleStick consolidator, it
// fill-forwards a synthetic flat bar when a time bucket elapses with no
// input, per §4.1 and the spec's resolution of Open Question 3. The
// synthetic bars for skipped buckets are emitted by the next Update that
// lands in a later bucket, whether the previous bar was closed by Update or
// by UpdateTime; UpdateTime on its own emits none.
type heikinAshi struct {
	sub      data.DataSubscription
	tickSize float64
	history  *data.RollingWindow[data.BaseData]

	openTime    time.Time
	rawOpen     float64
	rawHigh     float64
	rawLow      float64
	rawClose    float64
	volume      float64
	haOpen      float64
	prevHAOpen  float64
	prevHAClose float64
	hasPrev     bool
	hasOpen     bool
	fillForward bool
}

func newHeikinAshi(sub data.DataSubscription, windowSize int, tickSize float64) *heikinAshi {
	return &heikinAshi{
		sub:         sub,
		tickSize:    tickSize,
		history:     data.NewRollingWindow[data.BaseData](windowSize),
		fillForward: true,
	}
}

func (h *heikinAshi) Subscription() data.DataSubscription { return h.sub }
func (h *heikinAshi) openTimeFor(t time.Time) time.Time   { return h.sub.Resolution.OpenTime(t) }
func (h *heikinAshi) closeTimeFor(open time.Time) time.Time {
	return open.Add(h.sub.Resolution.Duration())
}

func (h *heikinAshi) Update(d data.BaseData) []data.BaseData {
	t := d.TimeUTC()
	var open, price, volume float64
	var hi, lo float64
	haveRange := false
	switch v := d.(type) {
	case data.Tick:
		open, price, volume = v.Price, v.Price, v.Volume
	case data.Price:
		open, price = v.Price, v.Price
	case data.Candle:
		open, price, volume = v.Open, v.Close, v.Volume
		hi, lo, haveRange = v.High, v.Low, true
	default:
		return nil
	}
	if !haveRange {
		hi, lo = price, price
	}

	if h.hasOpen && t.Before(h.openTime) {
		return nil
	}

	var out []data.BaseData
	if !h.hasOpen {
		// UpdateTime may already have closed the previous bar: fill-forward
		// the buckets between its close and t before opening the new bar.
		if h.hasPrev {
			for next := h.closeTimeFor(h.openTime); h.fillForward && next.Before(h.openTimeFor(t)); next = h.closeTimeFor(next) {
				h.startBar(next, h.prevHAClose, h.prevHAClose, h.prevHAClose, h.prevHAClose, 0)
				out = append(out, h.emitCurrent())
			}
		}
		h.startBar(h.openTimeFor(t), open, hi, lo, price, volume)
		return out
	}

	close := h.closeTimeFor(h.openTime)
	if !t.Before(close) {
		out = append(out, h.emitCurrent())
		// fill-forward any fully-elapsed buckets between the closed bar and t.
		next := close
		for h.fillForward && next.Before(h.openTimeFor(t)) {
			h.startBar(next, h.prevHAClose, h.prevHAClose, h.prevHAClose, h.prevHAClose, 0)
			out = append(out, h.emitCurrent())
			next = h.closeTimeFor(next)
		}
		h.startBar(h.openTimeFor(t), open, hi, lo, price, volume)
		return out
	}

	h.rawHigh = max(h.rawHigh, hi)
	h.rawLow = min(h.rawLow, lo)
	h.rawClose = price
	h.volume += volume
	return nil
}

func (h *heikinAshi) startBar(openTime time.Time, open, high, low, close, volume float64) {
	h.openTime = openTime
	h.rawOpen, h.rawHigh, h.rawLow, h.rawClose = open, high, low, close
	h.volume = volume
	if h.hasPrev {
		h.haOpen = (h.prevHAOpen + h.prevHAClose) / 2
	} else {
		h.haOpen = (open + close) / 2
	}
	h.hasOpen = true
}

func (h *heikinAshi) emitCurrent() data.BaseData {
	haClose := (h.rawOpen + h.rawHigh + h.rawLow + h.rawClose) / 4
	haHigh := max(h.rawHigh, max(h.haOpen, haClose))
	haLow := min(h.rawLow, min(h.haOpen, haClose))
	candle := data.Candle{
		Sym:        h.sub.Symbol,
		Open:       h.haOpen,
		High:       haHigh,
		Low:        haLow,
		Close:      haClose,
		Volume:     h.volume,
		IsClosed:   true,
		Resolution: h.sub.Resolution,
		CandleType: data.HeikinAshi,
		Time:       h.openTime,
	}
	candle.Range = roundToTick(candle.High-candle.Low, h.tickSize)
	h.history.Add(candle)
	h.prevHAOpen, h.prevHAClose = h.haOpen, haClose
	h.hasPrev = true
	h.hasOpen = false
	return candle
}

func (h *heikinAshi) UpdateTime(t time.Time) []data.BaseData {
	if !h.hasOpen || t.Before(h.closeTimeFor(h.openTime)) {
		return nil
	}
	return []data.BaseData{h.emitCurrent()}
}

func (h *heikinAshi) History() []data.BaseData { return h.history.History() }

func (h *heikinAshi) Current() (data.BaseData, bool) {
	if !h.hasOpen {
		return nil, false
	}
	haClose := (h.rawOpen + h.rawHigh + h.rawLow + h.rawClose) / 4
	return data.Candle{
		Sym: h.sub.Symbol, Open: h.haOpen,
		High: max(h.rawHigh, max(h.haOpen, haClose)), Low: min(h.rawLow, min(h.haOpen, haClose)),
		Close: haClose, Volume: h.volume, Resolution: h.sub.Resolution, CandleType: data.HeikinAshi, Time: h.openTime,
	}, true
}

func (h *heikinAshi) IsReady() bool { return h.history.Len() > 0 }

func (h *heikinAshi) Reset() {
	h.history.Clear()
	h.hasOpen = false
	h.hasPrev = false
}
