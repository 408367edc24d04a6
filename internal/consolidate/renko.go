package consolidate

import (
	"time"

	"fundforge/internal/data"
)

// renko is the price-threshold consolidator. It is not time-driven:
// UpdateTime is a no-op. Parameter Range (R) is the block size.
type renko struct {
	sub     data.DataSubscription
	rng     float64
	history *data.RollingWindow[data.BaseData]

	hasBlock bool
	open     float64
	close    float64

	hasCurrent bool
	curOpen    float64
	curHigh    float64
	curLow     float64
	curClose   float64
	curVolume  float64
	lastTime   time.Time
}

// DefaultRenkoRange is used when the caller does not size the consolidator
// explicitly; production callers should pass the vendor tick size scaled
// by strategy intent instead.
const DefaultRenkoRange = 1.0

func newRenko(sub data.DataSubscription, windowSize int) *renko {
	return &renko{
		sub:     sub,
		rng:     DefaultRenkoRange,
		history: data.NewRollingWindow[data.BaseData](windowSize),
	}
}

// NewRenko builds a Renko consolidator pre-seeded at seedClose with block
// size rng, for callers that know the baseline price before the first
// Update (the factory selected by New() has no seed parameter, since the
// default subscribe path has no a-priori baseline to seed from).
func NewRenko(sub data.DataSubscription, windowSize int, rng, seedClose float64) Consolidator {
	r := newRenko(sub, windowSize).WithRange(rng).Seed(seedClose)
	return r
}

// WithRange overrides the block size R; returns the receiver for chaining
// at construction time.
func (r *renko) WithRange(rng float64) *renko {
	r.rng = rng
	return r
}

// Seed primes the last confirmed block's close price before any data has
// been observed, so the first Update compares against a known baseline
// instead of opening a zero-width block at the first input's own price.
func (r *renko) Seed(close float64) *renko {
	r.open, r.close = close, close
	r.hasBlock = true
	return r
}

func (r *renko) Subscription() data.DataSubscription { return r.sub }

func (r *renko) priceOf(d data.BaseData) (float64, time.Time, float64, bool) {
	switch v := d.(type) {
	case data.Tick:
		return v.Price, v.Time, v.Volume, true
	case data.Price:
		return v.Price, v.Time, 0, true
	case data.Candle:
		return v.Close, v.Time, v.Volume, true
	default:
		return 0, time.Time{}, 0, false
	}
}

func (r *renko) Update(d data.BaseData) []data.BaseData {
	price, t, volume, ok := r.priceOf(d)
	if !ok {
		return nil
	}

	if !r.hasBlock {
		r.open, r.close = price, price
		r.hasBlock = true
		r.lastTime = t
		return nil
	}

	var out []data.BaseData
	for price >= r.close+r.rng {
		blockOpen := r.close
		blockClose := r.close + r.rng
		out = append(out, r.emitBlock(blockOpen, blockClose, volume, t))
		r.close = blockClose
		volume = 0
	}
	for price <= r.close-r.rng {
		blockOpen := r.close
		blockClose := r.close - r.rng
		out = append(out, r.emitBlock(blockOpen, blockClose, volume, t))
		r.close = blockClose
		volume = 0
	}

	r.curOpen, r.curClose = r.close, price
	r.curHigh = max(r.close, price)
	r.curLow = min(r.close, price)
	r.curVolume += volume
	r.hasCurrent = true
	r.lastTime = t
	return out
}

func (r *renko) emitBlock(open, close, volume float64, t time.Time) data.BaseData {
	block := data.Candle{
		Sym:        r.sub.Symbol,
		Open:       open,
		High:       max(open, close),
		Low:        min(open, close),
		Close:      close,
		Volume:     volume,
		Range:      r.rng,
		IsClosed:   true,
		Resolution: r.sub.Resolution,
		CandleType: data.Renko,
		Time:       t,
	}
	r.history.Add(block)
	r.hasCurrent = false
	r.curVolume = 0
	return block
}

func (r *renko) UpdateTime(t time.Time) []data.BaseData { return nil }

func (r *renko) History() []data.BaseData { return r.history.History() }

func (r *renko) Current() (data.BaseData, bool) {
	if !r.hasCurrent {
		return nil, false
	}
	return data.Candle{
		Sym: r.sub.Symbol, Open: r.curOpen, High: r.curHigh, Low: r.curLow, Close: r.curClose,
		Volume: r.curVolume, Resolution: r.sub.Resolution, CandleType: data.Renko, Time: r.lastTime,
	}, true
}

func (r *renko) IsReady() bool { return r.history.Len() > 0 }

func (r *renko) Reset() {
	r.history.Clear()
	r.hasBlock = false
	r.hasCurrent = false
}
