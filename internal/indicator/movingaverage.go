package indicator

import (
	"time"

	"fundforge/internal/data"
)

// SimpleMovingAverage is the first of the two reference indicators named
// in the supplemental §4.4 note, grounded on the window-average shape of
// libs/strategies/... moving-average inputs (SMA20/50/200) but built
// directly on RollingWindow[float64] rather than the teacher's pandas-like
// series wrapper.
type SimpleMovingAverage struct {
	name   string
	sub    data.DataSubscription
	period int

	closes  *data.RollingWindow[float64]
	history []Value
}

func NewSimpleMovingAverage(name string, sub data.DataSubscription, period int) *SimpleMovingAverage {
	return &SimpleMovingAverage{
		name: name, sub: sub, period: period,
		closes: data.NewRollingWindow[float64](period),
	}
}

func (s *SimpleMovingAverage) Name() string                        { return s.name }
func (s *SimpleMovingAverage) Subscription() data.DataSubscription { return s.sub }

func (s *SimpleMovingAverage) UpdateBaseData(d data.BaseData) (Value, bool) {
	price, t, ok := closingPrice(d)
	if !ok {
		return Value{}, false
	}
	s.closes.Add(price)
	if s.closes.Len() < s.period {
		return Value{}, false
	}
	sum := 0.0
	for _, v := range s.closes.History() {
		sum += v
	}
	v := Value{Name: s.name, Time: t, Fields: map[string]float64{"value": sum / float64(s.period)}}
	s.history = append(s.history, v)
	return v, true
}

func (s *SimpleMovingAverage) Reset() {
	s.closes.Clear()
	s.history = nil
}

func (s *SimpleMovingAverage) History() []Value { return s.history }

func (s *SimpleMovingAverage) Current() (Value, bool) {
	if len(s.history) == 0 {
		return Value{}, false
	}
	return s.history[len(s.history)-1], true
}

func (s *SimpleMovingAverage) Index(i int) (Value, bool) {
	idx := len(s.history) - 1 - i
	if idx < 0 || idx >= len(s.history) {
		return Value{}, false
	}
	return s.history[idx], true
}

func (s *SimpleMovingAverage) IsReady() bool { return s.closes.Len() >= s.period }

// ExponentialMovingAverage is the second reference indicator. It seeds
// itself from a simple average of the first `period` closes, then applies
// the standard smoothing factor alpha = 2/(period+1), matching the
// bootstrap convention used by the teacher's MACD/EMA strategy inputs.
type ExponentialMovingAverage struct {
	name   string
	sub    data.DataSubscription
	period int
	alpha  float64

	seed    *data.RollingWindow[float64]
	seeded  bool
	value   float64
	history []Value
}

func NewExponentialMovingAverage(name string, sub data.DataSubscription, period int) *ExponentialMovingAverage {
	return &ExponentialMovingAverage{
		name: name, sub: sub, period: period,
		alpha: 2.0 / (float64(period) + 1.0),
		seed:  data.NewRollingWindow[float64](period),
	}
}

func (e *ExponentialMovingAverage) Name() string                        { return e.name }
func (e *ExponentialMovingAverage) Subscription() data.DataSubscription { return e.sub }

func (e *ExponentialMovingAverage) UpdateBaseData(d data.BaseData) (Value, bool) {
	price, t, ok := closingPrice(d)
	if !ok {
		return Value{}, false
	}

	if !e.seeded {
		e.seed.Add(price)
		if e.seed.Len() < e.period {
			return Value{}, false
		}
		sum := 0.0
		for _, v := range e.seed.History() {
			sum += v
		}
		e.value = sum / float64(e.period)
		e.seeded = true
	} else {
		e.value = e.alpha*price + (1-e.alpha)*e.value
	}

	v := Value{Name: e.name, Time: t, Fields: map[string]float64{"value": e.value}}
	e.history = append(e.history, v)
	return v, true
}

func (e *ExponentialMovingAverage) Reset() {
	e.seed.Clear()
	e.seeded = false
	e.value = 0
	e.history = nil
}

func (e *ExponentialMovingAverage) History() []Value { return e.history }

func (e *ExponentialMovingAverage) Current() (Value, bool) {
	if len(e.history) == 0 {
		return Value{}, false
	}
	return e.history[len(e.history)-1], true
}

func (e *ExponentialMovingAverage) Index(i int) (Value, bool) {
	idx := len(e.history) - 1 - i
	if idx < 0 || idx >= len(e.history) {
		return Value{}, false
	}
	return e.history[idx], true
}

func (e *ExponentialMovingAverage) IsReady() bool { return e.seeded }

// closingPrice extracts the price an indicator should observe from a
// BaseData item: the close of a bar, or the trade price of a tick/price
// tick. Quotes and fundamentals carry no single observable price and are
// skipped.
func closingPrice(d data.BaseData) (float64, time.Time, bool) {
	switch v := d.(type) {
	case data.Candle:
		return v.Close, v.Time, true
	case data.Tick:
		return v.Price, v.Time, true
	case data.Price:
		return v.Price, v.Time, true
	case data.QuoteBar:
		return (v.BidClose + v.AskClose) / 2, v.Time, true
	default:
		return 0, time.Time{}, false
	}
}
