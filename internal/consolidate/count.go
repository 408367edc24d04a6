package consolidate

import (
	"time"

	"fundforge/internal/data"
)

// CountConsolidator groups N Ticks(1) into a closed Candle. UpdateTime is
// a no-op: bars close purely on tick count, never on wall-clock advance.
type CountConsolidator struct {
	sym     data.Symbol
	n       int
	history *data.RollingWindow[data.BaseData]

	count   int
	current *data.Candle
}

func newCount(sym data.Symbol, n int, windowSize int) *CountConsolidator {
	return &CountConsolidator{
		sym:     sym,
		n:       n,
		history: data.NewRollingWindow[data.BaseData](windowSize),
	}
}

func (c *CountConsolidator) Subscription() data.DataSubscription {
	return data.DataSubscription{Symbol: c.sym, Resolution: data.Ticks(c.n), BaseDataType: data.TypeCandle}
}

func (c *CountConsolidator) Update(d data.BaseData) []data.BaseData {
	tick, ok := d.(data.Tick)
	if !ok {
		return nil
	}
	if c.current == nil {
		c.current = &data.Candle{
			Sym: c.sym, Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price,
			Volume: tick.Volume, Resolution: data.Ticks(c.n), Time: tick.Time,
		}
		c.count = 1
	} else {
		c.current.High = max(c.current.High, tick.Price)
		c.current.Low = min(c.current.Low, tick.Price)
		c.current.Close = tick.Price
		c.current.Volume += tick.Volume
		c.count++
	}

	if c.count < c.n {
		return nil
	}

	c.current.IsClosed = true
	c.current.Range = c.current.High - c.current.Low
	finished := *c.current
	c.history.Add(finished)
	c.current = nil
	c.count = 0
	return []data.BaseData{finished}
}

func (c *CountConsolidator) UpdateTime(t time.Time) []data.BaseData { return nil }

func (c *CountConsolidator) History() []data.BaseData { return c.history.History() }

func (c *CountConsolidator) Current() (data.BaseData, bool) {
	if c.current == nil {
		return nil, false
	}
	return *c.current, true
}

func (c *CountConsolidator) IsReady() bool { return c.history.Len() > 0 }

func (c *CountConsolidator) Reset() {
	c.history.Clear()
	c.current = nil
	c.count = 0
}
