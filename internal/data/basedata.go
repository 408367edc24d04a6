package data

import "time"

// BaseDataType discriminates the six BaseData variants and also serves as
// the base-data-type component of a DataSubscription.
type BaseDataType int

const (
	TypeTick BaseDataType = iota
	TypeQuote
	TypeCandle
	TypeQuoteBar
	TypePrice
	TypeFundamental
)

// CandleType distinguishes the consolidator family that produced a Candle
// or QuoteBar. Two subscriptions differing only in CandleType are distinct.
type CandleType int

const (
	CandleTypeNone CandleType = iota
	CandleStick
	HeikinAshi
	Renko
)

// OrderSide, used both by Tick.Side (aggressor side, optional) and by
// orders/positions elsewhere in the package tree.
type OrderSide int

const (
	SideUnspecified OrderSide = iota
	SideBuy
	SideSell
)

// BaseData is implemented by every market-data variant. Every variant
// yields a monotone TimeUTC and the DataSubscription it belongs to.
type BaseData interface {
	TimeUTC() time.Time
	Subscription() DataSubscription
}

type Tick struct {
	Sym    Symbol
	Price  float64
	Volume float64
	Side   OrderSide
	Time   time.Time
}

func (t Tick) TimeUTC() time.Time { return t.Time }
func (t Tick) Subscription() DataSubscription {
	return DataSubscription{Symbol: t.Sym, Resolution: Ticks(1), BaseDataType: TypeTick, MarketType: t.Sym.MarketType}
}

type Quote struct {
	Sym      Symbol
	Bid      float64
	Ask      float64
	BidVol   float64
	AskVol   float64
	Level    int
	Time     time.Time
}

func (q Quote) TimeUTC() time.Time { return q.Time }
func (q Quote) Subscription() DataSubscription {
	return DataSubscription{Symbol: q.Sym, Resolution: Instant(), BaseDataType: TypeQuote, MarketType: q.Sym.MarketType}
}

// Candle is both a primary vendor bar and the output of a CandleStick,
// HeikinAshi or Renko consolidator (distinguished by CandleType on its
// owning DataSubscription).
type Candle struct {
	Sym        Symbol
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Range      float64
	IsClosed   bool
	Resolution Resolution
	CandleType CandleType
	Time       time.Time // open time of the bar
}

func (c Candle) TimeUTC() time.Time { return c.Time }
func (c Candle) Subscription() DataSubscription {
	return DataSubscription{Symbol: c.Sym, Resolution: c.Resolution, BaseDataType: TypeCandle, MarketType: c.Sym.MarketType, CandleType: c.CandleType}
}

type QuoteBar struct {
	Sym                                          Symbol
	BidOpen, BidHigh, BidLow, BidClose           float64
	AskOpen, AskHigh, AskLow, AskClose           float64
	Volume                                       float64
	Range                                        float64
	IsClosed                                     bool
	Resolution                                   Resolution
	Time                                         time.Time
}

func (q QuoteBar) TimeUTC() time.Time { return q.Time }
func (q QuoteBar) Subscription() DataSubscription {
	return DataSubscription{Symbol: q.Sym, Resolution: q.Resolution, BaseDataType: TypeQuoteBar, MarketType: q.Sym.MarketType}
}

// Price is a bare last-trade-price tick used by vendors that report spot
// price without full tick semantics (e.g. a forex mid).
type Price struct {
	Sym   Symbol
	Price float64
	Time  time.Time
}

func (p Price) TimeUTC() time.Time { return p.Time }
func (p Price) Subscription() DataSubscription {
	return DataSubscription{Symbol: p.Sym, Resolution: Instant(), BaseDataType: TypePrice, MarketType: p.Sym.MarketType}
}

// Fundamental carries an opaque payload; out of scope for pricing, kept
// only so ConsolidatorMisuse can be exercised (consolidators reject it).
type Fundamental struct {
	Sym     Symbol
	Payload []byte
	Time    time.Time
}

func (f Fundamental) TimeUTC() time.Time { return f.Time }
func (f Fundamental) Subscription() DataSubscription {
	return DataSubscription{Symbol: f.Sym, Resolution: Instant(), BaseDataType: TypeFundamental, MarketType: f.Sym.MarketType}
}

// DataSubscription identifies a stream of BaseData. Keys are compared
// structurally (it is a plain comparable struct, safe as a map key).
type DataSubscription struct {
	Symbol       Symbol
	Resolution   Resolution
	BaseDataType BaseDataType
	MarketType   MarketType
	CandleType   CandleType
}

// TimeSlice is an ordered collection of BaseData sharing an effective
// timestamp bucket. Ordering within the bucket is by arrival order only;
// consumers must not assume stability beyond that.
type TimeSlice []BaseData
