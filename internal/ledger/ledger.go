// Package ledger implements C9: positions, realized/unrealized P&L,
// margin reservation and per-account stats, grounded on
// ff_standard_lib/src/standardized_types/accounts/ledgers.rs. Monetary
// arithmetic uses shopspring/decimal so rounding (§4.7: "2 decimals for
// P&L") is exact and reproducible across runs, per SPEC_FULL.md's DOMAIN
// STACK wiring.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fundforge/internal/data"
	"fundforge/pkg/risk"
)

var ErrInsufficientFunds = errors.New("ledger: insufficient funds for margin")

type Side int

const (
	Long Side = iota
	Short
)

func SideFromOrder(s data.OrderSide) Side {
	if s == data.SideSell {
		return Short
	}
	return Long
}

// Position is a value object owned exclusively by the Ledger; snapshots
// handed to callers/events are copies.
type Position struct {
	ID                string
	Symbol            data.Symbol
	Side              Side
	Quantity          decimal.Decimal
	AveragePrice      decimal.Decimal
	OpenPnL           decimal.Decimal
	BookedPnL         decimal.Decimal
	HighestRecorded   decimal.Decimal
	LowestRecorded    decimal.Decimal
	IsClosed          bool
}

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Ledger is exclusively owned by the matching engine; strategies only
// observe it through the read-only query methods below (§3).
type Ledger struct {
	mu sync.RWMutex

	AccountID  string
	Brokerage  string
	Currency   string
	policy     risk.Policy

	cashValue     decimal.Decimal
	cashAvailable decimal.Decimal
	cashUsed      decimal.Decimal

	positions       map[string]*Position   // keyed by symbol, at most one open
	positionsClosed map[string][]*Position // append-only per symbol
	positionCounter map[string]int
}

func New(accountID, brokerage, currency string, initialCash float64, policy risk.Policy) *Ledger {
	cash := decimal.NewFromFloat(initialCash)
	return &Ledger{
		AccountID: accountID, Brokerage: brokerage, Currency: currency,
		policy:          policy,
		cashValue:       cash,
		cashAvailable:   cash,
		cashUsed:        decimal.Zero,
		positions:       map[string]*Position{},
		positionsClosed: map[string][]*Position{},
		positionCounter: map[string]int{},
	}
}

// Fill applies a single fill to the ledger, implementing the three-way
// position-update algorithm of §4.7. Returns the resulting (possibly
// closed) position, or an error if margin cannot be reserved.
func (l *Ledger) Fill(sym data.Symbol, quantity float64, price float64, side data.OrderSide) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := sym.String()
	q := decimal.NewFromFloat(quantity)
	p := decimal.NewFromFloat(price)
	fillSide := SideFromOrder(side)

	existing, hasExisting := l.positions[key]

	if !hasExisting {
		return l.open(key, sym, fillSide, q, p)
	}

	if existing.Side == fillSide {
		return l.increase(existing, q, p)
	}

	return l.reduceOrFlip(key, sym, existing, fillSide, q, p)
}

func (l *Ledger) open(key string, sym data.Symbol, side Side, q, p decimal.Decimal) (Position, error) {
	margin := decimal.NewFromFloat(l.policy.MarginRequired(q.InexactFloat64(), p.InexactFloat64()))
	if l.cashAvailable.LessThan(margin) {
		return Position{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, margin.String(), l.cashAvailable.String())
	}
	l.positionCounter[key]++
	pos := &Position{
		ID: fmt.Sprintf("%s-%d-%s", key, l.positionCounter[key], uuid.NewString()[:8]),
		Symbol: sym, Side: side, Quantity: q, AveragePrice: p,
		HighestRecorded: p, LowestRecorded: p,
	}
	l.positions[key] = pos
	l.cashUsed = l.cashUsed.Add(margin)
	l.cashAvailable = l.cashAvailable.Sub(margin)
	return *pos, nil
}

func (l *Ledger) increase(pos *Position, q, p decimal.Decimal) (Position, error) {
	key := pos.Symbol.String()
	oldMargin := decimal.NewFromFloat(l.policy.MarginRequired(pos.Quantity.InexactFloat64(), pos.AveragePrice.InexactFloat64()))
	newQty := pos.Quantity.Add(q)
	newNotional := pos.Quantity.Mul(pos.AveragePrice).Add(q.Mul(p))
	newAvg := newNotional.Div(newQty)
	newMargin := decimal.NewFromFloat(l.policy.MarginRequired(newQty.InexactFloat64(), newAvg.InexactFloat64()))
	delta := newMargin.Sub(oldMargin)
	if delta.IsPositive() && l.cashAvailable.LessThan(delta) {
		return Position{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, delta.String(), l.cashAvailable.String())
	}
	pos.Quantity = newQty
	pos.AveragePrice = newAvg
	l.cashUsed = l.cashUsed.Add(delta)
	l.cashAvailable = l.cashAvailable.Sub(delta)
	_ = key
	return *pos, nil
}

// reduceOrFlip implements the "opposite-side existing" branch of §4.7,
// using the reduce-side sign resolved at the spec's Open Question:
// Long reductions book (p - p_old)*q; Short reductions book (p_old - p)*q.
func (l *Ledger) reduceOrFlip(key string, sym data.Symbol, pos *Position, fillSide Side, q, p decimal.Decimal) (Position, error) {
	reduceQty := decimal.Min(q, pos.Quantity)
	var pnl decimal.Decimal
	if pos.Side == Long {
		pnl = p.Sub(pos.AveragePrice).Mul(reduceQty)
	} else {
		pnl = pos.AveragePrice.Sub(p).Mul(reduceQty)
	}
	pnl = round2(pnl)
	pos.BookedPnL = pos.BookedPnL.Add(pnl)
	pos.Quantity = pos.Quantity.Sub(reduceQty)

	margin := decimal.NewFromFloat(l.policy.MarginRequired(reduceQty.InexactFloat64(), pos.AveragePrice.InexactFloat64()))

	if pos.Quantity.IsZero() {
		pos.OpenPnL = decimal.Zero
		pos.IsClosed = true
		l.cashUsed = l.cashUsed.Sub(margin)
		l.cashAvailable = l.cashAvailable.Add(margin).Add(pnl)
		closed := *pos
		l.positionsClosed[key] = append(l.positionsClosed[key], &closed)
		delete(l.positions, key)

		remainder := q.Sub(reduceQty)
		if remainder.IsPositive() {
			return l.open(key, sym, fillSide, remainder, p)
		}
		return closed, nil
	}

	// partial reduce: position stays open, same side, recompute open_pnl at p.
	l.cashUsed = l.cashUsed.Sub(margin)
	l.cashAvailable = l.cashAvailable.Add(margin).Add(pnl)
	l.recomputeOpenPnL(pos, p)
	return *pos, nil
}

func (l *Ledger) recomputeOpenPnL(pos *Position, price decimal.Decimal) {
	var pnl decimal.Decimal
	if pos.Side == Long {
		pnl = price.Sub(pos.AveragePrice).Mul(pos.Quantity)
	} else {
		pnl = pos.AveragePrice.Sub(price).Mul(pos.Quantity)
	}
	pos.OpenPnL = round2(pnl)
	if price.GreaterThan(pos.HighestRecorded) {
		pos.HighestRecorded = price
	}
	if price.LessThan(pos.LowestRecorded) || pos.LowestRecorded.IsZero() {
		pos.LowestRecorded = price
	}
}

// UpdateOnSlice recomputes open_pnl for every open position against the
// last observed price for matching symbols in the slice.
func (l *Ledger) UpdateOnSlice(slice data.TimeSlice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range slice {
		var sym data.Symbol
		var price float64
		switch v := d.(type) {
		case data.Tick:
			sym, price = v.Sym, v.Price
		case data.Price:
			sym, price = v.Sym, v.Price
		case data.Candle:
			sym, price = v.Sym, v.Close
		case data.Quote:
			sym = v.Sym
			if pos, ok := l.positions[sym.String()]; ok {
				if pos.Side == Long {
					price = v.Bid
				} else {
					price = v.Ask
				}
			}
		case data.QuoteBar:
			sym = v.Sym
			if pos, ok := l.positions[sym.String()]; ok {
				if pos.Side == Long {
					price = v.BidClose
				} else {
					price = v.AskClose
				}
			}
		default:
			continue
		}
		if pos, ok := l.positions[sym.String()]; ok {
			l.recomputeOpenPnL(pos, decimal.NewFromFloat(price))
		}
	}
}

func (l *Ledger) Position(sym data.Symbol) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[sym.String()]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

func (l *Ledger) IsLong(sym data.Symbol) bool {
	p, ok := l.Position(sym)
	return ok && p.Side == Long
}

func (l *Ledger) IsShort(sym data.Symbol) bool {
	p, ok := l.Position(sym)
	return ok && p.Side == Short
}

func (l *Ledger) IsFlat(sym data.Symbol) bool {
	_, ok := l.Position(sym)
	return !ok
}

func (l *Ledger) CashValue() float64     { l.mu.RLock(); defer l.mu.RUnlock(); return l.cashValue.InexactFloat64() }
func (l *Ledger) CashAvailable() float64 { l.mu.RLock(); defer l.mu.RUnlock(); return l.cashAvailable.InexactFloat64() }
func (l *Ledger) CashUsed() float64      { l.mu.RLock(); defer l.mu.RUnlock(); return l.cashUsed.InexactFloat64() }

// Stats is the §4.7 print() summary: total trades, win/loss/breakeven
// counts, win rate, risk-reward and cumulative pnl, computed from the
// closed-positions ledger.
type Stats struct {
	TotalTrades int
	Wins        int
	Losses      int
	BreakEvens  int
	WinRate     float64
	RiskReward  float64
	CumulativePnL float64
}

func (l *Ledger) Print() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var s Stats
	winSum, lossSum := decimal.Zero, decimal.Zero
	cum := decimal.Zero
	for _, closedList := range l.positionsClosed {
		for _, pos := range closedList {
			s.TotalTrades++
			cum = cum.Add(pos.BookedPnL)
			switch {
			case pos.BookedPnL.IsPositive():
				s.Wins++
				winSum = winSum.Add(pos.BookedPnL)
			case pos.BookedPnL.IsNegative():
				s.Losses++
				lossSum = lossSum.Add(pos.BookedPnL)
			default:
				s.BreakEvens++
			}
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	}
	if !lossSum.IsZero() {
		s.RiskReward = winSum.Div(lossSum.Abs()).InexactFloat64()
	}
	s.CumulativePnL = round2(cum).InexactFloat64()
	return s
}
