// Package matching implements the backtest matching engine (C8): order
// requests handled one direct call at a time (Create, Cancel) that fill
// against the order book / last-price cache and drive the ledger. There is
// no request channel or consumer loop. Grounded on
// ff_standard_lib/src/market_handler/market_handlers.rs's
// simulated_order_matching and order_matching::backtest_matching_engine,
// and on the tryFill/SimBroker shape in libs/replay/replay.go for the
// supplemental slippage/commission model.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fundforge/internal/book"
	"fundforge/internal/data"
	"fundforge/internal/ledger"
	"fundforge/pkg/observability"
)

var ErrNoMarketPrice = errors.New("matching: no market price found for symbol")

type OrderKind int

const (
	EnterLong OrderKind = iota
	EnterShort
	ExitLong
	ExitShort
	Market
	Limit // live-only passthrough; rejected in backtest per §4.6
)

type OrderState int

const (
	Created OrderState = iota
	Accepted
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

type Order struct {
	ID       string
	Symbol   data.Symbol
	Kind     OrderKind
	Side     data.OrderSide
	Quantity float64
	State    OrderState
	Reason   string
}

type OrderUpdateEvent struct {
	OrderID   string
	State     OrderState
	Reason    string
	FillPrice float64
	Quantity  float64
	Slippage  float64
	Commission float64
	Time      time.Time
}

type PositionEvent struct {
	Position ledger.Position
	Time     time.Time
}

// Config carries the supplemental slippage/commission model (§4.6); the
// zero value reproduces exact §8 scenario fills (no slippage, no
// commission).
type Config struct {
	SlippageBps      float64
	CommissionPerUnit float64
}

type Request struct {
	Kind  string // "create" | "cancel" | "update"
	Order Order
	ID    string
}

// Engine is the single-writer matching engine. Its owner calls Create and
// Cancel directly; Create calls made from several goroutines at once are
// not serialized against each other. The replay engine advances its clock
// through SetTime.
type Engine struct {
	cfg     Config
	cache   *book.Cache
	ledger  *ledger.Ledger
	mu      sync.Mutex
	pending map[string]Order
	now     time.Time
}

func New(cfg Config, cache *book.Cache, l *ledger.Ledger) *Engine {
	return &Engine{cfg: cfg, cache: cache, ledger: l, pending: map[string]Order{}}
}

// SetTime is called by the replay engine to advance the matching engine's
// view of last_time before processing that step's order requests.
func (e *Engine) SetTime(t time.Time) {
	e.mu.Lock()
	e.now = t
	e.mu.Unlock()
}

// marketPrice resolves the simulated fill price per §4.6: top-of-book
// first, falling back to last price, else NoMarketPrice.
func (e *Engine) marketPrice(sym data.Symbol, side data.OrderSide) (float64, error) {
	if b, ok := e.cache.GetBook(sym); ok {
		if side == data.SideBuy {
			if p, ok := b.AskLevel(0); ok {
				return p, nil
			}
		} else {
			if p, ok := b.BidLevel(0); ok {
				return p, nil
			}
		}
	}
	if p, ok := e.cache.LastPrice(sym); ok {
		return p, nil
	}
	return 0, ErrNoMarketPrice
}

func (e *Engine) applySlippage(price float64, side data.OrderSide) (float64, float64) {
	if e.cfg.SlippageBps == 0 {
		return price, 0
	}
	delta := price * e.cfg.SlippageBps / 10000
	if side == data.SideBuy {
		return price + delta, delta
	}
	return price - delta, delta
}

// reject logs and builds a Rejected OrderUpdateEvent for the given order/reason.
func (e *Engine) reject(ctx context.Context, orderID, reason string, now time.Time) OrderUpdateEvent {
	observability.LogOrderRejected(ctx, orderID, reason)
	return OrderUpdateEvent{OrderID: orderID, State: Rejected, Reason: reason, Time: now}
}

// Create processes an order-creation request, returning the resulting
// OrderUpdateEvent and, if a fill occurred, the induced PositionEvent.
func (e *Engine) Create(ctx context.Context, order Order) (OrderUpdateEvent, *PositionEvent, error) {
	e.mu.Lock()
	now := e.now
	e.mu.Unlock()

	if order.Kind == Limit {
		return e.reject(ctx, order.ID, "limit orders are not supported in backtest", now), nil, nil
	}

	side := order.Side
	switch order.Kind {
	case ExitLong:
		pos, ok := e.ledger.Position(order.Symbol)
		if !ok || pos.Side != ledger.Long {
			return e.reject(ctx, order.ID, "no open long position", now), nil, nil
		}
		side = data.SideSell
		order.Quantity = pos.Quantity.InexactFloat64()
	case ExitShort:
		pos, ok := e.ledger.Position(order.Symbol)
		if !ok || pos.Side != ledger.Short {
			return e.reject(ctx, order.ID, "no open short position", now), nil, nil
		}
		side = data.SideBuy
		order.Quantity = pos.Quantity.InexactFloat64()
	case EnterLong:
		side = data.SideBuy
	case EnterShort:
		side = data.SideSell
	}

	price, err := e.marketPrice(order.Symbol, side)
	if err != nil {
		return e.reject(ctx, order.ID, "no market price", now), nil, nil
	}

	// EnterLong/EnterShort first exit an opposite-side position at market,
	// per §4.6; the ledger's reduce-then-open path (§4.7) does this in one
	// Fill call, so no separate exit order is needed here.
	fillPrice, slippage := e.applySlippage(price, side)
	pos, err := e.ledger.Fill(order.Symbol, order.Quantity, fillPrice, side)
	if err != nil {
		return e.reject(ctx, order.ID, fmt.Sprintf("insufficient funds: %v", err), now), nil, nil
	}

	commission := order.Quantity * e.cfg.CommissionPerUnit
	evt := OrderUpdateEvent{
		OrderID: order.ID, State: Filled, FillPrice: fillPrice, Quantity: order.Quantity,
		Slippage: slippage, Commission: commission, Time: now,
	}
	return evt, &PositionEvent{Position: pos, Time: now}, nil
}

// Cancel processes a cancel request for a still-pending order.
func (e *Engine) Cancel(ctx context.Context, id string) OrderUpdateEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[id]; !ok {
		return e.reject(ctx, id, "No pending order found", e.now)
	}
	delete(e.pending, id)
	return OrderUpdateEvent{OrderID: id, State: Cancelled}
}
