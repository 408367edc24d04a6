package matching_test

import (
	"context"
	"testing"
	"time"

	"fundforge/internal/book"
	"fundforge/internal/data"
	"fundforge/internal/ledger"
	"fundforge/internal/matching"
	"fundforge/pkg/risk"
)

func setup(t *testing.T) (*matching.Engine, *book.Cache, *ledger.Ledger, data.Symbol) {
	t.Helper()
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	cache := book.NewCache()
	l := ledger.New("acct-1", "sim", "USD", 100000, risk.DefaultPolicy())
	engine := matching.New(matching.Config{}, cache, l)
	return engine, cache, l, sym
}

// ─── scenario 4: EnterLong then ExitLong via the matching engine ──────────

func TestEnterLongThenExitLong(t *testing.T) {
	engine, cache, _, sym := setup(t)
	cache.SetLastPrice(sym, 50.0)
	engine.SetTime(time.Unix(0, 0))

	evt, posEvt, err := engine.Create(context.Background(), matching.Order{ID: "o1", Symbol: sym, Kind: matching.EnterLong, Quantity: 2})
	if err != nil {
		t.Fatalf("EnterLong: %v", err)
	}
	if evt.State != matching.Filled || posEvt == nil {
		t.Fatalf("expected a filled EnterLong, got %+v", evt)
	}

	cache.SetLastPrice(sym, 52.0)
	engine.SetTime(time.Unix(1, 0))

	evt2, posEvt2, err := engine.Create(context.Background(), matching.Order{ID: "o2", Symbol: sym, Kind: matching.ExitLong})
	if err != nil {
		t.Fatalf("ExitLong: %v", err)
	}
	if evt2.State != matching.Filled {
		t.Fatalf("expected a filled ExitLong, got %+v", evt2)
	}
	if got := posEvt2.Position.BookedPnL.InexactFloat64(); got != 4.0 {
		t.Errorf("BookedPnL: got %v, want 4.0", got)
	}
}

// ─── rejection paths ────────────────────────────────────────────────────────

func TestExitLongRejectedWithoutOpenPosition(t *testing.T) {
	engine, _, _, sym := setup(t)
	evt, posEvt, err := engine.Create(context.Background(), matching.Order{ID: "o1", Symbol: sym, Kind: matching.ExitLong})
	if err != nil {
		t.Fatalf("Create should not error on a rejection: %v", err)
	}
	if evt.State != matching.Rejected || posEvt != nil {
		t.Errorf("expected a rejected ExitLong with no position event, got %+v / %+v", evt, posEvt)
	}
}

func TestNoMarketPriceRejectsOrder(t *testing.T) {
	engine, _, _, sym := setup(t)
	evt, _, err := engine.Create(context.Background(), matching.Order{ID: "o1", Symbol: sym, Kind: matching.EnterLong, Quantity: 1})
	if err != nil {
		t.Fatalf("Create should not error on a rejection: %v", err)
	}
	if evt.State != matching.Rejected {
		t.Errorf("expected rejection with no market price, got %+v", evt)
	}
}

func TestLimitOrdersRejectedInBacktest(t *testing.T) {
	engine, cache, _, sym := setup(t)
	cache.SetLastPrice(sym, 10)
	evt, _, err := engine.Create(context.Background(), matching.Order{ID: "o1", Symbol: sym, Kind: matching.Limit, Quantity: 1})
	if err != nil {
		t.Fatalf("Create should not error on a rejection: %v", err)
	}
	if evt.State != matching.Rejected {
		t.Errorf("expected limit orders to be rejected in backtest, got %+v", evt)
	}
}

func TestCancelUnknownOrderReturnsNoPendingOrderFound(t *testing.T) {
	engine, _, _, _ := setup(t)
	evt := engine.Cancel(context.Background(), "does-not-exist")
	if evt.State != matching.Rejected || evt.Reason != "No pending order found" {
		t.Errorf("unexpected cancel result: %+v", evt)
	}
}

// ─── market price waterfall: book top-of-book takes priority over last price ─

func TestMarketPriceFavorsBookOverLastPrice(t *testing.T) {
	engine, cache, _, sym := setup(t)
	cache.SetLastPrice(sym, 100)
	b := cache.GetOrCreateBook(sym, time.Unix(0, 0))
	b.Update(map[int]float64{0: 90}, map[int]float64{0: 95}, time.Unix(0, 0))

	evt, _, err := engine.Create(context.Background(), matching.Order{ID: "o1", Symbol: sym, Kind: matching.EnterLong, Quantity: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if evt.FillPrice != 95 {
		t.Errorf("expected fill at the book ask (95), got %v", evt.FillPrice)
	}
}
