package book_test

import (
	"testing"
	"time"

	"fundforge/internal/book"
	"fundforge/internal/data"
)

func testSymbol() data.Symbol {
	return data.NewSymbol("TEST", "sim", data.MarketEquity)
}

// ─── OrderBook level updates ────────────────────────────────────────────────

func TestOrderBookUpdateMergesLevels(t *testing.T) {
	sym := testSymbol()
	b := book.NewOrderBook(sym, time.Now())

	b.Update(map[int]float64{0: 10}, map[int]float64{0: 11}, time.Now())
	b.Update(map[int]float64{1: 9}, nil, time.Now())

	if p, ok := b.BidLevel(0); !ok || p != 10 {
		t.Errorf("bid level 0: got %v, %v", p, ok)
	}
	if p, ok := b.BidLevel(1); !ok || p != 9 {
		t.Errorf("bid level 1: got %v, %v", p, ok)
	}
	if p, ok := b.AskLevel(0); !ok || p != 11 {
		t.Errorf("ask level 0: got %v, %v", p, ok)
	}
}

func TestOrderBookMissingLevelNotFound(t *testing.T) {
	b := book.NewOrderBook(testSymbol(), time.Now())
	if _, ok := b.BidLevel(5); ok {
		t.Error("expected no bid at an unset level")
	}
}

// ─── Cache.ApplyItem dispatch by BaseData kind ─────────────────────────────

func TestApplyItemTickSetsLastPrice(t *testing.T) {
	c := book.NewCache()
	sym := testSymbol()
	c.ApplyItem(data.Tick{Sym: sym, Price: 42, Time: time.Now()})
	if p, ok := c.LastPrice(sym); !ok || p != 42 {
		t.Errorf("last price after tick: got %v, %v", p, ok)
	}
}

func TestApplyItemCandleSetsLastPriceToClose(t *testing.T) {
	c := book.NewCache()
	sym := testSymbol()
	c.ApplyItem(data.Candle{Sym: sym, Open: 1, Close: 5, Time: time.Now()})
	if p, ok := c.LastPrice(sym); !ok || p != 5 {
		t.Errorf("last price after candle: got %v, %v", p, ok)
	}
}

func TestApplyItemQuoteUpdatesBookAtItsLevel(t *testing.T) {
	c := book.NewCache()
	sym := testSymbol()
	c.ApplyItem(data.Quote{Sym: sym, Bid: 10, Ask: 11, Level: 2, Time: time.Now()})

	b, ok := c.GetBook(sym)
	if !ok {
		t.Fatal("expected a book to exist after a Quote")
	}
	if p, ok := b.BidLevel(2); !ok || p != 10 {
		t.Errorf("bid at level 2: got %v, %v", p, ok)
	}
	if _, ok := c.LastPrice(sym); ok {
		t.Error("expected a Quote not to set last-price")
	}
}

func TestApplyItemFundamentalIsANoOp(t *testing.T) {
	c := book.NewCache()
	sym := testSymbol()
	c.ApplyItem(data.Fundamental{Sym: sym, Time: time.Now()})
	if _, ok := c.LastPrice(sym); ok {
		t.Error("expected a Fundamental not to affect price state")
	}
	if _, ok := c.GetBook(sym); ok {
		t.Error("expected a Fundamental not to create a book")
	}
}

// ─── optional Redis snapshot: disabled by default, never blocks SetLastPrice ─

func TestSetLastPriceWithoutSnapshotConfiguredIsANoOp(t *testing.T) {
	c := book.NewCache()
	sym := testSymbol()
	// No WithSnapshot call: writeSnapshot must be a silent no-op, and
	// SetLastPrice must still succeed.
	c.SetLastPrice(sym, 100)
	if p, ok := c.LastPrice(sym); !ok || p != 100 {
		t.Errorf("last price: got %v, %v", p, ok)
	}
}
