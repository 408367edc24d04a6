// Package book implements the order book and last-price cache (C7):
// per-symbol top-N bid/ask levels and a last-trade-price map, both
// concurrency-safe (each OrderBook has its own lock; the Cache's maps
// share one cache-wide lock), grounded on
// ff_standard_lib/src/standardized_types/base_data/order_book.rs and the
// last_price/order_books maps in market_handler/market_handlers.rs.
package book

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fundforge/internal/data"
)

// OrderBook is a single symbol's bid/ask level map. Level 0 is
// top-of-book. One writer (the matching engine's market feed) per symbol,
// many concurrent readers, guarded by a per-book lock.
type OrderBook struct {
	mu     sync.RWMutex
	symbol data.Symbol
	bid    map[int]float64
	ask    map[int]float64
	time   time.Time
}

func NewOrderBook(symbol data.Symbol, t time.Time) *OrderBook {
	return &OrderBook{symbol: symbol, bid: map[int]float64{}, ask: map[int]float64{}, time: t}
}

// Update applies a new set of bid/ask levels (from a Quote or QuoteBar).
func (b *OrderBook) Update(bid, ask map[int]float64, t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for level, price := range bid {
		b.bid[level] = price
	}
	for level, price := range ask {
		b.ask[level] = price
	}
	b.time = t
}

func (b *OrderBook) BidLevel(level int) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.bid[level]
	return p, ok
}

func (b *OrderBook) AskLevel(level int) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.ask[level]
	return p, ok
}

// Cache aggregates per-symbol OrderBooks and a last-trade-price map. It is
// the shared mutable state §5 and §9 call out as concurrent maps keyed by
// symbol, read by both the matching engine and strategy queries.
type Cache struct {
	mu        sync.RWMutex
	books     map[string]*OrderBook
	lastPrice map[string]float64

	// snapshot is an optional write-through mirror of last-price updates so
	// an out-of-process reader (a dashboard, a second strategy) can observe
	// book state without touching these in-process maps. Nil disables it.
	snapshot *redis.Client
}

func NewCache() *Cache {
	return &Cache{books: map[string]*OrderBook{}, lastPrice: map[string]float64{}}
}

// WithSnapshot enables a write-through last-price mirror to the given
// Redis client. Snapshot writes are best-effort: a failure is dropped,
// never propagated to the matching engine's write path.
func (c *Cache) WithSnapshot(client *redis.Client) *Cache {
	c.snapshot = client
	return c
}

func (c *Cache) writeSnapshot(sym data.Symbol, price float64) {
	if c.snapshot == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c.snapshot.Set(ctx, fmt.Sprintf("fundforge:lastprice:%s", sym.String()), price, 0)
}

func (c *Cache) GetOrCreateBook(sym data.Symbol, t time.Time) *OrderBook {
	key := sym.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[key]
	if !ok {
		b = NewOrderBook(sym, t)
		c.books[key] = b
	}
	return b
}

func (c *Cache) GetBook(sym data.Symbol) (*OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[sym.String()]
	return b, ok
}

func (c *Cache) SetLastPrice(sym data.Symbol, price float64) {
	c.mu.Lock()
	c.lastPrice[sym.String()] = price
	c.mu.Unlock()
	c.writeSnapshot(sym, price)
}

func (c *Cache) LastPrice(sym data.Symbol) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.lastPrice[sym.String()]
	return p, ok
}

// ApplyItem updates last-price and order-book state from a single
// base-data item. The replay engine calls this once per item, in a plain
// sequential loop over the assembled time slice (not fanned out across
// goroutines — see DESIGN.md's note on §5's concurrency model).
func (c *Cache) ApplyItem(d data.BaseData) {
	switch v := d.(type) {
	case data.Tick:
		c.SetLastPrice(v.Sym, v.Price)
	case data.Candle:
		c.SetLastPrice(v.Sym, v.Close)
	case data.Price:
		c.SetLastPrice(v.Sym, v.Price)
	case data.QuoteBar:
		book := c.GetOrCreateBook(v.Sym, v.TimeUTC())
		book.Update(map[int]float64{0: v.BidClose}, map[int]float64{0: v.AskClose}, v.TimeUTC())
	case data.Quote:
		book := c.GetOrCreateBook(v.Sym, v.TimeUTC())
		book.Update(map[int]float64{v.Level: v.Bid}, map[int]float64{v.Level: v.Ask}, v.TimeUTC())
	case data.Fundamental:
		// no pricing signal
	}
}
