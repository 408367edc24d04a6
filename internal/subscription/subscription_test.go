package subscription_test

import (
	"context"
	"testing"
	"time"

	"fundforge/internal/data"
	"fundforge/internal/subscription"
	"fundforge/internal/vendor"
)

// fakeAdapter serves a fixed resolution catalog and nothing else; only the
// catalog-shaped methods are exercised by the subscription handler.
type fakeAdapter struct {
	catalog []vendor.ResolutionCatalogEntry
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) Resolutions(ctx context.Context, marketType data.MarketType) ([]vendor.ResolutionCatalogEntry, error) {
	return f.catalog, nil
}
func (f *fakeAdapter) TickSize(ctx context.Context, sym data.Symbol) (float64, error) { return 0.01, nil }
func (f *fakeAdapter) HistoricalRange(ctx context.Context, sub data.DataSubscription, from, to time.Time) (map[time.Time]data.TimeSlice, error) {
	return nil, nil
}
func (f *fakeAdapter) StreamLive(ctx context.Context, sub data.DataSubscription) (<-chan data.BaseData, error) {
	return nil, nil
}

func newAdapter() *fakeAdapter {
	return &fakeAdapter{catalog: []vendor.ResolutionCatalogEntry{
		{Resolution: data.Seconds(1), BaseDataType: data.TypeCandle},
		{Resolution: data.Minutes(1), BaseDataType: data.TypeCandle},
		{Resolution: data.Ticks(1), BaseDataType: data.TypeTick},
	}}
}

// ─── exact catalog match becomes primary directly ──────────────────────────

func TestSubscribeExactMatchBecomesPrimary(t *testing.T) {
	h := subscription.NewHandler(newAdapter())
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	sub := data.DataSubscription{Symbol: sym, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}

	if err := h.Subscribe(context.Background(), sub, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	primaries := h.PrimarySubscriptions()
	if len(primaries) != 1 || primaries[0] != sub {
		t.Fatalf("expected the exact match to become primary, got %+v", primaries)
	}
}

// ─── coarser request becomes secondary behind the nearest finer primary ────

func TestSubscribeCoarserRequestBecomesSecondary(t *testing.T) {
	h := subscription.NewHandler(newAdapter())
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	requested := data.DataSubscription{Symbol: sym, Resolution: data.Minutes(5), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}

	if err := h.Subscribe(context.Background(), requested, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	primaries := h.PrimarySubscriptions()
	if len(primaries) != 1 || primaries[0].Resolution != data.Minutes(1) {
		t.Fatalf("expected Minutes(1) primary, got %+v", primaries)
	}
	strategy := h.StrategySubscriptions()
	if len(strategy) != 1 || strategy[0] != requested {
		t.Fatalf("expected the strategy subscription to be recorded verbatim, got %+v", strategy)
	}
}

// ─── idempotent subscribe ───────────────────────────────────────────────────

func TestSubscribeIsIdempotent(t *testing.T) {
	h := subscription.NewHandler(newAdapter())
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	sub := data.DataSubscription{Symbol: sym, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}

	ctx := context.Background()
	if err := h.Subscribe(ctx, sub, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	h.ConsumeSubscriptionsUpdated()
	if err := h.Subscribe(ctx, sub, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}
	if h.ConsumeSubscriptionsUpdated() {
		t.Error("expected the second, duplicate Subscribe not to flag an update")
	}
}

// ─── primary removal forbidden while a secondary remains ──────────────────

func TestUnsubscribePrimaryForbiddenWhileSecondaryRemains(t *testing.T) {
	h := subscription.NewHandler(newAdapter())
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	ctx := context.Background()
	secondary := data.DataSubscription{Symbol: sym, Resolution: data.Minutes(5), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}
	primary := data.DataSubscription{Symbol: sym, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}

	if err := h.Subscribe(ctx, secondary, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("Subscribe secondary: %v", err)
	}

	h.Unsubscribe(primary)
	primaries := h.PrimarySubscriptions()
	if len(primaries) != 1 {
		t.Fatalf("expected the primary to survive while a secondary remains, got %+v", primaries)
	}

	h.Unsubscribe(secondary)
	if primaries := h.PrimarySubscriptions(); len(primaries) != 0 {
		t.Errorf("expected the primary to clear once its last secondary is gone, got %+v", primaries)
	}
}

// ─── Ticks(n>1) always routes through a count consolidator over Ticks(1) ──

func TestTicksGreaterThanOneRoutesThroughCountConsolidator(t *testing.T) {
	h := subscription.NewHandler(newAdapter())
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	requested := data.DataSubscription{Symbol: sym, Resolution: data.Ticks(3), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}

	if err := h.Subscribe(context.Background(), requested, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	primaries := h.PrimarySubscriptions()
	if len(primaries) != 1 || primaries[0].Resolution != data.Ticks(1) {
		t.Fatalf("expected a Ticks(1) primary, got %+v", primaries)
	}
}

// ─── deterministic fan-out: symbols dispatched in name order ──────────────

func TestUpdateTimeSliceDispatchesInSymbolNameOrder(t *testing.T) {
	h := subscription.NewHandler(newAdapter())
	ctx := context.Background()
	symB := data.NewSymbol("BBB", "sim", data.MarketEquity)
	symA := data.NewSymbol("AAA", "sim", data.MarketEquity)

	subB := data.DataSubscription{Symbol: symB, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}
	subA := data.DataSubscription{Symbol: symA, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}
	if err := h.Subscribe(ctx, subB, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("Subscribe B: %v", err)
	}
	if err := h.Subscribe(ctx, subA, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("Subscribe A: %v", err)
	}

	primaries := h.PrimarySubscriptions()
	if len(primaries) != 2 || primaries[0].Symbol.Name != "AAA" || primaries[1].Symbol.Name != "BBB" {
		t.Fatalf("expected primaries sorted by symbol name, got %+v", primaries)
	}
}

// ─── re-subscription mid-stream flags an update for the replay engine ─────

func TestConsumeSubscriptionsUpdatedClearsAfterRead(t *testing.T) {
	h := subscription.NewHandler(newAdapter())
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	sub := data.DataSubscription{Symbol: sym, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}

	if err := h.Subscribe(context.Background(), sub, 10, 0.01, time.Now()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !h.ConsumeSubscriptionsUpdated() {
		t.Fatal("expected the flag to be set after a new Subscribe")
	}
	if h.ConsumeSubscriptionsUpdated() {
		t.Error("expected the flag to be cleared after being consumed")
	}
}
