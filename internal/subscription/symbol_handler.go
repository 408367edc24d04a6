// Package subscription implements C3 (SymbolSubscriptionHandler) and C4
// (SubscriptionHandler), grounded on
// ff_standard_lib/src/standardized_types/subscription_handler.rs.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundforge/internal/consolidate"
	"fundforge/internal/data"
	"fundforge/internal/vendor"
)

var ErrEmptyCatalog = errors.New("subscription: vendor resolution catalog is empty for this symbol's market type")

// SymbolHandler owns a symbol's primary subscription (native vendor
// resolution+type) and a map of secondary, consolidator-backed
// subscriptions, per §4.2.
type SymbolHandler struct {
	Symbol    data.Symbol
	adapter   vendor.Adapter
	tickSize  float64

	primary        data.DataSubscription
	primaryHistory *data.RollingWindow[data.BaseData]

	secondaries map[data.DataSubscription]consolidate.Consolidator
	countFor    map[data.DataSubscription]*consolidate.CountConsolidator
}

func NewSymbolHandler(sym data.Symbol, adapter vendor.Adapter, tickSize float64) *SymbolHandler {
	return &SymbolHandler{
		Symbol: sym, adapter: adapter, tickSize: tickSize,
		secondaries: map[data.DataSubscription]consolidate.Consolidator{},
		countFor:    map[data.DataSubscription]*consolidate.CountConsolidator{},
	}
}

// Subscribe implements the §4.2 primary-selection algorithm for a single
// requested subscription.
func (h *SymbolHandler) Subscribe(ctx context.Context, requested data.DataSubscription, historyLen int) error {
	catalog, err := h.adapter.Resolutions(ctx, requested.MarketType)
	if err != nil {
		return fmt.Errorf("subscription: resolving vendor catalog: %w", err)
	}
	if len(catalog) == 0 {
		return ErrEmptyCatalog
	}

	// Step 4: Ticks(n>1) always routes through a CountConsolidator fed by
	// a Ticks(1) primary, regardless of what else the catalog serves.
	if requested.Resolution.Kind == data.KindTicks && requested.Resolution.N > 1 {
		h.ensurePrimary(data.DataSubscription{Symbol: h.Symbol, Resolution: data.Ticks(1), BaseDataType: data.TypeTick, MarketType: requested.MarketType}, historyLen)
		counter := consolidate.NewCount(h.Symbol, requested.Resolution.N, historyLen)
		h.secondaries[requested] = counter
		h.countFor[requested] = counter
		return nil
	}

	// Step 2: exact catalog match becomes primary directly, no consolidator.
	for _, entry := range catalog {
		if entry.Resolution.Equal(requested.Resolution) && entry.BaseDataType == requested.BaseDataType {
			h.ensurePrimary(requested, historyLen)
			return nil
		}
	}

	// Step 3: else the requested subscription is secondary; primary is the
	// catalog entry with the largest resolution still <= requested.
	best, ok := vendor.LargestAtMost(catalog, requested.Resolution, requested.BaseDataType)
	if !ok {
		return fmt.Errorf("subscription: no compatible vendor resolution <= %v for %v", requested.Resolution, requested)
	}
	primarySub := data.DataSubscription{Symbol: h.Symbol, Resolution: best.Resolution, BaseDataType: best.BaseDataType, MarketType: requested.MarketType}
	h.ensurePrimary(primarySub, historyLen)

	cons, err := consolidate.New(requested, historyLen, h.tickSize)
	if err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	h.secondaries[requested] = cons
	return nil
}

func (h *SymbolHandler) ensurePrimary(sub data.DataSubscription, historyLen int) {
	if h.primaryHistory == nil {
		h.primary = sub
		h.primaryHistory = data.NewRollingWindow[data.BaseData](historyLen)
	}
}

// Unsubscribe removes a secondary subscription. Removing the primary
// while a secondary remains is forbidden (§4.2); the caller must
// unsubscribe all secondaries first, after which the owning Handler drops
// this SymbolHandler once IsEmpty reports true.
func (h *SymbolHandler) Unsubscribe(sub data.DataSubscription) {
	delete(h.secondaries, sub)
	delete(h.countFor, sub)
}

func (h *SymbolHandler) IsEmpty() bool { return len(h.secondaries) == 0 }

func (h *SymbolHandler) Primary() data.DataSubscription { return h.primary }

func (h *SymbolHandler) HasPrimary() bool { return h.primaryHistory != nil }

// Update feeds base_data into the primary history, then every secondary
// consolidator, returning the concatenation of secondary outputs (§4.2).
func (h *SymbolHandler) Update(d data.BaseData) []data.BaseData {
	if h.primaryHistory != nil {
		h.primaryHistory.Add(d)
	}
	var out []data.BaseData
	for _, cons := range h.secondaries {
		out = append(out, cons.Update(d)...)
	}
	return out
}

// UpdateTime forwards a time advance to every secondary.
func (h *SymbolHandler) UpdateTime(t time.Time) []data.BaseData {
	var out []data.BaseData
	for _, cons := range h.secondaries {
		out = append(out, cons.UpdateTime(t)...)
	}
	return out
}
