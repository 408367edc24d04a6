package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"fundforge/internal/data"
	"fundforge/internal/vendor"
)

// Event mirrors the supplemental DataSubscriptionEvent family described in
// SPEC_FULL.md §3 (observational only; carried from the original
// implementation's StrategyEvent::DataSubscriptionEvent variants).
type Event struct {
	Kind       string // "subscribed" | "unsubscribed"
	Subscription data.DataSubscription
}

// Handler is C4: cross-symbol dispatch over a set of per-symbol handlers
// plus a bypass path for fundamental subscriptions, which are never
// consolidated.
type Handler struct {
	mu sync.Mutex

	adapter vendor.Adapter

	fundamentals map[data.DataSubscription]bool
	symbols      map[data.Symbol]*SymbolHandler

	// strategySubs preserves exactly what the strategy asked for,
	// regardless of which became primary vs. secondary (§4.3).
	strategySubs map[data.DataSubscription]bool

	subscriptionsUpdated bool
	events               []Event
}

func NewHandler(adapter vendor.Adapter) *Handler {
	return &Handler{
		adapter:      adapter,
		fundamentals: map[data.DataSubscription]bool{},
		symbols:      map[data.Symbol]*SymbolHandler{},
		strategySubs: map[data.DataSubscription]bool{},
	}
}

// Subscribe is idempotent and sets the subscriptions-updated flag.
func (h *Handler) Subscribe(ctx context.Context, sub data.DataSubscription, historyLen int, tickSize float64, currentTime time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.strategySubs[sub] {
		return nil // idempotent
	}

	if sub.BaseDataType == data.TypeFundamental {
		h.fundamentals[sub] = true
		h.strategySubs[sub] = true
		h.subscriptionsUpdated = true
		h.events = append(h.events, Event{Kind: "subscribed", Subscription: sub})
		return nil
	}

	sh, ok := h.symbols[sub.Symbol]
	if !ok {
		sh = NewSymbolHandler(sub.Symbol, h.adapter, tickSize)
		h.symbols[sub.Symbol] = sh
	}
	if err := sh.Subscribe(ctx, sub, historyLen); err != nil {
		if sh.IsEmpty() && !sh.HasPrimary() {
			delete(h.symbols, sub.Symbol)
		}
		return err
	}

	h.strategySubs[sub] = true
	h.subscriptionsUpdated = true
	h.events = append(h.events, Event{Kind: "subscribed", Subscription: sub})
	return nil
}

// Unsubscribe is symmetric with Subscribe.
func (h *Handler) Unsubscribe(sub data.DataSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.strategySubs[sub] {
		return
	}
	delete(h.strategySubs, sub)
	h.subscriptionsUpdated = true
	h.events = append(h.events, Event{Kind: "unsubscribed", Subscription: sub})

	if sub.BaseDataType == data.TypeFundamental {
		delete(h.fundamentals, sub)
		return
	}

	sh, ok := h.symbols[sub.Symbol]
	if !ok {
		return
	}
	if sub == sh.Primary() {
		// forbidden while secondaries remain; only clear if already empty.
		if sh.IsEmpty() {
			delete(h.symbols, sub.Symbol)
		}
		return
	}
	sh.Unsubscribe(sub)
	if sh.IsEmpty() {
		delete(h.symbols, sub.Symbol)
	}
}

// PrimarySubscriptions returns the union over symbol handlers of their
// primaries, sorted by symbol name for deterministic fan-out ordering
// (§9: "sort by symbol before dispatch").
func (h *Handler) PrimarySubscriptions() []data.DataSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]data.DataSubscription, 0, len(h.symbols))
	for _, sh := range h.symbols {
		if sh.HasPrimary() {
			out = append(out, sh.Primary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.Name < out[j].Symbol.Name })
	return out
}

// StrategySubscriptions returns exactly what the strategy asked for.
func (h *Handler) StrategySubscriptions() []data.DataSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]data.DataSubscription, 0, len(h.strategySubs))
	for s := range h.strategySubs {
		out = append(out, s)
	}
	return out
}

// UpdateTimeSlice feeds every primary base-data item in the slice to its
// symbol handler and returns the concatenated consolidator outputs (not
// including the primary items themselves).
func (h *Handler) UpdateTimeSlice(slice data.TimeSlice) []data.BaseData {
	h.mu.Lock()
	defer h.mu.Unlock()

	// stabilize fan-out order by symbol before dispatch (§9 determinism).
	sorted := make(data.TimeSlice, len(slice))
	copy(sorted, slice)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Subscription().Symbol.Name < sorted[j].Subscription().Symbol.Name
	})

	var out []data.BaseData
	for _, d := range sorted {
		sh, ok := h.symbols[d.Subscription().Symbol]
		if !ok {
			continue
		}
		out = append(out, sh.Update(d)...)
	}
	return out
}

// UpdateConsolidatorsTime advances every symbol handler's secondaries by
// time alone, for bars that close between primary data arrivals.
func (h *Handler) UpdateConsolidatorsTime(t time.Time) []data.BaseData {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]data.Symbol, 0, len(h.symbols))
	for sym := range h.symbols {
		names = append(names, sym)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })

	var out []data.BaseData
	for _, sym := range names {
		out = append(out, h.symbols[sym].UpdateTime(t)...)
	}
	return out
}

// DrainEvents returns and clears buffered subscribe/unsubscribe events.
func (h *Handler) DrainEvents() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	evts := h.events
	h.events = nil
	return evts
}

// ConsumeSubscriptionsUpdated reports and clears the updated flag, used by
// the replay engine to decide whether to restart the month loop.
func (h *Handler) ConsumeSubscriptionsUpdated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.subscriptionsUpdated
	h.subscriptionsUpdated = false
	return v
}
