// Package indicator implements C5: named indicators keyed by name and
// indexed by DataSubscription, with warm-up and per-slice evaluation,
// grounded on ff_standard_lib/src/indicators/indicator_handler.rs.
package indicator

import (
	"sort"
	"sync"
	"time"

	"fundforge/internal/data"
)

// Value is one indicator's output at a point in time, analogous to
// IndicatorValues in the original source.
type Value struct {
	Name   string
	Time   time.Time
	Fields map[string]float64
}

// Indicator is the shared capability set every indicator implements.
type Indicator interface {
	Name() string
	Subscription() data.DataSubscription
	UpdateBaseData(d data.BaseData) (Value, bool)
	Reset()
	History() []Value
	Current() (Value, bool)
	Index(i int) (Value, bool)
	IsReady() bool
}

// TimeSliceEvent is emitted once per replay step when at least one
// indicator produced a value, tagged with the step's cursor time.
type TimeSliceEvent struct {
	Time   time.Time
	Values []Value
}

// LifecycleEvent mirrors IndicatorEvents::IndicatorAdded/Removed/Replaced.
type LifecycleEvent struct {
	Kind string // "added" | "removed" | "replaced"
	Name string
}

// Handler owns all indicators, grouped by the DataSubscription they
// observe.
type Handler struct {
	mu sync.Mutex

	bySubscription map[data.DataSubscription]map[string]Indicator
	subscriptionOf map[string]data.DataSubscription
	subscriptionOrder []data.DataSubscription

	warmUpComplete bool
	lifecycle      []LifecycleEvent
}

func NewHandler() *Handler {
	return &Handler{
		bySubscription: map[data.DataSubscription]map[string]Indicator{},
		subscriptionOf: map[string]data.DataSubscription{},
	}
}

func (h *Handler) SetWarmUpComplete() {
	h.mu.Lock()
	h.warmUpComplete = true
	h.mu.Unlock()
}

// Add registers ind under its own subscription. If warmUp is provided and
// warm-up is already complete, it is invoked to backfill the indicator's
// history before it starts observing live slices (§4.1/§4.4 warm-up
// procedure).
func (h *Handler) Add(ind Indicator, warmUp func(Indicator)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := ind.Subscription()
	byName, ok := h.bySubscription[sub]
	if !ok {
		byName = map[string]Indicator{}
		h.bySubscription[sub] = byName
		h.subscriptionOrder = append(h.subscriptionOrder, sub)
	}

	_, replaced := h.subscriptionOf[ind.Name()]

	if h.warmUpComplete && warmUp != nil {
		warmUp(ind)
	}

	byName[ind.Name()] = ind
	h.subscriptionOf[ind.Name()] = sub

	kind := "added"
	if replaced {
		kind = "replaced"
	}
	h.lifecycle = append(h.lifecycle, LifecycleEvent{Kind: kind, Name: ind.Name()})
}

func (h *Handler) Remove(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscriptionOf[name]
	if !ok {
		return
	}
	if byName, ok := h.bySubscription[sub]; ok {
		delete(byName, name)
	}
	delete(h.subscriptionOf, name)
	h.lifecycle = append(h.lifecycle, LifecycleEvent{Kind: "removed", Name: name})
}

func (h *Handler) UnsubscribeSubscription(sub data.DataSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byName, ok := h.bySubscription[sub]
	if !ok {
		return
	}
	for name := range byName {
		delete(h.subscriptionOf, name)
	}
	delete(h.bySubscription, sub)
}

// UpdateTimeSlice evaluates every indicator whose subscription matches a
// slice item, in subscription-insertion order, per §4.4.
func (h *Handler) UpdateTimeSlice(t time.Time, slice data.TimeSlice) (TimeSliceEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	results := map[string]Value{}
	for _, sub := range h.subscriptionOrder {
		byName, ok := h.bySubscription[sub]
		if !ok {
			continue
		}
		for _, d := range slice {
			if d.Subscription() != sub {
				continue
			}
			for _, ind := range byName {
				if v, ok := ind.UpdateBaseData(d); ok {
					results[ind.Name()] = v
				}
			}
		}
	}
	if len(results) == 0 {
		return TimeSliceEvent{}, false
	}
	names := make([]string, 0, len(results))
	for n := range results {
		names = append(names, n)
	}
	sort.Strings(names)
	values := make([]Value, 0, len(names))
	for _, n := range names {
		values = append(values, results[n])
	}
	return TimeSliceEvent{Time: t, Values: values}, true
}

func (h *Handler) History(name string) []Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	ind := h.find(name)
	if ind == nil {
		return nil
	}
	return ind.History()
}

func (h *Handler) Current(name string) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ind := h.find(name)
	if ind == nil {
		return Value{}, false
	}
	return ind.Current()
}

func (h *Handler) Index(name string, i int) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ind := h.find(name)
	if ind == nil {
		return Value{}, false
	}
	return ind.Index(i)
}

func (h *Handler) find(name string) Indicator {
	sub, ok := h.subscriptionOf[name]
	if !ok {
		return nil
	}
	return h.bySubscription[sub][name]
}

func (h *Handler) DrainLifecycleEvents() []LifecycleEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	evts := h.lifecycle
	h.lifecycle = nil
	return evts
}

// WarmUpMargin computes the "H * resolution + 4 days" warm-up window
// margin from §4.1/§4.4, falling back to 4 days alone for tick/instant
// resolutions that have no fixed duration.
func WarmUpMargin(historyLen int, res data.Resolution) time.Duration {
	base := 4 * 24 * time.Hour
	if !res.IsTimeDriven() {
		return base
	}
	return time.Duration(historyLen)*res.Duration() + base
}
