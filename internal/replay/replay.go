// Package replay implements C6, the historical replay engine, grounded on
// ff_standard_lib/src/strategies/historical_engine.rs's month-window fetch
// loop and inner step loop, with buffer-step pacing adapted from
// libs/replay/replay.go's ManualClock-driven simulation loop.
package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fundforge/internal/book"
	"fundforge/internal/data"
	"fundforge/internal/events"
	"fundforge/internal/indicator"
	"fundforge/internal/matching"
	"fundforge/internal/subscription"
	"fundforge/internal/vendor"
	"fundforge/pkg/observability"
)

// Mode mirrors the three StrategyMode values named in §4.5's inputs.
type Mode int

const (
	Backtest Mode = iota
	LivePaperTrading
	Live
)

// Config carries the §4.5 inputs.
type Config struct {
	Mode           Mode
	Start          time.Time
	End            time.Time
	WarmUpDuration time.Duration
	BufferStep     time.Duration
}

// Engine drives vendor history through the subscription handler, the
// matching engine, and the indicator handler, emitting events to a Sink
// in the order pinned by §4.5/§4.6.
type Engine struct {
	cfg Config

	adapter    vendor.Adapter
	handler    *subscription.Handler
	cache      *book.Cache
	matching   *matching.Engine
	indicators *indicator.Handler
	sink       events.Sink
}

func New(cfg Config, adapter vendor.Adapter, handler *subscription.Handler, cache *book.Cache, m *matching.Engine, ind *indicator.Handler, sink events.Sink) *Engine {
	return &Engine{cfg: cfg, adapter: adapter, handler: handler, cache: cache, matching: m, indicators: ind, sink: sink}
}

// Run executes the full replay per the §4.5 algorithm until the range is
// exhausted (backtest) or warm-up completes (live modes), emitting a
// Shutdown event on every exit path.
func (e *Engine) Run(ctx context.Context) error {
	cursor := e.cfg.Start.Add(-e.cfg.WarmUpDuration)
	warmUpComplete := false

	target := e.cfg.End
	if e.cfg.Mode != Backtest {
		target = e.cfg.Start
	}

	for cursor.Before(target) {
		windows := monthWindows(cursor, target)

		restarted := false
		for _, w := range windows {
			monthData, times, err := e.fetchMonth(ctx, cursor, w.to)
			if err != nil {
				err = fmt.Errorf("replay: fetching month window: %w", err)
				observability.LogShutdown(ctx, err.Error())
				e.sink.OnEvent(events.NewShutdown(cursor, err.Error()))
				return err
			}

			restart, done, newCursor, newWarmUp, cause, err := e.stepMonth(ctx, cursor, w.to, times, monthData, warmUpComplete)
			cursor, warmUpComplete = newCursor, newWarmUp
			if err != nil {
				observability.LogShutdown(ctx, err.Error())
				e.sink.OnEvent(events.NewShutdown(cursor, err.Error()))
				return err
			}
			if done {
				reason := "end of data"
				if cause == exitLiveWarmUpComplete {
					reason = "warm-up complete (live mode)"
				}
				observability.LogShutdown(ctx, reason)
				e.sink.OnEvent(events.NewShutdown(cursor, reason))
				return nil
			}
			if restart {
				restarted = true
				break // re-fetch from the new cursor with the updated primary set
			}
		}
		if !restarted {
			// month(s) exhausted naturally; outer loop recomputes windows
			// from the advanced cursor, picking up the next month.
			if !cursor.Before(target) {
				break
			}
		}
	}

	observability.LogShutdown(ctx, "end of data")
	e.sink.OnEvent(events.NewShutdown(cursor, "end of data"))
	return nil
}

// exitCause distinguishes the two unrelated causes stepMonth can return
// done=true for, so Run can label the resulting Shutdown event correctly
// instead of assuming every exit is a live-mode warm-up completion.
type exitCause int

const (
	exitNone exitCause = iota
	exitEndOfRange
	exitLiveWarmUpComplete
)

// stepMonth runs the inner step loop (§4.5 step 3-5) over one month's
// worth of pre-fetched primary data, returning with neither restart nor
// done once the next step would pass windowEnd. Steps before Start only
// advance the cursor: primary data timestamped inside the warm-up period is
// skipped, not fed to the cache, the subscription handler or the indicators.
func (e *Engine) stepMonth(ctx context.Context, cursor, windowEnd time.Time, times []time.Time, monthData map[time.Time]data.TimeSlice, warmUpComplete bool) (restart, done bool, newCursor time.Time, newWarmUp bool, cause exitCause, err error) {
	idx := 0
	for {
		select {
		case <-ctx.Done():
			return false, true, cursor, warmUpComplete, exitNone, ctx.Err()
		default:
		}

		t := cursor.Add(e.cfg.BufferStep)
		if t.After(e.cfg.End) {
			return false, true, cursor, warmUpComplete, exitEndOfRange, nil
		}

		if t.Before(e.cfg.Start) && !warmUpComplete {
			if t.After(windowEnd) {
				return false, false, cursor, warmUpComplete, exitNone, nil
			}
			cursor = t
			continue
		}

		if !warmUpComplete {
			warmUpComplete = true
			observability.LogWarmUpComplete(ctx, t)
			e.indicators.SetWarmUpComplete()
			e.sink.OnEvent(events.NewWarmUpComplete(t))
			if e.cfg.Mode != Backtest {
				return false, true, t, warmUpComplete, exitLiveWarmUpComplete, nil
			}
		}

		if t.After(windowEnd) {
			return false, false, cursor, warmUpComplete, exitNone, nil
		}

		// data at or before the cursor was already delivered or lies in warm-up
		for idx < len(times) && !times[idx].After(cursor) {
			idx++
		}
		var slice data.TimeSlice
		for idx < len(times) && times[idx].After(cursor) && !times[idx].After(t) {
			slice = append(slice, monthData[times[idx]]...)
			idx++
		}
		sort.SliceStable(slice, func(i, j int) bool {
			return slice[i].Subscription().Symbol.Name < slice[j].Subscription().Symbol.Name
		})

		e.step(t, slice)
		cursor = t

		if e.handler.ConsumeSubscriptionsUpdated() {
			return true, false, cursor, warmUpComplete, exitNone, nil
		}
	}
}

// step delivers one assembled timestamp's worth of primary data through
// the ordering pinned by §4.5: market update, subscription consolidated,
// indicator, strategy slice.
func (e *Engine) step(t time.Time, primary data.TimeSlice) {
	e.matching.SetTime(t)
	for _, d := range primary {
		e.cache.ApplyItem(d)
	}

	for _, evt := range e.handler.DrainEvents() {
		e.sink.OnEvent(events.NewSubscription(t, evt))
	}

	consolidated := e.handler.UpdateTimeSlice(primary)
	consolidated = append(consolidated, e.handler.UpdateConsolidatorsTime(t)...)

	strategySlice := append(append(data.TimeSlice{}, primary...), consolidated...)

	if ie, ok := e.indicators.UpdateTimeSlice(t, strategySlice); ok {
		e.sink.OnEvent(events.NewIndicator(ie))
	}

	if len(strategySlice) > 0 {
		e.sink.OnEvent(events.NewTimeSlice(t, strategySlice))
	}
}

// fetchMonth pulls primary-data history for every currently-primary
// subscription over [from, to] and merges it into a single
// timestamp-ordered map, per §4.5 step 2.
func (e *Engine) fetchMonth(ctx context.Context, from, to time.Time) (map[time.Time]data.TimeSlice, []time.Time, error) {
	merged := map[time.Time]data.TimeSlice{}
	for _, sub := range e.handler.PrimarySubscriptions() {
		rng, err := e.adapter.HistoricalRange(ctx, sub, from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("replay: fetching %v: %w", sub, err)
		}
		for ts, slice := range rng {
			merged[ts] = append(merged[ts], slice...)
		}
	}
	times := make([]time.Time, 0, len(merged))
	for ts := range merged {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return merged, times, nil
}

type monthWindow struct {
	from, to time.Time
}

// monthWindows splits [from, to) into calendar-month-aligned windows, per
// §4.5 step 1.
func monthWindows(from, to time.Time) []monthWindow {
	if !from.Before(to) {
		return nil
	}
	var windows []monthWindow
	cursor := from
	for cursor.Before(to) {
		nextMonth := time.Date(cursor.Year(), cursor.Month()+1, 1, 0, 0, 0, 0, cursor.Location())
		end := nextMonth
		if end.After(to) {
			end = to
		}
		windows = append(windows, monthWindow{from: cursor, to: end})
		cursor = end
	}
	return windows
}
