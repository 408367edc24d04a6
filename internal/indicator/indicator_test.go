package indicator_test

import (
	"testing"
	"time"

	"fundforge/internal/data"
	"fundforge/internal/indicator"
)

func candleSub() data.DataSubscription {
	sym := data.NewSymbol("TEST", "sim", data.MarketEquity)
	return data.DataSubscription{Symbol: sym, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: data.MarketEquity}
}

func candle(close float64, t time.Time) data.Candle {
	sub := candleSub()
	return data.Candle{Sym: sub.Symbol, Close: close, Resolution: sub.Resolution, Time: t}
}

// ─── SMA: three closes, period 3 ───────────────────────────────────────────

func TestSimpleMovingAverageEmitsOnceWindowFull(t *testing.T) {
	sma := indicator.NewSimpleMovingAverage("sma3", candleSub(), 3)
	now := time.Now()

	if _, ok := sma.UpdateBaseData(candle(10, now)); ok {
		t.Fatal("expected no value before the window fills")
	}
	if _, ok := sma.UpdateBaseData(candle(20, now)); ok {
		t.Fatal("expected no value before the window fills")
	}
	v, ok := sma.UpdateBaseData(candle(30, now))
	if !ok {
		t.Fatal("expected a value once the window is full")
	}
	if got := v.Fields["value"]; got != 20 {
		t.Errorf("SMA: got %v, want 20", got)
	}
	if !sma.IsReady() {
		t.Error("expected IsReady once the window is full")
	}
}

func TestSimpleMovingAverageSkipsQuotes(t *testing.T) {
	sma := indicator.NewSimpleMovingAverage("sma3", candleSub(), 1)
	sym := candleSub().Symbol
	if _, ok := sma.UpdateBaseData(data.Quote{Sym: sym, Time: time.Now()}); ok {
		t.Error("expected quotes to be skipped")
	}
}

// ─── EMA: seeds from SMA of the first `period` closes, then smooths ───────

func TestExponentialMovingAverageSeedsThenSmooths(t *testing.T) {
	ema := indicator.NewExponentialMovingAverage("ema2", candleSub(), 2)
	now := time.Now()

	if _, ok := ema.UpdateBaseData(candle(10, now)); ok {
		t.Fatal("expected no value before the seed window fills")
	}
	v, ok := ema.UpdateBaseData(candle(20, now))
	if !ok {
		t.Fatal("expected a seeded value once the window fills")
	}
	if got := v.Fields["value"]; got != 15 {
		t.Fatalf("seed value: got %v, want 15 (SMA of 10,20)", got)
	}

	alpha := 2.0 / 3.0 // period=2 -> alpha = 2/(2+1)
	want := alpha*30 + (1-alpha)*15
	v2, ok := ema.UpdateBaseData(candle(30, now))
	if !ok {
		t.Fatal("expected a smoothed value")
	}
	if got := v2.Fields["value"]; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("smoothed EMA: got %v, want %v", got, want)
	}
}

// ─── Handler: registration, warm-up backfill, deterministic ordering ──────

func TestHandlerAddRunsWarmUpOnlyAfterWarmUpComplete(t *testing.T) {
	h := indicator.NewHandler()
	sma := indicator.NewSimpleMovingAverage("sma1", candleSub(), 1)

	warmedUp := false
	h.Add(sma, func(ind indicator.Indicator) { warmedUp = true })
	if warmedUp {
		t.Error("expected warm-up callback not to run before SetWarmUpComplete")
	}

	h.SetWarmUpComplete()
	h.Add(indicator.NewSimpleMovingAverage("sma2", candleSub(), 1), func(ind indicator.Indicator) { warmedUp = true })
	if !warmedUp {
		t.Error("expected the warm-up callback to run once warm-up is already complete")
	}
}

func TestHandlerUpdateTimeSliceReturnsSortedValues(t *testing.T) {
	h := indicator.NewHandler()
	sub := candleSub()
	h.Add(indicator.NewSimpleMovingAverage("zeta", sub, 1), nil)
	h.Add(indicator.NewSimpleMovingAverage("alpha", sub, 1), nil)

	now := time.Now()
	evt, ok := h.UpdateTimeSlice(now, data.TimeSlice{candle(10, now)})
	if !ok {
		t.Fatal("expected at least one indicator value")
	}
	if len(evt.Values) != 2 || evt.Values[0].Name != "alpha" || evt.Values[1].Name != "zeta" {
		t.Errorf("expected values sorted by indicator name, got %+v", evt.Values)
	}
}

func TestHandlerRemoveStopsFutureEvaluation(t *testing.T) {
	h := indicator.NewHandler()
	sub := candleSub()
	h.Add(indicator.NewSimpleMovingAverage("sma1", sub, 1), nil)
	h.Remove("sma1")

	now := time.Now()
	if _, ok := h.UpdateTimeSlice(now, data.TimeSlice{candle(10, now)}); ok {
		t.Error("expected no values after removing the only indicator")
	}
}

// ─── warm-up margin formula ─────────────────────────────────────────────────

func TestWarmUpMarginTimeDrivenResolution(t *testing.T) {
	got := indicator.WarmUpMargin(20, data.Minutes(1))
	want := 20*time.Minute + 4*24*time.Hour
	if got != want {
		t.Errorf("WarmUpMargin: got %v, want %v", got, want)
	}
}

func TestWarmUpMarginFallsBackForNonTimeDrivenResolution(t *testing.T) {
	got := indicator.WarmUpMargin(20, data.Ticks(5))
	want := 4 * 24 * time.Hour
	if got != want {
		t.Errorf("WarmUpMargin: got %v, want %v", got, want)
	}
}
