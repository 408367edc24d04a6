package replay

import (
	"testing"
	"time"
)

func TestMonthWindowsSplitsAtCalendarBoundaries(t *testing.T) {
	from := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	windows := monthWindows(from, to)
	if len(windows) != 3 {
		t.Fatalf("expected 3 month windows, got %d: %+v", len(windows), windows)
	}
	if !windows[0].from.Equal(from) || !windows[0].to.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first window: %+v", windows[0])
	}
	if !windows[1].from.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) || !windows[1].to.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("second window: %+v", windows[1])
	}
	if !windows[2].from.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) || !windows[2].to.Equal(to) {
		t.Errorf("third window: %+v", windows[2])
	}
}

func TestMonthWindowsSingleMonthStaysOneWindow(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	windows := monthWindows(from, to)
	if len(windows) != 1 {
		t.Fatalf("expected a single window, got %d", len(windows))
	}
}

func TestMonthWindowsEmptyRangeReturnsNil(t *testing.T) {
	tm := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if windows := monthWindows(tm, tm); windows != nil {
		t.Errorf("expected nil for an empty range, got %+v", windows)
	}
}
