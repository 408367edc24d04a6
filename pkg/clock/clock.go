// Package clock provides the injectable Clock used by tests to decouple
// from wall-clock time, matching libs/testing/clock.go. The replay engine
// itself never reads the system clock (§2: "Wall-clock advance is driven
// solely by the replay engine's time cursor") — this is purely a test
// tool for anything that still needs a Now(), such as log timestamps in
// deterministic test fixtures.
package clock

import (
	"context"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type FixedClock struct{ T time.Time }

func (f FixedClock) Now() time.Time { return f.T }

// ManualClock supports Advance/Set, convenient for stepping a replay test
// scenario by hand.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{current: start}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}

func (m *ManualClock) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	m.mu.Unlock()
}

type clockKey struct{}

func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

func FromContext(ctx context.Context) Clock {
	if c, ok := ctx.Value(clockKey{}).(Clock); ok {
		return c
	}
	return SystemClock{}
}

func Now(ctx context.Context) time.Time { return FromContext(ctx).Now() }
