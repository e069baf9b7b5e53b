package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

func testSettings() Settings {
	return Settings{
		WindowSize:       4,
		MinRequests:      2,
		FailureRatio:     0.5,
		OpenTimeout:      50 * time.Millisecond,
		HalfOpenRequests: 1,
		CallTimeout:      20 * time.Millisecond,
	}
}

func TestBreakerTripsAndShortCircuits(t *testing.T) {
	b := NewBreaker("profile", testSettings(), zap.NewNop().Sugar())
	ctx := context.Background()

	calls := 0
	failing := func(context.Context) error {
		calls++
		return errBoom
	}

	require.ErrorIs(t, b.Do(ctx, failing), errBoom)
	require.ErrorIs(t, b.Do(ctx, failing), errBoom)
	assert.True(t, b.Open())

	err := b.Do(ctx, failing)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls, "open breaker must not call the dependency")
}

func TestBreakerRecoversAfterOpenTimeout(t *testing.T) {
	b := NewBreaker("notification", testSettings(), nil)
	ctx := context.Background()
	fail := func(context.Context) error { return errBoom }

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	require.True(t, b.Open())

	time.Sleep(70 * time.Millisecond)

	require.NoError(t, b.Do(ctx, func(context.Context) error { return nil }))
	assert.False(t, b.Open())
	require.NoError(t, b.Do(ctx, func(context.Context) error { return nil }))
}

func TestBreakerBelowMinRequestsStaysClosed(t *testing.T) {
	s := testSettings()
	s.WindowSize = 10
	s.MinRequests = 5
	b := NewBreaker("mail", s, nil)
	for i := 0; i < 4; i++ {
		_ = b.Do(context.Background(), func(context.Context) error { return errBoom })
	}
	assert.False(t, b.Open())
}

func TestBreakerCallTimeoutCountsAsFailure(t *testing.T) {
	b := NewBreaker("slow", testSettings(), nil)
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	err := b.Do(context.Background(), slow)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	_ = b.Do(context.Background(), slow)
	assert.True(t, b.Open())
}

func TestNewBreakerAppliesDefaults(t *testing.T) {
	b := NewBreaker("defaults", Settings{}, nil)
	assert.Equal(t, "defaults", b.Name())
	assert.Equal(t, DefaultSettings().CallTimeout, b.callTimeout)
}

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errBoom }

func TestBreakerTripsOnRecentFailures(t *testing.T) {
	b := NewBreaker("recent", testSettings(), nil)
	ctx := context.Background()

	for range 10 {
		require.NoError(t, b.Do(ctx, succeed))
	}
	// overall only 2 of 12 calls failed, but half of the last 4 did
	_ = b.Do(ctx, fail)
	assert.False(t, b.Open())
	_ = b.Do(ctx, fail)
	assert.True(t, b.Open())
}

func TestBreakerForgetsOldFailures(t *testing.T) {
	s := testSettings()
	s.MinRequests = 4
	s.FailureRatio = 0.4
	b := NewBreaker("old", s, nil)
	ctx := context.Background()

	for range 3 {
		_ = b.Do(ctx, fail)
	}
	for range 5 {
		require.NoError(t, b.Do(ctx, succeed))
	}
	// 4 of 9 overall would trip; the window only holds 1 failure in 4
	_ = b.Do(ctx, fail)
	assert.False(t, b.Open())
}

func TestBreakerMinRequestsCappedAtWindow(t *testing.T) {
	s := testSettings()
	s.MinRequests = 50
	b := NewBreaker("capped", s, nil)
	for range 4 {
		_ = b.Do(context.Background(), fail)
	}
	assert.True(t, b.Open())
}

func TestWindowSlides(t *testing.T) {
	w := newWindow(3)
	n, r := w.ratio()
	assert.Zero(t, n)
	assert.Zero(t, r)

	w.record(true)
	w.record(true)
	w.record(false)
	n, r = w.ratio()
	assert.Equal(t, uint32(3), n)
	assert.InDelta(t, 2.0/3, r, 1e-9)

	w.record(false)
	w.record(false)
	n, r = w.ratio()
	assert.Equal(t, uint32(3), n)
	assert.InDelta(t, 0, r, 1e-9)

	w.reset()
	n, _ = w.ratio()
	assert.Zero(t, n)
}
