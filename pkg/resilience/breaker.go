// Package resilience isolates calls to remote dependencies behind a circuit
// breaker with a per-call timeout.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without calling the dependency while the breaker
// is open, or when the half-open trial budget is used up.
var ErrCircuitOpen = errors.New("circuit open")

type Settings struct {
	// WindowSize is the number of most recent calls the failure ratio is
	// computed over.
	WindowSize uint32
	// MinRequests is the number of calls the window must hold before the
	// failure ratio is considered. Capped at WindowSize.
	MinRequests uint32
	// FailureRatio in [0,1] at or above which the breaker trips.
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial calls allowed while probing.
	HalfOpenRequests uint32
	// CallTimeout bounds every call; exceeding it counts as a failure.
	CallTimeout time.Duration
}

// DefaultSettings mirrors the savings-group platform resilience defaults.
func DefaultSettings() Settings {
	return Settings{
		WindowSize:       10,
		MinRequests:      10,
		FailureRatio:     0.5,
		OpenTimeout:      10 * time.Second,
		HalfOpenRequests: 5,
		CallTimeout:      3 * time.Second,
	}
}

// Breaker is safe for concurrent use. While closed it trips on the outcomes
// of the last WindowSize calls; the window starts empty after every state
// change.
type Breaker struct {
	cb          *gobreaker.CircuitBreaker
	window      *window
	callTimeout time.Duration
}

func NewBreaker(name string, s Settings, logger *zap.SugaredLogger) *Breaker {
	def := DefaultSettings()
	if s.WindowSize == 0 {
		s.WindowSize = def.WindowSize
	}
	if s.MinRequests == 0 {
		s.MinRequests = def.MinRequests
	}
	if s.MinRequests > s.WindowSize {
		s.MinRequests = s.WindowSize
	}
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = def.FailureRatio
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = def.HalfOpenRequests
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = def.OpenTimeout
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = def.CallTimeout
	}
	w := newWindow(s.WindowSize)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		// runs before gobreaker books the outcome, so ReadyToTrip sees it
		IsSuccessful: func(err error) bool {
			w.record(err != nil)
			return err == nil
		},
		ReadyToTrip: func(gobreaker.Counts) bool {
			n, ratio := w.ratio()
			return n >= s.MinRequests && ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.reset()
			if logger != nil {
				logger.Warnw("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	})
	return &Breaker{cb: cb, window: w, callTimeout: s.CallTimeout}
}

// Do runs fn under the breaker. fn receives a context bounded by the call
// timeout. Rejections by the breaker are reported as ErrCircuitOpen.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
		return nil, fn(callCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.cb.Name(), ErrCircuitOpen)
	}
	return err
}

// Open reports whether calls are currently being short-circuited.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) Name() string { return b.cb.Name() }
