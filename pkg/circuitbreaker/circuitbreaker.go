package circuitbreaker

import (
	"errors"
	"log/slog"
	"time"

	"bookreview/pkg/metrics"

	"github.com/sony/gobreaker/v2"
)

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// ErrOpen is returned by Execute when the breaker rejects the call and no
// fallback is given.
var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name string
	// Consecutive failures that trip the breaker.
	MaxFailures uint32
	// How long the breaker stays open before letting one probe through.
	Timeout time.Duration
	// Cyclic period after which failure counts in the closed state reset.
	Window time.Duration
	// Errors for which IsSuccessful returns true do not count as failures.
	IsSuccessful func(err error) bool
}

// CircuitBreaker guards calls that return a value of type T.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

func New[T any](s Settings, logger *slog.Logger) *CircuitBreaker[T] {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}

	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    s.Window,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsSuccessful: s.IsSuccessful,
	})
	metrics.BreakerState.WithLabelValues(s.Name).Set(0)

	return &CircuitBreaker[T]{cb: cb}
}

// Execute runs fn through the breaker. When the breaker is open, fallback is
// returned instead if set, otherwise ErrOpen.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error), fallback func() (T, error)) (T, error) {
	res, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if fallback != nil {
			return fallback()
		}
		var zero T
		return zero, ErrOpen
	}
	return res, err
}

func (c *CircuitBreaker[T]) GetState() State {
	return c.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
