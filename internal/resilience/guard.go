// Package resilience wraps calls to external services with bounded retries
// and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	DefaultRetries     = 2
	DefaultBackoff     = 500 * time.Millisecond
	DefaultMaxFailures = 5
	DefaultOpenFor     = 30 * time.Second
)

// ErrUnavailable is returned when the breaker is open.
var ErrUnavailable = errors.New("service unavailable")

// Policy configures a Guard. Zero Backoff, MaxFailures and OpenFor take the
// defaults; Retries is used as given.
type Policy struct {
	Name        string
	Retries     int
	Backoff     time.Duration
	MaxFailures uint32
	OpenFor     time.Duration
}

// Guard retries a call and trips after consecutive failures.
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	retries int
	backoff time.Duration
	logger  zerolog.Logger
}

func NewGuard(policy Policy, logger zerolog.Logger) *Guard {
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	if policy.Backoff <= 0 {
		policy.Backoff = DefaultBackoff
	}
	if policy.MaxFailures == 0 {
		policy.MaxFailures = DefaultMaxFailures
	}
	if policy.OpenFor <= 0 {
		policy.OpenFor = DefaultOpenFor
	}
	maxFailures := policy.MaxFailures

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        policy.Name,
		MaxRequests: 1,
		Timeout:     policy.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return &Guard{
		name:    policy.Name,
		breaker: breaker,
		retries: policy.Retries,
		backoff: policy.Backoff,
		logger:  logger,
	}
}

// State reports the breaker state name.
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Call runs fn at most retries+1 times with exponential backoff between
// attempts. Permanent errors and an open breaker stop immediately.
func Call[T any](ctx context.Context, g *Guard, fn func(context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.backoff
	policy.Reset()

	attempt := func() (T, error) {
		var zero T
		value, err := g.breaker.Execute(func() (any, error) {
			return fn(ctx)
		})
		if err == nil {
			typed, _ := value.(T)
			return typed, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, backoff.Permanent(errors.Join(ErrUnavailable, err))
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(errors.Join(err, ctx.Err()))
		}
		if IsPermanent(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(g.retries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			g.logger.Debug().
				Err(err).
				Str("breaker", g.name).
				Dur("wait", wait).
				Msg("retrying call")
		}),
	)
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
