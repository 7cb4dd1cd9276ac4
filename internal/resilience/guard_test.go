package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastGuard(retries int, maxFailures uint32) *Guard {
	return NewGuard(Policy{
		Name:        "test",
		Retries:     retries,
		Backoff:     time.Millisecond,
		MaxFailures: maxFailures,
		OpenFor:     time.Hour,
	}, zerolog.Nop())
}

func TestCallRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	guard := fastGuard(2, 10)
	attempts := 0
	got, err := Call(context.Background(), guard, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Call = %q, %v", got, err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestCallGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	guard := fastGuard(2, 10)
	attempts := 0
	_, err := Call(context.Background(), guard, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("down")
	})
	if err == nil || attempts != 3 {
		t.Fatalf("err=%v attempts=%d", err, attempts)
	}
}

func TestCallPermanentStops(t *testing.T) {
	t.Parallel()

	guard := fastGuard(2, 10)
	attempts := 0
	_, err := Call(context.Background(), guard, func(context.Context) (int, error) {
		attempts++
		return 0, Permanent(errors.New("bad request"))
	})
	if !IsPermanent(err) || attempts != 1 {
		t.Fatalf("err=%v attempts=%d", err, attempts)
	}
}

func TestCallOpenBreaker(t *testing.T) {
	t.Parallel()

	guard := fastGuard(0, 2)
	fail := func(context.Context) (int, error) { return 0, errors.New("down") }
	for i := 0; i < 2; i++ {
		_, _ = Call(context.Background(), guard, fail)
	}

	called := false
	_, err := Call(context.Background(), guard, func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if called {
		t.Fatalf("open breaker must not call through")
	}
	if guard.State() != "open" {
		t.Fatalf("state = %q", guard.State())
	}
}

func TestCallContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	guard := NewGuard(Policy{Name: "slow", Retries: 2, Backoff: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Call(ctx, guard, func(context.Context) (int, error) {
		cancel()
		return 0, errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCallRetriesDoNotExceedPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		retries int
		want    int
	}{
		{name: "no retries", retries: 0, want: 1},
		{name: "one retry", retries: 1, want: 2},
		{name: "negative clamps to zero", retries: -3, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			guard := fastGuard(tt.retries, 10)
			attempts := 0
			_, err := Call(context.Background(), guard, func(context.Context) (int, error) {
				attempts++
				return 0, errors.New("down")
			})
			if err == nil || err.Error() != "down" {
				t.Fatalf("err = %v, want last attempt error", err)
			}
			if attempts != tt.want {
				t.Fatalf("attempts = %d, want %d", attempts, tt.want)
			}
		})
	}
}
