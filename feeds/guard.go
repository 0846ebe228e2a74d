package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/web3guy0/gemcaller/internal/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FETCH GUARD - Timeout, bounded retry, rate limit and circuit breaker
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every outbound feed call goes through a Guard:
//   limiter.Wait → per-attempt timeout → retry with linear backoff
//   wrapped in a breaker that opens after repeated failed fetches
//
// ═══════════════════════════════════════════════════════════════════════════════

// GuardConfig tunes a Guard
type GuardConfig struct {
	Name          string
	Timeout       time.Duration
	Attempts      int
	Backoff       time.Duration
	RatePerMinute int
	TripAfter     uint32
	OpenFor       time.Duration
}

// Guard wraps feed calls with the failure policy
type Guard struct {
	name     string
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Registry
}

// NewGuard creates a new guard
func NewGuard(cfg GuardConfig, m *metrics.Registry) *Guard {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 3
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute/10+1)
	}

	st := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripAfter
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about the feed's health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("feed", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("🔌 Feed breaker state change")
		},
	}

	return &Guard{
		name:     cfg.Name,
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		limiter:  limiter,
		breaker:  gobreaker.NewCircuitBreaker(st),
		metrics:  m,
	}
}

// Do runs fn under the guard's policy. op names the call in logs.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.retry(ctx, op, fn)
	})

	switch {
	case err == nil:
		g.metrics.Fetch(g.name, "ok")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.metrics.Fetch(g.name, "breaker_open")
	default:
		g.metrics.Fetch(g.name, "error")
	}
	return err
}

func (g *Guard) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < g.attempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			return err
		}

		log.Debug().
			Err(err).
			Str("feed", g.name).
			Str("op", op).
			Int("attempt", attempt+1).
			Msg("Feed call failed, retrying...")

		if attempt < g.attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.backoff * time.Duration(attempt+1)):
			}
		}
	}

	return fmt.Errorf("%s: %d attempts: %w", op, g.attempts, lastErr)
}

// PermanentError marks a failure that retrying cannot fix (e.g. HTTP 4xx)
type PermanentError struct {
	Status int
	Body   string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}
