package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// ErrorClassification tells the executor what a failed attempt means: whether
// another attempt may succeed and whether the breaker should count it.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// permanent is used when a caller passes no classifier.
func permanent(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

// RetryHook observes every retry the executor schedules.
type RetryHook func(operation string, attempt int)

// Executor runs provider calls with bounded retries behind one circuit
// breaker per operation name.
type Executor struct {
	cfg     Config
	onRetry RetryHook

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: map[string]*gobreaker.CircuitBreaker[struct{}]{},
	}
}

// SetRetryHook installs a hook called before each retry wait.
func (e *Executor) SetRetryHook(hook RetryHook) {
	e.onRetry = hook
}

// Execute runs fn until it succeeds, the classifier declares the failure
// permanent, the attempts run out or ctx ends. The returned error is the last
// one observed, so a context error can come back bare.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	if operation == "" {
		operation = "unknown"
	}
	if classifier == nil {
		classifier = permanent
	}

	attempt := func() error { return e.retry(ctx, operation, fn, classifier) }
	if !e.cfg.BreakerEnabled {
		return attempt()
	}
	_, err := e.breaker(operation, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, attempt()
	})
	return err
}

// Guard is Execute with ProviderClassifier for calls into the embedding and
// generation providers. Every failure leaves tagged with kind: an open circuit
// and an ended context both become temporary outages of that provider.
func (e *Executor) Guard(ctx context.Context, operation string, kind error, fn func(context.Context) error) error {
	err := e.Execute(ctx, operation, fn, ProviderClassifier)
	switch {
	case err == nil:
		return nil
	case IsCircuitOpen(err):
		return domain.WrapError(kind, operation, errors.Join(domain.ErrTemporary, err))
	case domain.IsKind(err, kind):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(kind, operation, errors.Join(domain.ErrTemporary, err))
	default:
		return domain.WrapError(kind, operation, err)
	}
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	delays := e.cfg.schedule()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.cfg.RetryMaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := delays.next()
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.onRetry != nil {
			e.onRetry(operation, attempt)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff yields exponentially growing waits capped at max.
type backoff struct {
	cur, max   time.Duration
	multiplier float64
}

func (c Config) schedule() *backoff {
	return &backoff{cur: c.RetryInitialBackoff, max: c.RetryMaxBackoff, multiplier: c.RetryMultiplier}
}

func (b *backoff) next() time.Duration {
	wait := min(b.cur, b.max)
	b.cur = min(time.Duration(float64(b.cur)*b.multiplier), b.max)
	return wait
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	minRequests := uint32(e.cfg.BreakerMinRequests)
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: uint32(e.cfg.BreakerHalfOpenMaxCalls),
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
